package alerts

import "errors"

var (
	// ErrNotFound indicates a missing alert record.
	ErrNotFound = errors.New("alert: not found")
	// ErrInvalidSeverity indicates a severity outside INFO/WARNING/CRITICAL.
	ErrInvalidSeverity = errors.New("alert: invalid severity")
)
