package telemetry

import (
	"errors"
	"fmt"
)

// ErrorKind classifies ingestion failures for callers.
type ErrorKind string

const (
	KindUnknownDevice       ErrorKind = "UnknownDevice"
	KindInactiveDevice      ErrorKind = "InactiveDevice"
	KindTimestampOutOfRange ErrorKind = "TimestampOutOfRange"
	KindOutOfBounds         ErrorKind = "OutOfBounds"
	KindDuplicate           ErrorKind = "Duplicate"
	KindNotFound            ErrorKind = "NotFound"
	KindInternal            ErrorKind = "Internal"
	// KindInvalidInput marks payloads that could not be decoded into an input.
	KindInvalidInput ErrorKind = "InvalidInput"
)

// ErrDuplicate is returned by stores when (device, timestamp) already exists.
var ErrDuplicate = errors.New("telemetry: duplicate sample")

// IngestError carries the kind and the offending field of a failed submission.
type IngestError struct {
	Kind   ErrorKind
	Field  string
	Detail string
	Err    error
}

func (e *IngestError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *IngestError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewIngestError builds an IngestError.
func NewIngestError(kind ErrorKind, field, detail string) *IngestError {
	return &IngestError{Kind: kind, Field: field, Detail: detail}
}

// KindOf maps any error returned by the ingestion pipeline to its kind.
// Errors that are not IngestErrors are Internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ingestErr *IngestError
	if errors.As(err, &ingestErr) {
		return ingestErr.Kind
	}
	if errors.Is(err, ErrDuplicate) {
		return KindDuplicate
	}
	return KindInternal
}

// IsValidation reports whether kind is detected before any persistence attempt.
func (k ErrorKind) IsValidation() bool {
	switch k {
	case KindUnknownDevice, KindInactiveDevice, KindTimestampOutOfRange, KindOutOfBounds, KindInvalidInput:
		return true
	default:
		return false
	}
}
