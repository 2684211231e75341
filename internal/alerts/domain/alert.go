package alerts

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Severity ranks alerts.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Known alert types.
const (
	TypeDeviceOffline = "DEVICE_OFFLINE"
	TypeHighPower     = "HIGH_POWER"
	TypeLowVoltage    = "LOW_VOLTAGE"
)

// Valid returns true when the severity is supported.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	default:
		return false
	}
}

// ParseSeverity normalizes a severity string.
func ParseSeverity(value string) (Severity, error) {
	severity := Severity(strings.ToUpper(strings.TrimSpace(value)))
	if !severity.Valid() {
		return "", ErrInvalidSeverity
	}
	return severity, nil
}

// Alert is a standing notification for a device condition.
type Alert struct {
	ID             string     `json:"id"`
	DeviceCode     string     `json:"device_code"`
	Severity       Severity   `json:"severity"`
	Type           string     `json:"alert_type"`
	Message        string     `json:"message"`
	Acknowledged   bool       `json:"is_acknowledged"`
	CreatedAt      time.Time  `json:"created_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at"`
}

// Finding is a rule output not yet reconciled against stored alerts.
type Finding struct {
	DeviceCode string
	Type       string
	Severity   Severity
	Message    string
}

// Validate checks finding invariants.
func (f Finding) Validate() error {
	if f.DeviceCode == "" {
		return errors.New("finding: empty device code")
	}
	if f.Type == "" {
		return errors.New("finding: empty alert type")
	}
	if !f.Severity.Valid() {
		return ErrInvalidSeverity
	}
	return nil
}

// Filter narrows alert listings. Nil fields match everything.
type Filter struct {
	Severity     *Severity
	Acknowledged *bool
}

// Matches reports whether alert passes the filter.
func (f Filter) Matches(alert Alert) bool {
	if f.Severity != nil && alert.Severity != *f.Severity {
		return false
	}
	if f.Acknowledged != nil && alert.Acknowledged != *f.Acknowledged {
		return false
	}
	return true
}

// AlertRepository persists alerts.
type AlertRepository interface {
	// CreateIfNoneOpen inserts alert unless an unacknowledged alert exists for
	// the same device and type. The check and insert are atomic. It reports
	// whether a row was created.
	CreateIfNoneOpen(ctx context.Context, alert *Alert) (bool, error)
	GetByID(ctx context.Context, id string) (*Alert, error)
	// MarkAcknowledged sets the flag and overwrites the acknowledgment time.
	MarkAcknowledged(ctx context.Context, id string, at time.Time) error
	List(ctx context.Context, filter Filter) ([]Alert, error)
	// CountSince counts alerts created at or after since, by severity.
	CountSince(ctx context.Context, since, until time.Time) (map[Severity]int, error)
}
