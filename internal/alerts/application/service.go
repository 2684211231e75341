package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	alerts "parking-monitor/internal/alerts/domain"
	"parking-monitor/internal/observability/metrics"
)

// Outcome is the result of raising a finding.
type Outcome string

const (
	OutcomeCreated    Outcome = "created"
	OutcomeSuppressed Outcome = "suppressed"
)

// Lifecycle event types.
const (
	EventCreated      = "created"
	EventAcknowledged = "acknowledged"
)

// AlertNotifier publishes alert lifecycle events.
type AlertNotifier interface {
	Notify(ctx context.Context, event AlertEvent)
}

// AlertEvent represents a lifecycle update.
type AlertEvent struct {
	Type  string       `json:"type"`
	Alert alerts.Alert `json:"alert"`
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Service deduplicates findings into alerts and manages acknowledgment.
type Service struct {
	alerts   alerts.AlertRepository
	notifier AlertNotifier
	clock    Clock
	logger   zerolog.Logger
	newID    func() string
}

// ServiceOption customizes the alert service.
type ServiceOption func(*Service)

// WithNotifier assigns a notifier.
func WithNotifier(notifier AlertNotifier) ServiceOption {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService constructs an alert service.
func NewService(repo alerts.AlertRepository, opts ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, errors.New("alerts: nil repository")
	}
	service := &Service{
		alerts: repo,
		clock:  systemClock{},
		logger: zerolog.Nop(),
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Raise creates an alert for finding unless an unacknowledged alert of the
// same device and type already exists. A suppressed raise returns a nil alert.
func (s *Service) Raise(ctx context.Context, finding alerts.Finding) (Outcome, *alerts.Alert, error) {
	if s == nil {
		return "", nil, errors.New("alerts: nil service")
	}
	if err := finding.Validate(); err != nil {
		return "", nil, err
	}
	alert := &alerts.Alert{
		ID:         s.newID(),
		DeviceCode: finding.DeviceCode,
		Severity:   finding.Severity,
		Type:       finding.Type,
		Message:    finding.Message,
		CreatedAt:  s.clock.Now().UTC(),
	}
	created, err := s.alerts.CreateIfNoneOpen(ctx, alert)
	if err != nil {
		return "", nil, fmt.Errorf("alerts: raise %s for %s: %w", finding.Type, finding.DeviceCode, err)
	}
	if !created {
		metrics.IncAlertEvent(string(OutcomeSuppressed), finding.Type)
		s.logger.Debug().
			Str("device_code", finding.DeviceCode).
			Str("alert_type", finding.Type).
			Msg("alert suppressed, open alert exists")
		return OutcomeSuppressed, nil, nil
	}
	s.logger.Info().
		Str("alert_id", alert.ID).
		Str("device_code", alert.DeviceCode).
		Str("alert_type", alert.Type).
		Str("severity", string(alert.Severity)).
		Msg("alert created")
	s.notify(ctx, EventCreated, *alert)
	return OutcomeCreated, alert, nil
}

// Acknowledge marks an alert acknowledged. Acknowledging again overwrites the
// acknowledgment time.
func (s *Service) Acknowledge(ctx context.Context, id string) (*alerts.Alert, error) {
	if s == nil {
		return nil, errors.New("alerts: nil service")
	}
	if id == "" {
		return nil, alerts.ErrNotFound
	}
	alert, err := s.alerts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, alerts.ErrNotFound
	}
	ackedAt := s.clock.Now().UTC()
	if err := s.alerts.MarkAcknowledged(ctx, alert.ID, ackedAt); err != nil {
		return nil, err
	}
	alert.Acknowledged = true
	alert.AcknowledgedAt = &ackedAt
	s.notify(ctx, EventAcknowledged, *alert)
	return alert, nil
}

// List returns alerts newest first.
func (s *Service) List(ctx context.Context, filter alerts.Filter) ([]alerts.Alert, error) {
	if s == nil {
		return nil, errors.New("alerts: nil service")
	}
	list, err := s.alerts.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []alerts.Alert{}
	}
	return list, nil
}

func (s *Service) notify(ctx context.Context, eventType string, alert alerts.Alert) {
	metrics.IncAlertEvent(eventType, alert.Type)
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, AlertEvent{Type: eventType, Alert: alert})
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
