package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	alerts "parking-monitor/internal/alerts/domain"
)

type openKey struct {
	device    string
	alertType string
}

// AlertRepository is an in-memory alert store for demo/testing.
type AlertRepository struct {
	mu     sync.Mutex
	alerts map[string]alerts.Alert
	open   map[openKey]string
}

// NewAlertRepository constructs a repository.
func NewAlertRepository() *AlertRepository {
	return &AlertRepository{
		alerts: make(map[string]alerts.Alert),
		open:   make(map[openKey]string),
	}
}

// CreateIfNoneOpen inserts alert unless an open one exists for its device and type.
func (r *AlertRepository) CreateIfNoneOpen(ctx context.Context, alert *alerts.Alert) (bool, error) {
	_ = ctx
	if alert == nil || alert.ID == "" || alert.DeviceCode == "" || alert.Type == "" {
		return false, errors.New("alert repo: invalid alert")
	}
	key := openKey{device: alert.DeviceCode, alertType: alert.Type}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.open[key]; exists {
		return false, nil
	}
	if _, exists := r.alerts[alert.ID]; exists {
		return false, errors.New("alert repo: duplicate id")
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	alert.Acknowledged = false
	alert.AcknowledgedAt = nil
	r.alerts[alert.ID] = *alert
	r.open[key] = alert.ID
	return true, nil
}

// GetByID returns an alert or nil.
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*alerts.Alert, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	alert, ok := r.alerts[id]
	if !ok {
		return nil, nil
	}
	return copyAlert(alert), nil
}

// MarkAcknowledged flags an alert and closes its open slot.
func (r *AlertRepository) MarkAcknowledged(ctx context.Context, id string, at time.Time) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	alert, ok := r.alerts[id]
	if !ok {
		return alerts.ErrNotFound
	}
	ackedAt := at.UTC()
	alert.Acknowledged = true
	alert.AcknowledgedAt = &ackedAt
	r.alerts[id] = alert
	key := openKey{device: alert.DeviceCode, alertType: alert.Type}
	if r.open[key] == id {
		delete(r.open, key)
	}
	return nil
}

// List returns alerts newest first.
func (r *AlertRepository) List(ctx context.Context, filter alerts.Filter) ([]alerts.Alert, error) {
	_ = ctx
	r.mu.Lock()
	result := make([]alerts.Alert, 0, len(r.alerts))
	for _, alert := range r.alerts {
		if filter.Matches(alert) {
			result = append(result, *copyAlert(alert))
		}
	}
	r.mu.Unlock()
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// CountSince counts alerts created in [since, until) by severity.
func (r *AlertRepository) CountSince(ctx context.Context, since, until time.Time) (map[alerts.Severity]int, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make(map[alerts.Severity]int)
	for _, alert := range r.alerts {
		if alert.CreatedAt.Before(since) || !alert.CreatedAt.Before(until) {
			continue
		}
		result[alert.Severity]++
	}
	return result, nil
}

// CountOpen returns the number of unacknowledged alerts.
func (r *AlertRepository) CountOpen(ctx context.Context) (int, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.open), nil
}

// PurgeDevices drops alerts of deleted devices.
func (r *AlertRepository) PurgeDevices(ctx context.Context, codes []string) error {
	_ = ctx
	drop := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		drop[code] = struct{}{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, alert := range r.alerts {
		if _, ok := drop[alert.DeviceCode]; ok {
			delete(r.alerts, id)
		}
	}
	for key := range r.open {
		if _, ok := drop[key.device]; ok {
			delete(r.open, key)
		}
	}
	return nil
}

func copyAlert(alert alerts.Alert) *alerts.Alert {
	copied := alert
	if alert.AcknowledgedAt != nil {
		at := *alert.AcknowledgedAt
		copied.AcknowledgedAt = &at
	}
	return &copied
}
