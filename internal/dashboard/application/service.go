package application

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	alerts "parking-monitor/internal/alerts/domain"
	masterdata "parking-monitor/internal/masterdata/domain"
	telemetry "parking-monitor/internal/telemetry/domain"
)

// Zone status thresholds on efficiency percent.
const (
	StatusGood    = "good"
	StatusWarning = "warning"
	StatusPoor    = "poor"

	goodEfficiency    = 80.0
	warningEfficiency = 50.0
)

// Catalog lists zones and devices.
type Catalog interface {
	ListZones(ctx context.Context) ([]masterdata.Zone, error)
	ListDevices(ctx context.Context) ([]masterdata.Device, error)
}

// OccupancyReader reads the occupancy log.
type OccupancyReader interface {
	LatestAll(ctx context.Context) (map[string]telemetry.OccupancyEvent, error)
	CountByDevice(ctx context.Context, from, to time.Time) (map[string]int, error)
}

// AlertCounter counts alerts by severity.
type AlertCounter interface {
	CountSince(ctx context.Context, since, until time.Time) (map[alerts.Severity]int, error)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Totals are the headline dashboard counters.
type Totals struct {
	TotalEvents      int `json:"total_events"`
	CurrentOccupancy int `json:"current_occupancy"`
	TotalDevices     int `json:"total_devices"`
	ActiveDevices    int `json:"active_devices"`
	AlertsToday      int `json:"alerts_today"`
	CriticalAlerts   int `json:"critical_alerts"`
}

// ZoneSummary is the per-zone efficiency row.
type ZoneSummary struct {
	ZoneName   string  `json:"zone_name"`
	ZoneCode   string  `json:"zone_code"`
	Events     int     `json:"events"`
	Target     int     `json:"target"`
	Efficiency float64 `json:"efficiency"`
	Status     string  `json:"status"`
}

// Summary is the daily dashboard rollup.
type Summary struct {
	Date      string        `json:"date"`
	Timestamp time.Time     `json:"timestamp"`
	Totals    Totals        `json:"summary"`
	Zones     []ZoneSummary `json:"zones"`
}

// Service computes read-only rollups over the stores.
type Service struct {
	catalog   Catalog
	occupancy OccupancyReader
	alerts    AlertCounter
	clock     Clock
}

// ServiceOption customizes the dashboard service.
type ServiceOption func(*Service)

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewService constructs a dashboard service.
func NewService(catalog Catalog, occupancy OccupancyReader, alertCounter AlertCounter, opts ...ServiceOption) (*Service, error) {
	if catalog == nil || occupancy == nil || alertCounter == nil {
		return nil, errors.New("dashboard: nil dependency")
	}
	service := &Service{
		catalog:   catalog,
		occupancy: occupancy,
		alerts:    alertCounter,
		clock:     systemClock{},
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// ParseDate parses YYYY-MM-DD; empty selects today in UTC.
func (s *Service) ParseDate(value string) (time.Time, error) {
	if value == "" {
		now := s.clock.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	day, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("dashboard: invalid date %q, expected YYYY-MM-DD", value)
	}
	return day.UTC(), nil
}

// Summary computes the rollup for the UTC day starting at day.
func (s *Service) Summary(ctx context.Context, day time.Time) (*Summary, error) {
	now := s.clock.Now().UTC()
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	zones, err := s.catalog.ListZones(ctx)
	if err != nil {
		return nil, fmt.Errorf("dashboard: list zones: %w", err)
	}
	devices, err := s.catalog.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("dashboard: list devices: %w", err)
	}
	counts, err := s.occupancy.CountByDevice(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("dashboard: count events: %w", err)
	}
	latest, err := s.occupancy.LatestAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("dashboard: latest occupancy: %w", err)
	}
	severities, err := s.alerts.CountSince(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("dashboard: count alerts: %w", err)
	}

	summary := &Summary{
		Date:      from.Format("2006-01-02"),
		Timestamp: now,
		Zones:     make([]ZoneSummary, 0, len(zones)),
	}

	zoneEvents := make(map[string]int, len(zones))
	for _, device := range devices {
		summary.Totals.TotalDevices++
		if device.Active && !device.IsOffline(now) {
			summary.Totals.ActiveDevices++
		}
		events := counts[device.Code]
		summary.Totals.TotalEvents += events
		zoneEvents[device.ZoneCode] += events
		if event, ok := latest[device.Code]; ok && event.Occupied {
			summary.Totals.CurrentOccupancy++
		}
	}
	for _, count := range severities {
		summary.Totals.AlertsToday += count
	}
	summary.Totals.CriticalAlerts = severities[alerts.SeverityCritical]

	for _, zone := range zones {
		events := zoneEvents[zone.Code]
		efficiency := Efficiency(events, zone.DailyTarget)
		summary.Zones = append(summary.Zones, ZoneSummary{
			ZoneName:   zone.Name,
			ZoneCode:   zone.Code,
			Events:     events,
			Target:     zone.DailyTarget,
			Efficiency: efficiency,
			Status:     ZoneStatus(efficiency),
		})
	}
	sort.SliceStable(summary.Zones, func(i, j int) bool { return summary.Zones[i].ZoneName < summary.Zones[j].ZoneName })
	return summary, nil
}

// Efficiency returns events/target as a percentage rounded to two decimals.
func Efficiency(events, target int) float64 {
	if target <= 0 {
		return 0
	}
	return math.Round(float64(events)/float64(target)*10000) / 100
}

// ZoneStatus classifies an efficiency percentage.
func ZoneStatus(efficiency float64) string {
	switch {
	case efficiency >= goodEfficiency:
		return StatusGood
	case efficiency >= warningEfficiency:
		return StatusWarning
	default:
		return StatusPoor
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
