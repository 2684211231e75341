package telemetry

import (
	"context"
	"math"
	"time"
)

// Bounds for electrical measurements, matching the storage precision
// (NUMERIC(6,2) for voltage/current, NUMERIC(4,2) for power factor).
const (
	MaxVoltage     = 9999.99
	MaxCurrent     = 9999.99
	MaxPowerFactor = 1.0
	MaxSampleAge   = 24 * time.Hour
)

// Sample is one stored electrical reading of a device.
type Sample struct {
	ID          int64     `json:"id"`
	DeviceCode  string    `json:"device_code"`
	Voltage     float64   `json:"voltage"`
	Current     float64   `json:"current"`
	PowerFactor float64   `json:"power_factor"`
	Timestamp   time.Time `json:"timestamp"`
	ReceivedAt  time.Time `json:"received_at"`
}

// Power returns instantaneous power in watts.
func (s Sample) Power() float64 {
	return s.Voltage * s.Current * s.PowerFactor
}

// OccupancyEvent is one slot-state transition.
// Consecutive events with the same flag are allowed.
type OccupancyEvent struct {
	ID         int64     `json:"id"`
	DeviceCode string    `json:"device_code"`
	Occupied   bool      `json:"is_occupied"`
	Timestamp  time.Time `json:"timestamp"`
	CreatedAt  time.Time `json:"created_at"`
}

// RoundCents rounds a measurement to two decimals.
func RoundCents(value float64) float64 {
	return math.Round(value*100) / 100
}

// SampleRepository is the time-ordered telemetry store.
type SampleRepository interface {
	// Append stores a sample and fills its ID. It returns ErrDuplicate when a
	// sample already exists for the same device and timestamp.
	Append(ctx context.Context, sample *Sample) error
	ListByDevice(ctx context.Context, deviceCode string, from, to time.Time) ([]Sample, error)
}

// OccupancyRepository is the append-only occupancy log.
type OccupancyRepository interface {
	Append(ctx context.Context, event *OccupancyEvent) error
	ListByDevice(ctx context.Context, deviceCode string, from, to time.Time) ([]OccupancyEvent, error)
	// LatestFor returns the most recent event of a device, nil when none exists.
	LatestFor(ctx context.Context, deviceCode string) (*OccupancyEvent, error)
	// LatestAll returns the most recent event of every device that has one.
	LatestAll(ctx context.Context) (map[string]OccupancyEvent, error)
	// CountByDevice counts events per device with timestamp in [from, to).
	CountByDevice(ctx context.Context, from, to time.Time) (map[string]int, error)
}
