package application

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	masterdata "parking-monitor/internal/masterdata/domain"
	telemetry "parking-monitor/internal/telemetry/domain"
)

// telemetryCheck is one step of the telemetry validation chain. Checks run in
// order and the first failure wins.
type telemetryCheck func(ctx context.Context, s *Service, in telemetry.TelemetryInput, now time.Time) error

// occupancyCheck is one step of the occupancy validation chain.
type occupancyCheck func(ctx context.Context, s *Service, in telemetry.OccupancyInput, now time.Time) error

var telemetryChecks = []telemetryCheck{
	func(ctx context.Context, s *Service, in telemetry.TelemetryInput, _ time.Time) error {
		return s.checkDevice(ctx, in.DeviceCode)
	},
	func(_ context.Context, _ *Service, in telemetry.TelemetryInput, now time.Time) error {
		return checkWindow(in.Timestamp, now, telemetry.MaxSampleAge)
	},
	func(_ context.Context, _ *Service, in telemetry.TelemetryInput, _ time.Time) error {
		return checkRange("voltage", in.Voltage, 0, telemetry.MaxVoltage)
	},
	func(_ context.Context, _ *Service, in telemetry.TelemetryInput, _ time.Time) error {
		return checkRange("current", in.Current, 0, telemetry.MaxCurrent)
	},
	func(_ context.Context, _ *Service, in telemetry.TelemetryInput, _ time.Time) error {
		return checkRange("power_factor", in.PowerFactor, 0, telemetry.MaxPowerFactor)
	},
}

var occupancyChecks = []occupancyCheck{
	func(ctx context.Context, s *Service, in telemetry.OccupancyInput, _ time.Time) error {
		return s.checkDevice(ctx, in.DeviceCode)
	},
	func(_ context.Context, _ *Service, in telemetry.OccupancyInput, now time.Time) error {
		return checkNotFuture(in.Timestamp, now)
	},
}

func (s *Service) validateTelemetry(ctx context.Context, in telemetry.TelemetryInput, now time.Time) error {
	for _, check := range telemetryChecks {
		if err := check(ctx, s, in, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) validateOccupancy(ctx context.Context, in telemetry.OccupancyInput, now time.Time) error {
	for _, check := range occupancyChecks {
		if err := check(ctx, s, in, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) checkDevice(ctx context.Context, code string) error {
	if code == "" {
		return telemetry.NewIngestError(telemetry.KindUnknownDevice, "device_code", "device_code is required")
	}
	device, err := s.registry.Lookup(ctx, code)
	if err != nil {
		if errors.Is(err, masterdata.ErrDeviceNotFound) {
			return telemetry.NewIngestError(telemetry.KindUnknownDevice, "device_code",
				fmt.Sprintf("device %s not found", code))
		}
		return &telemetry.IngestError{Kind: telemetry.KindInternal, Field: "device_code", Detail: "device lookup failed", Err: err}
	}
	if !device.Active {
		return telemetry.NewIngestError(telemetry.KindInactiveDevice, "device_code",
			fmt.Sprintf("device %s is inactive", code))
	}
	return nil
}

func checkWindow(ts, now time.Time, maxAge time.Duration) error {
	if err := checkNotFuture(ts, now); err != nil {
		return err
	}
	if now.Sub(ts) > maxAge {
		return telemetry.NewIngestError(telemetry.KindTimestampOutOfRange, "timestamp",
			fmt.Sprintf("timestamp is older than %s", maxAge))
	}
	return nil
}

func checkNotFuture(ts, now time.Time) error {
	if ts.IsZero() {
		return telemetry.NewIngestError(telemetry.KindTimestampOutOfRange, "timestamp", "timestamp is required")
	}
	if ts.After(now) {
		return telemetry.NewIngestError(telemetry.KindTimestampOutOfRange, "timestamp", "timestamp is in the future")
	}
	return nil
}

func checkRange(field string, value, min, max float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return telemetry.NewIngestError(telemetry.KindOutOfBounds, field, "must be a finite number")
	}
	if value < min || value > max {
		return telemetry.NewIngestError(telemetry.KindOutOfBounds, field,
			fmt.Sprintf("must be between %g and %g, got %g", min, max, value))
	}
	return nil
}
