package application

import (
	"context"
	"errors"
	"testing"
	"time"

	alertapp "parking-monitor/internal/alerts/application"
	alerts "parking-monitor/internal/alerts/domain"
	alertmemory "parking-monitor/internal/alerts/infrastructure/memory"
	masterapp "parking-monitor/internal/masterdata/application"
	masterdata "parking-monitor/internal/masterdata/domain"
	mastermemory "parking-monitor/internal/masterdata/infrastructure/memory"
	telemetry "parking-monitor/internal/telemetry/domain"
	"parking-monitor/internal/telemetry/infrastructure/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type pipeline struct {
	service   *Service
	registry  *masterapp.Registry
	samples   *memory.SampleRepository
	occupancy *memory.OccupancyRepository
	alerts    *alertmemory.AlertRepository
	now       time.Time
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	catalog := mastermemory.NewCatalog()
	registry, err := masterapp.NewRegistry(catalog.Zones(), catalog.Devices())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if err := registry.SaveZone(ctx, &masterdata.Zone{Code: "A", Name: "Zone A", TotalSlots: 5, DailyTarget: 10}); err != nil {
		t.Fatalf("save zone: %v", err)
	}
	for _, device := range []masterdata.Device{
		{Code: "dev-1", ZoneCode: "A", SlotNumber: "S001", Active: true},
		{Code: "dev-2", ZoneCode: "A", SlotNumber: "S002", Active: true},
		{Code: "dev-off", ZoneCode: "A", SlotNumber: "S003", Active: false},
	} {
		device := device
		if err := registry.SaveDevice(ctx, &device); err != nil {
			t.Fatalf("save device: %v", err)
		}
	}

	alertRepo := alertmemory.NewAlertRepository()
	alertService, err := alertapp.NewService(alertRepo, alertapp.WithClock(fixedClock{now}))
	if err != nil {
		t.Fatalf("alert service: %v", err)
	}
	samples := memory.NewSampleRepository()
	occupancy := memory.NewOccupancyRepository()
	service, err := NewService(registry, samples, occupancy, alerts.DefaultDetector(), alertService,
		WithClock(fixedClock{now}), WithBatchWorkers(3))
	if err != nil {
		t.Fatalf("ingest service: %v", err)
	}
	return &pipeline{
		service:   service,
		registry:  registry,
		samples:   samples,
		occupancy: occupancy,
		alerts:    alertRepo,
		now:       now,
	}
}

func normalInput(device string, ts time.Time) telemetry.TelemetryInput {
	return telemetry.TelemetryInput{DeviceCode: device, Voltage: 220, Current: 2, PowerFactor: 0.9, Timestamp: ts}
}

func TestSubmitTelemetryHighPowerRaisesAlert(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	ts := p.now.Add(-10 * time.Second)

	sample, err := p.service.SubmitTelemetry(ctx, telemetry.TelemetryInput{
		DeviceCode: "dev-1", Voltage: 220, Current: 8, PowerFactor: 0.95, Timestamp: ts,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sample.ID == 0 {
		t.Fatal("expected stored sample id")
	}

	list, _ := p.alerts.List(ctx, alerts.Filter{})
	if len(list) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(list))
	}
	if list[0].Type != alerts.TypeHighPower || list[0].Severity != alerts.SeverityWarning {
		t.Fatalf("unexpected alert: %+v", list[0])
	}
	if list[0].Message != "Abnormal power usage: 1672.00W (threshold: 1500W)" {
		t.Fatalf("unexpected message %q", list[0].Message)
	}

	device, _ := p.registry.Lookup(ctx, "dev-1")
	if device.LastSeen == nil || !device.LastSeen.Equal(ts) {
		t.Fatalf("expected last seen %s, got %v", ts, device.LastSeen)
	}

	// A second high reading while the first alert is open is suppressed.
	if _, err := p.service.SubmitTelemetry(ctx, telemetry.TelemetryInput{
		DeviceCode: "dev-1", Voltage: 230, Current: 9, PowerFactor: 0.9, Timestamp: ts.Add(time.Second),
	}); err != nil {
		t.Fatalf("second submit: %v", err)
	}
	list, _ = p.alerts.List(ctx, alerts.Filter{})
	if len(list) != 1 {
		t.Fatalf("expected alert to stay deduplicated, got %d", len(list))
	}
}

func TestSubmitTelemetryDuplicate(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	ts := p.now.Add(-time.Minute)

	if _, err := p.service.SubmitTelemetry(ctx, normalInput("dev-1", ts)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	second := normalInput("dev-1", ts)
	second.Voltage = 229
	_, err := p.service.SubmitTelemetry(ctx, second)
	if telemetry.KindOf(err) != telemetry.KindDuplicate {
		t.Fatalf("expected Duplicate, got %v", err)
	}
	if !errors.Is(err, telemetry.ErrDuplicate) {
		t.Fatalf("expected wrapped ErrDuplicate, got %v", err)
	}
	stored, _ := p.samples.ListByDevice(ctx, "dev-1", ts.Add(-time.Hour), ts.Add(time.Hour))
	if len(stored) != 1 || stored[0].Voltage != 220 {
		t.Fatalf("stored sample must be unchanged, got %+v", stored)
	}
}

func TestSubmitTelemetrySubMicrosecondDuplicate(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	ts := p.now.Add(-time.Minute).Truncate(time.Microsecond)

	first, err := p.service.SubmitTelemetry(ctx, normalInput("dev-1", ts.Add(100*time.Nanosecond)))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !first.Timestamp.Equal(ts) {
		t.Fatalf("expected timestamp truncated to %s, got %s", ts, first.Timestamp)
	}
	_, err = p.service.SubmitTelemetry(ctx, normalInput("dev-1", ts.Add(600*time.Nanosecond)))
	if telemetry.KindOf(err) != telemetry.KindDuplicate {
		t.Fatalf("expected Duplicate within the same microsecond, got %v", err)
	}
}

func TestSubmitTelemetryValidation(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	ts := p.now.Add(-time.Minute)

	cases := []struct {
		name  string
		input telemetry.TelemetryInput
		kind  telemetry.ErrorKind
		field string
	}{
		{name: "unknown device", input: normalInput("ghost", ts), kind: telemetry.KindUnknownDevice, field: "device_code"},
		{name: "empty device", input: normalInput("", ts), kind: telemetry.KindUnknownDevice, field: "device_code"},
		{name: "inactive device", input: normalInput("dev-off", ts), kind: telemetry.KindInactiveDevice, field: "device_code"},
		{name: "future timestamp", input: normalInput("dev-1", p.now.Add(time.Minute)), kind: telemetry.KindTimestampOutOfRange, field: "timestamp"},
		{name: "stale timestamp", input: normalInput("dev-1", p.now.Add(-25*time.Hour)), kind: telemetry.KindTimestampOutOfRange, field: "timestamp"},
		{name: "zero timestamp", input: normalInput("dev-1", time.Time{}), kind: telemetry.KindTimestampOutOfRange, field: "timestamp"},
		{
			name:  "negative voltage",
			input: telemetry.TelemetryInput{DeviceCode: "dev-1", Voltage: -1, Current: 2, PowerFactor: 0.9, Timestamp: ts},
			kind:  telemetry.KindOutOfBounds, field: "voltage",
		},
		{
			name:  "current too large",
			input: telemetry.TelemetryInput{DeviceCode: "dev-1", Voltage: 220, Current: 10000, PowerFactor: 0.9, Timestamp: ts},
			kind:  telemetry.KindOutOfBounds, field: "current",
		},
		{
			name:  "power factor above one",
			input: telemetry.TelemetryInput{DeviceCode: "dev-1", Voltage: 220, Current: 2, PowerFactor: 1.2, Timestamp: ts},
			kind:  telemetry.KindOutOfBounds, field: "power_factor",
		},
		{
			name:  "unknown device wins over bad voltage",
			input: telemetry.TelemetryInput{DeviceCode: "ghost", Voltage: -5, Current: 2, PowerFactor: 0.9, Timestamp: ts},
			kind:  telemetry.KindUnknownDevice, field: "device_code",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.service.SubmitTelemetry(ctx, tc.input)
			if err == nil {
				t.Fatal("expected error")
			}
			var ingestErr *telemetry.IngestError
			if !errors.As(err, &ingestErr) {
				t.Fatalf("expected IngestError, got %T", err)
			}
			if ingestErr.Kind != tc.kind || ingestErr.Field != tc.field {
				t.Fatalf("expected %s on %s, got %s on %s", tc.kind, tc.field, ingestErr.Kind, ingestErr.Field)
			}
		})
	}
	if p.samples.Count() != 0 {
		t.Fatalf("rejected submissions must not be stored, got %d", p.samples.Count())
	}
}

func TestSubmitTelemetryRoundsToCents(t *testing.T) {
	p := newPipeline(t)
	sample, err := p.service.SubmitTelemetry(context.Background(), telemetry.TelemetryInput{
		DeviceCode: "dev-1", Voltage: 220.456, Current: 2.004, PowerFactor: 0.899, Timestamp: p.now.Add(-time.Second),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sample.Voltage != 220.46 || sample.Current != 2 || sample.PowerFactor != 0.9 {
		t.Fatalf("unexpected rounding: %+v", sample)
	}
}

func TestSubmitTelemetryBatchPartialSuccess(t *testing.T) {
	p := newPipeline(t)
	inputs := make([]telemetry.TelemetryInput, 5)
	for i := range inputs {
		inputs[i] = normalInput("dev-1", p.now.Add(-time.Duration(10-i)*time.Second))
	}
	inputs[3].Timestamp = p.now.Add(time.Hour)

	result := p.service.SubmitTelemetryBatch(context.Background(), inputs)
	if result.Created != 4 {
		t.Fatalf("expected 4 created, got %d", result.Created)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error, got %+v", result.Errors)
	}
	itemErr := result.Errors[0]
	if itemErr.Index != 3 || itemErr.Kind != telemetry.KindTimestampOutOfRange || itemErr.DeviceCode != "dev-1" {
		t.Fatalf("unexpected item error: %+v", itemErr)
	}
	if p.samples.Count() != 4 {
		t.Fatalf("expected 4 stored samples, got %d", p.samples.Count())
	}
}

func TestSubmitTelemetryBatchErrorsOrdered(t *testing.T) {
	p := newPipeline(t)
	ts := p.now.Add(-time.Minute)
	inputs := []telemetry.TelemetryInput{
		normalInput("ghost", ts),
		normalInput("dev-1", ts),
		normalInput("dev-1", ts),
		normalInput("dev-off", ts),
		normalInput("dev-2", ts),
	}
	result := p.service.SubmitTelemetryBatch(context.Background(), inputs)
	if result.Created != 2 {
		t.Fatalf("expected 2 created, got %d", result.Created)
	}
	if len(result.Errors) != 3 {
		t.Fatalf("expected 3 errors, got %+v", result.Errors)
	}
	for i := 1; i < len(result.Errors); i++ {
		if result.Errors[i-1].Index >= result.Errors[i].Index {
			t.Fatalf("errors not ordered by index: %+v", result.Errors)
		}
	}
	if result.Errors[0].Kind != telemetry.KindUnknownDevice || result.Errors[2].Kind != telemetry.KindInactiveDevice {
		t.Fatalf("unexpected error kinds: %+v", result.Errors)
	}
	if result.Errors[1].Kind != telemetry.KindDuplicate {
		t.Fatalf("expected one of the twin samples to be a duplicate, got %+v", result.Errors[1])
	}
}

func TestSubmitTelemetryBatchEmpty(t *testing.T) {
	p := newPipeline(t)
	result := p.service.SubmitTelemetryBatch(context.Background(), nil)
	if result.Created != 0 || result.Errors == nil || len(result.Errors) != 0 {
		t.Fatalf("unexpected empty batch result: %+v", result)
	}
}

func TestSubmitOccupancy(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	ts := p.now.Add(-time.Minute)

	event, err := p.service.SubmitOccupancy(ctx, telemetry.OccupancyInput{DeviceCode: "dev-1", Occupied: true, Timestamp: ts})
	if err != nil {
		t.Fatalf("submit occupancy: %v", err)
	}
	if event.ID == 0 || !event.Occupied {
		t.Fatalf("unexpected event: %+v", event)
	}
	// Repeated flags are accepted.
	if _, err := p.service.SubmitOccupancy(ctx, telemetry.OccupancyInput{DeviceCode: "dev-1", Occupied: true, Timestamp: ts}); err != nil {
		t.Fatalf("repeat occupancy: %v", err)
	}
	device, _ := p.registry.Lookup(ctx, "dev-1")
	if device.LastSeen != nil {
		t.Fatalf("occupancy must not refresh last seen, got %v", device.LastSeen)
	}

	_, err = p.service.SubmitOccupancy(ctx, telemetry.OccupancyInput{DeviceCode: "dev-1", Occupied: false, Timestamp: p.now.Add(time.Minute)})
	if telemetry.KindOf(err) != telemetry.KindTimestampOutOfRange {
		t.Fatalf("expected TimestampOutOfRange, got %v", err)
	}
	_, err = p.service.SubmitOccupancy(ctx, telemetry.OccupancyInput{DeviceCode: "dev-off", Occupied: false, Timestamp: ts})
	if telemetry.KindOf(err) != telemetry.KindInactiveDevice {
		t.Fatalf("expected InactiveDevice, got %v", err)
	}
}

func TestNewServiceRejectsNil(t *testing.T) {
	if _, err := NewService(nil, nil, nil, nil, nil); err == nil {
		t.Fatal("expected error for nil collaborators")
	}
}
