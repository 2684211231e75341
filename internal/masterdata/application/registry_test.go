package application

import (
	"context"
	"errors"
	"testing"
	"time"

	masterdata "parking-monitor/internal/masterdata/domain"
	"parking-monitor/internal/masterdata/infrastructure/memory"
)

type purgeRecorder struct {
	codes []string
}

func (p *purgeRecorder) PurgeDevices(_ context.Context, codes []string) error {
	p.codes = append(p.codes, codes...)
	return nil
}

func newTestRegistry(t *testing.T) (*Registry, *memory.Catalog) {
	t.Helper()
	catalog := memory.NewCatalog()
	registry, err := NewRegistry(catalog.Zones(), catalog.Devices())
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	ctx := context.Background()
	if err := registry.SaveZone(ctx, &masterdata.Zone{Code: "A", Name: "Zone A", TotalSlots: 10, DailyTarget: 20}); err != nil {
		t.Fatalf("save zone: %v", err)
	}
	devices := []masterdata.Device{
		{Code: "dev-1", ZoneCode: "A", SlotNumber: "S001", Active: true},
		{Code: "dev-2", ZoneCode: "A", SlotNumber: "S002", Active: true},
		{Code: "dev-off", ZoneCode: "A", SlotNumber: "S003", Active: false},
	}
	for i := range devices {
		if err := registry.SaveDevice(ctx, &devices[i]); err != nil {
			t.Fatalf("save device %s: %v", devices[i].Code, err)
		}
	}
	return registry, catalog
}

func TestNewRegistryRejectsNil(t *testing.T) {
	if _, err := NewRegistry(nil, nil); err == nil {
		t.Fatal("expected error for nil repositories")
	}
}

func TestLookup(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	device, err := registry.Lookup(ctx, "dev-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if device.ZoneCode != "A" || device.SlotNumber != "S001" {
		t.Fatalf("unexpected device: %+v", device)
	}
	if _, err := registry.Lookup(ctx, "missing"); !errors.Is(err, masterdata.ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
	if _, err := registry.Lookup(ctx, ""); !errors.Is(err, masterdata.ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound for empty code, got %v", err)
	}
}

func TestRefreshLastSeenIsMonotonic(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()
	t1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := registry.RefreshLastSeen(ctx, "dev-1", t1); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := registry.RefreshLastSeen(ctx, "dev-1", t1.Add(-time.Minute)); err != nil {
		t.Fatalf("refresh older: %v", err)
	}
	device, _ := registry.Lookup(ctx, "dev-1")
	if device.LastSeen == nil || !device.LastSeen.Equal(t1) {
		t.Fatalf("expected last seen %s, got %v", t1, device.LastSeen)
	}

	if err := registry.RefreshLastSeen(ctx, "dev-1", t1.Add(time.Minute)); err != nil {
		t.Fatalf("refresh newer: %v", err)
	}
	device, _ = registry.Lookup(ctx, "dev-1")
	if !device.LastSeen.Equal(t1.Add(time.Minute)) {
		t.Fatalf("expected last seen to advance, got %v", device.LastSeen)
	}
}

func TestRefreshLastSeenErrors(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := registry.RefreshLastSeen(ctx, "missing", now); !errors.Is(err, masterdata.ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
	if err := registry.RefreshLastSeen(ctx, "dev-off", now); !errors.Is(err, masterdata.ErrDeviceInactive) {
		t.Fatalf("expected ErrDeviceInactive, got %v", err)
	}
}

func TestIsOfflineBoundary(t *testing.T) {
	registry, _ := newTestRegistry(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	atLimit := now.Add(-masterdata.OfflineAfter)
	pastLimit := now.Add(-masterdata.OfflineAfter - time.Second)

	cases := []struct {
		name     string
		lastSeen *time.Time
		offline  bool
	}{
		{name: "never seen", lastSeen: nil, offline: true},
		{name: "exactly two minutes", lastSeen: &atLimit, offline: false},
		{name: "past two minutes", lastSeen: &pastLimit, offline: true},
		{name: "just now", lastSeen: &now, offline: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			device := masterdata.Device{Code: "x", Active: true, LastSeen: tc.lastSeen}
			if got := registry.IsOffline(device, now); got != tc.offline {
				t.Fatalf("expected offline=%v, got %v", tc.offline, got)
			}
		})
	}
}

func TestListOffline(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := registry.RefreshLastSeen(ctx, "dev-1", now.Add(-30*time.Second)); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	offline, err := registry.ListOffline(ctx, now)
	if err != nil {
		t.Fatalf("list offline: %v", err)
	}
	if len(offline) != 1 || offline[0].Code != "dev-2" {
		t.Fatalf("expected only dev-2 offline, got %+v", offline)
	}

	offline, err = registry.ListOffline(ctx, now.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("list offline later: %v", err)
	}
	if len(offline) != 2 {
		t.Fatalf("expected 2 offline devices, got %d", len(offline))
	}
	for _, device := range offline {
		if device.Code == "dev-off" {
			t.Fatal("inactive devices must not be reported offline")
		}
	}
}

func TestSaveDeviceRequiresZone(t *testing.T) {
	registry, _ := newTestRegistry(t)
	err := registry.SaveDevice(context.Background(), &masterdata.Device{Code: "dev-9", ZoneCode: "Z", SlotNumber: "S1", Active: true})
	if !errors.Is(err, masterdata.ErrZoneNotFound) {
		t.Fatalf("expected ErrZoneNotFound, got %v", err)
	}
}

func TestDeleteZoneCascades(t *testing.T) {
	registry, catalog := newTestRegistry(t)
	recorder := &purgeRecorder{}
	catalog.RegisterPurger(recorder)
	ctx := context.Background()

	if err := registry.DeleteZone(ctx, "A"); err != nil {
		t.Fatalf("delete zone: %v", err)
	}
	devices, err := registry.ListDevices(ctx)
	if err != nil {
		t.Fatalf("list devices: %v", err)
	}
	if len(devices) != 0 {
		t.Fatalf("expected devices removed, got %d", len(devices))
	}
	if len(recorder.codes) != 3 {
		t.Fatalf("expected 3 purged device codes, got %v", recorder.codes)
	}
	if err := registry.DeleteZone(ctx, "A"); !errors.Is(err, masterdata.ErrZoneNotFound) {
		t.Fatalf("expected ErrZoneNotFound on second delete, got %v", err)
	}
}
