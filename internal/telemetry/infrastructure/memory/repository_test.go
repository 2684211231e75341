package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	telemetry "parking-monitor/internal/telemetry/domain"
)

func TestSampleAppendRejectsDuplicate(t *testing.T) {
	repo := NewSampleRepository()
	ctx := context.Background()
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	first := &telemetry.Sample{DeviceCode: "dev-1", Voltage: 220, Current: 2, PowerFactor: 0.9, Timestamp: ts}
	if err := repo.Append(ctx, first); err != nil {
		t.Fatalf("append: %v", err)
	}
	if first.ID == 0 {
		t.Fatal("expected id to be assigned")
	}
	second := &telemetry.Sample{DeviceCode: "dev-1", Voltage: 230, Current: 3, PowerFactor: 0.8, Timestamp: ts}
	if err := repo.Append(ctx, second); !errors.Is(err, telemetry.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	other := &telemetry.Sample{DeviceCode: "dev-2", Voltage: 220, Current: 2, PowerFactor: 0.9, Timestamp: ts}
	if err := repo.Append(ctx, other); err != nil {
		t.Fatalf("same timestamp on another device should be accepted: %v", err)
	}

	samples, err := repo.ListByDevice(ctx, "dev-1", ts.Add(-time.Hour), ts.Add(time.Hour))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(samples) != 1 || samples[0].Voltage != 220 {
		t.Fatalf("stored sample must be untouched, got %+v", samples)
	}
}

func TestSampleAppendConcurrentDuplicates(t *testing.T) {
	repo := NewSampleRepository()
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	var mu sync.Mutex
	stored := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Append(context.Background(), &telemetry.Sample{DeviceCode: "dev-1", Voltage: 220, Timestamp: ts})
			if err == nil {
				mu.Lock()
				stored++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if stored != 1 || repo.Count() != 1 {
		t.Fatalf("expected exactly one stored sample, stored=%d count=%d", stored, repo.Count())
	}
}

func TestSamplePurgeAllowsReinsert(t *testing.T) {
	repo := NewSampleRepository()
	ctx := context.Background()
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if err := repo.Append(ctx, &telemetry.Sample{DeviceCode: "dev-1", Timestamp: ts}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := repo.PurgeDevices(ctx, []string{"dev-1"}); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if repo.Count() != 0 {
		t.Fatalf("expected empty store, got %d", repo.Count())
	}
	if err := repo.Append(ctx, &telemetry.Sample{DeviceCode: "dev-1", Timestamp: ts}); err != nil {
		t.Fatalf("append after purge: %v", err)
	}
}

func TestOccupancyLatestAndCounts(t *testing.T) {
	repo := NewOccupancyRepository()
	ctx := context.Background()
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	events := []telemetry.OccupancyEvent{
		{DeviceCode: "dev-1", Occupied: true, Timestamp: day.Add(8 * time.Hour)},
		{DeviceCode: "dev-1", Occupied: false, Timestamp: day.Add(9 * time.Hour)},
		{DeviceCode: "dev-1", Occupied: false, Timestamp: day.Add(9 * time.Hour)},
		{DeviceCode: "dev-2", Occupied: true, Timestamp: day.Add(-time.Hour)},
	}
	for i := range events {
		if err := repo.Append(ctx, &events[i]); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	latest, err := repo.LatestFor(ctx, "dev-1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest == nil || latest.ID != events[2].ID {
		t.Fatalf("expected latest event id %d, got %+v", events[2].ID, latest)
	}
	if missing, _ := repo.LatestFor(ctx, "dev-9"); missing != nil {
		t.Fatalf("expected nil for unknown device, got %+v", missing)
	}

	all, err := repo.LatestAll(ctx)
	if err != nil {
		t.Fatalf("latest all: %v", err)
	}
	if len(all) != 2 || !all["dev-2"].Occupied || all["dev-1"].Occupied {
		t.Fatalf("unexpected latest map: %+v", all)
	}

	counts, err := repo.CountByDevice(ctx, day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts["dev-1"] != 3 || counts["dev-2"] != 0 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}
