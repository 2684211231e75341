package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	telemetry "parking-monitor/internal/telemetry/domain"
)

type sampleKey struct {
	device string
	ts     int64
}

// SampleRepository is an in-memory telemetry store for demo/testing.
// The (device, timestamp) check and insert happen under one lock.
type SampleRepository struct {
	mu      sync.RWMutex
	nextID  int64
	samples []telemetry.Sample
	index   map[sampleKey]struct{}
}

// NewSampleRepository constructs a repository.
func NewSampleRepository() *SampleRepository {
	return &SampleRepository{index: make(map[sampleKey]struct{})}
}

// Append stores a sample or returns telemetry.ErrDuplicate.
func (r *SampleRepository) Append(ctx context.Context, sample *telemetry.Sample) error {
	_ = ctx
	if sample == nil || sample.DeviceCode == "" || sample.Timestamp.IsZero() {
		return errors.New("telemetry repo: invalid sample")
	}
	key := sampleKey{device: sample.DeviceCode, ts: sample.Timestamp.UnixNano()}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.index[key]; exists {
		return telemetry.ErrDuplicate
	}
	r.nextID++
	sample.ID = r.nextID
	if sample.ReceivedAt.IsZero() {
		sample.ReceivedAt = time.Now().UTC()
	}
	r.index[key] = struct{}{}
	r.samples = append(r.samples, *sample)
	return nil
}

// ListByDevice returns samples within [from, to), newest first.
func (r *SampleRepository) ListByDevice(ctx context.Context, deviceCode string, from, to time.Time) ([]telemetry.Sample, error) {
	_ = ctx
	r.mu.RLock()
	var result []telemetry.Sample
	for _, sample := range r.samples {
		if sample.DeviceCode != deviceCode || sample.Timestamp.Before(from) || !sample.Timestamp.Before(to) {
			continue
		}
		result = append(result, sample)
	}
	r.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp.After(result[j].Timestamp) })
	return result, nil
}

// Count returns the number of stored samples.
func (r *SampleRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.samples)
}

// PurgeDevices drops samples of deleted devices.
func (r *SampleRepository) PurgeDevices(ctx context.Context, codes []string) error {
	_ = ctx
	drop := toSet(codes)
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.samples[:0]
	for _, sample := range r.samples {
		if _, ok := drop[sample.DeviceCode]; ok {
			delete(r.index, sampleKey{device: sample.DeviceCode, ts: sample.Timestamp.UnixNano()})
			continue
		}
		kept = append(kept, sample)
	}
	r.samples = kept
	return nil
}

// OccupancyRepository is an in-memory occupancy log for demo/testing.
type OccupancyRepository struct {
	mu     sync.RWMutex
	nextID int64
	events []telemetry.OccupancyEvent
}

// NewOccupancyRepository constructs a repository.
func NewOccupancyRepository() *OccupancyRepository {
	return &OccupancyRepository{}
}

// Append stores an event.
func (r *OccupancyRepository) Append(ctx context.Context, event *telemetry.OccupancyEvent) error {
	_ = ctx
	if event == nil || event.DeviceCode == "" || event.Timestamp.IsZero() {
		return errors.New("occupancy repo: invalid event")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	event.ID = r.nextID
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	r.events = append(r.events, *event)
	return nil
}

// ListByDevice returns events within [from, to), newest first.
func (r *OccupancyRepository) ListByDevice(ctx context.Context, deviceCode string, from, to time.Time) ([]telemetry.OccupancyEvent, error) {
	_ = ctx
	r.mu.RLock()
	var result []telemetry.OccupancyEvent
	for _, event := range r.events {
		if event.DeviceCode != deviceCode || event.Timestamp.Before(from) || !event.Timestamp.Before(to) {
			continue
		}
		result = append(result, event)
	}
	r.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool { return newer(result[i], result[j]) })
	return result, nil
}

// LatestFor returns the newest event of a device.
func (r *OccupancyRepository) LatestFor(ctx context.Context, deviceCode string) (*telemetry.OccupancyEvent, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *telemetry.OccupancyEvent
	for i := range r.events {
		event := r.events[i]
		if event.DeviceCode != deviceCode {
			continue
		}
		if latest == nil || newer(event, *latest) {
			copied := event
			latest = &copied
		}
	}
	return latest, nil
}

// LatestAll returns the newest event per device in one pass.
func (r *OccupancyRepository) LatestAll(ctx context.Context) (map[string]telemetry.OccupancyEvent, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[string]telemetry.OccupancyEvent)
	for _, event := range r.events {
		current, ok := result[event.DeviceCode]
		if !ok || newer(event, current) {
			result[event.DeviceCode] = event
		}
	}
	return result, nil
}

// CountByDevice counts events per device in [from, to).
func (r *OccupancyRepository) CountByDevice(ctx context.Context, from, to time.Time) (map[string]int, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[string]int)
	for _, event := range r.events {
		if event.Timestamp.Before(from) || !event.Timestamp.Before(to) {
			continue
		}
		result[event.DeviceCode]++
	}
	return result, nil
}

// PurgeDevices drops events of deleted devices.
func (r *OccupancyRepository) PurgeDevices(ctx context.Context, codes []string) error {
	_ = ctx
	drop := toSet(codes)
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.events[:0]
	for _, event := range r.events {
		if _, ok := drop[event.DeviceCode]; !ok {
			kept = append(kept, event)
		}
	}
	r.events = kept
	return nil
}

// newer orders by timestamp, then by insertion id.
func newer(a, b telemetry.OccupancyEvent) bool {
	if a.Timestamp.Equal(b.Timestamp) {
		return a.ID > b.ID
	}
	return a.Timestamp.After(b.Timestamp)
}

func toSet(codes []string) map[string]struct{} {
	set := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		set[code] = struct{}{}
	}
	return set
}
