package application

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	alertapp "parking-monitor/internal/alerts/application"
	alerts "parking-monitor/internal/alerts/domain"
	masterdata "parking-monitor/internal/masterdata/domain"
	"parking-monitor/internal/observability/metrics"
	telemetry "parking-monitor/internal/telemetry/domain"
)

const (
	defaultBatchWorkers = 8
	defaultStoreTimeout = 5 * time.Second

	kindTelemetry = "telemetry"
	kindBatch     = "telemetry_batch"
	kindOccupancy = "occupancy"
)

// DeviceRegistry resolves devices and records their last contact.
type DeviceRegistry interface {
	Lookup(ctx context.Context, code string) (*masterdata.Device, error)
	RefreshLastSeen(ctx context.Context, code string, at time.Time) error
}

// FindingDetector evaluates one stored sample.
type FindingDetector interface {
	Evaluate(sample telemetry.Sample) []alerts.Finding
}

// AlertRaiser records findings as alerts.
type AlertRaiser interface {
	Raise(ctx context.Context, finding alerts.Finding) (alertapp.Outcome, *alerts.Alert, error)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Service is the ingestion pipeline: validate, persist, refresh last contact,
// detect anomalies and raise alerts.
type Service struct {
	registry     DeviceRegistry
	samples      telemetry.SampleRepository
	occupancy    telemetry.OccupancyRepository
	detector     FindingDetector
	raiser       AlertRaiser
	clock        Clock
	logger       zerolog.Logger
	workers      int
	storeTimeout time.Duration
}

// ServiceOption customizes the ingestion service.
type ServiceOption func(*Service)

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

// WithBatchWorkers bounds concurrent batch items.
func WithBatchWorkers(workers int) ServiceOption {
	return func(s *Service) {
		if workers > 0 {
			s.workers = workers
		}
	}
}

// WithStoreTimeout bounds each store call.
func WithStoreTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		if timeout > 0 {
			s.storeTimeout = timeout
		}
	}
}

// NewService constructs the ingestion pipeline.
func NewService(
	registry DeviceRegistry,
	samples telemetry.SampleRepository,
	occupancy telemetry.OccupancyRepository,
	detector FindingDetector,
	raiser AlertRaiser,
	opts ...ServiceOption,
) (*Service, error) {
	if registry == nil {
		return nil, errors.New("ingest: nil registry")
	}
	if samples == nil || occupancy == nil {
		return nil, errors.New("ingest: nil repository")
	}
	if detector == nil {
		return nil, errors.New("ingest: nil detector")
	}
	if raiser == nil {
		return nil, errors.New("ingest: nil alert raiser")
	}
	service := &Service{
		registry:     registry,
		samples:      samples,
		occupancy:    occupancy,
		detector:     detector,
		raiser:       raiser,
		clock:        systemClock{},
		logger:       zerolog.Nop(),
		workers:      defaultBatchWorkers,
		storeTimeout: defaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// SubmitTelemetry validates and stores one sample. Duplicate (device, timestamp)
// pairs fail with KindDuplicate and leave the stored sample untouched.
func (s *Service) SubmitTelemetry(ctx context.Context, in telemetry.TelemetryInput) (*telemetry.Sample, error) {
	start := time.Now()
	sample, err := s.submitTelemetry(ctx, in)
	observe(kindTelemetry, err, time.Since(start))
	return sample, err
}

// SubmitTelemetryBatch processes items independently. A failing item never
// aborts the others. Errors are ordered by item index.
func (s *Service) SubmitTelemetryBatch(ctx context.Context, inputs []telemetry.TelemetryInput) telemetry.BatchResult {
	start := time.Now()
	results := make([]error, len(inputs))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.workers)
	for i := range inputs {
		i := i
		group.Go(func() error {
			_, results[i] = s.submitTelemetry(groupCtx, inputs[i])
			return nil
		})
	}
	_ = group.Wait()

	result := telemetry.BatchResult{Errors: []telemetry.BatchItemError{}}
	for i, err := range results {
		if err == nil {
			result.Created++
			continue
		}
		result.Errors = append(result.Errors, batchItemError(i, inputs[i].DeviceCode, err))
	}
	sort.SliceStable(result.Errors, func(a, b int) bool { return result.Errors[a].Index < result.Errors[b].Index })

	metrics.AddBatchItems(result.Created, len(result.Errors))
	var batchErr error
	if len(result.Errors) > 0 && result.Created == 0 {
		batchErr = errors.New("batch: no items stored")
	}
	observe(kindBatch, batchErr, time.Since(start))
	s.logger.Debug().
		Int("items", len(inputs)).
		Int("created", result.Created).
		Int("failed", len(result.Errors)).
		Msg("telemetry batch processed")
	return result
}

// SubmitOccupancy validates and appends one occupancy event. It does not
// refresh last contact and does not run anomaly detection.
func (s *Service) SubmitOccupancy(ctx context.Context, in telemetry.OccupancyInput) (*telemetry.OccupancyEvent, error) {
	start := time.Now()
	event, err := s.submitOccupancy(ctx, in)
	observe(kindOccupancy, err, time.Since(start))
	return event, err
}

func (s *Service) submitTelemetry(ctx context.Context, in telemetry.TelemetryInput) (*telemetry.Sample, error) {
	now := s.clock.Now().UTC()
	if err := s.validateTelemetry(ctx, in, now); err != nil {
		return nil, err
	}

	sample := &telemetry.Sample{
		DeviceCode:  in.DeviceCode,
		Voltage:     telemetry.RoundCents(in.Voltage),
		Current:     telemetry.RoundCents(in.Current),
		PowerFactor: telemetry.RoundCents(in.PowerFactor),
		Timestamp:   in.Timestamp.UTC().Truncate(time.Microsecond),
		ReceivedAt:  now,
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	err := s.samples.Append(storeCtx, sample)
	cancel()
	if err != nil {
		if errors.Is(err, telemetry.ErrDuplicate) {
			return nil, &telemetry.IngestError{
				Kind:   telemetry.KindDuplicate,
				Field:  "timestamp",
				Detail: "Duplicate telemetry data",
				Err:    err,
			}
		}
		return nil, &telemetry.IngestError{Kind: telemetry.KindInternal, Detail: "store telemetry failed", Err: err}
	}

	s.afterPersist(ctx, *sample)
	return sample, nil
}

// afterPersist refreshes last contact and raises findings. Failures here are
// logged; the sample is already stored.
func (s *Service) afterPersist(ctx context.Context, sample telemetry.Sample) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.registry.RefreshLastSeen(storeCtx, sample.DeviceCode, sample.Timestamp); err != nil {
		metrics.IncIngestError("last_seen_refresh")
		s.logger.Warn().Err(err).Str("device_code", sample.DeviceCode).Msg("refresh last seen failed")
	}

	for _, finding := range s.detector.Evaluate(sample) {
		if _, _, err := s.raiser.Raise(storeCtx, finding); err != nil {
			metrics.IncIngestError("alert_raise")
			s.logger.Error().
				Err(err).
				Str("device_code", finding.DeviceCode).
				Str("alert_type", finding.Type).
				Msg("raise alert failed")
		}
	}
}

func (s *Service) submitOccupancy(ctx context.Context, in telemetry.OccupancyInput) (*telemetry.OccupancyEvent, error) {
	now := s.clock.Now().UTC()
	if err := s.validateOccupancy(ctx, in, now); err != nil {
		return nil, err
	}
	event := &telemetry.OccupancyEvent{
		DeviceCode: in.DeviceCode,
		Occupied:   in.Occupied,
		Timestamp:  in.Timestamp.UTC().Truncate(time.Microsecond),
		CreatedAt:  now,
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.occupancy.Append(storeCtx, event); err != nil {
		return nil, &telemetry.IngestError{Kind: telemetry.KindInternal, Detail: "store occupancy failed", Err: err}
	}
	return event, nil
}

func batchItemError(index int, deviceCode string, err error) telemetry.BatchItemError {
	item := telemetry.BatchItemError{
		Index:      index,
		DeviceCode: deviceCode,
		Kind:       telemetry.KindOf(err),
		Detail:     err.Error(),
	}
	var ingestErr *telemetry.IngestError
	if errors.As(err, &ingestErr) {
		item.Detail = ingestErr.Detail
		if ingestErr.Field != "" {
			item.Detail = ingestErr.Field + ": " + ingestErr.Detail
		}
	}
	if item.Kind == telemetry.KindInternal {
		item.Detail = "internal error"
	}
	return item
}

func observe(kind string, err error, duration time.Duration) {
	if err == nil {
		metrics.ObserveIngest(kind, metrics.ResultSuccess, duration)
		return
	}
	metrics.ObserveIngest(kind, metrics.ResultError, duration)
	metrics.IncIngestError(string(telemetry.KindOf(err)))
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
