package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	alerts "parking-monitor/internal/alerts/domain"
	masterdata "parking-monitor/internal/masterdata/domain"
	"parking-monitor/internal/observability/metrics"
)

const (
	defaultSweepInterval = time.Minute
	defaultStoreTimeout  = 10 * time.Second
)

// OfflineLister lists active devices past the offline threshold.
type OfflineLister interface {
	ListOffline(ctx context.Context, now time.Time) ([]masterdata.Device, error)
}

// Raiser turns findings into alerts.
type Raiser interface {
	Raise(ctx context.Context, finding alerts.Finding) (Outcome, *alerts.Alert, error)
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Offline    int `json:"offline"`
	Created    int `json:"created"`
	Suppressed int `json:"suppressed"`
	Failed     int `json:"failed"`
}

// Sweeper periodically raises DEVICE_OFFLINE alerts for silent devices.
type Sweeper struct {
	devices      OfflineLister
	raiser       Raiser
	clock        Clock
	logger       zerolog.Logger
	interval     time.Duration
	storeTimeout time.Duration
}

// SweeperOption customizes the sweeper.
type SweeperOption func(*Sweeper)

// WithSweepInterval sets the tick interval.
func WithSweepInterval(interval time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithStoreTimeout bounds each sweep.
func WithStoreTimeout(timeout time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if timeout > 0 {
			s.storeTimeout = timeout
		}
	}
}

// WithSweeperClock assigns a clock.
func WithSweeperClock(clock Clock) SweeperOption {
	return func(s *Sweeper) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithSweeperLogger assigns a logger.
func WithSweeperLogger(logger zerolog.Logger) SweeperOption {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

// NewSweeper constructs an offline sweeper.
func NewSweeper(devices OfflineLister, raiser Raiser, opts ...SweeperOption) (*Sweeper, error) {
	if devices == nil {
		return nil, errors.New("sweeper: nil device lister")
	}
	if raiser == nil {
		return nil, errors.New("sweeper: nil raiser")
	}
	sweeper := &Sweeper{
		devices:      devices,
		raiser:       raiser,
		clock:        systemClock{},
		logger:       zerolog.Nop(),
		interval:     defaultSweepInterval,
		storeTimeout: defaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(sweeper)
	}
	return sweeper, nil
}

// RunOnce raises a DEVICE_OFFLINE finding for every offline device at now.
// A failure on one device does not stop the others.
func (s *Sweeper) RunOnce(ctx context.Context, now time.Time) (SweepResult, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	var result SweepResult
	offline, err := s.devices.ListOffline(ctx, now)
	if err != nil {
		metrics.ObserveSweep(metrics.ResultError, 0, time.Since(start))
		return result, fmt.Errorf("sweeper: list offline: %w", err)
	}
	result.Offline = len(offline)

	var errs []error
	for _, device := range offline {
		finding := alerts.OfflineFinding(device.Code, device.LastSeen, masterdata.OfflineAfter)
		outcome, _, err := s.raiser.Raise(ctx, finding)
		if err != nil {
			result.Failed++
			errs = append(errs, err)
			continue
		}
		switch outcome {
		case OutcomeCreated:
			result.Created++
		case OutcomeSuppressed:
			result.Suppressed++
		}
	}

	outcome := metrics.ResultSuccess
	if len(errs) > 0 {
		outcome = metrics.ResultError
	}
	metrics.ObserveSweep(outcome, result.Created, time.Since(start))
	return result, errors.Join(errs...)
}

// Serve runs sweeps on every tick until ctx is done. A failed sweep is
// logged and retried on the next tick.
func (s *Sweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info().Dur("interval", s.interval).Msg("offline sweeper started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			result, err := s.RunOnce(ctx, s.clock.Now().UTC())
			if err != nil {
				s.logger.Error().Err(err).Msg("offline sweep failed")
				continue
			}
			if result.Created > 0 {
				s.logger.Info().
					Int("offline", result.Offline).
					Int("created", result.Created).
					Int("suppressed", result.Suppressed).
					Msg("offline sweep raised alerts")
			}
		}
	}
}

// Now exposes the sweeper clock to manual triggers.
func (s *Sweeper) Now() time.Time {
	return s.clock.Now().UTC()
}

func (s *Sweeper) String() string { return "offline-sweeper" }
