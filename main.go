package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	alertapp "parking-monitor/internal/alerts/application"
	alerts "parking-monitor/internal/alerts/domain"
	alertmemory "parking-monitor/internal/alerts/infrastructure/memory"
	alertrepo "parking-monitor/internal/alerts/infrastructure/postgres"
	alerthttp "parking-monitor/internal/alerts/interfaces/http"
	alertnotify "parking-monitor/internal/alerts/notify"
	"parking-monitor/internal/config"
	dashboard "parking-monitor/internal/dashboard/application"
	dashboardhttp "parking-monitor/internal/dashboard/interfaces/http"
	"parking-monitor/internal/logging"
	masterapp "parking-monitor/internal/masterdata/application"
	masterdata "parking-monitor/internal/masterdata/domain"
	mastermemory "parking-monitor/internal/masterdata/infrastructure/memory"
	masterrepo "parking-monitor/internal/masterdata/infrastructure/postgres"
	"parking-monitor/internal/observability/metrics"
	telemetryapp "parking-monitor/internal/telemetry/application"
	telemetry "parking-monitor/internal/telemetry/domain"
	telemetrymemory "parking-monitor/internal/telemetry/infrastructure/memory"
	telemetryrepo "parking-monitor/internal/telemetry/infrastructure/postgres"
	telemetryhttp "parking-monitor/internal/telemetry/interfaces/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("store setup error")
	}
	defer st.Close()

	registry, err := masterapp.NewRegistry(st.zones, st.devices)
	if err != nil {
		logger.Fatal().Err(err).Msg("registry error")
	}

	// Alert notifications: the SSE broker is fed inline, slow channels go
	// through the queue.
	broker := alerthttp.NewSSEBroker()
	var channels []alertapp.AlertNotifier
	if cfg.Notify.WebhookURL != "" {
		webhook, err := alertnotify.NewWebhookChannel(cfg.Notify.WebhookURL, alertnotify.WithWebhookLogger(logger))
		if err != nil {
			logger.Fatal().Err(err).Msg("webhook channel error")
		}
		notifier, err := alertnotify.NewNotifier(st.alerts, webhook, nil,
			alertnotify.WithEscalation(cfg.Notify.Escalation),
			alertnotify.WithCooldown(cfg.Notify.Cooldown),
			alertnotify.WithDashboardURL(cfg.Notify.DashboardURL),
			alertnotify.WithDeviceReader(registry),
			alertnotify.WithLogger(logger),
		)
		if err != nil {
			logger.Fatal().Err(err).Msg("alert notifier error")
		}
		defer notifier.Close()
		channels = append(channels, notifier)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := alertnotify.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("kafka publisher error")
		}
		defer publisher.Close()
		channels = append(channels, publisher)
	}

	var queue *alertnotify.Queue
	notifiers := []alertapp.AlertNotifier{broker}
	if len(channels) > 0 {
		queue, err = alertnotify.NewQueue(alertnotify.NewMultiNotifier(channels...), cfg.Notify.QueueSize, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("notify queue error")
		}
		notifiers = append(notifiers, queue)
	}

	alertService, err := alertapp.NewService(st.alerts,
		alertapp.WithNotifier(alertnotify.NewMultiNotifier(notifiers...)),
		alertapp.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("alert service error")
	}

	detector := buildDetector(cfg.Rules)
	logger.Info().Strs("rules", detector.Rules()).Msg("anomaly rules loaded")

	ingestService, err := telemetryapp.NewService(registry, st.samples, st.occupancy, detector, alertService,
		telemetryapp.WithLogger(logger),
		telemetryapp.WithBatchWorkers(cfg.Ingest.BatchWorkers),
		telemetryapp.WithStoreTimeout(cfg.Ingest.StoreTimeout),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("ingest service error")
	}

	sweeper, err := alertapp.NewSweeper(registry, alertService,
		alertapp.WithSweepInterval(cfg.Sweep.Interval),
		alertapp.WithStoreTimeout(cfg.Sweep.StoreTimeout),
		alertapp.WithSweeperLogger(logger),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("offline sweeper error")
	}

	dashboardService, err := dashboard.NewService(registry, st.occupancy, st.alerts)
	if err != nil {
		logger.Fatal().Err(err).Msg("dashboard service error")
	}

	metrics.Init(gaugeSource{alerts: st.alerts, registry: registry}, logger)

	ingestHandler, err := telemetryhttp.NewIngestHandler(ingestService, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("ingest handler error")
	}
	alertHandler, err := alerthttp.NewHandler(alertService, sweeper, alerthttp.NewStreamHandler(broker), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("alert handler error")
	}
	dashboardHandler, err := dashboardhttp.NewHandler(dashboardService, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("dashboard handler error")
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(logging.Middleware(logger))
	router.Route("/api", func(r chi.Router) {
		ingestHandler.Routes(r)
		r.Route("/alerts", alertHandler.Routes)
		r.Route("/dashboard", dashboardHandler.Routes)
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	supervisor := suture.New("parking-monitor", suture.Spec{
		EventHook: logging.SupervisorHook(logger),
		Timeout:   cfg.HTTP.ShutdownTimeout,
	})
	supervisor.Add(&httpService{
		server: &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           router,
			ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		},
		shutdownTimeout: cfg.HTTP.ShutdownTimeout,
		logger:          logger,
	})
	supervisor.Add(sweeper)
	if queue != nil {
		supervisor.Add(queue)
	}

	logger.Info().
		Str("addr", cfg.HTTP.Addr).
		Bool("memory_store", cfg.UseMemoryStore()).
		Int("notify_channels", len(channels)).
		Msg("parking monitor starting")
	if err := supervisor.Serve(ctx); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("supervisor stopped")
	}
	logger.Info().Msg("parking monitor stopped")
}

func buildDetector(cfg config.RulesConfig) *alerts.Detector {
	rules := []alerts.Rule{alerts.HighPowerRule{Threshold: cfg.PowerThresholdW}}
	if cfg.LowVoltage.Enabled {
		rules = append(rules, alerts.LowVoltageRule{Min: cfg.LowVoltage.MinV, Max: cfg.LowVoltage.MaxV})
	}
	return alerts.NewDetector(rules...)
}

// ---- Stores ----

type alertStore interface {
	alerts.AlertRepository
	CountOpen(ctx context.Context) (int, error)
}

type stores struct {
	zones     masterdata.ZoneRepository
	devices   masterdata.DeviceRepository
	samples   telemetry.SampleRepository
	occupancy telemetry.OccupancyRepository
	alerts    alertStore
	db        *sql.DB
}

func (s *stores) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func openStores(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*stores, error) {
	if cfg.UseMemoryStore() {
		logger.Warn().Msg("DATABASE_URL not set, using in-memory stores")
		catalog := mastermemory.NewCatalog()
		samples := telemetrymemory.NewSampleRepository()
		occupancy := telemetrymemory.NewOccupancyRepository()
		alertMem := alertmemory.NewAlertRepository()
		catalog.RegisterPurger(samples)
		catalog.RegisterPurger(occupancy)
		catalog.RegisterPurger(alertMem)
		return &stores{
			zones:     catalog.Zones(),
			devices:   catalog.Devices(),
			samples:   samples,
			occupancy: occupancy,
			alerts:    alertMem,
		}, nil
	}

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if cfg.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return &stores{
		zones:     masterrepo.NewZoneRepository(db),
		devices:   masterrepo.NewDeviceRepository(db),
		samples:   telemetryrepo.NewSampleRepository(db),
		occupancy: telemetryrepo.NewOccupancyRepository(db),
		alerts:    alertrepo.NewAlertRepository(db),
		db:        db,
	}, nil
}

// ---- Adapters ----

type gaugeSource struct {
	alerts   alertStore
	registry *masterapp.Registry
}

func (g gaugeSource) CountOpenAlerts(ctx context.Context) (int, error) {
	return g.alerts.CountOpen(ctx)
}

func (g gaugeSource) CountOfflineDevices(ctx context.Context) (int, error) {
	devices, err := g.registry.ListOffline(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return len(devices), nil
}

// httpService runs the API server under the supervisor.
type httpService struct {
	server          *http.Server
	shutdownTimeout time.Duration
	logger          zerolog.Logger
}

func (s *httpService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.server.Addr).Msg("http listening")
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("http shutdown error")
		}
		return ctx.Err()
	}
}

func (s *httpService) String() string { return "http-server" }
