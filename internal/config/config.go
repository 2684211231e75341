package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the service configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Rules    RulesConfig    `yaml:"rules"`
	Sweep    SweepConfig    `yaml:"sweep"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Notify   NotifyConfig   `yaml:"notify"`
	Kafka    KafkaConfig    `yaml:"kafka"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig selects the store. An empty URL selects the in-memory store.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RulesConfig configures anomaly rules.
type RulesConfig struct {
	PowerThresholdW float64          `yaml:"power_threshold_w"`
	LowVoltage      LowVoltageConfig `yaml:"low_voltage"`
}

// LowVoltageConfig configures the optional LOW_VOLTAGE rule.
type LowVoltageConfig struct {
	Enabled bool    `yaml:"enabled"`
	MinV    float64 `yaml:"min_v"`
	MaxV    float64 `yaml:"max_v"`
}

// SweepConfig configures the offline sweeper.
type SweepConfig struct {
	Interval     time.Duration `yaml:"interval"`
	StoreTimeout time.Duration `yaml:"store_timeout"`
}

// IngestConfig configures the ingestion pipeline.
type IngestConfig struct {
	BatchWorkers int           `yaml:"batch_workers"`
	StoreTimeout time.Duration `yaml:"store_timeout"`
}

// NotifyConfig configures alert notification channels.
type NotifyConfig struct {
	WebhookURL   string        `yaml:"webhook_url"`
	DashboardURL string        `yaml:"dashboard_url"`
	Cooldown     time.Duration `yaml:"cooldown"`
	Escalation   time.Duration `yaml:"escalation"`
	QueueSize    int           `yaml:"queue_size"`
}

// KafkaConfig configures the alert event publisher. No brokers disables it.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{MaxOpenConns: 20},
		Log:      LogConfig{Level: "info", Format: "json"},
		Rules: RulesConfig{
			PowerThresholdW: 1500,
			LowVoltage:      LowVoltageConfig{MinV: 215, MaxV: 225},
		},
		Sweep: SweepConfig{
			Interval:     time.Minute,
			StoreTimeout: 10 * time.Second,
		},
		Ingest: IngestConfig{
			BatchWorkers: 8,
			StoreTimeout: 5 * time.Second,
		},
		Notify: NotifyConfig{
			Cooldown:   0,
			Escalation: 15 * time.Minute,
			QueueSize:  256,
		},
		Kafka: KafkaConfig{Topic: "parking.alerts"},
	}
}

// Load builds the configuration from defaults, the YAML file named by
// PARKING_CONFIG, then environment overrides.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("PARKING_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c Config) Validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("config: http addr required")
	}
	if c.Rules.PowerThresholdW <= 0 {
		return errors.New("config: power threshold must be positive")
	}
	if c.Rules.LowVoltage.Enabled && c.Rules.LowVoltage.MinV <= 0 {
		return errors.New("config: low voltage minimum must be positive")
	}
	if c.Sweep.Interval <= 0 {
		return errors.New("config: sweep interval must be positive")
	}
	if c.Sweep.StoreTimeout <= 0 || c.Ingest.StoreTimeout <= 0 {
		return errors.New("config: store timeouts must be positive")
	}
	if c.Ingest.BatchWorkers <= 0 {
		return errors.New("config: batch workers must be positive")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}

// UseMemoryStore reports whether no database is configured.
func (c Config) UseMemoryStore() bool {
	return strings.TrimSpace(c.Database.URL) == ""
}

func applyEnv(cfg *Config) error {
	cfg.Database.URL = getenvDefault("DATABASE_URL", cfg.Database.URL)
	cfg.HTTP.Addr = getenvDefault("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.Log.Level = getenvDefault("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getenvDefault("LOG_FORMAT", cfg.Log.Format)
	cfg.Notify.WebhookURL = getenvDefault("ALERT_WEBHOOK_URL", cfg.Notify.WebhookURL)
	cfg.Notify.DashboardURL = getenvDefault("DASHBOARD_URL", cfg.Notify.DashboardURL)
	cfg.Kafka.Topic = getenvDefault("KAFKA_ALERT_TOPIC", cfg.Kafka.Topic)
	if brokers := splitCSV(os.Getenv("KAFKA_BROKERS")); len(brokers) > 0 {
		cfg.Kafka.Brokers = brokers
	}

	var err error
	if cfg.Sweep.Interval, err = getenvDuration("SWEEP_INTERVAL", cfg.Sweep.Interval); err != nil {
		return err
	}
	if cfg.Sweep.StoreTimeout, err = getenvDuration("STORE_TIMEOUT", cfg.Sweep.StoreTimeout); err != nil {
		return err
	}
	if cfg.Ingest.StoreTimeout, err = getenvDuration("STORE_TIMEOUT", cfg.Ingest.StoreTimeout); err != nil {
		return err
	}
	if cfg.Rules.PowerThresholdW, err = getenvFloat("POWER_THRESHOLD_W", cfg.Rules.PowerThresholdW); err != nil {
		return err
	}
	if value := os.Getenv("LOW_VOLTAGE_MIN_V"); value != "" {
		if cfg.Rules.LowVoltage.MinV, err = getenvFloat("LOW_VOLTAGE_MIN_V", cfg.Rules.LowVoltage.MinV); err != nil {
			return err
		}
		cfg.Rules.LowVoltage.Enabled = true
	}
	if cfg.Ingest.BatchWorkers, err = getenvInt("BATCH_WORKERS", cfg.Ingest.BatchWorkers); err != nil {
		return err
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvFloat(key string, fallback float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback, fmt.Errorf("config: %s: %w", key, err)
	}
	return parsed, nil
}

func getenvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback, fmt.Errorf("config: %s: %w", key, err)
	}
	return parsed, nil
}

func getenvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback, fmt.Errorf("config: %s: %w", key, err)
	}
	return parsed, nil
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
