package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PARKING_CONFIG", "")
	t.Setenv("DATABASE_URL", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.UseMemoryStore() {
		t.Fatal("expected memory store without DATABASE_URL")
	}
	if cfg.Rules.PowerThresholdW != 1500 {
		t.Fatalf("expected 1500W threshold, got %v", cfg.Rules.PowerThresholdW)
	}
	if cfg.Sweep.Interval != time.Minute {
		t.Fatalf("expected 1m sweep interval, got %s", cfg.Sweep.Interval)
	}
	if cfg.Rules.LowVoltage.Enabled {
		t.Fatal("expected low voltage rule disabled by default")
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "parking.yaml")
	content := []byte(`
http:
  addr: ":9090"
log:
  level: debug
  format: console
rules:
  power_threshold_w: 1800
  low_voltage:
    enabled: true
    min_v: 210
    max_v: 230
sweep:
  interval: 30s
kafka:
  brokers: ["k1:9092"]
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PARKING_CONFIG", path)
	t.Setenv("HTTP_ADDR", ":7070")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("DATABASE_URL", "postgres://localhost/parking")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":7070" {
		t.Fatalf("expected env to override addr, got %s", cfg.HTTP.Addr)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "console" {
		t.Fatalf("unexpected log config: %+v", cfg.Log)
	}
	if cfg.Rules.PowerThresholdW != 1800 {
		t.Fatalf("expected yaml threshold, got %v", cfg.Rules.PowerThresholdW)
	}
	if !cfg.Rules.LowVoltage.Enabled || cfg.Rules.LowVoltage.MinV != 210 {
		t.Fatalf("unexpected low voltage config: %+v", cfg.Rules.LowVoltage)
	}
	if cfg.Sweep.Interval != 30*time.Second {
		t.Fatalf("expected 30s interval, got %s", cfg.Sweep.Interval)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "b:9092" {
		t.Fatalf("expected env brokers, got %v", cfg.Kafka.Brokers)
	}
	if cfg.UseMemoryStore() {
		t.Fatal("expected postgres store with DATABASE_URL")
	}
}

func TestLoadRejectsInvalidEnv(t *testing.T) {
	t.Setenv("PARKING_CONFIG", "")
	t.Setenv("SWEEP_INTERVAL", "soon")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestLowVoltageEnvEnablesRule(t *testing.T) {
	t.Setenv("PARKING_CONFIG", "")
	t.Setenv("LOW_VOLTAGE_MIN_V", "212.5")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Rules.LowVoltage.Enabled || cfg.Rules.LowVoltage.MinV != 212.5 {
		t.Fatalf("unexpected low voltage config: %+v", cfg.Rules.LowVoltage)
	}
}

func TestValidateRejectsUnknownLogFormat(t *testing.T) {
	cfg := Default()
	cfg.Log.Format = "xml"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown log format")
	}
}
