package main

import (
	"bytes"
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	"parking-monitor/internal/logging"
	masterapp "parking-monitor/internal/masterdata/application"
	masterdata "parking-monitor/internal/masterdata/domain"
	masterrepo "parking-monitor/internal/masterdata/infrastructure/postgres"
)

type config struct {
	dsn            string
	baseURL        string
	zonePrefix     string
	zoneCount      int
	devicesPerZone int
	dailyTarget    int
	samples        int
	highPowerRatio float64
	skipCatalog    bool
}

type telemetryItem struct {
	DeviceCode  string  `json:"device_code"`
	Voltage     float64 `json:"voltage"`
	Current     float64 `json:"current"`
	PowerFactor float64 `json:"power_factor"`
	Timestamp   string  `json:"timestamp"`
}

type occupancyItem struct {
	DeviceCode string `json:"device_code"`
	Occupied   bool   `json:"is_occupied"`
	Timestamp  string `json:"timestamp"`
}

type bulkResponse struct {
	Created int `json:"created"`
	Errors  []struct {
		Index  int    `json:"index"`
		Kind   string `json:"error_kind"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

func main() {
	cfg := parseConfig()
	logger := logging.New(logging.Config{Level: "info", Format: "console"})
	if cfg.zoneCount <= 0 || cfg.devicesPerZone <= 0 {
		logger.Fatal().Msg("zones and devices-per-zone must be > 0")
	}

	ctx := context.Background()
	devices := buildDevices(cfg)

	if !cfg.skipCatalog {
		if cfg.dsn == "" {
			logger.Fatal().Msg("PG_DSN or DATABASE_URL is required to seed the catalog")
		}
		if err := seedCatalog(ctx, cfg, devices, logger); err != nil {
			logger.Fatal().Err(err).Msg("seed catalog")
		}
	}

	client := &http.Client{Timeout: 30 * time.Second}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	now := time.Now().UTC().Truncate(time.Second)

	created, failed := 0, 0
	for _, device := range devices {
		items := buildTelemetry(device.Code, cfg.samples, cfg.highPowerRatio, now, rng)
		resp, err := postBulk(ctx, client, cfg.baseURL, items)
		if err != nil {
			logger.Fatal().Err(err).Str("device_code", device.Code).Msg("post telemetry")
		}
		created += resp.Created
		failed += len(resp.Errors)
		for _, itemErr := range resp.Errors {
			logger.Warn().
				Str("device_code", device.Code).
				Int("index", itemErr.Index).
				Str("error_kind", itemErr.Kind).
				Msg(itemErr.Detail)
		}

		event := occupancyItem{
			DeviceCode: device.Code,
			Occupied:   rng.Intn(2) == 0,
			Timestamp:  now.Format(time.RFC3339),
		}
		if err := postJSON(ctx, client, cfg.baseURL+"/api/parking-log/", event, nil); err != nil {
			logger.Fatal().Err(err).Str("device_code", device.Code).Msg("post occupancy")
		}
	}

	logger.Info().
		Int("devices", len(devices)).
		Int("samples_created", created).
		Int("samples_failed", failed).
		Msg("seed complete")
}

func parseConfig() config {
	cfg := config{}
	flag.StringVar(&cfg.dsn, "dsn", getenvDefault("PG_DSN", os.Getenv("DATABASE_URL")), "postgres dsn")
	flag.StringVar(&cfg.baseURL, "base-url", "http://localhost:8080", "parking monitor base url")
	flag.StringVar(&cfg.zonePrefix, "zone-prefix", "Z", "zone code prefix")
	flag.IntVar(&cfg.zoneCount, "zones", 2, "number of zones")
	flag.IntVar(&cfg.devicesPerZone, "devices-per-zone", 5, "devices per zone")
	flag.IntVar(&cfg.dailyTarget, "daily-target", 50, "daily occupancy target per zone")
	flag.IntVar(&cfg.samples, "samples", 10, "telemetry samples per device")
	flag.Float64Var(&cfg.highPowerRatio, "high-power-ratio", 0.1, "share of samples above the power threshold")
	flag.BoolVar(&cfg.skipCatalog, "skip-catalog", false, "only submit telemetry, assume the catalog exists")
	flag.Parse()
	cfg.baseURL = strings.TrimRight(cfg.baseURL, "/")
	return cfg
}

func buildDevices(cfg config) []masterdata.Device {
	devices := make([]masterdata.Device, 0, cfg.zoneCount*cfg.devicesPerZone)
	for z := 1; z <= cfg.zoneCount; z++ {
		zoneCode := fmt.Sprintf("%s%d", cfg.zonePrefix, z)
		for d := 1; d <= cfg.devicesPerZone; d++ {
			devices = append(devices, masterdata.Device{
				Code:       fmt.Sprintf("%s-DEV-%03d", zoneCode, d),
				ZoneCode:   zoneCode,
				SlotNumber: fmt.Sprintf("S%03d", d),
				Active:     true,
			})
		}
	}
	return devices
}

func seedCatalog(ctx context.Context, cfg config, devices []masterdata.Device, logger zerolog.Logger) error {
	db, err := sql.Open("pgx", cfg.dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	registry, err := masterapp.NewRegistry(masterrepo.NewZoneRepository(db), masterrepo.NewDeviceRepository(db))
	if err != nil {
		return err
	}
	for z := 1; z <= cfg.zoneCount; z++ {
		zone := &masterdata.Zone{
			Code:        fmt.Sprintf("%s%d", cfg.zonePrefix, z),
			Name:        fmt.Sprintf("Zone %d", z),
			TotalSlots:  cfg.devicesPerZone,
			DailyTarget: cfg.dailyTarget,
			CreatedAt:   time.Now().UTC(),
		}
		if err := registry.SaveZone(ctx, zone); err != nil {
			return fmt.Errorf("save zone %s: %w", zone.Code, err)
		}
	}
	for i := range devices {
		if err := registry.SaveDevice(ctx, &devices[i]); err != nil {
			return fmt.Errorf("save device %s: %w", devices[i].Code, err)
		}
	}
	logger.Info().Int("zones", cfg.zoneCount).Int("devices", len(devices)).Msg("catalog seeded")
	return nil
}

func buildTelemetry(deviceCode string, count int, highPowerRatio float64, now time.Time, rng *rand.Rand) []telemetryItem {
	items := make([]telemetryItem, 0, count)
	for i := 0; i < count; i++ {
		current := 2 + rng.Float64()*3
		if rng.Float64() < highPowerRatio {
			current = 8 + rng.Float64()*2
		}
		items = append(items, telemetryItem{
			DeviceCode:  deviceCode,
			Voltage:     215 + rng.Float64()*10,
			Current:     current,
			PowerFactor: 0.85 + rng.Float64()*0.1,
			Timestamp:   now.Add(-time.Duration(count-i) * time.Second).Format(time.RFC3339),
		})
	}
	return items
}

func postBulk(ctx context.Context, client *http.Client, baseURL string, items []telemetryItem) (bulkResponse, error) {
	var resp bulkResponse
	err := postJSON(ctx, client, baseURL+"/api/telemetry/bulk/", map[string]any{"data": items}, &resp)
	return resp, err
}

func postJSON(ctx context.Context, client *http.Client, url string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%s: status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
