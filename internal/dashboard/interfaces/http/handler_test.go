package http

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	alerts "parking-monitor/internal/alerts/domain"
	dashboard "parking-monitor/internal/dashboard/application"
	masterdata "parking-monitor/internal/masterdata/domain"
	telemetry "parking-monitor/internal/telemetry/domain"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type catalogStub struct{}

func (catalogStub) ListZones(context.Context) ([]masterdata.Zone, error) {
	return []masterdata.Zone{{Code: "A", Name: "Zone A", TotalSlots: 1, DailyTarget: 10}}, nil
}

func (catalogStub) ListDevices(context.Context) ([]masterdata.Device, error) {
	return []masterdata.Device{{Code: "a-1", ZoneCode: "A", SlotNumber: "1", Active: true}}, nil
}

type occupancyStub struct{}

func (occupancyStub) LatestAll(context.Context) (map[string]telemetry.OccupancyEvent, error) {
	return map[string]telemetry.OccupancyEvent{"a-1": {DeviceCode: "a-1", Occupied: true}}, nil
}

func (occupancyStub) CountByDevice(context.Context, time.Time, time.Time) (map[string]int, error) {
	return map[string]int{"a-1": 8}, nil
}

type alertCountStub struct{}

func (alertCountStub) CountSince(context.Context, time.Time, time.Time) (map[alerts.Severity]int, error) {
	return map[alerts.Severity]int{alerts.SeverityCritical: 1}, nil
}

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	service, err := dashboard.NewService(catalogStub{}, occupancyStub{}, alertCountStub{}, dashboard.WithClock(fixedClock{now}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	handler, err := NewHandler(service, zerolog.Nop())
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	r := chi.NewRouter()
	r.Route("/api/dashboard", handler.Routes)
	return r
}

func TestSummaryJSON(t *testing.T) {
	router := newRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/dashboard/summary/?date=2026-02-28", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var summary dashboard.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary.Date != "2026-02-28" {
		t.Fatalf("unexpected date %s", summary.Date)
	}
	if summary.Totals.TotalEvents != 8 || summary.Totals.CurrentOccupancy != 1 || summary.Totals.CriticalAlerts != 1 {
		t.Fatalf("unexpected totals %+v", summary.Totals)
	}
	if len(summary.Zones) != 1 || summary.Zones[0].Efficiency != 80 || summary.Zones[0].Status != dashboard.StatusGood {
		t.Fatalf("unexpected zones %+v", summary.Zones)
	}
}

func TestSummaryBadDate(t *testing.T) {
	router := newRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/dashboard/summary?date=yesterday", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "YYYY-MM-DD") {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestSummaryExports(t *testing.T) {
	router := newRouter(t)
	cases := []struct {
		path        string
		contentType string
		magic       []byte
	}{
		{path: "/api/dashboard/summary.xlsx", contentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", magic: []byte("PK")},
		{path: "/api/dashboard/summary.pdf", contentType: "application/pdf", magic: []byte("%PDF")},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", tc.path, rec.Code)
		}
		if got := rec.Header().Get("Content-Type"); got != tc.contentType {
			t.Fatalf("%s: unexpected content type %s", tc.path, got)
		}
		if !strings.Contains(rec.Header().Get("Content-Disposition"), "parking-summary-2026-03-01") {
			t.Fatalf("%s: unexpected disposition %s", tc.path, rec.Header().Get("Content-Disposition"))
		}
		if !bytes.HasPrefix(rec.Body.Bytes(), tc.magic) {
			t.Fatalf("%s: unexpected body prefix", tc.path)
		}
	}
}
