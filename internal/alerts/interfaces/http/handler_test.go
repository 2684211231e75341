package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	alertapp "parking-monitor/internal/alerts/application"
	alerts "parking-monitor/internal/alerts/domain"
	"parking-monitor/internal/alerts/infrastructure/memory"
	masterdata "parking-monitor/internal/masterdata/domain"
)

type offlineStub struct {
	devices []masterdata.Device
}

func (s offlineStub) ListOffline(context.Context, time.Time) ([]masterdata.Device, error) {
	return s.devices, nil
}

func newAlertRouter(t *testing.T, broker *SSEBroker) (http.Handler, *alertapp.Service) {
	t.Helper()
	var opts []alertapp.ServiceOption
	if broker != nil {
		opts = append(opts, alertapp.WithNotifier(broker))
	}
	service, err := alertapp.NewService(memory.NewAlertRepository(), opts...)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	sweeper, err := alertapp.NewSweeper(offlineStub{devices: []masterdata.Device{{Code: "dev-9", Active: true}}}, service)
	if err != nil {
		t.Fatalf("sweeper: %v", err)
	}
	handler, err := NewHandler(service, sweeper, NewStreamHandler(broker), zerolog.Nop())
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	router := chi.NewRouter()
	router.Route("/api/alerts", handler.Routes)
	return router, service
}

func do(router http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestListAlertsWithFilters(t *testing.T) {
	router, service := newAlertRouter(t, nil)
	ctx := context.Background()
	if _, _, err := service.Raise(ctx, alerts.Finding{DeviceCode: "dev-1", Type: alerts.TypeHighPower, Severity: alerts.SeverityWarning, Message: "high"}); err != nil {
		t.Fatalf("raise: %v", err)
	}
	if _, _, err := service.Raise(ctx, alerts.OfflineFinding("dev-2", nil, 2*time.Minute)); err != nil {
		t.Fatalf("raise: %v", err)
	}

	rec := do(router, http.MethodGet, "/api/alerts/")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var list []alerts.Alert
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(list))
	}

	rec = do(router, http.MethodGet, "/api/alerts/?severity=critical&acknowledged=false")
	list = nil
	_ = json.Unmarshal(rec.Body.Bytes(), &list)
	if len(list) != 1 || list[0].DeviceCode != "dev-2" {
		t.Fatalf("unexpected filtered list: %+v", list)
	}

	if rec := do(router, http.MethodGet, "/api/alerts/?severity=LOUD"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad severity, got %d", rec.Code)
	}
	if rec := do(router, http.MethodGet, "/api/alerts/?acknowledged=maybe"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad acknowledged flag, got %d", rec.Code)
	}
}

func TestAcknowledgeEndpoint(t *testing.T) {
	router, service := newAlertRouter(t, nil)
	_, alert, err := service.Raise(context.Background(), alerts.OfflineFinding("dev-1", nil, 2*time.Minute))
	if err != nil {
		t.Fatalf("raise: %v", err)
	}

	rec := do(router, http.MethodPatch, "/api/alerts/"+alert.ID+"/acknowledge/")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Message string       `json:"message"`
		Alert   alerts.Alert `json:"alert"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Message != "Alert acknowledged" || !body.Alert.Acknowledged || body.Alert.AcknowledgedAt == nil {
		t.Fatalf("unexpected body: %+v", body)
	}

	if rec := do(router, http.MethodPatch, "/api/alerts/"+alert.ID+"/acknowledge"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on re-acknowledge without slash, got %d", rec.Code)
	}
	rec = do(router, http.MethodPatch, "/api/alerts/unknown/acknowledge/")
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "Alert not found") {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSweepEndpoint(t *testing.T) {
	router, _ := newAlertRouter(t, nil)
	rec := do(router, http.MethodPost, "/api/alerts/sweep")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var result alertapp.SweepResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Offline != 1 || result.Created != 1 {
		t.Fatalf("unexpected sweep result: %+v", result)
	}
	rec = do(router, http.MethodPost, "/api/alerts/sweep")
	_ = json.Unmarshal(rec.Body.Bytes(), &result)
	if result.Created != 0 || result.Suppressed != 1 {
		t.Fatalf("expected suppression on second sweep, got %+v", result)
	}
}

func TestBrokerDeliversEvents(t *testing.T) {
	broker := NewSSEBroker()
	ch := broker.Subscribe()
	if broker.Clients() != 1 {
		t.Fatalf("expected 1 client, got %d", broker.Clients())
	}

	_, service := newAlertRouter(t, broker)
	if _, _, err := service.Raise(context.Background(), alerts.OfflineFinding("dev-1", nil, 2*time.Minute)); err != nil {
		t.Fatalf("raise: %v", err)
	}

	select {
	case payload := <-ch:
		var event alertapp.AlertEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if event.Type != alertapp.EventCreated || event.Alert.DeviceCode != "dev-1" {
			t.Fatalf("unexpected event: %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	broker.Unsubscribe(ch)
	if broker.Clients() != 0 {
		t.Fatalf("expected no clients, got %d", broker.Clients())
	}
}
