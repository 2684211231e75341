package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	alertapp "parking-monitor/internal/alerts/application"
	alerts "parking-monitor/internal/alerts/domain"
)

// SweepRunner triggers an offline sweep on demand.
type SweepRunner interface {
	RunOnce(ctx context.Context, now time.Time) (alertapp.SweepResult, error)
	Now() time.Time
}

// Handler provides alert HTTP endpoints.
type Handler struct {
	service *alertapp.Service
	sweeper SweepRunner
	stream  *StreamHandler
	logger  zerolog.Logger
}

// NewHandler constructs a handler. sweeper and stream may be nil.
func NewHandler(service *alertapp.Service, sweeper SweepRunner, stream *StreamHandler, logger zerolog.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("alerts handler: nil service")
	}
	return &Handler{service: service, sweeper: sweeper, stream: stream, logger: logger}, nil
}

// Routes mounts the alert endpoints under r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Patch("/{id}/acknowledge/", h.handleAcknowledge)
	r.Patch("/{id}/acknowledge", h.handleAcknowledge)
	if h.stream != nil {
		r.Method(http.MethodGet, "/stream", h.stream)
	}
	if h.sweeper != nil {
		r.Post("/sweep", h.handleSweep)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error().Err(err).Msg("list alerts failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	alert, err := h.service.Acknowledge(r.Context(), id)
	if err != nil {
		if errors.Is(err, alerts.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Alert not found")
			return
		}
		h.logger.Error().Err(err).Str("alert_id", id).Msg("acknowledge alert failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Alert acknowledged",
		"alert":   alert,
	})
}

func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.sweeper.RunOnce(r.Context(), h.sweeper.Now())
	if err != nil {
		h.logger.Error().Err(err).Msg("manual offline sweep failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  "sweep failed",
			"result": result,
		})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func parseFilter(r *http.Request) (alerts.Filter, error) {
	var filter alerts.Filter
	query := r.URL.Query()
	if value := query.Get("severity"); value != "" {
		severity, err := alerts.ParseSeverity(value)
		if err != nil {
			return filter, errors.New("severity must be one of INFO, WARNING, CRITICAL")
		}
		filter.Severity = &severity
	}
	if value := query.Get("acknowledged"); value != "" {
		acked, err := strconv.ParseBool(value)
		if err != nil {
			return filter, errors.New("acknowledged must be true or false")
		}
		filter.Acknowledged = &acked
	}
	return filter, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
