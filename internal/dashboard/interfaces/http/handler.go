package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	dashboard "parking-monitor/internal/dashboard/application"
	"parking-monitor/internal/dashboard/export"
	"parking-monitor/internal/observability/metrics"
)

// Handler serves dashboard endpoints.
type Handler struct {
	service *dashboard.Service
	logger  zerolog.Logger
}

// NewHandler constructs a handler.
func NewHandler(service *dashboard.Service, logger zerolog.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("dashboard handler: nil service")
	}
	return &Handler{service: service, logger: logger}, nil
}

// Routes mounts dashboard endpoints under r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/summary/", h.handleSummary)
	r.Get("/summary", h.handleSummary)
	r.Get("/summary.xlsx", h.handleExport("xlsx"))
	r.Get("/summary.pdf", h.handleExport("pdf"))
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, ok := h.load(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(summary)
}

func (h *Handler) handleExport(format string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, ok := h.load(w, r)
		if !ok {
			return
		}
		start := time.Now()
		var (
			body        []byte
			err         error
			contentType string
		)
		switch format {
		case "xlsx":
			body, err = export.BuildSummaryXLSX(summary)
			contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		default:
			body, err = export.BuildSummaryPDF(summary)
			contentType = "application/pdf"
		}
		if err != nil {
			metrics.ObserveExport(format, metrics.ResultError, time.Since(start))
			h.logger.Error().Err(err).Str("format", format).Msg("dashboard export failed")
			http.Error(w, "export failed", http.StatusInternalServerError)
			return
		}
		metrics.ObserveExport(format, metrics.ResultSuccess, time.Since(start))
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=parking-summary-%s.%s", summary.Date, format))
		_, _ = w.Write(body)
	}
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*dashboard.Summary, bool) {
	day, err := h.service.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return nil, false
	}
	summary, err := h.service.Summary(r.Context(), day)
	if err != nil {
		h.logger.Error().Err(err).Msg("dashboard summary failed")
		http.Error(w, "summary failed", http.StatusInternalServerError)
		return nil, false
	}
	return summary, true
}
