package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	telemetry "parking-monitor/internal/telemetry/domain"
)

const maxBodyBytes = 4 << 20

// Ingestor is the ingestion pipeline as seen by the transport.
type Ingestor interface {
	SubmitTelemetry(ctx context.Context, in telemetry.TelemetryInput) (*telemetry.Sample, error)
	SubmitTelemetryBatch(ctx context.Context, inputs []telemetry.TelemetryInput) telemetry.BatchResult
	SubmitOccupancy(ctx context.Context, in telemetry.OccupancyInput) (*telemetry.OccupancyEvent, error)
}

// IngestHandler serves the device-facing ingest endpoints.
type IngestHandler struct {
	ingestor Ingestor
	logger   zerolog.Logger
}

// NewIngestHandler constructs an ingest handler.
func NewIngestHandler(ingestor Ingestor, logger zerolog.Logger) (*IngestHandler, error) {
	if ingestor == nil {
		return nil, errors.New("telemetry ingest: nil ingestor")
	}
	return &IngestHandler{ingestor: ingestor, logger: logger}, nil
}

// Routes mounts the ingest endpoints under r.
func (h *IngestHandler) Routes(r chi.Router) {
	r.Post("/telemetry/", h.handleTelemetry)
	r.Post("/telemetry", h.handleTelemetry)
	r.Post("/telemetry/bulk/", h.handleBulk)
	r.Post("/telemetry/bulk", h.handleBulk)
	r.Post("/parking-log/", h.handleOccupancy)
	r.Post("/parking-log", h.handleOccupancy)
}

func (h *IngestHandler) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	var req telemetryRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json: " + err.Error()})
		return
	}
	if missing := req.fieldErrors(); len(missing) > 0 {
		writeJSON(w, http.StatusBadRequest, missing)
		return
	}

	sample, err := h.ingestor.SubmitTelemetry(r.Context(), req.toInput())
	if err != nil {
		h.writeIngestError(w, err, req.DeviceCode)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Telemetry data received",
		"id":      sample.ID,
		"power":   telemetry.RoundCents(sample.Power()),
	})
}

func (h *IngestHandler) handleBulk(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	var req bulkRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json: " + err.Error()})
		return
	}
	if req.Data == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"data": "This field is required."})
		return
	}

	// Items that fail to decode are reported alongside pipeline errors; the
	// rest are submitted with their original positions remembered.
	var (
		inputs    []telemetry.TelemetryInput
		positions []int
		decodeErr []telemetry.BatchItemError
	)
	for i, raw := range req.Data {
		var item telemetryRequest
		if err := json.Unmarshal(raw, &item); err != nil {
			decodeErr = append(decodeErr, telemetry.BatchItemError{
				Index: i, Kind: telemetry.KindInvalidInput, Detail: err.Error(),
			})
			continue
		}
		if missing := item.fieldErrors(); len(missing) > 0 {
			decodeErr = append(decodeErr, telemetry.BatchItemError{
				Index: i, DeviceCode: item.DeviceCode, Kind: telemetry.KindInvalidInput, Detail: describeMissing(missing),
			})
			continue
		}
		inputs = append(inputs, item.toInput())
		positions = append(positions, i)
	}

	result := telemetry.BatchResult{Errors: []telemetry.BatchItemError{}}
	if len(inputs) > 0 {
		result = h.ingestor.SubmitTelemetryBatch(r.Context(), inputs)
		for i := range result.Errors {
			result.Errors[i].Index = positions[result.Errors[i].Index]
		}
	}
	result.Errors = append(result.Errors, decodeErr...)
	sort.SliceStable(result.Errors, func(a, b int) bool { return result.Errors[a].Index < result.Errors[b].Index })

	writeJSON(w, http.StatusCreated, result)
}

func (h *IngestHandler) handleOccupancy(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	var req occupancyRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json: " + err.Error()})
		return
	}
	if missing := req.fieldErrors(); len(missing) > 0 {
		writeJSON(w, http.StatusBadRequest, missing)
		return
	}
	event, err := h.ingestor.SubmitOccupancy(r.Context(), req.toInput())
	if err != nil {
		h.writeIngestError(w, err, req.DeviceCode)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

func (h *IngestHandler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		h.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("read body error")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read body error"})
		return nil, false
	}
	if len(body) > maxBodyBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "payload too large"})
		return nil, false
	}
	return body, true
}

func (h *IngestHandler) writeIngestError(w http.ResponseWriter, err error, deviceCode string) {
	kind := telemetry.KindOf(err)
	switch {
	case kind == telemetry.KindDuplicate:
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":      "Duplicate telemetry data",
			"error_kind": string(kind),
		})
	case kind.IsValidation():
		body := map[string]string{"error": err.Error(), "error_kind": string(kind)}
		var ingestErr *telemetry.IngestError
		if errors.As(err, &ingestErr) && ingestErr.Field != "" {
			body["field"] = ingestErr.Field
			body["error"] = ingestErr.Detail
		}
		writeJSON(w, http.StatusBadRequest, body)
	default:
		h.logger.Error().Err(err).Str("device_code", deviceCode).Msg("ingest failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":      "internal error",
			"error_kind": string(telemetry.KindInternal),
		})
	}
}

func describeMissing(missing map[string]string) string {
	fields := make([]string, 0, len(missing))
	for field := range missing {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	detail := "missing fields:"
	for _, field := range fields {
		detail += " " + field
	}
	return detail
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
