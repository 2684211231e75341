package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const (
	metricPrefix = "parking_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	ingestRequests *prometheus.CounterVec
	ingestErrors   *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	batchItems *prometheus.CounterVec

	alertEventsTotal *prometheus.CounterVec

	sweepTotal   *prometheus.CounterVec
	sweepLatency *prometheus.HistogramVec
	sweepRaised  prometheus.Counter

	notifyTotal *prometheus.CounterVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec
)

// Init registers metrics and gauges backed by source. source may be nil.
func Init(source GaugeSource, logger zerolog.Logger) {
	registerOnce.Do(func() {
		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_requests_total",
				Help: "Total ingest requests by kind and result",
			},
			[]string{"kind", "result"},
		)
		ingestErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_errors_total",
				Help: "Total ingest errors by error kind",
			},
			[]string{"reason"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind", "result"},
		)

		batchItems = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "batch_items_total",
				Help: "Total batch items by result",
			},
			[]string{"result"},
		)

		alertEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_events_total",
				Help: "Total alert lifecycle events by type and alert type",
			},
			[]string{"event", "alert_type"},
		)

		sweepTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "offline_sweep_total",
				Help: "Total offline sweeps by result",
			},
			[]string{"result"},
		)
		sweepLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "offline_sweep_latency_seconds",
				Help:    "Offline sweep latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		sweepRaised = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "offline_sweep_alerts_total",
				Help: "DEVICE_OFFLINE alerts created by sweeps",
			},
		)

		notifyTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_notifications_total",
				Help: "Total alert notifications by channel and result",
			},
			[]string{"channel", "result"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "dashboard_export_total",
				Help: "Total dashboard exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "dashboard_export_latency_seconds",
				Help:    "Dashboard export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			ingestRequests,
			ingestErrors,
			ingestLatency,
			batchItems,
			alertEventsTotal,
			sweepTotal,
			sweepLatency,
			sweepRaised,
			notifyTotal,
			exportTotal,
			exportLatency,
		)

		if source != nil {
			registerGauges(source, logger)
		}
	})
}

// ObserveIngest records ingest duration and result for a request kind.
func ObserveIngest(kind, result string, duration time.Duration) {
	if kind == "" {
		kind = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if ingestRequests != nil {
		ingestRequests.WithLabelValues(kind, result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(kind, result).Observe(duration.Seconds())
	}
}

// IncIngestError increments ingest error counter.
func IncIngestError(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if ingestErrors != nil {
		ingestErrors.WithLabelValues(reason).Inc()
	}
}

// AddBatchItems records the per-item outcome of a batch.
func AddBatchItems(created, failed int) {
	if batchItems == nil {
		return
	}
	if created > 0 {
		batchItems.WithLabelValues(resultSuccess).Add(float64(created))
	}
	if failed > 0 {
		batchItems.WithLabelValues(resultError).Add(float64(failed))
	}
}

// IncAlertEvent increments alert lifecycle counters.
func IncAlertEvent(event, alertType string) {
	if event == "" {
		event = "unknown"
	}
	if alertType == "" {
		alertType = "unknown"
	}
	if alertEventsTotal != nil {
		alertEventsTotal.WithLabelValues(event, alertType).Inc()
	}
}

// ObserveSweep records a sweep run.
func ObserveSweep(result string, raised int, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if sweepTotal != nil {
		sweepTotal.WithLabelValues(result).Inc()
	}
	if sweepLatency != nil {
		sweepLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
	if sweepRaised != nil && raised > 0 {
		sweepRaised.Add(float64(raised))
	}
}

// IncNotification counts a delivery attempt on a channel.
func IncNotification(channel, result string) {
	if channel == "" {
		channel = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if notifyTotal != nil {
		notifyTotal.WithLabelValues(channel, result).Inc()
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
