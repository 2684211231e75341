package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const gaugeTimeout = 2 * time.Second

// GaugeSource answers point-in-time counts for scrape-time gauges.
type GaugeSource interface {
	CountOpenAlerts(ctx context.Context) (int, error)
	CountOfflineDevices(ctx context.Context) (int, error)
}

func registerGauges(source GaugeSource, logger zerolog.Logger) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "alerts_open",
			Help: "Unacknowledged alerts",
		},
		func() float64 {
			return queryCount(logger, "alerts_open", source.CountOpenAlerts)
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "devices_offline",
			Help: "Active devices past the offline threshold",
		},
		func() float64 {
			return queryCount(logger, "devices_offline", source.CountOfflineDevices)
		},
	))
}

func queryCount(logger zerolog.Logger, name string, fn func(context.Context) (int, error)) float64 {
	ctx, cancel := context.WithTimeout(context.Background(), gaugeTimeout)
	defer cancel()
	count, err := fn(ctx)
	if err != nil {
		logger.Warn().Err(err).Str("gauge", name).Msg("metrics query failed")
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
