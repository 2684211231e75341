package notify

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	alertapp "parking-monitor/internal/alerts/application"
	"parking-monitor/internal/observability/metrics"
)

const (
	defaultQueueSize    = 256
	defaultQueueTimeout = 15 * time.Second
)

// Queue decouples slow channels from the ingest path. Notify never blocks;
// events are dropped and counted when the buffer is full.
type Queue struct {
	next    alertapp.AlertNotifier
	events  chan alertapp.AlertEvent
	timeout time.Duration
	logger  zerolog.Logger
}

// NewQueue constructs a queue in front of next.
func NewQueue(next alertapp.AlertNotifier, size int, logger zerolog.Logger) (*Queue, error) {
	if next == nil {
		return nil, errors.New("notify queue: nil notifier")
	}
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Queue{
		next:    next,
		events:  make(chan alertapp.AlertEvent, size),
		timeout: defaultQueueTimeout,
		logger:  logger,
	}, nil
}

// Notify enqueues event.
func (q *Queue) Notify(_ context.Context, event alertapp.AlertEvent) {
	if q == nil {
		return
	}
	select {
	case q.events <- event:
	default:
		metrics.IncNotification("queue", "dropped")
		q.logger.Warn().
			Str("alert_id", event.Alert.ID).
			Str("event", event.Type).
			Msg("notification queue full, event dropped")
	}
}

// Serve drains the queue until ctx is done.
func (q *Queue) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-q.events:
			sendCtx, cancel := context.WithTimeout(ctx, q.timeout)
			q.next.Notify(sendCtx, event)
			cancel()
		}
	}
}

// Pending returns the number of queued events.
func (q *Queue) Pending() int {
	return len(q.events)
}

func (q *Queue) String() string { return "alert-notify-queue" }
