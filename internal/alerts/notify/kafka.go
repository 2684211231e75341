package notify

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	alertapp "parking-monitor/internal/alerts/application"
	"parking-monitor/internal/observability/metrics"
)

// DefaultAlertTopic is the topic alert events are published to.
const DefaultAlertTopic = "parking.alerts"

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// kafkaEnvelope is the wire form of an alert event.
type kafkaEnvelope struct {
	Event       string    `json:"event"`
	PublishedAt time.Time `json:"published_at"`
	Alert       any       `json:"alert"`
}

// KafkaPublisher publishes alert lifecycle events keyed by device code, so all
// events of one device land on the same partition in order.
type KafkaPublisher struct {
	writer kafkaMessageWriter
	topic  string
	logger zerolog.Logger
	now    func() time.Time
}

// NewKafkaPublisher constructs a publisher writing to brokers.
func NewKafkaPublisher(brokers []string, topic string, logger zerolog.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka publisher: no brokers")
	}
	if topic == "" {
		topic = DefaultAlertTopic
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newKafkaPublisher(writer, topic, logger)
}

func newKafkaPublisher(writer kafkaMessageWriter, topic string, logger zerolog.Logger) (*KafkaPublisher, error) {
	if writer == nil {
		return nil, errors.New("kafka publisher: nil writer")
	}
	return &KafkaPublisher{
		writer: writer,
		topic:  topic,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Notify implements AlertNotifier. Failures are logged and counted.
func (p *KafkaPublisher) Notify(ctx context.Context, event alertapp.AlertEvent) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, event); err != nil {
		metrics.IncNotification("kafka", metrics.ResultError)
		p.logger.Error().
			Err(err).
			Str("topic", p.topic).
			Str("alert_id", event.Alert.ID).
			Msg("publish alert event failed")
		return
	}
	metrics.IncNotification("kafka", metrics.ResultSuccess)
}

// Publish writes one event.
func (p *KafkaPublisher) Publish(ctx context.Context, event alertapp.AlertEvent) error {
	value, err := json.Marshal(kafkaEnvelope{
		Event:       event.Type,
		PublishedAt: p.now(),
		Alert:       event.Alert,
	})
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Alert.DeviceCode),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(event.Type)},
			{Key: "alert_type", Value: []byte(event.Alert.Type)},
		},
	})
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
