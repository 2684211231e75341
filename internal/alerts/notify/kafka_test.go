package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	alertapp "parking-monitor/internal/alerts/application"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func TestKafkaPublisherKeysByDevice(t *testing.T) {
	writer := &fakeWriter{}
	publisher, err := newKafkaPublisher(writer, DefaultAlertTopic, zerolog.Nop())
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	fixed := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	publisher.now = func() time.Time { return fixed }

	alert := highPowerAlert(fixed)
	publisher.Notify(context.Background(), alertapp.AlertEvent{Type: alertapp.EventCreated, Alert: *alert})

	if len(writer.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(writer.msgs))
	}
	msg := writer.msgs[0]
	if string(msg.Key) != "PARK-B1-S001" {
		t.Fatalf("expected device key, got %q", msg.Key)
	}
	var decoded struct {
		Event string `json:"event"`
		Alert struct {
			ID        string `json:"id"`
			AlertType string `json:"alert_type"`
			Severity  string `json:"severity"`
		} `json:"alert"`
	}
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Event != "created" || decoded.Alert.ID != "alert-1" || decoded.Alert.AlertType != "HIGH_POWER" || decoded.Alert.Severity != "WARNING" {
		t.Fatalf("unexpected envelope: %+v", decoded)
	}

	if err := publisher.Close(); err != nil || !writer.closed {
		t.Fatalf("expected writer closed, err=%v", err)
	}
}

func TestKafkaPublisherSwallowsWriteErrors(t *testing.T) {
	writer := &fakeWriter{err: errors.New("broker down")}
	publisher, err := newKafkaPublisher(writer, DefaultAlertTopic, zerolog.Nop())
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	alert := highPowerAlert(time.Now().UTC())
	publisher.Notify(context.Background(), alertapp.AlertEvent{Type: alertapp.EventCreated, Alert: *alert})
	if err := publisher.Publish(context.Background(), alertapp.AlertEvent{Type: alertapp.EventCreated, Alert: *alert}); err == nil {
		t.Fatal("expected publish error")
	}
}

func TestNewKafkaPublisherRequiresBrokers(t *testing.T) {
	if _, err := NewKafkaPublisher(nil, "", zerolog.Nop()); err == nil {
		t.Fatal("expected error without brokers")
	}
}
