package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"foodrun/internal/domain"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func sampleEvent() domain.StatusEvent {
	return domain.StatusEvent{
		OrderID:   "o1",
		From:      domain.StatusInKitchen,
		To:        domain.StatusReadyForDelivery,
		ActorID:   "chef-1",
		ActorRole: domain.RoleKitchen,
		At:        time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestKafkaPublisherKeysByOrder(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisherWithWriter(w)
	if err := p.Publish(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "o1" {
		t.Fatalf("unexpected messages %+v", w.msgs)
	}
	var got domain.StatusEvent
	if err := json.Unmarshal(w.msgs[0].Value, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.To != domain.StatusReadyForDelivery || got.ActorRole != domain.RoleKitchen {
		t.Fatalf("unexpected payload %+v", got)
	}

	w.err = errors.New("broker down")
	if err := p.Publish(context.Background(), sampleEvent()); err == nil {
		t.Fatalf("expected write error to surface")
	}
}

type fakeChannel struct {
	exchange string
	msg      amqp.Publishing
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.exchange = exchange
	c.msg = msg
	return nil
}

func (c *fakeChannel) Close() error { return nil }

func TestAMQPPublisherUsesFanoutExchange(t *testing.T) {
	ch := &fakeChannel{}
	p := &AMQPPublisher{ch: ch, exchange: "order_status_fanout"}
	if err := p.Publish(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if ch.exchange != "order_status_fanout" || ch.msg.ContentType != "application/json" {
		t.Fatalf("unexpected publish %q %+v", ch.exchange, ch.msg)
	}
	if ch.msg.DeliveryMode != amqp.Persistent {
		t.Fatalf("expected persistent delivery")
	}
	_ = p.Close()
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := &LogPublisher{Log: slog.New(slog.NewJSONHandler(&buf, nil))}
	_ = p.Publish(context.Background(), sampleEvent())
	if !strings.Contains(buf.String(), `"to":"READY_FOR_DELIVERY"`) {
		t.Fatalf("event not logged: %s", buf.String())
	}
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	if _, err := New(Options{Driver: "carrier-pigeon"}); err == nil {
		t.Fatalf("expected error")
	}
	p, err := New(Options{})
	if err != nil {
		t.Fatalf("default driver: %v", err)
	}
	if _, ok := p.(*LogPublisher); !ok {
		t.Fatalf("expected log publisher, got %T", p)
	}
}

func TestWatchReportsLostBroker(t *testing.T) {
	p := &AMQPPublisher{ch: &fakeChannel{}, exchange: "order_status_fanout", lostCh: make(chan error, 1)}
	p.lostCh <- &amqp.Error{Code: amqp.ConnectionForced, Reason: "broker shutdown"}
	err := Watch(context.Background(), p)
	var amqpErr *amqp.Error
	if !errors.As(err, &amqpErr) || amqpErr.Code != amqp.ConnectionForced {
		t.Fatalf("expected connection error, got %v", err)
	}
}

func TestWatchEndsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Watch(ctx, &LogPublisher{}); err != nil {
		t.Fatalf("log publisher watch: %v", err)
	}
	p := &AMQPPublisher{ch: &fakeChannel{}, lostCh: make(chan error, 1)}
	if err := Watch(ctx, p); err != nil {
		t.Fatalf("amqp publisher watch after cancel: %v", err)
	}
}
