// Package events fans committed order status changes out to a sink.
package events

import (
	"context"
	"fmt"
	"log/slog"

	"foodrun/internal/domain"
)

type Publisher interface {
	Publish(ctx context.Context, ev domain.StatusEvent) error
	Close() error
}

// Watch blocks until ctx ends or p loses its broker connection, in which
// case the connection error is returned.
func Watch(ctx context.Context, p Publisher) error {
	w, ok := p.(interface{ lost() <-chan error })
	if !ok {
		<-ctx.Done()
		return nil
	}
	select {
	case <-ctx.Done():
		return nil
	case err := <-w.lost():
		return fmt.Errorf("event broker connection lost: %w", err)
	}
}

// LogPublisher writes every event to the structured log.
type LogPublisher struct {
	Log *slog.Logger
}

func (p *LogPublisher) Publish(ctx context.Context, ev domain.StatusEvent) error {
	l := p.Log
	if l == nil {
		l = slog.Default()
	}
	l.InfoContext(ctx, "order status changed",
		"action", "status_changed",
		"order_id", ev.OrderID,
		"delivery_id", ev.DeliveryID,
		"from", string(ev.From),
		"to", string(ev.To),
		"actor_id", ev.ActorID,
		"actor_role", string(ev.ActorRole),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }

type Options struct {
	Driver       string
	AMQPURL      string
	AMQPExchange string
	KafkaBrokers []string
	KafkaTopic   string
	Log          *slog.Logger
}

// New builds the publisher selected by opts.Driver: log, amqp or kafka.
func New(opts Options) (Publisher, error) {
	switch opts.Driver {
	case "", "log":
		return &LogPublisher{Log: opts.Log}, nil
	case "amqp", "rabbitmq":
		p, err := DialAMQP(opts.AMQPURL, opts.AMQPExchange)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "kafka":
		if len(opts.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("kafka: no brokers configured")
		}
		return NewKafkaPublisher(opts.KafkaBrokers, opts.KafkaTopic), nil
	}
	return nil, fmt.Errorf("unknown events driver %q", opts.Driver)
}
