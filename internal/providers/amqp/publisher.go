package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gamezone/internal/utils"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	EventsQueue = "session.events"
	maxBackoff  = 30 * time.Second
)

// Channel is the subset of *amqp.Channel the publisher needs.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Dialer opens a channel plus the connection that owns it.
type Dialer func(url string) (Channel, io.Closer, error)

func DialBroker(url string) (Channel, io.Closer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return ch, conn, nil
}

// Publisher forwards event bus traffic to a durable queue. Events raised while the broker
// is unreachable are buffered up to the queue size, then dropped.
type Publisher struct {
	url    string
	dial   Dialer
	queue  chan utils.Event
	logger *zap.SugaredLogger
}

func NewPublisher(url string, dial Dialer, logger *zap.Logger) *Publisher {
	if dial == nil {
		dial = DialBroker
	}
	return &Publisher{
		url:    url,
		dial:   dial,
		queue:  make(chan utils.Event, 512),
		logger: logger.Sugar(),
	}
}

func (p *Publisher) Attach(bus *utils.EventBus) {
	bus.Subscribe(utils.AnyEvent, p.Enqueue)
}

func (p *Publisher) Enqueue(event utils.Event) {
	select {
	case p.queue <- event:
	default:
		p.logger.Warnw("AMQP buffer full, dropping event", "event", event.Event)
	}
}

// Run blocks until ctx is cancelled, reconnecting with exponential backoff.
func (p *Publisher) Run(ctx context.Context) {
	backoff := time.Second
	for {
		err := p.session(ctx)
		if ctx.Err() != nil {
			return
		}
		p.logger.Warnw("AMQP session ended, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (p *Publisher) session(ctx context.Context) error {
	ch, conn, err := p.dial(p.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	defer ch.Close()

	if _, err := ch.QueueDeclare(EventsQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	p.logger.Infow("AMQP publisher connected", "queue", EventsQueue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-p.queue:
			if err := p.publish(ctx, ch, event); err != nil {
				p.Enqueue(event)
				return err
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, ch Channel, event utils.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Errorw("Failed to encode event", "event", event.Event, "error", err)
		return nil
	}

	return ch.PublishWithContext(ctx, "", EventsQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.At,
		Type:         event.Event,
		Body:         body,
	})
}
