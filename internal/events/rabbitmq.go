// README: RabbitMQ publisher for ride status changes on the ride_topic exchange.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tejith7/project-bolt/internal/logger"
	"github.com/tejith7/project-bolt/internal/modules/ride"
)

const (
	exchange       = "ride_topic"
	reconnInterval = 10 * time.Second
)

var ErrClosed = errors.New("rabbitmq connection is closed")

// Message is the body published for every landed transition.
type Message struct {
	Event       ride.Event `json:"event"`
	Ride        ride.Ride  `json:"ride"`
	PublishedAt time.Time  `json:"published_at"`
}

// RoutingKey is ride.status.<status>, so consumers can bind to one state or ride.status.#.
func RoutingKey(status ride.Status) string {
	return fmt.Sprintf("ride.status.%s", status)
}

type Publisher struct {
	ctx          context.Context
	url          string
	log          logger.Logger
	mu           sync.Mutex
	conn         *amqp.Connection
	ch           *amqp.Channel
	reconnecting bool
}

// NewPublisher dials url and declares the exchange. ctx bounds background reconnects.
func NewPublisher(ctx context.Context, url string, log logger.Logger) (*Publisher, error) {
	if log == nil {
		log = logger.Nop()
	}
	p := &Publisher{ctx: ctx, url: url, log: log.Action("rabbitmq")}
	if err := p.connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	return p, nil
}

func (p *Publisher) Publish(ctx context.Context, ev ride.Event, r ride.Ride) error {
	p.mu.Lock()
	ch := p.ch
	closed := p.conn == nil || p.conn.IsClosed() || ch == nil || ch.IsClosed()
	p.mu.Unlock()
	if closed {
		go p.reconnect()
		return ErrClosed
	}

	body, err := json.Marshal(Message{Event: ev, Ride: r, PublishedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    fmt.Sprintf("%s:%d", r.ID, r.Version),
		Timestamp:    ev.CreatedAt,
		Body:         body,
	}
	// PublishWithContext does not watch ctx and blocks under broker flow control.
	done := make(chan error, 1)
	go func() {
		done <- ch.PublishWithContext(ctx, exchange, RoutingKey(ev.ToStatus), false, false, msg)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("publish %s: %w", msg.MessageId, ctx.Err())
	}
}

func (p *Publisher) IsAlive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil && !p.conn.IsClosed() && p.ch != nil && !p.ch.IsClosed()
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil && !p.ch.IsClosed() {
		if err := p.ch.Close(); err != nil {
			return fmt.Errorf("close rabbitmq channel: %w", err)
		}
	}
	if p.conn != nil && !p.conn.IsClosed() {
		if err := p.conn.Close(); err != nil {
			return fmt.Errorf("close rabbitmq connection: %w", err)
		}
	}
	return nil
}

func (p *Publisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return err
	}

	p.mu.Lock()
	p.conn, p.ch = conn, ch
	p.mu.Unlock()
	return nil
}

func (p *Publisher) reconnect() {
	p.mu.Lock()
	if p.reconnecting {
		p.mu.Unlock()
		return
	}
	p.reconnecting = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.reconnecting = false
		p.mu.Unlock()
	}()

	t := time.NewTicker(reconnInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := p.connect(); err == nil {
				p.log.Info("rabbitmq reconnected")
				return
			}
			p.log.Warn("rabbitmq failed to reconnect")
		case <-p.ctx.Done():
			return
		}
	}
}
