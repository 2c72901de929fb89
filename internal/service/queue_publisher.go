// Package service holds outbound integrations used by the HTTP handlers.
// The publisher sends domain events to RabbitMQ; failures are returned so
// callers can log them without failing the request.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-ticket-booking/internal/queue"
)

// Publisher keeps one broker connection and reopens it after a failure.
// Queues are declared durable and messages are persistent.
type Publisher struct {
	url string
	log *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
}

func NewPublisher(url string, log *zap.Logger) *Publisher {
	return &Publisher{url: url, log: log}
}

func (p *Publisher) connection() (*amqp.Connection, error) {
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn, nil
	}
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	p.conn = conn
	return conn, nil
}

// Publish marshals v as JSON onto queueName via the default exchange.
func (p *Publisher) Publish(ctx context.Context, queueName string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	conn, err := p.connection()
	if err != nil {
		p.log.Warn("rabbitmq: publish skipped", zap.String("queue", queueName), zap.Error(err))
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		p.conn = nil
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	err = ch.PublishWithContext(ctx, "", queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", queueName, err)
	}
	p.log.Debug("rabbitmq: published", zap.String("queue", queueName), zap.Int("bytes", len(body)))
	return nil
}

func (p *Publisher) PublishOrderConfirmed(ctx context.Context, ev queue.OrderConfirmedEvent) error {
	return p.Publish(ctx, queue.QueueOrderConfirmed, ev)
}

func (p *Publisher) PublishPasswordReset(ctx context.Context, ev queue.PasswordResetRequestedEvent) error {
	return p.Publish(ctx, queue.QueuePasswordReset, ev)
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}
