package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// HandlerFunc processes one message body.  A returned error rejects the
// delivery without requeueing.
type HandlerFunc func(body []byte) error

// Consumer reads the order and password-reset queues and appends one line
// per message to files under Dir (booking.log and mail.log).
type Consumer struct {
	URL string
	Dir string
	Log *zap.Logger

	mu       sync.Mutex
	handlers map[string]HandlerFunc
}

// NewConsumer wires the default handlers for both queues.
func NewConsumer(url, dir string, log *zap.Logger) *Consumer {
	c := &Consumer{URL: url, Dir: dir, Log: log}
	c.handlers = map[string]HandlerFunc{
		QueueOrderConfirmed: c.handleOrderConfirmed,
		QueuePasswordReset:  c.handlePasswordReset,
	}
	return c
}

// Run connects and consumes until ctx is cancelled, reconnecting with
// exponential backoff capped at 30s.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Log.Warn("consumer: dial broker failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
				if backoff > 30*time.Second {
					backoff = 30 * time.Second
				}
			}
			continue
		}
		backoff = time.Second
		c.Log.Info("consumer: connected", zap.Strings("queues", c.queues()))

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Log.Warn("consumer: loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) queues() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.handlers))
	for q := range c.handlers {
		out = append(out, q)
	}
	return out
}

type delivery struct {
	queue string
	amqp.Delivery
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.Log.Warn("consumer: set QoS failed", zap.Error(err))
	}

	merged := make(chan delivery)
	var wg sync.WaitGroup
	for _, q := range c.queues() {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", q, err)
		}
		msgs, err := ch.Consume(q, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", q, err)
		}
		wg.Add(1)
		go func(q string, msgs <-chan amqp.Delivery) {
			defer wg.Done()
			for d := range msgs {
				select {
				case merged <- delivery{queue: q, Delivery: d}:
				case <-ctx.Done():
					return
				}
			}
		}(q, msgs)
	}
	go func() {
		wg.Wait()
		close(merged)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-merged:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.Handle(d.queue, d.Body); err != nil {
				c.Log.Error("consumer: handle message failed", zap.String("queue", d.queue), zap.Error(err))
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle dispatches body to the handler registered for queue.
func (c *Consumer) Handle(queue string, body []byte) error {
	c.mu.Lock()
	h, ok := c.handlers[queue]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("no handler for queue %q", queue)
	}
	return h(body)
}

func (c *Consumer) appendLine(file, line string) error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", c.Dir, err)
	}
	f, err := os.OpenFile(filepath.Join(c.Dir, file), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", file, err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write %s: %w", file, err)
	}
	return nil
}

func (c *Consumer) handleOrderConfirmed(body []byte) error {
	var ev OrderConfirmedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.OrderID == 0 {
		return errors.New("order_id missing")
	}
	line := fmt.Sprintf("[%s] Order confirmed | order_id=%d | code=%s | customer_id=%d | email=%s | showtime_id=%d | movie=%q | cinema=%q | room=%q | starts_at=%s | seats=[%s] | total=%d cents | method=%s | tier=%s\n",
		ev.ConfirmedAt, ev.OrderID, ev.OrderCode, ev.CustomerID, ev.CustomerEmail, ev.ShowtimeID, ev.MovieTitle,
		ev.CinemaName, ev.RoomNumber, ev.StartsAt, strings.Join(ev.Seats, ","), ev.TotalPriceCents, ev.PaymentMethod,
		ev.MembershipLevel)
	return c.appendLine("booking.log", line)
}

// handlePasswordReset stands in for an SMTP sender: the mail log is the
// outbox operators read in development.
func (c *Consumer) handlePasswordReset(body []byte) error {
	var ev PasswordResetRequestedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Email == "" || ev.Code == "" {
		return errors.New("email and code are required")
	}
	line := fmt.Sprintf("[%s] Password reset code | to=%s | user_id=%d | code=%s | expires_at=%s\n",
		ev.RequestedAt, ev.Email, ev.UserID, ev.Code, ev.ExpiresAt)
	if err := c.appendLine("mail.log", line); err != nil {
		return err
	}
	c.Log.Info("consumer: password reset mail queued", zap.String("to", ev.Email), zap.Uint64("user_id", ev.UserID))
	return nil
}
