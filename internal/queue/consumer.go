package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sethvargo/go-retry"
)

// Deliverer hands a reset notice to the final mail channel.
type Deliverer interface {
	Deliver(ctx context.Context, ev PasswordResetRequested) error
}

// MailConsumer reads reset notices from RabbitMQ and passes them to a
// Deliverer. Messages that cannot be decoded or delivered are rejected
// without requeue so a poison message cannot spin the loop.
type MailConsumer struct {
	URL       string
	Queue     string
	Deliverer Deliverer
	Logger    *slog.Logger
}

// Run connects, consumes and reconnects with capped exponential backoff
// until ctx is cancelled.
func (c *MailConsumer) Run(ctx context.Context) error {
	if c.Queue == "" {
		c.Queue = DefaultMailQueue
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	backoff := retry.WithCappedDuration(30*time.Second, retry.NewExponential(time.Second))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Logger.Warn("mail-consumer: failed to dial broker; retrying", "error", err)
			return retry.RetryableError(err)
		}
		loopErr := c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Logger.Warn("mail-consumer: consume loop ended; reconnecting", "error", loopErr)
		return retry.RetryableError(loopErr)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *MailConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(20, 0, false); err != nil {
		c.Logger.Warn("mail-consumer: set QoS failed", "error", err)
	}

	if _, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(c.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handleMessage(ctx, d.Body); err != nil {
				c.Logger.Error("mail-consumer: handle message failed", "error", err)
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *MailConsumer) handleMessage(ctx context.Context, body []byte) error {
	var ev PasswordResetRequested
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Email == "" || ev.ResetToken == "" {
		return errors.New("reset notice without recipient or token")
	}
	if err := c.Deliverer.Deliver(ctx, ev); err != nil {
		return fmt.Errorf("deliver: %w", err)
	}
	c.Logger.Info("mail-consumer: reset notice delivered", "user_id", ev.UserID)
	return nil
}

// FileOutbox appends one line per reset notice to a file, standing in for
// the external mail transport. It can also act as the service's notifier
// directly when no broker is configured.
type FileOutbox struct {
	Path string
	mu   sync.Mutex
}

func NewFileOutbox(path string) *FileOutbox {
	if path == "" {
		path = filepath.Join("logs", "mail.log")
	}
	return &FileOutbox{Path: path}
}

func (o *FileOutbox) Deliver(_ context.Context, ev PasswordResetRequested) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(o.Path), 0o755); err != nil {
		return fmt.Errorf("mkdir outbox: %w", err)
	}
	f, err := os.OpenFile(o.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open outbox: %w", err)
	}
	defer f.Close()

	link := ev.ResetURL
	if link == "" {
		link = ev.ResetToken
	}
	line := fmt.Sprintf("[%s] Password reset | user_id=%s | to=%q | name=%q | link=%s | expires_at=%s\n",
		ev.RequestedAt, ev.UserID, ev.Email, ev.FullName, link, ev.ExpiresAt)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write outbox: %w", err)
	}
	return nil
}

// NotifyPasswordReset delivers ev straight to the outbox.
func (o *FileOutbox) NotifyPasswordReset(ctx context.Context, ev PasswordResetRequested) error {
	return o.Deliver(ctx, ev)
}
