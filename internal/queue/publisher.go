package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends reset notices to RabbitMQ. Each publish dials, declares
// the durable queue and publishes a persistent message; the error is
// returned so the reset flow can undo the token it just stored.
type Publisher struct {
	URL    string
	Queue  string
	Logger *slog.Logger
}

func NewPublisher(url, queue string, logger *slog.Logger) *Publisher {
	if queue == "" {
		queue = DefaultMailQueue
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{URL: url, Queue: queue, Logger: logger}
}

// NotifyPasswordReset publishes ev to the mail queue.
func (p *Publisher) NotifyPasswordReset(ctx context.Context, ev PasswordResetRequested) error {
	conn, err := amqp.Dial(p.URL)
	if err != nil {
		p.Logger.Warn("rabbitmq: dial failed", "error", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.Logger.Warn("rabbitmq: channel open failed", "error", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		p.Queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		p.Logger.Warn("rabbitmq: queue declare failed", "queue", p.Queue, "error", err)
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	if err := ch.PublishWithContext(ctx,
		"",      // default exchange
		p.Queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		pub,
	); err != nil {
		p.Logger.Warn("rabbitmq: publish failed", "queue", p.Queue, "error", err)
		return err
	}
	return nil
}
