// Package alert publishes abuse detections to RabbitMQ for the
// operator-facing dashboard. Publishing is best effort: errors are
// logged and returned so the caller can ignore them, and no detection
// path ever blocks on the broker.
package alert

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/innovatewithkishlay/justlputhings/internal/model"
)

const abuseQueueName = "abuse.alerts"

// abuseAlert is the wire shape carried on the abuse.alerts queue.
type abuseAlert struct {
	UserID     uint64 `json:"user_id"`
	EventType  string `json:"event_type"`
	Count      int    `json:"count"`
	DetectedAt string `json:"detected_at"`
}

// Publisher dials the broker per publish. Detections are rare enough
// that a persistent channel is not worth the reconnect handling.
type Publisher struct {
	url string
	log zerolog.Logger
}

// NewPublisher returns a Publisher, or nil when no broker URL is
// configured; a nil Publisher is simply not wired into the worker.
func NewPublisher(url string, log zerolog.Logger) *Publisher {
	if url == "" {
		return nil
	}
	return &Publisher{url: url, log: log.With().Str("component", "alert").Logger()}
}

// PublishAbuse sends one persistent message per detection to the
// durable abuse.alerts queue.
func (p *Publisher) PublishAbuse(ctx context.Context, events []model.AbuseEvent) error {
	if len(events) == 0 {
		return nil
	}
	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.log.Warn().Err(err).Msg("broker dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Warn().Err(err).Msg("channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	// Idempotent declare; durable so alerts survive broker restarts.
	if _, err := ch.QueueDeclare(abuseQueueName, true, false, false, false, nil); err != nil {
		p.log.Warn().Err(err).Msg("queue declare failed")
		return err
	}

	now := time.Now().UTC()
	for _, ev := range events {
		body, err := json.Marshal(abuseAlert{
			UserID:     ev.UserID,
			EventType:  ev.EventType,
			Count:      ev.Count,
			DetectedAt: now.Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
		pub := amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    now,
			Body:         body,
		}
		if err := ch.PublishWithContext(ctx, "", abuseQueueName, false, false, pub); err != nil {
			p.log.Warn().Err(err).Msg("publish failed")
			return err
		}
	}
	return nil
}
