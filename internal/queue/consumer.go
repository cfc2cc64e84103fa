package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AuditConsumer drains the hold queue and writes one structured audit
// record per event.  Malformed messages are rejected without requeue so a
// bad payload cannot spin the consumer.
type AuditConsumer struct {
	url      string
	prefetch int
	log      *zap.Logger
}

// NewAuditConsumer returns a consumer for the broker at url.
func NewAuditConsumer(url string, prefetch int, log *zap.Logger) *AuditConsumer {
	if prefetch <= 0 {
		prefetch = 50
	}
	return &AuditConsumer{url: url, prefetch: prefetch, log: log}
}

// Run connects, consumes and reconnects with exponential backoff until ctx
// is cancelled.  It returns ctx.Err() on shutdown.
func (c *AuditConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("hold-audit: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("hold-audit: consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *AuditConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		c.log.Warn("hold-audit: set QoS failed", zap.Error(err))
	}
	if err := declareHoldQueue(ch); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, HoldQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := c.Handle(d.Body); err != nil {
			c.log.Warn("hold-audit: rejecting message", zap.Error(err))
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// Handle decodes one message body and writes it to the audit log.
func (c *AuditConsumer) Handle(body []byte) error {
	var ev HoldEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Kind == "" || ev.EventID == "" {
		return errors.New("hold event without kind or event id")
	}
	fields := []zap.Field{
		zap.String("kind", ev.Kind),
		zap.String("event_id", ev.EventID),
		zap.String("requester", ev.RequesterID),
		zap.String("occurred_at", ev.OccurredAt),
	}
	if ev.Category != "" {
		fields = append(fields, zap.String("category", ev.Category))
	}
	if ev.Row > 0 {
		fields = append(fields, zap.Int("row", ev.Row), zap.Int("column", ev.Column))
	}
	if len(ev.TicketIDs) > 0 {
		fields = append(fields, zap.Uint64s("ticket_ids", ev.TicketIDs))
	}
	c.log.Info("hold event", fields...)
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
