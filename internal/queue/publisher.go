package queue

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher sends HoldEvents to RabbitMQ.  It dials per publish: hold
// events are low volume and this keeps the API process free of broker
// connection state.  Errors are logged and returned so callers can choose
// to ignore them.
type Publisher struct {
	url string
	log *zap.Logger
}

// NewPublisher returns a publisher for the broker at url.
func NewPublisher(url string, log *zap.Logger) *Publisher {
	return &Publisher{url: url, log: log}
}

// dialTimeout bounds the TCP connect and AMQP handshake when ctx has no
// deadline.
const dialTimeout = 5 * time.Second

// PublishHold publishes ev to the hold queue as a persistent message.  The
// dial, handshake and publish all end at ctx's deadline.
func (p *Publisher) PublishHold(ctx context.Context, ev HoldEvent) error {
	conn, err := p.dial(ctx)
	if err != nil {
		p.log.Warn("rabbitmq dial failed", zap.Error(err))
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Warn("rabbitmq channel open failed", zap.Error(err))
		return err
	}
	defer func() { _ = ch.Close() }()

	if err := declareHoldQueue(ch); err != nil {
		p.log.Warn("rabbitmq queue declare failed", zap.Error(err))
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         ev.Kind,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", HoldQueueName, false, false, pub); err != nil {
		p.log.Warn("rabbitmq publish failed", zap.String("kind", ev.Kind), zap.Error(err))
		return err
	}
	return nil
}

func (p *Publisher) dial(ctx context.Context) (*amqp.Connection, error) {
	timeout := dialTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
		if timeout <= 0 {
			return nil, ctx.Err()
		}
	}
	return amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
}

func declareHoldQueue(ch *amqp.Channel) error {
	_, err := ch.QueueDeclare(
		HoldQueueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	return err
}
