package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/tubemetrics/freshness/pkg/config"
)

// channel is the part of *amqp.Channel the publisher uses
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQ publishes sync events to a durable direct exchange
type RabbitMQ struct {
	conn       *amqp.Connection
	channel    channel
	exchange   string
	routingKey string
	logger     *zap.Logger
}

// NewRabbitMQ connects and declares the exchange, queue and binding
func NewRabbitMQ(cfg *config.EventsConfig, logger *zap.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	fail := func(step string, err error) (*RabbitMQ, error) {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("%s: %w", step, err)
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		return fail("declare exchange", err)
	}

	if cfg.QueueName != "" {
		q, err := ch.QueueDeclare(cfg.QueueName, true, false, false, false, nil)
		if err != nil {
			return fail("declare queue", err)
		}
		if err := ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
			return fail("bind queue", err)
		}
	}

	logger.Info("Connected to RabbitMQ",
		zap.String("exchange", cfg.Exchange),
		zap.String("queue", cfg.QueueName),
		zap.String("routing_key", cfg.RoutingKey),
	)

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger,
	}, nil
}

// PublishSync publishes event as a persistent JSON message
func (r *RabbitMQ) PublishSync(ctx context.Context, event SyncEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal sync event: %w", err)
	}

	err = r.channel.PublishWithContext(ctx, r.exchange, r.routingKey, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    event.RunID + ":" + event.ChannelID,
		Type:         "channel.synced",
		Body:         body,
		Timestamp:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("publish sync event: %w", err)
	}

	r.logger.Debug("Published sync event",
		zap.String("run_id", event.RunID),
		zap.String("channel_id", event.ChannelID),
		zap.Bool("success", event.Success),
	)
	return nil
}

// Close closes the channel and connection
func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
