// Package publisher delivers notifications to a RabbitMQ exchange.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"tgwatch/internal/delivery"
	"tgwatch/internal/model"
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQ publishes delivery items as JSON to a durable direct exchange.
type RabbitMQ struct {
	conn       *amqp.Connection
	channel    amqpChannel
	exchange   string
	routingKey string
	logger     *slog.Logger
	now        func() time.Time
}

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	QueueName  string
}

// NewRabbitMQ connects to the broker and declares the exchange, the queue
// and their binding.
func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declare(ch, cfg); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"routing_key", cfg.RoutingKey,
	)

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger,
		now:        time.Now,
	}, nil
}

func declare(ch *amqp.Channel, cfg Config) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if cfg.QueueName == "" {
		return nil
	}
	q, err := ch.QueueDeclare(cfg.QueueName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// Notification is the JSON body of a published message.
type Notification struct {
	SubscriberID int64            `json:"subscriber_id"`
	Channel      model.ChannelID  `json:"channel"`
	ExternalID   *int64           `json:"external_id,omitempty"`
	Text         string           `json:"text,omitempty"`
	URL          string           `json:"url,omitempty"`
	PostedAt     *time.Time       `json:"posted_at,omitempty"`
	FileTypes    []model.FileType `json:"file_types,omitempty"`
	Views        *int64           `json:"views,omitempty"`
	Score        float64          `json:"score"`
	Matched      []string         `json:"matched"`
	DedupKey     string           `json:"dedup_key"`
	Timestamp    time.Time        `json:"timestamp"`
}

// NewNotification builds the message body for item.
func NewNotification(item delivery.Item, at time.Time) Notification {
	msg := item.Message
	return Notification{
		SubscriberID: item.SubscriberID,
		Channel:      msg.ChannelID,
		ExternalID:   msg.ExternalID,
		Text:         msg.Text,
		URL:          msg.URL,
		PostedAt:     msg.Timestamp,
		FileTypes:    msg.FileTypes,
		Views:        msg.Views,
		Score:        item.Verdict.Score,
		Matched:      item.Verdict.MatchedTerms(),
		DedupKey:     item.DedupKey,
		Timestamp:    at.UTC(),
	}
}

// Send publishes item as a persistent JSON message. The dedup key is used
// as the message id so consumers can drop redeliveries.
func (r *RabbitMQ) Send(ctx context.Context, item delivery.Item) error {
	now := r.now()
	body, err := json.Marshal(NewNotification(item, now))
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    item.DedupKey,
			Body:         body,
			Timestamp:    now,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	r.logger.Debug("published notification",
		"subscriber", item.SubscriberID,
		"channel", item.Message.ChannelID,
		"dedup_key", item.DedupKey,
	)
	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		_ = r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
