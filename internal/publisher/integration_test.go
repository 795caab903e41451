//go:build integration

package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"

	"tgwatch/internal/delivery"
	"tgwatch/internal/model"
)

type RabbitMQIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *rabbitmq.RabbitMQContainer
	amqpURL   string
	logger    *slog.Logger
}

func (s *RabbitMQIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	container, err := rabbitmq.Run(s.ctx,
		"rabbitmq:3.13-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	amqpURL, err := container.AmqpURL(s.ctx)
	s.Require().NoError(err)
	s.amqpURL = amqpURL
}

func (s *RabbitMQIntegrationSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func TestRabbitMQIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RabbitMQIntegrationSuite))
}

func (s *RabbitMQIntegrationSuite) TestPublisher_Connection() {
	cfg := Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange",
		RoutingKey: "test-routing-key",
		QueueName:  "test-queue",
	}

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.NoError(err)
	s.NotNil(pub)

	err = pub.Close()
	s.NoError(err)
}

func (s *RabbitMQIntegrationSuite) TestPublisher_Send() {
	cfg := Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange-send",
		RoutingKey: "test-routing-key-send",
		QueueName:  "test-queue-send",
	}

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	id := int64(12)
	posted := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	item := delivery.Item{
		SubscriberID: 100,
		Message: model.Message{
			ChannelID:  "news1",
			ExternalID: &id,
			Text:       "New ai model released today",
			Timestamp:  &posted,
			URL:        "https://t.me/news1/12",
			FileTypes:  []model.FileType{model.FilePhoto},
			HasFile:    true,
		},
		Verdict: model.Verdict{
			Relevant: true,
			Score:    3,
			Matched: []model.MatchedTerm{
				{Term: "ai", Mode: model.MatchWholeWord, Contribution: 2},
				{Term: "$file", Mode: model.MatchFile, Contribution: 1},
			},
		},
		DedupKey: "sha256:0123456789abcdef0123456789abcdef",
	}

	err = pub.Send(s.ctx, item)
	s.Require().NoError(err)

	msg := s.consumeMessage(cfg)
	s.Require().NotNil(msg)

	s.Equal("application/json", msg.ContentType)
	s.Equal(uint8(amqp.Persistent), msg.DeliveryMode)
	s.Equal(item.DedupKey, msg.MessageId)

	var received Notification
	err = json.Unmarshal(msg.Body, &received)
	s.Require().NoError(err)
	s.Equal(int64(100), received.SubscriberID)
	s.Equal(model.ChannelID("news1"), received.Channel)
	s.Require().NotNil(received.ExternalID)
	s.Equal(int64(12), *received.ExternalID)
	s.Equal([]string{"ai", "$file"}, received.Matched)
	s.Equal([]model.FileType{model.FilePhoto}, received.FileTypes)
	s.Require().NotNil(received.PostedAt)
	s.True(posted.Equal(*received.PostedAt))
	s.False(received.Timestamp.IsZero())
}

func (s *RabbitMQIntegrationSuite) TestPublisher_PreservesOrder() {
	cfg := Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange-order",
		RoutingKey: "test-routing-key-order",
		QueueName:  "test-queue-order",
	}

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	for i := int64(1); i <= 3; i++ {
		err := pub.Send(s.ctx, delivery.Item{
			SubscriberID: i,
			Message:      model.Message{ChannelID: "news1", Text: "ai"},
			DedupKey:     "sha256:key",
		})
		s.Require().NoError(err)
	}

	for i := int64(1); i <= 3; i++ {
		msg := s.consumeMessage(cfg)
		s.Require().NotNil(msg)

		var received Notification
		s.Require().NoError(json.Unmarshal(msg.Body, &received))
		s.Equal(i, received.SubscriberID)
	}
}

func (s *RabbitMQIntegrationSuite) consumeMessage(cfg Config) *amqp.Delivery {
	conn, err := amqp.Dial(s.amqpURL)
	s.Require().NoError(err)
	defer conn.Close()

	ch, err := conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	msg, ok, err := ch.Get(cfg.QueueName, true)
	deadline := time.Now().Add(5 * time.Second)
	for err == nil && !ok && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
		msg, ok, err = ch.Get(cfg.QueueName, true)
	}
	s.Require().NoError(err)
	if !ok {
		s.Fail("Timeout waiting for message")
		return nil
	}
	return &msg
}
