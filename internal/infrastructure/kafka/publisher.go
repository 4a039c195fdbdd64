package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
	"github.com/nastyazhadan/trading-hub/internal/infrastructure/notifier"
	zapLogger "github.com/nastyazhadan/trading-hub/shared/logger/zap"
)

// Publisher writes OrderExecuted events keyed by owner, so one owner's
// events keep their order within a partition.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewPublisher(producer sarama.SyncProducer, topic string) *Publisher {
	return &Publisher{
		producer: producer,
		topic:    topic,
	}
}

func (p *Publisher) PublishOrderExecuted(ctx context.Context, event models.OrderExecuted) error {
	const op = "kafka.Publisher.PublishOrderExecuted"

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic:   p.topic,
		Key:     sarama.StringEncoder(event.OwnerID.String()),
		Value:   sarama.ByteEncoder(payload),
		Headers: headers(zapLogger.TraceIDFromContext(ctx)),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	zapLogger.Debug(ctx, "order executed event published",
		zap.String("order_id", event.OrderID.String()),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)

	return nil
}

// NotificationSink delivers owner notifications to a topic.
type NotificationSink struct {
	producer sarama.SyncProducer
	topic    string
}

func NewNotificationSink(producer sarama.SyncProducer, topic string) *NotificationSink {
	return &NotificationSink{
		producer: producer,
		topic:    topic,
	}
}

func (s *NotificationSink) Send(ctx context.Context, notification notifier.Notification) error {
	const op = "kafka.NotificationSink.Send"

	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, _, err = s.producer.SendMessage(&sarama.ProducerMessage{
		Topic:   s.topic,
		Key:     sarama.StringEncoder(notification.OwnerID.String()),
		Value:   sarama.ByteEncoder(payload),
		Headers: headers(zapLogger.TraceIDFromContext(ctx)),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
