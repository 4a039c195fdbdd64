package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
	"github.com/nastyazhadan/trading-hub/shared/interceptors/xrequestid"
	zapLogger "github.com/nastyazhadan/trading-hub/shared/logger/zap"
)

const rejoinDelay = time.Second

type Handler interface {
	Handle(ctx context.Context, event models.OrderExecuted)
}

// Consumer feeds OrderExecuted events from a consumer group to the handler.
// Offsets are marked after the handler returns; the handler owns its failures.
type Consumer struct {
	group   sarama.ConsumerGroup
	topics  []string
	handler Handler

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewConsumer(group sarama.ConsumerGroup, topic string, handler Handler) *Consumer {
	return &Consumer{
		group:   group,
		topics:  []string{topic},
		handler: handler,
	}
}

func (c *Consumer) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return
	}

	ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))

	c.wg.Add(2)
	go c.consume(ctx)
	go c.drainErrors(ctx)
}

func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	closeErr := c.group.Close()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("kafka.Consumer.Stop: %w", ctx.Err())
	}

	if closeErr != nil {
		return fmt.Errorf("kafka.Consumer.Stop: %w", closeErr)
	}

	return nil
}

func (c *Consumer) consume(ctx context.Context) {
	defer c.wg.Done()

	for {
		err := c.group.Consume(ctx, c.topics, c)
		if errors.Is(err, sarama.ErrClosedConsumerGroup) || ctx.Err() != nil {
			return
		}
		if err != nil {
			zapLogger.Error(ctx, "kafka consume session failed", zap.Error(err))

			select {
			case <-ctx.Done():
				return
			case <-time.After(rejoinDelay):
			}
		}
	}
}

func (c *Consumer) drainErrors(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-c.group.Errors():
			if !ok {
				return
			}
			zapLogger.Warn(ctx, "kafka consumer group error", zap.Error(err))
		}
	}
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			c.handleMessage(session.Context(), message)
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, message *sarama.ConsumerMessage) {
	ctx = xrequestid.With(ctx, traceIDFrom(message))

	var event models.OrderExecuted
	if err := json.Unmarshal(message.Value, &event); err != nil {
		zapLogger.Error(ctx, "dropping undecodable order executed event",
			zap.String("topic", message.Topic),
			zap.Int32("partition", message.Partition),
			zap.Int64("offset", message.Offset),
			zap.Error(err),
		)
		return
	}

	c.handler.Handle(ctx, event)
}
