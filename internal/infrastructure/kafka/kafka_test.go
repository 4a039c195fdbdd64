package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	saramaMocks "github.com/IBM/sarama/mocks"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
	"github.com/nastyazhadan/trading-hub/internal/infrastructure/notifier"
	zapLogger "github.com/nastyazhadan/trading-hub/shared/logger/zap"
)

func TestMain(m *testing.M) {
	zapLogger.SetNopLogger()
	os.Exit(m.Run())
}

type recordingHandler struct {
	mu       sync.Mutex
	events   []models.OrderExecuted
	traceIDs []string
}

func (r *recordingHandler) Handle(ctx context.Context, event models.OrderExecuted) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)
	r.traceIDs = append(r.traceIDs, zapLogger.TraceIDFromContext(ctx))
}

func sampleEvent() models.OrderExecuted {
	return models.OrderExecuted{
		OrderID:       uuid.New(),
		OwnerID:       uuid.New(),
		Symbol:        "BTC",
		Side:          "SELL",
		Quantity:      decimal.RequireFromString("0.5"),
		ExecutedPrice: decimal.NewFromInt(51000),
		ExecutedAt:    time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC),
	}
}

func TestPublisherEncodesEvent(t *testing.T) {
	producer := saramaMocks.NewSyncProducer(t, nil)
	event := sampleEvent()

	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(value []byte) error {
		var decoded models.OrderExecuted
		if err := json.Unmarshal(value, &decoded); err != nil {
			return err
		}
		if decoded.OrderID != event.OrderID || !decoded.ExecutedPrice.Equal(event.ExecutedPrice) {
			return errors.New("unexpected payload")
		}
		return nil
	})

	publisher := NewPublisher(producer, "orders.executed")
	require.NoError(t, publisher.PublishOrderExecuted(context.Background(), event))
	require.NoError(t, producer.Close())
}

func TestPublisherReturnsProducerError(t *testing.T) {
	producer := saramaMocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := NewPublisher(producer, "orders.executed").PublishOrderExecuted(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, producer.Close())
}

func TestNotificationSinkEncodesNotification(t *testing.T) {
	producer := saramaMocks.NewSyncProducer(t, nil)
	ownerID := uuid.New()

	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(value []byte) error {
		var decoded notifier.Notification
		if err := json.Unmarshal(value, &decoded); err != nil {
			return err
		}
		if decoded.OwnerID != ownerID || decoded.Kind != notifier.KindPortfolioUpdated {
			return errors.New("unexpected notification")
		}
		return nil
	})

	sink := NewNotificationSink(producer, "exchange.notifications")
	err := sink.Send(context.Background(), notifier.Notification{Kind: notifier.KindPortfolioUpdated, OwnerID: ownerID})
	require.NoError(t, err)
	require.NoError(t, producer.Close())
}

func TestConsumerHandlesMessage(t *testing.T) {
	handler := &recordingHandler{}
	consumer := NewConsumer(nil, "orders.executed", handler)
	event := sampleEvent()

	payload, err := json.Marshal(event)
	require.NoError(t, err)

	consumer.handleMessage(context.Background(), &sarama.ConsumerMessage{
		Topic:   "orders.executed",
		Value:   payload,
		Headers: []*sarama.RecordHeader{{Key: []byte(traceHeader), Value: []byte("trace-7")}},
	})

	require.Len(t, handler.events, 1)
	assert.Equal(t, event.OrderID, handler.events[0].OrderID)
	assert.True(t, handler.events[0].Quantity.Equal(event.Quantity))
	assert.Equal(t, "trace-7", handler.traceIDs[0])
}

func TestConsumerDropsUndecodableMessage(t *testing.T) {
	handler := &recordingHandler{}
	consumer := NewConsumer(nil, "orders.executed", handler)

	consumer.handleMessage(context.Background(), &sarama.ConsumerMessage{Value: []byte("{not json")})

	assert.Empty(t, handler.events)
}

func TestNewConfigProducesSyncCompatibleSettings(t *testing.T) {
	cfg := NewConfig("exchange")

	assert.True(t, cfg.Producer.Return.Successes)
	assert.Equal(t, sarama.WaitForAll, cfg.Producer.RequiredAcks)
	assert.NoError(t, cfg.Validate())
}
