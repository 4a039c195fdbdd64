package kafka

import (
	"github.com/IBM/sarama"
)

const traceHeader = "x-request-id"

// NewConfig returns the client settings shared by the producer and the
// consumer group. Producers wait for all in-sync replicas.
func NewConfig(clientID string) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Version = sarama.V3_7_0_0

	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Retry.Max = 3

	cfg.Consumer.Return.Errors = true
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{
		sarama.NewBalanceStrategyRoundRobin(),
	}

	return cfg
}

func headers(traceID string) []sarama.RecordHeader {
	if traceID == "" {
		return nil
	}
	return []sarama.RecordHeader{{Key: []byte(traceHeader), Value: []byte(traceID)}}
}

func traceIDFrom(message *sarama.ConsumerMessage) string {
	for _, header := range message.Headers {
		if header != nil && string(header.Key) == traceHeader {
			return string(header.Value)
		}
	}
	return ""
}
