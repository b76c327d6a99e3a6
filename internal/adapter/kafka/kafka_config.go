package kafka

import (
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// NewGroup joins the payment-event consumer group. initial picks where a new
// group starts reading: "oldest" replays the topic, anything else starts at the head.
func NewGroup(brokers []string, groupID, initial string) (sarama.ConsumerGroup, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = groupID
	cfg.Version = sarama.V2_6_0_0
	cfg.Net.DialTimeout = 5 * time.Second
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategySticky()}
	cfg.Consumer.Offsets.AutoCommit.Interval = time.Second
	switch initial {
	case "oldest":
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	default:
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}

	g, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka group %s: %w", groupID, err)
	}
	return g, nil
}
