package watcher

import "github.com/0xPolygonHermez/zkevm-tx-engine/config/types"

// Config for the chain block watcher
type Config struct {
	// ResubscribeMinWait is the lower bound of the wait before resubscribing to a failed chain
	ResubscribeMinWait types.Duration `mapstructure:"ResubscribeMinWait"`

	// ResubscribeMaxWait is the upper bound of the wait before resubscribing to a failed chain
	ResubscribeMaxWait types.Duration `mapstructure:"ResubscribeMaxWait"`

	// StreamBuffer is the buffer of every block stream subscriber
	StreamBuffer int `mapstructure:"StreamBuffer"`

	// Kafka configures the block sink. The sink is disabled when Brokers is empty
	Kafka KafkaConfig `mapstructure:"Kafka"`
}

// KafkaConfig configures the kafka block sink
type KafkaConfig struct {
	// Brokers are the kafka bootstrap brokers
	Brokers []string `mapstructure:"Brokers"`

	// TopicPrefix is the prefix of the per chain topics, <prefix>-<chainID>
	TopicPrefix string `mapstructure:"TopicPrefix"`
}
