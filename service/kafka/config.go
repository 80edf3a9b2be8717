package kafka

import (
	"strings"
	"time"

	"PPRealtime/global/config"

	"github.com/Shopify/sarama"
)

type Config struct {
	Brokers           []string
	GroupID           string
	Topic             string
	InitialOffset     string // newest/oldest
	EnsureTopic       bool
	Partitions        int32
	ReplicationFactor int16
	Version           sarama.KafkaVersion
}

func ConfigFrom(c config.KafkaConfig) Config {
	return Config{
		Brokers:           c.Brokers,
		GroupID:           c.GroupID,
		Topic:             c.Topic,
		InitialOffset:     c.InitialOffset,
		EnsureTopic:       c.EnsureTopic,
		Partitions:        c.Partitions,
		ReplicationFactor: c.Replication,
		Version:           sarama.V2_1_0_0,
	}
}

func BuildBaseConfig(c Config) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = "realtime-gateway"
	cfg.Version = c.Version
	if cfg.Version == (sarama.KafkaVersion{}) {
		cfg.Version = sarama.V2_1_0_0
	}

	switch strings.ToLower(c.InitialOffset) {
	case "oldest":
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	default:
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Return.Errors = true
	cfg.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRange

	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = 30 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second
	return cfg
}
