package kafka

import (
	"errors"

	"PPRealtime/logger"

	"github.com/Shopify/sarama"
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// EnsureTopic 不存在就按配置创建；已存在且分区少于期望时扩分区（Kafka 只能加不能减）
func EnsureTopic(admin sarama.ClusterAdmin, c Config) error {
	descs, err := admin.DescribeTopics([]string{c.Topic})
	if err != nil {
		return pkgerrors.Wrapf(err, "describe topic %s", c.Topic)
	}
	exists := len(descs) == 1 && descs[0].Err == sarama.ErrNoError

	partitions := c.Partitions
	if partitions <= 0 {
		partitions = 1
	}
	rf := c.ReplicationFactor
	if rf <= 0 {
		rf = 1
	}

	if !exists {
		minISR := "1"
		if rf >= 3 {
			minISR = "2"
		}
		td := &sarama.TopicDetail{
			NumPartitions:     partitions,
			ReplicationFactor: rf,
			ConfigEntries: map[string]*string{
				"cleanup.policy":                 strPtr("delete"),
				"min.insync.replicas":            strPtr(minISR),
				"unclean.leader.election.enable": strPtr("false"),
			},
		}
		if err := admin.CreateTopic(c.Topic, td, false); err != nil {
			var te *sarama.TopicError
			if (errors.As(err, &te) && te.Err == sarama.ErrTopicAlreadyExists) || errors.Is(err, sarama.ErrTopicAlreadyExists) {
				logger.Info("[Topic] exists (race)", zap.String("topic", c.Topic))
				return nil
			}
			return pkgerrors.Wrapf(err, "create topic %s", c.Topic)
		}
		logger.Info("[Topic] created", zap.String("topic", c.Topic), zap.Int32("partitions", partitions), zap.Int16("rf", rf))
		return nil
	}

	cur := int32(len(descs[0].Partitions))
	if partitions > cur {
		if err := admin.CreatePartitions(c.Topic, partitions, nil, false); err != nil {
			return pkgerrors.Wrapf(err, "expand partitions %s from %d to %d", c.Topic, cur, partitions)
		}
		logger.Info("[Topic] partitions expanded", zap.String("topic", c.Topic), zap.Int32("from", cur), zap.Int32("to", partitions))
	}
	return nil
}

func strPtr(s string) *string { return &s }
