package kafka

import (
	"context"
	"errors"
	"time"

	"PPRealtime/logger"
	"PPRealtime/tools/errs"
	"PPRealtime/tools/safe"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

const (
	minRetryWait = 200 * time.Millisecond
	maxRetryWait = 10 * time.Second
)

// ConsumerGroupHandler 处理成功或确定无法处理的消息才提交位点；
// 存储类错误原地退避重试，会话结束时不提交，由下一个持有者重新消费
type ConsumerGroupHandler struct {
	router  *Router
	minWait time.Duration
	maxWait time.Duration
}

func NewConsumerGroupHandler(router *Router) *ConsumerGroupHandler {
	return &ConsumerGroupHandler{router: router, minWait: minRetryWait, maxWait: maxRetryWait}
}

func (h *ConsumerGroupHandler) Setup(s sarama.ConsumerGroupSession) error {
	logger.Info("Consumer group setup", zap.Any("claims", s.Claims()))
	return nil
}

func (h *ConsumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	logger.Info("Consumer group cleanup")
	return nil
}

func (h *ConsumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if !h.handle(session.Context(), msg) {
			return nil
		}
		session.MarkMessage(msg, "")
	}
	return nil
}

// Retryable 被拒绝的事件（参数非法、无权限、不存在）重试也不会成功；
// 其余错误（存储、网络）按可重试处理
func Retryable(err error) bool {
	switch errs.AsCode(err).Code {
	case errs.ServerInternalError, errs.TransientStoreConflict:
		return true
	}
	return false
}

// handle 返回 false 表示消息未处理成功而 ctx 已结束
func (h *ConsumerGroupHandler) handle(ctx context.Context, msg *sarama.ConsumerMessage) bool {
	handler, err := h.router.GetHandler(msg.Topic)
	if err != nil {
		logger.Warn("No handler for topic", zap.String("topic", msg.Topic))
		return true
	}
	wait := h.minWait
	if wait <= 0 {
		wait = minRetryWait
	}
	maxWait := h.maxWait
	if maxWait < wait {
		maxWait = wait
	}
	for attempt := 1; ; attempt++ {
		err := handler(ctx, msg.Topic, msg.Key, msg.Value)
		if err == nil {
			return true
		}
		fields := []zap.Field{zap.String("topic", msg.Topic), zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset), zap.Int("attempt", attempt), zap.Error(err)}
		if !Retryable(err) {
			logger.Warn("Event rejected, skipping", fields...)
			return true
		}
		logger.Warn("Handler error, retrying", fields...)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
		if wait *= 2; wait > maxWait {
			wait = maxWait
		}
	}
}

// Consumer 一个消费组，Run 阻塞到 ctx 结束
type Consumer struct {
	cfg     Config
	router  *Router
	group   sarama.ConsumerGroup
	retryIn time.Duration
}

func NewConsumer(cfg Config, router *Router) (*Consumer, error) {
	scfg := BuildBaseConfig(cfg)
	if cfg.EnsureTopic {
		admin, err := sarama.NewClusterAdmin(cfg.Brokers, scfg)
		if err != nil {
			return nil, err
		}
		err = EnsureTopic(admin, cfg)
		_ = admin.Close()
		if err != nil {
			return nil, err
		}
	}
	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, scfg)
	if err != nil {
		return nil, err
	}
	return &Consumer{cfg: cfg, router: router, group: group, retryIn: 2 * time.Second}, nil
}

func (c *Consumer) Run(ctx context.Context) error {
	safe.SafeGo(func() {
		for err := range c.group.Errors() {
			logger.Warn("Consumer group error", zap.Error(err))
		}
	})

	handler := NewConsumerGroupHandler(c.router)
	topics := c.router.Topics()
	logger.Info("kafka consumer started", zap.Strings("topics", topics), zap.String("group", c.cfg.GroupID))
	for {
		// 每次 rebalance 之后 Consume 返回，需要重新进入
		if err := c.group.Consume(ctx, topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			logger.Warn("Consume error", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retryIn):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}
