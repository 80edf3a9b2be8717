package pubsub

import (
	"context"
	"encoding/json"

	"PPRealtime/logger"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisFanoutChannel = "rt:fanout"

// RedisBus 与 NatsBus 相同语义，走 Redis Pub/Sub
type RedisBus struct {
	hub        *Hub
	rdb        *redis.Client
	instanceID string
}

func NewRedisBus(hub *Hub, rdb *redis.Client, instanceID string) *RedisBus {
	return &RedisBus{hub: hub, rdb: rdb, instanceID: instanceID}
}

func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.hub.Publish(channel, payload)
	raw, err := json.Marshal(envelope{Origin: b.instanceID, Channel: channel, Payload: payload})
	if err != nil {
		return errors.Wrap(err, "marshal fanout envelope")
	}
	return errors.Wrap(b.rdb.Publish(ctx, redisFanoutChannel, raw).Err(), "redis publish")
}

func (b *RedisBus) Start(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, redisFanoutChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return errors.Wrap(err, "redis subscribe")
	}
	logger.Infof("[pubsub] redis bus started, instance=%s", b.instanceID)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			b.handle(m.Payload)
		}
	}
}

func (b *RedisBus) handle(raw string) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil || env.Channel == "" {
		logger.Warn("drop malformed fanout envelope", zap.String("raw", raw))
		return
	}
	if env.Origin == b.instanceID {
		return
	}
	b.hub.Publish(env.Channel, env.Payload)
}

func (b *RedisBus) Close() error { return nil }
