package pubsub

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

// Publisher 业务侧只依赖这个接口
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Bus 在 Publisher 之上负责跨实例传播；Start 阻塞到 ctx 结束
type Bus interface {
	Publisher
	Start(ctx context.Context) error
	Close() error
}

// PublishJSON 序列化后发布
func PublishJSON(ctx context.Context, p Publisher, channel string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "marshal event for %s", channel)
	}
	return p.Publish(ctx, channel, b)
}

// envelope 跨实例传输格式
type envelope struct {
	Origin  string          `json:"origin"`
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}

// LocalBus 单实例：直接投递到本地 Hub
type LocalBus struct {
	hub *Hub
}

func NewLocalBus(hub *Hub) *LocalBus {
	return &LocalBus{hub: hub}
}

func (b *LocalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.hub.Publish(channel, payload)
	return nil
}

func (b *LocalBus) Start(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (b *LocalBus) Close() error { return nil }
