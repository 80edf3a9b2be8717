package pubsub

import (
	"context"

	"PPRealtime/logger"
	"PPRealtime/service/natsx"

	"github.com/pkg/errors"
)

const (
	headerOrigin = "Rt-Origin"
	headerChan   = "Rt-Channel"
)

// NatsBus 本地先投递，再广播到 NATS；其他实例收到后投递给各自的 Hub
type NatsBus struct {
	hub        *Hub
	client     *natsx.Client
	subject    string
	instanceID string
}

func NewNatsBus(hub *Hub, cfg natsx.Config, subject, instanceID string) (*NatsBus, error) {
	client, err := natsx.Connect(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connect nats")
	}
	return &NatsBus{hub: hub, client: client, subject: subject, instanceID: instanceID}, nil
}

func (b *NatsBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.hub.Publish(channel, payload)
	return b.client.Publish(ctx, b.subject, payload, map[string]string{
		headerOrigin: b.instanceID,
		headerChan:   channel,
	})
}

func (b *NatsBus) Start(ctx context.Context) error {
	// 自己发出的消息本地已经投递过
	err := b.client.Subscribe(b.subject, func(_ context.Context, msg natsx.Message) error {
		b.hub.Publish(msg.Header[headerChan], msg.Data)
		return nil
	}, natsx.SkipHeader(headerOrigin, b.instanceID), natsx.RequireHeader(headerChan))
	if err != nil {
		return errors.Wrap(err, "subscribe nats fanout")
	}
	logger.Infof("[pubsub] nats bus started, instance=%s", b.instanceID)
	<-ctx.Done()
	return nil
}

func (b *NatsBus) Close() error {
	return b.client.Close()
}
