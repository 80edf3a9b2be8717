package natsx

import (
	"context"
	"errors"
	"testing"

	"PPRealtime/tools/errs"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, msg Message) error {
				order = append(order, name)
				return next(ctx, msg)
			}
		}
	}
	h := Chain(func(context.Context, Message) error {
		order = append(order, "handler")
		return nil
	}, mw("a"), mw("b"))

	assert.NoError(t, h(context.Background(), Message{}))
	assert.Equal(t, []string{"a", "b", "handler"}, order)
}

func TestSkipHeader(t *testing.T) {
	called := 0
	h := Chain(func(context.Context, Message) error {
		called++
		return errors.New("handled")
	}, SkipHeader("Rt-Origin", "gw-1"))

	assert.NoError(t, h(context.Background(), Message{Header: map[string]string{"Rt-Origin": "gw-1"}}))
	assert.Error(t, h(context.Background(), Message{Header: map[string]string{"Rt-Origin": "gw-2"}}))
	assert.Equal(t, 1, called)
}

func TestRequireHeader(t *testing.T) {
	h := Chain(func(context.Context, Message) error { return nil }, RequireHeader("Rt-Channel"))
	err := h(context.Background(), Message{})
	assert.True(t, errors.Is(err, errs.ErrInvalidRequest))
	assert.NoError(t, h(context.Background(), Message{Header: map[string]string{"Rt-Channel": "conversation:1"}}))
}

func TestConnectNeedsServers(t *testing.T) {
	_, err := Connect(Config{})
	assert.True(t, errors.Is(err, errs.ErrInvalidRequest))
}

func TestMessageRoundTrip(t *testing.T) {
	msg := newMsg("realtime.fanout", []byte(`{"a":1}`), map[string]string{"Rt-Channel": "post:1:likes"})
	msg.Header.Add("Rt-Channel", "ignored")

	got := toMessage(msg)
	assert.Equal(t, "realtime.fanout", got.Subject)
	assert.Equal(t, `{"a":1}`, string(got.Data))
	assert.Equal(t, "post:1:likes", got.Header["Rt-Channel"])

	got = toMessage(&nats.Msg{Subject: "s"})
	require.Nil(t, got.Header)
}
