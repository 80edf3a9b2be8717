package natsx

import (
	"context"
	"strings"
	"sync"
	"time"

	"PPRealtime/logger"
	"PPRealtime/tools/errs"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Config struct {
	Servers       []string
	Name          string
	User          string
	Password      string
	ReconnectWait time.Duration
	Timeout       time.Duration
	Retries       int           // Publish 失败重试次数
	Backoff       time.Duration // 重试间隔
}

func (c *Config) norm() {
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = 500 * time.Millisecond
	}
	if c.Timeout <= 0 {
		c.Timeout = 3 * time.Second
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.Backoff <= 0 {
		c.Backoff = 100 * time.Millisecond
	}
}

// Client core NATS 连接：广播订阅 + 带重试的发布，不使用 JetStream
type Client struct {
	cfg Config
	nc  *nats.Conn

	mu   sync.Mutex
	subs []*nats.Subscription
}

func Connect(cfg Config) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, errs.ErrInvalidRequest.WrapMsg("nats servers missing")
	}
	cfg.norm()
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("[natsx] disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("[natsx] reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, errors.Wrap(err, "nats connect")
	}
	return &Client{cfg: cfg, nc: nc}, nil
}

// Publish 发布到 subject；断线重连期间的失败按 Retries 重试
func (c *Client) Publish(ctx context.Context, subject string, data []byte, hdr map[string]string) error {
	msg := newMsg(subject, data, hdr)
	var err error
	for i := 0; ; i++ {
		if err = c.nc.PublishMsg(msg); err == nil {
			return nil
		}
		if i >= c.cfg.Retries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.Backoff):
		}
	}
	return errors.Wrapf(err, "publish %s", subject)
}

// Subscribe 非队列订阅：每个实例都收到一份
func (c *Client) Subscribe(subject string, h Handler, mws ...Middleware) error {
	h = Chain(h, mws...)
	sub, err := c.nc.Subscribe(subject, func(m *nats.Msg) {
		if err := h(context.Background(), toMessage(m)); err != nil {
			logger.Warn("[natsx] handle failed", zap.String("subject", m.Subject), zap.Error(err))
		}
	})
	if err != nil {
		return errors.Wrapf(err, "subscribe %s", subject)
	}
	_ = sub.SetPendingLimits(1_000_000, 64*1024*1024)

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return nil
}

// Close 先 drain 订阅再 drain 连接
func (c *Client) Close() error {
	if c == nil || c.nc == nil {
		return nil
	}
	c.mu.Lock()
	for _, sub := range c.subs {
		_ = sub.Drain()
	}
	c.subs = nil
	c.mu.Unlock()
	return c.nc.Drain()
}

func newMsg(subject string, data []byte, hdr map[string]string) *nats.Msg {
	msg := nats.NewMsg(subject)
	msg.Data = data
	for k, v := range hdr {
		msg.Header.Set(k, v)
	}
	return msg
}

func toMessage(m *nats.Msg) Message {
	out := Message{Subject: m.Subject, Data: append([]byte(nil), m.Data...)}
	if len(m.Header) > 0 {
		out.Header = make(map[string]string, len(m.Header))
		for k, v := range m.Header {
			if len(v) > 0 {
				out.Header[k] = v[0]
			}
		}
	}
	return out
}

func errMissingHeader(key string) error {
	return errs.ErrInvalidRequest.WrapMsg("nats message missing header", "key", key)
}
