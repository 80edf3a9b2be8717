package mongoutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"PPRealtime/logger"
	"PPRealtime/tools/errs"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	defaultMaxPoolSize = 100
	defaultMaxRetry    = 3
	retryBackoff       = 500 * time.Millisecond
)

// mongo 鉴权类错误码，重试没有意义
const (
	codeUnauthorized         = 13
	codeAuthenticationFailed = 18
)

// Config Uri 与 Address 二选一；Uri 为空时由 Address + 凭证拼出
type Config struct {
	Uri         string
	Address     []string
	Database    string
	Username    string
	Password    string
	AuthSource  string
	MaxPoolSize int
	MaxRetry    int
}

func (c *Config) normalize() error {
	if c.Uri == "" && len(c.Address) == 0 {
		return errs.ErrInvalidRequest.WrapMsg("mongo uri or address is required")
	}
	if c.Database == "" {
		return errs.ErrInvalidRequest.WrapMsg("mongo database is required")
	}
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = defaultMaxPoolSize
	}
	if c.MaxRetry <= 0 {
		c.MaxRetry = defaultMaxRetry
	}
	if c.AuthSource == "" {
		c.AuthSource = c.Database
	}
	if c.Uri == "" {
		c.Uri = c.buildURI()
	}
	return nil
}

func (c *Config) buildURI() string {
	var b strings.Builder
	b.WriteString("mongodb://")
	if c.Username != "" && c.Password != "" {
		b.WriteString(c.Username + ":" + c.Password + "@")
	}
	b.WriteString(strings.Join(c.Address, ","))
	fmt.Fprintf(&b, "/%s?authSource=%s&maxPoolSize=%d", c.Database, c.AuthSource, c.MaxPoolSize)
	return b.String()
}

func (c *Config) clientOptions() *options.ClientOptions {
	opts := options.Client().ApplyURI(c.Uri).
		SetMaxPoolSize(uint64(c.MaxPoolSize)).
		SetServerSelectionTimeout(5 * time.Second)
	// 显式给了用户名时覆盖 URI 里的认证
	if c.Username != "" {
		opts.SetAuth(options.Credential{
			Username:   c.Username,
			Password:   c.Password,
			AuthSource: c.AuthSource,
		})
	}
	return opts
}

type Client struct {
	cli *mongo.Client
	db  *mongo.Database
}

func (c *Client) DB() *mongo.Database { return c.db }

func (c *Client) Close(ctx context.Context) error {
	return c.cli.Disconnect(ctx)
}

// Connect 连接并 ping；鉴权失败立即返回，其余错误最多重试 MaxRetry 次
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	opts := cfg.clientOptions()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxRetry; attempt++ {
		cli, err := dial(ctx, opts)
		if err == nil {
			return &Client{cli: cli, db: cli.Database(cfg.Database)}, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
		logger.Warn("mongo connect failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, errs.WrapMsg(ctx.Err(), "mongo connect")
		case <-time.After(retryBackoff):
		}
	}
	return nil, errs.WrapMsg(lastErr, "mongo connect", "db", cfg.Database)
}

func dial(ctx context.Context, opts *options.ClientOptions) (*mongo.Client, error) {
	cli, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := cli.Ping(ctx, nil); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, err
	}
	return cli, nil
}

func retryable(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code != codeUnauthorized && cmdErr.Code != codeAuthenticationFailed
	}
	return true
}
