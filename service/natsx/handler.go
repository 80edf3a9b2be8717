package natsx

import "context"

// Message 收到的一条消息；Header 只保留每个键的第一个值
type Message struct {
	Subject string
	Data    []byte
	Header  map[string]string
}

type Handler func(ctx context.Context, msg Message) error

type Middleware func(Handler) Handler

// Chain 第一个中间件在最外层
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// SkipHeader 丢弃 header[key] == value 的消息，用于跳过本实例发出的广播
func SkipHeader(key, value string) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg Message) error {
			if msg.Header[key] == value {
				return nil
			}
			return next(ctx, msg)
		}
	}
}

// RequireHeader 缺少 key 的消息直接报错，不进入业务处理
func RequireHeader(key string) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg Message) error {
			if msg.Header[key] == "" {
				return errMissingHeader(key)
			}
			return next(ctx, msg)
		}
	}
}
