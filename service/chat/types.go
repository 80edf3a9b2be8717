package chat

import (
	"context"

	"PPRealtime/module/chat/model"
	"PPRealtime/service/authz"
)

// Handler 按帧类型处理；返回的错误会变成 ERROR 帧
type Handler interface {
	Verb() string
	Handle(ctx context.Context, c *WsConn, f *Frame) error
}

type TokenVerifier interface {
	Verify(token string) (string, error)
}

type ChannelAuthorizer interface {
	Authorize(ctx context.Context, principal, channel string) authz.Decision
	AuthorizeSend(ctx context.Context, principal, channel string) authz.Decision
}

type MessageAppender interface {
	Append(ctx context.Context, conversationID, senderID, content, attachmentURL string) (*model.Message, error)
}
