package authz

import (
	"context"

	"PPRealtime/logger"
	"PPRealtime/service/pubsub"

	"go.uber.org/zap"
)

// DeniedReason 所有拒绝共用一个原因，不泄露会话是否存在
const DeniedReason = "not authorized for channel"

// Membership 会话成员判断，由 chat Directory 实现
type Membership interface {
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
}

type Decision struct {
	Allow  bool
	Reason string
}

var (
	allow = Decision{Allow: true}
	deny  = Decision{Reason: DeniedReason}
)

type Authorizer struct {
	members Membership
}

func NewAuthorizer(members Membership) *Authorizer {
	return &Authorizer{members: members}
}

// Authorize 订阅权限：
//
//	conversation:{id}     成员
//	notifications:{user}  本人
//	post:{id}:comments|likes  任意已登录用户
func (a *Authorizer) Authorize(ctx context.Context, principal, channel string) Decision {
	if principal == "" {
		return deny
	}
	ch, ok := pubsub.ParseChannel(channel)
	if !ok {
		return deny
	}
	switch ch.Kind {
	case pubsub.KindConversation:
		return a.member(ctx, principal, ch.ID)
	case pubsub.KindNotifications:
		if ch.ID == principal {
			return allow
		}
	case pubsub.KindPost:
		return allow
	}
	return deny
}

// AuthorizeSend 客户端只能往会话频道发
func (a *Authorizer) AuthorizeSend(ctx context.Context, principal, channel string) Decision {
	ch, ok := pubsub.ParseChannel(channel)
	if !ok || ch.Kind != pubsub.KindConversation || principal == "" {
		return deny
	}
	return a.member(ctx, principal, ch.ID)
}

func (a *Authorizer) member(ctx context.Context, principal, conversationID string) Decision {
	ok, err := a.members.IsParticipant(ctx, conversationID, principal)
	if err != nil {
		// 存储异常同样拒绝
		logger.Warn("membership check failed", zap.String("conversation", conversationID),
			zap.String("principal", principal), zap.Error(err))
		return deny
	}
	if !ok {
		return deny
	}
	return allow
}
