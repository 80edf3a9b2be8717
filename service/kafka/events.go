package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"PPRealtime/data/database"
	"PPRealtime/logger"
	"PPRealtime/module/notification/model"
	nsvc "PPRealtime/module/notification/service"
	"PPRealtime/module/user"
	"PPRealtime/service/metrics"
	"PPRealtime/service/pubsub"
	"PPRealtime/tools/decode"
	"PPRealtime/tools/errs"

	"go.uber.org/zap"
)

// DomainEvent 外部协作方（帖子、评论、点赞）投递的事件
type DomainEvent struct {
	Type      string          `json:"type"`
	Sender    string          `json:"sender"`
	Recipient string          `json:"recipient"`
	PostID    *int64          `json:"postId"`
	CommentID *int64          `json:"commentId"`
	Text      string          `json:"text"` // 评论正文，@handle 产生 MENTION
	Channel   string          `json:"channel"`
	Payload   json.RawMessage `json:"payload"`
}

type Notifier interface {
	Notify(ctx context.Context, req nsvc.NotifyRequest) (*model.Notification, error)
}

// EventHandler type 非空 -> 建通知，text 里能解析到用户的 @ 再各建一条 MENTION；
// channel 是公开帖子频道 -> 转发 payload
type EventHandler struct {
	notifier Notifier
	pub      pubsub.Publisher
	profiles user.ProfileProvider // nil 时不校验 @ 的用户是否存在
}

func NewEventHandler(notifier Notifier, pub pubsub.Publisher, profiles user.ProfileProvider) *EventHandler {
	return &EventHandler{notifier: notifier, pub: pub, profiles: profiles}
}

func ParseEvent(value []byte) (*DomainEvent, error) {
	st, err := decode.ParseJSON(value)
	if err != nil {
		return nil, err
	}
	ev, err := decode.DecodeStruct[DomainEvent](st)
	if err != nil {
		return nil, err
	}
	ev.Type = strings.TrimSpace(ev.Type)
	ev.Sender = strings.TrimSpace(ev.Sender)
	ev.Recipient = strings.TrimSpace(ev.Recipient)
	ev.Channel = strings.TrimSpace(ev.Channel)
	if ev.Type == "" && ev.Channel == "" {
		return nil, errs.ErrInvalidRequest.WrapMsg("event has neither type nor channel")
	}
	return ev, nil
}

// Handle 签名符合 MessageHandler。
// 只有主通知落库失败会返回可重试错误；主通知之后的步骤（@、转发）都是尽力而为，
// 避免重新消费时重复建主通知
func (h *EventHandler) Handle(ctx context.Context, topic string, _, value []byte) error {
	ev, err := ParseEvent(value)
	if err != nil {
		metrics.KafkaEvents.WithLabelValues("malformed").Inc()
		logger.Warn("skip malformed event", zap.String("topic", topic), zap.Error(err))
		return nil
	}

	if ev.Type != "" {
		if err := h.notify(ctx, ev); err != nil {
			metrics.KafkaEvents.WithLabelValues("failed").Inc()
			return err
		}
	}

	if ev.Channel != "" {
		if err := h.forward(ctx, ev); err != nil {
			metrics.KafkaEvents.WithLabelValues("failed").Inc()
			if !Retryable(err) {
				return err
			}
			logger.Warn("forward event failed", zap.String("channel", ev.Channel), zap.Error(err))
			return nil
		}
	}
	metrics.KafkaEvents.WithLabelValues("handled").Inc()
	return nil
}

func (h *EventHandler) notify(ctx context.Context, ev *DomainEvent) error {
	t, ok := model.ParseType(ev.Type)
	if !ok {
		return errs.ErrInvalidRequest.WrapMsg("unknown notification type", "type", ev.Type)
	}
	if _, err := h.notifier.Notify(ctx, nsvc.NotifyRequest{
		Type:      t,
		Sender:    ev.Sender,
		Recipient: ev.Recipient,
		PostID:    ev.PostID,
		CommentID: ev.CommentID,
	}); err != nil {
		return err
	}

	// 单个 @ 失败不影响其他人
	for _, handle := range model.Mentions(ev.Text) {
		if !h.knownUser(ctx, handle) {
			continue
		}
		if _, err := h.notifier.Notify(ctx, nsvc.NotifyRequest{
			Type:      model.TypeMention,
			Sender:    ev.Sender,
			Recipient: handle,
			PostID:    ev.PostID,
			CommentID: ev.CommentID,
		}); err != nil {
			logger.Warn("mention notify failed", zap.String("recipient", handle), zap.Error(err))
		}
	}
	return nil
}

// forward 只转发公开帖子频道，私有频道不能被外部事件写入
func (h *EventHandler) forward(ctx context.Context, ev *DomainEvent) error {
	if !pubsub.IsPublicPost(ev.Channel) {
		return errs.ErrAuthorizationDenied.WrapMsg("event channel is not public", "channel", ev.Channel)
	}
	if h.pub == nil || len(ev.Payload) == 0 {
		return nil
	}
	return h.pub.Publish(ctx, ev.Channel, ev.Payload)
}

// knownUser 查不到资料的 @ 不建通知；查询出错时同样跳过
func (h *EventHandler) knownUser(ctx context.Context, userID string) bool {
	if h.profiles == nil {
		return true
	}
	_, err := h.profiles.Profile(ctx, userID)
	if err == nil {
		return true
	}
	if !errors.Is(err, database.ErrNotFound) {
		logger.Warn("mention lookup failed", zap.String("user", userID), zap.Error(err))
	}
	return false
}
