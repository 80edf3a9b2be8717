package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"PPRealtime/data/database"
	"PPRealtime/logger"
	"PPRealtime/module/chat/model"
	"PPRealtime/service/metrics"
	"PPRealtime/service/pubsub"
	"PPRealtime/tools/errs"
	"PPRealtime/tools/ids"

	"go.uber.org/zap"
)

// MessageLog 消息追加与分页读取
type MessageLog struct {
	store database.ChatStore
	dir   *Directory
	pub   pubsub.Publisher // 可以为 nil，此时不推送
	now   func() time.Time
}

func NewMessageLog(store database.ChatStore, dir *Directory, pub pubsub.Publisher) *MessageLog {
	return &MessageLog{store: store, dir: dir, pub: pub, now: time.Now}
}

// Append 校验、落库，成功后把消息推到 conversation:{id}。
// 发送者的 last_read_at 与消息在同一事务内推进。
func (l *MessageLog) Append(ctx context.Context, conversationID, senderID, content, attachmentURL string) (*model.Message, error) {
	// 成员校验先于内容校验：非成员一律 NotAParticipant，事务内还会再查一次
	ok, err := l.dir.IsParticipant(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrNotAParticipant.WrapMsg("conversation", "id", conversationID, "sender", senderID)
	}
	content = strings.TrimSpace(content)
	attachmentURL = strings.TrimSpace(attachmentURL)
	if content == "" && attachmentURL == "" {
		return nil, errs.ErrEmptyMessage.WrapMsg("content or attachment is required")
	}
	if utf8.RuneCountInString(content) > model.MaxContentLength {
		return nil, errs.ErrInvalidRequest.WrapMsg("content too long", "max", model.MaxContentLength)
	}

	msg := &model.Message{
		ID:             ids.NewUUID(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		AttachmentURL:  attachmentURL,
		CreatedAt:      database.Micros(l.now()),
	}
	if err := l.store.AppendMessage(ctx, msg); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, errs.ErrNotAParticipant.WrapMsg("conversation", "id", conversationID, "sender", senderID)
		}
		return nil, errs.WrapMsg(err, "append message", "conversation", conversationID)
	}
	metrics.MessagesAppended.Inc()

	l.publish(ctx, msg)
	return msg, nil
}

// publish 尽力推送，失败只记日志
func (l *MessageLog) publish(ctx context.Context, msg *model.Message) {
	if l.pub == nil {
		return
	}
	if err := pubsub.PublishJSON(ctx, l.pub, pubsub.ConversationChannel(msg.ConversationID), msg); err != nil {
		logger.Warn("publish message failed", zap.String("conversation", msg.ConversationID), zap.String("message", msg.ID), zap.Error(err))
	}
}

// list 不做成员校验，只给 ListFor 用
func (l *MessageLog) list(ctx context.Context, conversationID string, page model.Page) ([]model.Message, error) {
	page = page.Normalize()
	msgs, err := l.store.ListMessages(ctx, conversationID, page.Offset(), page.Size)
	if err != nil {
		return nil, errs.WrapMsg(err, "list messages", "conversation", conversationID)
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return msgs, nil
}

// ListFor REST 使用：非成员按不存在处理
func (l *MessageLog) ListFor(ctx context.Context, principal, conversationID string, page model.Page) ([]model.Message, error) {
	ok, err := l.dir.IsParticipant(ctx, conversationID, principal)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrNotFound.WrapMsg("conversation", "id", conversationID)
	}
	return l.list(ctx, conversationID, page)
}
