package database

import (
	"context"
	"errors"
	"time"

	chatmodel "PPRealtime/module/chat/model"
	notifymodel "PPRealtime/module/notification/model"
)

var (
	// ErrConflict 唯一约束冲突（单聊并发创建）
	ErrConflict = errors.New("database: unique constraint conflict")
	// ErrNotFound 行不存在
	ErrNotFound = errors.New("database: not found")
)

// ChatStore 会话、成员与消息的持久化。实现必须保证 dm_key 唯一。
type ChatStore interface {
	// FindDirect 按单聊键查会话，不存在返回 ErrNotFound
	FindDirect(ctx context.Context, dmKey string) (*chatmodel.Conversation, error)
	// CreateConversation 在一个事务里写会话和全部成员；dm_key 冲突返回 ErrConflict
	CreateConversation(ctx context.Context, conv *chatmodel.Conversation, members []string) error
	GetConversation(ctx context.Context, conversationID string) (*chatmodel.Conversation, error)
	// GetParticipant 成员不存在返回 ErrNotFound
	GetParticipant(ctx context.Context, conversationID, userID string) (*chatmodel.Participant, error)
	ListParticipants(ctx context.Context, conversationID string) ([]chatmodel.Participant, error)

	// AppendMessage 同一事务内写消息并把发送者 last_read_at 推进到消息时间；
	// 发送者不是成员时返回 ErrNotFound 且不落任何数据。成功后回填 msg.Seq。
	AppendMessage(ctx context.Context, msg *chatmodel.Message) error
	// ListMessages created_at DESC, seq DESC
	ListMessages(ctx context.Context, conversationID string, offset, limit int) ([]chatmodel.Message, error)

	// ListConversationStates 用户参与的全部会话及最后一条消息
	ListConversationStates(ctx context.Context, userID string) ([]chatmodel.ConversationState, error)
	// AdvanceLastRead 只前进不后退；成员不存在返回 ErrNotFound
	AdvanceLastRead(ctx context.Context, conversationID, userID string, at time.Time) error
}

// NotificationStore 通知持久化
type NotificationStore interface {
	InsertNotification(ctx context.Context, n *notifymodel.Notification) error
	// ListNotifications created_at DESC, id DESC；limit <= 0 表示不限
	ListNotifications(ctx context.Context, recipient string, limit int) ([]notifymodel.Notification, error)
	CountUnread(ctx context.Context, recipient string) (int, error)
	// MarkRead 不存在或不属于 recipient 返回 ErrNotFound；已读再标记不报错
	MarkRead(ctx context.Context, id int64, recipient string) error
	MarkAllRead(ctx context.Context, recipient string) (int, error)
}

// Profile 用户资料快照，由外部用户系统维护
type Profile struct {
	UserID    string `bson:"_id" json:"id"`
	Username  string `bson:"username" json:"username"`
	Email     string `bson:"email,omitempty" json:"email,omitempty"`
	AvatarURL string `bson:"avatar_url,omitempty" json:"avatarUrl,omitempty"`
}

func (p *Profile) GetTableName() string {
	return "user_profiles"
}

// ProfileStore 资料表读写；写入只给数据同步和测试用
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	UpsertProfile(ctx context.Context, p *Profile) error
}

// Micros 统一截断到微秒并转 UTC，保证各存储往返一致
func Micros(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
