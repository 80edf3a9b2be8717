package model

import (
	"strconv"
	"time"
)

// Conversation 会话（单聊或群聊），创建后成员不再变化
type Conversation struct {
	ID        string    `bson:"_id" json:"id"`
	IsGroup   bool      `bson:"is_group" json:"group"`
	DMKey     string    `bson:"dm_key,omitempty" json:"-"` // 单聊唯一键，群聊为空
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

func (c *Conversation) GetTableName() string {
	return "conversations"
}

// Participant 会话成员；成员行存在是访问会话的唯一依据
type Participant struct {
	ConversationID string     `bson:"conversation_id" json:"conversationId"`
	UserID         string     `bson:"user_id" json:"userId"`
	LastReadAt     *time.Time `bson:"last_read_at,omitempty" json:"lastReadAt,omitempty"` // nil = 从未读过
}

func (p *Participant) GetTableName() string {
	return "conversation_participants"
}

// DMKey 无序用户对的规范键：dm:<len(lo)>:<lo>:<hi>，长度前缀保证任意 userID 都不会撞键
func DMKey(a, b string) string {
	lo, hi := a, b
	if hi < lo {
		lo, hi = hi, lo
	}
	return "dm:" + strconv.Itoa(len(lo)) + ":" + lo + ":" + hi
}

// LastMessage 会话列表里的最后一条消息预览
type LastMessage struct {
	SenderID      string    `json:"senderId"`
	Content       string    `json:"content"`
	AttachmentURL string    `json:"attachmentUrl,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ConversationSummary 会话列表项
type ConversationSummary struct {
	ID                 string       `json:"id"`
	IsGroup            bool         `json:"group"`
	CreatedAt          time.Time    `json:"createdAt"`
	OtherUserID        string       `json:"otherUserId,omitempty"`
	OtherUserName      string       `json:"otherUserName,omitempty"`
	OtherUserAvatarURL string       `json:"otherUserAvatarUrl,omitempty"`
	LastMessage        *LastMessage `json:"lastMessage,omitempty"`
	Unread             bool         `json:"unread"`
	UnreadCount        int          `json:"unreadCount"` // 0/1，与 Unread 等价
}

// LastActivity 排序依据：最后一条消息时间，没有消息时取创建时间
func (s *ConversationSummary) LastActivity() time.Time {
	if s.LastMessage != nil {
		return s.LastMessage.CreatedAt
	}
	return s.CreatedAt
}

// ConversationState 存储层按用户查出的会话原始状态，由服务层补全资料后转成 Summary
type ConversationState struct {
	Conversation Conversation
	LastReadAt   *time.Time
	OtherUserIDs []string
	Latest       *Message
}
