package model

import (
	"strings"
	"time"
)

// Type 通知类型，封闭枚举
type Type string

const (
	TypeMention Type = "MENTION"
	TypeComment Type = "COMMENT"
	TypeReply   Type = "REPLY"
	TypeLike    Type = "LIKE"
)

func ParseType(s string) (Type, bool) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	return t, t.Valid()
}

func (t Type) Valid() bool {
	switch t {
	case TypeMention, TypeComment, TypeReply, TypeLike:
		return true
	}
	return false
}

// DisplayText 展示文案在读取时由 (类型, 发送者名) 推导，不落库
func DisplayText(t Type, senderName string) string {
	switch t {
	case TypeMention:
		return senderName + " mentioned you in a comment"
	case TypeComment:
		return senderName + " commented on your post"
	case TypeReply:
		return senderName + " replied to your comment"
	case TypeLike:
		return senderName + " liked your post"
	}
	return ""
}

type Notification struct {
	ID               int64     `bson:"_id" json:"id"`
	Recipient        string    `bson:"recipient" json:"recipient"`
	Sender           string    `bson:"sender" json:"sender"`
	Type             Type      `bson:"type" json:"type"`
	SubjectPostID    *int64    `bson:"post_id,omitempty" json:"postId,omitempty"`
	SubjectCommentID *int64    `bson:"comment_id,omitempty" json:"commentId,omitempty"`
	Read             bool      `bson:"read" json:"read"`
	CreatedAt        time.Time `bson:"created_at" json:"createdAt"`
}

func (n *Notification) GetTableName() string {
	return "notifications"
}

type SenderView struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// View 返回给客户端（REST 与实时推送同一结构）
type View struct {
	ID        int64      `json:"id"`
	Sender    SenderView `json:"sender"`
	Type      Type       `json:"type"`
	PostID    *int64     `json:"postId,omitempty"`
	CommentID *int64     `json:"commentId,omitempty"`
	Read      bool       `json:"read"`
	CreatedAt time.Time  `json:"createdAt"`
	Message   string     `json:"message"`
}

func NewView(n *Notification, sender SenderView) View {
	return View{
		ID:        n.ID,
		Sender:    sender,
		Type:      n.Type,
		PostID:    n.SubjectPostID,
		CommentID: n.SubjectCommentID,
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
		Message:   DisplayText(n.Type, sender.Username),
	}
}
