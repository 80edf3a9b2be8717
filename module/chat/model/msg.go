package model

import "time"

const (
	MaxContentLength = 5000
	DefaultPageSize  = 30
	MaxPageSize      = 100
)

// Message 追加写入，不修改（EditedAt 只保留字段）
type Message struct {
	ID             string     `bson:"_id" json:"id"`
	ConversationID string     `bson:"conversation_id" json:"conversationId"`
	SenderID       string     `bson:"sender_id" json:"senderId"`
	Content        string     `bson:"content,omitempty" json:"content,omitempty"`
	AttachmentURL  string     `bson:"attachment_url,omitempty" json:"attachmentUrl,omitempty"`
	CreatedAt      time.Time  `bson:"created_at" json:"createdAt"`
	EditedAt       *time.Time `bson:"edited_at,omitempty" json:"editedAt,omitempty"`
	Seq            int64      `bson:"seq" json:"-"` // 同一时间戳下的插入顺序
}

func (m *Message) GetTableName() string {
	return "messages"
}

// Page 偏移分页参数，Normalize 之后可直接用
type Page struct {
	Page int
	Size int
}

func (p Page) Normalize() Page {
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

func (p Page) Offset() int {
	return p.Page * p.Size
}
