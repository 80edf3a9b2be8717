package ids

import "github.com/google/uuid"

// NewUUID 会话/消息主键
func NewUUID() string {
	return uuid.NewString()
}
