package service

import (
	"context"
	"errors"
	"time"

	"PPRealtime/data/database"
	"PPRealtime/tools/errs"
)

// UnreadTracker 显式已读；last_read_at 只前进
type UnreadTracker struct {
	store database.ChatStore
	now   func() time.Time
}

func NewUnreadTracker(store database.ChatStore) *UnreadTracker {
	return &UnreadTracker{store: store, now: time.Now}
}

func (u *UnreadTracker) MarkConversationRead(ctx context.Context, conversationID, userID string) error {
	if conversationID == "" || userID == "" {
		return errs.ErrNotFound.WrapMsg("conversation", "id", conversationID)
	}
	err := u.store.AdvanceLastRead(ctx, conversationID, userID, database.Micros(u.now()))
	if errors.Is(err, database.ErrNotFound) {
		return errs.ErrNotFound.WrapMsg("conversation", "id", conversationID)
	}
	return errs.WrapMsg(err, "mark conversation read", "conversation", conversationID)
}
