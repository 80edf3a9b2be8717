package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"PPRealtime/data/database"
	"PPRealtime/logger"
	"PPRealtime/module/chat/model"
	"PPRealtime/module/user"
	"PPRealtime/service/metrics"
	"PPRealtime/tools/errs"
	"PPRealtime/tools/ids"

	"go.uber.org/zap"
)

// 单聊查找或创建的最大尝试次数；超过说明存储持续异常
const maxEnsureAttempts = 3

// Directory 会话目录：单聊去重、会话列表、成员判断
type Directory struct {
	store    database.ChatStore
	profiles user.ProfileProvider
	now      func() time.Time
}

func NewDirectory(store database.ChatStore, profiles user.ProfileProvider) *Directory {
	return &Directory{store: store, profiles: profiles, now: time.Now}
}

// EnsureDirectMessage 返回 a、b 之间唯一的单聊，不存在则创建。
// 并发创建由 dm_key 唯一约束裁决，输家重新读取赢家的会话。
func (d *Directory) EnsureDirectMessage(ctx context.Context, a, b string) (*model.Conversation, error) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return nil, errs.ErrInvalidRequest.WrapMsg("user id is required")
	}
	if a == b {
		return nil, errs.ErrInvalidRequest.WrapMsg("cannot start a conversation with yourself")
	}
	key := model.DMKey(a, b)

	for attempt := 1; attempt <= maxEnsureAttempts; attempt++ {
		conv, err := d.store.FindDirect(ctx, key)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, database.ErrNotFound) {
			return nil, errs.WrapMsg(err, "find direct conversation")
		}

		conv = &model.Conversation{
			ID:        ids.NewUUID(),
			DMKey:     key,
			CreatedAt: database.Micros(d.now()),
		}
		err = d.store.CreateConversation(ctx, conv, []string{a, b})
		if err == nil {
			logger.Info("direct conversation created", zap.String("conversation", conv.ID), zap.String("a", a), zap.String("b", b))
			return conv, nil
		}
		if !errors.Is(err, database.ErrConflict) {
			return nil, errs.WrapMsg(err, "create direct conversation")
		}
		metrics.DMRetries.Inc()
		logger.Debug("direct conversation race lost, re-reading", zap.String("key", key), zap.Int("attempt", attempt))
	}
	return nil, errs.ErrInternal.WrapMsg("direct conversation not resolvable", "key", key, "attempts", maxEnsureAttempts)
}

// CreateGroup 建群，成员去重，创建者自动加入；建好之后成员不再变化
func (d *Directory) CreateGroup(ctx context.Context, creator string, members []string) (*model.Conversation, error) {
	creator = strings.TrimSpace(creator)
	if creator == "" {
		return nil, errs.ErrInvalidRequest.WrapMsg("creator is required")
	}
	seen := map[string]struct{}{creator: {}}
	all := []string{creator}
	for _, m := range members {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		all = append(all, m)
	}
	if len(all) < 2 {
		return nil, errs.ErrInvalidRequest.WrapMsg("group needs at least one other member")
	}
	conv := &model.Conversation{ID: ids.NewUUID(), IsGroup: true, CreatedAt: database.Micros(d.now())}
	if err := d.store.CreateConversation(ctx, conv, all); err != nil {
		return nil, errs.WrapMsg(err, "create group conversation")
	}
	return conv, nil
}

// IsParticipant 成员关系是会话访问的唯一依据
func (d *Directory) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	if conversationID == "" || userID == "" {
		return false, nil
	}
	_, err := d.store.GetParticipant(ctx, conversationID, userID)
	if errors.Is(err, database.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errs.WrapMsg(err, "participant lookup")
	}
	return true, nil
}

// Get 只有成员能看到会话；不存在与无权限统一返回 NotFound
func (d *Directory) Get(ctx context.Context, principal, conversationID string) (*model.Conversation, error) {
	ok, err := d.IsParticipant(ctx, conversationID, principal)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrNotFound.WrapMsg("conversation", "id", conversationID)
	}
	conv, err := d.store.GetConversation(ctx, conversationID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, errs.ErrNotFound.WrapMsg("conversation", "id", conversationID)
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "get conversation")
	}
	return conv, nil
}

// ListForUser 会话列表，按最后活跃时间倒序
func (d *Directory) ListForUser(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	states, err := d.store.ListConversationStates(ctx, userID)
	if err != nil {
		return nil, errs.WrapMsg(err, "list conversations", "user", userID)
	}
	out := make([]model.ConversationSummary, 0, len(states))
	for _, st := range states {
		s := model.ConversationSummary{
			ID:        st.Conversation.ID,
			IsGroup:   st.Conversation.IsGroup,
			CreatedAt: st.Conversation.CreatedAt,
		}
		if !st.Conversation.IsGroup && len(st.OtherUserIDs) > 0 {
			other := user.Lookup(ctx, d.profiles, st.OtherUserIDs[0])
			s.OtherUserID = other.UserID
			s.OtherUserName = other.Username
			s.OtherUserAvatarURL = other.AvatarURL
		}
		if st.Latest != nil {
			s.LastMessage = &model.LastMessage{
				SenderID:      st.Latest.SenderID,
				Content:       st.Latest.Content,
				AttachmentURL: st.Latest.AttachmentURL,
				CreatedAt:     st.Latest.CreatedAt,
			}
		}
		s.Unread = isUnread(st.Latest, st.LastReadAt)
		if s.Unread {
			s.UnreadCount = 1
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ai, aj := out[i].LastActivity(), out[j].LastActivity()
		if ai.Equal(aj) {
			return out[i].ID > out[j].ID
		}
		return ai.After(aj)
	})
	return out, nil
}

// isUnread 有消息且（从未读过 或 最新消息晚于已读时间）
func isUnread(latest *model.Message, lastReadAt *time.Time) bool {
	if latest == nil {
		return false
	}
	if lastReadAt == nil {
		return true
	}
	return latest.CreatedAt.After(*lastReadAt)
}
