package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"PPRealtime/data/database"
	"PPRealtime/logger"
	"PPRealtime/module/notification/model"
	"PPRealtime/module/user"
	"PPRealtime/service/metrics"
	"PPRealtime/service/pubsub"
	"PPRealtime/service/storage"
	"PPRealtime/tools/errs"
	"PPRealtime/tools/ids"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// pushTimeout 单次推送的上限，异步推送不继承请求的 ctx
const pushTimeout = 5 * time.Second

// NotifyRequest 通知触发参数；PostID/CommentID 可选
type NotifyRequest struct {
	Type      model.Type
	Sender    string
	Recipient string
	PostID    *int64
	CommentID *int64
}

// Fanout 先落库，再对在线用户做一次性推送
type Fanout struct {
	store    database.NotificationStore
	presence storage.Presence
	pub      pubsub.Publisher
	profiles user.ProfileProvider
	pool     *ants.Pool // nil 表示同步推送
	now      func() time.Time
}

// NewFanout workers > 0 时推送进协程池，不阻塞调用方
func NewFanout(store database.NotificationStore, presence storage.Presence, pub pubsub.Publisher,
	profiles user.ProfileProvider, workers int) (*Fanout, error) {
	f := &Fanout{
		store:    store,
		presence: presence,
		pub:      pub,
		profiles: profiles,
		now:      time.Now,
	}
	if workers > 0 {
		pool, err := ants.NewPool(workers, ants.WithNonblocking(true), ants.WithPanicHandler(func(r any) {
			logger.Error("notification push panic", zap.Error(errs.ErrPanic(r)))
		}))
		if err != nil {
			return nil, errs.WrapMsg(err, "create push pool", "workers", workers)
		}
		f.pool = pool
	}
	return f, nil
}

// Close 等待协程池里的推送结束
func (f *Fanout) Close() {
	if f.pool != nil {
		_ = f.pool.ReleaseTimeout(pushTimeout)
	}
}

// Notify 自己给自己不产生通知，返回 (nil, nil)
func (f *Fanout) Notify(ctx context.Context, req NotifyRequest) (*model.Notification, error) {
	req.Sender = strings.TrimSpace(req.Sender)
	req.Recipient = strings.TrimSpace(req.Recipient)
	if req.Sender == "" || req.Recipient == "" {
		return nil, errs.ErrInvalidRequest.WrapMsg("sender and recipient are required")
	}
	if !req.Type.Valid() {
		return nil, errs.ErrInvalidRequest.WrapMsg("unknown notification type", "type", req.Type)
	}
	if req.Sender == req.Recipient {
		return nil, nil
	}

	n := &model.Notification{
		ID:               ids.Generate(),
		Recipient:        req.Recipient,
		Sender:           req.Sender,
		Type:             req.Type,
		SubjectPostID:    req.PostID,
		SubjectCommentID: req.CommentID,
		CreatedAt:        database.Micros(f.now()),
	}
	if err := f.store.InsertNotification(ctx, n); err != nil {
		return nil, errs.WrapMsg(err, "insert notification", "recipient", n.Recipient)
	}

	pushed := f.pushIfOnline(ctx, n)
	metrics.Notifications.WithLabelValues(string(n.Type), strconv.FormatBool(pushed)).Inc()
	return n, nil
}

// pushIfOnline 离线不推；推送失败只记日志
func (f *Fanout) pushIfOnline(ctx context.Context, n *model.Notification) bool {
	if f.pub == nil || f.presence == nil {
		return false
	}
	online, err := f.presence.IsOnline(ctx, n.Recipient)
	if err != nil {
		logger.Warn("presence check failed", zap.String("user", n.Recipient), zap.Error(err))
		return false
	}
	if !online {
		return false
	}

	push := func(ctx context.Context) {
		view := f.view(ctx, n)
		if err := pubsub.PublishJSON(ctx, f.pub, pubsub.NotificationChannel(n.Recipient), view); err != nil {
			logger.Warn("push notification failed", zap.Int64("id", n.ID), zap.String("user", n.Recipient), zap.Error(err))
		}
	}
	if f.pool == nil {
		push(ctx)
		return true
	}
	if err := f.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		defer cancel()
		push(ctx)
	}); err != nil {
		// 池满直接丢，库里有记录
		logger.Warn("push pool busy, dropping", zap.Int64("id", n.ID), zap.Error(err))
		return false
	}
	return true
}

func (f *Fanout) view(ctx context.Context, n *model.Notification) model.View {
	sender := user.Lookup(ctx, f.profiles, n.Sender)
	return model.NewView(n, model.SenderView{ID: sender.UserID, Username: sender.Username, AvatarURL: sender.AvatarURL})
}

// ListNotifications 倒序，带展示文案与发送者资料
func (f *Fanout) ListNotifications(ctx context.Context, userID string) ([]model.View, error) {
	list, err := f.store.ListNotifications(ctx, userID, 0)
	if err != nil {
		return nil, errs.WrapMsg(err, "list notifications", "user", userID)
	}
	out := make([]model.View, 0, len(list))
	senders := make(map[string]model.SenderView)
	for i := range list {
		n := &list[i]
		sv, ok := senders[n.Sender]
		if !ok {
			p := user.Lookup(ctx, f.profiles, n.Sender)
			sv = model.SenderView{ID: p.UserID, Username: p.Username, AvatarURL: p.AvatarURL}
			senders[n.Sender] = sv
		}
		out = append(out, model.NewView(n, sv))
	}
	return out, nil
}

func (f *Fanout) UnreadCount(ctx context.Context, userID string) (int, error) {
	c, err := f.store.CountUnread(ctx, userID)
	if err != nil {
		return 0, errs.WrapMsg(err, "count unread notifications", "user", userID)
	}
	return c, nil
}

// MarkRead 不存在与不属于本人统一返回 NotFound；重复标记无副作用
func (f *Fanout) MarkRead(ctx context.Context, id int64, userID string) error {
	err := f.store.MarkRead(ctx, id, userID)
	if errors.Is(err, database.ErrNotFound) {
		return errs.ErrNotFound.WrapMsg("notification", "id", id)
	}
	return errs.WrapMsg(err, "mark notification read", "id", id)
}

func (f *Fanout) MarkAllRead(ctx context.Context, userID string) (int, error) {
	n, err := f.store.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, errs.WrapMsg(err, "mark all notifications read", "user", userID)
	}
	return n, nil
}
