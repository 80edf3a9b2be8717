package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"PPRealtime/data/database"
	"PPRealtime/module/notification/model"
	nsvc "PPRealtime/module/notification/service"
	"PPRealtime/module/user"
	"PPRealtime/tools/errs"

	"github.com/Shopify/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubNotifier struct {
	mu   sync.Mutex
	reqs []nsvc.NotifyRequest
	err  error
	down int // 前 down 次调用模拟存储不可用
}

func (s *stubNotifier) Notify(_ context.Context, req nsvc.NotifyRequest) (*model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	if s.down > 0 {
		s.down--
		return nil, errs.WrapMsg(errors.New("dial tcp: connection refused"), "insert notification")
	}
	if s.err != nil {
		return nil, s.err
	}
	return &model.Notification{ID: 1, Type: req.Type, Sender: req.Sender, Recipient: req.Recipient}, nil
}

func (s *stubNotifier) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reqs)
}

type published struct {
	channel string
	payload string
}

type stubPublisher struct {
	mu  sync.Mutex
	out []published
}

func (p *stubPublisher) Publish(_ context.Context, channel string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out = append(p.out, published{channel, string(payload)})
	return nil
}

type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx    context.Context
	marked []int64
}

func (s *fakeSession) Context() context.Context { return s.ctx }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	ch chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.ch }

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"type":"comment","sender":"u1","recipient":"u2","postId":"7","commentId":9}`))
	require.NoError(t, err)
	assert.Equal(t, "comment", ev.Type)
	require.NotNil(t, ev.PostID)
	assert.Equal(t, int64(7), *ev.PostID)
	require.NotNil(t, ev.CommentID)
	assert.Equal(t, int64(9), *ev.CommentID)

	ev, err = ParseEvent([]byte(`{"sender":"u1","channel":"post:7:likes","payload":{"count":3}}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":3}`, string(ev.Payload))

	_, err = ParseEvent([]byte(`{"sender":"u1"}`))
	assert.True(t, errors.Is(err, errs.ErrInvalidRequest))

	_, err = ParseEvent([]byte(`not json`))
	assert.Error(t, err)
}

func TestEventHandlerNotify(t *testing.T) {
	n := &stubNotifier{}
	h := NewEventHandler(n, &stubPublisher{}, nil)

	err := h.Handle(context.Background(), "social.events", nil,
		[]byte(`{"type":"LIKE","sender":"u1","recipient":"u2","postId":3}`))
	require.NoError(t, err)
	require.Len(t, n.reqs, 1)
	assert.Equal(t, model.TypeLike, n.reqs[0].Type)
	assert.Equal(t, "u2", n.reqs[0].Recipient)
	require.NotNil(t, n.reqs[0].PostID)
	assert.Equal(t, int64(3), *n.reqs[0].PostID)

	err = h.Handle(context.Background(), "social.events", nil,
		[]byte(`{"type":"SHARE","sender":"u1","recipient":"u2"}`))
	assert.True(t, errors.Is(err, errs.ErrInvalidRequest))
	assert.Len(t, n.reqs, 1)
}

func TestEventHandlerMentions(t *testing.T) {
	n := &stubNotifier{}
	h := NewEventHandler(n, nil, nil)

	err := h.Handle(context.Background(), "social.events", nil,
		[]byte(`{"type":"COMMENT","sender":"u1","recipient":"u2","postId":7,"commentId":42,"text":"nice @u3 @u4 @u3"}`))
	require.NoError(t, err)
	require.Len(t, n.reqs, 3)
	assert.Equal(t, model.TypeComment, n.reqs[0].Type)
	assert.Equal(t, model.TypeMention, n.reqs[1].Type)
	assert.Equal(t, "u3", n.reqs[1].Recipient)
	assert.Equal(t, "u4", n.reqs[2].Recipient)
	require.NotNil(t, n.reqs[2].CommentID)
	assert.Equal(t, int64(42), *n.reqs[2].CommentID)
}

func TestEventHandlerMentionsUnknownUser(t *testing.T) {
	n := &stubNotifier{}
	profiles := user.NewStaticProvider(database.Profile{UserID: "u3", Username: "carol"})
	h := NewEventHandler(n, nil, profiles)

	require.NoError(t, h.Handle(context.Background(), "social.events", nil,
		[]byte(`{"type":"COMMENT","sender":"u1","recipient":"u2","text":"@ghost @u3"}`)))
	require.Len(t, n.reqs, 2)
	assert.Equal(t, model.TypeComment, n.reqs[0].Type)
	assert.Equal(t, model.TypeMention, n.reqs[1].Type)
	assert.Equal(t, "u3", n.reqs[1].Recipient)
}

func TestEventHandlerForward(t *testing.T) {
	p := &stubPublisher{}
	h := NewEventHandler(&stubNotifier{}, p, nil)

	require.NoError(t, h.Handle(context.Background(), "t", nil,
		[]byte(`{"sender":"u1","channel":"post:42:comments","payload":{"id":5,"text":"hi"}}`)))
	require.Len(t, p.out, 1)
	assert.Equal(t, "post:42:comments", p.out[0].channel)
	assert.JSONEq(t, `{"id":5,"text":"hi"}`, p.out[0].payload)

	// 私有频道不能由外部事件写入
	err := h.Handle(context.Background(), "t", nil,
		[]byte(`{"sender":"u1","channel":"notifications:u2","payload":{"x":1}}`))
	assert.True(t, errors.Is(err, errs.ErrAuthorizationDenied))
	assert.Len(t, p.out, 1)
}

func TestEventHandlerSkipsMalformed(t *testing.T) {
	n := &stubNotifier{}
	h := NewEventHandler(n, nil, nil)
	assert.NoError(t, h.Handle(context.Background(), "t", nil, []byte(`{{{`)))
	assert.Empty(t, n.reqs)
}

func TestConsumeClaimMarksEveryMessage(t *testing.T) {
	n := &stubNotifier{}
	router := NewRouter()
	router.RegisterHandler("social.events", NewEventHandler(n, nil, nil).Handle)

	claim := &fakeClaim{ch: make(chan *sarama.ConsumerMessage, 4)}
	claim.ch <- &sarama.ConsumerMessage{Topic: "social.events", Offset: 10, Value: []byte(`{"type":"MENTION","sender":"a","recipient":"b"}`)}
	claim.ch <- &sarama.ConsumerMessage{Topic: "social.events", Offset: 11, Value: []byte(`garbage`)}
	claim.ch <- &sarama.ConsumerMessage{Topic: "other", Offset: 12, Value: []byte(`{}`)}
	claim.ch <- &sarama.ConsumerMessage{Topic: "social.events", Offset: 13, Value: []byte(`{"type":"REPLY","sender":"a","recipient":"c"}`)}
	close(claim.ch)

	sess := &fakeSession{ctx: context.Background()}
	h := NewConsumerGroupHandler(router)
	require.NoError(t, h.ConsumeClaim(sess, claim))

	assert.Equal(t, []int64{10, 11, 12, 13}, sess.marked)
	require.Len(t, n.reqs, 2)
	assert.Equal(t, "b", n.reqs[0].Recipient)
	assert.Equal(t, "c", n.reqs[1].Recipient)
}

func TestConsumeClaimRetriesStoreErrors(t *testing.T) {
	n := &stubNotifier{down: 2}
	router := NewRouter()
	router.RegisterHandler("social.events", NewEventHandler(n, nil, nil).Handle)

	claim := &fakeClaim{ch: make(chan *sarama.ConsumerMessage, 2)}
	claim.ch <- &sarama.ConsumerMessage{Topic: "social.events", Offset: 42, Value: []byte(`{"type":"LIKE","sender":"a","recipient":"b"}`)}
	claim.ch <- &sarama.ConsumerMessage{Topic: "social.events", Offset: 43, Value: []byte(`{"type":"SHARE","sender":"a","recipient":"b"}`)}
	close(claim.ch)

	sess := &fakeSession{ctx: context.Background()}
	h := &ConsumerGroupHandler{router: router, minWait: time.Millisecond, maxWait: 2 * time.Millisecond}
	require.NoError(t, h.ConsumeClaim(sess, claim))

	// 42 在存储恢复后才提交；43 类型非法，直接跳过
	assert.Equal(t, []int64{42, 43}, sess.marked)
	assert.Equal(t, 3, n.calls())
}

func TestConsumeClaimLeavesOffsetWhenSessionEnds(t *testing.T) {
	n := &stubNotifier{down: 1 << 20}
	router := NewRouter()
	router.RegisterHandler("social.events", NewEventHandler(n, nil, nil).Handle)

	claim := &fakeClaim{ch: make(chan *sarama.ConsumerMessage, 1)}
	claim.ch <- &sarama.ConsumerMessage{Topic: "social.events", Offset: 42, Value: []byte(`{"type":"LIKE","sender":"a","recipient":"b"}`)}
	close(claim.ch)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	sess := &fakeSession{ctx: ctx}
	h := &ConsumerGroupHandler{router: router, minWait: 5 * time.Millisecond, maxWait: 5 * time.Millisecond}
	require.NoError(t, h.ConsumeClaim(sess, claim))

	assert.Empty(t, sess.marked)
	assert.GreaterOrEqual(t, n.calls(), 2)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(errors.New("connection refused")))
	assert.True(t, Retryable(errs.ErrTransientStoreConflict.Wrap()))
	assert.False(t, Retryable(errs.ErrInvalidRequest.WrapMsg("bad type")))
	assert.False(t, Retryable(errs.ErrAuthorizationDenied.Wrap()))
}

func TestRouter(t *testing.T) {
	r := NewRouter()
	_, err := r.GetHandler("missing")
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	r.RegisterHandler("a", func(context.Context, string, []byte, []byte) error { return nil })
	h, err := r.GetHandler("a")
	require.NoError(t, err)
	assert.NotNil(t, h)
	assert.Equal(t, []string{"a"}, r.Topics())
}

func TestBuildBaseConfig(t *testing.T) {
	cfg := BuildBaseConfig(Config{InitialOffset: "oldest"})
	assert.Equal(t, sarama.OffsetOldest, cfg.Consumer.Offsets.Initial)
	assert.Equal(t, sarama.V2_1_0_0, cfg.Version)

	cfg = BuildBaseConfig(Config{})
	assert.Equal(t, sarama.OffsetNewest, cfg.Consumer.Offsets.Initial)
}
