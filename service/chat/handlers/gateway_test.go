package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"PPRealtime/data/database/sqlite"
	"PPRealtime/module/chat/model"
	chatsvc "PPRealtime/module/chat/service"
	"PPRealtime/service/authz"
	"PPRealtime/service/chat"
	"PPRealtime/service/pubsub"
	"PPRealtime/service/storage"
	"PPRealtime/tools/errs"
	"PPRealtime/tools/ids"
	"PPRealtime/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	url      string
	verifier *security.Verifier
	dir      *chatsvc.Directory
	hub      *pubsub.Hub
	presence *storage.LocalPresence
	gw       *chat.Server
}

func newHarness(t *testing.T, opts chat.Options) *harness {
	t.Helper()
	store, err := sqlite.OpenPath(filepath.Join(t.TempDir(), "gw.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	v, err := security.NewVerifier(security.DefaultOptions([]byte("gateway-test-secret")))
	require.NoError(t, err)

	hub := pubsub.NewHub()
	dir := chatsvc.NewDirectory(store, nil)
	presence := storage.NewLocalPresence()
	gw := chat.NewServer(opts, chat.Deps{
		Verifier: v,
		Authz:    authz.NewAuthorizer(dir),
		Hub:      hub,
		Messages: chatsvc.NewMessageLog(store, dir, pubsub.NewLocalBus(hub)),
		Presence: presence,
	})
	RegisterAll(gw)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", gw.HandleWS)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	t.Cleanup(gw.Close)

	return &harness{
		url:      "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		verifier: v,
		dir:      dir,
		hub:      hub,
		presence: presence,
		gw:       gw,
	}
}

func (h *harness) token(t *testing.T, user string) string {
	t.Helper()
	tok, _, err := h.verifier.Generate(user)
	require.NoError(t, err)
	return tok
}

func (h *harness) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(h.url+query, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func (h *harness) connect(t *testing.T, user string) *websocket.Conn {
	t.Helper()
	c := h.dial(t, "")
	send(t, c, map[string]any{"type": "CONNECT", "token": h.token(t, user)})
	f := read(t, c)
	require.Equal(t, chat.FrameConnected, f.Type, f.Message)
	require.Equal(t, user, f.Principal)
	return c
}

func send(t *testing.T, c *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, c.WriteJSON(v))
}

func read(t *testing.T, c *websocket.Conn) chat.ServerFrame {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
	var f chat.ServerFrame
	require.NoError(t, c.ReadJSON(&f))
	return f
}

func expectClosed(t *testing.T, c *websocket.Conn) {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err := c.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
}

func TestConnectRejectsBadCredential(t *testing.T) {
	h := newHarness(t, chat.Options{})
	c := h.dial(t, "")
	send(t, c, map[string]any{"type": "CONNECT", "token": "not-a-jwt"})

	f := read(t, c)
	assert.Equal(t, chat.FrameError, f.Type)
	assert.Equal(t, errs.AuthError, f.Code)
	expectClosed(t, c)
}

func TestFirstFrameMustBeConnect(t *testing.T) {
	h := newHarness(t, chat.Options{})
	c := h.dial(t, "?access_token="+h.token(t, "u1"))
	send(t, c, map[string]any{"type": "SUBSCRIBE", "channel": "notifications:u1", "ref": "r0"})

	f := read(t, c)
	assert.Equal(t, chat.FrameError, f.Type)
	assert.Equal(t, errs.AuthError, f.Code)
	assert.Equal(t, "r0", f.Ref)
	expectClosed(t, c)
}

func TestHandshakeTimeout(t *testing.T) {
	h := newHarness(t, chat.Options{HandshakeTimeout: 200 * time.Millisecond})
	c := h.dial(t, "")

	f := read(t, c)
	assert.Equal(t, chat.FrameError, f.Type)
	assert.Equal(t, errs.AuthError, f.Code)
	expectClosed(t, c)
}

func TestCredentialSources(t *testing.T) {
	h := newHarness(t, chat.Options{})

	// 只有握手 URL 上的凭证
	c := h.dial(t, "?access_token="+h.token(t, "u1"))
	send(t, c, map[string]any{"type": "CONNECT"})
	f := read(t, c)
	assert.Equal(t, chat.FrameConnected, f.Type)
	assert.Equal(t, "u1", f.Principal)

	// 帧里的凭证优先
	c = h.dial(t, "?access_token=garbage")
	send(t, c, map[string]any{"type": "CONNECT", "headers": map[string]string{"Authorization": "Bearer " + h.token(t, "u2")}})
	f = read(t, c)
	assert.Equal(t, chat.FrameConnected, f.Type)
	assert.Equal(t, "u2", f.Principal)

	c = h.dial(t, "?access_token="+h.token(t, "u1"))
	send(t, c, map[string]any{"type": "CONNECT", "token": "garbage"})
	f = read(t, c)
	assert.Equal(t, chat.FrameError, f.Type)
	expectClosed(t, c)
}

func TestSubscribeDeniedKeepsConnection(t *testing.T) {
	h := newHarness(t, chat.Options{})
	ctx := context.Background()
	conv, err := h.dir.EnsureDirectMessage(ctx, "u1", "u2")
	require.NoError(t, err)

	c := h.connect(t, "u3")
	for _, ch := range []string{
		pubsub.ConversationChannel(conv.ID),
		pubsub.ConversationChannel(ids.NewUUID()),
		pubsub.NotificationChannel("u1"),
		"weather:today",
	} {
		send(t, c, map[string]any{"type": "SUBSCRIBE", "channel": ch, "ref": ch})
		f := read(t, c)
		assert.Equal(t, chat.FrameError, f.Type, ch)
		assert.Equal(t, errs.AuthorizationDenied, f.Code, ch)
		assert.Equal(t, authz.DeniedReason, f.Message, ch)
		assert.Equal(t, ch, f.Ref)
	}

	send(t, c, map[string]any{"type": "PING", "ref": "p1"})
	f := read(t, c)
	assert.Equal(t, chat.FramePong, f.Type)
	assert.Equal(t, "p1", f.Ref)

	send(t, c, map[string]any{"type": "SUBSCRIBE", "channel": "post:9:likes"})
	f = read(t, c)
	assert.Equal(t, chat.FrameSubscribed, f.Type)
	assert.NotEmpty(t, f.ID)
}

func TestSendAndReceive(t *testing.T) {
	h := newHarness(t, chat.Options{})
	ctx := context.Background()
	conv, err := h.dir.EnsureDirectMessage(ctx, "u1", "u2")
	require.NoError(t, err)
	channel := pubsub.ConversationChannel(conv.ID)

	bob := h.connect(t, "u2")
	send(t, bob, map[string]any{"type": "SUBSCRIBE", "channel": channel, "id": "s1"})
	f := read(t, bob)
	require.Equal(t, chat.FrameSubscribed, f.Type)
	assert.Equal(t, "s1", f.ID)

	alice := h.connect(t, "u1")
	send(t, alice, map[string]any{"type": "SEND", "channel": channel, "ref": "r1", "payload": map[string]any{"content": "hi"}})
	receipt := read(t, alice)
	require.Equal(t, chat.FrameReceipt, receipt.Type, receipt.Message)
	assert.Equal(t, "r1", receipt.Ref)

	got := read(t, bob)
	require.Equal(t, chat.FrameMessage, got.Type)
	assert.Equal(t, channel, got.Channel)
	var msg model.Message
	require.NoError(t, json.Unmarshal(got.Payload, &msg))
	assert.Equal(t, "hi", msg.Content)
	assert.Equal(t, "u1", msg.SenderID)

	send(t, alice, map[string]any{"type": "SEND", "channel": channel, "payload": map[string]any{"content": "  "}})
	f = read(t, alice)
	assert.Equal(t, errs.EmptyMessage, f.Code)

	send(t, alice, map[string]any{"type": "SEND", "channel": pubsub.NotificationChannel("u1"), "payload": map[string]any{"content": "x"}})
	f = read(t, alice)
	assert.Equal(t, errs.AuthorizationDenied, f.Code)

	mallory := h.connect(t, "u3")
	send(t, mallory, map[string]any{"type": "SEND", "channel": channel, "payload": map[string]any{"content": "x"}})
	f = read(t, mallory)
	assert.Equal(t, errs.AuthorizationDenied, f.Code)

	send(t, alice, map[string]any{"type": "CONNECT", "token": h.token(t, "u1")})
	f = read(t, alice)
	assert.Equal(t, errs.InvalidRequest, f.Code)
}

func TestUnsubscribe(t *testing.T) {
	h := newHarness(t, chat.Options{})
	c := h.connect(t, "u1")
	channel := pubsub.NotificationChannel("u1")

	send(t, c, map[string]any{"type": "SUBSCRIBE", "channel": channel, "id": "n"})
	require.Equal(t, chat.FrameSubscribed, read(t, c).Type)
	assert.Equal(t, 1, h.hub.Subscribers(channel))

	send(t, c, map[string]any{"type": "UNSUBSCRIBE", "id": "n"})
	f := read(t, c)
	assert.Equal(t, chat.FrameUnsubscribed, f.Type)
	assert.Equal(t, channel, f.Channel)
	assert.Zero(t, h.hub.Subscribers(channel))

	send(t, c, map[string]any{"type": "UNSUBSCRIBE", "id": "n"})
	f = read(t, c)
	assert.Equal(t, errs.NotFound, f.Code)

	send(t, c, map[string]any{"type": "BOGUS"})
	f = read(t, c)
	assert.Equal(t, errs.InvalidRequest, f.Code)
}

func TestCloseReleasesConnection(t *testing.T) {
	h := newHarness(t, chat.Options{})
	ctx := context.Background()
	c := h.connect(t, "u1")
	channel := pubsub.NotificationChannel("u1")
	send(t, c, map[string]any{"type": "SUBSCRIBE", "channel": channel})
	require.Equal(t, chat.FrameSubscribed, read(t, c).Type)

	online, err := h.presence.IsOnline(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, online)

	require.NoError(t, c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	assert.Eventually(t, func() bool {
		online, _ := h.presence.IsOnline(ctx, "u1")
		return !online && h.hub.Subscribers(channel) == 0 && h.gw.ConnMgr().Count() == 0
	}, 3*time.Second, 20*time.Millisecond)
}
