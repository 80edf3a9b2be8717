package chat

import (
	"net"
	"strconv"
	"sync"
	"time"

	"PPRealtime/service/metrics"
	"PPRealtime/tools/errs"
	"PPRealtime/tools/ids"

	"github.com/gorilla/websocket"
)

// WsConn 一条 websocket 连接。principal 绑定后不再变化。
type WsConn struct {
	SnowID     string
	UserId     string
	Authorized bool

	Conn   *websocket.Conn
	Remote net.Addr

	CreatedAt time.Time
	Heartbeat time.Time // 最近一次收到帧或 pong

	QueryToken string // 握手 URL 上的 access_token，CONNECT 帧没带凭证时使用
	closeCode  int

	mu     sync.RWMutex
	send   chan []byte       // 每连接独立发送队列，单个写协程消费
	subs   map[string]string // 订阅号 -> 频道
	seq    int
	closed bool
}

func newWsConn(snowID string, conn *websocket.Conn, queue int, now time.Time) *WsConn {
	c := &WsConn{
		SnowID:    snowID,
		Conn:      conn,
		CreatedAt: now,
		Heartbeat: now,
		send:      make(chan []byte, queue),
		subs:      make(map[string]string),
	}
	if conn != nil {
		c.Remote = conn.RemoteAddr()
	}
	return c
}

// Principal 未 CONNECT 时为空
func (c *WsConn) Principal() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.UserId
}

func (c *WsConn) SubscriberID() string { return c.SnowID }

// Deliver 实现 pubsub.Subscriber：包成 MESSAGE 帧，队列满丢弃
func (c *WsConn) Deliver(channel string, payload []byte) bool {
	return c.Enqueue(BuildMessage(channel, payload))
}

// Enqueue 非阻塞入队
func (c *WsConn) Enqueue(f *ServerFrame) bool {
	data := f.Encode()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// AddSub 返回实际使用的订阅号；同一个订阅号重复订阅时返回被替换掉的旧频道
func (c *WsConn) AddSub(id, channel string) (subID, replaced string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id == "" {
		for sid, ch := range c.subs {
			if ch == channel {
				return sid, ""
			}
		}
		c.seq++
		id = "sub-" + strconv.Itoa(c.seq)
	}
	if old, ok := c.subs[id]; ok && old != channel {
		replaced = old
	}
	c.subs[id] = channel
	return id, replaced
}

// RemoveSub 按订阅号或频道移除；still 表示该频道是否仍被其它订阅号引用
func (c *WsConn) RemoveSub(id, channel string) (removedID, removedChannel string, still bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id != "" {
		ch, ok := c.subs[id]
		if !ok {
			return "", "", false
		}
		delete(c.subs, id)
		removedID, removedChannel = id, ch
	} else {
		for sid, ch := range c.subs {
			if ch == channel {
				delete(c.subs, sid)
				removedID, removedChannel = sid, ch
			}
		}
		if removedChannel == "" {
			return "", "", false
		}
	}
	for _, ch := range c.subs {
		if ch == removedChannel {
			return removedID, removedChannel, true
		}
	}
	return removedID, removedChannel, false
}

// HasChannel 频道是否仍被某个订阅号引用
func (c *WsConn) HasChannel(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range c.subs {
		if ch == channel {
			return true
		}
	}
	return false
}

func (c *WsConn) setCloseCode(code int) {
	c.mu.Lock()
	c.closeCode = code
	c.mu.Unlock()
}

func (c *WsConn) getCloseCode() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closeCode
}

func (c *WsConn) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ConnManager 本进程的连接表：按连接号和按用户两级索引
type ConnManager struct {
	mu     sync.RWMutex
	bySnow map[string]*WsConn
	byUser map[string]map[string]*WsConn

	queue int
	clock func() time.Time
	gwId  string
}

func NewConnManager(gwId string, queue int) *ConnManager {
	if queue <= 0 {
		queue = 256
	}
	return &ConnManager{
		bySnow: make(map[string]*WsConn),
		byUser: make(map[string]map[string]*WsConn),
		queue:  queue,
		clock:  time.Now,
		gwId:   gwId,
	}
}

func (m *ConnManager) GwId() string {
	return m.gwId
}

// AddUnauth 新连接登记，尚未绑定用户
func (m *ConnManager) AddUnauth(conn *websocket.Conn) *WsConn {
	w := newWsConn(genSnowID(), conn, m.queue, m.clock())
	m.mu.Lock()
	m.bySnow[w.SnowID] = w
	m.mu.Unlock()
	metrics.Connections.Inc()
	return w
}

// BindUser 绑定 principal；一条连接只能绑定一次
func (m *ConnManager) BindUser(snowID, user string) error {
	if snowID == "" || user == "" {
		return errs.ErrAuth.WrapMsg("empty principal")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.bySnow[snowID]
	if !ok {
		return errs.ErrNotFound.WrapMsg("connection", "id", snowID)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.Authorized {
		return errs.ErrInvalidRequest.WrapMsg("already connected")
	}
	w.UserId = user
	w.Authorized = true
	w.Heartbeat = m.clock()

	if m.byUser[user] == nil {
		m.byUser[user] = make(map[string]*WsConn)
	}
	m.byUser[user][snowID] = w
	return nil
}

// Heartbeat 收到任意帧或 pong 时刷新
func (m *ConnManager) Heartbeat(snowID string) {
	m.mu.RLock()
	w, ok := m.bySnow[snowID]
	m.mu.RUnlock()
	if !ok {
		return
	}
	w.mu.Lock()
	w.Heartbeat = m.clock()
	w.mu.Unlock()
}

func (m *ConnManager) Get(snowID string) (*WsConn, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.bySnow[snowID]
	return w, ok
}

// ListUserConns 用户在本实例上的全部连接
func (m *ConnManager) ListUserConns(user string) []*WsConn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*WsConn, 0, len(m.byUser[user]))
	for _, w := range m.byUser[user] {
		out = append(out, w)
	}
	return out
}

func (m *ConnManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bySnow)
}

// RemoveBySnow 解除登记并关闭发送队列；返回 false 表示已经移除过
func (m *ConnManager) RemoveBySnow(snowID string) bool {
	m.mu.Lock()
	w, ok := m.bySnow[snowID]
	if ok {
		delete(m.bySnow, snowID)
		if w.UserId != "" {
			if mm := m.byUser[w.UserId]; mm != nil {
				delete(mm, snowID)
				if len(mm) == 0 {
					delete(m.byUser, w.UserId)
				}
			}
		}
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	w.closeSend()
	metrics.Connections.Dec()
	return true
}

// Close 关闭全部连接，读协程随之退出并完成清理
func (m *ConnManager) Close() {
	m.mu.RLock()
	all := make([]*WsConn, 0, len(m.bySnow))
	for _, w := range m.bySnow {
		all = append(all, w)
	}
	m.mu.RUnlock()
	for _, w := range all {
		closeQuiet(w.Conn)
	}
}

func closeQuiet(c *websocket.Conn) {
	if c != nil {
		_ = c.Close()
	}
}

func genSnowID() string {
	return ids.GenerateString()
}
