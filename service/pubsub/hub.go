package pubsub

import (
	"sync"

	"PPRealtime/service/metrics"
)

// Subscriber 本进程内的订阅者（一般是一条 websocket 连接）
type Subscriber interface {
	SubscriberID() string
	// Deliver 必须非阻塞；返回 false 表示丢弃
	Deliver(channel string, payload []byte) bool
}

// Hub 频道 -> 本地订阅者。只做内存分发，不负责跨实例。
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[string]Subscriber // channel -> subID -> sub
	bySub    map[string]map[string]struct{}   // subID -> channels
}

func NewHub() *Hub {
	return &Hub{
		channels: make(map[string]map[string]Subscriber),
		bySub:    make(map[string]map[string]struct{}),
	}
}

func (h *Hub) Subscribe(channel string, sub Subscriber) {
	id := sub.SubscriberID()
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[string]Subscriber)
		h.channels[channel] = subs
	}
	subs[id] = sub
	chans, ok := h.bySub[id]
	if !ok {
		chans = make(map[string]struct{})
		h.bySub[id] = chans
	}
	chans[channel] = struct{}{}
}

func (h *Hub) Unsubscribe(channel, subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(channel, subID)
}

// UnsubscribeAll 连接关闭时调用
func (h *Hub) UnsubscribeAll(subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.bySub[subID] {
		h.removeLocked(ch, subID)
	}
	delete(h.bySub, subID)
}

func (h *Hub) removeLocked(channel, subID string) {
	if subs, ok := h.channels[channel]; ok {
		delete(subs, subID)
		if len(subs) == 0 {
			delete(h.channels, channel)
		}
	}
	if chans, ok := h.bySub[subID]; ok {
		delete(chans, channel)
		if len(chans) == 0 {
			delete(h.bySub, subID)
		}
	}
}

// Publish 投递给本地订阅者，返回成功入队的数量；没有订阅者直接丢弃
func (h *Hub) Publish(channel string, payload []byte) int {
	h.mu.RLock()
	subs := make([]Subscriber, 0, len(h.channels[channel]))
	for _, s := range h.channels[channel] {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range subs {
		if s.Deliver(channel, payload) {
			delivered++
		} else {
			metrics.PushDropped.Inc()
		}
	}
	metrics.PushDelivered.Add(float64(delivered))
	return delivered
}

func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Channels 某订阅者当前订阅的频道数
func (h *Hub) Channels(subID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.bySub[subID])
}
