package storage

import (
	"context"
	"sync"
)

// Presence 用户在线登记：一个用户可以同时有多条连接
type Presence interface {
	Online(ctx context.Context, user, connID string) error
	// Refresh 心跳续期；本地实现无 TTL，直接返回
	Refresh(ctx context.Context, user, connID string) error
	Offline(ctx context.Context, user, connID string) error
	IsOnline(ctx context.Context, user string) (bool, error)
}

// LocalPresence 单实例部署用，只认识本进程的连接
type LocalPresence struct {
	mu    sync.RWMutex
	users map[string]map[string]struct{}
}

func NewLocalPresence() *LocalPresence {
	return &LocalPresence{users: make(map[string]map[string]struct{})}
}

func (p *LocalPresence) Online(_ context.Context, user, connID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	conns, ok := p.users[user]
	if !ok {
		conns = make(map[string]struct{})
		p.users[user] = conns
	}
	conns[connID] = struct{}{}
	return nil
}

func (p *LocalPresence) Refresh(context.Context, string, string) error {
	return nil
}

func (p *LocalPresence) Offline(_ context.Context, user, connID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if conns, ok := p.users[user]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(p.users, user)
		}
	}
	return nil
}

func (p *LocalPresence) IsOnline(_ context.Context, user string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.users[user]) > 0, nil
}
