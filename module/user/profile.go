package user

import (
	"context"
	"errors"
	"sync"

	"PPRealtime/data/database"
	"PPRealtime/logger"

	"go.uber.org/zap"
)

// ProfileProvider 用户资料查询，由外部用户系统提供数据
type ProfileProvider interface {
	Profile(ctx context.Context, userID string) (*database.Profile, error)
}

// Fallback 资料缺失时的占位：用户名即 userID
func Fallback(userID string) *database.Profile {
	return &database.Profile{UserID: userID, Username: userID}
}

// Lookup 查询失败一律降级为占位资料，调用方不需要处理错误
func Lookup(ctx context.Context, p ProfileProvider, userID string) *database.Profile {
	if p == nil {
		return Fallback(userID)
	}
	prof, err := p.Profile(ctx, userID)
	if err != nil || prof == nil {
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			logger.Warn("profile lookup failed", zap.String("user", userID), zap.Error(err))
		}
		return Fallback(userID)
	}
	if prof.Username == "" {
		prof.Username = userID
	}
	return prof
}

// StoreProvider 从 user_profiles 表读取
type StoreProvider struct {
	store database.ProfileStore
}

func NewStoreProvider(store database.ProfileStore) *StoreProvider {
	return &StoreProvider{store: store}
}

func (p *StoreProvider) Profile(ctx context.Context, userID string) (*database.Profile, error) {
	return p.store.GetProfile(ctx, userID)
}

// StaticProvider 内存资料表，开发和测试使用
type StaticProvider struct {
	mu       sync.RWMutex
	profiles map[string]database.Profile
}

func NewStaticProvider(profiles ...database.Profile) *StaticProvider {
	sp := &StaticProvider{profiles: make(map[string]database.Profile, len(profiles))}
	for _, p := range profiles {
		sp.profiles[p.UserID] = p
	}
	return sp
}

func (p *StaticProvider) Put(prof database.Profile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profiles[prof.UserID] = prof
}

func (p *StaticProvider) Profile(_ context.Context, userID string) (*database.Profile, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	prof, ok := p.profiles[userID]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &prof, nil
}
