package user

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"PPRealtime/data/database"
	"PPRealtime/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const profileKeyPrefix = "rt:profile:"

// CachedProvider Redis 读穿缓存；Redis 故障时直接回源
type CachedProvider struct {
	rdb  *redis.Client
	next ProfileProvider
	ttl  time.Duration
}

func NewCachedProvider(rdb *redis.Client, next ProfileProvider, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedProvider{rdb: rdb, next: next, ttl: ttl}
}

func (c *CachedProvider) Profile(ctx context.Context, userID string) (*database.Profile, error) {
	key := profileKeyPrefix + userID
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var p database.Profile
		if jerr := json.Unmarshal(raw, &p); jerr == nil {
			return &p, nil
		}
	case !errors.Is(err, redis.Nil):
		logger.Warn("profile cache get failed", zap.String("key", key), zap.Error(err))
	}

	p, err := c.next.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if b, jerr := json.Marshal(p); jerr == nil {
		if serr := c.rdb.Set(ctx, key, b, c.ttl).Err(); serr != nil {
			logger.Warn("profile cache set failed", zap.String("key", key), zap.Error(serr))
		}
	}
	return p, nil
}

// Invalidate 资料变更后调用
func (c *CachedProvider) Invalidate(ctx context.Context, userID string) error {
	return c.rdb.Del(ctx, profileKeyPrefix+userID).Err()
}
