package user

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"PPRealtime/data/database"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingProvider struct{ calls int }

func (f *failingProvider) Profile(context.Context, string) (*database.Profile, error) {
	f.calls++
	return nil, errors.New("user service down")
}

func TestLookupFallsBack(t *testing.T) {
	ctx := context.Background()
	sp := NewStaticProvider(database.Profile{UserID: "u1", Username: "Alice", AvatarURL: "a.png"})

	assert.Equal(t, "Alice", Lookup(ctx, sp, "u1").Username)
	assert.Equal(t, "u2", Lookup(ctx, sp, "u2").Username)
	assert.Equal(t, "u3", Lookup(ctx, &failingProvider{}, "u3").Username)
	assert.Equal(t, "u4", Lookup(ctx, nil, "u4").Username)

	sp.Put(database.Profile{UserID: "u5"})
	assert.Equal(t, "u5", Lookup(ctx, sp, "u5").Username, "blank username")
}

// 需要真实 Redis：RT_TEST_REDIS_ADDR=127.0.0.1:6379
func TestCachedProvider(t *testing.T) {
	addr := os.Getenv("RT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("RT_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	sp := NewStaticProvider(database.Profile{UserID: "cache-u1", Username: "Alice"})
	cp := NewCachedProvider(rdb, sp, time.Minute)
	require.NoError(t, cp.Invalidate(ctx, "cache-u1"))

	p, err := cp.Profile(ctx, "cache-u1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.Username)

	// 回源数据变化后仍命中缓存
	sp.Put(database.Profile{UserID: "cache-u1", Username: "Changed"})
	p, err = cp.Profile(ctx, "cache-u1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.Username)

	require.NoError(t, cp.Invalidate(ctx, "cache-u1"))
	p, err = cp.Profile(ctx, "cache-u1")
	require.NoError(t, err)
	assert.Equal(t, "Changed", p.Username)
}
