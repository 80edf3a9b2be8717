package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"PPRealtime/tools/ids"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exercisePresence(t *testing.T, p Presence, user string) {
	ctx := context.Background()

	online, err := p.IsOnline(ctx, user)
	require.NoError(t, err)
	assert.False(t, online)

	require.NoError(t, p.Online(ctx, user, "c1"))
	require.NoError(t, p.Online(ctx, user, "c2"))
	require.NoError(t, p.Refresh(ctx, user, "c1"))

	require.NoError(t, p.Offline(ctx, user, "c1"))
	online, err = p.IsOnline(ctx, user)
	require.NoError(t, err)
	assert.True(t, online, "c2 still connected")

	require.NoError(t, p.Offline(ctx, user, "c2"))
	require.NoError(t, p.Offline(ctx, user, "c2"), "idempotent")
	online, err = p.IsOnline(ctx, user)
	require.NoError(t, err)
	assert.False(t, online)
}

func TestLocalPresence(t *testing.T) {
	exercisePresence(t, NewLocalPresence(), "alice")
}

// 需要真实 Redis：RT_TEST_REDIS_ADDR=127.0.0.1:6379
func TestRedisPresence(t *testing.T) {
	addr := os.Getenv("RT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("RT_TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	p := NewRedisPresence(rdb, "gw-test", time.Minute)
	exercisePresence(t, p, "presence-"+ids.NewUUID())

	// 过期成员不算在线
	user := "presence-" + ids.NewUUID()
	require.NoError(t, p.Online(context.Background(), user, "c1"))
	p.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	online, err := p.IsOnline(context.Background(), user)
	require.NoError(t, err)
	assert.False(t, online)
}
