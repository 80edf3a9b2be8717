package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// presence key: im:presence:{<user>}，ZSET
// member = <instance>:<connID>，score = 过期时间（unix 秒），连接断开不干净时靠 score 过期
func presenceKey(user string) string { return "im:presence:{" + user + "}" }

// 清理过期成员后统计仍有效的连接数
// KEYS[1] = user presence key
// ARGV[1] = nowUnix
const luaIsOnline = `
local userZ = KEYS[1]
local now   = tonumber(ARGV[1])
redis.call("ZREMRANGEBYSCORE", userZ, "-inf", now)
local cnt = redis.call("ZCOUNT", userZ, now + 1, "+inf")
if redis.call("ZCARD", userZ) == 0 then
  redis.call("DEL", userZ)
end
return cnt
`

// 登记或续期一条连接
// KEYS[1] = user presence key
// ARGV[1] = member
// ARGV[2] = expAt
// ARGV[3] = keyTTL（秒）
// ARGV[4] = onlyExisting（1=心跳，只续已有成员）
const luaTouch = `
local userZ  = KEYS[1]
local member = ARGV[1]
local expAt  = tonumber(ARGV[2])
local keyTTL = tonumber(ARGV[3])
if tonumber(ARGV[4]) == 1 and redis.call("ZSCORE", userZ, member) == false then
  return 0
end
redis.call("ZADD", userZ, expAt, member)
redis.call("EXPIRE", userZ, keyTTL)
return 1
`

// RedisPresence 多实例部署用
type RedisPresence struct {
	rdb        *redis.Client
	instanceID string
	ttl        time.Duration
	now        func() time.Time

	isOnline *redis.Script
	touch    *redis.Script
}

func NewRedisPresence(rdb *redis.Client, instanceID string, ttl time.Duration) *RedisPresence {
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	return &RedisPresence{
		rdb:        rdb,
		instanceID: instanceID,
		ttl:        ttl,
		now:        time.Now,
		isOnline:   redis.NewScript(luaIsOnline),
		touch:      redis.NewScript(luaTouch),
	}
}

func (p *RedisPresence) member(connID string) string {
	return p.instanceID + ":" + connID
}

func (p *RedisPresence) run(ctx context.Context, user, connID string, onlyExisting bool) error {
	expAt := p.now().Add(p.ttl).Unix()
	flag := "0"
	if onlyExisting {
		flag = "1"
	}
	keyTTL := strconv.Itoa(int(p.ttl.Seconds()) * 2)
	err := p.touch.Run(ctx, p.rdb, []string{presenceKey(user)}, p.member(connID), expAt, keyTTL, flag).Err()
	return errors.Wrapf(err, "presence touch %s", user)
}

func (p *RedisPresence) Online(ctx context.Context, user, connID string) error {
	return p.run(ctx, user, connID, false)
}

func (p *RedisPresence) Refresh(ctx context.Context, user, connID string) error {
	return p.run(ctx, user, connID, true)
}

func (p *RedisPresence) Offline(ctx context.Context, user, connID string) error {
	err := p.rdb.ZRem(ctx, presenceKey(user), p.member(connID)).Err()
	return errors.Wrapf(err, "presence offline %s", user)
}

func (p *RedisPresence) IsOnline(ctx context.Context, user string) (bool, error) {
	n, err := p.isOnline.Run(ctx, p.rdb, []string{presenceKey(user)}, p.now().Unix()).Int64()
	if err != nil {
		return false, errors.Wrapf(err, "presence lookup %s", user)
	}
	return n > 0, nil
}
