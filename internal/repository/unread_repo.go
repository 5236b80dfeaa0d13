package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/sellerchat/pkg/constant"
)

// versionTTL keeps the invalidation counter well past any cached count
const versionTTL = 24 * time.Hour

// setIfVersion stores the count only while the version key still holds the
// value the reader saw before counting.
// KEYS[1] version key, KEYS[2] count key; ARGV[1] version, ARGV[2] count,
// ARGV[3] ttl in ms (0 keeps it forever).
var setIfVersion = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then cur = '0' end
if cur ~= ARGV[1] then
	return 0
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
	redis.call('SET', KEYS[2], ARGV[2], 'PX', ttl)
else
	redis.call('SET', KEYS[2], ARGV[2])
end
return 1
`)

// UnreadCacheRepo caches per-user unread counts in Redis. It holds derived
// data only; the participant marker stays the source of truth. Every
// invalidation bumps a version so a count computed before it can never be
// written back afterwards.
type UnreadCacheRepo struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewUnreadCacheRepo creates a new UnreadCacheRepo
func NewUnreadCacheRepo(rdb *redis.Client, ttl time.Duration) *UnreadCacheRepo {
	return &UnreadCacheRepo{rdb: rdb, ttl: ttl}
}

func unreadKey(conversationId, userId string) string {
	return fmt.Sprintf(constant.RedisKeyUnread(), conversationId, userId)
}

func unreadVersionKey(conversationId, userId string) string {
	return fmt.Sprintf(constant.RedisKeyUnreadVersion(), conversationId, userId)
}

// Get returns the cached count and whether it was present
func (r *UnreadCacheRepo) Get(ctx context.Context, conversationId, userId string) (int64, bool, error) {
	n, err := r.rdb.Get(ctx, unreadKey(conversationId, userId)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return n, true, nil
}

// Version returns the current invalidation version. Read it before the data
// the count is computed from.
func (r *UnreadCacheRepo) Version(ctx context.Context, conversationId, userId string) (string, error) {
	v, err := r.rdb.Get(ctx, unreadVersionKey(conversationId, userId)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "0", nil
		}
		return "", err
	}
	return v, nil
}

// SetIfVersion caches a count unless an invalidation happened since version
// was read. It reports whether the count was stored.
func (r *UnreadCacheRepo) SetIfVersion(ctx context.Context, conversationId, userId, version string, n int64) (bool, error) {
	keys := []string{unreadVersionKey(conversationId, userId), unreadKey(conversationId, userId)}
	stored, err := setIfVersion.Run(ctx, r.rdb, keys, version, n, r.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

// Invalidate bumps the version and drops the cached count in one step
func (r *UnreadCacheRepo) Invalidate(ctx context.Context, conversationId, userId string) error {
	versionKey := unreadVersionKey(conversationId, userId)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionKey)
		pipe.Expire(ctx, versionKey, versionTTL)
		pipe.Del(ctx, unreadKey(conversationId, userId))
		return nil
	})
	return err
}
