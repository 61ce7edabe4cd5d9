package lock

import (
	"context"
	"fmt"
	"github.com/ariefcatur/go-batch-reservations/internal/logger"
	"github.com/ariefcatur/go-batch-reservations/internal/metrics"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"time"
)

// releaseScript deletes the key only while it still holds our token, so a
// lease that expired and was taken over is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// Redis implements Manager with SET NX PX.
// The manager keeps no state; each Lease carries its own token.
type Redis struct {
	rdb redisClient
}

func NewRedis(rdb redisClient) *Redis {
	return &Redis{rdb: rdb}
}

func (m *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	l := Lease{Key: key, Token: uuid.NewString()}
	ok, err := m.rdb.SetNX(ctx, key, l.Token, ttl).Result()
	if err != nil {
		metrics.LockAcquireTotal.WithLabelValues(namespace(key), "error").Inc()
		logger.Error(ctx).Err(err).Str("key", key).Msg("lease acquire failed")
		return Lease{}, false, fmt.Errorf("%w: acquire %s: %v", ErrUnavailable, key, err)
	}
	if !ok {
		metrics.LockAcquireTotal.WithLabelValues(namespace(key), "held").Inc()
		return Lease{}, false, nil
	}
	metrics.LockAcquireTotal.WithLabelValues(namespace(key), "acquired").Inc()
	return l, true, nil
}

func (m *Redis) Release(ctx context.Context, l Lease) error {
	if l.Token == "" {
		return nil
	}
	if err := releaseScript.Run(ctx, m.rdb, []string{l.Key}, l.Token).Err(); err != nil {
		logger.Warn(ctx).Err(err).Str("key", l.Key).Msg("lease release failed, waiting for ttl")
		return fmt.Errorf("%w: release %s: %v", ErrUnavailable, l.Key, err)
	}
	return nil
}
