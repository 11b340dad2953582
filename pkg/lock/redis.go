package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisOptions struct {
	TTL           time.Duration
	WaitTimeout   time.Duration
	RetryInterval time.Duration
}

// RedisLocker holds a key with SET NX PX and releases it only if the stored
// token is still ours. fn must finish within TTL.
type RedisLocker struct {
	rdb  redis.UniversalClient
	opts RedisOptions
}

func NewRedisLocker(rdb redis.UniversalClient, opts RedisOptions) *RedisLocker {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 50 * time.Millisecond
	}
	return &RedisLocker{rdb: rdb, opts: opts}
}

func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	token, err := newToken()
	if err != nil {
		return err
	}

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}
	defer func() {
		// release must run even when ctx was cancelled by fn's caller
		if err := releaseScript.Run(context.WithoutCancel(ctx), l.rdb, []string{key}, token).Err(); err != nil {
			zap.L().Warn("[Lock] failed to release redis lock", zap.String("key", key), zap.Error(err))
		}
	}()

	return fn(ctx)
}

func (l *RedisLocker) acquire(ctx context.Context, key, token string) error {
	waitCtx, cancel := waitDeadline(ctx, l.opts.WaitTimeout)
	defer cancel()

	ticker := time.NewTicker(l.opts.RetryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.rdb.SetNX(waitCtx, key, token, l.opts.TTL).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-ticker.C:
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrLockTimeout
		}
	}
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
