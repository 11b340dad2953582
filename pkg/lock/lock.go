package lock

import (
	"context"
	"errors"
	"time"

	"kickback-engine/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ErrLockTimeout is returned when a key could not be acquired before the wait
// timeout elapsed.
var ErrLockTimeout = errors.New("lock: timed out waiting for key")

// Locker serializes work per key. Calls for different keys never contend.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

var Module = fx.Module("lock",
	fx.Provide(New),
)

type Params struct {
	fx.In
	Config *config.Config
	Redis  *redis.Client `optional:"true"`
}

// New picks the locker named by LOCK.DRIVER. The redis driver falls back to
// the in-process locker when no client is wired.
func New(p Params) Locker {
	cfg := p.Config.Lock
	if cfg.Driver == "redis" && p.Redis != nil {
		zap.L().Info("[Lock] using redis locker", zap.Duration("ttl", cfg.TTL))
		return NewRedisLocker(p.Redis, RedisOptions{
			TTL:           cfg.TTL,
			WaitTimeout:   cfg.WaitTimeout,
			RetryInterval: cfg.RetryInterval,
		})
	}
	zap.L().Info("[Lock] using in-process locker", zap.Duration("wait_timeout", cfg.WaitTimeout))
	return NewMemoryLocker(cfg.WaitTimeout)
}

func waitDeadline(ctx context.Context, wait time.Duration) (context.Context, context.CancelFunc) {
	if wait <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, wait)
}
