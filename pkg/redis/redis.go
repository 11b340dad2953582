package redis

import (
	"context"
	"fmt"
	"time"

	"kickback-engine/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("redis",
	fx.Provide(New),
)

const (
	pingAttempts = 5
	pingBackoff  = 3 * time.Second
)

// Options maps the REDIS section onto client options. The asynq client and
// server reuse it so every component talks to the same instance.
func Options(c *config.Config) *redis.Options {
	return &redis.Options{
		Addr:        c.Redis.Addr,
		Password:    c.Redis.Password,
		DB:          c.Redis.DB,
		PoolSize:    c.Redis.PoolSize,
		PoolTimeout: c.Redis.PoolTimeout,
	}
}

func New(lc fx.Lifecycle, c *config.Config) (*redis.Client, error) {
	log := zap.L().With(
		zap.String("addr", c.Redis.Addr),
		zap.Int("db", c.Redis.DB),
		zap.Int("pool_size", c.Redis.PoolSize),
	)

	rdb := redis.NewClient(Options(c))
	if err := ping(context.Background(), rdb, pingAttempts, pingBackoff, log); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	log.Info("[Redis] Connected to Redis")

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return rdb.Close()
		},
	})

	return rdb, nil
}

func ping(ctx context.Context, rdb *redis.Client, attempts int, backoff time.Duration, log *zap.Logger) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = rdb.Ping(ctx).Err(); err == nil {
			return nil
		}
		log.Warn("[Redis] Redis not ready, retrying...", zap.Int("retry", i+1), zap.Duration("backoff", backoff), zap.Error(err))
		if i < attempts-1 {
			time.Sleep(backoff)
		}
	}
	return fmt.Errorf("redis unreachable after %d attempts: %w", attempts, err)
}
