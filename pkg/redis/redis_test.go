package redis

import (
	"context"
	"testing"
	"time"

	"kickback-engine/pkg/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func TestNewConnects(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{}
	cfg.Redis.Addr = mr.Addr()

	lc := fxtest.NewLifecycle(t)
	rdb, err := New(lc, cfg)
	require.NoError(t, err)
	require.NoError(t, rdb.Set(context.Background(), "k", "v", 0).Err())
	lc.RequireStart()
	lc.RequireStop()
}

func TestPingGivesUp(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	err := ping(context.Background(), rdb, 2, time.Millisecond, zap.NewNop())
	require.ErrorContains(t, err, "after 2 attempts")
}
