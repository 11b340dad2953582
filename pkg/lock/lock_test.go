package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"kickback-engine/pkg/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func assertSerialized(t *testing.T, l Locker) {
	t.Helper()

	var inside, maxInside int32
	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(context.Background(), "k", func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				v := counter
				time.Sleep(time.Millisecond)
				counter = v + 1
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, 20, counter)
	require.Equal(t, int32(1), maxInside)
}

func TestMemoryLockerSerializesSameKey(t *testing.T) {
	l := NewMemoryLocker(0)
	assertSerialized(t, l)
	require.Zero(t, l.size())
}

func TestMemoryLockerIndependentKeys(t *testing.T) {
	l := NewMemoryLocker(0)
	held := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = l.WithLock(context.Background(), "a", func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	called := false
	require.NoError(t, l.WithLock(ctx, "b", func(ctx context.Context) error {
		called = true
		return nil
	}))
	require.True(t, called)
	close(release)
}

func TestMemoryLockerHonoursContext(t *testing.T) {
	l := NewMemoryLocker(0)
	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		_ = l.WithLock(context.Background(), "k", func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.WithLock(ctx, "k", func(ctx context.Context) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	<-done
	require.Zero(t, l.size())
}

func TestMemoryLockerWaitTimeout(t *testing.T) {
	l := NewMemoryLocker(20 * time.Millisecond)
	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		_ = l.WithLock(context.Background(), "k", func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	called := false
	err := l.WithLock(context.Background(), "k", func(ctx context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ErrLockTimeout)
	require.False(t, called)

	close(release)
	<-done
	require.NoError(t, l.WithLock(context.Background(), "k", func(ctx context.Context) error { return nil }))
	require.Zero(t, l.size())
}

func TestMemoryLockerPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	err := NewMemoryLocker(0).WithLock(context.Background(), "k", func(ctx context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisLockerSerializesSameKey(t *testing.T) {
	rdb := newRedis(t)
	l := NewRedisLocker(rdb, RedisOptions{TTL: 5 * time.Second, WaitTimeout: 5 * time.Second, RetryInterval: time.Millisecond})
	assertSerialized(t, l)

	n, err := rdb.Exists(context.Background(), "k").Result()
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRedisLockerTimesOut(t *testing.T) {
	rdb := newRedis(t)
	require.NoError(t, rdb.Set(context.Background(), "k", "someone-else", time.Minute).Err())

	l := NewRedisLocker(rdb, RedisOptions{TTL: time.Second, WaitTimeout: 30 * time.Millisecond, RetryInterval: 5 * time.Millisecond})
	err := l.WithLock(context.Background(), "k", func(ctx context.Context) error { return nil })
	require.ErrorIs(t, err, ErrLockTimeout)

	// a foreign holder's key is never deleted
	v, err := rdb.Get(context.Background(), "k").Result()
	require.NoError(t, err)
	require.Equal(t, "someone-else", v)
}

func TestNewSelectsDriver(t *testing.T) {
	cfg := &config.Config{}
	cfg.Lock.Driver = "memory"
	require.IsType(t, &MemoryLocker{}, New(Params{Config: cfg}))

	cfg.Lock.Driver = "redis"
	require.IsType(t, &MemoryLocker{}, New(Params{Config: cfg}))
	require.IsType(t, &RedisLocker{}, New(Params{Config: cfg, Redis: newRedis(t)}))
}
