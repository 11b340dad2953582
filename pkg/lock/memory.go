package lock

import (
	"context"
	"sync"
	"time"
)

type keyLock struct {
	ch   chan struct{}
	refs int
}

// MemoryLocker is a keyed mutex for a single process. Entries are dropped as
// soon as no goroutine holds or waits on them.
type MemoryLocker struct {
	mu   sync.Mutex
	keys map[string]*keyLock
	wait time.Duration
}

// NewMemoryLocker returns a locker that gives up with ErrLockTimeout after
// waitTimeout. Zero waits as long as the context allows.
func NewMemoryLocker(waitTimeout time.Duration) *MemoryLocker {
	return &MemoryLocker{keys: make(map[string]*keyLock), wait: waitTimeout}
}

func (l *MemoryLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	kl := l.acquireRef(key)
	defer l.releaseRef(key, kl)

	waitCtx, cancel := waitDeadline(ctx, l.wait)
	defer cancel()

	select {
	case kl.ch <- struct{}{}:
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrLockTimeout
	}
	defer func() { <-kl.ch }()

	return fn(ctx)
}

func (l *MemoryLocker) acquireRef(key string) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl, ok := l.keys[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.keys[key] = kl
	}
	kl.refs++
	return kl
}

func (l *MemoryLocker) releaseRef(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.keys, key)
	}
}

func (l *MemoryLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}
