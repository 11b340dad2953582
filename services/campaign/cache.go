package campaign

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{Name: "kickback_active_campaign_cache_hits_total"})
	cacheMiss = promauto.NewCounter(prometheus.CounterOpts{Name: "kickback_active_campaign_cache_miss_total"})
)

type loader func(ctx context.Context) ([]*Campaign, error)

// ActiveCache holds the ACTIVE campaign snapshot used by the matcher.
// Concurrent misses share one load; Invalidate drops the snapshot and any
// load that started before it.
type ActiveCache struct {
	mu       sync.RWMutex
	items    []*Campaign
	loadedAt time.Time
	valid    bool
	gen      uint64
	ttl      time.Duration
	group    singleflight.Group
}

func NewActiveCache(ttl time.Duration) *ActiveCache {
	return &ActiveCache{ttl: ttl}
}

func (c *ActiveCache) Get(ctx context.Context, load loader) ([]*Campaign, error) {
	c.mu.RLock()
	items, ok, gen := c.items, c.fresh(), c.gen
	c.mu.RUnlock()
	if ok {
		cacheHits.Inc()
		return items, nil
	}
	cacheMiss.Inc()

	v, err, _ := c.group.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		loaded, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.gen == gen && c.ttl > 0 {
			c.items = loaded
			c.loadedAt = time.Now()
			c.valid = true
		}
		c.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*Campaign), nil
}

func (c *ActiveCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.items = nil
	c.valid = false
}

func (c *ActiveCache) fresh() bool {
	return c.valid && c.ttl > 0 && time.Since(c.loadedAt) <= c.ttl
}
