package sequence

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"kickback-engine/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("sequence",
	fx.Provide(NewRedisGenerator),
)

// Generator hands out human readable campaign codes.
type Generator interface {
	NextCampaignCode(ctx context.Context) (string, error)
}

const (
	campaignPrefix = "CMP"
	seqWidth       = 3
	suffixLen      = 2
	// no 0/O, 1/I
	suffixAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

type RedisGenerator struct {
	rdb redis.UniversalClient
	now func() time.Time
}

type Params struct {
	fx.In

	Redis *redis.Client
}

func NewRedisGenerator(p Params) Generator {
	return &RedisGenerator{rdb: p.Redis, now: time.Now}
}

// NextCampaignCode returns codes like "CMP-250101-001AB". The counter resets
// every UTC day.
func (g *RedisGenerator) NextCampaignCode(ctx context.Context) (string, error) {
	now := g.now().UTC()
	day := now.Format("060102")

	seq, err := g.incrDaily(ctx, rediskey.BuildDailySequenceKey(campaignPrefix, day), now)
	if err != nil {
		return "", fmt.Errorf("sequence: %w", err)
	}

	suffix, err := randomSuffix(suffixLen)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%s%s", campaignPrefix, day, base36(seq, seqWidth), suffix), nil
}

// incrDaily bumps the counter and pins its expiry to the end of the day in
// one round trip.
func (g *RedisGenerator) incrDaily(ctx context.Context, key string, now time.Time) (int64, error) {
	endOfDay := now.Truncate(24 * time.Hour).Add(24 * time.Hour)

	var incr *redis.IntCmd
	_, err := g.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireAt(ctx, key, endOfDay)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func base36(n int64, width int) string {
	s := strings.ToUpper(strconv.FormatInt(n, 36))
	if len(s) < width {
		s = strings.Repeat("0", width-len(s)) + s
	}
	return s
}

func randomSuffix(n int) (string, error) {
	limit := big.NewInt(int64(len(suffixAlphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b[i] = suffixAlphabet[idx.Int64()]
	}
	return string(b), nil
}
