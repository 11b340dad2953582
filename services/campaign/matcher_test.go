package campaign

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchesProduct(t *testing.T) {
	cases := []struct {
		campaign string
		sale     string
		strict   bool
		want     bool
	}{
		{AllProducts, "anything", false, true},
		{AllProducts, "", true, true},
		{"SKU-COLA-05", "sku-cola-05", true, true},
		{"SKU-COLA-05", "SKU-COLA", false, true},
		{"COLA", "SKU-COLA-05", false, true},
		{"SKU-COLA-05", "SKU-COLA", true, false},
		{"SKU-COLA-05", "SKU-FANTA", false, false},
		{"SKU-COLA-05", "", false, false},
		{"", "SKU-COLA-05", false, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, MatchesProduct(tc.campaign, tc.sale, tc.strict), "%q vs %q strict=%v", tc.campaign, tc.sale, tc.strict)
	}
}

func TestIsEligibleIsExactMembership(t *testing.T) {
	open := &Campaign{}
	require.True(t, open.IsEligible("anyone@example.com"))

	closed := &Campaign{Retailers: []string{"bob@shop.no", "alice@shop.no"}}
	require.True(t, closed.IsEligible(" Bob@Shop.no "))
	require.False(t, closed.IsEligible("b@shop.no"))
	require.False(t, closed.IsEligible("bob@shop.no.evil"))
	require.False(t, closed.IsEligible(""))
}

func TestCoversDayInclusive(t *testing.T) {
	c := &Campaign{
		StartDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
	}
	require.True(t, c.CoversDay(c.StartDate))
	require.True(t, c.CoversDay(c.EndDate))
	require.False(t, c.CoversDay(c.StartDate.AddDate(0, 0, -1)))
	require.False(t, c.CoversDay(c.EndDate.AddDate(0, 0, 1)))
}

func newTestMatcher(t *testing.T, strict bool) (*Matcher, *Service) {
	t.Helper()
	svc, _ := newTestService(t)
	cfg := testConfig()
	cfg.Kickback.StrictProductMatch = strict
	return NewMatcher(MatcherParams{Store: svc, Cache: svc.cache, Config: cfg}), svc
}

func day(s string) time.Time {
	d, err := ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func ids(list []*Campaign) []string {
	out := make([]string, 0, len(list))
	for _, c := range list {
		out = append(out, c.ID)
	}
	return out
}

func TestMatcherReturnsEveryMatch(t *testing.T) {
	m, svc := newTestMatcher(t, false)
	ctx := context.Background()

	cola, err := svc.Create(ctx, validInput(), "admin@example.com")
	require.NoError(t, err)

	all := validInput()
	all.ProductID = AllProducts
	allProducts, err := svc.Create(ctx, all, "admin@example.com")
	require.NoError(t, err)

	restricted := validInput()
	restricted.Retailers = []string{"vip@shop.no"}
	vip, err := svc.Create(ctx, restricted, "admin@example.com")
	require.NoError(t, err)

	other := validInput()
	other.ProductID = "SKU-FANTA"
	_, err = svc.Create(ctx, other, "admin@example.com")
	require.NoError(t, err)

	got, err := m.Match(ctx, Sale{RetailerEmail: "shop@shop.no", Product: "sku-cola-05", Day: day("2025-03-10")})
	require.NoError(t, err)
	require.Equal(t, []string{cola.ID, allProducts.ID}, ids(got))

	got, err = m.Match(ctx, Sale{RetailerEmail: "VIP@shop.no", Product: "SKU-COLA-05", Day: day("2025-03-10")})
	require.NoError(t, err)
	require.Equal(t, []string{cola.ID, allProducts.ID, vip.ID}, ids(got))

	got, err = m.Match(ctx, Sale{RetailerEmail: "shop@shop.no", Product: "SKU-COLA-05", Day: day("2025-04-01")})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestMatcherStrictProducts(t *testing.T) {
	m, svc := newTestMatcher(t, true)
	ctx := context.Background()

	_, err := svc.Create(ctx, validInput(), "admin@example.com")
	require.NoError(t, err)

	got, err := m.Match(ctx, Sale{RetailerEmail: "shop@shop.no", Product: "COLA", Day: day("2025-03-10")})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestMatcherSeesWritesImmediately(t *testing.T) {
	m, svc := newTestMatcher(t, false)
	ctx := context.Background()
	sale := Sale{RetailerEmail: "shop@shop.no", Product: "SKU-COLA-05", Day: day("2025-03-10")}

	got, err := m.Match(ctx, sale)
	require.NoError(t, err)
	require.Empty(t, got)

	c, err := svc.Create(ctx, validInput(), "admin@example.com")
	require.NoError(t, err)

	got, err = m.Match(ctx, sale)
	require.NoError(t, err)
	require.Equal(t, []string{c.ID}, ids(got))

	_, err = svc.Update(ctx, c.ID, validInput(), StatusCancelled)
	require.NoError(t, err)

	got, err = m.Match(ctx, sale)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestActiveCacheSharesLoads(t *testing.T) {
	cache := NewActiveCache(time.Minute)
	var loads int32
	release := make(chan struct{})
	load := func(ctx context.Context) ([]*Campaign, error) {
		atomic.AddInt32(&loads, 1)
		<-release
		return []*Campaign{{ID: "c1"}}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := cache.Get(context.Background(), load)
			assert.NoError(t, err)
			assert.Len(t, got, 1)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&loads))

	_, err := cache.Get(context.Background(), load)
	require.NoError(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&loads))

	cache.Invalidate()
	_, err = cache.Get(context.Background(), load)
	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&loads))
}

func TestActiveCacheDoesNotStoreErrorsOrZeroTTL(t *testing.T) {
	boom := errors.New("boom")
	cache := NewActiveCache(time.Minute)
	_, err := cache.Get(context.Background(), func(ctx context.Context) ([]*Campaign, error) { return nil, boom })
	require.ErrorIs(t, err, boom)

	var loads int
	uncached := NewActiveCache(0)
	for i := 0; i < 3; i++ {
		_, err := uncached.Get(context.Background(), func(ctx context.Context) ([]*Campaign, error) {
			loads++
			return nil, nil
		})
		require.NoError(t, err)
	}
	require.Equal(t, 3, loads)
}
