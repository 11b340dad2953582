package campaign

import (
	"context"
	"time"

	"kickback-engine/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Sale is what the matcher needs to know about a sale event.
type Sale struct {
	RetailerEmail string
	Product       string
	Day           time.Time
}

type Matcher struct {
	store  *Service
	cache  *ActiveCache
	strict bool
}

type MatcherParams struct {
	fx.In

	Store  *Service
	Cache  *ActiveCache
	Config *config.Config
}

func NewMatcher(p MatcherParams) *Matcher {
	return &Matcher{
		store:  p.Store,
		cache:  p.Cache,
		strict: p.Config.Kickback.StrictProductMatch,
	}
}

// Match returns every active campaign the sale qualifies for, ordered by
// creation time. No match is not an error.
func (m *Matcher) Match(ctx context.Context, sale Sale) ([]*Campaign, error) {
	ctx, span := tracer.Start(ctx, "campaign.Match")
	defer span.End()

	active, err := m.cache.Get(ctx, m.store.ListActive)
	if err != nil {
		return nil, err
	}

	var matched []*Campaign
	for _, c := range active {
		if !c.IsActive() {
			continue
		}
		if !MatchesProduct(c.ProductID, sale.Product, m.strict) {
			continue
		}
		if !c.CoversDay(sale.Day) {
			continue
		}
		if !c.IsEligible(sale.RetailerEmail) {
			continue
		}
		matched = append(matched, c)
	}

	if len(matched) == 0 {
		zap.L().Debug("no campaign matched sale",
			zap.String("retailer_email", sale.RetailerEmail),
			zap.String("product", sale.Product),
			zap.String("day", DayKey(sale.Day)),
		)
	}
	return matched, nil
}
