package campaign

import (
	"kickback-engine/pkg/config"
	"kickback-engine/pkg/db"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("campaign.service",
	fx.Provide(
		provideActiveCache,
		NewService,
		NewMatcher,
	),
	fx.Invoke(migrate),
)

func provideActiveCache(cfg *config.Config) *ActiveCache {
	return NewActiveCache(cfg.Kickback.MatcherCacheTTL)
}

func migrate(cfg *config.Config, conn *gorm.DB) error {
	return db.Migrate(cfg, conn, &Campaign{}, &CampaignRetailer{})
}
