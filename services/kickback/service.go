package kickback

import (
	"context"
	"errors"
	"time"

	"kickback-engine/pkg/config"
	"kickback-engine/pkg/errutil"
	"kickback-engine/pkg/lock"
	"kickback-engine/pkg/repository"
	"kickback-engine/pkg/task"
	"kickback-engine/services/campaign"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("kickback-engine/services/kickback")

// CampaignStore is the part of the campaign service the ledger depends on.
type CampaignStore interface {
	Get(ctx context.Context, id string) (*campaign.Campaign, error)
	List(ctx context.Context) ([]*campaign.Campaign, error)
	ListActive(ctx context.Context) ([]*campaign.Campaign, error)
	ExpireEnded(ctx context.Context) ([]string, error)
	Today() time.Time
	Location() *time.Location
}

// CampaignMatcher resolves the campaigns a sale qualifies for.
type CampaignMatcher interface {
	Match(ctx context.Context, sale campaign.Sale) ([]*campaign.Campaign, error)
}

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	locker   lock.Locker
	enqueuer task.Enqueuer

	campaigns CampaignStore
	matcher   CampaignMatcher

	asyncIntake bool
	queue       string
	now         func() time.Time

	participation repository.Repository[Participation]
	earning       repository.Repository[Earning]
}

type ServiceParams struct {
	fx.In

	DB       *gorm.DB
	Node     *snowflake.Node
	Locker   lock.Locker
	Enqueuer task.Enqueuer `optional:"true"`
	Config   *config.Config

	Campaigns *campaign.Service
	Matcher   *campaign.Matcher
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:          p.DB,
		node:        p.Node,
		locker:      p.Locker,
		enqueuer:    p.Enqueuer,
		campaigns:   p.Campaigns,
		matcher:     p.Matcher,
		asyncIntake: p.Config.Kickback.AsyncIntake,
		queue:       p.Config.Kickback.Queue,
		now:         time.Now,

		participation: repository.ProvideStore[Participation](p.DB),
		earning:       repository.ProvideStore[Earning](p.DB),
	}
}

// CascadeDelete removes a campaign's participations and earnings inside the
// campaign delete transaction.
func CascadeDelete(ctx context.Context, tx *gorm.DB, campaignID string) error {
	if err := tx.WithContext(ctx).Where("campaign_id = ?", campaignID).Delete(&Earning{}).Error; err != nil {
		return err
	}
	return tx.WithContext(ctx).Where("campaign_id = ?", campaignID).Delete(&Participation{}).Error
}

func (s *Service) withLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	err := s.locker.WithLock(ctx, key, fn)
	if errors.Is(err, lock.ErrLockTimeout) {
		return errutil.Timeout("resource is busy, retry later", err)
	}
	return err
}
