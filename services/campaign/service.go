package campaign

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"kickback-engine/pkg/config"
	"kickback-engine/pkg/db/option"
	"kickback-engine/pkg/errutil"
	"kickback-engine/pkg/logger"
	"kickback-engine/pkg/repository"
	"kickback-engine/pkg/sequence"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("kickback-engine/services/campaign")

var hundred = decimal.NewFromInt(100)

// CascadeFunc removes rows owned by a campaign inside the delete transaction.
type CascadeFunc func(ctx context.Context, tx *gorm.DB, campaignID string) error

// Input carries the admin-editable fields of a campaign. Update replaces all
// of them, including the retailer set.
type Input struct {
	Name         string          `json:"campaignName"`
	Description  string          `json:"description"`
	ProductID    string          `json:"productId"`
	ProductName  string          `json:"productName"`
	ProductPrice decimal.Decimal `json:"productPrice"`
	KickbackRate decimal.Decimal `json:"kickbackRate"`
	SalesTarget  decimal.Decimal `json:"salesTarget"`
	DurationDays int             `json:"durationDays"`
	StartDate    string          `json:"startDate"`
	Retailers    []string        `json:"selectedRetailers"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
}

type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	seq   sequence.Generator
	cache *ActiveCache
	loc   *time.Location
	now   func() time.Time

	campaign repository.Repository[Campaign]
	retailer repository.Repository[CampaignRetailer]

	cascades []CascadeFunc
}

type ServiceParams struct {
	fx.In

	DB       *gorm.DB
	Node     *snowflake.Node
	Seq      sequence.Generator `optional:"true"`
	Cache    *ActiveCache
	Config   *config.Config
	Cascades []CascadeFunc `group:"campaign.cascade"`
}

func NewService(p ServiceParams) *Service {
	loc, err := time.LoadLocation(p.Config.Kickback.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return &Service{
		db:       p.DB,
		node:     p.Node,
		seq:      p.Seq,
		cache:    p.Cache,
		loc:      loc,
		now:      time.Now,
		campaign: repository.ProvideStore[Campaign](p.DB),
		retailer: repository.ProvideStore[CampaignRetailer](p.DB),
		cascades: p.Cascades,
	}
}

// Today is the current calendar day in the configured timezone.
func (s *Service) Today() time.Time {
	return Day(s.now(), s.loc)
}

func (s *Service) Location() *time.Location {
	return s.loc
}

func (s *Service) Create(ctx context.Context, in Input, createdBy string) (*Campaign, error) {
	ctx, span := tracer.Start(ctx, "campaign.Create")
	defer span.End()
	log := logger.FromContext(ctx)

	c, err := s.build(in)
	if err != nil {
		return nil, err
	}
	c.ID = s.node.Generate().String()
	c.Status = StatusActive
	c.CreatedBy = createdBy

	if s.seq != nil {
		code, err := s.seq.NextCampaignCode(ctx)
		if err != nil {
			log.Warn("failed to allocate campaign code, falling back to id", zap.Error(err))
			code = c.ID
		}
		c.Code = code
	} else {
		c.Code = c.ID
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.campaign.WithTrx(tx).Create(ctx, c); err != nil {
			return err
		}
		return s.replaceRetailers(ctx, tx, c.ID, c.Retailers)
	}); err != nil {
		log.Error("failed to create campaign", zap.Error(err))
		return nil, err
	}

	s.cache.Invalidate()
	log.Info("campaign created",
		zap.String("campaign_id", c.ID),
		zap.String("code", c.Code),
		zap.Int("retailers", len(c.Retailers)),
	)
	return c, nil
}

func (s *Service) Update(ctx context.Context, id string, in Input, status Status) (*Campaign, error) {
	ctx, span := tracer.Start(ctx, "campaign.Update")
	defer span.End()
	log := logger.FromContext(ctx).With(zap.String("campaign_id", id))

	if status != "" && !status.Valid() {
		return nil, errutil.ValidationFailed("invalid campaign status", nil,
			errutil.WithDetails(errutil.Detail{Field: "status", Message: "must be ACTIVE, COMPLETED, EXPIRED or CANCELLED"}))
	}

	next, err := s.build(in)
	if err != nil {
		return nil, err
	}

	var out *Campaign
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.campaign.WithTrx(tx).FindByID(ctx, id, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if existing == nil {
			return errutil.NotFound("campaign not found", nil)
		}

		if status == "" {
			status = existing.Status
		}

		if err := s.campaign.WithTrx(tx).Update(ctx, id, map[string]any{
			"name":          next.Name,
			"description":   next.Description,
			"product_id":    next.ProductID,
			"product_name":  next.ProductName,
			"product_price": next.ProductPrice,
			"kickback_rate": next.KickbackRate,
			"sales_target":  next.SalesTarget,
			"duration_days": next.DurationDays,
			"start_date":    next.StartDate,
			"end_date":      next.EndDate,
			"status":        status,
			"metadata":      next.Metadata,
		}); err != nil {
			return err
		}
		if err := s.replaceRetailers(ctx, tx, id, next.Retailers); err != nil {
			return err
		}

		next.ID = existing.ID
		next.Code = existing.Code
		next.Status = status
		next.CreatedBy = existing.CreatedBy
		next.CreatedAt = existing.CreatedAt
		next.UpdatedAt = s.now()
		out = next
		return nil
	}); err != nil {
		log.Error("failed to update campaign", zap.Error(err))
		return nil, err
	}

	s.cache.Invalidate()
	log.Info("campaign updated", zap.String("status", string(out.Status)))
	return out, nil
}

// Delete removes the campaign, its eligibility set and everything the
// registered cascades own, atomically.
func (s *Service) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "campaign.Delete")
	defer span.End()
	log := logger.FromContext(ctx).With(zap.String("campaign_id", id))

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.campaign.WithTrx(tx).FindByID(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return errutil.NotFound("campaign not found", nil)
		}

		for _, cascade := range s.cascades {
			if err := cascade(ctx, tx, id); err != nil {
				return err
			}
		}
		if err := tx.Where("campaign_id = ?", id).Delete(&CampaignRetailer{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&Campaign{}).Error
	}); err != nil {
		log.Error("failed to delete campaign", zap.Error(err))
		return err
	}

	s.cache.Invalidate()
	log.Info("campaign deleted")
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*Campaign, error) {
	c, err := s.campaign.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errutil.NotFound("campaign not found", nil)
	}
	if err := s.attachRetailers(ctx, []*Campaign{c}); err != nil {
		return nil, err
	}
	return c, nil
}

// List returns every campaign, newest first.
func (s *Service) List(ctx context.Context) ([]*Campaign, error) {
	list, err := s.campaign.Find(ctx, nil, option.WithSortBy(option.QuerySortBy{OrderBy: "DESC"}))
	if err != nil {
		return nil, err
	}
	if err := s.attachRetailers(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

// ListActive returns ACTIVE campaigns whose end date is today or later,
// oldest first.
func (s *Service) ListActive(ctx context.Context) ([]*Campaign, error) {
	list, err := s.campaign.Find(ctx, &Campaign{Status: StatusActive},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "ASC"}),
		option.WithSortBy(option.QuerySortBy{SortBy: "id", OrderBy: "ASC"}),
	)
	if err != nil {
		return nil, err
	}

	today := s.Today()
	active := make([]*Campaign, 0, len(list))
	for _, c := range list {
		if !c.EndDate.Before(today) {
			active = append(active, c)
		}
	}
	if err := s.attachRetailers(ctx, active); err != nil {
		return nil, err
	}
	return active, nil
}

// ExpireEnded flips ACTIVE campaigns whose window closed before today to
// EXPIRED and returns their ids.
func (s *Service) ExpireEnded(ctx context.Context) ([]string, error) {
	list, err := s.campaign.Find(ctx, &Campaign{Status: StatusActive})
	if err != nil {
		return nil, err
	}

	today := s.Today()
	var ids []string
	for _, c := range list {
		if c.EndDate.Before(today) {
			ids = append(ids, c.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	if err := s.db.WithContext(ctx).Model(&Campaign{}).
		Where("id IN ? AND status = ?", ids, StatusActive).
		Update("status", StatusExpired).Error; err != nil {
		return nil, err
	}

	s.cache.Invalidate()
	return ids, nil
}

func (s *Service) build(in Input) (*Campaign, error) {
	var details []errutil.Detail
	if strings.TrimSpace(in.Name) == "" {
		details = append(details, errutil.Detail{Field: "campaignName", Message: "is required"})
	}
	if strings.TrimSpace(in.ProductID) == "" {
		details = append(details, errutil.Detail{Field: "productId", Message: "is required"})
	}
	if !in.KickbackRate.IsPositive() || in.KickbackRate.GreaterThan(hundred) {
		details = append(details, errutil.Detail{Field: "kickbackRate", Message: "must be in (0, 100]"})
	}
	if !in.SalesTarget.IsPositive() {
		details = append(details, errutil.Detail{Field: "salesTarget", Message: "must be positive"})
	}
	if in.ProductPrice.IsNegative() {
		details = append(details, errutil.Detail{Field: "productPrice", Message: "must not be negative"})
	}
	if in.DurationDays <= 0 {
		details = append(details, errutil.Detail{Field: "durationDays", Message: "must be positive"})
	}

	var start time.Time
	if strings.TrimSpace(in.StartDate) == "" {
		start = s.Today()
	} else {
		d, err := ParseDay(in.StartDate)
		if err != nil {
			details = append(details, errutil.Detail{Field: "startDate", Message: "must be YYYY-MM-DD"})
		}
		start = d
	}

	var metadata []byte
	if len(in.Metadata) > 0 {
		b, err := json.Marshal(in.Metadata)
		if err != nil {
			details = append(details, errutil.Detail{Field: "metadata", Message: "must be a JSON object"})
		}
		metadata = b
	}

	if len(details) > 0 {
		return nil, errutil.ValidationFailed("invalid campaign", nil, errutil.WithDetails(details...))
	}

	return &Campaign{
		Name:         strings.TrimSpace(in.Name),
		Description:  in.Description,
		ProductID:    strings.TrimSpace(in.ProductID),
		ProductName:  strings.TrimSpace(in.ProductName),
		ProductPrice: in.ProductPrice,
		KickbackRate: in.KickbackRate,
		SalesTarget:  in.SalesTarget,
		DurationDays: in.DurationDays,
		StartDate:    start,
		EndDate:      start.AddDate(0, 0, in.DurationDays),
		Metadata:     metadata,
		Retailers:    NormalizeRetailers(in.Retailers),
	}, nil
}

func (s *Service) replaceRetailers(ctx context.Context, tx *gorm.DB, campaignID string, emails []string) error {
	if err := tx.WithContext(ctx).Where("campaign_id = ?", campaignID).Delete(&CampaignRetailer{}).Error; err != nil {
		return err
	}
	rows := make([]*CampaignRetailer, 0, len(emails))
	for _, e := range emails {
		rows = append(rows, &CampaignRetailer{CampaignID: campaignID, RetailerEmail: e})
	}
	return s.retailer.WithTrx(tx).BatchCreate(ctx, rows)
}

func (s *Service) attachRetailers(ctx context.Context, list []*Campaign) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]string, 0, len(list))
	byID := make(map[string]*Campaign, len(list))
	for _, c := range list {
		ids = append(ids, c.ID)
		byID[c.ID] = c
		c.Retailers = []string{}
	}

	rows, err := s.retailer.Find(ctx, nil,
		option.WithConditions(option.Condition{Field: "campaign_id", Operator: option.IN, Value: ids}),
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "ASC"}),
		option.WithSortBy(option.QuerySortBy{SortBy: "retailer_email", OrderBy: "ASC"}),
	)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if c, ok := byID[r.CampaignID]; ok {
			c.Retailers = append(c.Retailers, r.RetailerEmail)
		}
	}
	return nil
}
