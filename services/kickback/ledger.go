package kickback

import (
	"context"
	"strings"
	"time"

	"kickback-engine/pkg/db/option"
	"kickback-engine/pkg/errutil"
	"kickback-engine/pkg/logger"
	"kickback-engine/pkg/rediskey"
	"kickback-engine/services/campaign"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

// SaleRecord is one sale attributed to one campaign.
type SaleRecord struct {
	CampaignID    string
	RetailerEmail string
	RetailerName  string
	Amount        decimal.Decimal
	SaleDate      time.Time
}

// PointsFor converts an amount at a percentage rate into points, rounded half
// up to two decimals.
func PointsFor(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).DivRound(hundred, 2)
}

type accrual struct {
	cumulative    decimal.Decimal
	effective     decimal.Decimal
	points        decimal.Decimal
	targetReached bool
}

// accrue caps the sale against the remaining target. Once the target has been
// reached nothing more accrues; the crossing sale only counts up to it. A
// target lowered below the sales already recorded counts as reached.
func accrue(p *Participation, amount decimal.Decimal, c *campaign.Campaign) accrual {
	cumulative := p.TotalSales.Add(amount)
	reached := cumulative.GreaterThanOrEqual(c.SalesTarget)

	effective := amount
	switch {
	case p.TargetReached, p.TotalSales.GreaterThanOrEqual(c.SalesTarget):
		effective = decimal.Zero
	case reached:
		effective = amount.Sub(cumulative.Sub(c.SalesTarget))
	}

	return accrual{
		cumulative:    cumulative,
		effective:     effective,
		points:        PointsFor(effective, c.KickbackRate),
		targetReached: p.TargetReached || reached,
	}
}

// RecordSale attributes a sale to the retailer's participation and the day's
// earning. A sale for an inactive campaign, an ineligible retailer or a day
// outside the window is logged and ignored with (nil, nil).
func (s *Service) RecordSale(ctx context.Context, in SaleRecord) (*Earning, error) {
	ctx, span := tracer.Start(ctx, "kickback.RecordSale")
	defer span.End()

	email := campaign.NormalizeEmail(in.RetailerEmail)
	log := logger.FromContext(ctx).With(
		zap.String("campaign_id", in.CampaignID),
		zap.String("retailer_email", email),
		zap.String("amount", in.Amount.String()),
	)
	span.SetAttributes(attribute.String("campaign_id", in.CampaignID))

	if email == "" {
		return nil, errutil.ValidationFailed("retailer email is required", nil)
	}
	if !in.Amount.IsPositive() {
		return nil, errutil.ValidationFailed("sale amount must be positive", nil)
	}
	if !in.Amount.Equal(in.Amount.Round(2)) {
		return nil, errutil.ValidationFailed("sale amount has more than two decimals", nil)
	}

	c, err := s.campaigns.Get(ctx, in.CampaignID)
	if err != nil {
		return nil, err
	}

	day := campaign.Day(saleTime(in.SaleDate, s.now), s.campaigns.Location())

	switch {
	case !c.IsActive():
		log.Info("campaign not active, sale ignored", zap.String("status", string(c.Status)))
		salesRecorded.WithLabelValues("ignored").Inc()
		return nil, nil
	case !c.IsEligible(email):
		log.Info("retailer not eligible, sale ignored")
		salesRecorded.WithLabelValues("ignored").Inc()
		return nil, nil
	case !c.CoversDay(day):
		log.Info("sale outside campaign window, ignored", zap.String("day", campaign.DayKey(day)))
		salesRecorded.WithLabelValues("ignored").Inc()
		return nil, nil
	}

	var out *Earning
	key := rediskey.BuildParticipationLockKey(c.ID, email)
	err = s.withLock(ctx, key, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			e, err := s.applySale(ctx, tx, c, email, strings.TrimSpace(in.RetailerName), in.Amount, day)
			out = e
			return err
		})
	})
	if err != nil {
		salesRecorded.WithLabelValues("failed").Inc()
		log.Warn("failed to record sale", zap.Error(err))
		return nil, err
	}

	salesRecorded.WithLabelValues("recorded").Inc()
	log.Info("sale recorded",
		zap.String("earning_id", out.ID),
		zap.String("day", out.EarningDate),
		zap.String("earned_points", out.EarnedPoints.String()),
	)
	return out, nil
}

func (s *Service) applySale(ctx context.Context, tx *gorm.DB, c *campaign.Campaign, email, name string, amount decimal.Decimal, day time.Time) (*Earning, error) {
	participations := s.participation.WithTrx(tx)
	earnings := s.earning.WithTrx(tx)
	dayKey := campaign.DayKey(day)

	e, err := earnings.FindOne(ctx, &Earning{CampaignID: c.ID, RetailerEmail: email, EarningDate: dayKey}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}
	if e != nil && e.Status != EarningPending {
		return nil, errutil.Conflict("earning for this day is already "+strings.ToLower(string(e.Status)), nil,
			errutil.WithDetails(errutil.Detail{Field: "earningId", Message: e.ID}))
	}

	p, err := participations.FindOne(ctx, &Participation{CampaignID: c.ID, RetailerEmail: email}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = &Participation{
			ID:            s.node.Generate().String(),
			CampaignID:    c.ID,
			RetailerEmail: email,
			RetailerName:  name,
			Status:        ParticipationActive,
		}
		if err := participations.Create(ctx, p); err != nil {
			return nil, err
		}
	}

	a := accrue(p, amount, c)

	if e == nil {
		e = &Earning{
			ID:               s.node.Generate().String(),
			CampaignID:       c.ID,
			RetailerEmail:    email,
			RetailerName:     name,
			EarningDate:      dayKey,
			DailySalesAmount: amount,
			EarnedPoints:     a.points,
			CumulativeSales:  a.cumulative,
			Status:           EarningPending,
		}
		if err := earnings.Create(ctx, e); err != nil {
			return nil, err
		}
	} else {
		e.DailySalesAmount = e.DailySalesAmount.Add(amount)
		e.EarnedPoints = e.EarnedPoints.Add(a.points)
		e.CumulativeSales = a.cumulative
		if err := earnings.Update(ctx, e.ID, map[string]any{
			"daily_sales_amount": e.DailySalesAmount,
			"earned_points":      e.EarnedPoints,
			"cumulative_sales":   e.CumulativeSales,
		}); err != nil {
			return nil, err
		}
	}

	p.TotalSales = a.cumulative
	p.TotalEarnedPoints = p.TotalEarnedPoints.Add(a.points)
	p.PendingPoints = p.PendingPoints.Add(a.points)
	p.TargetReached = a.targetReached
	if p.TargetReached && p.Status == ParticipationActive {
		p.Status = ParticipationCompleted
	}
	if name != "" {
		p.RetailerName = name
	}
	if err := participations.Update(ctx, p.ID, map[string]any{
		"retailer_name":       p.RetailerName,
		"total_sales":         p.TotalSales,
		"total_earned_points": p.TotalEarnedPoints,
		"pending_points":      p.PendingPoints,
		"target_reached":      p.TargetReached,
		"status":              p.Status,
	}); err != nil {
		return nil, err
	}

	if a.points.IsPositive() {
		pointsAccrued.Add(a.points.InexactFloat64())
	}
	return e, nil
}
