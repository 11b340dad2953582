package kickback

import (
	"context"
	"sort"
	"time"

	"kickback-engine/pkg/db/option"
	"kickback-engine/pkg/logger"
	"kickback-engine/services/campaign"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RetailerCampaign is an active campaign as seen by one retailer.
type RetailerCampaign struct {
	ID             string          `json:"id"`
	CampaignName   string          `json:"campaignName"`
	ProductID      string          `json:"productId"`
	ProductName    string          `json:"productName"`
	KickbackRate   decimal.Decimal `json:"kickbackRate"`
	TargetAmount   decimal.Decimal `json:"targetAmount"`
	DurationDays   int             `json:"durationDays"`
	StartDate      string          `json:"startDate"`
	EndDate        string          `json:"endDate"`
	DaysRemaining  int             `json:"daysRemaining"`
	Status         campaign.Status `json:"status"`
	EarnedAmount   decimal.Decimal `json:"earnedAmount"`
	EarnedPoints   decimal.Decimal `json:"earnedPoints"`
	ApprovedPoints decimal.Decimal `json:"approvedPoints"`
	PendingPoints  decimal.Decimal `json:"pendingPoints"`
	TargetReached  bool            `json:"targetReached"`
}

// ApprovedBalance sums approved points over all of the retailer's
// participations. No participations is a zero balance.
func (s *Service) ApprovedBalance(ctx context.Context, retailerEmail string) (decimal.Decimal, error) {
	email := campaign.NormalizeEmail(retailerEmail)
	if email == "" {
		return decimal.Zero, nil
	}

	list, err := s.participation.Find(ctx, &Participation{RetailerEmail: email})
	if err != nil {
		logger.FromContext(ctx).Error("failed to load participations", zap.String("retailer_email", email), zap.Error(err))
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, p := range list {
		total = total.Add(p.ApprovedPoints)
	}
	return total, nil
}

// CampaignsFor lists the active campaigns the retailer is eligible for,
// joined with its participation totals where they exist.
func (s *Service) CampaignsFor(ctx context.Context, retailerEmail string) ([]RetailerCampaign, error) {
	email := campaign.NormalizeEmail(retailerEmail)

	active, err := s.campaigns.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	eligible := make([]*campaign.Campaign, 0, len(active))
	ids := make([]string, 0, len(active))
	for _, c := range active {
		if email != "" && c.IsEligible(email) {
			eligible = append(eligible, c)
			ids = append(ids, c.ID)
		}
	}
	if len(eligible) == 0 {
		return []RetailerCampaign{}, nil
	}

	parts, err := s.participation.Find(ctx, &Participation{RetailerEmail: email},
		option.WithConditions(option.Condition{Field: "campaign_id", Operator: option.IN, Value: ids}))
	if err != nil {
		return nil, err
	}
	byCampaign := make(map[string]*Participation, len(parts))
	for _, p := range parts {
		byCampaign[p.CampaignID] = p
	}

	today := s.campaigns.Today()
	out := make([]RetailerCampaign, 0, len(eligible))
	for _, c := range eligible {
		rc := RetailerCampaign{
			ID:             c.ID,
			CampaignName:   c.Name,
			ProductID:      c.ProductID,
			ProductName:    c.ProductName,
			KickbackRate:   c.KickbackRate,
			TargetAmount:   c.SalesTarget,
			DurationDays:   c.DurationDays,
			StartDate:      campaign.DayKey(c.StartDate),
			EndDate:        campaign.DayKey(c.EndDate),
			DaysRemaining:  c.DaysRemaining(today),
			Status:         c.Status,
			EarnedAmount:   decimal.Zero,
			EarnedPoints:   decimal.Zero,
			ApprovedPoints: decimal.Zero,
			PendingPoints:  decimal.Zero,
		}
		if p, ok := byCampaign[c.ID]; ok {
			rc.EarnedAmount = p.TotalSales
			rc.EarnedPoints = p.TotalEarnedPoints
			rc.ApprovedPoints = p.ApprovedPoints
			rc.PendingPoints = p.PendingPoints
			rc.TargetReached = p.TargetReached
		}
		out = append(out, rc)
	}
	return out, nil
}

// ParticipantView is a participation with its daily earnings, latest first.
type ParticipantView struct {
	Participation
	DailyEarnings []*Earning `json:"dailyEarnings"`
}

// CampaignDetail is the admin view of a campaign with aggregated results.
type CampaignDetail struct {
	*campaign.Campaign
	StartDay           string            `json:"startDay"`
	EndDay             string            `json:"endDay"`
	DaysRemaining      int               `json:"daysRemaining"`
	TotalParticipants  int               `json:"totalParticipants"`
	TotalSales         decimal.Decimal   `json:"totalSales"`
	TotalPointsAwarded decimal.Decimal   `json:"totalPointsAwarded"`
	Participants       []ParticipantView `json:"participants"`
}

// CampaignDetail assembles the admin view. TotalSales sums all daily sales;
// TotalPointsAwarded sums approved earnings only.
func (s *Service) CampaignDetail(ctx context.Context, campaignID string) (*CampaignDetail, error) {
	c, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	out, err := s.campaignDetails(ctx, []*campaign.Campaign{c})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// ListCampaignDetails returns every campaign in the admin view, newest first.
func (s *Service) ListCampaignDetails(ctx context.Context) ([]*CampaignDetail, error) {
	list, err := s.campaigns.List(ctx)
	if err != nil {
		return nil, err
	}
	return s.campaignDetails(ctx, list)
}

// ListActiveCampaignDetails returns the running campaigns in the admin view.
func (s *Service) ListActiveCampaignDetails(ctx context.Context) ([]*CampaignDetail, error) {
	list, err := s.campaigns.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	return s.campaignDetails(ctx, list)
}

// campaignDetails loads participations and earnings for all campaigns in two
// queries and folds them per campaign, keeping the order of list.
func (s *Service) campaignDetails(ctx context.Context, list []*campaign.Campaign) ([]*CampaignDetail, error) {
	out := make([]*CampaignDetail, 0, len(list))
	if len(list) == 0 {
		return out, nil
	}

	ids := make([]string, 0, len(list))
	for _, c := range list {
		ids = append(ids, c.ID)
	}
	inCampaigns := option.WithConditions(option.Condition{Field: "campaign_id", Operator: option.IN, Value: ids})

	parts, err := s.participation.Find(ctx, nil, inCampaigns)
	if err != nil {
		return nil, err
	}
	earnings, err := s.earning.Find(ctx, nil, inCampaigns,
		option.WithSortBy(option.QuerySortBy{SortBy: "earning_date", OrderBy: "DESC"}))
	if err != nil {
		return nil, err
	}

	partsBy := make(map[string][]*Participation, len(list))
	for _, p := range parts {
		partsBy[p.CampaignID] = append(partsBy[p.CampaignID], p)
	}
	earningsBy := make(map[string][]*Earning, len(list))
	for _, e := range earnings {
		earningsBy[e.CampaignID] = append(earningsBy[e.CampaignID], e)
	}

	today := s.campaigns.Today()
	for _, c := range list {
		out = append(out, buildDetail(c, today, partsBy[c.ID], earningsBy[c.ID]))
	}
	return out, nil
}

func buildDetail(c *campaign.Campaign, today time.Time, parts []*Participation, earnings []*Earning) *CampaignDetail {
	detail := &CampaignDetail{
		Campaign:           c,
		StartDay:           campaign.DayKey(c.StartDate),
		EndDay:             campaign.DayKey(c.EndDate),
		DaysRemaining:      c.DaysRemaining(today),
		TotalParticipants:  len(parts),
		TotalSales:         decimal.Zero,
		TotalPointsAwarded: decimal.Zero,
		Participants:       make([]ParticipantView, 0, len(parts)),
	}

	byRetailer := make(map[string][]*Earning, len(parts))
	for _, e := range earnings {
		detail.TotalSales = detail.TotalSales.Add(e.DailySalesAmount)
		if e.Status == EarningApproved {
			detail.TotalPointsAwarded = detail.TotalPointsAwarded.Add(e.EarnedPoints)
		}
		byRetailer[e.RetailerEmail] = append(byRetailer[e.RetailerEmail], e)
	}

	sort.SliceStable(parts, func(i, j int) bool {
		return parts[i].TotalSales.GreaterThan(parts[j].TotalSales)
	})
	for _, p := range parts {
		daily := byRetailer[p.RetailerEmail]
		if daily == nil {
			daily = []*Earning{}
		}
		detail.Participants = append(detail.Participants, ParticipantView{Participation: *p, DailyEarnings: daily})
	}
	return detail
}
