package kickback

import (
	"context"
	"strings"

	"kickback-engine/pkg/db/option"
	"kickback-engine/pkg/db/pagination"
	"kickback-engine/pkg/errutil"
	"kickback-engine/pkg/logger"
	"kickback-engine/pkg/rediskey"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Decision struct {
	EarningID       string
	Approve         bool
	AdminEmail      string
	RejectionReason string
}

type BulkFailure struct {
	EarningID string             `json:"earningId"`
	Code      errutil.CoreStatus `json:"code"`
	Message   string             `json:"message"`
}

type BulkResult struct {
	SuccessCount int           `json:"successCount"`
	FailCount    int           `json:"failCount"`
	Failures     []BulkFailure `json:"failures,omitempty"`
}

// Decide approves or rejects a PENDING earning and moves its points out of
// the participation's pending balance.
func (s *Service) Decide(ctx context.Context, d Decision) (*Earning, error) {
	ctx, span := tracer.Start(ctx, "kickback.Decide")
	defer span.End()

	log := logger.FromContext(ctx).With(
		zap.String("earning_id", d.EarningID),
		zap.Bool("approve", d.Approve),
		zap.String("admin_email", d.AdminEmail),
	)

	if strings.TrimSpace(d.EarningID) == "" {
		return nil, errutil.ValidationFailed("earning id is required", nil,
			errutil.WithDetails(errutil.Detail{Field: "earningId", Message: "is required"}))
	}
	admin := strings.TrimSpace(d.AdminEmail)
	if admin == "" {
		return nil, errutil.ValidationFailed("admin identity is required", nil)
	}
	reason := strings.TrimSpace(d.RejectionReason)
	if !d.Approve && reason == "" {
		return nil, errutil.ValidationFailed("rejection reason is required", nil,
			errutil.WithDetails(errutil.Detail{Field: "rejectionReason", Message: "is required when rejecting"}))
	}

	current, err := s.earning.FindByID(ctx, d.EarningID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, errutil.NotFound("earning not found", nil)
	}

	var out *Earning
	key := rediskey.BuildParticipationLockKey(current.CampaignID, current.RetailerEmail)
	err = s.withLock(ctx, key, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			e, err := s.applyDecision(ctx, tx, d.EarningID, d.Approve, admin, reason)
			out = e
			return err
		})
	})
	if err != nil {
		log.Warn("earning decision failed", zap.Error(err))
		return nil, err
	}

	decision := "rejected"
	if d.Approve {
		decision = "approved"
	}
	earningDecisions.WithLabelValues(decision).Inc()
	log.Info("earning "+decision, zap.String("points", out.EarnedPoints.String()))
	return out, nil
}

func (s *Service) applyDecision(ctx context.Context, tx *gorm.DB, earningID string, approve bool, admin, reason string) (*Earning, error) {
	earnings := s.earning.WithTrx(tx)
	participations := s.participation.WithTrx(tx)

	e, err := earnings.FindByID(ctx, earningID, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, errutil.NotFound("earning not found", nil)
	}
	if e.Status != EarningPending {
		return nil, errutil.Conflict("earning is already "+strings.ToLower(string(e.Status)), nil)
	}

	p, err := participations.FindOne(ctx, &Participation{CampaignID: e.CampaignID, RetailerEmail: e.RetailerEmail}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errutil.DataLoss("participation missing for earning", nil,
			errutil.WithDetails(errutil.Detail{Field: "earningId", Message: e.ID}))
	}

	now := s.now()
	e.ApprovedBy = admin
	e.ApprovedAt = &now

	if approve {
		e.Status = EarningApproved
		p.ApprovedPoints = p.ApprovedPoints.Add(e.EarnedPoints)
	} else {
		e.Status = EarningRejected
		e.RejectionReason = reason
		p.TotalEarnedPoints = p.TotalEarnedPoints.Sub(e.EarnedPoints)
	}
	p.PendingPoints = p.PendingPoints.Sub(e.EarnedPoints)

	if err := earnings.Update(ctx, e.ID, map[string]any{
		"status":           e.Status,
		"approved_by":      e.ApprovedBy,
		"approved_at":      e.ApprovedAt,
		"rejection_reason": e.RejectionReason,
	}); err != nil {
		return nil, err
	}
	if err := participations.Update(ctx, p.ID, map[string]any{
		"total_earned_points": p.TotalEarnedPoints,
		"approved_points":     p.ApprovedPoints,
		"pending_points":      p.PendingPoints,
	}); err != nil {
		return nil, err
	}

	return e, nil
}

// BulkApprove approves each earning independently; a failure never stops
// the rest.
func (s *Service) BulkApprove(ctx context.Context, earningIDs []string, adminEmail string) BulkResult {
	var res BulkResult
	for _, id := range earningIDs {
		if _, err := s.Decide(ctx, Decision{EarningID: id, Approve: true, AdminEmail: adminEmail}); err != nil {
			res.FailCount++
			res.Failures = append(res.Failures, BulkFailure{
				EarningID: id,
				Code:      errutil.StatusOf(err),
				Message:   err.Error(),
			})
			continue
		}
		res.SuccessCount++
	}

	logger.FromContext(ctx).Info("bulk approve finished",
		zap.Int("success_count", res.SuccessCount),
		zap.Int("fail_count", res.FailCount),
	)
	return res
}

// ListPending pages through PENDING earnings, newest first.
func (s *Service) ListPending(ctx context.Context, page pagination.Pagination) ([]*Earning, *pagination.PageInfo, error) {
	page = page.Normalize()

	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{SortBy: "id", OrderBy: "DESC"}),
		option.WithLimit(page.Limit + 1),
	}
	if page.Cursor != "" {
		cur, err := pagination.DecodeCursor(page.Cursor)
		if err != nil || cur.ID == "" {
			return nil, nil, errutil.BadRequest("invalid cursor", err)
		}
		opts = append(opts, option.WithConditions(option.Condition{Field: "id", Operator: option.LT, Value: cur.ID}))
	}

	list, err := s.earning.Find(ctx, &Earning{Status: EarningPending}, opts...)
	if err != nil {
		return nil, nil, err
	}

	list, info := pagination.BuildCursorPageInfo(list, page.Limit, func(e *Earning) string {
		c, _ := pagination.EncodeCursor(pagination.Cursor{ID: e.ID})
		return c
	})
	return list, info, nil
}

// ListPendingByCampaign returns a campaign's PENDING earnings, latest day
// first.
func (s *Service) ListPendingByCampaign(ctx context.Context, campaignID string) ([]*Earning, error) {
	if _, err := s.campaigns.Get(ctx, campaignID); err != nil {
		return nil, err
	}
	return s.earning.Find(ctx, &Earning{CampaignID: campaignID, Status: EarningPending},
		option.WithSortBy(option.QuerySortBy{SortBy: "earning_date", OrderBy: "DESC"}),
		option.WithSortBy(option.QuerySortBy{SortBy: "retailer_email", OrderBy: "ASC"}),
	)
}
