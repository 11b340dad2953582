package kickback

import (
	"context"
	"encoding/json"
	"fmt"

	"kickback-engine/pkg/errutil"
	"kickback-engine/pkg/logger"
	"kickback-engine/pkg/rediskey"
	"kickback-engine/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// HandleRecordSaleTask is the asynq handler for queued sale events.
func (s *Service) HandleRecordSaleTask(ctx context.Context, t *asynq.Task) error {
	var ev SaleEvent
	if err := json.Unmarshal(t.Payload(), &ev); err != nil {
		zap.L().Error("invalid sale payload", zap.Error(err))
		return fmt.Errorf("decode sale payload: %w: %w", err, asynq.SkipRetry)
	}

	if _, err := s.ProcessSale(ctx, ev); err != nil {
		logger.FromContext(ctx).Error("failed to process queued sale",
			zap.String("retailer_email", ev.RetailerEmail),
			zap.Error(err),
		)
		// A malformed event fails the same way on every attempt.
		if errutil.StatusOf(err) == errutil.StatusValidationFailed {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}
	return nil
}

func NewExpireCampaignsTask() *asynq.Task {
	return asynq.NewTask(taskname.KickbackExpireCampaigns, nil)
}

// HandleExpireCampaignsTask is the asynq handler for the daily expiry sweep.
func (s *Service) HandleExpireCampaignsTask(ctx context.Context, _ *asynq.Task) error {
	n, err := s.ExpireCampaigns(ctx)
	if err != nil {
		zap.L().Error("campaign expiry failed", zap.Error(err))
		return err
	}
	zap.L().Info("campaign expiry finished", zap.Int("expired_campaigns", n))
	return nil
}

// ExpireCampaigns marks campaigns whose window has closed as EXPIRED along
// with their still ACTIVE participations. Pending earnings stay decidable.
func (s *Service) ExpireCampaigns(ctx context.Context) (int, error) {
	var expired []string
	err := s.withLock(ctx, rediskey.BuildLockKey("campaign-expiry"), func(ctx context.Context) error {
		ids, err := s.campaigns.ExpireEnded(ctx)
		if err != nil {
			return err
		}
		expired = ids
		if len(ids) == 0 {
			return nil
		}
		return s.db.WithContext(ctx).Model(&Participation{}).
			Where("campaign_id IN ? AND status = ?", ids, ParticipationActive).
			Update("status", ParticipationExpired).Error
	})
	if err != nil {
		return 0, err
	}

	for _, id := range expired {
		logger.FromContext(ctx).Info("campaign expired", zap.String("campaign_id", id))
	}
	return len(expired), nil
}
