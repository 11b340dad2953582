package kickback

import (
	"context"
	"time"

	"kickback-engine/pkg/config"
	"kickback-engine/pkg/task"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Scheduler triggers the expiry sweep once a day at the configured hour in
// the campaign timezone.
type Scheduler struct {
	service  *Service
	enqueuer task.Enqueuer
	queue    string
	hour     int
	loc      *time.Location
	now      func() time.Time
}

type SchedulerParams struct {
	fx.In

	Service  *Service
	Enqueuer task.Enqueuer `optional:"true"`
	Config   *config.Config
}

func NewScheduler(p SchedulerParams) *Scheduler {
	return &Scheduler{
		service:  p.Service,
		enqueuer: p.Enqueuer,
		queue:    p.Config.Kickback.Queue,
		hour:     p.Config.Kickback.ExpiryHour,
		loc:      p.Service.campaigns.Location(),
		now:      time.Now,
	}
}

func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	zap.L().Info("[Scheduler] started campaign expiry scheduler", zap.Int("hour", s.hour))

	for {
		now := s.now().In(s.loc)
		next := nextRunTime(now, s.hour, 0)

		zap.L().Info("[Scheduler] next run scheduled",
			zap.Time("next_run", next),
			zap.Duration("sleep_for", next.Sub(now)),
		)
		select {
		case <-time.After(next.Sub(now)):
			s.runDaily(ctx)
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) runDaily(ctx context.Context) {
	if s.enqueuer != nil {
		_, err := s.enqueuer.Enqueue(ctx, NewExpireCampaignsTask(),
			asynq.Queue(s.queue),
			asynq.Unique(time.Hour),
		)
		if err == nil {
			zap.L().Info("[Scheduler] enqueued campaign expiry")
			return
		}
		zap.L().Warn("[Scheduler] enqueue failed, running expiry inline", zap.Error(err))
	}

	start := time.Now()
	n, err := s.service.ExpireCampaigns(ctx)
	if err != nil {
		zap.L().Error("[Scheduler] campaign expiry failed", zap.Error(err))
		return
	}
	zap.L().Info("[Scheduler] campaign expiry finished",
		zap.Int("expired_campaigns", n),
		zap.Duration("duration", time.Since(start)),
	)
}

// nextRunTime returns the next occurrence of hour:minute strictly after now.
func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
