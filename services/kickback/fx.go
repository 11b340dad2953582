package kickback

import (
	"kickback-engine/pkg/config"
	"kickback-engine/pkg/db"
	"kickback-engine/pkg/taskname"
	"kickback-engine/services/campaign"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("kickback.service",
	fx.Provide(
		NewService,
		NewHandler,
		NewScheduler,
		fx.Annotate(
			provideCascade,
			fx.ResultTags(`group:"campaign.cascade"`),
		),
	),
	fx.Invoke(
		migrate,
		RegisterRoutes,
		StartScheduler,
	),
)

// Worker registers the asynq handlers. Only binaries that run task.Server
// include it.
var Worker = fx.Module("kickback.worker",
	fx.Invoke(registerTaskHandlers),
)

func provideCascade() campaign.CascadeFunc {
	return CascadeDelete
}

func migrate(cfg *config.Config, conn *gorm.DB) error {
	return db.Migrate(cfg, conn, Models()...)
}

func registerTaskHandlers(mux *asynq.ServeMux, s *Service) {
	mux.HandleFunc(taskname.KickbackRecordSale, s.HandleRecordSaleTask)
	mux.HandleFunc(taskname.KickbackExpireCampaigns, s.HandleExpireCampaignsTask)
}
