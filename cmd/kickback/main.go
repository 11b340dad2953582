package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"kickback-engine/pkg/config"
	"kickback-engine/pkg/db"
	"kickback-engine/pkg/gen"
	"kickback-engine/pkg/health"
	"kickback-engine/pkg/httpapi"
	"kickback-engine/pkg/lock"
	"kickback-engine/pkg/logger"
	"kickback-engine/pkg/otelcol"
	"kickback-engine/pkg/redis"
	"kickback-engine/pkg/sequence"
	"kickback-engine/pkg/server"
	"kickback-engine/pkg/task"
	"kickback-engine/services/campaign"
	"kickback-engine/services/kickback"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		otelcol.Module,
		db.Module,
		redis.Module,
		gen.Module,
		sequence.Module,
		lock.Module,
		task.Client,
		task.Server,
		health.Module,
		httpapi.Module,
		campaign.Module,
		kickback.Module,
		kickback.Worker,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "production" {
		return fxevent.NopLogger
	}
	return &fxevent.ZapLogger{Logger: logger}
})
