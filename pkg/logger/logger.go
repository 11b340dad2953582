package logger

import (
	"context"

	"kickback-engine/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Module = fx.Module("zap",
	fx.Provide(
		New,
	),
)

type ConfigParams struct {
	fx.In
	Cfg       *config.Config
	Lifecycle fx.Lifecycle `optional:"true"`
}

// New builds the process logger and installs it as zap's global. Production
// logs are JSON with a severity key; everything else uses the development
// console encoder.
func New(p ConfigParams) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	if p.Cfg.AppEnv == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.StacktraceKey = "stacktrace"
		cfg.EncoderConfig.LevelKey = "severity"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.EncoderConfig.CallerKey = "caller"
		cfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
		cfg.Encoding = "json"
		cfg.OutputPaths = []string{"stdout"}
		cfg.ErrorOutputPaths = []string{"stderr"}
	}

	if p.Cfg.LogLevel != "" {
		if lvl, err := zapcore.ParseLevel(p.Cfg.LogLevel); err == nil {
			cfg.Level = zap.NewAtomicLevelAt(lvl)
		}
	}

	log := zap.Must(cfg.Build()).With(
		zap.String("env", p.Cfg.AppEnv),
		zap.String("service_name", p.Cfg.AppName),
		zap.String("version", p.Cfg.AppVersion),
	)

	zap.ReplaceGlobals(log)

	if p.Lifecycle != nil {
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(context.Context) error {
				_ = log.Sync()
				return nil
			},
		})
	}

	return log
}
