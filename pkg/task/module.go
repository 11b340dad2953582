package task

import (
	"context"

	"kickback-engine/pkg/config"
	kredis "kickback-engine/pkg/redis"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Client = fx.Module("asynq:client",
	fx.Provide(registerClient, NewEnqueuer),
)

func redisOpt(cfg *config.Config) asynq.RedisClientOpt {
	o := kredis.Options(cfg)
	return asynq.RedisClientOpt{
		Addr:     o.Addr,
		Password: o.Password,
		DB:       o.DB,
		PoolSize: o.PoolSize,
	}
}

func registerClient(lc fx.Lifecycle, cfg *config.Config) (*asynq.Client, error) {
	client := asynq.NewClient(redisOpt(cfg))
	if err := client.Ping(); err != nil {
		_ = client.Close()
		zap.L().Error("[Asynq] Failed to connect to Asynq", zap.Error(err))
		return nil, err
	}

	zap.L().Info("[Asynq] Connected to Asynq")

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return client, nil
}

var Server = fx.Module("asynq:server",
	fx.Provide(registerServerMux),
	fx.Invoke(registerAsynqServer),
)

func registerServerMux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Use(logTask)
	return mux
}

// queues weights the kickback queue above the default one.
func queues(cfg *config.Config) map[string]int {
	return map[string]int{
		cfg.Kickback.Queue: 10,
		"default":          5,
	}
}

func logTask(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		id, _ := asynq.GetTaskID(ctx)
		retry, _ := asynq.GetRetryCount(ctx)
		log := zap.L().With(zap.String("task_type", t.Type()), zap.String("task_id", id), zap.Int("retry", retry))

		if err := next.ProcessTask(ctx, t); err != nil {
			log.Warn("asynq task failed", zap.Error(err))
			return err
		}
		log.Debug("asynq task done")
		return nil
	})
}

func registerAsynqServer(lc fx.Lifecycle, cfg *config.Config, mux *asynq.ServeMux) {
	concurrency := cfg.Kickback.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 10
	}

	server := asynq.NewServer(
		redisOpt(cfg),
		asynq.Config{
			Concurrency:    concurrency,
			RetryDelayFunc: asynq.DefaultRetryDelayFunc,
			Queues:         queues(cfg),
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retry, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				if retry >= maxRetry {
					zap.L().Error("asynq task permanently failed", zap.String("task_type", task.Type()), zap.Error(err))
				}
			}),
		},
	)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := server.Start(mux); err != nil {
				zap.L().Error("[Asynq] Failed to start Asynq server", zap.Error(err))
				return err
			}
			zap.L().Info("[Asynq] Asynq server started",
				zap.String("addr", cfg.Redis.Addr),
				zap.Int("concurrency", concurrency),
			)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			server.Shutdown()
			return nil
		},
	})
}
