package task

import (
	"context"
	"errors"

	"license-authority/pkg/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Client = fx.Module("asynq:client",
	fx.Provide(registerClient, NewEnqueuer),
)

func registerClient(lc fx.Lifecycle, rdb *redis.Client) *asynq.Client {
	client := asynq.NewClientFromRedisClient(rdb)

	zap.L().Info("[Asynq] Client ready")

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return client
}

var Server = fx.Module("asynq:server",
	fx.Provide(registerServerMux, registerServer),
	fx.Invoke(runServer),
)

func registerServerMux() *asynq.ServeMux {
	return asynq.NewServeMux()
}

func registerServer(cfg *config.Config) *asynq.Server {
	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency:    10,
			RetryDelayFunc: asynq.DefaultRetryDelayFunc,
			Queues: map[string]int{
				cfg.License.EventQueue: 10,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(logTaskFailure),
		},
	)
}

func runServer(lc fx.Lifecycle, server *asynq.Server, mux *asynq.ServeMux) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := server.Start(mux); err != nil {
				zap.L().Error("[Asynq] Failed to start Asynq server", zap.Error(err))
				return err
			}
			zap.L().Info("[Asynq] Asynq server started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			server.Shutdown()
			return nil
		},
	})
}

// logTaskFailure runs after every failed attempt. Only the attempt that
// exhausts the retry budget is logged as an error.
func logTaskFailure(ctx context.Context, task *asynq.Task, err error) {
	retried, ok := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	fields := []zap.Field{
		zap.String("task_type", task.Type()),
		zap.Int("retried", retried),
		zap.Int("max_retry", maxRetry),
		zap.Error(err),
	}

	if exhausted(retried, maxRetry, ok, err) {
		zap.L().Error("asynq task permanently failed", fields...)
		return
	}
	zap.L().Warn("asynq task attempt failed, will retry", fields...)
}

// exhausted reports whether asynq will not run the task again. known is false
// when ctx carries no task metadata.
func exhausted(retried, maxRetry int, known bool, err error) bool {
	if errors.Is(err, asynq.SkipRetry) {
		return true
	}
	return known && retried >= maxRetry
}
