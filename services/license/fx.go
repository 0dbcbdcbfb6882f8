package license

import (
	"context"

	"license-authority/pkg/clock"
	"license-authority/pkg/config"
	"license-authority/pkg/featureflags"
	"license-authority/pkg/repository"
	"license-authority/pkg/task"
	"license-authority/pkg/taskname"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Storage is shared by the API and the worker.
var Storage = fx.Module("license.storage",
	fx.Provide(
		provideClock,
		provideCache,
		provideDispatcher,
	),
	fx.Invoke(migrate),
)

var Module = fx.Module("license.service",
	fx.Provide(
		provideDurationPolicy,
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)

var Worker = fx.Module("license.worker",
	fx.Provide(
		NewConsumer,
		provideRelay,
	),
	fx.Invoke(
		registerTaskHandlers,
		runRelay,
	),
)

func provideClock() clock.Clock {
	return clock.Real()
}

type cacheParams struct {
	fx.In
	Config *config.Config
	Redis  *redis.Client `optional:"true"`
}

func provideCache(p cacheParams) Cache {
	if p.Redis == nil {
		return NopCache{}
	}
	return NewRedisCache(p.Redis, p.Config.License.CacheTTL)
}

func provideDispatcher(db *gorm.DB, enqueuer task.Enqueuer, cfg *config.Config, c clock.Clock) *Dispatcher {
	return NewDispatcher(enqueuer, repository.ProvideStore[Event](db), cfg.License.EventQueue, c)
}

func provideDurationPolicy(flags featureflags.FeatureFlag) DurationPolicy {
	return NewDurationPolicy(flags)
}

func provideRelay(db *gorm.DB, dispatcher *Dispatcher, cfg *config.Config) *Relay {
	return NewRelay(db, dispatcher, cfg.License.RelayInterval, cfg.License.RelayBatch)
}

func migrate(db *gorm.DB, cfg *config.Config) error {
	if !cfg.Database.AutoMigrate {
		return nil
	}
	if err := db.AutoMigrate(&License{}, &Event{}); err != nil {
		zap.L().Error("failed to migrate license tables", zap.Error(err))
		return err
	}
	return nil
}

func registerTaskHandlers(mux *asynq.ServeMux, consumer *Consumer) {
	mux.HandleFunc(taskname.LicenseEvent, consumer.HandleLicenseEvent)
}

func runRelay(lc fx.Lifecycle, relay *Relay) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				relay.Run(ctx)
			}()
			zap.L().Info("license event relay started", zap.Duration("interval", relay.interval))
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
