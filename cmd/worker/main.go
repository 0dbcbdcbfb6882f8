package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"license-authority/pkg/config"
	"license-authority/pkg/db"
	"license-authority/pkg/hashistack/secretmanager"
	"license-authority/pkg/logger"
	"license-authority/pkg/otelcol"
	"license-authority/pkg/redis"
	"license-authority/pkg/task"
	"license-authority/services/license"
)

func main() {
	opts := []fx.Option{
		config.FromEnv(),
		logger.Module,
		otelcol.Module,
		db.Module,
		redis.Module,
		task.Client,
		task.Server,
		license.Storage,
		license.Worker,
		fxLogger,
	}
	if secretmanager.Enabled() {
		opts = append(opts, secretmanager.Module)
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
