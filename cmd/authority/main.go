package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"license-authority/pkg/accesscontrol"
	"license-authority/pkg/client"
	"license-authority/pkg/config"
	"license-authority/pkg/db"
	"license-authority/pkg/featureflags"
	"license-authority/pkg/gen"
	"license-authority/pkg/hashistack/secretmanager"
	"license-authority/pkg/hashistack/servicediscover"
	"license-authority/pkg/health"
	"license-authority/pkg/httpapi"
	"license-authority/pkg/logger"
	"license-authority/pkg/otelcol"
	"license-authority/pkg/profiling"
	"license-authority/pkg/redis"
	"license-authority/pkg/server"
	"license-authority/pkg/task"
	"license-authority/services/license"
)

func main() {
	opts := []fx.Option{
		config.FromEnv(),
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		task.Client,
		featureflags.Module,
		accesscontrol.Module,
		gen.Module,
		server.ProvideGRPCServer,
		client.Module,
		health.Module,
		httpapi.Module,
		license.Storage,
		license.Module,
		server.ProvideHTTPServer,
		servicediscover.Module,
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
