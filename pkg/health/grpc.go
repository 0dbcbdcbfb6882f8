package health

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const probeInterval = 10 * time.Second

type grpcHealthParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Server    *grpc.Server `optional:"true"`
	Health    HealthService
}

// registerGRPCHealth serves grpc.health.v1 and keeps its overall status in
// step with Check.
func registerGRPCHealth(p grpcHealthParams) {
	if p.Server == nil {
		return
	}

	srv := grpchealth.NewServer()
	healthpb.RegisterHealthServer(p.Server, srv)

	ctx, cancel := context.WithCancel(context.Background())
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go watch(ctx, p.Health, srv)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			srv.Shutdown()
			return nil
		},
	})
}

func watch(ctx context.Context, h HealthService, srv *grpchealth.Server) {
	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()

	last := healthpb.HealthCheckResponse_UNKNOWN
	for {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		status := healthpb.HealthCheckResponse_SERVING
		if h.Check(probeCtx).Status != StatusHealthy {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		cancel()

		if status != last {
			zap.L().Info("grpc health status changed", zap.String("status", status.String()))
			last = status
		}
		srv.SetServingStatus("", status)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
