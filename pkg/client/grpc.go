package client

import (
	"context"
	"fmt"

	"license-authority/pkg/config"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var Module = fx.Module("grpc.client", fx.Provide(NewHealthClient))

func NewGRPCConn(lc fx.Lifecycle, addr string) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return conn.Close()
		},
	})

	return conn, nil
}

// NewHealthClient dials this process's own gRPC server for grpc.health.v1.
func NewHealthClient(lc fx.Lifecycle, cfg *config.Config) (healthpb.HealthClient, error) {
	addr := fmt.Sprintf("127.0.0.1:%s", cfg.Grpc.Addr)
	conn, err := NewGRPCConn(lc, addr)
	if err != nil {
		zap.L().Error("failed to dial grpc health", zap.Error(err), zap.String("addr", addr))
		return nil, err
	}
	return healthpb.NewHealthClient(conn), nil
}
