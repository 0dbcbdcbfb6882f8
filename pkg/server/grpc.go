package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"license-authority/pkg/config"
	"license-authority/pkg/errutil"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/validator"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

var ProvideGRPCServer = fx.Module("grpc.server",
	fx.Provide(
		NewListener,
		WithOption,
		NewGRPCServer,
	),
	fx.Invoke(
		StartGRPCServer,
	),
)

func NewListener(cfg *config.Config) (net.Listener, error) {
	return net.Listen("tcp", fmt.Sprintf(":%s", cfg.Grpc.Addr))
}

type OptionParams struct {
	fx.In
	Config         *config.Config
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

func WithOption(p OptionParams) ([]grpc.ServerOption, error) {
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			recovery.UnaryServerInterceptor(recovery.WithRecoveryHandler(recoverPanic)),
			ErrorInterceptor(),
			validator.UnaryServerInterceptor(validator.WithFailFast()),
		),
		grpc.ChainStreamInterceptor(
			recovery.StreamServerInterceptor(recovery.WithRecoveryHandler(recoverPanic)),
			validator.StreamServerInterceptor(validator.WithFailFast()),
		),
		WithStatsHandler(p.TracerProvider, p.MeterProvider),
	}

	if p.Config.TLS.Enable {
		cert, err := LoadCertificate(p.Config.TLS.CertPath, p.Config.TLS.KeyPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithTLS(cert))
	}

	return opts, nil
}

func WithStatsHandler(tp trace.TracerProvider, mp metric.MeterProvider) grpc.ServerOption {
	return grpc.StatsHandler(
		otelgrpc.NewServerHandler(
			otelgrpc.WithTracerProvider(tp),
			otelgrpc.WithMeterProvider(mp),
		),
	)
}

func recoverPanic(p any) error {
	zap.L().Error("recovered from grpc handler panic", zap.Any("panic", p))
	return status.Error(codes.Internal, "internal error")
}

// ErrorInterceptor converts errutil.BaseError results into gRPC statuses.
func ErrorInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			return resp, errutil.ToGRPCError(err)
		}
		return resp, nil
	}
}

func LoadCertificate(certPath, keyPath string) (*tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

func WithTLS(cert *tls.Certificate) grpc.ServerOption {
	return grpc.Creds(
		credentials.NewServerTLSFromCert(cert),
	)
}

func NewGRPCServer(opts []grpc.ServerOption) *grpc.Server {
	srv := grpc.NewServer(opts...)
	reflection.Register(srv)
	return srv
}

func StartGRPCServer(lc fx.Lifecycle, shutdowner fx.Shutdowner, lis net.Listener, srv *grpc.Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				zap.L().Info("Starting gRPC server", zap.String("addr", lis.Addr().String()))
				if err := srv.Serve(lis); err != nil {
					zap.L().Error("gRPC server exited", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			zap.L().Info("Stopping gRPC server")
			srv.GracefulStop()
			return nil
		},
	})
}
