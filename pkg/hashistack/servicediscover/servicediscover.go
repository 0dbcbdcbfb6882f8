package servicediscover

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"license-authority/pkg/config"

	"github.com/hashicorp/consul/api"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module registers the HTTP server with Consul when CONSUL.ADDR is set.
var Module = fx.Module("servicediscover", fx.Invoke(registerConsul))

type ServiceRegistry interface {
	Register(ctx context.Context) error
	Deregister(ctx context.Context) error
}

type ConsulRegistry struct {
	client    *api.Client
	serviceID string
	service   *api.AgentServiceRegistration
}

func NewConsulRegistry(address, serviceName, serviceID, host string, port int, tags ...string) (*ConsulRegistry, error) {
	cfg := api.DefaultConfig()
	cfg.Address = address

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	service := &api.AgentServiceRegistration{
		ID:      serviceID,
		Name:    serviceName,
		Address: host,
		Port:    port,
		Tags:    tags,
		Check: &api.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/health/readiness", host, port),
			Interval:                       "10s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "1m",
		},
	}

	return &ConsulRegistry{
		client:    client,
		serviceID: serviceID,
		service:   service,
	}, nil
}

func (r *ConsulRegistry) Register(ctx context.Context) error {
	return r.client.Agent().ServiceRegisterOpts(r.service, api.ServiceRegisterOpts{}.WithContext(ctx))
}

func (r *ConsulRegistry) Deregister(ctx context.Context) error {
	return r.client.Agent().ServiceDeregisterOpts(r.serviceID, (&api.QueryOptions{}).WithContext(ctx))
}

func registerConsul(lc fx.Lifecycle, cfg *config.Config) error {
	if cfg.Consul.Addr == "" {
		return nil
	}

	host, err := os.Hostname()
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("consul: HTTP_SERVER.ADDR must be a port: %w", err)
	}

	registry, err := NewConsulRegistry(cfg.Consul.Addr, cfg.AppName, fmt.Sprintf("%s-%s", cfg.AppName, host), host, port, cfg.AppEnv, cfg.AppVersion)
	if err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := registry.Register(ctx); err != nil {
				zap.L().Error("failed to register with consul", zap.Error(err))
				return err
			}
			zap.L().Info("registered with consul", zap.String("service_id", registry.serviceID))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return registry.Deregister(ctx)
		},
	})
	return nil
}
