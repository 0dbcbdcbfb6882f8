package httpapi

import (
	"net/http"

	"license-authority/pkg/config"
	"license-authority/pkg/health"
	"license-authority/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const APIPrefix = "/api/v1"

var Module = fx.Module("httpapi",
	fx.Provide(
		NewEngine,
		NewServeMux,
		NewAPI,
		NewSignatureVerifier,
		func(e *gin.Engine) http.Handler { return e },
	),
	fx.Invoke(registerHealthEndpoints),
)

func NewEngine(cfg *config.Config) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	e := gin.New()
	e.Use(
		gin.Recovery(),
		middleware.Logger(),
		middleware.Error(),
	)
	e.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": gin.H{"code": "NOT_FOUND", "message": "Route not found"}})
	})
	return e
}

// NewServeMux serves /healthz from the grpc.health.v1 service.
func NewServeMux(client healthpb.HealthClient) *runtime.ServeMux {
	return runtime.NewServeMux(runtime.WithHealthzEndpoint(client))
}

// API is the authenticated /api/v1 route group.
type API struct {
	*gin.RouterGroup
}

func NewAPI(e *gin.Engine, cfg *config.Config) API {
	limiter := middleware.NewIPRateLimiter(cfg.Auth.RateLimit, cfg.Auth.RateLimitWindow)
	return API{RouterGroup: e.Group(APIPrefix,
		middleware.RateLimit(limiter),
		middleware.APIKey(cfg.Auth.APIKeyHash),
	)}
}

type verifierParams struct {
	fx.In
	Config *config.Config
	Redis  *redis.Client `optional:"true"`
}

// NewSignatureVerifier keeps signature nonces in Redis so a request signed
// once is accepted by one replica only once.
func NewSignatureVerifier(p verifierParams) *middleware.SignatureVerifier {
	var nonces middleware.NonceStore
	if p.Redis != nil {
		nonces = middleware.NewRedisNonceStore(p.Redis)
	}
	return middleware.NewSignatureVerifier(nonces, p.Config.Auth.SignatureMaxAge)
}

type healthParams struct {
	fx.In
	Engine *gin.Engine
	Mux    *runtime.ServeMux
	Health health.HealthService
}

func registerHealthEndpoints(p healthParams) {
	p.Engine.GET("/health/liveness", p.Health.Liveness)
	p.Engine.GET("/health/readiness", p.Health.Readiness)
	p.Engine.GET("/healthz", gin.WrapH(p.Mux))
	p.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
