package health

import (
	"context"
	"net/http"
	"time"

	"license-authority/pkg/config"
	"license-authority/pkg/db"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("health",
	fx.Provide(ProvideHealth),
	fx.Invoke(registerGRPCHealth),
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

type Dependency struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Health struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Version string       `json:"version,omitempty"`
	Uptime  float64      `json:"uptime"`
	Deps    []Dependency `json:"deps,omitempty"`
}

type HealthService interface {
	Liveness(c *gin.Context)
	Readiness(c *gin.Context)
	Check(ctx context.Context) Health
}

type health struct {
	db      *gorm.DB
	redis   *redis.Client
	version string
	started time.Time
}

type HealthParams struct {
	fx.In
	Config *config.Config
	DB     *gorm.DB      `optional:"true"`
	Redis  *redis.Client `optional:"true"`
}

func ProvideHealth(p HealthParams) HealthService {
	return &health{
		db:      p.DB,
		redis:   p.Redis,
		version: p.Config.AppVersion,
		started: time.Now(),
	}
}

func (h *health) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, &Health{
		Status:  StatusHealthy,
		Message: "OK",
		Version: h.version,
		Uptime:  time.Since(h.started).Seconds(),
	})
}

func (h *health) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	result := h.Check(ctx)
	status := http.StatusOK
	if result.Status != StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, result)
}

// Check pings every configured dependency.
func (h *health) Check(ctx context.Context) Health {
	result := Health{
		Status:  StatusHealthy,
		Message: "OK",
		Version: h.version,
		Uptime:  time.Since(h.started).Seconds(),
	}

	if h.db != nil {
		result.Deps = append(result.Deps, probe(h.db.Name(), db.Ping(ctx, h.db)))
	}
	if h.redis != nil {
		result.Deps = append(result.Deps, probe("redis", h.redis.Ping(ctx).Err()))
	}

	for _, dep := range result.Deps {
		if dep.Status != StatusHealthy {
			result.Status = StatusUnhealthy
			result.Message = dep.Name + " unavailable"
			break
		}
	}
	return result
}

func probe(name string, err error) Dependency {
	if err != nil {
		return Dependency{Name: name, Status: StatusUnhealthy, Message: err.Error()}
	}
	return Dependency{Name: name, Status: StatusHealthy, Message: "OK"}
}
