package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"license-authority/pkg/config"
	"license-authority/services/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (HealthService, func()) {
	t.Helper()
	db := testutil.NewTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)

	cfg := &config.Config{AppVersion: "1.2.3"}
	return ProvideHealth(HealthParams{Config: cfg, DB: db}), func() { _ = sqlDB.Close() }
}

func serve(t *testing.T, handler gin.HandlerFunc) (*httptest.ResponseRecorder, Health) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)
	handler(c)

	var h Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	return rec, h
}

func TestCheckHealthy(t *testing.T) {
	svc, _ := newService(t)

	h := svc.Check(context.Background())
	require.Equal(t, StatusHealthy, h.Status)
	require.Equal(t, "1.2.3", h.Version)
	require.Len(t, h.Deps, 1)
	require.Equal(t, "sqlite", h.Deps[0].Name)

	rec, body := serve(t, svc.Readiness)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, StatusHealthy, body.Status)
}

func TestReadinessReportsClosedDatabase(t *testing.T) {
	svc, closeDB := newService(t)
	closeDB()

	rec, body := serve(t, svc.Readiness)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, StatusUnhealthy, body.Status)
	require.Equal(t, "sqlite unavailable", body.Message)

	// liveness does not look at dependencies
	rec, body = serve(t, svc.Liveness)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, StatusHealthy, body.Status)
}
