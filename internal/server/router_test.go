package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/devenwen/callme-gate/internal/dispatch"
	"github.com/devenwen/callme-gate/internal/gateway"
	"github.com/devenwen/callme-gate/internal/jobstore"
	"github.com/devenwen/callme-gate/internal/platform/logger"
	"github.com/devenwen/callme-gate/internal/platform/store"
	"github.com/devenwen/callme-gate/internal/registry"
	"github.com/devenwen/callme-gate/internal/strategy"
)

func newTestAdapter(t *testing.T) *gateway.Adapter {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, err := logger.New("test")
	require.NoError(t, err)

	s := store.NewMemory()
	reg := registry.New(s, log)
	disp := dispatch.NewDispatcher(reg, s, log, strategy.NameRoundRobin)
	repo := jobstore.NewRepository(s)
	return gateway.NewAdapter(reg, disp, repo, log, time.Minute)
}

func TestNewRouterServesAdministrativeAndMetricsEndpoints(t *testing.T) {
	log, err := logger.New("test")
	require.NoError(t, err)

	r := NewRouter(RouterConfig{
		Adapter:     newTestAdapter(t),
		Log:         log,
		ServiceName: "callme-gate-test",
	})

	health := httptest.NewRequest(http.MethodGet, "/health", nil)
	healthRR := httptest.NewRecorder()
	r.ServeHTTP(healthRR, health)
	require.Equal(t, http.StatusOK, healthRR.Code)

	metrics := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	metricsRR := httptest.NewRecorder()
	r.ServeHTTP(metricsRR, metrics)
	require.Equal(t, http.StatusOK, metricsRR.Code)
}

func TestNewRouterFallsThroughToAdapterForUnknownRoutes(t *testing.T) {
	log, err := logger.New("test")
	require.NoError(t, err)

	r := NewRouter(RouterConfig{
		Adapter: newTestAdapter(t),
		Log:     log,
	})

	req := httptest.NewRequest(http.MethodGet, "/api/does/not/exist", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)
}
