// Package server wires the gateway's gin.Engine: middleware, administrative
// endpoints, metrics, and the dynamic dispatch fallback.
package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/devenwen/callme-gate/internal/gateway"
	"github.com/devenwen/callme-gate/internal/http/middleware"
	"github.com/devenwen/callme-gate/internal/platform/logger"
)

// RouterConfig holds everything NewRouter needs to wire the engine.
type RouterConfig struct {
	Adapter      *gateway.Adapter
	Log          *logger.Logger
	AllowOrigins []string
	ServiceName  string
}

// NewRouter builds the gin.Engine. Administrative endpoints are registered
// up front; any method/path not matched by them falls through to the
// adapter's dynamic dispatch handler, since the set of application routes
// is only known at runtime once workers register them.
func NewRouter(cfg RouterConfig) *gin.Engine {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "callme-gate"
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(middleware.AttachTraceContext())
	r.Use(middleware.RequestLogger(cfg.Log))
	r.Use(middleware.CORS(cfg.AllowOrigins))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if cfg.Adapter != nil {
		r.GET("/health", cfg.Adapter.Health)
		r.GET("/routes", cfg.Adapter.ListRoutes)
		r.GET("/jobs/:id", cfg.Adapter.GetJob)
		r.DELETE("/jobs/:id", cfg.Adapter.CancelJob)
		r.GET("/nodes", cfg.Adapter.ListNodes)
		r.GET("/nodes/:id", cfg.Adapter.GetNode)
		r.PUT("/nodes/:id/status", cfg.Adapter.SetNodeStatus)
		r.POST("/nodes/:id/heartbeat", cfg.Adapter.NodeHeartbeat)

		r.NoRoute(cfg.Adapter.Handle)
	}

	return r
}
