// Package api assembles the collector's HTTP surface.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/RoofStorm/tiger-engagement/internal/auth"
	"github.com/RoofStorm/tiger-engagement/internal/model"
	"github.com/RoofStorm/tiger-engagement/pkg/postgres"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	healthTimeout = 2 * time.Second
	// apiPrefix matches the default TRACKING_API_BASE of the client.
	apiPrefix = "/api"
)

// Registrar mounts a group of routes.
type Registrar interface {
	Register(r gin.IRouter)
}

// HealthChecker is satisfied by *postgres.DB.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
	GetStats() postgres.Stats
}

type Deps struct {
	// Public routes: ingestion and dwell queries.
	Public []Registrar
	// Routes behind the bearer token.
	Authenticated []Registrar

	Auth       *auth.Authenticator
	RateLimit  *IPRateLimiter
	Metrics    *Metrics
	Gatherer   prometheus.Gatherer
	Health     HealthChecker
	CORSOrigin string
	Logger     *zap.Logger
}

func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(deps.Logger))
	r.Use(CORS(deps.CORSOrigin))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware())
	}

	r.GET("/health", healthHandler(deps.Health))
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group(apiPrefix)
	public := api.Group("")
	if deps.RateLimit != nil {
		public.Use(deps.RateLimit.Middleware())
	}
	for _, reg := range deps.Public {
		reg.Register(public)
	}

	if len(deps.Authenticated) > 0 {
		protected := api.Group("")
		protected.Use(deps.Auth.Required())
		for _, reg := range deps.Authenticated {
			reg.Register(protected)
		}
	}

	return r
}

func healthHandler(checker HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if checker == nil {
			c.JSON(http.StatusOK, model.Envelope[gin.H]{Success: true, Data: gin.H{"status": "ok"}})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		if err := checker.HealthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, model.Envelope[gin.H]{
				Data:  gin.H{"status": "unhealthy", "postgres": "down"},
				Error: err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, model.Envelope[gin.H]{
			Success: true,
			Data:    gin.H{"status": "ok", "postgres": checker.GetStats()},
		})
	}
}
