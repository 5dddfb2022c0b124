package web

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/rankview/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/rankview/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/rankview/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/rankview/pkg/middleware"
)

// RouterConfig carries the optional pieces of the router. Nil fields
// disable the matching routes or middleware.
type RouterConfig struct {
	Analytics   *analytics.Handler
	Health      *health.Checker
	Metrics     *metrics.Metrics
	Limiter     *middleware.Limiter
	CORSOrigins []string
	Timeout     time.Duration
}

// NewRouter builds the server handler.
//
// Routes:
//
//	GET /                          page with both sliders and the table
//	GET /api/v1/table              table element for snapshot, cutoff
//	GET /api/v1/rows               the same rows as JSON
//	GET /api/v1/snapshots          slider positions and cache state
//	GET /api/v1/cache/stats        store counters
//	GET /api/v1/analytics          aggregated view stats
//	GET /api/v1/analytics/history  persisted view stats
//	GET /health/live, /health/ready
//
// Middleware, outermost first:
//
//	RequestID → Metrics → CORS → RateLimit (/api/ only) → Timeout → mux
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.Page)
	mux.HandleFunc("GET /api/v1/table", h.Table)
	mux.HandleFunc("GET /api/v1/rows", h.Rows)
	mux.HandleFunc("GET /api/v1/snapshots", h.Snapshots)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	if cfg.Analytics != nil {
		mux.HandleFunc("GET /api/v1/analytics", cfg.Analytics.Stats)
		mux.HandleFunc("GET /api/v1/analytics/history", cfg.Analytics.History)
	}
	if cfg.Health != nil {
		mux.HandleFunc("GET /health/live", cfg.Health.LiveHandler())
		mux.HandleFunc("GET /health/ready", cfg.Health.ReadyHandler())
	}

	mws := []func(http.Handler) http.Handler{middleware.RequestID}
	if cfg.Metrics != nil {
		mws = append(mws, middleware.Metrics(cfg.Metrics))
	}
	if len(cfg.CORSOrigins) > 0 {
		mws = append(mws, middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins)))
	}
	if cfg.Limiter != nil {
		mws = append(mws, middleware.RateLimit(cfg.Limiter, "/api/"))
	}
	if cfg.Timeout > 0 {
		mws = append(mws, middleware.Timeout(cfg.Timeout))
	}
	return middleware.Chain(mux, mws...)
}
