// Package httptransport assembles the public HTTP surface.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"verethfier/pkg/platform/httputil"
	request "verethfier/pkg/platform/middleware/request"
	"verethfier/pkg/platform/middleware/requesttime"
)

// Registrar mounts a feature's routes.
type Registrar interface {
	Register(r chi.Router)
}

type withMiddleware struct {
	next        Registrar
	middlewares []func(http.Handler) http.Handler
}

// WithMiddleware mounts next inside a group using the given middlewares.
func WithMiddleware(next Registrar, middlewares ...func(http.Handler) http.Handler) Registrar {
	return withMiddleware{next: next, middlewares: middlewares}
}

func (w withMiddleware) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(w.middlewares...)
		w.next.Register(r)
	})
}

// ReadinessCheck reports whether one backend is reachable.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

const readinessTimeout = 2 * time.Second

type routerConfig struct {
	clock    func() time.Time
	gatherer prometheus.Gatherer
	checks   []ReadinessCheck
}

type Option func(*routerConfig)

// WithClock sets the per-request clock.
func WithClock(clock func() time.Time) Option {
	return func(c *routerConfig) {
		c.clock = clock
	}
}

// WithMetricsGatherer exposes the gatherer on GET /metrics.
func WithMetricsGatherer(g prometheus.Gatherer) Option {
	return func(c *routerConfig) {
		c.gatherer = g
	}
}

// WithReadinessChecks adds backends checked by GET /readyz.
func WithReadinessChecks(checks ...ReadinessCheck) Option {
	return func(c *routerConfig) {
		c.checks = append(c.checks, checks...)
	}
}

// NewRouter wires the shared middleware stack, the health endpoint and every
// registrar's routes.
func NewRouter(logger *slog.Logger, registrars []Registrar, opts ...Option) http.Handler {
	cfg := &routerConfig{clock: time.Now}
	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(logger))
	r.Use(request.Logger(logger))
	r.Use(requesttime.Middleware(cfg.clock))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readyz(logger, cfg.checks))
	if cfg.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.gatherer, promhttp.HandlerOpts{}))
	}

	for _, reg := range registrars {
		reg.Register(r)
	}
	return r
}

type readinessResponse struct {
	Status string   `json:"status"`
	Failed []string `json:"failed,omitempty"`
}

func readyz(logger *slog.Logger, checks []ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		var failed []string
		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				logger.WarnContext(ctx, "readiness check failed", "check", c.Name, "error", err)
				failed = append(failed, c.Name)
			}
		}
		if len(failed) > 0 {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, readinessResponse{Status: "unavailable", Failed: failed})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, readinessResponse{Status: "ready"})
	}
}
