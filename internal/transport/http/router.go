// Package httptransport assembles the HTTP surface: shared middleware, the
// title routes, operator endpoints and health.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"titleregistry/pkg/platform/httputil"
	adminmw "titleregistry/pkg/platform/middleware/admin"
	"titleregistry/pkg/platform/middleware/metadata"
	"titleregistry/pkg/platform/middleware/request"
	"titleregistry/pkg/platform/middleware/requesttime"
)

const healthTimeout = 2 * time.Second

// Registrar mounts a group of routes.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Deps is everything the router mounts. Nil fields leave their routes out.
type Deps struct {
	Titles Registrar
	// RateLimit and Auth wrap the title routes, in that order, when set.
	RateLimit func(http.Handler) http.Handler
	Auth      func(http.Handler) http.Handler

	Audit      Registrar
	AdminToken string

	Metrics http.Handler
	Health  map[string]HealthCheck
	Logger  *slog.Logger
}

// NewRouter wires all public endpoints behind the shared middleware chain.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recover(logger))
	r.Use(request.Logger(logger))
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)

	r.Get("/healthz", healthHandler(deps.Health, logger))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	if deps.Titles != nil {
		r.Group(func(r chi.Router) {
			if deps.RateLimit != nil {
				r.Use(deps.RateLimit)
			}
			if deps.Auth != nil {
				r.Use(deps.Auth)
			}
			deps.Titles.Register(r)
		})
	}

	if deps.Audit != nil && deps.AdminToken != "" {
		r.Group(func(r chi.Router) {
			r.Use(adminmw.RequireAdminToken(deps.AdminToken, logger))
			deps.Audit.Register(r)
		})
	}

	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		for name, check := range checks {
			if resp.Checks == nil {
				resp.Checks = make(map[string]string, len(checks))
			}
			if err := check(ctx); err != nil {
				logger.WarnContext(ctx, "health check failed", "check", name, "error", err)
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
