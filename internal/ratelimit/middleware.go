package ratelimit

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"titleregistry/pkg/platform/httputil"
	"titleregistry/pkg/requestcontext"
)

type Middleware struct {
	store  Store
	limits Limits
	logger *slog.Logger
}

func New(store Store, limits Limits, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Middleware{store: store, limits: limits, logger: logger}
}

// Handler throttles by client IP. Store failures let the request through.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		class := ClassOf(r)
		limit := m.limits.For(class)
		if limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		ip := requestcontext.ClientIP(ctx)
		result, err := m.store.Allow(ctx, string(class)+":"+ip, limit, m.limits.Window)
		if err != nil {
			m.logger.ErrorContext(ctx, "rate limit check failed",
				"request_id", requestcontext.RequestID(ctx),
				"class", class,
				"error", err,
			)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			retry := int(math.Ceil(result.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			m.logger.WarnContext(ctx, "rate limit exceeded",
				"request_id", requestcontext.RequestID(ctx),
				"class", class,
				"client_ip", ip,
			)
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			httputil.WriteJSON(w, http.StatusTooManyRequests, exceededResponse{
				Error:            "rate_limit_exceeded",
				ErrorDescription: "too many requests, try again later",
				RetryAfter:       retry,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
