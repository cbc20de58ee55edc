package httptransport

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"titleregistry/pkg/platform/middleware/request"
	"titleregistry/pkg/requestcontext"
	"titleregistry/pkg/testutil"
)

// echoRoutes records what the middleware chain put in the context.
type echoRoutes struct {
	identity  string
	requestID string
	panics    bool
}

func (e *echoRoutes) Register(r chi.Router) {
	r.Get("/titles", func(w http.ResponseWriter, r *http.Request) {
		if e.panics {
			panic("boom")
		}
		e.identity = requestcontext.Identity(r.Context())
		e.requestID = requestcontext.RequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

type auditRoutes struct{}

func (auditRoutes) Register(r chi.Router) {
	r.Get("/admin/audit", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func denyAll(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
}

func TestRouter(t *testing.T) {
	testutil.Given(t, "an open router", func(t *testing.T) {
		titles := &echoRoutes{}
		router := NewRouter(Deps{
			Titles:  titles,
			Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) }),
		})

		testutil.When(t, "a request carries a request id", func(t *testing.T) {
			req := testutil.NewRequest(t, http.MethodGet, "/titles")
			req.Header.Set(request.HeaderRequestID, "req-7")
			rr := testutil.DoRequest(router, req)

			testutil.Then(t, "the handler and the response see it", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusOK)
				assert.Equal(t, "req-7", titles.requestID)
				assert.Equal(t, "req-7", rr.Header().Get(request.HeaderRequestID))
				assert.Empty(t, titles.identity)
			})
		})

		testutil.When(t, "metrics are scraped", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/metrics"))
			testutil.Then(t, "the metrics handler answers", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusOK)
				assert.Equal(t, "# metrics", string(testutil.ReadBody(t, rr)))
			})
		})

		testutil.When(t, "operator routes are not configured", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/admin/audit"))
			testutil.Then(t, "they are not mounted", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusNotFound)
			})
		})
	})

	testutil.Given(t, "a router with auth", func(t *testing.T) {
		router := NewRouter(Deps{Titles: &echoRoutes{}, Auth: denyAll})

		testutil.Then(t, "title routes are guarded", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/titles"))
			testutil.AssertStatus(t, rr, http.StatusUnauthorized)
		})
		testutil.And(t, "health stays open", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/healthz"))
			testutil.AssertStatus(t, rr, http.StatusOK)
		})
	})

	testutil.Given(t, "a handler that panics", func(t *testing.T) {
		router := NewRouter(Deps{Titles: &echoRoutes{panics: true}})

		testutil.Then(t, "the client gets a 500 envelope", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/titles"))
			testutil.AssertStatusAndError(t, rr, http.StatusInternalServerError, "internal_error")
		})
	})

	testutil.Given(t, "operator routes with a token", func(t *testing.T) {
		router := NewRouter(Deps{Audit: auditRoutes{}, AdminToken: "s3cret"})

		testutil.Then(t, "the token is required", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/admin/audit"))
			testutil.AssertStatus(t, rr, http.StatusUnauthorized)

			req := testutil.NewRequest(t, http.MethodGet, "/admin/audit")
			req.Header.Set("X-Admin-Token", "s3cret")
			testutil.AssertStatus(t, testutil.DoRequest(router, req), http.StatusOK)
		})
	})
}

func TestHealth(t *testing.T) {
	router := NewRouter(Deps{Health: map[string]HealthCheck{
		"redis":  func(context.Context) error { return nil },
		"ledger": func(context.Context) error { return errors.New("breaker open") },
	}})

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/healthz"))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.JSONEq(t, `{"status":"degraded","checks":{"redis":"ok","ledger":"unavailable"}}`, string(testutil.ReadBody(t, rr)))
}
