// Package admin serves the operator audit trail. The trail records who asked
// the registry to do what; title state always comes from the ledger.
package admin

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"titleregistry/pkg/domain"
	dErrors "titleregistry/pkg/domain-errors"
	audit "titleregistry/pkg/platform/audit"
	"titleregistry/pkg/platform/httputil"
	"titleregistry/pkg/requestcontext"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

type Handler struct {
	reader audit.Reader
	logger *slog.Logger
}

func New(reader audit.Reader, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{reader: reader, logger: logger}
}

// Register mounts the audit endpoints. Callers wrap r with the admin token
// middleware.
func (h *Handler) Register(r chi.Router) {
	r.Get("/admin/audit", h.HandleRecent)
	r.Get("/admin/audit/titles/{id}", h.HandleByTitle)
}

// HandleRecent handles GET /admin/audit?limit=N, newest first.
func (h *Handler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxRecentLimit)
	}

	events, err := h.reader.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "audit listing failed",
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "audit trail unavailable"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toListResponse(events))
}

// HandleByTitle handles GET /admin/audit/titles/{id}, oldest first.
func (h *Handler) HandleByTitle(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseTitleID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	events, err := h.reader.ListByTitle(r.Context(), id.String())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "audit listing failed",
			"request_id", requestcontext.RequestID(r.Context()),
			"title_id", id,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "audit trail unavailable"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toListResponse(events))
}
