package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"titleregistry/internal/document"
	"titleregistry/internal/title/models"
	"titleregistry/pkg/domain"
	dErrors "titleregistry/pkg/domain-errors"
	"titleregistry/pkg/platform/httputil"
	"titleregistry/pkg/requestcontext"
)

// multipartOverhead is allowed on top of the document limit for form fields
// and part headers.
const multipartOverhead = 1 << 20

var allowedTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
}

// Service defines the title operations the handler exposes.
type Service interface {
	Create(ctx context.Context, nt models.NewTitle) (*models.TitleRecord, error)
	Get(ctx context.Context, id domain.TitleID) (*models.TitleRecord, bool, error)
	List(ctx context.Context) ([]models.TitleRecord, error)
	Update(ctx context.Context, id domain.TitleID, upd models.TitleUpdate) (*models.TitleRecord, error)
	Delete(ctx context.Context, id domain.TitleID) (*models.DeleteConfirmation, error)
	Transfer(ctx context.Context, id domain.TitleID, newOwner, price string) (*models.TitleRecord, error)
	Exists(ctx context.Context, id domain.TitleID) (bool, error)
	ListByOwner(ctx context.Context, owner string) ([]models.TitleRecord, error)
	VerifyAuthenticity(ctx context.Context, id domain.TitleID) (*models.AuthenticityResult, error)
	History(ctx context.Context, id domain.TitleID) ([]models.HistoryEntry, error)
}

// DocumentStore persists uploaded documents.
type DocumentStore interface {
	Save(ctx context.Context, originalName string, r io.Reader) (*document.Stored, error)
}

// Handler wires title endpoints to the title service.
type Handler struct {
	service   Service
	documents DocumentStore
	logger    *slog.Logger
	maxUpload int64
}

// New constructs a title handler. maxUpload bounds document size; zero uses
// document.DefaultMaxSize.
func New(service Service, documents DocumentStore, logger *slog.Logger, maxUpload int64) *Handler {
	if maxUpload <= 0 {
		maxUpload = document.DefaultMaxSize
	}
	return &Handler{
		service:   service,
		documents: documents,
		logger:    logger,
		maxUpload: maxUpload,
	}
}

// Register mounts title endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/titles", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Get("/owner/{owner}", h.HandleListByOwner)
		r.Get("/{id}", h.HandleGet)
		r.Put("/{id}", h.HandleUpdate)
		r.Delete("/{id}", h.HandleDelete)
		r.Post("/{id}/transfer", h.HandleTransfer)
		r.Get("/{id}/exists", h.HandleExists)
		r.Get("/{id}/authenticity", h.HandleAuthenticity)
		r.Get("/{id}/history", h.HandleHistory)
	})
}

// HandleCreate handles POST /titles: store the uploaded document, then
// register it under its content identity.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	form, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	owner := formValue(form, "owner", "proprietaire")
	if owner == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "owner is required"))
		return
	}
	file, header, ok := h.formDocument(w, form, true)
	if !ok {
		return
	}
	defer file.Close()

	stored, ok := h.store(w, r, file, header)
	if !ok {
		return
	}

	rec, err := h.service.Create(ctx, models.NewTitle{
		ID:       stored.ID,
		Location: stored.Location,
		Metadata: models.Metadata{
			Name:        header.Filename,
			MIMEType:    header.Header.Get("Content-Type"),
			Size:        stored.Size,
			Hash:        stored.ID.String(),
			Description: formValue(form, "description"),
			Address:     formValue(form, "address", "adresse"),
			Owner:       owner,
		},
	})
	if err != nil {
		h.fail(ctx, w, "title creation failed", err, "title_id", stored.ID)
		return
	}

	h.logger.InfoContext(ctx, "title created",
		"request_id", requestcontext.RequestID(ctx),
		"title_id", rec.ID,
		"owner", rec.Owner,
	)
	httputil.WriteJSON(w, http.StatusCreated, FromTitle(rec))
}

// HandleList handles GET /titles.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	recs, err := h.service.List(r.Context())
	if err != nil {
		h.fail(r.Context(), w, "title listing failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromTitles(recs))
}

// HandleGet handles GET /titles/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := titleID(w, r)
	if !ok {
		return
	}
	rec, found, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(r.Context(), w, "title read failed", err, "title_id", id)
		return
	}
	if !found {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeNotFound, "title %s not found", id))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromTitle(rec))
}

// HandleUpdate handles PUT /titles/{id}. A new document replaces the stored
// file reference and its content metadata; the title id does not change.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := titleID(w, r)
	if !ok {
		return
	}
	form, ok := h.parseForm(w, r)
	if !ok {
		return
	}

	upd := models.TitleUpdate{Metadata: models.Metadata{
		Name:        formValue(form, "name", "nom"),
		Description: formValue(form, "description"),
		Address:     formValue(form, "address", "adresse"),
	}}

	file, header, ok := h.formDocument(w, form, false)
	if !ok {
		return
	}
	if file != nil {
		defer file.Close()
		stored, ok := h.store(w, r, file, header)
		if !ok {
			return
		}
		upd.Location = stored.Location
		upd.Metadata.Name = header.Filename
		upd.Metadata.MIMEType = header.Header.Get("Content-Type")
		upd.Metadata.Size = stored.Size
		upd.Metadata.Hash = stored.ID.String()
	}

	if upd.Location == "" && upd.Metadata == (models.Metadata{}) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "metadata or document is required"))
		return
	}

	rec, err := h.service.Update(ctx, id, upd)
	if err != nil {
		h.fail(ctx, w, "title update failed", err, "title_id", id)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromTitle(rec))
}

// HandleDelete handles DELETE /titles/{id}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := titleID(w, r)
	if !ok {
		return
	}
	conf, err := h.service.Delete(r.Context(), id)
	if err != nil {
		h.fail(r.Context(), w, "title deletion failed", err, "title_id", id)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, DeleteResponse{ID: conf.ID.String(), Message: conf.Message})
}

// HandleTransfer handles POST /titles/{id}/transfer.
func (h *Handler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := titleID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[TransferRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	rec, err := h.service.Transfer(ctx, id, req.NewOwner, string(req.Price))
	if err != nil {
		h.fail(ctx, w, "title transfer failed", err, "title_id", id)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromTitle(rec))
}

// HandleExists handles GET /titles/{id}/exists.
func (h *Handler) HandleExists(w http.ResponseWriter, r *http.Request) {
	id, ok := titleID(w, r)
	if !ok {
		return
	}
	exists, err := h.service.Exists(r.Context(), id)
	if err != nil {
		h.fail(r.Context(), w, "title existence check failed", err, "title_id", id)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ExistsResponse{ID: id.String(), Exists: exists})
}

// HandleListByOwner handles GET /titles/owner/{owner}.
func (h *Handler) HandleListByOwner(w http.ResponseWriter, r *http.Request) {
	recs, err := h.service.ListByOwner(r.Context(), chi.URLParam(r, "owner"))
	if err != nil {
		h.fail(r.Context(), w, "owner listing failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromTitles(recs))
}

// HandleAuthenticity handles GET /titles/{id}/authenticity.
func (h *Handler) HandleAuthenticity(w http.ResponseWriter, r *http.Request) {
	id, ok := titleID(w, r)
	if !ok {
		return
	}
	res, err := h.service.VerifyAuthenticity(r.Context(), id)
	if err != nil {
		h.fail(r.Context(), w, "authenticity check failed", err, "title_id", id)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromAuthenticity(res))
}

// HandleHistory handles GET /titles/{id}/history. Deleted titles keep their
// history; an id the ledger has never seen is 404.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := titleID(w, r)
	if !ok {
		return
	}
	entries, err := h.service.History(ctx, id)
	if err != nil {
		h.fail(ctx, w, "title history failed", err, "title_id", id)
		return
	}
	if len(entries) == 0 {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeNotFound, "title %s not found", id))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromHistory(entries))
}

// -----------------------------------------------------------------------------
// helpers
// -----------------------------------------------------------------------------

func titleID(w http.ResponseWriter, r *http.Request) (domain.TitleID, bool) {
	id, err := domain.ParseTitleID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return id, true
}

func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request) (*multipart.Form, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeTooLarge(w)
			return nil, false
		}
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "request must be multipart/form-data"))
		return nil, false
	}
	return r.MultipartForm, true
}

// formDocument returns the uploaded document, accepting the "document" and
// "fichier" field names. A nil file with ok means none was sent.
func (h *Handler) formDocument(w http.ResponseWriter, form *multipart.Form, required bool) (multipart.File, *multipart.FileHeader, bool) {
	var header *multipart.FileHeader
	for _, field := range []string{"document", "fichier"} {
		if files := form.File[field]; len(files) > 0 {
			header = files[0]
			break
		}
	}
	if header == nil {
		if required {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "document is required"))
			return nil, nil, false
		}
		return nil, nil, true
	}
	if header.Size > h.maxUpload {
		writeTooLarge(w)
		return nil, nil, false
	}
	if !allowedTypes[strings.ToLower(header.Header.Get("Content-Type"))] {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "unsupported document type; only PDF, JPEG and PNG are accepted"))
		return nil, nil, false
	}
	file, err := header.Open()
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInvalidInput, "document could not be read"))
		return nil, nil, false
	}
	return file, header, true
}

func (h *Handler) store(w http.ResponseWriter, r *http.Request, file io.Reader, header *multipart.FileHeader) (*document.Stored, bool) {
	stored, err := h.documents.Save(r.Context(), header.Filename, file)
	if errors.Is(err, document.ErrTooLarge) {
		writeTooLarge(w)
		return nil, false
	}
	if err != nil {
		h.fail(r.Context(), w, "document storage failed", dErrors.Wrap(err, dErrors.CodeInternal, "document could not be stored"))
		return nil, false
	}
	return stored, true
}

func writeTooLarge(w http.ResponseWriter) {
	httputil.WriteJSON(w, http.StatusRequestEntityTooLarge, httputil.ErrorResponse{
		Error:            "document_too_large",
		ErrorDescription: "document exceeds the maximum allowed size",
	})
}

func formValue(form *multipart.Form, names ...string) string {
	for _, name := range names {
		if v := form.Value[name]; len(v) > 0 {
			if s := strings.TrimSpace(v[0]); s != "" {
				return s
			}
		}
	}
	return ""
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error, attrs ...any) {
	args := append([]any{
		"request_id", requestcontext.RequestID(ctx),
		"error_code", dErrors.CodeOf(err),
		"error", err,
	}, attrs...)
	if dErrors.IsRetryable(err) || dErrors.CodeOf(err) == dErrors.CodeInternal || dErrors.IsFatal(err) {
		h.logger.ErrorContext(ctx, msg, args...)
	} else {
		h.logger.WarnContext(ctx, msg, args...)
	}
	httputil.WriteError(w, err)
}
