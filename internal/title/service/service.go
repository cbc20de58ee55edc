package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"titleregistry/internal/title/identity"
	"titleregistry/internal/title/metrics"
	"titleregistry/internal/title/models"
	"titleregistry/internal/title/projection"
	"titleregistry/internal/title/wire"
	"titleregistry/pkg/domain"
	dErrors "titleregistry/pkg/domain-errors"
	"titleregistry/pkg/platform/audit"
	"titleregistry/pkg/requestcontext"
)

// Ledger dispatches one transaction per call in its own session. An empty
// identity selects the deployment default.
type Ledger interface {
	Submit(ctx context.Context, identity, transaction string, args ...string) ([]byte, error)
	Evaluate(ctx context.Context, identity, transaction string, args ...string) ([]byte, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service implements the title registry operations over the ledger. It keeps
// no title state between calls and never retries a write.
type Service struct {
	ledger         Ledger
	hasher         *identity.Hasher
	tx             wire.Transactions
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTransactions overrides the contract's transaction names.
func WithTransactions(tx wire.Transactions) Option {
	return func(s *Service) {
		s.tx = tx.WithDefaults()
	}
}

// WithHasher selects the content identity algorithm used by Register.
func WithHasher(h *identity.Hasher) Option {
	return func(s *Service) {
		s.hasher = h
	}
}

// New constructs a Service.
func New(ledger Ledger, opts ...Option) *Service {
	s := &Service{
		ledger: ledger,
		hasher: identity.Default(),
		tx:     wire.DefaultTransactions(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s
}

// Identify derives the title id of a document.
func (s *Service) Identify(document []byte) domain.TitleID {
	return s.hasher.Sum(document)
}

// Register hashes document and creates the title under the resulting id.
// Size and hash metadata default to the document's own.
func (s *Service) Register(ctx context.Context, document []byte, location string, meta models.Metadata) (*models.TitleRecord, error) {
	id := s.hasher.Sum(document)
	if meta.Hash == "" {
		meta.Hash = id.String()
	}
	if meta.Size == 0 {
		meta.Size = int64(len(document))
	}
	return s.Create(ctx, models.NewTitle{ID: id, Location: location, Metadata: meta})
}

// Create records a new title. An id that is live or was ever deleted is a
// conflict; deleted titles are never resurrected.
func (s *Service) Create(ctx context.Context, nt models.NewTitle) (rec *models.TitleRecord, err error) {
	defer s.observe("create", time.Now(), &err)

	if err := nt.Validate(); err != nil {
		return nil, err
	}

	exists, err := s.existsStrict(ctx, nt.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, dErrors.Newf(dErrors.CodeConflict, "title %s already exists", nt.ID)
	}

	history, err := s.rawHistory(ctx, nt.ID)
	if err != nil {
		return nil, err
	}
	for _, h := range history {
		if h.IsDelete {
			return nil, dErrors.Newf(dErrors.CodeConflict, "title %s was deleted and cannot be registered again", nt.ID)
		}
	}

	metaJSON, err := wire.EncodeMetadata(nt.Metadata)
	if err != nil {
		return nil, err
	}
	out, err := s.ledger.Submit(ctx, s.caller(ctx), s.tx.Create, nt.ID.String(), nt.Location, metaJSON)
	if err != nil {
		err = s.ledgerError(err, nt.ID)
		s.auditFailure(ctx, nt.ID, audit.EventTitleRegistered, err)
		return nil, err
	}

	rec, err = s.recordFromReply(out, func() *models.TitleRecord {
		now := requestcontext.Now(ctx).UTC()
		return &models.TitleRecord{
			ID:               nt.ID,
			Owner:            nt.Metadata.Owner,
			DocumentLocation: nt.Location,
			Metadata:         nt.Metadata,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.TitlesRegistered.Inc()
	}
	s.logAudit(ctx, audit.EventTitleRegistered, nt.ID,
		"owner", rec.Owner,
		"document_location", rec.DocumentLocation,
	)
	return rec, nil
}

// Get reads a title. A missing title is reported through found, not err.
func (s *Service) Get(ctx context.Context, id domain.TitleID) (rec *models.TitleRecord, found bool, err error) {
	defer s.observe("get", time.Now(), &err)

	if id.IsZero() {
		return nil, false, dErrors.New(dErrors.CodeInvalidInput, "title id is required")
	}
	rec, err = s.read(ctx, id)
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// List returns every live title. No titles is an empty slice.
func (s *Service) List(ctx context.Context) (recs []models.TitleRecord, err error) {
	defer s.observe("list", time.Now(), &err)

	out, err := s.ledger.Evaluate(ctx, s.caller(ctx), s.tx.ReadAll)
	if err != nil {
		return nil, err
	}
	return wire.DecodeRecords(out)
}

// Update replaces metadata fields and optionally the document location of a
// live title.
func (s *Service) Update(ctx context.Context, id domain.TitleID, upd models.TitleUpdate) (rec *models.TitleRecord, err error) {
	defer s.observe("update", time.Now(), &err)

	current, err := s.mustRead(ctx, id)
	if err != nil {
		return nil, err
	}

	merged := current.Metadata.Merge(upd.Metadata)
	merged.Owner = current.Owner
	metaJSON, err := wire.EncodeMetadata(merged)
	if err != nil {
		return nil, err
	}
	args := []string{id.String(), metaJSON}
	if upd.Location != "" {
		args = append(args, upd.Location)
	}

	out, err := s.ledger.Submit(ctx, s.caller(ctx), s.tx.Update, args...)
	if err != nil {
		err = s.ledgerError(err, id)
		s.auditFailure(ctx, id, audit.EventTitleUpdated, err)
		return nil, err
	}

	rec, err = s.recordFromReply(out, func() *models.TitleRecord {
		next := *current
		next.Metadata = merged
		if upd.Location != "" {
			next.DocumentLocation = upd.Location
		}
		next.UpdatedAt = requestcontext.Now(ctx).UTC()
		return &next
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, audit.EventTitleUpdated, id, "document_location", rec.DocumentLocation)
	return rec, nil
}

// Delete removes a live title. Its history stays queryable and the id can
// never be registered again.
func (s *Service) Delete(ctx context.Context, id domain.TitleID) (conf *models.DeleteConfirmation, err error) {
	defer s.observe("delete", time.Now(), &err)

	if _, err := s.mustRead(ctx, id); err != nil {
		return nil, err
	}

	out, err := s.ledger.Submit(ctx, s.caller(ctx), s.tx.Delete, id.String())
	if err != nil {
		err = s.ledgerError(err, id)
		s.auditFailure(ctx, id, audit.EventTitleDeleted, err)
		return nil, err
	}
	conf, err = wire.DecodeDeleteReply(out, id)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.TitlesDeleted.Inc()
	}
	s.logAudit(ctx, audit.EventTitleDeleted, id)
	return conf, nil
}

// Transfer hands a live title to newOwner at price, "0" when empty. A
// transfer to the current owner is a conflict and never reaches the ledger.
// The ledger serializes concurrent transfers; the losing caller gets its
// rejection.
func (s *Service) Transfer(ctx context.Context, id domain.TitleID, newOwner, price string) (rec *models.TitleRecord, err error) {
	defer s.observe("transfer", time.Now(), &err)

	owner, err := domain.ParsePrincipal(newOwner)
	if err != nil {
		return nil, err
	}
	p, err := domain.ParsePrice(price)
	if err != nil {
		return nil, err
	}
	current, err := s.mustRead(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Owner == owner.String() {
		return nil, dErrors.Newf(dErrors.CodeConflict, "title %s is already owned by %s", id, current.Owner)
	}

	out, err := s.ledger.Submit(ctx, s.caller(ctx), s.tx.Transfer, id.String(), owner.String(), p.String())
	if err != nil {
		err = s.ledgerError(err, id)
		s.auditFailure(ctx, id, audit.EventTitleTransferred, err)
		return nil, err
	}

	rec, err = s.recordFromReply(out, func() *models.TitleRecord {
		next := *current
		next.Owner = owner.String()
		next.Metadata.Owner = owner.String()
		next.UpdatedAt = requestcontext.Now(ctx).UTC()
		return &next
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.TitlesTransferred.Inc()
	}
	s.logAudit(ctx, audit.EventTitleTransferred, id,
		"previous_owner", current.Owner,
		"new_owner", rec.Owner,
		"price", p.String(),
	)
	return rec, nil
}

// Exists reports whether id is a live title. Transport and ledger failures
// answer false; only deployment errors are returned.
func (s *Service) Exists(ctx context.Context, id domain.TitleID) (ok bool, err error) {
	defer s.observe("exists", time.Now(), &err)

	ok, err = s.existsStrict(ctx, id)
	if err == nil {
		return ok, nil
	}
	if dErrors.IsFatal(err) {
		return false, err
	}
	s.degraded(ctx, "exists", id, err)
	return false, nil
}

// ListByOwner returns the live titles held by owner.
func (s *Service) ListByOwner(ctx context.Context, owner string) (recs []models.TitleRecord, err error) {
	defer s.observe("list_by_owner", time.Now(), &err)

	p, err := domain.ParsePrincipal(owner)
	if err != nil {
		return nil, err
	}
	out, err := s.ledger.Evaluate(ctx, s.caller(ctx), s.tx.ByOwner, p.String())
	if err != nil {
		return nil, err
	}
	return wire.DecodeRecords(out)
}

// VerifyAuthenticity asks the ledger whether the stored record still matches
// its content identity. When the check cannot be completed the result is not
// authentic and carries the reason.
func (s *Service) VerifyAuthenticity(ctx context.Context, id domain.TitleID) (res *models.AuthenticityResult, err error) {
	defer s.observe("verify_authenticity", time.Now(), &err)

	if id.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "title id is required")
	}
	out, err := s.ledger.Evaluate(ctx, s.caller(ctx), s.tx.Authenticity, id.String())
	if err == nil {
		res, err = wire.DecodeAuthenticity(out, id)
	}
	if err == nil {
		return res, nil
	}
	if dErrors.IsFatal(err) {
		return nil, err
	}
	s.degraded(ctx, "verify_authenticity", id, err)
	return &models.AuthenticityResult{
		ID:          id,
		IsAuthentic: false,
		Timestamp:   requestcontext.Now(ctx).UTC(),
		Error:       dErrors.MessageOf(err),
	}, nil
}

// History returns every mutating event recorded for id, oldest first, deleted
// titles included. An id the ledger has never recorded yields no entries.
func (s *Service) History(ctx context.Context, id domain.TitleID) (entries []models.HistoryEntry, err error) {
	defer s.observe("history", time.Now(), &err)

	raw, err := s.rawHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	return projection.Project(id, raw), nil
}

// -----------------------------------------------------------------------------
// helpers
// -----------------------------------------------------------------------------

func (s *Service) caller(ctx context.Context) string {
	return requestcontext.Identity(ctx)
}

func (s *Service) existsStrict(ctx context.Context, id domain.TitleID) (bool, error) {
	if id.IsZero() {
		return false, dErrors.New(dErrors.CodeInvalidInput, "title id is required")
	}
	out, err := s.ledger.Evaluate(ctx, s.caller(ctx), s.tx.Exists, id.String())
	if err != nil {
		return false, err
	}
	return wire.DecodeExists(out)
}

func (s *Service) rawHistory(ctx context.Context, id domain.TitleID) ([]wire.HistoryRecord, error) {
	if id.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "title id is required")
	}
	out, err := s.ledger.Evaluate(ctx, s.caller(ctx), s.tx.History, id.String())
	if err != nil {
		return nil, s.ledgerError(err, id)
	}
	return wire.DecodeHistory(out)
}

// read fetches a title, reporting absence as CodeNotFound.
func (s *Service) read(ctx context.Context, id domain.TitleID) (*models.TitleRecord, error) {
	out, err := s.ledger.Evaluate(ctx, s.caller(ctx), s.tx.Read, id.String())
	if err != nil {
		return nil, s.ledgerError(err, id)
	}
	if wire.IsEmpty(out) {
		return nil, notFound(id)
	}
	return wire.DecodeRecord(out)
}

func (s *Service) mustRead(ctx context.Context, id domain.TitleID) (*models.TitleRecord, error) {
	if id.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "title id is required")
	}
	return s.read(ctx, id)
}

// ledgerError maps a rejection that reports a missing asset to NotFound and
// leaves every other classification untouched.
func (s *Service) ledgerError(err error, id domain.TitleID) error {
	if dErrors.HasCode(err, dErrors.CodeLedgerRejected) && wire.IsNotFoundMessage(dErrors.MessageOf(err)) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, fmt.Sprintf("title %s not found", id))
	}
	return err
}

func (s *Service) recordFromReply(out []byte, fallback func() *models.TitleRecord) (*models.TitleRecord, error) {
	if wire.IsEmpty(out) {
		return fallback(), nil
	}
	return wire.DecodeRecord(out)
}

func notFound(id domain.TitleID) error {
	return dErrors.Newf(dErrors.CodeNotFound, "title %s not found", id)
}

func (s *Service) degraded(ctx context.Context, operation string, id domain.TitleID, err error) {
	s.logger.WarnContext(ctx, "ledger unavailable, answering with fallback",
		"operation", operation,
		"title_id", id,
		"error_code", dErrors.CodeOf(err),
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.IncrementDegraded(operation)
	}
}

func (s *Service) observe(operation string, start time.Time, errp *error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	if *errp != nil {
		outcome = string(dErrors.CodeOf(*errp))
	}
	s.metrics.ObserveOperation(operation, outcome, start)
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, id domain.TitleID, attributes ...any) {
	s.emit(ctx, audit.Event{
		TitleID: id.String(),
		Action:  string(event),
		Outcome: audit.OutcomeSuccess,
	}, attributes...)
}

func (s *Service) auditFailure(ctx context.Context, id domain.TitleID, attempted audit.AuditEvent, cause error) {
	s.emit(ctx, audit.Event{
		TitleID: id.String(),
		Action:  string(audit.EventTitleMutationFailed),
		Outcome: audit.OutcomeFailure,
		Reason:  fmt.Sprintf("%s: %s", attempted, dErrors.CodeOf(cause)),
	}, "attempted", string(attempted), "error", cause)
}

func (s *Service) emit(ctx context.Context, event audit.Event, attributes ...any) {
	actor := s.caller(ctx)
	event.Actor = actor
	event.RequestID = requestcontext.RequestID(ctx)
	event.ClientIP = requestcontext.ClientIP(ctx)
	event.UserAgent = requestcontext.UserAgent(ctx)

	args := append(attributes,
		"title_id", event.TitleID,
		"actor", actor,
		"request_id", event.RequestID,
		"event", event.Action,
		"log_type", "audit",
	)
	s.logger.InfoContext(ctx, event.Action, args...)

	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit publish failed", "event", event.Action, "error", err)
	}
}
