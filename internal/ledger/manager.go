package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"titleregistry/internal/ledger/metrics"
	dErrors "titleregistry/pkg/domain-errors"
	"titleregistry/pkg/platform/circuit"
	"titleregistry/pkg/platform/sentinel"
)

const tracerName = "titleregistry/internal/ledger"

// Stage is the furthest point a session reached before it was released.
type Stage string

const (
	StageBreaker    Stage = "breaker"
	StageProfile    Stage = "profile"
	StageCredential Stage = "credential"
	StageBind       Stage = "bind"
	StageDispatch   Stage = "dispatch"
)

// Release describes a finished WithSession call.
type Release struct {
	Identity string
	Stage    Stage
	// Bound is true when a session was opened and therefore closed.
	Bound bool
	// Err is the result returned to the caller, nil on success.
	Err error
}

// ReleaseHook observes every WithSession call exactly once, after teardown.
type ReleaseHook func(Release)

// Manager opens one short-lived ledger session per call and guarantees its
// teardown. It holds no connection state between calls.
type Manager struct {
	cfg         Config
	profiles    ProfileLoader
	credentials CredentialStore
	binder      Binder

	logger      *slog.Logger
	metrics     *metrics.Metrics
	breaker     *circuit.Breaker
	releaseHook ReleaseHook
	tracer      trace.Tracer
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithBreaker makes the manager fail fast while b is open. The breaker only
// counts retryable failures and never retries anything.
func WithBreaker(b *circuit.Breaker) Option {
	return func(m *Manager) {
		m.breaker = b
	}
}

func WithReleaseHook(hook ReleaseHook) Option {
	return func(m *Manager) {
		m.releaseHook = hook
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(m *Manager) {
		m.tracer = tracer
	}
}

// New constructs a Manager. Zero fields of cfg take their defaults.
func New(cfg Config, profiles ProfileLoader, credentials CredentialStore, binder Binder, opts ...Option) *Manager {
	m := &Manager{
		cfg:         cfg.WithDefaults(),
		profiles:    profiles,
		credentials: credentials,
		binder:      binder,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}
	if m.tracer == nil {
		m.tracer = otel.Tracer(tracerName)
	}
	return m
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// DefaultIdentity is the wallet label used when a call names none.
func (m *Manager) DefaultIdentity() string {
	return m.cfg.Identity
}

// WithSession resolves the profile and identity, binds a session, runs fn and
// tears the session down on every exit path. fn may dispatch a single
// transaction. An empty identity selects the configured default.
func (m *Manager) WithSession(ctx context.Context, identity string, fn func(ctx context.Context, tx Dispatcher) error) (err error) {
	if identity == "" {
		identity = m.cfg.Identity
	}
	rel := Release{Identity: identity}

	ctx, span := m.tracer.Start(ctx, "ledger.session", trace.WithAttributes(
		attribute.String("ledger.identity", identity),
		attribute.String("ledger.channel", m.cfg.Channel),
		attribute.String("ledger.contract", m.cfg.Contract),
	))
	if m.metrics != nil {
		m.metrics.SessionStarted()
	}

	var session Session
	defer func() {
		if session != nil {
			m.closeSession(ctx, identity, session)
		}
		rel.Err = err
		if p := recover(); p != nil {
			rel.Err = dErrors.New(dErrors.CodeInternal, fmt.Sprintf("panic during ledger session: %v", p))
			m.finish(span, rel)
			panic(p)
		}
		m.finish(span, rel)
	}()

	if m.breaker != nil && !m.breaker.Allow() {
		rel.Stage = StageBreaker
		return dErrors.New(dErrors.CodeNetwork, "ledger unavailable: circuit open")
	}

	if m.cfg.DispatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.DispatchTimeout)
		defer cancel()
	}

	rel.Stage = StageProfile
	profile, err := m.profiles.Load(m.cfg.ProfilePath)
	if err != nil {
		return classify(err, dErrors.CodeConfigMissing, "load connection profile")
	}

	rel.Stage = StageCredential
	credential, err := m.credentials.Lookup(ctx, identity)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeIdentityNotFound,
				fmt.Sprintf("identity %q not found in wallet", identity))
		}
		return classify(err, dErrors.CodeConfigMissing, "open credential store")
	}

	rel.Stage = StageBind
	session, err = m.binder.Bind(ctx, profile, credential, m.cfg.Channel, m.cfg.Contract)
	if err != nil {
		session = nil
		return m.dispatchFailure(ctx, classify(err, dErrors.CodeNetwork, "connect to ledger gateway"))
	}
	rel.Bound = true

	rel.Stage = StageDispatch
	tx := &singleDispatch{session: session, manager: m}
	if err := fn(ctx, tx); err != nil {
		return m.dispatchFailure(ctx, classify(err, dErrors.CodeInternal, "ledger dispatch"))
	}
	return nil
}

// Submit runs one state-changing transaction in its own session.
func (m *Manager) Submit(ctx context.Context, identity, transaction string, args ...string) ([]byte, error) {
	var out []byte
	err := m.WithSession(ctx, identity, func(ctx context.Context, tx Dispatcher) error {
		var err error
		out, err = tx.Submit(ctx, transaction, args...)
		return err
	})
	return out, err
}

// Evaluate runs one read-only transaction in its own session.
func (m *Manager) Evaluate(ctx context.Context, identity, transaction string, args ...string) ([]byte, error) {
	var out []byte
	err := m.WithSession(ctx, identity, func(ctx context.Context, tx Dispatcher) error {
		var err error
		out, err = tx.Evaluate(ctx, transaction, args...)
		return err
	})
	return out, err
}

// dispatchFailure turns a session deadline into a retryable timeout even when
// the adapter reported it as something else.
func (m *Manager) dispatchFailure(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !dErrors.HasCode(err, dErrors.CodeTimeout) &&
		!dErrors.HasCode(err, dErrors.CodeLedgerRejected) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "ledger session deadline exceeded")
	}
	return err
}

func (m *Manager) closeSession(ctx context.Context, identity string, session Session) {
	if err := session.Close(); err != nil {
		m.logger.WarnContext(ctx, "ledger session teardown failed",
			"identity", identity,
			"error", err,
		)
		if m.metrics != nil {
			m.metrics.IncrementCloseFailures()
		}
	}
}

func (m *Manager) finish(span trace.Span, rel Release) {
	defer span.End()

	outcome := "ok"
	if rel.Err != nil {
		outcome = string(dErrors.CodeOf(rel.Err))
		span.RecordError(rel.Err)
		span.SetStatus(otelcodes.Error, dErrors.MessageOf(rel.Err))
	}
	span.SetAttributes(
		attribute.String("ledger.stage", string(rel.Stage)),
		attribute.Bool("ledger.bound", rel.Bound),
	)
	if m.metrics != nil {
		m.metrics.SessionFinished(outcome)
	}
	m.recordBreaker(rel)
	if m.releaseHook != nil {
		m.releaseHook(rel)
	}
}

func (m *Manager) recordBreaker(rel Release) {
	if m.breaker == nil || rel.Stage == StageBreaker || dErrors.IsFatal(rel.Err) {
		return
	}
	var change circuit.StateChange
	if dErrors.IsRetryable(rel.Err) {
		_, change = m.breaker.RecordFailure()
	} else {
		_, change = m.breaker.RecordSuccess()
	}
	switch {
	case change.Opened:
		m.logger.Warn("ledger circuit opened", "breaker", m.breaker.Name())
		if m.metrics != nil {
			m.metrics.RecordBreakerTransition(string(circuit.StateOpen))
		}
	case change.Closed:
		m.logger.Info("ledger circuit closed", "breaker", m.breaker.Name())
		if m.metrics != nil {
			m.metrics.RecordBreakerTransition(string(circuit.StateClosed))
		}
	}
}

// classify keeps an existing classification and otherwise applies fallback.
// Context errors are always transient.
func classify(err error, fallback dErrors.Code, message string) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, message+": deadline exceeded")
	case errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeNetwork, message+": canceled")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeNetwork, message)
	}
	return dErrors.Wrap(err, fallback, message)
}

// singleDispatch enforces one transaction per session.
type singleDispatch struct {
	session Session
	manager *Manager
	used    atomic.Bool
}

func (d *singleDispatch) Submit(ctx context.Context, transaction string, args ...string) ([]byte, error) {
	return d.dispatch(ctx, "submit", transaction, func(ctx context.Context) ([]byte, error) {
		return d.session.Submit(ctx, transaction, args...)
	})
}

func (d *singleDispatch) Evaluate(ctx context.Context, transaction string, args ...string) ([]byte, error) {
	return d.dispatch(ctx, "evaluate", transaction, func(ctx context.Context) ([]byte, error) {
		return d.session.Evaluate(ctx, transaction, args...)
	})
}

func (d *singleDispatch) dispatch(ctx context.Context, kind, transaction string, call func(context.Context) ([]byte, error)) ([]byte, error) {
	if !d.used.CompareAndSwap(false, true) {
		return nil, dErrors.New(dErrors.CodeInternal, "ledger session already dispatched a transaction")
	}
	m := d.manager
	ctx, span := m.tracer.Start(ctx, "ledger."+kind, trace.WithAttributes(
		attribute.String("ledger.transaction", transaction),
	))
	defer span.End()

	start := time.Now()
	out, err := call(ctx)
	if m.metrics != nil {
		m.metrics.ObserveDispatch(transaction, kind, start)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, dErrors.MessageOf(err))
		m.logger.DebugContext(ctx, "ledger transaction failed",
			"transaction", transaction,
			"kind", kind,
			"error_code", dErrors.CodeOf(err),
		)
		return nil, err
	}
	return out, nil
}
