package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	audit "titleregistry/pkg/platform/audit"
	"titleregistry/pkg/platform/audit/worker"
)

// ErrBufferFull is returned by Emit in async mode when the buffer is full and
// the event was dropped.
var ErrBufferFull = errors.New("audit buffer full")

// ErrNotQueryable is returned by List when the store cannot be read back.
var ErrNotQueryable = errors.New("audit store is write-only")

// Publisher normalizes events and hands them to a store, either inline or
// through a buffered background worker.
type Publisher struct {
	store  audit.Store
	logger *slog.Logger
	now    func() time.Time

	bufferSize int
	inbox      chan audit.Event
	done       chan struct{}
	closeOnce  sync.Once
	mu         sync.RWMutex
	closed     bool
}

type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to async mode with a buffer of size
// events. Close drains it.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.bufferSize = size
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	if p.bufferSize > 0 {
		p.inbox = make(chan audit.Event, p.bufferSize)
		p.done = make(chan struct{})
		w := worker.NewWorker(store, p.inbox, p.logger)
		go func() {
			defer close(p.done)
			_ = w.Run(context.Background())
		}()
	}
	return p
}

// Emit records an event. In async mode it never blocks: when the buffer is
// full the event is dropped and ErrBufferFull returned.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	event = event.Normalize(p.now())
	if p.inbox == nil {
		return p.store.Append(ctx, event)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return p.store.Append(ctx, event)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.inbox <- event:
		return nil
	default:
		p.logger.WarnContext(ctx, "audit buffer full, dropping event",
			"action", event.Action,
			"title_id", event.TitleID,
		)
		return ErrBufferFull
	}
}

// List returns the events recorded for a title.
func (p *Publisher) List(ctx context.Context, titleID string) ([]audit.Event, error) {
	reader, ok := p.store.(audit.Reader)
	if !ok {
		return nil, ErrNotQueryable
	}
	return reader.ListByTitle(ctx, titleID)
}

// Close stops accepting async events and waits for the buffer to drain.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		if p.inbox == nil {
			return
		}
		p.mu.Lock()
		p.closed = true
		close(p.inbox)
		p.mu.Unlock()
		<-p.done
	})
}
