package redisstream

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	audit "titleregistry/pkg/platform/audit"
)

// DefaultStream is the stream key audit events are appended to.
const DefaultStream = "title-registry:audit"

// Store appends audit events to a Redis stream, one entry per event.
type Store struct {
	client *redis.Client
	stream string
	maxLen int64
}

type Option func(*Store)

// WithStream overrides the stream key.
func WithStream(stream string) Option {
	return func(s *Store) {
		s.stream = stream
	}
}

// WithMaxLen caps the stream length, trimming approximately.
func WithMaxLen(n int64) Option {
	return func(s *Store) {
		s.maxLen = n
	}
}

func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{client: client, stream: DefaultStream}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: toValues(event),
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("append audit event to stream: %w", err)
	}
	return nil
}

// ListByTitle scans the stream for one title's events, oldest first.
func (s *Store) ListByTitle(ctx context.Context, titleID string) ([]audit.Event, error) {
	msgs, err := s.client.XRange(ctx, s.stream, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("read audit stream: %w", err)
	}
	out := []audit.Event{}
	for _, msg := range msgs {
		event := fromValues(msg.Values)
		if event.TitleID == titleID {
			out = append(out, event)
		}
	}
	return out, nil
}

// ListRecent returns up to limit events, most recent first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	msgs, err := s.client.XRevRangeN(ctx, s.stream, "+", "-", int64(limit)).Result()
	if err != nil {
		return nil, fmt.Errorf("read audit stream: %w", err)
	}
	out := make([]audit.Event, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, fromValues(msg.Values))
	}
	return out, nil
}

func toValues(e audit.Event) map[string]any {
	return map[string]any{
		"id":         e.ID.String(),
		"category":   string(e.Category),
		"timestamp":  e.Timestamp.UTC().Format(time.RFC3339Nano),
		"title_id":   e.TitleID,
		"actor":      e.Actor,
		"action":     e.Action,
		"outcome":    string(e.Outcome),
		"reason":     e.Reason,
		"request_id": e.RequestID,
		"client_ip":  e.ClientIP,
		"user_agent": e.UserAgent,
	}
}

func fromValues(v map[string]any) audit.Event {
	str := func(key string) string {
		s, _ := v[key].(string)
		return s
	}
	e := audit.Event{
		Category:  audit.EventCategory(str("category")),
		TitleID:   str("title_id"),
		Actor:     str("actor"),
		Action:    str("action"),
		Outcome:   audit.Outcome(str("outcome")),
		Reason:    str("reason"),
		RequestID: str("request_id"),
		ClientIP:  str("client_ip"),
		UserAgent: str("user_agent"),
	}
	if id, err := uuid.Parse(str("id")); err == nil {
		e.ID = id
	}
	if ts, err := time.Parse(time.RFC3339Nano, str("timestamp")); err == nil {
		e.Timestamp = ts
	}
	return e
}
