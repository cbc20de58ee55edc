package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	audit "titleregistry/pkg/platform/audit"
)

// Schema creates the audit table. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id          UUID PRIMARY KEY,
	category    TEXT NOT NULL,
	timestamp   TIMESTAMPTZ NOT NULL,
	title_id    TEXT NOT NULL DEFAULT '',
	actor       TEXT NOT NULL DEFAULT '',
	action      TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	request_id  TEXT NOT NULL DEFAULT '',
	client_ip   TEXT NOT NULL DEFAULT '',
	user_agent  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS audit_events_title_idx ON audit_events (title_id, timestamp);
`

// Store implements audit.Store and audit.Reader on PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate audit schema: %w", err)
	}
	return nil
}

// Append inserts an audit event. Duplicate ids are ignored so redelivered
// events are harmless.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	query := `
		INSERT INTO audit_events (
			id, category, timestamp, title_id, actor, action,
			outcome, reason, request_id, client_ip, user_agent
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`
	eventID := event.ID
	if eventID == uuid.Nil {
		eventID = uuid.New()
	}

	_, err := s.db.ExecContext(ctx, query,
		eventID,
		string(event.Category),
		event.Timestamp,
		event.TitleID,
		event.Actor,
		event.Action,
		string(event.Outcome),
		event.Reason,
		event.RequestID,
		event.ClientIP,
		event.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT id, category, timestamp, title_id, actor, action,
		   outcome, reason, request_id, client_ip, user_agent
	FROM audit_events
`

// ListByTitle returns events for one title, oldest first.
func (s *Store) ListByTitle(ctx context.Context, titleID string) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`
		WHERE title_id = $1
		ORDER BY timestamp ASC, id ASC
	`, titleID)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListRecent returns the N most recent events.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`
		ORDER BY timestamp DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	events := []audit.Event{}

	for rows.Next() {
		var (
			event    audit.Event
			category string
			outcome  string
		)
		err := rows.Scan(
			&event.ID,
			&category,
			&event.Timestamp,
			&event.TitleID,
			&event.Actor,
			&event.Action,
			&outcome,
			&event.Reason,
			&event.RequestID,
			&event.ClientIP,
			&event.UserAgent,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		event.Outcome = audit.Outcome(outcome)
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
