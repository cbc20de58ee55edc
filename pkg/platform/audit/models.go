package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies and routing per sink.
type EventCategory string

const (
	// CategoryCompliance covers events that change who holds a title or
	// whether it exists. These need long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers rejected or failed mutations worth alerting on.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine changes that can be sampled.
	CategoryOperations EventCategory = "operations"
)

// Outcome is the result of the audited action.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event records one operator-visible action on a title. It is independent of
// the ledger's own history and never consulted for title state.
type Event struct {
	ID        uuid.UUID
	Category  EventCategory
	Timestamp time.Time
	TitleID   string
	// Actor is the ledger identity the action was performed as.
	Actor     string
	Action    string
	Outcome   Outcome
	Reason    string
	RequestID string
	ClientIP  string
	UserAgent string
}

type AuditEvent string

const (
	EventTitleRegistered     AuditEvent = "title_registered"
	EventTitleUpdated        AuditEvent = "title_updated"
	EventTitleTransferred    AuditEvent = "title_transferred"
	EventTitleDeleted        AuditEvent = "title_deleted"
	EventTitleMutationFailed AuditEvent = "title_mutation_failed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventTitleRegistered:     CategoryCompliance,
	EventTitleTransferred:    CategoryCompliance,
	EventTitleDeleted:        CategoryCompliance,
	EventTitleMutationFailed: CategorySecurity,
	EventTitleUpdated:        CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Normalize fills the ID, category, timestamp and outcome when unset.
func (e Event) Normalize(now time.Time) Event {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Category == "" {
		e.Category = AuditEvent(e.Action).Category()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	if e.Outcome == "" {
		e.Outcome = OutcomeSuccess
	}
	return e
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Reader is implemented by stores that can be queried back.
type Reader interface {
	ListByTitle(ctx context.Context, titleID string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
