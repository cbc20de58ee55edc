package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// payload is the wire form of an Event on message brokers.
type payload struct {
	ID        string `json:"id"`
	Category  string `json:"category"`
	Timestamp string `json:"timestamp"`
	TitleID   string `json:"title_id,omitempty"`
	Actor     string `json:"actor,omitempty"`
	Action    string `json:"action"`
	Outcome   string `json:"outcome"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	ClientIP  string `json:"client_ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// Marshal encodes an event for a broker.
func Marshal(e Event) ([]byte, error) {
	b, err := json.Marshal(payload{
		ID:        e.ID.String(),
		Category:  string(e.Category),
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
		TitleID:   e.TitleID,
		Actor:     e.Actor,
		Action:    e.Action,
		Outcome:   string(e.Outcome),
		Reason:    e.Reason,
		RequestID: e.RequestID,
		ClientIP:  e.ClientIP,
		UserAgent: e.UserAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal audit event: %w", err)
	}
	return b, nil
}

// Unmarshal decodes an event produced by Marshal.
func Unmarshal(b []byte) (Event, error) {
	var p payload
	if err := json.Unmarshal(b, &p); err != nil {
		return Event{}, fmt.Errorf("unmarshal audit event: %w", err)
	}
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return Event{}, fmt.Errorf("audit event id: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, p.Timestamp)
	if err != nil {
		return Event{}, fmt.Errorf("audit event timestamp: %w", err)
	}
	return Event{
		ID:        id,
		Category:  EventCategory(p.Category),
		Timestamp: ts,
		TitleID:   p.TitleID,
		Actor:     p.Actor,
		Action:    p.Action,
		Outcome:   Outcome(p.Outcome),
		Reason:    p.Reason,
		RequestID: p.RequestID,
		ClientIP:  p.ClientIP,
		UserAgent: p.UserAgent,
	}, nil
}
