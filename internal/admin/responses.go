package admin

import (
	"time"

	audit "titleregistry/pkg/platform/audit"
)

// AuditEventResponse is the HTTP response DTO for one operator audit event.
type AuditEventResponse struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"`
	TitleID   string    `json:"title_id,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	Action    string    `json:"action"`
	Outcome   string    `json:"outcome"`
	Reason    string    `json:"reason,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	ClientIP  string    `json:"client_ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
}

// AuditListResponse wraps a list of events for HTTP response.
type AuditListResponse struct {
	Events []AuditEventResponse `json:"events"`
	Total  int                  `json:"total"`
}

func toListResponse(events []audit.Event) AuditListResponse {
	out := make([]AuditEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, AuditEventResponse{
			ID:        e.ID.String(),
			Category:  string(e.Category),
			Timestamp: e.Timestamp,
			TitleID:   e.TitleID,
			Actor:     e.Actor,
			Action:    e.Action,
			Outcome:   string(e.Outcome),
			Reason:    e.Reason,
			RequestID: e.RequestID,
			ClientIP:  e.ClientIP,
			UserAgent: e.UserAgent,
		})
	}
	return AuditListResponse{Events: out, Total: len(out)}
}
