package redisstream

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	audit "titleregistry/pkg/platform/audit"
)

func TestStreamValues(t *testing.T) {
	event := audit.Event{
		ID:        uuid.New(),
		Category:  audit.CategoryCompliance,
		Timestamp: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		TitleID:   "abc",
		Actor:     "appUser",
		Action:    string(audit.EventTitleTransferred),
		Outcome:   audit.OutcomeSuccess,
		RequestID: "req-1",
		ClientIP:  "10.0.0.1",
		UserAgent: "curl/8.0",
	}

	values := toValues(event)
	assert.Equal(t, "abc", values["title_id"])
	assert.Equal(t, "2024-05-01T10:00:00Z", values["timestamp"])
	assert.Equal(t, event, fromValues(values))
}

func TestFromValuesTolerant(t *testing.T) {
	event := fromValues(map[string]any{"id": "not-a-uuid", "timestamp": "yesterday", "action": "title_updated"})
	assert.Equal(t, uuid.Nil, event.ID)
	assert.True(t, event.Timestamp.IsZero())
	assert.Equal(t, "title_updated", event.Action)
}
