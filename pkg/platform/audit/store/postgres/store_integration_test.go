//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "titleregistry/pkg/platform/audit"
	"titleregistry/pkg/testutil/containers"
)

func TestStoreRoundTrip(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	store := New(pg.DB)
	ctx := context.Background()

	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx), "migration is idempotent")

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	registered := audit.Event{
		TitleID:   "abc",
		Actor:     "alice",
		Action:    string(audit.EventTitleRegistered),
		RequestID: "req-1",
		ClientIP:  "10.0.0.1",
		UserAgent: "curl 8.0",
	}.Normalize(base)
	transferred := audit.Event{
		TitleID: "abc",
		Actor:   "alice",
		Action:  string(audit.EventTitleTransferred),
	}.Normalize(base.Add(time.Minute))
	other := audit.Event{
		TitleID: "def",
		Action:  string(audit.EventTitleMutationFailed),
		Outcome: audit.OutcomeFailure,
		Reason:  "title_registered: conflict",
	}.Normalize(base.Add(2 * time.Minute))

	for _, e := range []audit.Event{registered, transferred, other} {
		require.NoError(t, store.Append(ctx, e))
	}
	require.NoError(t, store.Append(ctx, registered), "redelivery is ignored")

	events, err := store.ListByTitle(ctx, "abc")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, registered.ID, events[0].ID)
	assert.Equal(t, "req-1", events[0].RequestID)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
	assert.True(t, events[0].Timestamp.Equal(base))
	assert.Equal(t, transferred.ID, events[1].ID)

	recent, err := store.ListRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, other.ID, recent[0].ID)
	assert.Equal(t, audit.OutcomeFailure, recent[0].Outcome)
	assert.Equal(t, "title_registered: conflict", recent[0].Reason)
}
