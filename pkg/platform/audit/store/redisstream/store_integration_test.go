//go:build integration

package redisstream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "titleregistry/pkg/platform/audit"
	"titleregistry/pkg/testutil/containers"
)

func TestStreamRoundTrip(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	store := New(rc.Client, WithStream("test:audit"), WithMaxLen(100))

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	first := audit.Event{TitleID: "abc", Actor: "alice", Action: string(audit.EventTitleRegistered)}.Normalize(base)
	second := audit.Event{TitleID: "def", Action: string(audit.EventTitleDeleted)}.Normalize(base.Add(time.Second))
	require.NoError(t, store.Append(ctx, first))
	require.NoError(t, store.Append(ctx, second))

	byTitle, err := store.ListByTitle(ctx, "abc")
	require.NoError(t, err)
	require.Len(t, byTitle, 1)
	assert.Equal(t, first.ID, byTitle[0].ID)
	assert.Equal(t, "alice", byTitle[0].Actor)
	assert.True(t, byTitle[0].Timestamp.Equal(base))

	recent, err := store.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, second.ID, recent[0].ID)
}
