package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "titleregistry/pkg/platform/audit"
	"titleregistry/pkg/platform/audit/store/memory"
)

const titleID = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	event := audit.Event{
		TitleID: titleID,
		Action:  string(audit.EventTitleRegistered),
	}

	err := pub.Emit(context.Background(), event)
	require.NoError(t, err)

	events, err := pub.List(context.Background(), titleID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventTitleRegistered), events[0].Action)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
	assert.Equal(t, audit.OutcomeSuccess, events[0].Outcome)
	assert.NotEqual(t, uuid.Nil, events[0].ID)
}

func TestPublisher_AsyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10))
	defer pub.Close()

	event := audit.Event{
		TitleID: titleID,
		Action:  string(audit.EventTitleTransferred),
	}

	err := pub.Emit(context.Background(), event)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		events, err := pub.List(context.Background(), titleID)
		return err == nil && len(events) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	for range 10 {
		event := audit.Event{
			TitleID: titleID,
			Action:  string(audit.EventTitleUpdated),
		}
		err := pub.Emit(context.Background(), event)
		require.NoError(t, err)
	}

	// Close should drain all events
	pub.Close()

	events, err := store.ListByTitle(context.Background(), titleID)
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

func TestPublisher_EmitAfterCloseIsSynchronous(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	pub.Close()
	pub.Close()

	require.NoError(t, pub.Emit(context.Background(), audit.Event{TitleID: titleID, Action: string(audit.EventTitleDeleted)}))

	events, err := store.ListByTitle(context.Background(), titleID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestPublisher_BufferFull_DropsEvent(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	defer pub.Close()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pub.Emit(context.Background(), audit.Event{
				TitleID: titleID,
				Action:  string(audit.EventTitleUpdated),
			})
			if err != nil {
				assert.ErrorIs(t, err, ErrBufferFull)
			}
		}()
	}
	wg.Wait()
}

func TestPublisher_SetsTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	pub := NewPublisher(store, WithClock(func() time.Time { return fixed }))
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{TitleID: titleID, Action: string(audit.EventTitleRegistered)})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), titleID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, fixed, events[0].Timestamp)
}

func TestPublisher_PreservesExistingFields(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	customTime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	eventID := uuid.New()
	err := pub.Emit(context.Background(), audit.Event{
		ID:        eventID,
		TitleID:   titleID,
		Action:    string(audit.EventTitleMutationFailed),
		Outcome:   audit.OutcomeFailure,
		Timestamp: customTime,
	})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), titleID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, eventID, events[0].ID)
	assert.Equal(t, customTime, events[0].Timestamp)
	assert.Equal(t, audit.OutcomeFailure, events[0].Outcome)
	assert.Equal(t, audit.CategorySecurity, events[0].Category)
}

func TestPublisher_ContextCancellation(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pub.Emit(ctx, audit.Event{TitleID: titleID, Action: string(audit.EventTitleUpdated)})
	assert.ErrorIs(t, err, context.Canceled)
}

type appendOnly struct{ events []audit.Event }

func (a *appendOnly) Append(_ context.Context, e audit.Event) error {
	a.events = append(a.events, e)
	return nil
}

func TestPublisher_ListOnWriteOnlyStore(t *testing.T) {
	pub := NewPublisher(&appendOnly{})
	defer pub.Close()

	_, err := pub.List(context.Background(), titleID)
	assert.True(t, errors.Is(err, ErrNotQueryable))
}
