//go:build integration

package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "titleregistry/pkg/platform/audit"
	kafkastore "titleregistry/pkg/platform/audit/store/kafka"
	"titleregistry/pkg/platform/audit/store/memory"
	"titleregistry/pkg/testutil/containers"
)

func TestKafkaSinkToStore(t *testing.T) {
	kc := containers.NewKafkaContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	producer, err := kgo.NewClient(kgo.SeedBrokers(kc.Brokers...))
	require.NoError(t, err)
	t.Cleanup(producer.Close)
	require.NoError(t, kafkastore.EnsureTopics(ctx, kadm.NewClient(producer), 1, 1))
	require.NoError(t, kafkastore.EnsureTopics(ctx, kadm.NewClient(producer), 1, 1), "existing topics are fine")

	sink := kafkastore.New(producer)
	event := audit.Event{TitleID: "abc", Actor: "alice", Action: string(audit.EventTitleTransferred)}.Normalize(time.Now().UTC())
	require.NoError(t, sink.Append(ctx, event))

	consumerClient, err := kgo.NewClient(
		kgo.SeedBrokers(kc.Brokers...),
		kgo.ConsumerGroup("audit-test"),
		kgo.ConsumeTopics(kafkastore.Topics()...),
		kgo.DisableAutoCommit(),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)

	store := memory.NewInMemoryStore()
	router := NewRouter(nil, nil)
	router.Register(kafkastore.TopicFor(audit.CategoryCompliance), NewStoreHandler(store, audit.CategoryCompliance, nil))

	done := make(chan error, 1)
	go func() { done <- Run(ctx, consumerClient, router, nil) }()

	require.Eventually(t, func() bool {
		events, _ := store.ListByTitle(ctx, "abc")
		return len(events) == 1
	}, 30*time.Second, 200*time.Millisecond)

	consumerClient.Close()
	assert.NoError(t, <-done)

	events, err := store.ListByTitle(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, event.ID, events[0].ID)
}
