package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "titleregistry/pkg/platform/audit"
)

// TopicPrefix is prepended to the category to form a topic name.
const TopicPrefix = "title-registry.audit."

// TopicFor returns the topic events of category are produced to.
func TopicFor(category audit.EventCategory) string {
	if category == "" {
		category = audit.CategoryOperations
	}
	return TopicPrefix + string(category)
}

// Topics lists every audit topic.
func Topics() []string {
	return []string{
		TopicFor(audit.CategoryCompliance),
		TopicFor(audit.CategorySecurity),
		TopicFor(audit.CategoryOperations),
	}
}

// Store produces audit events to one topic per category, keyed by event id.
type Store struct {
	client *kgo.Client
}

func New(client *kgo.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	value, err := audit.Marshal(event)
	if err != nil {
		return err
	}
	record := &kgo.Record{
		Topic: TopicFor(event.Category),
		Key:   []byte(event.ID.String()),
		Value: value,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// EnsureTopics creates the audit topics, leaving existing ones untouched.
func EnsureTopics(ctx context.Context, admin *kadm.Client, partitions int32, replication int16) error {
	resp, err := admin.CreateTopics(ctx, partitions, replication, nil, Topics()...)
	if err != nil {
		return fmt.Errorf("create audit topics: %w", err)
	}
	for _, t := range resp.Sorted() {
		if t.Err != nil && !errors.Is(t.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", t.Topic, t.Err)
		}
	}
	return nil
}
