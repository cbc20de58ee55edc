package consumer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Run polls client and hands every record to handler, committing offsets after
// each successfully handled batch. It returns when ctx ends or the client is
// closed. The client must be created with kgo.DisableAutoCommit.
func Run(ctx context.Context, client *kgo.Client, handler TopicHandler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	for {
		fetches := client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Warn("audit fetch failed", "topic", topic, "partition", partition, "error", err)
		})

		var handled []*kgo.Record
		fetches.EachRecord(func(r *kgo.Record) {
			msg := &Message{Topic: r.Topic, Key: r.Key, Value: r.Value}
			if err := handler.Handle(ctx, msg); err != nil {
				logger.Error("audit record not stored", "topic", r.Topic, "offset", r.Offset, "error", err)
				return
			}
			handled = append(handled, r)
		})
		if len(handled) == 0 {
			continue
		}
		if err := client.CommitRecords(ctx, handled...); err != nil {
			logger.Warn("audit offset commit failed", "error", err)
		}
	}
}
