package consumer

import (
	"context"
	"fmt"
	"log/slog"

	audit "titleregistry/pkg/platform/audit"
)

// StoreHandler materializes audit events from a topic into a store.
type StoreHandler struct {
	store    audit.Store
	category audit.EventCategory
	logger   *slog.Logger
}

// NewStoreHandler creates a handler for events of one category.
func NewStoreHandler(store audit.Store, category audit.EventCategory, logger *slog.Logger) *StoreHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &StoreHandler{store: store, category: category, logger: logger}
}

// Handle stores one event. Malformed messages are logged and skipped so they
// never block the partition; store failures are returned for redelivery.
func (h *StoreHandler) Handle(ctx context.Context, msg *Message) error {
	event, err := audit.Unmarshal(msg.Value)
	if err != nil {
		h.logger.Error("failed to decode audit event",
			"topic", msg.Topic,
			"key", string(msg.Key),
			"error", err,
		)
		return nil
	}

	// Compliance events without a title cannot be traced back to a record.
	if h.category == audit.CategoryCompliance && event.TitleID == "" {
		h.logger.Error("compliance event missing title id",
			"event_id", event.ID,
			"action", event.Action,
		)
		return nil
	}
	if event.Category == "" {
		event.Category = h.category
	}

	if err := h.store.Append(ctx, event); err != nil {
		return fmt.Errorf("store %s event: %w", h.category, err)
	}

	h.logger.Debug("stored audit event",
		"event_id", event.ID,
		"action", event.Action,
		"title_id", event.TitleID,
	)
	return nil
}
