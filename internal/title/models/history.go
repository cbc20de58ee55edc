package models

import (
	"time"

	"titleregistry/pkg/domain"
)

// EventKind classifies a ledger history entry.
type EventKind string

const (
	EventCreated     EventKind = "created"
	EventUpdated     EventKind = "updated"
	EventTransferred EventKind = "transferred"
	EventDeleted     EventKind = "deleted"
)

// TransferEvent is one accepted change of ownership.
type TransferEvent struct {
	ID            domain.TitleID `json:"id"`
	PreviousOwner string         `json:"previous_owner"`
	NewOwner      string         `json:"new_owner"`
	Price         domain.Price   `json:"price"`
	Timestamp     time.Time      `json:"timestamp"`
}

// HistoryEntry is one mutating event in ledger order. Record is the state
// after the event and is nil for deletes. Transfer is set only for
// EventTransferred.
type HistoryEntry struct {
	TxID      string         `json:"tx_id"`
	Kind      EventKind      `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	Record    *TitleRecord   `json:"record,omitempty"`
	Transfer  *TransferEvent `json:"transfer,omitempty"`
}

// Transfers returns the transfer events in order.
func Transfers(entries []HistoryEntry) []TransferEvent {
	out := make([]TransferEvent, 0)
	for _, e := range entries {
		if e.Transfer != nil {
			out = append(out, *e.Transfer)
		}
	}
	return out
}

// IsTombstoned reports whether the history contains a delete.
func IsTombstoned(entries []HistoryEntry) bool {
	for _, e := range entries {
		if e.Kind == EventDeleted {
			return true
		}
	}
	return false
}
