// Package projection turns the contract's key history into typed title
// events.
package projection

import (
	"titleregistry/internal/title/models"
	"titleregistry/internal/title/wire"
	"titleregistry/pkg/domain"
)

// Project maps raw history to events, oldest first, keeping ledger order and
// every entry. Entries whose value cannot be decoded keep their kind and
// timestamp with a nil Record.
//
// The kind of each entry is derived from its position and the owner it
// records: a delete marker is a delete, the first live entry is the create,
// an owner change is a transfer, anything else is an update. The owner chain
// itself is the ledger's responsibility and is not re-checked here.
func Project(id domain.TitleID, raw []wire.HistoryRecord) []models.HistoryEntry {
	out := make([]models.HistoryEntry, 0, len(raw))
	var prevOwner string
	seenCreate := false

	for _, r := range raw {
		entry := models.HistoryEntry{
			TxID:      r.TxID,
			Timestamp: r.Timestamp.Time,
		}

		if r.IsDelete {
			entry.Kind = models.EventDeleted
			out = append(out, entry)
			continue
		}

		var owner string
		if r.Value != nil {
			if rec, err := r.Value.ToModel(); err == nil {
				entry.Record = &rec
				owner = rec.Owner
			} else {
				owner = r.Value.Owner
			}
		}

		switch {
		case !seenCreate:
			entry.Kind = models.EventCreated
			seenCreate = true
		case owner != "" && owner != prevOwner:
			entry.Kind = models.EventTransferred
			entry.Transfer = &models.TransferEvent{
				ID:            id,
				PreviousOwner: prevOwner,
				NewOwner:      owner,
				Price:         priceOf(r.Value),
				Timestamp:     entry.Timestamp,
			}
		default:
			entry.Kind = models.EventUpdated
		}

		if owner != "" {
			prevOwner = owner
		}
		out = append(out, entry)
	}
	return out
}

func priceOf(r *wire.Record) domain.Price {
	if r == nil || r.LastPrice == "" {
		return domain.DefaultPrice
	}
	return domain.Price(r.LastPrice)
}
