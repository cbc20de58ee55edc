package handler

import (
	"time"

	"titleregistry/internal/title/models"
)

type MetadataResponse struct {
	Name        string `json:"name,omitempty"`
	MIMEType    string `json:"type,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Hash        string `json:"hash,omitempty"`
	Description string `json:"description,omitempty"`
	Address     string `json:"address,omitempty"`
	Owner       string `json:"owner,omitempty"`
}

type TitleResponse struct {
	ID               string           `json:"id"`
	Owner            string           `json:"owner"`
	DocumentLocation string           `json:"documentLocation"`
	Metadata         MetadataResponse `json:"metadata"`
	CreatedAt        *time.Time       `json:"createdAt,omitempty"`
	UpdatedAt        *time.Time       `json:"updatedAt,omitempty"`
}

type TransferResponse struct {
	PreviousOwner string    `json:"previousOwner"`
	NewOwner      string    `json:"newOwner"`
	Price         string    `json:"price"`
	Timestamp     time.Time `json:"timestamp"`
}

type HistoryEntryResponse struct {
	TxID      string            `json:"txId"`
	Kind      string            `json:"kind"`
	Timestamp time.Time         `json:"timestamp"`
	Record    *TitleResponse    `json:"record,omitempty"`
	Transfer  *TransferResponse `json:"transfer,omitempty"`
}

type ExistsResponse struct {
	ID     string `json:"id"`
	Exists bool   `json:"exists"`
}

type AuthenticityResponse struct {
	ID          string    `json:"id"`
	IsAuthentic bool      `json:"isAuthentic"`
	Timestamp   time.Time `json:"timestamp"`
	Error       string    `json:"error,omitempty"`
}

type DeleteResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func FromTitle(rec *models.TitleRecord) TitleResponse {
	m := rec.Metadata
	return TitleResponse{
		ID:               rec.ID.String(),
		Owner:            rec.Owner,
		DocumentLocation: rec.DocumentLocation,
		Metadata: MetadataResponse{
			Name:        m.Name,
			MIMEType:    m.MIMEType,
			Size:        m.Size,
			Hash:        m.Hash,
			Description: m.Description,
			Address:     m.Address,
			Owner:       m.Owner,
		},
		CreatedAt: optionalTime(rec.CreatedAt),
		UpdatedAt: optionalTime(rec.UpdatedAt),
	}
}

func FromTitles(recs []models.TitleRecord) []TitleResponse {
	out := make([]TitleResponse, 0, len(recs))
	for i := range recs {
		out = append(out, FromTitle(&recs[i]))
	}
	return out
}

func FromHistory(entries []models.HistoryEntry) []HistoryEntryResponse {
	out := make([]HistoryEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp := HistoryEntryResponse{
			TxID:      e.TxID,
			Kind:      string(e.Kind),
			Timestamp: e.Timestamp,
		}
		if e.Record != nil {
			rec := FromTitle(e.Record)
			resp.Record = &rec
		}
		if e.Transfer != nil {
			resp.Transfer = &TransferResponse{
				PreviousOwner: e.Transfer.PreviousOwner,
				NewOwner:      e.Transfer.NewOwner,
				Price:         e.Transfer.Price.String(),
				Timestamp:     e.Transfer.Timestamp,
			}
		}
		out = append(out, resp)
	}
	return out
}

func FromAuthenticity(res *models.AuthenticityResult) AuthenticityResponse {
	return AuthenticityResponse{
		ID:          res.ID.String(),
		IsAuthentic: res.IsAuthentic,
		Timestamp:   res.Timestamp,
		Error:       res.Error,
	}
}
