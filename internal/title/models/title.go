package models

import (
	"time"

	"titleregistry/pkg/domain"
	dErrors "titleregistry/pkg/domain-errors"
)

// Metadata is the descriptive part of a title as declared by the registrant.
type Metadata struct {
	Name        string `json:"name"`
	MIMEType    string `json:"mime_type"`
	Size        int64  `json:"size"`
	Hash        string `json:"hash"`
	Description string `json:"description,omitempty"`
	Address     string `json:"address,omitempty"`
	// Owner is the owner declared at registration. TitleRecord.Owner tracks
	// the current one.
	Owner string `json:"owner,omitempty"`
}

// Merge overlays the non-zero fields of patch onto m.
func (m Metadata) Merge(patch Metadata) Metadata {
	if patch.Name != "" {
		m.Name = patch.Name
	}
	if patch.MIMEType != "" {
		m.MIMEType = patch.MIMEType
	}
	if patch.Size != 0 {
		m.Size = patch.Size
	}
	if patch.Hash != "" {
		m.Hash = patch.Hash
	}
	if patch.Description != "" {
		m.Description = patch.Description
	}
	if patch.Address != "" {
		m.Address = patch.Address
	}
	if patch.Owner != "" {
		m.Owner = patch.Owner
	}
	return m
}

// TitleRecord is a registered land title as held by the ledger.
//
// Invariants:
//   - ID never changes after creation
//   - Owner is the single current owner; transfers replace it
type TitleRecord struct {
	ID               domain.TitleID `json:"id"`
	Owner            string         `json:"owner"`
	DocumentLocation string         `json:"document_location"`
	Metadata         Metadata       `json:"metadata"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// NewTitle describes a title to register.
type NewTitle struct {
	ID       domain.TitleID
	Location string
	Metadata Metadata
}

// Validate checks the registration request before anything reaches the ledger.
func (n NewTitle) Validate() error {
	if n.ID.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "title id is required")
	}
	if n.Location == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "document location is required")
	}
	if n.Metadata.Owner != "" {
		if _, err := domain.ParsePrincipal(n.Metadata.Owner); err != nil {
			return err
		}
	}
	return nil
}

// TitleUpdate changes metadata and optionally repoints the document location.
type TitleUpdate struct {
	Metadata Metadata
	// Location is left unchanged when empty.
	Location string
}

// DeleteConfirmation acknowledges a committed delete.
type DeleteConfirmation struct {
	ID      domain.TitleID `json:"id"`
	Message string         `json:"message"`
}

// AuthenticityResult is the outcome of a tamper-evidence check. Error is set
// when the check could not be completed, in which case IsAuthentic is false.
type AuthenticityResult struct {
	ID          domain.TitleID `json:"id"`
	IsAuthentic bool           `json:"is_authentic"`
	Timestamp   time.Time      `json:"timestamp"`
	Error       string         `json:"error,omitempty"`
}
