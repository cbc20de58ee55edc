package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"titleregistry/internal/title/models"
	"titleregistry/pkg/domain"
	dErrors "titleregistry/pkg/domain-errors"
)

// Metadata is the metadata object stored by the contract.
type Metadata struct {
	Name        string `json:"nom,omitempty"`
	Type        string `json:"type,omitempty"`
	Size        Size   `json:"taille,omitempty"`
	Hash        string `json:"hash,omitempty"`
	Description string `json:"description,omitempty"`
	Address     string `json:"adresse,omitempty"`
	Owner       string `json:"proprietaire,omitempty"`
}

// Record is a title as stored by the contract.
type Record struct {
	Hash      string    `json:"hash"`
	Path      string    `json:"cheminFichier"`
	Owner     string    `json:"proprietaire"`
	Metadata  Metadata  `json:"metadata"`
	CreatedAt Timestamp `json:"dateCreation"`
	UpdatedAt Timestamp `json:"dateMiseAJour"`
	// LastPrice is the price of the most recent transfer.
	LastPrice string `json:"prixTransfert,omitempty"`
}

// HistoryRecord is one entry of the contract's key history.
type HistoryRecord struct {
	TxID      string    `json:"txId"`
	Timestamp Timestamp `json:"timestamp"`
	IsDelete  bool      `json:"isDelete"`
	Value     *Record   `json:"value,omitempty"`
}

// Authenticity is the contract's tamper-evidence verdict.
type Authenticity struct {
	Hash        string    `json:"hashFichier"`
	IsAuthentic bool      `json:"estAuthentique"`
	Timestamp   Timestamp `json:"timestamp"`
	Error       string    `json:"error,omitempty"`
}

// DeleteReply is the contract's acknowledgement of a delete.
type DeleteReply struct {
	Message string `json:"message"`
	Hash    string `json:"hash,omitempty"`
}

// Size accepts both JSON numbers and numeric strings.
type Size int64

func (s *Size) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(string(b), `"`)
	if raw == "" || raw == "null" {
		*s = 0
		return nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", raw, err)
	}
	*s = Size(n)
	return nil
}

// Timestamp accepts RFC 3339 strings and protobuf-style {seconds, nanos}
// objects, which is what chaincode history iterators emit.
type Timestamp struct {
	time.Time
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" || string(b) == `""` {
		t.Time = time.Time{}
		return nil
	}
	if b[0] == '{' {
		var pb struct {
			Seconds int64 `json:"seconds"`
			Nanos   int64 `json:"nanos"`
		}
		if err := json.Unmarshal(b, &pb); err != nil {
			return fmt.Errorf("invalid timestamp object: %w", err)
		}
		t.Time = time.Unix(pb.Seconds, pb.Nanos).UTC()
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	t.Time = parsed.UTC()
	return nil
}

// FromMetadata converts domain metadata to the contract's schema.
func FromMetadata(m models.Metadata) Metadata {
	return Metadata{
		Name:        m.Name,
		Type:        m.MIMEType,
		Size:        Size(m.Size),
		Hash:        m.Hash,
		Description: m.Description,
		Address:     m.Address,
		Owner:       m.Owner,
	}
}

// ToMetadata converts the contract's metadata to the domain type.
func (m Metadata) ToMetadata() models.Metadata {
	return models.Metadata{
		Name:        m.Name,
		MIMEType:    m.Type,
		Size:        int64(m.Size),
		Hash:        m.Hash,
		Description: m.Description,
		Address:     m.Address,
		Owner:       m.Owner,
	}
}

// EncodeMetadata renders metadata as the JSON argument the contract expects.
func EncodeMetadata(m models.Metadata) (string, error) {
	b, err := json.Marshal(FromMetadata(m))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "encode title metadata")
	}
	return string(b), nil
}

// ToModel converts a stored record. The record's hash must be a valid id.
func (r Record) ToModel() (models.TitleRecord, error) {
	id, err := domain.ParseTitleID(r.Hash)
	if err != nil {
		return models.TitleRecord{}, dErrors.Wrap(err, dErrors.CodeInternal, "ledger returned a record with an invalid id")
	}
	owner := r.Owner
	if owner == "" {
		owner = r.Metadata.Owner
	}
	return models.TitleRecord{
		ID:               id,
		Owner:            owner,
		DocumentLocation: r.Path,
		Metadata:         r.Metadata.ToMetadata(),
		CreatedAt:        r.CreatedAt.Time,
		UpdatedAt:        r.UpdatedAt.Time,
	}, nil
}

// IsEmpty reports a reply carrying no value.
func IsEmpty(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// DecodeRecord decodes a single record. The caller handles empty replies.
func DecodeRecord(raw []byte) (*models.TitleRecord, error) {
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, malformed(err)
	}
	rec, err := r.ToModel()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// DecodeRecords decodes a record list. Empty and null replies decode to an
// empty slice.
func DecodeRecords(raw []byte) ([]models.TitleRecord, error) {
	out := make([]models.TitleRecord, 0)
	if IsEmpty(raw) {
		return out, nil
	}
	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, malformed(err)
	}
	for _, r := range records {
		rec, err := r.ToModel()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// DecodeHistory decodes a key history. Empty and null replies decode to an
// empty slice.
func DecodeHistory(raw []byte) ([]HistoryRecord, error) {
	out := make([]HistoryRecord, 0)
	if IsEmpty(raw) {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, malformed(err)
	}
	if out == nil {
		out = make([]HistoryRecord, 0)
	}
	return out, nil
}

// DecodeExists decodes the contract's "true"/"false" reply.
func DecodeExists(raw []byte) (bool, error) {
	switch strings.TrimSpace(string(raw)) {
	case "true":
		return true, nil
	case "false", "":
		return false, nil
	}
	return false, malformed(fmt.Errorf("unexpected exists reply %q", raw))
}

// DecodeAuthenticity decodes a verdict for id.
func DecodeAuthenticity(raw []byte, id domain.TitleID) (*models.AuthenticityResult, error) {
	if IsEmpty(raw) {
		return nil, malformed(fmt.Errorf("empty authenticity reply"))
	}
	var a Authenticity
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, malformed(err)
	}
	return &models.AuthenticityResult{
		ID:          id,
		IsAuthentic: a.IsAuthentic && a.Error == "",
		Timestamp:   a.Timestamp.Time,
		Error:       a.Error,
	}, nil
}

// DecodeDeleteReply decodes a delete acknowledgement. Contracts that reply
// with nothing get a generic confirmation.
func DecodeDeleteReply(raw []byte, id domain.TitleID) (*models.DeleteConfirmation, error) {
	conf := &models.DeleteConfirmation{ID: id, Message: fmt.Sprintf("title %s deleted", id)}
	if IsEmpty(raw) {
		return conf, nil
	}
	var r DeleteReply
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, malformed(err)
	}
	if r.Message != "" {
		conf.Message = r.Message
	}
	return conf, nil
}

var notFoundMarkers = []string{
	"does not exist",
	"n'existe pas",
	"not found",
	"non trouvé",
	"introuvable",
}

// IsNotFoundMessage reports whether a contract rejection says the asset is
// missing.
func IsNotFoundMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range notFoundMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func malformed(err error) error {
	return dErrors.Wrap(err, dErrors.CodeInternal, "malformed ledger reply")
}
