package handler

import (
	"encoding/json"
	"strings"

	dErrors "titleregistry/pkg/domain-errors"
)

// TransferRequest is the body of POST /titles/{id}/transfer.
type TransferRequest struct {
	NewOwner string      `json:"newOwner"`
	Price    PriceString `json:"price"`
}

// Validate trims the owner; format checks happen in the service.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *TransferRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "request body is required")
	}
	r.NewOwner = strings.TrimSpace(r.NewOwner)
	if r.NewOwner == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "newOwner is required")
	}
	return nil
}

// PriceString accepts a price sent either as a JSON string or number.
type PriceString string

func (p *PriceString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*p = PriceString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "price must be a string or number")
	}
	*p = PriceString(n.String())
	return nil
}
