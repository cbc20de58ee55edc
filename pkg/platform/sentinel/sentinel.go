package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Adapters and stores return these
// (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in the backing store
// - ErrConflict: entity already exists or was concurrently modified
// - ErrUnavailable: backing service temporarily unavailable
// - ErrClosed: resource was already released
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
	ErrClosed      = errors.New("closed")
)
