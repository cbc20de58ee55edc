// Package ratelimit throttles title requests per client IP with a sliding
// window. Reads and writes have separate budgets because a write holds a
// ledger session until commit.
package ratelimit

import (
	"context"
	"net/http"
	"time"
)

// Class groups endpoints sharing a budget.
type Class string

const (
	ClassRead  Class = "read"
	ClassWrite Class = "write"
)

// ClassOf buckets a request by method.
func ClassOf(r *http.Request) Class {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ClassRead
	default:
		return ClassWrite
	}
}

// Limits is the per-window budget for each class. A zero limit disables
// throttling for that class.
type Limits struct {
	Read   int
	Write  int
	Window time.Duration
}

func (l Limits) For(class Class) int {
	if class == ClassRead {
		return l.Read
	}
	return l.Write
}

// Result is the outcome of one check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Store counts requests per key over a sliding window.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

type exceededResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	RetryAfter       int    `json:"retry_after"`
}
