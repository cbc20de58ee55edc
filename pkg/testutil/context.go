package testutil

import (
	"net/http"

	"titleregistry/pkg/requestcontext"
)

// WithIdentity attaches the ledger identity the auth middleware would set
// for an authenticated request.
func WithIdentity(req *http.Request, identity string) *http.Request {
	return req.WithContext(requestcontext.WithIdentity(req.Context(), identity))
}

// WithRequestID attaches a request id without running the request middleware.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
