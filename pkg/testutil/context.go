package testutil

import (
	"context"
	"net/http"

	"conforma/pkg/requestcontext"
)

// WithTenantClaim adds a raw tenant claim to the request context.
// This simulates what the auth middleware would do for authenticated requests.
func WithTenantClaim(req *http.Request, claim string) *http.Request {
	ctx := requestcontext.WithTenantClaim(req.Context(), claim)
	return req.WithContext(ctx)
}

// WithWorkspaceClaim adds a raw workspace claim to the request context.
func WithWorkspaceClaim(req *http.Request, claim string) *http.Request {
	ctx := requestcontext.WithWorkspaceClaim(req.Context(), claim)
	return req.WithContext(ctx)
}

// WithClaims adds both tenant and workspace claims to the request context.
// This is the typical state for an authenticated request; an empty claim
// is skipped.
func WithClaims(req *http.Request, tenantClaim, workspaceClaim string) *http.Request {
	ctx := req.Context()
	if tenantClaim != "" {
		ctx = requestcontext.WithTenantClaim(ctx, tenantClaim)
	}
	if workspaceClaim != "" {
		ctx = requestcontext.WithWorkspaceClaim(ctx, workspaceClaim)
	}
	return req.WithContext(ctx)
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
