// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// This package defines context keys and getter/setter functions for values that are
// typically set by middleware but consumed by services. By keeping this package free
// of net/http dependencies, services can import only what they need without pulling
// in HTTP-related code.
//
// The caller's tenant/workspace scope is deliberately NOT carried here. Engine
// calls receive an explicit isolation.Scope argument; only the raw
// authentication claims pass through context, and the tenant service turns
// them into a validated scope at the top of each request.
//
// Usage in services (read values):
//
//	actor := requestcontext.Actor(ctx)
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithActor(ctx, "onboarding-service")
package requestcontext

import (
	"context"
	"time"
)

// Context key types (unexported for encapsulation).
type (
	actorKey          struct{}
	tenantClaimKey    struct{}
	workspaceClaimKey struct{}
	requestIDKey      struct{}
	requestTimeKey    struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyActor          = actorKey{}
	ContextKeyTenantClaim    = tenantClaimKey{}
	ContextKeyWorkspaceClaim = workspaceClaimKey{}
	ContextKeyRequestID      = requestIDKey{}
	ContextKeyRequestTime    = requestTimeKey{}
)

// -----------------------------------------------------------------------------
// Auth context (actor and raw scope claims)
// -----------------------------------------------------------------------------

// Actor retrieves the authenticated principal (token subject) from the context.
func Actor(ctx context.Context) string {
	if actor, ok := ctx.Value(ContextKeyActor).(string); ok {
		return actor
	}
	return ""
}

// WithActor injects the authenticated principal into the context.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, ContextKeyActor, actor)
}

// TenantClaim retrieves the unvalidated tenant claim extracted from the
// bearer token. The tenant service validates it before any engine call.
func TenantClaim(ctx context.Context) string {
	if claim, ok := ctx.Value(ContextKeyTenantClaim).(string); ok {
		return claim
	}
	return ""
}

// WithTenantClaim injects the raw tenant claim into the context.
func WithTenantClaim(ctx context.Context, claim string) context.Context {
	return context.WithValue(ctx, ContextKeyTenantClaim, claim)
}

// WorkspaceClaim retrieves the unvalidated workspace claim, if any.
func WorkspaceClaim(ctx context.Context) string {
	if claim, ok := ctx.Value(ContextKeyWorkspaceClaim).(string); ok {
		return claim
	}
	return ""
}

// WithWorkspaceClaim injects the raw workspace claim into the context.
func WithWorkspaceClaim(ctx context.Context, claim string) context.Context {
	return context.WithValue(ctx, ContextKeyWorkspaceClaim, claim)
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (for non-HTTP contexts like workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
// Useful for:
//   - Service unit tests that don't run the full HTTP middleware chain
//   - Workers that need consistent time within a batch operation
//   - Seed commands
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
