// Package isolation implements the row-level isolation layer.
//
// Two scoping dimensions exist: tenant (hard boundary, always enforced when a
// tenant context is present) and workspace (soft sub-scope within a tenant; a
// row with no workspace is visible to every workspace in its tenant).
//
// The layer knows nothing about compliance semantics. It is a generic
// interceptor over persistence operations: one Guard, applied uniformly by
// every store, instead of per-entity filter predicates that are easy to
// forget.
package isolation

import (
	id "conforma/pkg/domain"
)

// Scope is the caller's resolved tenant/workspace identity for one unit of
// work. It is passed explicitly to every engine call; nothing reads it from
// ambient state.
//
// The zero Scope is invalid. Construct via ForTenant, ForWorkspace, or
// SystemScope.
type Scope struct {
	tenantID    id.TenantID
	workspaceID id.WorkspaceID
	system      bool
}

// ForTenant returns a scope confined to one tenant, visible to all of its
// workspaces.
func ForTenant(tenantID id.TenantID) Scope {
	return Scope{tenantID: tenantID}
}

// ForWorkspace returns a scope confined to one workspace within a tenant.
func ForWorkspace(tenantID id.TenantID, workspaceID id.WorkspaceID) Scope {
	return Scope{tenantID: tenantID, workspaceID: workspaceID}
}

// SystemScope returns the trusted unscoped context used by migrations and
// seed jobs. It bypasses the tenant predicate entirely and MUST never be
// constructed on an authenticated HTTP request path; the middleware has no
// way to produce it.
func SystemScope() Scope {
	return Scope{system: true}
}

// IsSystem reports whether this is the trusted unscoped context.
func (s Scope) IsSystem() bool { return s.system }

// IsZero reports whether the scope was never constructed. Guards treat a
// zero scope as a programming error, not as system access.
func (s Scope) IsZero() bool { return !s.system && s.tenantID.IsNil() }

// TenantID returns the scope's tenant, valid only when not a system scope.
func (s Scope) TenantID() id.TenantID { return s.tenantID }

// WorkspaceID returns the scope's workspace and whether one is set.
func (s Scope) WorkspaceID() (id.WorkspaceID, bool) {
	return s.workspaceID, !s.workspaceID.IsNil()
}

// String renders the scope for log attributes. System scope renders as
// "system" so trusted-context usage stands out in logs.
func (s Scope) String() string {
	if s.system {
		return "system"
	}
	if ws, ok := s.WorkspaceID(); ok {
		return s.tenantID.String() + "/" + ws.String()
	}
	return s.tenantID.String()
}
