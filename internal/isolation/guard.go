package isolation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/requestcontext"

	"conforma/internal/isolation/metrics"
)

// Owned is implemented by every tenant-owned entity the guard protects.
// A zero TenantID means "not yet stamped"; a zero WorkspaceID means the row
// is tenant-wide.
type Owned interface {
	OwnerTenantID() id.TenantID
	OwnerWorkspaceID() id.WorkspaceID
}

// Stampable additionally lets the guard stamp ownership onto a new row.
type Stampable interface {
	Owned
	StampOwner(id.TenantID, id.WorkspaceID)
}

// ViolationSink receives cross-tenant violation notifications so they can be
// routed to the security audit stream without this package importing it.
type ViolationSink interface {
	CrossTenantViolation(ctx context.Context, scope Scope, rowTenant id.TenantID, operation string)
}

// Guard enforces the read and write rules for tenant-owned rows. One Guard
// instance serves the entire process; every store receives it at
// construction and consults it on every operation.
type Guard struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	sink    ViolationSink
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithViolationSink routes violations into the audit pipeline.
func WithViolationSink(sink ViolationSink) GuardOption {
	return func(g *Guard) { g.sink = sink }
}

// WithMetrics enables violation counting.
func WithMetrics(m *metrics.Metrics) GuardOption {
	return func(g *Guard) { g.metrics = m }
}

// NewGuard constructs the process-wide isolation guard.
func NewGuard(logger *slog.Logger, opts ...GuardOption) *Guard {
	g := &Guard{logger: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// ReadAllowed reports whether a row is visible under the scope:
//
//	row.TenantID == scope.TenantID  OR scope is system
//	AND (row.WorkspaceID == scope.WorkspaceID OR row.WorkspaceID is unset OR scope has no workspace)
func (g *Guard) ReadAllowed(scope Scope, row Owned) bool {
	if scope.system {
		return true
	}
	if scope.IsZero() {
		return false
	}
	if row.OwnerTenantID() != scope.tenantID {
		return false
	}
	rowWS := row.OwnerWorkspaceID()
	if rowWS.IsNil() {
		return true
	}
	scopeWS, ok := scope.WorkspaceID()
	if !ok {
		return true
	}
	return rowWS == scopeWS
}

// CheckWrite validates a write under the scope. A row with no tenant gets the
// current tenant (and workspace, if any) stamped on. A row carrying a
// different, non-empty tenant ID is rejected with a cross-tenant violation:
// logged as a security event, counted, forwarded to the sink, and surfaced to
// the caller as an opaque coded error.
//
// operation names the attempted write for the security log ("reconcile_scope",
// "record_run", ...).
func (g *Guard) CheckWrite(ctx context.Context, scope Scope, row Stampable, operation string) error {
	if scope.system {
		return nil
	}
	if scope.IsZero() {
		return dErrors.New(dErrors.CodeInternal, "write attempted with unresolved scope")
	}

	rowTenant := row.OwnerTenantID()
	if rowTenant.IsNil() {
		ws, _ := scope.WorkspaceID()
		row.StampOwner(scope.tenantID, ws)
		return nil
	}
	if rowTenant != scope.tenantID {
		g.reportViolation(ctx, scope, rowTenant, operation)
		return dErrors.New(dErrors.CodeCrossTenant, "write rejected by isolation layer")
	}

	rowWS := row.OwnerWorkspaceID()
	scopeWS, scoped := scope.WorkspaceID()
	if scoped && !rowWS.IsNil() && rowWS != scopeWS {
		g.reportViolation(ctx, scope, rowTenant, operation)
		return dErrors.New(dErrors.CodeCrossTenant, "write rejected by isolation layer")
	}
	return nil
}

func (g *Guard) reportViolation(ctx context.Context, scope Scope, rowTenant id.TenantID, operation string) {
	// Security incident, not a validation failure: distinct log shape so
	// alerting can key on security_event without parsing messages.
	if g.logger != nil {
		g.logger.ErrorContext(ctx, "cross-tenant write rejected",
			"security_event", "cross_tenant_violation",
			"operation", operation,
			"scope", scope.String(),
			"row_tenant_id", rowTenant.String(),
			"request_id", requestcontext.RequestID(ctx),
			"actor", requestcontext.Actor(ctx),
		)
	}
	if g.metrics != nil {
		g.metrics.RecordViolation(operation)
	}
	if g.sink != nil {
		g.sink.CrossTenantViolation(ctx, scope, rowTenant, operation)
	}
}

// VisibleTo filters rows down to those readable under the scope. Used by the
// in-memory stores; the Postgres stores push the same predicate into SQL via
// Predicate.
func VisibleTo[T Owned](g *Guard, scope Scope, rows []T) []T {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		if g.ReadAllowed(scope, row) {
			out = append(out, row)
		}
	}
	return out
}

// Predicate renders the read filter as a SQL clause with lib/pq positional
// placeholders starting at $start, returning the clause and its arguments.
// Column names are caller-supplied so the one implementation serves every
// table regardless of aliasing.
func Predicate(scope Scope, tenantCol, workspaceCol string, start int) (string, []any) {
	if scope.system {
		return "TRUE", nil
	}

	var sb strings.Builder
	args := make([]any, 0, 2)

	fmt.Fprintf(&sb, "%s = $%d", tenantCol, start)
	args = append(args, scope.tenantID.String())

	if ws, ok := scope.WorkspaceID(); ok {
		fmt.Fprintf(&sb, " AND (%s = $%d OR %s IS NULL)", workspaceCol, start+1, workspaceCol)
		args = append(args, ws.String())
	}
	return sb.String(), args
}
