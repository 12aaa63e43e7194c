package audit

import (
	"context"

	"conforma/internal/isolation"
	id "conforma/pkg/domain"
	"conforma/pkg/requestcontext"
)

// Sink adapts the Publisher to the isolation layer's violation callback,
// routing cross-tenant violations into the security audit stream. The event
// names the attacking scope's tenant; the foreign tenant appears only here,
// in the audit trail, never in anything returned to the caller.
type Sink struct {
	publisher *Publisher
}

// NewSink constructs the violation sink.
func NewSink(publisher *Publisher) *Sink {
	return &Sink{publisher: publisher}
}

var _ isolation.ViolationSink = (*Sink)(nil)

// CrossTenantViolation implements isolation.ViolationSink.
func (s *Sink) CrossTenantViolation(ctx context.Context, scope isolation.Scope, rowTenant id.TenantID, operation string) {
	workspaceID, _ := scope.WorkspaceID()
	// Emission failures are swallowed: the violation is already rejected and
	// logged by the guard, and the audit path must not mask that error.
	_ = s.publisher.Emit(ctx, Event{
		Category:    CategorySecurity,
		TenantID:    scope.TenantID(),
		WorkspaceID: workspaceID,
		Subject:     rowTenant.String(),
		Action:      string(EventCrossTenantViolation),
		Reason:      operation,
		RequestID:   requestcontext.RequestID(ctx),
		ActorID:     requestcontext.Actor(ctx),
		Severity:    SeverityCritical,
	})
}
