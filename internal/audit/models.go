// Package audit captures the engine's compliance, security, and operational
// events. Events are transport-agnostic at emission; the postgres store
// writes them to a transactional outbox and the outbox worker publishes them
// to Kafka, which is the durable source of truth.
package audit

import (
	"time"

	id "conforma/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance:
	// derivation outcomes, ruleset activations. Long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events that feed SIEM and alerting:
	// cross-tenant violations above all.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity useful for debugging.
	CategoryOperations EventCategory = "operations"
)

// Severity levels for security events.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category    EventCategory
	Timestamp   time.Time
	TenantID    id.TenantID
	WorkspaceID id.WorkspaceID
	Subject     string
	Action      string
	Decision    string
	Reason      string
	RunID       string
	RulesetCode string
	RequestID   string
	ActorID     string
	Severity    Severity
}

type AuditEvent string

const (
	// Derivation events
	EventDerivationStarted   AuditEvent = "derivation_started"
	EventDerivationCompleted AuditEvent = "derivation_completed"
	EventDerivationFailed    AuditEvent = "derivation_failed"

	// Ruleset lifecycle events
	EventRulesetCreated    AuditEvent = "ruleset_created"
	EventRulesetActivated  AuditEvent = "ruleset_activated"
	EventRulesetDeprecated AuditEvent = "ruleset_deprecated"

	// Tenant lifecycle events
	EventTenantCreated     AuditEvent = "tenant_created"
	EventTenantDeactivated AuditEvent = "tenant_deactivated"
	EventTenantReactivated AuditEvent = "tenant_reactivated"
	EventWorkspaceCreated  AuditEvent = "workspace_created"

	// Security events
	EventCrossTenantViolation AuditEvent = "cross_tenant_violation"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	EventDerivationCompleted: CategoryCompliance,
	EventDerivationFailed:    CategoryCompliance,
	EventRulesetActivated:    CategoryCompliance,
	EventRulesetDeprecated:   CategoryCompliance,

	EventCrossTenantViolation: CategorySecurity,
	EventTenantDeactivated:    CategorySecurity,
	EventTenantReactivated:    CategorySecurity,

	EventDerivationStarted: CategoryOperations,
	EventRulesetCreated:    CategoryOperations,
	EventTenantCreated:     CategoryOperations,
	EventWorkspaceCreated:  CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
