// Package domain defines typed identifiers shared across modules.
//
// Each ID is a distinct named type over uuid.UUID so the compiler rejects
// cross-type assignment (a WorkspaceID can never be passed where a TenantID
// is expected). Parse functions enforce the trust-boundary invariant:
// IDs must be valid, non-empty, non-nil UUIDs.
package domain

import (
	"github.com/google/uuid"

	dErrors "conforma/pkg/domain-errors"
)

// TenantID identifies a tenant organization, the primary security boundary.
type TenantID uuid.UUID

// WorkspaceID identifies an optional sub-scope within a tenant.
type WorkspaceID uuid.UUID

// RulesetID identifies a stored ruleset version.
type RulesetID uuid.UUID

// RunID identifies one derivation run in the execution log.
type RunID uuid.UUID

func (id TenantID) String() string    { return uuid.UUID(id).String() }
func (id WorkspaceID) String() string { return uuid.UUID(id).String() }
func (id RulesetID) String() string   { return uuid.UUID(id).String() }
func (id RunID) String() string       { return uuid.UUID(id).String() }

func (id TenantID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id WorkspaceID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id RulesetID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id RunID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }

// NewTenantID returns a freshly generated tenant ID.
func NewTenantID() TenantID { return TenantID(uuid.New()) }

// NewWorkspaceID returns a freshly generated workspace ID.
func NewWorkspaceID() WorkspaceID { return WorkspaceID(uuid.New()) }

// NewRulesetID returns a freshly generated ruleset ID.
func NewRulesetID() RulesetID { return RulesetID(uuid.New()) }

// NewRunID returns a freshly generated run ID.
func NewRunID() RunID { return RunID(uuid.New()) }

// ParseTenantID validates and returns a TenantID.
func ParseTenantID(s string) (TenantID, error) {
	u, err := parseNonNilUUID(s)
	if err != nil {
		return TenantID{}, err
	}
	return TenantID(u), nil
}

// ParseWorkspaceID validates and returns a WorkspaceID.
func ParseWorkspaceID(s string) (WorkspaceID, error) {
	u, err := parseNonNilUUID(s)
	if err != nil {
		return WorkspaceID{}, err
	}
	return WorkspaceID(u), nil
}

// ParseRulesetID validates and returns a RulesetID.
func ParseRulesetID(s string) (RulesetID, error) {
	u, err := parseNonNilUUID(s)
	if err != nil {
		return RulesetID{}, err
	}
	return RulesetID(u), nil
}

// ParseRunID validates and returns a RunID.
func ParseRunID(s string) (RunID, error) {
	u, err := parseNonNilUUID(s)
	if err != nil {
		return RunID{}, err
	}
	return RunID(u), nil
}

func parseNonNilUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "id is not a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be the nil UUID")
	}
	return u, nil
}
