// Package models defines the derived scope records: which catalog items
// apply to a tenant, how strongly, and why.
package models

import (
	"encoding/json"
	"time"

	"conforma/internal/catalog"
	id "conforma/pkg/domain"
)

// ReasonRule cites one rule that contributed a scope item.
type ReasonRule struct {
	Code        string `json:"code"`
	Explanation string `json:"explanation"`
}

// Reason is the provenance document stored with every scope item. It cites
// every contributing rule, not just the winner of conflict resolution, so an
// auditor can reconstruct the full justification from the row alone.
type Reason struct {
	Rules []ReasonRule `json:"rules"`
}

// Equal compares two reasons by content.
func (r Reason) Equal(other Reason) bool {
	if len(r.Rules) != len(other.Rules) {
		return false
	}
	for i := range r.Rules {
		if r.Rules[i] != other.Rules[i] {
			return false
		}
	}
	return true
}

// ItemKey is the identity of a scope item within a tenant.
type ItemKey struct {
	Kind catalog.ItemKind
	Code string
}

// ScopeItem is one derived applicability record. One row exists per
// (tenant, kind, code); deactivated items are retained with Active false so
// provenance survives re-derivation.
type ScopeItem struct {
	TenantID       id.TenantID      `json:"tenant_id"`
	WorkspaceID    id.WorkspaceID   `json:"workspace_id,omitzero"`
	Kind           catalog.ItemKind `json:"kind"`
	Code           string           `json:"code"`
	Applicability  id.Applicability `json:"applicability"`
	Reason         Reason           `json:"reason"`
	Active         bool             `json:"active"`
	RulesetCode    string           `json:"ruleset_code"`
	RulesetVersion int              `json:"ruleset_version"`
	RunID          id.RunID         `json:"run_id"`
	DerivedAt      time.Time        `json:"derived_at"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Key returns the item's identity within its tenant.
func (i *ScopeItem) Key() ItemKey {
	return ItemKey{Kind: i.Kind, Code: i.Code}
}

// OwnerTenantID implements isolation.Owned.
func (i *ScopeItem) OwnerTenantID() id.TenantID {
	return i.TenantID
}

// OwnerWorkspaceID implements isolation.Owned.
func (i *ScopeItem) OwnerWorkspaceID() id.WorkspaceID {
	return i.WorkspaceID
}

// StampOwner implements isolation.Stampable.
func (i *ScopeItem) StampOwner(tenantID id.TenantID, workspaceID id.WorkspaceID) {
	i.TenantID = tenantID
	i.WorkspaceID = workspaceID
}

// ContentEqual reports whether two items carry the same derived content,
// ignoring provenance timestamps and run identity. Reconciliation uses it to
// leave untouched rows untouched: a re-run over identical inputs must produce
// a zero diff.
func (i *ScopeItem) ContentEqual(other *ScopeItem) bool {
	return i.Kind == other.Kind &&
		i.Code == other.Code &&
		i.Applicability == other.Applicability &&
		i.Active == other.Active &&
		i.Reason.Equal(other.Reason)
}

// MarshalReason renders the reason document for storage.
func (i *ScopeItem) MarshalReason() ([]byte, error) {
	return json.Marshal(i.Reason)
}

// Provenance identifies the derivation run behind a reconciliation. The
// store stamps it onto every row it touches; untouched rows keep the
// provenance of the run that last changed them.
type Provenance struct {
	RulesetCode    string
	RulesetVersion int
	RunID          id.RunID
	DerivedAt      time.Time
}

// ReconcileResult summarizes what one reconciliation changed.
type ReconcileResult struct {
	Added       int `json:"added"`
	Updated     int `json:"updated"`
	Deactivated int `json:"deactivated"`
	Unchanged   int `json:"unchanged"`
}

// Empty reports a zero-diff reconciliation.
func (r ReconcileResult) Empty() bool {
	return r.Added == 0 && r.Updated == 0 && r.Deactivated == 0
}
