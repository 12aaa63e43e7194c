// Package models defines the derivation execution log records.
package models

import (
	"time"

	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

// RunStatus is the lifecycle of one derivation run. Running is the only
// non-terminal status; a run that never reaches a terminal status marks a
// crashed process, which is why the Running row commits before any
// derivation work starts.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// ErrorKind classifies why a run failed. Empty for non-failed runs.
type ErrorKind string

const (
	ErrorNone        ErrorKind = ""
	ErrorNotFound    ErrorKind = "not_found"
	ErrorInvalidRule ErrorKind = "invalid_rule"
	ErrorIntegrity   ErrorKind = "integrity"
	ErrorCancelled   ErrorKind = "cancelled"
	ErrorConflict    ErrorKind = "conflict"
	ErrorInternal    ErrorKind = "internal"
)

// RunRecord is one entry in the append-only execution log. Terminal records
// are immutable; the only permitted mutation is Running to a terminal status.
type RunRecord struct {
	ID             id.RunID       `json:"id"`
	TenantID       id.TenantID    `json:"tenant_id"`
	WorkspaceID    id.WorkspaceID `json:"workspace_id,omitzero"`
	RulesetCode    string         `json:"ruleset_code"`
	RulesetVersion int            `json:"ruleset_version"`
	Status         RunStatus      `json:"status"`
	ErrorKind      ErrorKind      `json:"error_kind,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	RulesEvaluated int            `json:"rules_evaluated"`
	RulesMatched   int            `json:"rules_matched"`
	Added          int            `json:"added"`
	Updated        int            `json:"updated"`
	Deactivated    int            `json:"deactivated"`
	Unchanged      int            `json:"unchanged"`
	TriggeredBy    string         `json:"triggered_by"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at,omitzero"`
}

// NewRun opens a run record for a derivation that is about to start.
func NewRun(runID id.RunID, rulesetCode string, triggeredBy string, now time.Time) *RunRecord {
	return &RunRecord{
		ID:          runID,
		RulesetCode: rulesetCode,
		Status:      RunRunning,
		TriggeredBy: triggeredBy,
		StartedAt:   now,
	}
}

// Terminal reports whether the record can no longer change.
func (r *RunRecord) Terminal() bool {
	return r.Status == RunSucceeded || r.Status == RunFailed
}

// MarkSucceeded closes the run with its reconciliation counts.
func (r *RunRecord) MarkSucceeded(now time.Time) error {
	if r.Terminal() {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "run %s is already %s", r.ID, r.Status)
	}
	r.Status = RunSucceeded
	r.FinishedAt = now
	return nil
}

// MarkFailed closes the run with a failure classification. The message is
// operator-facing; it never carries another tenant's identifiers.
func (r *RunRecord) MarkFailed(kind ErrorKind, message string, now time.Time) error {
	if r.Terminal() {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "run %s is already %s", r.ID, r.Status)
	}
	r.Status = RunFailed
	r.ErrorKind = kind
	r.ErrorMessage = message
	r.FinishedAt = now
	return nil
}

// OwnerTenantID implements isolation.Owned.
func (r *RunRecord) OwnerTenantID() id.TenantID {
	return r.TenantID
}

// OwnerWorkspaceID implements isolation.Owned.
func (r *RunRecord) OwnerWorkspaceID() id.WorkspaceID {
	return r.WorkspaceID
}

// StampOwner implements isolation.Stampable.
func (r *RunRecord) StampOwner(tenantID id.TenantID, workspaceID id.WorkspaceID) {
	r.TenantID = tenantID
	r.WorkspaceID = workspaceID
}
