package models

import (
	"time"

	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

// WorkspaceStatus is the lifecycle state of a workspace.
type WorkspaceStatus string

const (
	WorkspaceStatusActive   WorkspaceStatus = "active"
	WorkspaceStatusInactive WorkspaceStatus = "inactive"
)

func (s WorkspaceStatus) Valid() bool {
	return s == WorkspaceStatusActive || s == WorkspaceStatusInactive
}

// Workspace is a named sub-scope inside a tenant. Workspace membership
// narrows visibility: a caller bound to a workspace sees workspace rows
// plus tenant-wide rows, never rows of a sibling workspace.
//
// Invariants:
//   - Name is non-empty and at most 128 characters
//   - TenantID is immutable after construction
//   - Status is either active or inactive
type Workspace struct {
	ID        id.WorkspaceID  `json:"id"`
	TenantID  id.TenantID     `json:"tenant_id"`
	Name      string          `json:"name"`
	Status    WorkspaceStatus `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (w *Workspace) IsActive() bool {
	return w.Status == WorkspaceStatusActive
}

// BelongsTo reports whether the workspace is owned by the given tenant.
// ResolveScope uses this to reject claims that pair a workspace with a
// foreign tenant.
func (w *Workspace) BelongsTo(tenantID id.TenantID) bool {
	return w.TenantID == tenantID
}

func NewWorkspace(workspaceID id.WorkspaceID, tenantID id.TenantID, name string, now time.Time) (*Workspace, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "workspace name cannot be empty")
	}
	if len(name) > 128 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "workspace name must be 128 characters or less")
	}
	return &Workspace{
		ID:        workspaceID,
		TenantID:  tenantID,
		Name:      name,
		Status:    WorkspaceStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
