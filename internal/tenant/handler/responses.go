package handler

import (
	"time"

	"conforma/internal/tenant/models"
)

// TenantResponse is the HTTP representation of a tenant.
type TenantResponse struct {
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func FromTenant(t *models.Tenant) *TenantResponse {
	return &TenantResponse{
		TenantID:  t.ID.String(),
		Name:      t.Name,
		Status:    string(t.Status),
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

// WorkspaceResponse is the HTTP representation of a workspace.
type WorkspaceResponse struct {
	WorkspaceID string    `json:"workspace_id"`
	TenantID    string    `json:"tenant_id"`
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func FromWorkspace(w *models.Workspace) *WorkspaceResponse {
	return &WorkspaceResponse{
		WorkspaceID: w.ID.String(),
		TenantID:    w.TenantID.String(),
		Name:        w.Name,
		Status:      string(w.Status),
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}
}

// TenantListResponse wraps a collection of tenants.
type TenantListResponse struct {
	Tenants []*TenantResponse `json:"tenants"`
}

// WorkspaceListResponse wraps a collection of workspaces.
type WorkspaceListResponse struct {
	Workspaces []*WorkspaceResponse `json:"workspaces"`
}
