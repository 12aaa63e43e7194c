package store

import (
	"context"
	"time"

	"conforma/internal/tenant/models"
	tenantstore "conforma/internal/tenant/store/tenant"
	workspacestore "conforma/internal/tenant/store/workspace"
	id "conforma/pkg/domain"
)

// SeedBootstrapTenant creates a default tenant with one workspace so a
// freshly started in-memory server has a scope to resolve against.
func SeedBootstrapTenant(ts *tenantstore.InMemory, ws *workspacestore.InMemory) (*models.Tenant, *models.Workspace) {
	now := time.Now()

	t := &models.Tenant{
		ID:        id.NewTenantID(),
		Name:      "default",
		Status:    models.TenantStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_ = ts.CreateIfNameAvailable(context.Background(), t)

	w := &models.Workspace{
		ID:        id.NewWorkspaceID(),
		TenantID:  t.ID,
		Name:      "default-workspace",
		Status:    models.WorkspaceStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_ = ws.Create(context.Background(), w)
	return t, w
}
