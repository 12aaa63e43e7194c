package workspace

import (
	"context"
	"sort"
	"strings"
	"sync"

	"conforma/internal/tenant/models"
	id "conforma/pkg/domain"
	"conforma/pkg/platform/sentinel"
)

// InMemory is a map-backed workspace store for tests and local development.
// Workspace names are unique per tenant, case-insensitively.
type InMemory struct {
	mu   sync.RWMutex
	byID map[id.WorkspaceID]*models.Workspace
}

func NewInMemory() *InMemory {
	return &InMemory{byID: make(map[id.WorkspaceID]*models.Workspace)}
}

func copyWorkspace(w *models.Workspace) *models.Workspace {
	cp := *w
	return &cp
}

// Create inserts the workspace unless its tenant already has a workspace
// with the same name. Returns sentinel.ErrConflict on a taken name or ID.
func (s *InMemory) Create(_ context.Context, w *models.Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[w.ID]; ok {
		return sentinel.ErrConflict
	}
	for _, existing := range s.byID {
		if existing.TenantID == w.TenantID && strings.EqualFold(existing.Name, w.Name) {
			return sentinel.ErrConflict
		}
	}
	s.byID[w.ID] = copyWorkspace(w)
	return nil
}

func (s *InMemory) FindByID(_ context.Context, workspaceID id.WorkspaceID) (*models.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.byID[workspaceID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyWorkspace(w), nil
}

func (s *InMemory) Update(_ context.Context, w *models.Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[w.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.byID[w.ID] = copyWorkspace(w)
	return nil
}

// ListByTenant returns the tenant's workspaces ordered by name.
func (s *InMemory) ListByTenant(_ context.Context, tenantID id.TenantID) ([]*models.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Workspace
	for _, w := range s.byID {
		if w.TenantID == tenantID {
			out = append(out, copyWorkspace(w))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
