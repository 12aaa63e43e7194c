package tenant

import (
	"context"
	"strings"
	"sync"

	"conforma/internal/tenant/models"
	id "conforma/pkg/domain"
	"conforma/pkg/platform/sentinel"
)

// InMemory is a map-backed tenant store for tests and local development.
// Name uniqueness is case-insensitive, matching the functional unique
// index the PostgreSQL store relies on.
type InMemory struct {
	mu      sync.RWMutex
	byID    map[id.TenantID]*models.Tenant
	byName  map[string]id.TenantID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:   make(map[id.TenantID]*models.Tenant),
		byName: make(map[string]id.TenantID),
	}
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func copyTenant(t *models.Tenant) *models.Tenant {
	cp := *t
	return &cp
}

// CreateIfNameAvailable inserts the tenant unless another tenant already
// holds the name. Returns sentinel.ErrConflict on a taken name or ID.
func (s *InMemory) CreateIfNameAvailable(_ context.Context, t *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[t.ID]; ok {
		return sentinel.ErrConflict
	}
	key := nameKey(t.Name)
	if _, ok := s.byName[key]; ok {
		return sentinel.ErrConflict
	}
	s.byID[t.ID] = copyTenant(t)
	s.byName[key] = t.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.byID[tenantID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyTenant(t), nil
}

func (s *InMemory) FindByName(_ context.Context, name string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenantID, ok := s.byName[nameKey(name)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyTenant(s.byID[tenantID]), nil
}

// Update persists status and timestamp changes. Names are immutable once
// created so the name index never needs rewriting.
func (s *InMemory) Update(_ context.Context, t *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[t.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.byID[t.ID] = copyTenant(t)
	return nil
}

func (s *InMemory) List(_ context.Context) ([]*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Tenant, 0, len(s.byID))
	for _, t := range s.byID {
		out = append(out, copyTenant(t))
	}
	return out, nil
}
