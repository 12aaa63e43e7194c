package store

import (
	"context"
	"sort"
	"sync"

	"conforma/internal/isolation"
	"conforma/internal/scope/models"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

// MemoryStore keeps derived scope in process memory. Semantics match the
// Postgres store; the isolation guard is consulted on exactly the same
// operations.
type MemoryStore struct {
	guard *isolation.Guard
	mu    sync.RWMutex
	items map[id.TenantID]map[models.ItemKey]*models.ScopeItem
}

// NewMemory constructs an empty in-memory scope store.
func NewMemory(guard *isolation.Guard) *MemoryStore {
	return &MemoryStore{
		guard: guard,
		items: make(map[id.TenantID]map[models.ItemKey]*models.ScopeItem),
	}
}

// Reconcile replaces the tenant's scope set with the desired set in one
// atomic step: new items are inserted, changed items updated, active items
// absent from the desired set deactivated. Rows whose content is already
// identical are left untouched, so a re-run over the same inputs is a zero
// diff. This is the only write path into derived scope.
//
// Derived scope is tenant-wide: a tenant has one scope row per (kind, code),
// visible to every workspace. A workspace claim on the caller is recorded on
// the run, not on scope rows, so sibling workspaces reconcile the same set
// rather than partitioned ones.
func (s *MemoryStore) Reconcile(ctx context.Context, scope isolation.Scope, desired []*models.ScopeItem, prov models.Provenance) (models.ReconcileResult, error) {
	if scope.IsSystem() || scope.IsZero() {
		return models.ReconcileResult{}, dErrors.New(dErrors.CodeInternal, "reconcile requires a tenant scope")
	}
	writeScope := isolation.ForTenant(scope.TenantID())

	s.mu.Lock()
	defer s.mu.Unlock()

	tenant := scope.TenantID()
	existing, ok := s.items[tenant]
	if !ok {
		existing = make(map[models.ItemKey]*models.ScopeItem)
		s.items[tenant] = existing
	}

	var result models.ReconcileResult
	seen := make(map[models.ItemKey]struct{}, len(desired))

	for _, item := range desired {
		staged := *item
		staged.Active = true
		if err := s.guard.CheckWrite(ctx, writeScope, &staged, "reconcile_scope"); err != nil {
			return models.ReconcileResult{}, err
		}
		stamp(&staged, prov)

		key := staged.Key()
		if _, dup := seen[key]; dup {
			return models.ReconcileResult{}, dErrors.Newf(dErrors.CodeInternal, "duplicate desired item %s/%s", key.Kind, key.Code)
		}
		seen[key] = struct{}{}

		current, found := existing[key]
		switch {
		case !found:
			staged.CreatedAt = prov.DerivedAt
			staged.UpdatedAt = prov.DerivedAt
			existing[key] = &staged
			result.Added++
		case current.ContentEqual(&staged):
			result.Unchanged++
		default:
			staged.CreatedAt = current.CreatedAt
			staged.UpdatedAt = prov.DerivedAt
			existing[key] = &staged
			result.Updated++
		}
	}

	for key, current := range existing {
		if _, keep := seen[key]; keep || !current.Active {
			continue
		}
		if err := s.guard.CheckWrite(ctx, writeScope, current, "reconcile_scope"); err != nil {
			return models.ReconcileResult{}, err
		}
		current.Active = false
		stamp(current, prov)
		current.UpdatedAt = prov.DerivedAt
		result.Deactivated++
	}

	return result, nil
}

// ListActive returns the scope items currently applicable under the caller's
// scope, ordered by (kind, code).
func (s *MemoryStore) ListActive(ctx context.Context, scope isolation.Scope) ([]*models.ScopeItem, error) {
	return s.list(ctx, scope, true)
}

// List returns all scope items visible under the scope, deactivated rows
// included. Audit surfaces use it; the applicability API does not.
func (s *MemoryStore) List(ctx context.Context, scope isolation.Scope) ([]*models.ScopeItem, error) {
	return s.list(ctx, scope, false)
}

func (s *MemoryStore) list(_ context.Context, scope isolation.Scope, activeOnly bool) ([]*models.ScopeItem, error) {
	if scope.IsZero() {
		return nil, dErrors.New(dErrors.CodeInternal, "scope read requires a resolved scope")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []*models.ScopeItem
	appendTenant := func(byKey map[models.ItemKey]*models.ScopeItem) {
		for _, item := range byKey {
			if activeOnly && !item.Active {
				continue
			}
			copied := *item
			rows = append(rows, &copied)
		}
	}
	if scope.IsSystem() {
		for _, byKey := range s.items {
			appendTenant(byKey)
		}
	} else {
		appendTenant(s.items[scope.TenantID()])
	}

	rows = isolation.VisibleTo(s.guard, scope, rows)
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Kind != rows[j].Kind {
			return rows[i].Kind < rows[j].Kind
		}
		return rows[i].Code < rows[j].Code
	})
	return rows, nil
}

func stamp(item *models.ScopeItem, prov models.Provenance) {
	item.RulesetCode = prov.RulesetCode
	item.RulesetVersion = prov.RulesetVersion
	item.RunID = prov.RunID
	item.DerivedAt = prov.DerivedAt
}
