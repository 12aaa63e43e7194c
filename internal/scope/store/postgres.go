package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"conforma/internal/catalog"
	"conforma/internal/isolation"
	"conforma/internal/scope/models"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	txcontext "conforma/pkg/platform/tx"
)

// PostgresStore persists derived scope in PostgreSQL. Reconcile expects to
// run inside the derivation transaction carried in context; reads work with
// or without one.
type PostgresStore struct {
	db    *sql.DB
	guard *isolation.Guard
}

// NewPostgres constructs a PostgreSQL-backed scope store.
func NewPostgres(db *sql.DB, guard *isolation.Guard) *PostgresStore {
	return &PostgresStore{db: db, guard: guard}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) execer(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Reconcile replaces the tenant's scope set with the desired set. The diff is
// computed against rows locked FOR UPDATE so two concurrent reconciliations
// of the same tenant cannot interleave; the advisory lock taken by the
// derivation engine makes that contention rare rather than possible.
//
// Derived scope is tenant-wide: a tenant has one scope row per (kind, code),
// visible to every workspace. A workspace claim on the caller is recorded on
// the run, not on scope rows, so sibling workspaces reconcile the same set
// rather than partitioned ones.
func (s *PostgresStore) Reconcile(ctx context.Context, scope isolation.Scope, desired []*models.ScopeItem, prov models.Provenance) (models.ReconcileResult, error) {
	if scope.IsSystem() || scope.IsZero() {
		return models.ReconcileResult{}, dErrors.New(dErrors.CodeInternal, "reconcile requires a tenant scope")
	}
	writeScope := isolation.ForTenant(scope.TenantID())

	q := s.execer(ctx)
	existing, err := s.lockTenantRows(ctx, q, scope.TenantID())
	if err != nil {
		return models.ReconcileResult{}, err
	}

	var result models.ReconcileResult
	seen := make(map[models.ItemKey]struct{}, len(desired))

	for _, item := range desired {
		staged := *item
		staged.Active = true
		if err := s.guard.CheckWrite(ctx, writeScope, &staged, "reconcile_scope"); err != nil {
			return models.ReconcileResult{}, err
		}

		key := staged.Key()
		if _, dup := seen[key]; dup {
			return models.ReconcileResult{}, dErrors.Newf(dErrors.CodeInternal, "duplicate desired item %s/%s", key.Kind, key.Code)
		}
		seen[key] = struct{}{}

		current, found := existing[key]
		switch {
		case !found:
			if err := s.insert(ctx, q, &staged, prov); err != nil {
				return models.ReconcileResult{}, err
			}
			result.Added++
		case current.ContentEqual(&staged):
			result.Unchanged++
		default:
			if err := s.update(ctx, q, &staged, prov); err != nil {
				return models.ReconcileResult{}, err
			}
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
		if err := s.deactivate(ctx, q, current, prov); err != nil {
			return models.ReconcileResult{}, err
		}
		result.Deactivated++
	}

	return result, nil
}

// ListActive returns the active scope items visible under the caller's
// scope, ordered by (kind, code). The tenant predicate is pushed into SQL.
func (s *PostgresStore) ListActive(ctx context.Context, scope isolation.Scope) ([]*models.ScopeItem, error) {
	return s.list(ctx, scope, true)
}

// List returns all visible scope items, deactivated rows included.
func (s *PostgresStore) List(ctx context.Context, scope isolation.Scope) ([]*models.ScopeItem, error) {
	return s.list(ctx, scope, false)
}

func (s *PostgresStore) list(ctx context.Context, scope isolation.Scope, activeOnly bool) ([]*models.ScopeItem, error) {
	if scope.IsZero() {
		return nil, dErrors.New(dErrors.CodeInternal, "scope read requires a resolved scope")
	}

	predicate, args := isolation.Predicate(scope, "tenant_id", "workspace_id", 1)
	query := `
		SELECT tenant_id, workspace_id, kind, code, applicability, reason, active,
		       ruleset_code, ruleset_version, run_id, derived_at, created_at, updated_at
		FROM scope_items
		WHERE ` + predicate
	if activeOnly {
		query += " AND active"
	}
	query += " ORDER BY kind, code"

	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query scope items: %w", err)
	}
	defer rows.Close()

	var items []*models.ScopeItem
	for rows.Next() {
		item, err := scanScopeItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scope items: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) lockTenantRows(ctx context.Context, q querier, tenantID id.TenantID) (map[models.ItemKey]*models.ScopeItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT tenant_id, workspace_id, kind, code, applicability, reason, active,
		       ruleset_code, ruleset_version, run_id, derived_at, created_at, updated_at
		FROM scope_items
		WHERE tenant_id = $1
		FOR UPDATE
	`, uuid.UUID(tenantID))
	if err != nil {
		return nil, fmt.Errorf("lock scope items: %w", err)
	}
	defer rows.Close()

	existing := make(map[models.ItemKey]*models.ScopeItem)
	for rows.Next() {
		item, err := scanScopeItem(rows)
		if err != nil {
			return nil, err
		}
		existing[item.Key()] = item
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate locked scope items: %w", err)
	}
	return existing, nil
}

func (s *PostgresStore) insert(ctx context.Context, q querier, item *models.ScopeItem, prov models.Provenance) error {
	reason, err := item.MarshalReason()
	if err != nil {
		return fmt.Errorf("marshal scope reason: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO scope_items (
			tenant_id, workspace_id, kind, code, applicability, reason, active,
			ruleset_code, ruleset_version, run_id, derived_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, $8, $9, $10, $10, $10)
	`, uuid.UUID(item.TenantID), nullableWorkspace(item.WorkspaceID),
		string(item.Kind), item.Code, string(item.Applicability), reason,
		prov.RulesetCode, prov.RulesetVersion, uuid.UUID(prov.RunID), prov.DerivedAt)
	if err != nil {
		return fmt.Errorf("insert scope item %s/%s: %w", item.Kind, item.Code, err)
	}
	return nil
}

func (s *PostgresStore) update(ctx context.Context, q querier, item *models.ScopeItem, prov models.Provenance) error {
	reason, err := item.MarshalReason()
	if err != nil {
		return fmt.Errorf("marshal scope reason: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		UPDATE scope_items
		SET applicability = $4, reason = $5, active = TRUE,
		    ruleset_code = $6, ruleset_version = $7, run_id = $8,
		    derived_at = $9, updated_at = $9
		WHERE tenant_id = $1 AND kind = $2 AND code = $3
	`, uuid.UUID(item.TenantID), string(item.Kind), item.Code,
		string(item.Applicability), reason,
		prov.RulesetCode, prov.RulesetVersion, uuid.UUID(prov.RunID), prov.DerivedAt)
	if err != nil {
		return fmt.Errorf("update scope item %s/%s: %w", item.Kind, item.Code, err)
	}
	return nil
}

func (s *PostgresStore) deactivate(ctx context.Context, q querier, item *models.ScopeItem, prov models.Provenance) error {
	_, err := q.ExecContext(ctx, `
		UPDATE scope_items
		SET active = FALSE,
		    ruleset_code = $4, ruleset_version = $5, run_id = $6,
		    derived_at = $7, updated_at = $7
		WHERE tenant_id = $1 AND kind = $2 AND code = $3
	`, uuid.UUID(item.TenantID), string(item.Kind), item.Code,
		prov.RulesetCode, prov.RulesetVersion, uuid.UUID(prov.RunID), prov.DerivedAt)
	if err != nil {
		return fmt.Errorf("deactivate scope item %s/%s: %w", item.Kind, item.Code, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScopeItem(row rowScanner) (*models.ScopeItem, error) {
	var (
		item          models.ScopeItem
		tenantID      uuid.UUID
		workspaceID   *uuid.UUID
		kind          string
		applicability string
		reason        []byte
		runID         uuid.UUID
	)
	err := row.Scan(&tenantID, &workspaceID, &kind, &item.Code, &applicability, &reason, &item.Active,
		&item.RulesetCode, &item.RulesetVersion, &runID, &item.DerivedAt, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan scope item: %w", err)
	}
	item.TenantID = id.TenantID(tenantID)
	if workspaceID != nil {
		item.WorkspaceID = id.WorkspaceID(*workspaceID)
	}
	item.Kind = catalog.ItemKind(kind)
	item.Applicability = id.Applicability(applicability)
	item.RunID = id.RunID(runID)
	if len(reason) > 0 {
		if err := json.Unmarshal(reason, &item.Reason); err != nil {
			return nil, fmt.Errorf("unmarshal scope reason: %w", err)
		}
	}
	return &item, nil
}

func nullableWorkspace(workspaceID id.WorkspaceID) any {
	if workspaceID.IsNil() {
		return nil
	}
	return uuid.UUID(workspaceID)
}
