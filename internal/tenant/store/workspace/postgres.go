package workspace

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"conforma/internal/tenant/models"
	id "conforma/pkg/domain"
	"conforma/pkg/platform/sentinel"
	txcontext "conforma/pkg/platform/tx"
)

// PostgresStore persists workspaces in PostgreSQL. Per-tenant name
// uniqueness is enforced by a unique index on (tenant_id, lower(name)).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) execer(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, w *models.Workspace) error {
	const q = `
		INSERT INTO workspaces (id, tenant_id, name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.execer(ctx).ExecContext(ctx, q,
		uuid.UUID(w.ID), uuid.UUID(w.TenantID), w.Name, string(w.Status), w.CreatedAt, w.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert workspace: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, workspaceID id.WorkspaceID) (*models.Workspace, error) {
	const q = `
		SELECT id, tenant_id, name, status, created_at, updated_at
		FROM workspaces
		WHERE id = $1`

	return s.scanWorkspace(s.execer(ctx).QueryRowContext(ctx, q, uuid.UUID(workspaceID)))
}

func (s *PostgresStore) Update(ctx context.Context, w *models.Workspace) error {
	const q = `
		UPDATE workspaces
		SET status = $2, updated_at = $3
		WHERE id = $1`

	res, err := s.execer(ctx).ExecContext(ctx, q,
		uuid.UUID(w.ID), string(w.Status), w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update workspace: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update workspace rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.Workspace, error) {
	const q = `
		SELECT id, tenant_id, name, status, created_at, updated_at
		FROM workspaces
		WHERE tenant_id = $1
		ORDER BY name`

	rows, err := s.execer(ctx).QueryContext(ctx, q, uuid.UUID(tenantID))
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	var out []*models.Workspace
	for rows.Next() {
		w, err := s.scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanWorkspace(row rowScanner) (*models.Workspace, error) {
	var (
		w           models.Workspace
		workspaceID uuid.UUID
		tenantID    uuid.UUID
		status      string
	)
	err := row.Scan(&workspaceID, &tenantID, &w.Name, &status, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan workspace: %w", err)
	}
	w.ID = id.WorkspaceID(workspaceID)
	w.TenantID = id.TenantID(tenantID)
	w.Status = models.WorkspaceStatus(status)
	return &w, nil
}
