package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"conforma/internal/isolation"
	"conforma/internal/runlog/models"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/sentinel"
	txcontext "conforma/pkg/platform/tx"
)

// PostgresStore persists the execution log in PostgreSQL. Append runs
// outside the derivation transaction on purpose: the running record must
// survive a rolled-back derivation.
type PostgresStore struct {
	db    *sql.DB
	guard *isolation.Guard
}

// NewPostgres constructs a PostgreSQL-backed run log.
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

const uniqueViolation = "23505"

// Append records a new running entry.
func (s *PostgresStore) Append(ctx context.Context, scope isolation.Scope, record *models.RunRecord) error {
	if err := s.guard.CheckWrite(ctx, scope, record, "record_run"); err != nil {
		return err
	}
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO derivation_runs (
			id, tenant_id, workspace_id, ruleset_code, ruleset_version,
			status, error_kind, error_message,
			rules_evaluated, rules_matched, added, updated, deactivated, unchanged,
			triggered_by, started_at, finished_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NULL)
	`, uuid.UUID(record.ID), uuid.UUID(record.TenantID), nullableWorkspace(record.WorkspaceID),
		record.RulesetCode, record.RulesetVersion,
		string(record.Status), string(record.ErrorKind), record.ErrorMessage,
		record.RulesEvaluated, record.RulesMatched,
		record.Added, record.Updated, record.Deactivated, record.Unchanged,
		record.TriggeredBy, record.StartedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert run record: %w", err)
	}
	return nil
}

// Close transitions a running record to its terminal status. The WHERE guard
// on status makes terminal records immutable at the database level too.
func (s *PostgresStore) Close(ctx context.Context, scope isolation.Scope, record *models.RunRecord) error {
	if err := s.guard.CheckWrite(ctx, scope, record, "record_run"); err != nil {
		return err
	}
	if !record.Terminal() {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "run %s is not terminal", record.ID)
	}

	result, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE derivation_runs
		SET status = $2, error_kind = $3, error_message = $4,
		    ruleset_version = $5,
		    rules_evaluated = $6, rules_matched = $7,
		    added = $8, updated = $9, deactivated = $10, unchanged = $11,
		    finished_at = $12
		WHERE id = $1 AND status = 'running'
	`, uuid.UUID(record.ID),
		string(record.Status), string(record.ErrorKind), record.ErrorMessage,
		record.RulesetVersion,
		record.RulesEvaluated, record.RulesMatched,
		record.Added, record.Updated, record.Deactivated, record.Unchanged,
		record.FinishedAt)
	if err != nil {
		return fmt.Errorf("close run record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("close run record rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// History returns the runs visible under the scope, newest first, optionally
// filtered by ruleset code. A zero limit means no limit.
func (s *PostgresStore) History(ctx context.Context, scope isolation.Scope, rulesetCode string, limit int) ([]*models.RunRecord, error) {
	if scope.IsZero() {
		return nil, dErrors.New(dErrors.CodeInternal, "run history requires a resolved scope")
	}

	predicate, args := isolation.Predicate(scope, "tenant_id", "workspace_id", 1)
	query := `
		SELECT id, tenant_id, workspace_id, ruleset_code, ruleset_version,
		       status, error_kind, error_message,
		       rules_evaluated, rules_matched, added, updated, deactivated, unchanged,
		       triggered_by, started_at, finished_at
		FROM derivation_runs
		WHERE ` + predicate
	if rulesetCode != "" {
		args = append(args, rulesetCode)
		query += fmt.Sprintf(" AND ruleset_code = $%d", len(args))
	}
	query += " ORDER BY started_at DESC, id DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query run history: %w", err)
	}
	defer rows.Close()

	var records []*models.RunRecord
	for rows.Next() {
		record, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run history: %w", err)
	}
	return records, nil
}

func scanRun(rows *sql.Rows) (*models.RunRecord, error) {
	var (
		record      models.RunRecord
		runID       uuid.UUID
		tenantID    uuid.UUID
		workspaceID *uuid.UUID
		status      string
		errorKind   string
		finishedAt  sql.NullTime
	)
	err := rows.Scan(&runID, &tenantID, &workspaceID, &record.RulesetCode, &record.RulesetVersion,
		&status, &errorKind, &record.ErrorMessage,
		&record.RulesEvaluated, &record.RulesMatched,
		&record.Added, &record.Updated, &record.Deactivated, &record.Unchanged,
		&record.TriggeredBy, &record.StartedAt, &finishedAt)
	if err != nil {
		return nil, fmt.Errorf("scan run record: %w", err)
	}
	record.ID = id.RunID(runID)
	record.TenantID = id.TenantID(tenantID)
	if workspaceID != nil {
		record.WorkspaceID = id.WorkspaceID(*workspaceID)
	}
	record.Status = models.RunStatus(status)
	record.ErrorKind = models.ErrorKind(errorKind)
	if finishedAt.Valid {
		record.FinishedAt = finishedAt.Time
	}
	return &record, nil
}

func nullableWorkspace(workspaceID id.WorkspaceID) any {
	if workspaceID.IsNil() {
		return nil
	}
	return uuid.UUID(workspaceID)
}
