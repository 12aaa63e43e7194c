package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"conforma/internal/catalog"
	"conforma/internal/rules/models"
	id "conforma/pkg/domain"
	"conforma/pkg/platform/sentinel"
	txcontext "conforma/pkg/platform/tx"
)

// PostgresStore persists rulesets in PostgreSQL. Rule rows are immutable once
// the owning ruleset leaves draft; lifecycle changes touch the rulesets table
// only.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed ruleset store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const uniqueViolation = "23505"

func (s *PostgresStore) Create(ctx context.Context, ruleset *models.Ruleset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create ruleset: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rulesets (id, code, version, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.UUID(ruleset.ID), ruleset.Code, ruleset.Version, string(ruleset.Status), ruleset.CreatedAt, ruleset.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert ruleset: %w", err)
	}

	for _, rule := range ruleset.Rules {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO rules (ruleset_id, code, priority, condition, target_kind, target_code, applicability, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, uuid.UUID(ruleset.ID), rule.Code, rule.Priority, []byte(rule.Condition),
			string(rule.TargetKind), rule.TargetCode, string(rule.Applicability), string(rule.Status))
		if err != nil {
			return fmt.Errorf("insert rule %s: %w", rule.Code, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create ruleset: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, code string, version int) (*models.Ruleset, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT id, code, version, status, created_at, updated_at
		FROM rulesets
		WHERE code = $1 AND version = $2
	`, code, version)
	ruleset, err := scanRuleset(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadRules(ctx, ruleset); err != nil {
		return nil, err
	}
	return ruleset, nil
}

func (s *PostgresStore) ListVersions(ctx context.Context, code string) ([]*models.Ruleset, error) {
	return s.list(ctx, `
		SELECT id, code, version, status, created_at, updated_at
		FROM rulesets
		WHERE code = $1
		ORDER BY version
	`, code)
}

func (s *PostgresStore) ListActiveVersions(ctx context.Context, code string) ([]*models.Ruleset, error) {
	return s.list(ctx, `
		SELECT id, code, version, status, created_at, updated_at
		FROM rulesets
		WHERE code = $1 AND status = 'active'
		ORDER BY version
	`, code)
}

func (s *PostgresStore) list(ctx context.Context, query string, code string) ([]*models.Ruleset, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, code)
	if err != nil {
		return nil, fmt.Errorf("query rulesets: %w", err)
	}
	defer rows.Close()

	var rulesets []*models.Ruleset
	for rows.Next() {
		ruleset, err := scanRuleset(rows)
		if err != nil {
			return nil, err
		}
		rulesets = append(rulesets, ruleset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rulesets: %w", err)
	}

	for _, ruleset := range rulesets {
		if err := s.loadRules(ctx, ruleset); err != nil {
			return nil, err
		}
	}
	return rulesets, nil
}

// Activate promotes a draft to active and deprecates the previously active
// version in the same transaction, so the single-active invariant holds at
// every commit point.
func (s *PostgresStore) Activate(ctx context.Context, code string, version int, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin activate ruleset: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM rulesets WHERE code = $1 AND version = $2 FOR UPDATE
	`, code, version).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("lock ruleset: %w", err)
	}
	if models.Status(status) != models.StatusDraft {
		return sentinel.ErrInvalidState
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE rulesets SET status = 'deprecated', updated_at = $2
		WHERE code = $1 AND status = 'active'
	`, code, now)
	if err != nil {
		return fmt.Errorf("deprecate previous active: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE rulesets SET status = 'active', updated_at = $3
		WHERE code = $1 AND version = $2
	`, code, version, now)
	if err != nil {
		return fmt.Errorf("activate ruleset: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit activate ruleset: %w", err)
	}
	return nil
}

func (s *PostgresStore) Deprecate(ctx context.Context, code string, version int, now time.Time) error {
	result, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE rulesets SET status = 'deprecated', updated_at = $3
		WHERE code = $1 AND version = $2 AND status = 'active'
	`, code, version, now)
	if err != nil {
		return fmt.Errorf("deprecate ruleset: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deprecate ruleset rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		err = s.execer(ctx).QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM rulesets WHERE code = $1 AND version = $2)
		`, code, version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check ruleset exists: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

func (s *PostgresStore) loadRules(ctx context.Context, ruleset *models.Ruleset) error {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT code, priority, condition, target_kind, target_code, applicability, status
		FROM rules
		WHERE ruleset_id = $1
		ORDER BY priority, code
	`, uuid.UUID(ruleset.ID))
	if err != nil {
		return fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rule          models.Rule
			conditionDoc  []byte
			targetKind    string
			applicability string
			status        string
		)
		err := rows.Scan(&rule.Code, &rule.Priority, &conditionDoc, &targetKind, &rule.TargetCode, &applicability, &status)
		if err != nil {
			return fmt.Errorf("scan rule: %w", err)
		}
		rule.Condition = json.RawMessage(conditionDoc)
		rule.TargetKind = catalog.ItemKind(targetKind)
		rule.Applicability = id.Applicability(applicability)
		rule.Status = models.Status(status)
		ruleset.Rules = append(ruleset.Rules, &rule)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate rules: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRuleset(row rowScanner) (*models.Ruleset, error) {
	var (
		rulesetID uuid.UUID
		ruleset   models.Ruleset
		status    string
	)
	err := row.Scan(&rulesetID, &ruleset.Code, &ruleset.Version, &status, &ruleset.CreatedAt, &ruleset.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan ruleset: %w", err)
	}
	ruleset.ID = id.RulesetID(rulesetID)
	ruleset.Status = models.Status(status)
	return &ruleset, nil
}
