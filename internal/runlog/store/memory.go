package store

import (
	"context"
	"sort"
	"sync"

	"conforma/internal/isolation"
	"conforma/internal/runlog/models"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/sentinel"
)

// MemoryStore keeps the execution log in process memory. Append-only: the
// only permitted mutation is closing a running record.
type MemoryStore struct {
	guard *isolation.Guard
	mu    sync.RWMutex
	runs  map[id.RunID]*models.RunRecord
}

// NewMemory constructs an empty in-memory run log.
func NewMemory(guard *isolation.Guard) *MemoryStore {
	return &MemoryStore{
		guard: guard,
		runs:  make(map[id.RunID]*models.RunRecord),
	}
}

// Append records a new running entry.
func (s *MemoryStore) Append(ctx context.Context, scope isolation.Scope, record *models.RunRecord) error {
	if err := s.guard.CheckWrite(ctx, scope, record, "record_run"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[record.ID]; exists {
		return sentinel.ErrConflict
	}
	copied := *record
	s.runs[record.ID] = &copied
	return nil
}

// Close transitions a running record to its terminal status. The caller
// mutates the record through MarkSucceeded or MarkFailed first; Close
// persists it.
func (s *MemoryStore) Close(ctx context.Context, scope isolation.Scope, record *models.RunRecord) error {
	if err := s.guard.CheckWrite(ctx, scope, record, "record_run"); err != nil {
		return err
	}
	if !record.Terminal() {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "run %s is not terminal", record.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored, exists := s.runs[record.ID]
	if !exists {
		return sentinel.ErrNotFound
	}
	if stored.Terminal() {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "run %s is already %s", record.ID, stored.Status)
	}
	copied := *record
	s.runs[record.ID] = &copied
	return nil
}

// History returns the runs visible under the scope, newest first, optionally
// filtered by ruleset code. A zero limit means no limit.
func (s *MemoryStore) History(ctx context.Context, scope isolation.Scope, rulesetCode string, limit int) ([]*models.RunRecord, error) {
	if scope.IsZero() {
		return nil, dErrors.New(dErrors.CodeInternal, "run history requires a resolved scope")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []*models.RunRecord
	for _, run := range s.runs {
		if rulesetCode != "" && run.RulesetCode != rulesetCode {
			continue
		}
		copied := *run
		rows = append(rows, &copied)
	}
	rows = isolation.VisibleTo(s.guard, scope, rows)
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].StartedAt.Equal(rows[j].StartedAt) {
			return rows[i].StartedAt.After(rows[j].StartedAt)
		}
		return rows[i].ID.String() > rows[j].ID.String()
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}
