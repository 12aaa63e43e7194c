package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"conforma/internal/rules/models"
	"conforma/pkg/platform/sentinel"
)

// MemoryStore keeps rulesets in process memory. Used by unit tests and local
// development; semantics match the Postgres store, including the
// single-active-version guarantee of Activate.
type MemoryStore struct {
	mu       sync.RWMutex
	rulesets map[string][]*models.Ruleset
}

// NewMemory constructs an empty in-memory ruleset store.
func NewMemory() *MemoryStore {
	return &MemoryStore{rulesets: make(map[string][]*models.Ruleset)}
}

func (s *MemoryStore) Create(_ context.Context, ruleset *models.Ruleset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.rulesets[ruleset.Code] {
		if existing.Version == ruleset.Version {
			return sentinel.ErrConflict
		}
	}
	s.rulesets[ruleset.Code] = append(s.rulesets[ruleset.Code], copyRuleset(ruleset))
	return nil
}

func (s *MemoryStore) Find(_ context.Context, code string, version int) (*models.Ruleset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rs := range s.rulesets[code] {
		if rs.Version == version {
			return copyRuleset(rs), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryStore) ListVersions(_ context.Context, code string) ([]*models.Ruleset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Ruleset, 0, len(s.rulesets[code]))
	for _, rs := range s.rulesets[code] {
		out = append(out, copyRuleset(rs))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (s *MemoryStore) ListActiveVersions(_ context.Context, code string) ([]*models.Ruleset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Ruleset
	for _, rs := range s.rulesets[code] {
		if rs.Status == models.StatusActive {
			out = append(out, copyRuleset(rs))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (s *MemoryStore) Activate(_ context.Context, code string, version int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.findLocked(code, version)
	if target == nil {
		return sentinel.ErrNotFound
	}
	if err := target.CanActivate(); err != nil {
		return sentinel.ErrInvalidState
	}
	for _, rs := range s.rulesets[code] {
		if rs.Status == models.StatusActive {
			rs.ApplyDeprecation(now)
		}
	}
	target.ApplyActivation(now)
	return nil
}

func (s *MemoryStore) Deprecate(_ context.Context, code string, version int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.findLocked(code, version)
	if target == nil {
		return sentinel.ErrNotFound
	}
	if err := target.CanDeprecate(); err != nil {
		return sentinel.ErrInvalidState
	}
	target.ApplyDeprecation(now)
	return nil
}

func (s *MemoryStore) findLocked(code string, version int) *models.Ruleset {
	for _, rs := range s.rulesets[code] {
		if rs.Version == version {
			return rs
		}
	}
	return nil
}

func copyRuleset(rs *models.Ruleset) *models.Ruleset {
	copied := *rs
	copied.Rules = make([]*models.Rule, len(rs.Rules))
	for i, r := range rs.Rules {
		rule := *r
		copied.Rules[i] = &rule
	}
	return &copied
}
