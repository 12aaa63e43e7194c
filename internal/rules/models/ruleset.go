package models

import (
	"encoding/json"
	"sort"
	"time"

	"conforma/internal/catalog"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

// Status is the shared lifecycle for rulesets and rules.
// Transitions: Draft → Active → Deprecated, forward only.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusActive     Status = "active"
	StatusDeprecated Status = "deprecated"
)

var statusOrder = map[Status]int{
	StatusDraft:      1,
	StatusActive:     2,
	StatusDeprecated: 3,
}

// CanTransitionTo permits only forward lifecycle movement.
func (s Status) CanTransitionTo(next Status) bool {
	cur, ok := statusOrder[s]
	if !ok {
		return false
	}
	nxt, ok := statusOrder[next]
	if !ok {
		return false
	}
	return nxt == cur+1
}

// Valid reports whether the status is a known lifecycle state.
func (s Status) Valid() bool {
	_, ok := statusOrder[s]
	return ok
}

// Ruleset is the aggregate root for one versioned rule collection.
//
// Invariants:
//   - Code is non-empty; Version is positive
//   - At most one version per code is Active platform-wide (enforced by the
//     store's activation path and checked again at load)
//   - Rule codes are unique within the ruleset
//   - Rule content is immutable once the ruleset is Active
type Ruleset struct {
	ID        id.RulesetID `json:"id"`
	Code      string       `json:"code"`
	Version   int          `json:"version"`
	Status    Status       `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Rules     []*Rule      `json:"rules"`
}

// Rule is one applicability decision within a ruleset.
//
// Priority orders evaluation: lower evaluates first, ties broken by Code.
// A deprecated rule is excluded from evaluation but retained for audit.
type Rule struct {
	Code          string           `json:"code"`
	Priority      int              `json:"priority"`
	Condition     json.RawMessage  `json:"condition"`
	TargetKind    catalog.ItemKind `json:"target_kind"`
	TargetCode    string           `json:"target_code"`
	Applicability id.Applicability `json:"applicability"`
	Status        Status           `json:"status"`
}

// NewRuleset validates and constructs a draft ruleset.
func NewRuleset(rulesetID id.RulesetID, code string, version int, rules []*Rule, now time.Time) (*Ruleset, error) {
	if code == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "ruleset code cannot be empty")
	}
	if version < 1 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "ruleset version must be positive")
	}
	seen := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		if err := r.validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[r.Code]; dup {
			return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "duplicate rule code %q", r.Code)
		}
		seen[r.Code] = struct{}{}
	}
	return &Ruleset{
		ID:        rulesetID,
		Code:      code,
		Version:   version,
		Status:    StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
		Rules:     rules,
	}, nil
}

func (r *Rule) validate() error {
	if r.Code == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "rule code cannot be empty")
	}
	if !r.TargetKind.Valid() {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "rule %q has unknown target kind %q", r.Code, r.TargetKind)
	}
	if r.TargetCode == "" {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "rule %q has no target code", r.Code)
	}
	if !r.Applicability.Valid() {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "rule %q has unknown applicability %q", r.Code, r.Applicability)
	}
	if !r.Status.Valid() {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "rule %q has unknown status %q", r.Code, r.Status)
	}
	return nil
}

// EvaluationOrder returns the active rules sorted by (priority ascending,
// code ascending). The deterministic order is what makes two derivations of
// the same inputs reproducible, which auditability depends on.
func (rs *Ruleset) EvaluationOrder() []*Rule {
	active := make([]*Rule, 0, len(rs.Rules))
	for _, r := range rs.Rules {
		if r.Status == StatusActive {
			active = append(active, r)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Priority != active[j].Priority {
			return active[i].Priority < active[j].Priority
		}
		return active[i].Code < active[j].Code
	})
	return active
}

// CanActivate checks the draft → active transition.
func (rs *Ruleset) CanActivate() error {
	if !rs.Status.CanTransitionTo(StatusActive) {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "ruleset %s v%d is %s, not draft", rs.Code, rs.Version, rs.Status)
	}
	return nil
}

// ApplyActivation transitions the ruleset to active.
func (rs *Ruleset) ApplyActivation(now time.Time) {
	rs.Status = StatusActive
	rs.UpdatedAt = now
}

// CanDeprecate checks the active → deprecated transition.
func (rs *Ruleset) CanDeprecate() error {
	if !rs.Status.CanTransitionTo(StatusDeprecated) {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "ruleset %s v%d is %s, not active", rs.Code, rs.Version, rs.Status)
	}
	return nil
}

// ApplyDeprecation transitions the ruleset to deprecated.
func (rs *Ruleset) ApplyDeprecation(now time.Time) {
	rs.Status = StatusDeprecated
	rs.UpdatedAt = now
}
