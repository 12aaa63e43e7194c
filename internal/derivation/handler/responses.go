package handler

import (
	"time"

	"conforma/internal/derivation/service"
	runmodels "conforma/internal/runlog/models"
	scopemodels "conforma/internal/scope/models"
)

// DeriveResponse is the HTTP response for POST /scope/derive.
type DeriveResponse struct {
	RunID          string `json:"run_id"`
	RulesetCode    string `json:"ruleset_code"`
	RulesetVersion int    `json:"ruleset_version"`
	RulesEvaluated int    `json:"rules_evaluated"`
	RulesMatched   int    `json:"rules_matched"`
	Added          int    `json:"added"`
	Updated        int    `json:"updated"`
	Deactivated    int    `json:"deactivated"`
	Unchanged      int    `json:"unchanged"`
	NoChanges      bool   `json:"no_changes"`
}

func FromResult(result *service.Result) *DeriveResponse {
	return &DeriveResponse{
		RunID:          result.RunID.String(),
		RulesetCode:    result.RulesetCode,
		RulesetVersion: result.RulesetVersion,
		RulesEvaluated: result.RulesEvaluated,
		RulesMatched:   result.RulesMatched,
		Added:          result.Reconciled.Added,
		Updated:        result.Reconciled.Updated,
		Deactivated:    result.Reconciled.Deactivated,
		Unchanged:      result.Reconciled.Unchanged,
		NoChanges:      result.NoChanges(),
	}
}

// ScopeItemResponse is the HTTP representation of one derived scope item.
type ScopeItemResponse struct {
	Kind           string       `json:"kind"`
	Code           string       `json:"code"`
	Applicability  string       `json:"applicability"`
	Reason         []ReasonRule `json:"reason"`
	RulesetCode    string       `json:"ruleset_code"`
	RulesetVersion int          `json:"ruleset_version"`
	DerivedAt      time.Time    `json:"derived_at"`
}

type ReasonRule struct {
	Code        string `json:"code"`
	Explanation string `json:"explanation"`
}

// ScopeResponse wraps the caller's active scope.
type ScopeResponse struct {
	Items []*ScopeItemResponse `json:"items"`
}

func FromScopeItems(items []*scopemodels.ScopeItem) *ScopeResponse {
	resp := &ScopeResponse{Items: make([]*ScopeItemResponse, 0, len(items))}
	for _, item := range items {
		reasons := make([]ReasonRule, 0, len(item.Reason.Rules))
		for _, r := range item.Reason.Rules {
			reasons = append(reasons, ReasonRule{Code: r.Code, Explanation: r.Explanation})
		}
		resp.Items = append(resp.Items, &ScopeItemResponse{
			Kind:           string(item.Kind),
			Code:           item.Code,
			Applicability:  string(item.Applicability),
			Reason:         reasons,
			RulesetCode:    item.RulesetCode,
			RulesetVersion: item.RulesetVersion,
			DerivedAt:      item.DerivedAt,
		})
	}
	return resp
}

// RunResponse is the HTTP representation of one derivation run.
type RunResponse struct {
	RunID          string     `json:"run_id"`
	RulesetCode    string     `json:"ruleset_code"`
	RulesetVersion int        `json:"ruleset_version"`
	Status         string     `json:"status"`
	ErrorKind      string     `json:"error_kind,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	RulesEvaluated int        `json:"rules_evaluated"`
	RulesMatched   int        `json:"rules_matched"`
	Added          int        `json:"added"`
	Updated        int        `json:"updated"`
	Deactivated    int        `json:"deactivated"`
	TriggeredBy    string     `json:"triggered_by"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// HistoryResponse wraps the caller's run history, newest first.
type HistoryResponse struct {
	Runs []*RunResponse `json:"runs"`
}

func FromRuns(runs []*runmodels.RunRecord) *HistoryResponse {
	resp := &HistoryResponse{Runs: make([]*RunResponse, 0, len(runs))}
	for _, run := range runs {
		r := &RunResponse{
			RunID:          run.ID.String(),
			RulesetCode:    run.RulesetCode,
			RulesetVersion: run.RulesetVersion,
			Status:         string(run.Status),
			ErrorKind:      string(run.ErrorKind),
			ErrorMessage:   run.ErrorMessage,
			RulesEvaluated: run.RulesEvaluated,
			RulesMatched:   run.RulesMatched,
			Added:          run.Added,
			Updated:        run.Updated,
			Deactivated:    run.Deactivated,
			TriggeredBy:    run.TriggeredBy,
			StartedAt:      run.StartedAt,
		}
		if !run.FinishedAt.IsZero() {
			finished := run.FinishedAt
			r.FinishedAt = &finished
		}
		resp.Runs = append(resp.Runs, r)
	}
	return resp
}
