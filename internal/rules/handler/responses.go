package handler

import (
	"encoding/json"
	"time"

	"conforma/internal/rules/models"
)

// RulesetResponse is the HTTP representation of one ruleset version.
type RulesetResponse struct {
	Code      string         `json:"code"`
	Version   int            `json:"version"`
	Status    string         `json:"status"`
	Rules     []RuleResponse `json:"rules"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type RuleResponse struct {
	Code          string          `json:"code"`
	Priority      int             `json:"priority"`
	Condition     json.RawMessage `json:"condition"`
	TargetKind    string          `json:"target_kind"`
	TargetCode    string          `json:"target_code"`
	Applicability string          `json:"applicability"`
	Status        string          `json:"status"`
}

func FromRuleset(ruleset *models.Ruleset) *RulesetResponse {
	rules := make([]RuleResponse, 0, len(ruleset.Rules))
	for _, rule := range ruleset.Rules {
		rules = append(rules, RuleResponse{
			Code:          rule.Code,
			Priority:      rule.Priority,
			Condition:     rule.Condition,
			TargetKind:    string(rule.TargetKind),
			TargetCode:    rule.TargetCode,
			Applicability: string(rule.Applicability),
			Status:        string(rule.Status),
		})
	}
	return &RulesetResponse{
		Code:      ruleset.Code,
		Version:   ruleset.Version,
		Status:    string(ruleset.Status),
		Rules:     rules,
		CreatedAt: ruleset.CreatedAt,
		UpdatedAt: ruleset.UpdatedAt,
	}
}

// VersionListResponse wraps all versions of one ruleset code.
type VersionListResponse struct {
	Versions []*RulesetResponse `json:"versions"`
}

func FromRulesets(rulesets []*models.Ruleset) *VersionListResponse {
	resp := &VersionListResponse{Versions: make([]*RulesetResponse, 0, len(rulesets))}
	for _, ruleset := range rulesets {
		resp.Versions = append(resp.Versions, FromRuleset(ruleset))
	}
	return resp
}
