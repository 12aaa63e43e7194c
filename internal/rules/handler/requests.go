package handler

import (
	"encoding/json"
	"strings"

	"conforma/internal/catalog"
	"conforma/internal/rules/models"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

// CreateRulesetRequest is the HTTP request body for POST /admin/rulesets.
type CreateRulesetRequest struct {
	Code    string        `json:"code"`
	Version int           `json:"version"`
	Rules   []RuleRequest `json:"rules"`
}

// RuleRequest is one rule within a ruleset creation request.
type RuleRequest struct {
	Code          string          `json:"code"`
	Priority      int             `json:"priority"`
	Condition     json.RawMessage `json:"condition"`
	TargetKind    string          `json:"target_kind"`
	TargetCode    string          `json:"target_code"`
	Applicability string          `json:"applicability"`
	// Status is optional and defaults to active. A new version can carry a
	// rule as deprecated so it stays in storage but out of the evaluation set.
	Status string `json:"status,omitempty"`
}

// Validate normalizes and validates the request. Full semantic validation
// of conditions and catalog targets happens in the service; this only
// rejects requests that are structurally unusable.
func (r *CreateRulesetRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Code = strings.TrimSpace(r.Code)
	if r.Code == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "code is required")
	}
	if len(r.Code) > 64 {
		return dErrors.New(dErrors.CodeInvalidInput, "code must be 64 characters or less")
	}
	if r.Version < 1 {
		return dErrors.New(dErrors.CodeInvalidInput, "version must be positive")
	}
	if len(r.Rules) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "at least one rule is required")
	}
	for i := range r.Rules {
		if err := r.Rules[i].validate(); err != nil {
			return err
		}
	}
	return nil
}

func (r *RuleRequest) validate() error {
	r.Code = strings.TrimSpace(r.Code)
	if r.Code == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "rule code is required")
	}
	if len(r.Condition) == 0 {
		return dErrors.Newf(dErrors.CodeInvalidInput, "rule %s: condition is required", r.Code)
	}
	if strings.TrimSpace(r.TargetCode) == "" {
		return dErrors.Newf(dErrors.CodeInvalidInput, "rule %s: target_code is required", r.Code)
	}
	switch models.Status(r.Status) {
	case "", models.StatusActive, models.StatusDeprecated:
	default:
		return dErrors.Newf(dErrors.CodeInvalidInput, "rule %s: status must be active or deprecated", r.Code)
	}
	return nil
}

// ToModels converts the request rules into domain rules. Rules default to
// active unless the request marks them deprecated.
func (r *CreateRulesetRequest) ToModels() []*models.Rule {
	rules := make([]*models.Rule, 0, len(r.Rules))
	for _, req := range r.Rules {
		status := models.Status(req.Status)
		if status == "" {
			status = models.StatusActive
		}
		rules = append(rules, &models.Rule{
			Code:          req.Code,
			Priority:      req.Priority,
			Condition:     req.Condition,
			TargetKind:    catalog.ItemKind(req.TargetKind),
			TargetCode:    strings.TrimSpace(req.TargetCode),
			Applicability: id.Applicability(req.Applicability),
			Status:        status,
		})
	}
	return rules
}
