package handler

import (
	"strings"

	"conforma/internal/profile"
	dErrors "conforma/pkg/domain-errors"
)

// DeriveRequest is the HTTP request body for POST /scope/derive.
type DeriveRequest struct {
	RulesetCode string                      `json:"ruleset_code"`
	Profile     profile.OrganizationProfile `json:"profile"`
}

// Validate normalizes and validates the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *DeriveRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.RulesetCode = strings.TrimSpace(r.RulesetCode)
	if r.RulesetCode == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "ruleset_code is required")
	}
	if len(r.RulesetCode) > 64 {
		return dErrors.New(dErrors.CodeInvalidInput, "ruleset_code must be 64 characters or less")
	}
	return r.Profile.Validate()
}
