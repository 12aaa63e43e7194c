// Package profile defines the organization profile consumed by scope
// derivation. The profile is captured by the onboarding collaborator and is
// immutable for the duration of one derivation call.
package profile

import (
	"strings"

	dErrors "conforma/pkg/domain-errors"
	strutil "conforma/pkg/platform/strings"
)

// OrganizationProfile describes one tenant's organization at derivation time.
//
// Field names here and attribute names in rule conditions are the same
// vocabulary; condition.Attributes is the authoritative list.
type OrganizationProfile struct {
	Sector               string   `json:"sector"`
	Country              string   `json:"country"`
	OrganizationType     string   `json:"organization_type"`
	DataSensitivity      []string `json:"data_sensitivity"`
	HostsPaymentCardData bool     `json:"hosts_payment_card_data"`
	HostsPersonalData    bool     `json:"hosts_personal_data"`
	HostingModel         string   `json:"hosting_model"`
	SizeTier             string   `json:"size_tier"`
	MaturityTier         string   `json:"maturity_tier"`
	CloudProviders       []string `json:"cloud_providers"`
}

// Validate enforces the minimal shape the evaluator depends on and
// normalizes the list attributes so rule authors never have to defend
// against duplicates or stray whitespace.
func (p *OrganizationProfile) Validate() error {
	if strings.TrimSpace(p.Sector) == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "profile sector is required")
	}
	if strings.TrimSpace(p.Country) == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "profile country is required")
	}
	p.DataSensitivity = strutil.DedupeAndTrim(p.DataSensitivity)
	// Provider names compare case-insensitively; rules are written against
	// the lowercase form.
	p.CloudProviders = strutil.DedupeAndTrimLower(p.CloudProviders)
	return nil
}

// Attributes flattens the profile into the evaluation activation map. Slice
// values are copied so a compiled program can never alias caller state.
func (p *OrganizationProfile) Attributes() map[string]any {
	return map[string]any{
		"sector":                  p.Sector,
		"country":                 p.Country,
		"organization_type":       p.OrganizationType,
		"data_sensitivity":        append([]string(nil), p.DataSensitivity...),
		"hosts_payment_card_data": p.HostsPaymentCardData,
		"hosts_personal_data":     p.HostsPersonalData,
		"hosting_model":           p.HostingModel,
		"size_tier":               p.SizeTier,
		"maturity_tier":           p.MaturityTier,
		"cloud_providers":         append([]string(nil), p.CloudProviders...),
	}
}
