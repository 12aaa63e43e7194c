package domain

import "fmt"

// Applicability classifies how strongly a derived scope item applies.
// This is a domain primitive that enforces validity at parse time.
type Applicability string

const (
	ApplicabilityMandatory   Applicability = "mandatory"
	ApplicabilityRecommended Applicability = "recommended"
	ApplicabilityOptional    Applicability = "optional"
)

// applicabilityRank orders levels for conflict resolution; higher wins.
var applicabilityRank = map[Applicability]int{
	ApplicabilityMandatory:   3,
	ApplicabilityRecommended: 2,
	ApplicabilityOptional:    1,
}

// ParseApplicability validates and returns an Applicability.
func ParseApplicability(s string) (Applicability, error) {
	a := Applicability(s)
	if _, ok := applicabilityRank[a]; !ok {
		return "", fmt.Errorf("unknown applicability: %s", s)
	}
	return a, nil
}

// Outranks reports whether a wins a conflict against other
// (mandatory > recommended > optional).
func (a Applicability) Outranks(other Applicability) bool {
	return applicabilityRank[a] > applicabilityRank[other]
}

// Valid reports whether the value is a known level.
func (a Applicability) Valid() bool {
	_, ok := applicabilityRank[a]
	return ok
}
