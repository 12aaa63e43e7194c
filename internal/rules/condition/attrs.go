package condition

import (
	"sort"

	"github.com/google/cel-go/cel"
)

// AttrType is the evaluation type of a profile attribute.
type AttrType int

const (
	TypeString AttrType = iota
	TypeBool
	TypeStringList
)

// Attributes is the authoritative registry of organization profile
// attributes addressable from rule conditions. A condition referencing a
// name outside this map is rejected at ruleset load time.
//
// Names mirror profile.OrganizationProfile JSON tags.
var Attributes = map[string]AttrType{
	"sector":                  TypeString,
	"country":                 TypeString,
	"organization_type":       TypeString,
	"data_sensitivity":        TypeStringList,
	"hosts_payment_card_data": TypeBool,
	"hosts_personal_data":     TypeBool,
	"hosting_model":           TypeString,
	"size_tier":               TypeString,
	"maturity_tier":           TypeString,
	"cloud_providers":         TypeStringList,
}

// AttributeNames returns the registry keys in stable order, for error
// messages and admin introspection.
func AttributeNames() []string {
	names := make([]string, 0, len(Attributes))
	for name := range Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// envOptions declares every registry attribute as a CEL variable so compile
// catches unknown identifiers as a backstop to registry validation.
func envOptions() []cel.EnvOption {
	opts := make([]cel.EnvOption, 0, len(Attributes))
	for _, name := range AttributeNames() {
		var t *cel.Type
		switch Attributes[name] {
		case TypeBool:
			t = cel.BoolType
		case TypeStringList:
			t = cel.ListType(cel.StringType)
		default:
			t = cel.StringType
		}
		opts = append(opts, cel.Variable(name, t))
	}
	return opts
}
