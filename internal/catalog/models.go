// Package catalog holds the platform's static reference data: the compliance
// baselines, control packages, and document templates that scope derivation
// activates. The catalog is platform-owned and shared read-only across
// tenants; the engine consumes it, never produces it.
package catalog

// ItemKind distinguishes the three catalog families.
type ItemKind string

const (
	KindBaseline ItemKind = "baseline"
	KindPackage  ItemKind = "package"
	KindTemplate ItemKind = "template"
)

// Valid reports whether the kind is one of the known families.
func (k ItemKind) Valid() bool {
	switch k {
	case KindBaseline, KindPackage, KindTemplate:
		return true
	}
	return false
}

// Item is one catalog entry, identified by (kind, code).
type Item struct {
	Kind        ItemKind `json:"kind"`
	Code        string   `json:"code"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
}
