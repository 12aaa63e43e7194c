// Package condition implements the rule condition grammar: attribute
// comparisons over the organization profile combined with all/any/not.
//
// Expressions are stored as a small JSON tree, compiled once per ruleset
// load into CEL programs, and evaluated per derivation. Evaluation is pure
// and total: no side effects, no recursion beyond the parse-bounded tree
// depth, and every evaluation yields an explanation string whether or not
// the condition matched.
package condition

import (
	"encoding/json"
	"fmt"
	"strings"

	dErrors "conforma/pkg/domain-errors"
)

// Op is a leaf comparison operator.
type Op string

const (
	// OpEq matches when the attribute equals the value.
	OpEq Op = "eq"
	// OpNe matches when the attribute differs from the value.
	OpNe Op = "ne"
	// OpIn matches when the attribute is one of the listed values.
	OpIn Op = "in"
	// OpContains matches when a list attribute contains the value.
	OpContains Op = "contains"
)

// maxDepth bounds the expression tree. Rules are authored by platform
// operators, not tenants, so this is a sanity bound rather than a defense.
const maxDepth = 16

// Expr is one node of a condition expression. Exactly one of All, Any, Not,
// or Attr must be populated.
type Expr struct {
	All []Expr `json:"all,omitempty"`
	Any []Expr `json:"any,omitempty"`
	Not *Expr  `json:"not,omitempty"`

	Attr  string `json:"attr,omitempty"`
	Op    Op     `json:"op,omitempty"`
	Value any    `json:"value,omitempty"`
}

// Parse decodes and validates a stored condition document. All structural
// and attribute errors surface here, at ruleset load time, so evaluation
// never fails on a malformed expression.
func Parse(raw []byte) (*Expr, error) {
	var expr Expr
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&expr); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidRule, "condition is not valid JSON")
	}
	if err := expr.validate(0); err != nil {
		return nil, err
	}
	return &expr, nil
}

func (e *Expr) validate(depth int) error {
	if depth > maxDepth {
		return dErrors.Newf(dErrors.CodeInvalidRule, "condition nesting exceeds %d levels", maxDepth)
	}

	populated := 0
	if len(e.All) > 0 {
		populated++
	}
	if len(e.Any) > 0 {
		populated++
	}
	if e.Not != nil {
		populated++
	}
	if e.Attr != "" {
		populated++
	}
	if populated != 1 {
		return dErrors.New(dErrors.CodeInvalidRule, "condition node must be exactly one of all/any/not/attr")
	}

	switch {
	case len(e.All) > 0:
		for i := range e.All {
			if err := e.All[i].validate(depth + 1); err != nil {
				return err
			}
		}
	case len(e.Any) > 0:
		for i := range e.Any {
			if err := e.Any[i].validate(depth + 1); err != nil {
				return err
			}
		}
	case e.Not != nil:
		return e.Not.validate(depth + 1)
	default:
		return e.validateLeaf()
	}
	return nil
}

func (e *Expr) validateLeaf() error {
	attrType, ok := Attributes[e.Attr]
	if !ok {
		return dErrors.Newf(dErrors.CodeInvalidRule, "condition references unknown attribute %q", e.Attr)
	}

	switch e.Op {
	case OpEq, OpNe:
		if attrType == TypeStringList {
			return dErrors.Newf(dErrors.CodeInvalidRule, "attribute %q is a list; use contains", e.Attr)
		}
		if err := checkScalar(e.Attr, attrType, e.Value); err != nil {
			return err
		}
	case OpIn:
		if attrType != TypeString {
			return dErrors.Newf(dErrors.CodeInvalidRule, "in requires a string attribute, %q is not", e.Attr)
		}
		values, ok := e.Value.([]any)
		if !ok || len(values) == 0 {
			return dErrors.Newf(dErrors.CodeInvalidRule, "in requires a non-empty value list for %q", e.Attr)
		}
		for _, v := range values {
			if _, ok := v.(string); !ok {
				return dErrors.Newf(dErrors.CodeInvalidRule, "in values for %q must be strings", e.Attr)
			}
		}
	case OpContains:
		if attrType != TypeStringList {
			return dErrors.Newf(dErrors.CodeInvalidRule, "contains requires a list attribute, %q is not", e.Attr)
		}
		if _, ok := e.Value.(string); !ok {
			return dErrors.Newf(dErrors.CodeInvalidRule, "contains value for %q must be a string", e.Attr)
		}
	default:
		return dErrors.Newf(dErrors.CodeInvalidRule, "unknown operator %q on attribute %q", e.Op, e.Attr)
	}
	return nil
}

func checkScalar(attr string, attrType AttrType, value any) error {
	switch attrType {
	case TypeString:
		if _, ok := value.(string); !ok {
			return dErrors.Newf(dErrors.CodeInvalidRule, "value for %q must be a string", attr)
		}
	case TypeBool:
		if _, ok := value.(bool); !ok {
			return dErrors.Newf(dErrors.CodeInvalidRule, "value for %q must be a boolean", attr)
		}
	}
	return nil
}

// celSource renders the expression as CEL. Only called on validated trees,
// so value type assertions cannot fail.
func (e *Expr) celSource() string {
	switch {
	case len(e.All) > 0:
		parts := make([]string, len(e.All))
		for i := range e.All {
			parts[i] = "(" + e.All[i].celSource() + ")"
		}
		return strings.Join(parts, " && ")
	case len(e.Any) > 0:
		parts := make([]string, len(e.Any))
		for i := range e.Any {
			parts[i] = "(" + e.Any[i].celSource() + ")"
		}
		return strings.Join(parts, " || ")
	case e.Not != nil:
		return "!(" + e.Not.celSource() + ")"
	}

	switch e.Op {
	case OpEq:
		return fmt.Sprintf("%s == %s", e.Attr, celLiteral(e.Value))
	case OpNe:
		return fmt.Sprintf("%s != %s", e.Attr, celLiteral(e.Value))
	case OpIn:
		values := e.Value.([]any)
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = celLiteral(v)
		}
		return fmt.Sprintf("%s in [%s]", e.Attr, strings.Join(parts, ", "))
	case OpContains:
		return fmt.Sprintf("%s in %s", celLiteral(e.Value), e.Attr)
	}
	return "false"
}

func celLiteral(v any) string {
	switch val := v.(type) {
	case string:
		return fmt.Sprintf("%q", val)
	case bool:
		return fmt.Sprintf("%t", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// Explain renders the expression with the profile's actual values so a
// reader can see why the condition did or did not hold. Produced for every
// evaluation; the engine keeps it only for matches, but non-match
// explanations support "why did X not apply" debugging.
func (e *Expr) Explain(attrs map[string]any) string {
	switch {
	case len(e.All) > 0:
		parts := make([]string, len(e.All))
		for i := range e.All {
			parts[i] = e.All[i].Explain(attrs)
		}
		return "(" + strings.Join(parts, " AND ") + ")"
	case len(e.Any) > 0:
		parts := make([]string, len(e.Any))
		for i := range e.Any {
			parts[i] = e.Any[i].Explain(attrs)
		}
		return "(" + strings.Join(parts, " OR ") + ")"
	case e.Not != nil:
		return "NOT " + e.Not.Explain(attrs)
	}

	actual, ok := attrs[e.Attr]
	if !ok {
		actual = "<unset>"
	}
	switch e.Op {
	case OpIn:
		return fmt.Sprintf("%s in %v [actual: %v]", e.Attr, e.Value, actual)
	case OpContains:
		return fmt.Sprintf("%s contains %v [actual: %v]", e.Attr, e.Value, actual)
	case OpNe:
		return fmt.Sprintf("%s != %v [actual: %v]", e.Attr, e.Value, actual)
	default:
		return fmt.Sprintf("%s = %v [actual: %v]", e.Attr, e.Value, actual)
	}
}

// Canonical returns the compact JSON form used as the compile cache key and
// as the stored representation.
func (e *Expr) Canonical() string {
	raw, err := json.Marshal(e)
	if err != nil {
		// Expr is marshal-safe by construction; treat failure as a bug.
		panic(fmt.Sprintf("condition: marshal validated expression: %v", err))
	}
	return string(raw)
}
