// Package rules evaluates declarative conditions against table cells for
// conditional formatting and business-rule validation.
//
// Most rules are plain data (operator + operand), which keeps them
// serializable, testable, and cacheable. Procedural logic is still
// supported through two escape hatches: a per-condition Predicate and a
// whole-row Evaluate function.
package rules

// Operator identifies a comparison in a Condition.
type Operator string

const (
	// Equality. OpEquals compares loosely ("18" matches 18);
	// OpStrictEquals requires identical type and value.
	OpEquals       Operator = "=="
	OpStrictEquals Operator = "==="
	OpNotEquals    Operator = "!="
	OpStrictNotEq  Operator = "!=="

	// Numeric comparisons. Operands are coerced to numbers; if either
	// side fails to parse the comparison resolves false.
	OpGreater   Operator = ">"
	OpGreaterEq Operator = ">="
	OpLess      Operator = "<"
	OpLessEq    Operator = "<="

	// String predicates.
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpRegex       Operator = "regex"

	// Set predicates. The operand is a list; membership is loose.
	OpIn    Operator = "in"
	OpNotIn Operator = "not_in"

	// Nullness predicates. is_empty also treats whitespace-only
	// strings as empty.
	OpIsNull     Operator = "is_null"
	OpIsNotNull  Operator = "is_not_null"
	OpIsEmpty    Operator = "is_empty"
	OpIsNotEmpty Operator = "is_not_empty"

	// OpCustom invokes the condition's Predicate.
	OpCustom Operator = "custom"
)

// Condition is the serializable core of a rule.
type Condition struct {
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`

	// Predicate backs OpCustom. It receives the full row, the column
	// under evaluation, and the cell value. A panic inside the predicate
	// is caught and treated as non-matching.
	Predicate func(row map[string]any, column string, value any) bool `json:"-"`
}

// Style is a set of presentation properties ("background", "color", ...)
// applied to a matching cell. Styles from multiple rules are merged
// property by property in list order: last applied wins.
type Style map[string]string

// Rule binds a condition to a field, with either a Style (conditional
// formatting) or a Message (business-rule validation).
type Rule struct {
	Field     string    `json:"field"`
	Condition Condition `json:"condition"`
	Style     Style     `json:"style,omitempty"`
	Message   string    `json:"message,omitempty"`

	// Evaluate is the procedural escape hatch: when set it replaces the
	// declarative condition entirely and judges the whole row.
	Evaluate func(row map[string]any) bool `json:"-"`
}

// Merge overlays styles in order. Later properties override earlier ones;
// untouched properties survive.
func Merge(styles ...Style) Style {
	out := Style{}
	for _, s := range styles {
		for k, v := range s {
			out[k] = v
		}
	}
	return out
}
