package rules

// eval.go implements condition evaluation.
//
// Evaluation must never crash rendering: unknown operators, panicking
// predicates, and bad regex patterns all degrade to "rule does not match"
// with a logged warning. Results are memoized per (rule, value) pair and
// never invalidated automatically; if a predicate closes over external
// mutable state its cached results may go stale. That is documented
// behavior, not a bug.

import (
	"fmt"
	"log/slog"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/tablekit/tablekit/format"
)

// EvaluationError reports a failure inside a rule, such as a panicking
// predicate or an invalid regex. It is logged, never propagated.
type EvaluationError struct {
	Operator Operator
	Field    string
	Err      error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("rule %s on %q: %v", e.Operator, e.Field, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// Evaluator evaluates rules with memoization.
type Evaluator struct {
	mu    sync.Mutex
	cache map[string]bool
	log   *slog.Logger
}

// NewEvaluator creates an Evaluator. A nil logger uses slog.Default.
func NewEvaluator(log *slog.Logger) *Evaluator {
	if log == nil {
		log = slog.Default()
	}
	return &Evaluator{cache: make(map[string]bool), log: log}
}

// Reset clears the memoization cache. Called on table teardown.
func (e *Evaluator) Reset() {
	e.mu.Lock()
	e.cache = make(map[string]bool)
	e.mu.Unlock()
}

// CacheSize returns the number of memoized results.
func (e *Evaluator) CacheSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cache)
}

// EvaluateRule reports whether the rule matches the row. Declarative rules
// are memoized by a structural key of (rule, value); procedural rules are
// keyed by function identity and the full row is out of the key, so
// closures over mutable state can serve stale results.
func (e *Evaluator) EvaluateRule(rule *Rule, row map[string]any) bool {
	value := row[rule.Field]
	key := e.cacheKey(rule, value)

	e.mu.Lock()
	if got, ok := e.cache[key]; ok {
		e.mu.Unlock()
		return got
	}
	e.mu.Unlock()

	var matched bool
	if rule.Evaluate != nil {
		matched = e.safeRowPredicate(rule, row)
	} else {
		matched = e.EvaluateCondition(rule.Condition, row, rule.Field, value)
	}

	e.mu.Lock()
	e.cache[key] = matched
	e.mu.Unlock()
	return matched
}

// EvaluateCondition applies a single condition to a row/column/value
// triple. Failures degrade to false.
func (e *Evaluator) EvaluateCondition(cond Condition, row map[string]any, column string, value any) bool {
	switch cond.Operator {
	case OpEquals:
		return looseEqual(value, cond.Value)
	case OpStrictEquals:
		return strictEqual(value, cond.Value)
	case OpNotEquals:
		return !looseEqual(value, cond.Value)
	case OpStrictNotEq:
		return !strictEqual(value, cond.Value)

	case OpGreater, OpGreaterEq, OpLess, OpLessEq:
		a, okA := format.NumberValue(value)
		b, okB := format.NumberValue(cond.Value)
		if !okA || !okB {
			// Non-numeric operands behave like NaN comparisons: false.
			return false
		}
		switch cond.Operator {
		case OpGreater:
			return a > b
		case OpGreaterEq:
			return a >= b
		case OpLess:
			return a < b
		default:
			return a <= b
		}

	case OpContains:
		return strings.Contains(format.Stringify(value), format.Stringify(cond.Value))
	case OpNotContains:
		return !strings.Contains(format.Stringify(value), format.Stringify(cond.Value))
	case OpStartsWith:
		return strings.HasPrefix(format.Stringify(value), format.Stringify(cond.Value))
	case OpEndsWith:
		return strings.HasSuffix(format.Stringify(value), format.Stringify(cond.Value))

	case OpRegex:
		re, err := regexp.Compile(format.Stringify(cond.Value))
		if err != nil {
			e.warn(&EvaluationError{Operator: cond.Operator, Field: column, Err: err})
			return false
		}
		return re.MatchString(format.Stringify(value))

	case OpIn:
		return inSet(value, cond.Value)
	case OpNotIn:
		return !inSet(value, cond.Value)

	case OpIsNull:
		return value == nil
	case OpIsNotNull:
		return value != nil
	case OpIsEmpty:
		return strings.TrimSpace(format.Stringify(value)) == ""
	case OpIsNotEmpty:
		return strings.TrimSpace(format.Stringify(value)) != ""

	case OpCustom:
		if cond.Predicate == nil {
			e.warn(&EvaluationError{Operator: cond.Operator, Field: column,
				Err: fmt.Errorf("custom condition without predicate")})
			return false
		}
		return e.safePredicate(cond, row, column, value)

	default:
		e.warn(&EvaluationError{Operator: cond.Operator, Field: column,
			Err: fmt.Errorf("unknown operator")})
		return false
	}
}

// Formatting evaluates formatting rules for one cell and merges the styles
// of every match in list order.
func (e *Evaluator) Formatting(ruleList []Rule, row map[string]any, field string) Style {
	var merged Style
	for i := range ruleList {
		r := &ruleList[i]
		if r.Field != field || len(r.Style) == 0 {
			continue
		}
		if e.EvaluateRule(r, row) {
			if merged == nil {
				merged = Style{}
			}
			for k, v := range r.Style {
				merged[k] = v
			}
		}
	}
	return merged
}

// Validate checks business rules for an edited field. A rule's condition
// states a requirement; rules that evaluate false contribute their message.
func (e *Evaluator) Validate(ruleList []Rule, row map[string]any, field string) []string {
	var msgs []string
	for i := range ruleList {
		r := &ruleList[i]
		if r.Field != "" && r.Field != field {
			continue
		}
		if !e.EvaluateRule(r, row) {
			msg := r.Message
			if msg == "" {
				msg = fmt.Sprintf("value for %q violates rule %s", field, r.Condition.Operator)
			}
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

func (e *Evaluator) safePredicate(cond Condition, row map[string]any, column string, value any) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			e.warn(&EvaluationError{Operator: OpCustom, Field: column,
				Err: fmt.Errorf("predicate panicked: %v", r)})
			matched = false
		}
	}()
	return cond.Predicate(row, column, value)
}

func (e *Evaluator) safeRowPredicate(rule *Rule, row map[string]any) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			e.warn(&EvaluationError{Operator: OpCustom, Field: rule.Field,
				Err: fmt.Errorf("row predicate panicked: %v", r)})
			matched = false
		}
	}()
	return rule.Evaluate(row)
}

func (e *Evaluator) warn(err *EvaluationError) {
	e.log.Warn("rule evaluation failed",
		"operator", string(err.Operator),
		"field", err.Field,
		"error", err.Err,
	)
}

// cacheKey builds the structural memoization key for (rule, value).
func (e *Evaluator) cacheKey(rule *Rule, value any) string {
	if rule.Evaluate != nil {
		return fmt.Sprintf("fn:%p|%s", rule.Evaluate, format.Stringify(value))
	}
	if rule.Condition.Predicate != nil {
		return fmt.Sprintf("pred:%p|%s|%s",
			rule.Condition.Predicate, rule.Field, format.Stringify(value))
	}
	return fmt.Sprintf("%s|%s|%s|%s",
		rule.Field, rule.Condition.Operator,
		format.Stringify(rule.Condition.Value), format.Stringify(value))
}

// looseEqual compares after numeric coercion, falling back to string forms.
func looseEqual(a, b any) bool {
	if na, ok := format.NumberValue(a); ok {
		if nb, ok := format.NumberValue(b); ok {
			return na == nb
		}
	}
	return format.Stringify(a) == format.Stringify(b)
}

// strictEqual requires identical dynamic type and value.
func strictEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// inSet tests loose membership of value in operand, which may be a []any,
// []string, or a comma-separated string.
func inSet(value, operand any) bool {
	switch set := operand.(type) {
	case []any:
		for _, item := range set {
			if looseEqual(value, item) {
				return true
			}
		}
	case []string:
		for _, item := range set {
			if looseEqual(value, item) {
				return true
			}
		}
	case string:
		for _, item := range strings.Split(set, ",") {
			if looseEqual(value, strings.TrimSpace(item)) {
				return true
			}
		}
	}
	return false
}
