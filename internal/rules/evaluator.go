// Package rules provides the declarative rule evaluation engine and the
// cross-framework conflict detector.
package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/opensource-compliance/kestrel/internal/domain"
)

// ExtractField resolves a dotted field path against a document. Numeric
// segments index into lists. Returns false when any segment is missing.
func ExtractField(doc map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	var current any = doc
	for _, segment := range strings.Split(path, ".") {
		switch v := current.(type) {
		case map[string]any:
			next, ok := v[segment]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, false
			}
			current = v[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// EvaluateCondition applies a field condition to a document. The returned
// evidence map holds the extracted value. A missing field or an unknown
// operator is a condition failure with an explanatory error, never a panic.
func EvaluateCondition(doc map[string]any, cond *domain.RuleCondition) (bool, map[string]any, error) {
	value, found := ExtractField(doc, cond.Field)
	evidence := map[string]any{
		"field": cond.Field,
		"found": found,
	}
	if found {
		evidence["value"] = value
	}

	// Empty/not-empty are defined for missing fields too.
	switch cond.Operator {
	case domain.OpEmpty:
		return !found || isEmpty(value), evidence, nil
	case domain.OpNotEmpty:
		return found && !isEmpty(value), evidence, nil
	}

	if !found {
		return false, evidence, fmt.Errorf("field %q not present in document", cond.Field)
	}

	switch cond.Operator {
	case domain.OpEquals:
		return looseEqual(value, cond.Expected), evidence, nil

	case domain.OpNotEquals:
		return !looseEqual(value, cond.Expected), evidence, nil

	case domain.OpGreaterThan, domain.OpGreaterEqual, domain.OpLessThan, domain.OpLessEqual:
		actual, ok1 := toFloat(value)
		expected, ok2 := toFloat(cond.Expected)
		if !ok1 || !ok2 {
			return false, evidence, fmt.Errorf("operator %q requires numeric operands", cond.Operator)
		}
		switch cond.Operator {
		case domain.OpGreaterThan:
			return actual > expected, evidence, nil
		case domain.OpGreaterEqual:
			return actual >= expected, evidence, nil
		case domain.OpLessThan:
			return actual < expected, evidence, nil
		default:
			return actual <= expected, evidence, nil
		}

	case domain.OpContains:
		return strings.Contains(toString(value), toString(cond.Expected)), evidence, nil

	case domain.OpNotContains:
		return !strings.Contains(toString(value), toString(cond.Expected)), evidence, nil

	case domain.OpRegex:
		re, err := regexp.Compile(toString(cond.Expected))
		if err != nil {
			return false, evidence, fmt.Errorf("invalid pattern: %w", err)
		}
		return re.MatchString(toString(value)), evidence, nil

	case domain.OpIn:
		return inList(value, cond.Expected), evidence, nil

	case domain.OpNotIn:
		return !inList(value, cond.Expected), evidence, nil

	case domain.OpLengthEquals:
		expected, ok := toFloat(cond.Expected)
		if !ok {
			return false, evidence, fmt.Errorf("length_eq requires a numeric expected value")
		}
		return float64(valueLength(value)) == expected, evidence, nil

	case domain.OpLengthBetween:
		minV, okMin := toFloat(cond.Params["min"])
		maxV, okMax := toFloat(cond.Params["max"])
		if !okMin || !okMax {
			return false, evidence, fmt.Errorf("length_between requires numeric min/max params")
		}
		l := float64(valueLength(value))
		return l >= minV && l <= maxV, evidence, nil

	default:
		return false, evidence, fmt.Errorf("unknown operator %q", cond.Operator)
	}
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

func valueLength(v any) int {
	switch t := v.(type) {
	case string:
		return len(t)
	case []any:
		return len(t)
	case map[string]any:
		return len(t)
	}
	return len(toString(v))
}

// looseEqual compares values after numeric coercion, falling back to string
// comparison. JSON round-trips turn ints into float64, so strict equality
// would reject matches a rule author clearly intends.
func looseEqual(a, b any) bool {
	fa, oka := toFloat(a)
	fb, okb := toFloat(b)
	if oka && okb {
		return fa == fb
	}
	return toString(a) == toString(b)
}

func inList(value, expected any) bool {
	list, ok := expected.([]any)
	if !ok {
		return false
	}
	for _, item := range list {
		if looseEqual(value, item) {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", v)
}
