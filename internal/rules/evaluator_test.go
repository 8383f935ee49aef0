package rules

import (
	"testing"

	"github.com/opensource-compliance/kestrel/internal/domain"
)

func TestExtractField(t *testing.T) {
	doc := map[string]any{
		"tin": "12345678-0001",
		"registration": map[string]any{
			"number": "RC-445566",
			"status": "active",
		},
		"lines": []any{
			map[string]any{"amount": 100.0},
			map[string]any{"amount": 250.0},
		},
	}

	t.Run("TopLevel", func(t *testing.T) {
		v, ok := ExtractField(doc, "tin")
		if !ok || v != "12345678-0001" {
			t.Errorf("expected tin value, got %v (ok=%v)", v, ok)
		}
	})

	t.Run("Nested", func(t *testing.T) {
		v, ok := ExtractField(doc, "registration.status")
		if !ok || v != "active" {
			t.Errorf("expected 'active', got %v (ok=%v)", v, ok)
		}
	})

	t.Run("ListIndex", func(t *testing.T) {
		v, ok := ExtractField(doc, "lines.1.amount")
		if !ok || v != 250.0 {
			t.Errorf("expected 250.0, got %v (ok=%v)", v, ok)
		}
	})

	t.Run("MissingSegment", func(t *testing.T) {
		if _, ok := ExtractField(doc, "registration.missing"); ok {
			t.Error("expected missing field to report not found")
		}
	})

	t.Run("IndexOutOfRange", func(t *testing.T) {
		if _, ok := ExtractField(doc, "lines.5.amount"); ok {
			t.Error("expected out-of-range index to report not found")
		}
	})

	t.Run("EmptyPath", func(t *testing.T) {
		if _, ok := ExtractField(doc, ""); ok {
			t.Error("expected empty path to report not found")
		}
	})

	t.Run("TraverseIntoScalar", func(t *testing.T) {
		if _, ok := ExtractField(doc, "tin.digits"); ok {
			t.Error("expected traversal into a string to fail")
		}
	})
}

func TestEvaluateCondition(t *testing.T) {
	doc := map[string]any{
		"tin":      "12345678-0001",
		"amount":   5000.0,
		"currency": "NGN",
		"tags":     []any{"export", "b2b"},
		"note":     "",
		"registration": map[string]any{
			"status": "active",
		},
	}

	cases := []struct {
		name    string
		cond    domain.RuleCondition
		want    bool
		wantErr bool
	}{
		{"EqualsString", domain.RuleCondition{Operator: domain.OpEquals, Field: "currency", Expected: "NGN"}, true, false},
		{"EqualsNumericCoercion", domain.RuleCondition{Operator: domain.OpEquals, Field: "amount", Expected: 5000}, true, false},
		{"NotEquals", domain.RuleCondition{Operator: domain.OpNotEquals, Field: "currency", Expected: "USD"}, true, false},
		{"GreaterThan", domain.RuleCondition{Operator: domain.OpGreaterThan, Field: "amount", Expected: 1000}, true, false},
		{"GreaterThanFalse", domain.RuleCondition{Operator: domain.OpGreaterThan, Field: "amount", Expected: 5000}, false, false},
		{"GreaterEqualBoundary", domain.RuleCondition{Operator: domain.OpGreaterEqual, Field: "amount", Expected: 5000}, true, false},
		{"LessThan", domain.RuleCondition{Operator: domain.OpLessThan, Field: "amount", Expected: 10000}, true, false},
		{"LessEqual", domain.RuleCondition{Operator: domain.OpLessEqual, Field: "amount", Expected: 5000}, true, false},
		{"NumericOnString", domain.RuleCondition{Operator: domain.OpGreaterThan, Field: "currency", Expected: 1}, false, true},
		{"Contains", domain.RuleCondition{Operator: domain.OpContains, Field: "tin", Expected: "-0001"}, true, false},
		{"NotContains", domain.RuleCondition{Operator: domain.OpNotContains, Field: "tin", Expected: "XYZ"}, true, false},
		{"RegexMatch", domain.RuleCondition{Operator: domain.OpRegex, Field: "tin", Expected: `^\d{8}-\d{4}$`}, true, false},
		{"RegexNoMatch", domain.RuleCondition{Operator: domain.OpRegex, Field: "currency", Expected: `^\d+$`}, false, false},
		{"RegexInvalidPattern", domain.RuleCondition{Operator: domain.OpRegex, Field: "tin", Expected: "("}, false, true},
		{"In", domain.RuleCondition{Operator: domain.OpIn, Field: "currency", Expected: []any{"NGN", "GHS"}}, true, false},
		{"NotIn", domain.RuleCondition{Operator: domain.OpNotIn, Field: "currency", Expected: []any{"USD", "EUR"}}, true, false},
		{"InNonList", domain.RuleCondition{Operator: domain.OpIn, Field: "currency", Expected: "NGN"}, false, false},
		{"EmptyOnEmptyString", domain.RuleCondition{Operator: domain.OpEmpty, Field: "note"}, true, false},
		{"EmptyOnMissingField", domain.RuleCondition{Operator: domain.OpEmpty, Field: "nonexistent"}, true, false},
		{"NotEmpty", domain.RuleCondition{Operator: domain.OpNotEmpty, Field: "tin"}, true, false},
		{"NotEmptyOnMissing", domain.RuleCondition{Operator: domain.OpNotEmpty, Field: "nonexistent"}, false, false},
		{"LengthEquals", domain.RuleCondition{Operator: domain.OpLengthEquals, Field: "currency", Expected: 3}, true, false},
		{"LengthEqualsList", domain.RuleCondition{Operator: domain.OpLengthEquals, Field: "tags", Expected: 2}, true, false},
		{"LengthBetween", domain.RuleCondition{Operator: domain.OpLengthBetween, Field: "tin", Params: map[string]any{"min": 10, "max": 20}}, true, false},
		{"LengthBetweenMissingParams", domain.RuleCondition{Operator: domain.OpLengthBetween, Field: "tin"}, false, true},
		{"MissingFieldIsError", domain.RuleCondition{Operator: domain.OpEquals, Field: "nonexistent", Expected: "x"}, false, true},
		{"UnknownOperator", domain.RuleCondition{Operator: "frobnicate", Field: "tin"}, false, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, evidence, err := EvaluateCondition(doc, &tc.cond)
			if (err != nil) != tc.wantErr {
				t.Fatalf("error = %v, wantErr = %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("passed = %v, want %v", got, tc.want)
			}
			if evidence == nil {
				t.Error("evidence map must always be present")
			}
		})
	}

	t.Run("EvidenceCarriesValue", func(t *testing.T) {
		cond := domain.RuleCondition{Operator: domain.OpEquals, Field: "currency", Expected: "NGN"}
		_, evidence, _ := EvaluateCondition(doc, &cond)
		if evidence["value"] != "NGN" {
			t.Errorf("expected evidence value NGN, got %v", evidence["value"])
		}
		if evidence["found"] != true {
			t.Errorf("expected evidence found=true, got %v", evidence["found"])
		}
	})
}
