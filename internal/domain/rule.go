package domain

import "time"

// ConditionOperator is the operator applied by a field condition.
type ConditionOperator string

const (
	OpEquals        ConditionOperator = "eq"
	OpNotEquals     ConditionOperator = "ne"
	OpGreaterThan   ConditionOperator = "gt"
	OpGreaterEqual  ConditionOperator = "gte"
	OpLessThan      ConditionOperator = "lt"
	OpLessEqual     ConditionOperator = "lte"
	OpContains      ConditionOperator = "contains"
	OpNotContains   ConditionOperator = "not_contains"
	OpRegex         ConditionOperator = "regex"
	OpIn            ConditionOperator = "in"
	OpNotIn         ConditionOperator = "not_in"
	OpEmpty         ConditionOperator = "empty"
	OpNotEmpty      ConditionOperator = "not_empty"
	OpLengthEquals  ConditionOperator = "length_eq"
	OpLengthBetween ConditionOperator = "length_between"

	// OpExpression evaluates a CEL expression instead of a field condition.
	// The expression is compiled at rule-load time.
	OpExpression ConditionOperator = "expression"
)

// RuleCondition is the declarative condition of a compliance rule.
// Field conditions apply Operator to the value at the dotted Field path
// (list indexes as numeric segments). Expression conditions carry a CEL
// expression evaluated against the document.
type RuleCondition struct {
	Operator   ConditionOperator `json:"operator"`
	Field      string            `json:"field,omitempty"`
	Expected   any               `json:"expected,omitempty"`
	Expression string            `json:"expression,omitempty"`

	// Params carries operator-specific extras, e.g. "min"/"max" for length_between.
	Params map[string]any `json:"params,omitempty"`
}

// ComplianceRule is a named, versioned check belonging to one framework.
// Rules are configuration data: created at registry-load time, immutable
// thereafter. An update replaces the rule.
type ComplianceRule struct {
	ID          string              `json:"id"`
	TenantID    string              `json:"tenantId,omitempty"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Version     string              `json:"version"`
	Framework   ComplianceFramework `json:"framework"`
	Severity    Severity            `json:"severity"`

	Condition RuleCondition `json:"condition"`

	// Citation references the regulatory text the rule implements.
	Citation string `json:"citation,omitempty"`

	// Jurisdictions limits applicability; empty means all jurisdictions.
	Jurisdictions []string `json:"jurisdictions,omitempty"`

	EffectiveFrom time.Time `json:"effectiveFrom,omitempty"`
	ExpiresAt     time.Time `json:"expiresAt,omitempty"`

	Remediation string `json:"remediation,omitempty"`
	Enabled     bool   `json:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// ActiveAt reports whether the rule is in effect at the given time.
func (r *ComplianceRule) ActiveAt(t time.Time) bool {
	if !r.Enabled {
		return false
	}
	if !r.EffectiveFrom.IsZero() && t.Before(r.EffectiveFrom) {
		return false
	}
	if !r.ExpiresAt.IsZero() && t.After(r.ExpiresAt) {
		return false
	}
	return true
}

// AppliesToJurisdiction reports whether the rule applies in the given jurisdiction.
func (r *ComplianceRule) AppliesToJurisdiction(jurisdiction string) bool {
	if len(r.Jurisdictions) == 0 {
		return true
	}
	for _, j := range r.Jurisdictions {
		if j == jurisdiction {
			return true
		}
	}
	return false
}
