package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-compliance/kestrel/internal/domain"
	"github.com/opensource-compliance/kestrel/internal/rules"
)

// RuleValidator is the built-in validator backed by the declarative rule
// engine. It folds the per-rule results of one framework into a single
// framework-level verdict. Framework teams that need imperative logic
// implement Validator directly instead.
type RuleValidator struct {
	framework domain.ComplianceFramework
	engine    *rules.Engine

	// requiredFields generates implicit presence checks in addition to the
	// loaded rule set, e.g. "tin" for tax-authority invoices.
	requiredFields []string
}

// NewRuleValidator creates a rule-backed validator for one framework.
func NewRuleValidator(framework domain.ComplianceFramework, engine *rules.Engine, requiredFields []string) *RuleValidator {
	return &RuleValidator{
		framework:      framework,
		engine:         engine,
		requiredFields: requiredFields,
	}
}

// Validate evaluates the framework's rule set and required fields, then
// folds the per-rule outcomes into one framework result.
func (v *RuleValidator) Validate(ctx context.Context, octx *domain.OrchestrationContext) (*domain.ValidationResult, error) {
	ruleResults := v.engine.EvaluateRules(ctx, v.framework, octx)
	ruleResults = append(ruleResults, v.checkRequiredFields(octx.Document)...)

	return FoldResults(v.framework, ruleResults), nil
}

// SupportedRules lists the loaded rule ids for the framework.
func (v *RuleValidator) SupportedRules() []string {
	frameworkRules := v.engine.FrameworkRules(v.framework)
	ids := make([]string, 0, len(frameworkRules))
	for _, rule := range frameworkRules {
		ids = append(ids, rule.ID)
	}
	return ids
}

// IsApplicable reports true for any non-empty document; rule-level
// jurisdiction filtering happens inside the engine.
func (v *RuleValidator) IsApplicable(document map[string]any) bool {
	return len(document) > 0
}

func (v *RuleValidator) checkRequiredFields(document map[string]any) []domain.ValidationResult {
	now := time.Now().UTC()
	results := make([]domain.ValidationResult, 0, len(v.requiredFields))

	for _, field := range v.requiredFields {
		result := domain.ValidationResult{
			RuleID:    fmt.Sprintf("%s.required.%s", v.framework, field),
			Framework: v.framework,
			Severity:  domain.SeverityHigh,
			Timestamp: now,
		}

		value, found := rules.ExtractField(document, field)
		if found && value != nil && fmt.Sprintf("%v", value) != "" {
			result.Status = domain.StatusCompliant
			result.Score = 100
		} else {
			result.Status = domain.StatusNonCompliant
			result.Score = 0
			result.Issues = []domain.Issue{{
				Severity:    domain.SeverityHigh,
				Message:     fmt.Sprintf("required field %q is missing", field),
				Field:       field,
				RuleID:      result.RuleID,
				Remediation: fmt.Sprintf("provide a value for %q", field),
			}}
		}
		results = append(results, result)
	}
	return results
}

// FoldResults combines per-rule results into one framework-level result.
// Score is the mean rule score; status follows severity of the failures:
// a CRITICAL or HIGH failing rule makes the framework NON_COMPLIANT, lower
// severities make it PARTIALLY_COMPLIANT, no failures means COMPLIANT.
// An empty rule set is NOT_APPLICABLE.
func FoldResults(framework domain.ComplianceFramework, ruleResults []domain.ValidationResult) *domain.ValidationResult {
	now := time.Now().UTC()

	if len(ruleResults) == 0 {
		return &domain.ValidationResult{
			Framework: framework,
			Status:    domain.StatusNotApplicable,
			Score:     0,
			Timestamp: now,
		}
	}

	folded := &domain.ValidationResult{
		Framework:   framework,
		Timestamp:   now,
		Evidence:    map[string]any{"rulesEvaluated": len(ruleResults)},
		RuleResults: ruleResults,
	}

	var total float64
	worst := domain.SeverityInfo
	failures := 0

	for _, r := range ruleResults {
		total += r.Score
		if r.Status == domain.StatusNonCompliant {
			failures++
			if r.Severity.Worse(worst) {
				worst = r.Severity
			}
		}
		folded.Issues = append(folded.Issues, r.Issues...)
		folded.Recommendations = append(folded.Recommendations, r.Recommendations...)
	}

	folded.Score = total / float64(len(ruleResults))

	switch {
	case failures == 0:
		folded.Status = domain.StatusCompliant
	case worst == domain.SeverityCritical || worst == domain.SeverityHigh:
		folded.Status = domain.StatusNonCompliant
		folded.Severity = worst
	default:
		folded.Status = domain.StatusPartiallyCompliant
		folded.Severity = worst
	}

	return folded
}
