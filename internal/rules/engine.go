package rules

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/opensource-compliance/kestrel/internal/domain"
)

// Engine owns the per-framework rule sets and evaluates them against
// documents. Rules are compiled at load time; loading a rule with an
// existing id replaces it. The engine holds no per-request state.
type Engine struct {
	mu    sync.RWMutex
	env   *cel.Env
	rules map[domain.ComplianceFramework]map[string]*CompiledRule
}

// CompiledRule pairs a rule with its pre-compiled CEL program, when the
// condition is an expression.
type CompiledRule struct {
	Rule    *domain.ComplianceRule
	Program cel.Program
}

// NewEngine creates a rule engine with an empty rule set.
func NewEngine() (*Engine, error) {
	env, err := newCELEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &Engine{
		env:   env,
		rules: make(map[domain.ComplianceFramework]map[string]*CompiledRule),
	}, nil
}

// ValidateRule compiles a rule without loading it.
func (e *Engine) ValidateRule(rule *domain.ComplianceRule) error {
	if rule == nil {
		return fmt.Errorf("rule is required")
	}
	_, err := e.compile(rule)
	return err
}

// LoadRule compiles and loads one rule. Last load wins for a given id.
func (e *Engine) LoadRule(rule *domain.ComplianceRule) error {
	compiled, err := e.compile(rule)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	byID, ok := e.rules[rule.Framework]
	if !ok {
		byID = make(map[string]*CompiledRule)
		e.rules[rule.Framework] = byID
	}
	byID[rule.ID] = compiled
	return nil
}

// LoadRules loads every enabled rule, failing on the first compile error.
// A compile failure is a configuration error, surfaced at load time.
func (e *Engine) LoadRules(ruleList []*domain.ComplianceRule) error {
	for _, rule := range ruleList {
		if !rule.Enabled {
			continue
		}
		if err := e.LoadRule(rule); err != nil {
			return err
		}
	}
	return nil
}

// ReloadRules atomically replaces the whole rule set.
func (e *Engine) ReloadRules(ruleList []*domain.ComplianceRule) error {
	fresh := make(map[domain.ComplianceFramework]map[string]*CompiledRule)
	for _, rule := range ruleList {
		if !rule.Enabled {
			continue
		}
		compiled, err := e.compile(rule)
		if err != nil {
			return err
		}
		byID, ok := fresh[rule.Framework]
		if !ok {
			byID = make(map[string]*CompiledRule)
			fresh[rule.Framework] = byID
		}
		byID[rule.ID] = compiled
	}

	e.mu.Lock()
	e.rules = fresh
	e.mu.Unlock()
	return nil
}

// RuleCount returns the number of loaded rules across all frameworks.
func (e *Engine) RuleCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := 0
	for _, byID := range e.rules {
		n += len(byID)
	}
	return n
}

// FrameworkRules returns the loaded rules for one framework.
func (e *Engine) FrameworkRules(f domain.ComplianceFramework) []*domain.ComplianceRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*domain.ComplianceRule, 0, len(e.rules[f]))
	for _, compiled := range e.rules[f] {
		out = append(out, compiled.Rule)
	}
	return out
}

// Rule looks up a loaded rule by id across frameworks.
func (e *Engine) Rule(ruleID string) (*domain.ComplianceRule, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, byID := range e.rules {
		if compiled, ok := byID[ruleID]; ok {
			return compiled.Rule, true
		}
	}
	return nil, false
}

// EvaluateRules runs every applicable rule of one framework against the
// document, producing one result per rule. Evaluation failures become
// failed results, never errors: one bad rule must not take down the
// framework, and one bad framework must not take down the assessment.
func (e *Engine) EvaluateRules(ctx context.Context, framework domain.ComplianceFramework, octx *domain.OrchestrationContext) []domain.ValidationResult {
	e.mu.RLock()
	compiled := make([]*CompiledRule, 0, len(e.rules[framework]))
	for _, cr := range e.rules[framework] {
		compiled = append(compiled, cr)
	}
	e.mu.RUnlock()

	now := time.Now().UTC()
	results := make([]domain.ValidationResult, 0, len(compiled))

	for _, cr := range compiled {
		if ctx.Err() != nil {
			break
		}
		if !cr.Rule.ActiveAt(now) {
			continue
		}
		if !e.ruleApplies(cr.Rule, octx) {
			continue
		}
		results = append(results, e.evaluateOne(cr, octx, now))
	}

	return results
}

func (e *Engine) ruleApplies(rule *domain.ComplianceRule, octx *domain.OrchestrationContext) bool {
	if len(rule.Jurisdictions) == 0 {
		return true
	}
	for _, code := range octx.Jurisdictions {
		if rule.AppliesToJurisdiction(code) {
			return true
		}
	}
	if rule.AppliesToJurisdiction(octx.SenderCountry) || rule.AppliesToJurisdiction(octx.ReceiverCountry) {
		return true
	}
	return false
}

func (e *Engine) evaluateOne(cr *CompiledRule, octx *domain.OrchestrationContext, now time.Time) domain.ValidationResult {
	start := time.Now()
	rule := cr.Rule

	result := domain.ValidationResult{
		RuleID:    rule.ID,
		Framework: rule.Framework,
		Severity:  rule.Severity,
		Timestamp: now,
	}

	passed, evidence, err := e.applyCondition(cr, octx)
	result.Evidence = evidence

	switch {
	case err != nil:
		result.Status = domain.StatusNonCompliant
		result.Score = 0
		result.Issues = []domain.Issue{{
			Severity:    rule.Severity,
			Message:     fmt.Sprintf("%s: %v", rule.Name, err),
			Field:       rule.Condition.Field,
			RuleID:      rule.ID,
			Remediation: rule.Remediation,
		}}
	case passed:
		result.Status = domain.StatusCompliant
		result.Score = 100
	default:
		result.Status = domain.StatusNonCompliant
		result.Score = 0
		message := fmt.Sprintf("%s: condition not met", rule.Name)
		if rule.Condition.Field != "" {
			message = fmt.Sprintf("%s: check on field %q failed", rule.Name, rule.Condition.Field)
		}
		result.Issues = []domain.Issue{{
			Severity:    rule.Severity,
			Message:     message,
			Field:       rule.Condition.Field,
			RuleID:      rule.ID,
			Remediation: rule.Remediation,
		}}
		if rule.Remediation != "" {
			result.Recommendations = []string{rule.Remediation}
		}
	}

	result.ProcessMs = time.Since(start).Milliseconds()
	return result
}

func (e *Engine) applyCondition(cr *CompiledRule, octx *domain.OrchestrationContext) (bool, map[string]any, error) {
	if cr.Rule.Condition.Operator == domain.OpExpression {
		activation := map[string]any{
			"doc":              octx.Document,
			"document_type":    octx.DocumentType,
			"sender_country":   octx.SenderCountry,
			"receiver_country": octx.ReceiverCountry,
			"business_type":    octx.BusinessType,
		}
		out, _, err := cr.Program.Eval(activation)
		if err != nil {
			return false, map[string]any{"expression": cr.Rule.Condition.Expression}, fmt.Errorf("expression evaluation: %w", err)
		}
		return exprPassed(out), map[string]any{"expression": cr.Rule.Condition.Expression, "result": out.Value()}, nil
	}

	return EvaluateCondition(octx.Document, &cr.Rule.Condition)
}

func (e *Engine) compile(rule *domain.ComplianceRule) (*CompiledRule, error) {
	if rule.ID == "" {
		return nil, fmt.Errorf("rule id is required")
	}
	if !rule.Framework.Valid() {
		return nil, fmt.Errorf("rule %s: unknown framework %q", rule.ID, rule.Framework)
	}

	compiled := &CompiledRule{Rule: rule}

	if rule.Condition.Operator == domain.OpExpression {
		if rule.Condition.Expression == "" {
			return nil, fmt.Errorf("rule %s: expression operator requires an expression", rule.ID)
		}
		program, err := compileExpression(e.env, rule.ID, rule.Condition.Expression)
		if err != nil {
			return nil, err
		}
		compiled.Program = program
	} else if rule.Condition.Field == "" && rule.Condition.Operator != domain.OpEmpty {
		return nil, fmt.Errorf("rule %s: field condition requires a field path", rule.ID)
	}

	return compiled, nil
}

// Close clears the rule set.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = make(map[domain.ComplianceFramework]map[string]*CompiledRule)
	return nil
}
