package registry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/opensource-compliance/kestrel/internal/domain"
	"github.com/opensource-compliance/kestrel/internal/rules"
)

// stubValidator is a scriptable validator for exercising registry behavior.
type stubValidator struct {
	applicable bool
	result     *domain.ValidationResult
	err        error
	panicMsg   string
	delay      time.Duration
}

func (s *stubValidator) Validate(ctx context.Context, octx *domain.OrchestrationContext) (*domain.ValidationResult, error) {
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.result, s.err
}

func (s *stubValidator) SupportedRules() []string { return []string{"stub.rule"} }

func (s *stubValidator) IsApplicable(document map[string]any) bool { return s.applicable }

func octx() *domain.OrchestrationContext {
	return &domain.OrchestrationContext{
		TenantID: "tenant-001",
		Document: map[string]any{"tin": "12345678-0001"},
	}
}

func TestRegister(t *testing.T) {
	r := New()

	t.Run("Success", func(t *testing.T) {
		err := r.Register(domain.FrameworkTaxAuthority, &stubValidator{applicable: true}, Metadata{Name: "tax-validator"})
		if err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		if !r.Has(domain.FrameworkTaxAuthority) {
			t.Error("expected registry to have tax_authority")
		}
	})

	t.Run("NilValidator", func(t *testing.T) {
		if err := r.Register(domain.FrameworkEInvoicing, nil, Metadata{}); err == nil {
			t.Error("expected error for nil validator")
		}
	})

	t.Run("UnknownFramework", func(t *testing.T) {
		if err := r.Register("made_up", &stubValidator{}, Metadata{}); err == nil {
			t.Error("expected error for unknown framework")
		}
	})

	t.Run("SortedFrameworks", func(t *testing.T) {
		r.Register(domain.FrameworkEntityRegistry, &stubValidator{applicable: true}, Metadata{})
		frameworks := r.Frameworks()
		for i := 1; i < len(frameworks); i++ {
			if frameworks[i-1] >= frameworks[i] {
				t.Errorf("frameworks not sorted: %v", frameworks)
			}
		}
	})
}

func TestExecute(t *testing.T) {
	t.Run("UnregisteredFramework", func(t *testing.T) {
		r := New()
		result := r.Execute(context.Background(), domain.FrameworkTaxAuthority, octx())
		if result.Status != domain.StatusError {
			t.Errorf("expected ERROR for unregistered framework, got %s", result.Status)
		}
		if len(result.Issues) == 0 {
			t.Error("error result must explain itself via an issue")
		}
	})

	t.Run("NotApplicable", func(t *testing.T) {
		r := New()
		r.Register(domain.FrameworkTaxAuthority, &stubValidator{applicable: false}, Metadata{})

		result := r.Execute(context.Background(), domain.FrameworkTaxAuthority, octx())
		if result.Status != domain.StatusNotApplicable {
			t.Errorf("expected NOT_APPLICABLE, got %s", result.Status)
		}
	})

	t.Run("Success", func(t *testing.T) {
		r := New()
		r.Register(domain.FrameworkTaxAuthority, &stubValidator{
			applicable: true,
			result:     &domain.ValidationResult{Status: domain.StatusCompliant, Score: 100},
		}, Metadata{})

		result := r.Execute(context.Background(), domain.FrameworkTaxAuthority, octx())
		if result.Status != domain.StatusCompliant {
			t.Errorf("expected COMPLIANT, got %s", result.Status)
		}
		if result.Framework != domain.FrameworkTaxAuthority {
			t.Errorf("registry must stamp the framework, got %s", result.Framework)
		}
		if result.Timestamp.IsZero() {
			t.Error("registry must stamp a timestamp")
		}
	})

	t.Run("ValidatorError", func(t *testing.T) {
		r := New()
		r.Register(domain.FrameworkTaxAuthority, &stubValidator{
			applicable: true,
			err:        fmt.Errorf("upstream registry unavailable"),
		}, Metadata{})

		result := r.Execute(context.Background(), domain.FrameworkTaxAuthority, octx())
		if result.Status != domain.StatusError {
			t.Errorf("expected ERROR for validator error, got %s", result.Status)
		}
	})

	t.Run("NilResult", func(t *testing.T) {
		r := New()
		r.Register(domain.FrameworkTaxAuthority, &stubValidator{applicable: true}, Metadata{})

		result := r.Execute(context.Background(), domain.FrameworkTaxAuthority, octx())
		if result.Status != domain.StatusError {
			t.Errorf("expected ERROR for nil result, got %s", result.Status)
		}
	})

	t.Run("PanicContained", func(t *testing.T) {
		r := New()
		r.Register(domain.FrameworkTaxAuthority, &stubValidator{
			applicable: true,
			panicMsg:   "validator exploded",
		}, Metadata{})

		result := r.Execute(context.Background(), domain.FrameworkTaxAuthority, octx())
		if result.Status != domain.StatusError {
			t.Errorf("expected ERROR after panic, got %s", result.Status)
		}
	})

	t.Run("Timeout", func(t *testing.T) {
		r := New()
		r.Register(domain.FrameworkTaxAuthority, &stubValidator{
			applicable: true,
			delay:      time.Second,
			result:     &domain.ValidationResult{Status: domain.StatusCompliant},
		}, Metadata{})

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		result := r.Execute(ctx, domain.FrameworkTaxAuthority, octx())
		if result.Status != domain.StatusError {
			t.Errorf("expected ERROR on deadline expiry, got %s", result.Status)
		}
	})
}

func TestStats(t *testing.T) {
	r := New()
	r.Register(domain.FrameworkTaxAuthority, &stubValidator{
		applicable: true,
		result:     &domain.ValidationResult{Status: domain.StatusCompliant, Score: 100},
	}, Metadata{})
	r.Register(domain.FrameworkEInvoicing, &stubValidator{
		applicable: true,
		err:        fmt.Errorf("boom"),
	}, Metadata{})

	for i := 0; i < 3; i++ {
		r.Execute(context.Background(), domain.FrameworkTaxAuthority, octx())
	}
	r.Execute(context.Background(), domain.FrameworkEInvoicing, octx())

	stats, ok := r.Stats(domain.FrameworkTaxAuthority)
	if !ok {
		t.Fatal("expected stats for tax_authority")
	}
	if stats.Executions != 3 || stats.Successes != 3 || stats.Failures != 0 {
		t.Errorf("unexpected tax stats: %+v", stats)
	}

	failing, _ := r.Stats(domain.FrameworkEInvoicing)
	if failing.Failures != 1 {
		t.Errorf("expected 1 failure recorded, got %+v", failing)
	}

	if _, ok := r.Stats(domain.FrameworkTradeStandard); ok {
		t.Error("expected no stats for unregistered framework")
	}
}

func TestHealthCheck(t *testing.T) {
	t.Run("EmptyIsUnhealthy", func(t *testing.T) {
		report := New().HealthCheck(context.Background())
		if report.Status != HealthUnhealthy {
			t.Errorf("empty registry should be unhealthy, got %s", report.Status)
		}
	})

	t.Run("AllHealthy", func(t *testing.T) {
		r := New()
		r.Register(domain.FrameworkTaxAuthority, &stubValidator{applicable: true}, Metadata{Name: "tax"})
		r.Register(domain.FrameworkEInvoicing, &stubValidator{applicable: true}, Metadata{Name: "einv"})

		report := r.HealthCheck(context.Background())
		if report.Status != HealthHealthy {
			t.Errorf("expected healthy, got %s", report.Status)
		}
		if len(report.Validators) != 2 {
			t.Errorf("expected 2 validator probes, got %d", len(report.Validators))
		}
		if report.Metadata[domain.FrameworkTaxAuthority].Name != "tax" {
			t.Error("expected metadata in health report")
		}
	})
}

func TestRuleValidator(t *testing.T) {
	engine, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	err = engine.LoadRules([]*domain.ComplianceRule{
		{
			ID:        "tax.tin.present",
			Name:      "TIN present",
			Version:   "1.0.0",
			Framework: domain.FrameworkTaxAuthority,
			Severity:  domain.SeverityCritical,
			Condition: domain.RuleCondition{Operator: domain.OpNotEmpty, Field: "tin"},
			Enabled:   true,
		},
		{
			ID:        "tax.currency.naira",
			Name:      "currency is NGN",
			Version:   "1.0.0",
			Framework: domain.FrameworkTaxAuthority,
			Severity:  domain.SeverityLow,
			Condition: domain.RuleCondition{Operator: domain.OpEquals, Field: "currency", Expected: "NGN"},
			Enabled:   true,
		},
	})
	if err != nil {
		t.Fatalf("LoadRules failed: %v", err)
	}

	t.Run("AllPass", func(t *testing.T) {
		v := NewRuleValidator(domain.FrameworkTaxAuthority, engine, nil)
		result, err := v.Validate(context.Background(), &domain.OrchestrationContext{
			TenantID: "tenant-001",
			Document: map[string]any{"tin": "123", "currency": "NGN"},
		})
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if result.Status != domain.StatusCompliant {
			t.Errorf("expected COMPLIANT, got %s: %v", result.Status, result.Issues)
		}
		if result.Score != 100 {
			t.Errorf("expected score 100, got %.1f", result.Score)
		}
		if len(result.RuleResults) != 2 {
			t.Errorf("expected 2 rule results, got %d", len(result.RuleResults))
		}
	})

	t.Run("CriticalFailureIsNonCompliant", func(t *testing.T) {
		v := NewRuleValidator(domain.FrameworkTaxAuthority, engine, nil)
		result, _ := v.Validate(context.Background(), &domain.OrchestrationContext{
			TenantID: "tenant-001",
			Document: map[string]any{"currency": "NGN"},
		})
		if result.Status != domain.StatusNonCompliant {
			t.Errorf("critical failure should be NON_COMPLIANT, got %s", result.Status)
		}
	})

	t.Run("LowSeverityFailureIsPartial", func(t *testing.T) {
		v := NewRuleValidator(domain.FrameworkTaxAuthority, engine, nil)
		result, _ := v.Validate(context.Background(), &domain.OrchestrationContext{
			TenantID: "tenant-001",
			Document: map[string]any{"tin": "123", "currency": "USD"},
		})
		if result.Status != domain.StatusPartiallyCompliant {
			t.Errorf("low-severity failure should be PARTIALLY_COMPLIANT, got %s", result.Status)
		}
	})

	t.Run("RequiredFields", func(t *testing.T) {
		v := NewRuleValidator(domain.FrameworkEntityRegistry, engine, []string{"registration.number"})
		result, _ := v.Validate(context.Background(), &domain.OrchestrationContext{
			TenantID: "tenant-001",
			Document: map[string]any{"tin": "123"},
		})
		if result.Status != domain.StatusNonCompliant {
			t.Errorf("missing required field should be NON_COMPLIANT, got %s", result.Status)
		}
		if len(result.Issues) != 1 {
			t.Fatalf("expected 1 issue, got %d", len(result.Issues))
		}
		if result.Issues[0].Field != "registration.number" {
			t.Errorf("issue should name the missing field, got %q", result.Issues[0].Field)
		}
	})

	t.Run("NoRulesIsNotApplicable", func(t *testing.T) {
		v := NewRuleValidator(domain.FrameworkTradeStandard, engine, nil)
		result, _ := v.Validate(context.Background(), &domain.OrchestrationContext{
			TenantID: "tenant-001",
			Document: map[string]any{"tin": "123"},
		})
		if result.Status != domain.StatusNotApplicable {
			t.Errorf("framework with no rules should be NOT_APPLICABLE, got %s", result.Status)
		}
	})

	t.Run("SupportedRules", func(t *testing.T) {
		v := NewRuleValidator(domain.FrameworkTaxAuthority, engine, nil)
		if ids := v.SupportedRules(); len(ids) != 2 {
			t.Errorf("expected 2 supported rules, got %v", ids)
		}
	})

	t.Run("IsApplicable", func(t *testing.T) {
		v := NewRuleValidator(domain.FrameworkTaxAuthority, engine, nil)
		if v.IsApplicable(map[string]any{}) {
			t.Error("empty document should not be applicable")
		}
		if !v.IsApplicable(map[string]any{"tin": "123"}) {
			t.Error("non-empty document should be applicable")
		}
	})
}
