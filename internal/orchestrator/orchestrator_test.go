package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensource-compliance/kestrel/internal/domain"
	"github.com/opensource-compliance/kestrel/internal/matrix"
	"github.com/opensource-compliance/kestrel/internal/registry"
	"github.com/opensource-compliance/kestrel/internal/rules"
)

// newTestOrchestrator wires an engine with rules for tax, entity, and
// e-invoicing plus rule validators for those frameworks.
func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()

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
			ID:        "entity.registration.active",
			Name:      "registration active",
			Version:   "1.0.0",
			Framework: domain.FrameworkEntityRegistry,
			Severity:  domain.SeverityHigh,
			Condition: domain.RuleCondition{Operator: domain.OpEquals, Field: "registration.status", Expected: "active"},
			Enabled:   true,
		},
		{
			ID:        "einv.invoice.number",
			Name:      "invoice number present",
			Version:   "1.0.0",
			Framework: domain.FrameworkEInvoicing,
			Severity:  domain.SeverityHigh,
			Condition: domain.RuleCondition{Operator: domain.OpNotEmpty, Field: "invoice_number"},
			Enabled:   true,
		},
	})
	if err != nil {
		t.Fatalf("LoadRules failed: %v", err)
	}

	reg := registry.New()
	for _, f := range []domain.ComplianceFramework{
		domain.FrameworkTaxAuthority,
		domain.FrameworkEntityRegistry,
		domain.FrameworkEInvoicing,
	} {
		reg.Register(f, registry.NewRuleValidator(f, engine, nil), registry.Metadata{Name: string(f)})
	}

	orch, err := New(matrix.New(), reg, engine, domain.EngineConfig{})
	if err != nil {
		t.Fatalf("orchestrator.New failed: %v", err)
	}
	return orch
}

// scriptedValidator stands in for a framework validator that misbehaves:
// it either fails outright or blocks until the assessment deadline expires.
type scriptedValidator struct {
	err  error
	hang bool
}

func (s *scriptedValidator) Validate(ctx context.Context, _ *domain.OrchestrationContext) (*domain.ValidationResult, error) {
	if s.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return &domain.ValidationResult{Status: domain.StatusCompliant, Score: 100}, nil
}

func (s *scriptedValidator) SupportedRules() []string         { return nil }
func (s *scriptedValidator) IsApplicable(map[string]any) bool { return true }

// newMixedOrchestrator wires a rule-backed tax validator next to a scripted
// data_protection validator, so one framework can fail while the other
// stays healthy.
func newMixedOrchestrator(t *testing.T, dp registry.Validator) *Orchestrator {
	t.Helper()

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
	})
	if err != nil {
		t.Fatalf("LoadRules failed: %v", err)
	}

	reg := registry.New()
	reg.Register(domain.FrameworkTaxAuthority, registry.NewRuleValidator(domain.FrameworkTaxAuthority, engine, nil), registry.Metadata{})
	reg.Register(domain.FrameworkDataProtection, dp, registry.Metadata{})

	orch, err := New(matrix.New(), reg, engine, domain.EngineConfig{})
	if err != nil {
		t.Fatalf("orchestrator.New failed: %v", err)
	}
	return orch
}

func cleanInvoice() map[string]any {
	return map[string]any{
		"invoice_number": "INV-2026-0001",
		"tin":            "12345678-0001",
		"registration": map[string]any{
			"number": "RC-445566",
			"status": "active",
		},
		"amount":   1500.00,
		"currency": "NGN",
	}
}

func TestAssess(t *testing.T) {
	orch := newTestOrchestrator(t)

	t.Run("CompliantInvoice", func(t *testing.T) {
		result, err := orch.Assess(context.Background(), &domain.OrchestrationContext{
			TenantID:     "tenant-001",
			Document:     cleanInvoice(),
			DocumentType: "invoice",
			Parallel:     true,
		})
		if err != nil {
			t.Fatalf("Assess failed: %v", err)
		}

		if result.OverallStatus != domain.StatusCompliant {
			t.Errorf("expected COMPLIANT, got %s (%s)", result.OverallStatus, result.Summary)
		}
		if result.OverallScore != 100 {
			t.Errorf("expected score 100, got %.1f", result.OverallScore)
		}
		if result.AssessmentID == "" {
			t.Error("expected an assessment id")
		}

		// invoice → tax + einv; closure adds entity_registry via tax.
		for _, f := range []domain.ComplianceFramework{
			domain.FrameworkTaxAuthority,
			domain.FrameworkEntityRegistry,
			domain.FrameworkEInvoicing,
		} {
			if _, ok := result.FrameworkResults[f]; !ok {
				t.Errorf("expected %s in results", f)
			}
		}
		if result.Metadata.FrameworksResolved != 3 {
			t.Errorf("expected 3 resolved frameworks, got %d", result.Metadata.FrameworksResolved)
		}
	})

	t.Run("CriticalViolation", func(t *testing.T) {
		doc := cleanInvoice()
		delete(doc, "tin")

		result, err := orch.Assess(context.Background(), &domain.OrchestrationContext{
			TenantID:     "tenant-001",
			Document:     doc,
			DocumentType: "invoice",
		})
		if err != nil {
			t.Fatalf("Assess failed: %v", err)
		}

		if result.OverallStatus != domain.StatusNonCompliant {
			t.Errorf("expected NON_COMPLIANT, got %s", result.OverallStatus)
		}
		if result.IssueCounts[domain.SeverityCritical] != 1 {
			t.Errorf("expected 1 critical issue, got %v", result.IssueCounts)
		}
		if result.BusinessRisk != domain.RiskHigh {
			t.Errorf("critical issue should raise business risk to HIGH, got %s", result.BusinessRisk)
		}
		// tax_authority is mandatory, so a critical issue there is
		// regulatory risk.
		if result.RegulatoryRisk != domain.RiskHigh {
			t.Errorf("expected HIGH regulatory risk, got %s", result.RegulatoryRisk)
		}
		if len(result.PriorityActions) == 0 {
			t.Error("critical failure should produce priority actions")
		}
	})

	t.Run("HighViolationIsPartial", func(t *testing.T) {
		doc := cleanInvoice()
		doc["registration"] = map[string]any{"number": "RC-1", "status": "suspended"}

		result, err := orch.Assess(context.Background(), &domain.OrchestrationContext{
			TenantID:     "tenant-001",
			Document:     doc,
			DocumentType: "invoice",
		})
		if err != nil {
			t.Fatalf("Assess failed: %v", err)
		}

		if result.OverallStatus != domain.StatusPartiallyCompliant {
			t.Errorf("expected PARTIALLY_COMPLIANT for a high (non-critical) failure, got %s", result.OverallStatus)
		}
		if result.FrameworkResults[domain.FrameworkEntityRegistry].Status != domain.StatusNonCompliant {
			t.Errorf("entity framework itself should be NON_COMPLIANT")
		}
	})

	t.Run("ExplicitFrameworksClosed", func(t *testing.T) {
		result, err := orch.Assess(context.Background(), &domain.OrchestrationContext{
			TenantID:           "tenant-001",
			Document:           cleanInvoice(),
			RequiredFrameworks: []domain.ComplianceFramework{domain.FrameworkEInvoicing},
		})
		if err != nil {
			t.Fatalf("Assess failed: %v", err)
		}
		// einv → tax → entity.
		if result.Metadata.FrameworksResolved != 3 {
			t.Errorf("expected closure to resolve 3 frameworks, got %d", result.Metadata.FrameworksResolved)
		}
	})

	t.Run("UnregisteredFrameworkDroppedWithWarning", func(t *testing.T) {
		result, err := orch.Assess(context.Background(), &domain.OrchestrationContext{
			TenantID:           "tenant-001",
			Document:           cleanInvoice(),
			RequiredFrameworks: []domain.ComplianceFramework{domain.FrameworkTaxAuthority, domain.FrameworkDataProtection},
		})
		if err != nil {
			t.Fatalf("Assess failed: %v", err)
		}
		if _, ok := result.FrameworkResults[domain.FrameworkDataProtection]; ok {
			t.Error("data_protection has no validator and should be dropped")
		}
		if len(result.Warnings) == 0 {
			t.Error("dropping a framework must produce a warning")
		}
	})

	t.Run("NoApplicableFrameworksIsErrorResult", func(t *testing.T) {
		// data_protection alone resolves to itself, which has no validator.
		result, err := orch.Assess(context.Background(), &domain.OrchestrationContext{
			TenantID:           "tenant-001",
			Document:           map[string]any{"subject": "x"},
			RequiredFrameworks: []domain.ComplianceFramework{domain.FrameworkDataProtection},
		})
		if err != nil {
			t.Fatalf("Assess must not error for empty selection, got %v", err)
		}
		if result.OverallStatus != domain.StatusError {
			t.Errorf("expected ERROR status as data, got %s", result.OverallStatus)
		}
		if len(result.PriorityActions) == 0 {
			t.Error("error result should carry a priority action")
		}
	})

	t.Run("ParallelAndSequentialAgree", func(t *testing.T) {
		doc := cleanInvoice()
		delete(doc, "tin")

		seq, err := orch.Assess(context.Background(), &domain.OrchestrationContext{
			TenantID: "tenant-001", Document: doc, DocumentType: "invoice", Parallel: false,
		})
		if err != nil {
			t.Fatalf("sequential Assess failed: %v", err)
		}
		par, err := orch.Assess(context.Background(), &domain.OrchestrationContext{
			TenantID: "tenant-001", Document: doc, DocumentType: "invoice", Parallel: true,
		})
		if err != nil {
			t.Fatalf("parallel Assess failed: %v", err)
		}

		if seq.OverallStatus != par.OverallStatus {
			t.Errorf("status differs: sequential=%s parallel=%s", seq.OverallStatus, par.OverallStatus)
		}
		if seq.OverallScore != par.OverallScore {
			t.Errorf("score differs: sequential=%.1f parallel=%.1f", seq.OverallScore, par.OverallScore)
		}
		if !par.Metadata.Parallel {
			t.Error("parallel run should record Parallel=true")
		}
		if seq.Metadata.Parallel {
			t.Error("sequential run should record Parallel=false")
		}
	})

	t.Run("MissingTenantRejected", func(t *testing.T) {
		if _, err := orch.Assess(context.Background(), &domain.OrchestrationContext{
			Document:     cleanInvoice(),
			DocumentType: "invoice",
		}); err == nil {
			t.Fatal("expected error for missing tenant")
		}
	})

	t.Run("NilContextRejected", func(t *testing.T) {
		if _, err := orch.Assess(context.Background(), nil); err == nil {
			t.Fatal("expected error for nil context")
		}
	})
}

func TestWeightedScoring(t *testing.T) {
	orch := newTestOrchestrator(t)

	// tin missing: tax_authority scores 0 (weight 0.30), entity and einv
	// score 100 (weights 0.15 and 0.20). Weighted mean over the three:
	// (0*0.30 + 100*0.15 + 100*0.20) / 0.65 ≈ 53.8.
	doc := cleanInvoice()
	delete(doc, "tin")

	result, err := orch.Assess(context.Background(), &domain.OrchestrationContext{
		TenantID:     "tenant-001",
		Document:     doc,
		DocumentType: "invoice",
	})
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}

	if result.OverallScore < 53 || result.OverallScore > 55 {
		t.Errorf("expected weighted score ≈53.8, got %.1f", result.OverallScore)
	}
}

func TestMixedResultsErrorPrecedence(t *testing.T) {
	// tax (weight 0.30) scores 100, data_protection (weight 0.25) errors
	// and scores 0: the healthy framework is still aggregated
	// (100*0.30/0.55 ≈ 54.5) but one ERROR framework forces overall ERROR.
	assertErrorDominates := func(t *testing.T, result *domain.ComplianceResult) {
		t.Helper()

		dp, ok := result.FrameworkResults[domain.FrameworkDataProtection]
		if !ok {
			t.Fatal("expected data_protection in results")
		}
		if dp.Status != domain.StatusError {
			t.Errorf("expected data_protection ERROR, got %s", dp.Status)
		}
		tax, ok := result.FrameworkResults[domain.FrameworkTaxAuthority]
		if !ok {
			t.Fatal("expected tax_authority in results")
		}
		if tax.Status != domain.StatusCompliant {
			t.Errorf("expected tax_authority COMPLIANT, got %s", tax.Status)
		}
		if result.OverallStatus != domain.StatusError {
			t.Errorf("one failed framework must force overall ERROR, got %s", result.OverallStatus)
		}
		if result.OverallScore < 54 || result.OverallScore > 55 {
			t.Errorf("healthy framework must still be weighted in, expected ≈54.5, got %.1f", result.OverallScore)
		}
	}

	t.Run("FailingValidatorAmongHealthyOnes", func(t *testing.T) {
		orch := newMixedOrchestrator(t, &scriptedValidator{err: errors.New("consent registry unreachable")})

		result, err := orch.Assess(context.Background(), &domain.OrchestrationContext{
			TenantID:           "tenant-001",
			Document:           cleanInvoice(),
			RequiredFrameworks: []domain.ComplianceFramework{domain.FrameworkTaxAuthority, domain.FrameworkDataProtection},
			Parallel:           true,
		})
		if err != nil {
			t.Fatalf("Assess failed: %v", err)
		}
		assertErrorDominates(t, result)
	})

	t.Run("HangingValidatorHitsDeadline", func(t *testing.T) {
		orch := newMixedOrchestrator(t, &scriptedValidator{hang: true})

		start := time.Now()
		result, err := orch.Assess(context.Background(), &domain.OrchestrationContext{
			TenantID:           "tenant-001",
			Document:           cleanInvoice(),
			RequiredFrameworks: []domain.ComplianceFramework{domain.FrameworkTaxAuthority, domain.FrameworkDataProtection},
			Parallel:           true,
			MaxValidationTime:  300 * time.Millisecond,
		})
		if err != nil {
			t.Fatalf("Assess failed: %v", err)
		}
		if elapsed := time.Since(start); elapsed > 5*time.Second {
			t.Fatalf("Assess must return shortly after the 300ms budget, took %v", elapsed)
		}
		assertErrorDominates(t, result)
	})
}

func TestAuditTrail(t *testing.T) {
	orch := newTestOrchestrator(t)

	_, err := orch.Assess(context.Background(), &domain.OrchestrationContext{
		TenantID:     "tenant-001",
		Document:     cleanInvoice(),
		DocumentType: "invoice",
	})
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}

	events := orch.AuditEvents()
	if len(events) < 2 {
		t.Fatalf("expected at least started+completed events, got %d", len(events))
	}

	if events[0].EventType != domain.AuditAssessmentStarted {
		t.Errorf("first event should be assessment started, got %s", events[0].EventType)
	}
	last := events[len(events)-1]
	if last.EventType != domain.AuditAssessmentCompleted {
		t.Errorf("last event should be assessment completed, got %s", last.EventType)
	}
	for _, ev := range events {
		if ev.EventID == "" || ev.Timestamp.IsZero() {
			t.Error("audit events must carry id and timestamp")
		}
	}
}

func TestAuditLogRing(t *testing.T) {
	log := NewAuditLog(3)

	for i := 0; i < 5; i++ {
		log.Append(domain.AuditEvent{
			EventType:   domain.AuditAssessmentStarted,
			Description: string(rune('a' + i)),
		})
	}

	events := log.Events()
	if len(events) != 3 {
		t.Fatalf("expected capacity-bound 3 events, got %d", len(events))
	}
	// Oldest two were dropped; "c", "d", "e" remain in order.
	want := []string{"c", "d", "e"}
	for i, w := range want {
		if events[i].Description != w {
			t.Errorf("position %d: expected %q, got %q", i, w, events[i].Description)
		}
	}
}

func TestPerfTracker(t *testing.T) {
	tracker := NewPerfTracker()

	tracker.Record(100*time.Millisecond, true)
	tracker.Record(200*time.Millisecond, false)
	tracker.RecordFramework(domain.FrameworkTaxAuthority, 50*time.Millisecond, true)

	global, byFramework := tracker.Snapshot()
	if global.Assessments != 2 || global.Successes != 1 || global.Failures != 1 {
		t.Errorf("unexpected global counters: %+v", global)
	}
	if global.AvgMs != 150 {
		t.Errorf("expected rolling average 150ms, got %.1f", global.AvgMs)
	}
	if byFramework[domain.FrameworkTaxAuthority].Assessments != 1 {
		t.Errorf("unexpected framework counters: %+v", byFramework)
	}
}

func TestConflictHandling(t *testing.T) {
	engine, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	// Two frameworks disagree on the trailing "format" field key: tax
	// accepts the TIN format while e-invoicing demands more digits.
	err = engine.LoadRules([]*domain.ComplianceRule{
		{
			ID:        "tax.tin.format",
			Name:      "TIN format (tax)",
			Version:   "1.0.0",
			Framework: domain.FrameworkTaxAuthority,
			Severity:  domain.SeverityHigh,
			Condition: domain.RuleCondition{Operator: domain.OpRegex, Field: "tin", Expected: `^\d{8}$`},
			Enabled:   true,
		},
		{
			ID:        "einv.tin.format",
			Name:      "TIN format (einv)",
			Version:   "1.0.0",
			Framework: domain.FrameworkEInvoicing,
			Severity:  domain.SeverityHigh,
			Condition: domain.RuleCondition{Operator: domain.OpRegex, Field: "tin", Expected: `^\d{12}$`},
			Enabled:   true,
		},
	})
	if err != nil {
		t.Fatalf("LoadRules failed: %v", err)
	}

	reg := registry.New()
	reg.Register(domain.FrameworkTaxAuthority, registry.NewRuleValidator(domain.FrameworkTaxAuthority, engine, nil), registry.Metadata{})
	reg.Register(domain.FrameworkEInvoicing, registry.NewRuleValidator(domain.FrameworkEInvoicing, engine, nil), registry.Metadata{})
	reg.Register(domain.FrameworkEntityRegistry, registry.NewRuleValidator(domain.FrameworkEntityRegistry, engine, nil), registry.Metadata{})

	orch, err := New(matrix.New(), reg, engine, domain.EngineConfig{})
	if err != nil {
		t.Fatalf("orchestrator.New failed: %v", err)
	}

	result, err := orch.Assess(context.Background(), &domain.OrchestrationContext{
		TenantID:     "tenant-001",
		Document:     map[string]any{"tin": "12345678"}, // passes tax, fails einv
		DocumentType: "invoice",
	})
	if err != nil {
		t.Fatalf("Assess failed: %v", err)
	}

	if len(result.Conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(result.Conflicts))
	}

	c := result.Conflicts[0]
	if c.FieldKey != "format" {
		t.Errorf("expected conflict on field key 'format', got %q", c.FieldKey)
	}
	// Default strategy is framework priority; tax_authority (priority 1) wins.
	if !c.Resolved {
		t.Error("expected conflict resolved under the default strategy")
	}
	if c.Strategy != domain.StrategyFrameworkPriority {
		t.Errorf("expected framework_priority strategy, got %s", c.Strategy)
	}
}
