package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/opensource-compliance/kestrel/internal/domain"
)

func TestSQLiteRepository(t *testing.T) {
	// Create temp database file
	tmpFile, err := os.CreateTemp("", "kestrel-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetRule", func(t *testing.T) {
		rule := &domain.ComplianceRule{
			ID:        "tax.tin.format",
			Name:      "TIN format",
			Version:   "1.0.0",
			Framework: domain.FrameworkTaxAuthority,
			Severity:  domain.SeverityCritical,
			Condition: domain.RuleCondition{
				Operator: domain.OpRegex,
				Field:    "tin",
				Expected: "^[0-9]{8}-[0-9]{4}$",
			},
			Citation:      "FIRS TIN Guidelines s.4",
			Jurisdictions: []string{"NG"},
			Remediation:   "Provide a TIN in the format 12345678-0001",
			Enabled:       true,
		}

		if err := repo.SaveRule(ctx, tenantID, rule); err != nil {
			t.Fatalf("SaveRule failed: %v", err)
		}

		retrieved, err := repo.GetRule(ctx, tenantID, rule.ID)
		if err != nil {
			t.Fatalf("GetRule failed: %v", err)
		}

		if retrieved.ID != rule.ID {
			t.Errorf("expected ID %s, got %s", rule.ID, retrieved.ID)
		}
		if retrieved.Framework != rule.Framework {
			t.Errorf("expected framework %s, got %s", rule.Framework, retrieved.Framework)
		}
		if retrieved.Condition.Operator != domain.OpRegex {
			t.Errorf("expected operator regex, got %s", retrieved.Condition.Operator)
		}
		if len(retrieved.Jurisdictions) != 1 || retrieved.Jurisdictions[0] != "NG" {
			t.Errorf("unexpected jurisdictions: %v", retrieved.Jurisdictions)
		}
	})

	t.Run("SaveRuleReplacesVersion", func(t *testing.T) {
		rule := &domain.ComplianceRule{
			ID:        "tax.tin.format",
			Name:      "TIN format (relaxed)",
			Version:   "1.0.0",
			Framework: domain.FrameworkTaxAuthority,
			Severity:  domain.SeverityHigh,
			Condition: domain.RuleCondition{
				Operator: domain.OpNotEmpty,
				Field:    "tin",
			},
			Enabled: true,
		}

		if err := repo.SaveRule(ctx, tenantID, rule); err != nil {
			t.Fatalf("SaveRule replace failed: %v", err)
		}

		retrieved, err := repo.GetRule(ctx, tenantID, rule.ID)
		if err != nil {
			t.Fatalf("GetRule failed: %v", err)
		}
		if retrieved.Severity != domain.SeverityHigh {
			t.Errorf("expected replaced severity high, got %s", retrieved.Severity)
		}
	})

	t.Run("ListRulesByFramework", func(t *testing.T) {
		rule := &domain.ComplianceRule{
			ID:        "entity.registration.active",
			Name:      "Registration active",
			Version:   "1.0.0",
			Framework: domain.FrameworkEntityRegistry,
			Severity:  domain.SeverityHigh,
			Condition: domain.RuleCondition{
				Operator: domain.OpEquals,
				Field:    "registration.status",
				Expected: "active",
			},
			Enabled: true,
		}
		if err := repo.SaveRule(ctx, tenantID, rule); err != nil {
			t.Fatalf("SaveRule failed: %v", err)
		}

		taxRules, err := repo.ListRulesByFramework(ctx, tenantID, domain.FrameworkTaxAuthority)
		if err != nil {
			t.Fatalf("ListRulesByFramework failed: %v", err)
		}
		if len(taxRules) != 1 {
			t.Errorf("expected 1 tax rule, got %d", len(taxRules))
		}

		all, err := repo.ListRules(ctx, tenantID)
		if err != nil {
			t.Fatalf("ListRules failed: %v", err)
		}
		if len(all) != 2 {
			t.Errorf("expected 2 rules, got %d", len(all))
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		otherTenant := "tenant-002"

		_, err := repo.GetRule(ctx, otherTenant, "tax.tin.format")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound for different tenant, got: %v", err)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		rule := &domain.ComplianceRule{ID: "rule-test"}

		err := repo.SaveRule(ctx, "", rule)
		if err == nil {
			t.Error("expected error for empty tenantID")
		}

		_, err = repo.GetRule(ctx, "", "tax.tin.format")
		if err == nil {
			t.Error("expected error for empty tenantID")
		}
	})

	t.Run("SaveAndGetResponse", func(t *testing.T) {
		resp := &domain.ValidationResponse{
			ResponseID:    "resp-001",
			RequestID:     "req-001",
			RequestHash:   "abc123",
			Mode:          domain.ModeFull,
			OverallStatus: domain.StatusCompliant,
			OverallScore:  92.5,
			FrameworkResults: map[domain.ComplianceFramework]*domain.ValidationResult{
				domain.FrameworkTaxAuthority: {
					Framework: domain.FrameworkTaxAuthority,
					Status:    domain.StatusCompliant,
					Score:     92.5,
				},
			},
			IssueCounts: map[domain.Severity]int{domain.SeverityLow: 1},
			ProcessMs:   42,
			Timestamp:   time.Now().UTC(),
		}

		if err := repo.SaveResponse(ctx, tenantID, resp); err != nil {
			t.Fatalf("SaveResponse failed: %v", err)
		}

		retrieved, err := repo.GetResponse(ctx, tenantID, resp.ResponseID)
		if err != nil {
			t.Fatalf("GetResponse failed: %v", err)
		}

		if retrieved.OverallScore != resp.OverallScore {
			t.Errorf("expected score %.1f, got %.1f", resp.OverallScore, retrieved.OverallScore)
		}
		fr, ok := retrieved.FrameworkResults[domain.FrameworkTaxAuthority]
		if !ok || fr.Status != domain.StatusCompliant {
			t.Errorf("framework results not round-tripped: %+v", retrieved.FrameworkResults)
		}
	})

	t.Run("ListResponsesOrdered", func(t *testing.T) {
		base := time.Now().UTC()
		for i, score := range []float64{60, 75, 90} {
			resp := &domain.ValidationResponse{
				ResponseID:       "resp-history-" + string(rune('a'+i)),
				RequestHash:      "hash",
				Mode:             domain.ModeFull,
				OverallStatus:    domain.StatusPartiallyCompliant,
				OverallScore:     score,
				FrameworkResults: map[domain.ComplianceFramework]*domain.ValidationResult{},
				Timestamp:        base.Add(time.Duration(i) * time.Minute),
			}
			if err := repo.SaveResponse(ctx, tenantID, resp); err != nil {
				t.Fatalf("SaveResponse failed: %v", err)
			}
		}

		responses, err := repo.ListResponses(ctx, tenantID, base.Add(-time.Second), 0)
		if err != nil {
			t.Fatalf("ListResponses failed: %v", err)
		}
		if len(responses) != 3 {
			t.Fatalf("expected 3 responses, got %d", len(responses))
		}
		// Oldest first
		if responses[0].OverallScore != 60 || responses[2].OverallScore != 90 {
			t.Errorf("responses not ordered oldest first: %.0f, %.0f, %.0f",
				responses[0].OverallScore, responses[1].OverallScore, responses[2].OverallScore)
		}

		limited, err := repo.ListResponses(ctx, tenantID, base.Add(-time.Second), 2)
		if err != nil {
			t.Fatalf("ListResponses with limit failed: %v", err)
		}
		if len(limited) != 2 {
			t.Errorf("expected 2 responses with limit, got %d", len(limited))
		}
	})

	t.Run("CountResponses", func(t *testing.T) {
		countTenant := "tenant-count"
		base := time.Now().UTC().Add(-time.Hour)
		for i := 0; i < 3; i++ {
			resp := &domain.ValidationResponse{
				ResponseID:       "resp-count-" + string(rune('a'+i)),
				RequestHash:      "hash",
				Mode:             domain.ModeFull,
				OverallStatus:    domain.StatusCompliant,
				OverallScore:     100,
				FrameworkResults: map[domain.ComplianceFramework]*domain.ValidationResult{},
				Timestamp:        base.Add(time.Duration(i) * time.Minute),
			}
			if err := repo.SaveResponse(ctx, countTenant, resp); err != nil {
				t.Fatalf("SaveResponse failed: %v", err)
			}
		}

		count, err := repo.CountResponses(ctx, countTenant, base.Add(-time.Second))
		if err != nil {
			t.Fatalf("CountResponses failed: %v", err)
		}
		if count != 3 {
			t.Errorf("expected 3 responses in window, got %d", count)
		}

		// The cutoff excludes the first response.
		count, err = repo.CountResponses(ctx, countTenant, base.Add(30*time.Second))
		if err != nil {
			t.Fatalf("CountResponses failed: %v", err)
		}
		if count != 2 {
			t.Errorf("expected 2 responses after cutoff, got %d", count)
		}

		count, err = repo.CountResponses(ctx, "tenant-other", base.Add(-time.Second))
		if err != nil {
			t.Fatalf("CountResponses failed: %v", err)
		}
		if count != 0 {
			t.Errorf("count must be tenant-scoped, got %d", count)
		}

		if _, err := repo.CountResponses(ctx, "", base); err == nil {
			t.Error("expected error for empty tenantID")
		}
	})

	t.Run("SaveAndListAuditEvents", func(t *testing.T) {
		event := &domain.AuditEvent{
			EventID:      "evt-001",
			Timestamp:    time.Now().UTC(),
			EventType:    domain.AuditAssessmentCompleted,
			ComplianceID: "assess-001",
			Description:  "assessment completed",
			TechnicalDetails: map[string]any{
				"frameworks": float64(3),
			},
		}

		if err := repo.SaveAuditEvent(ctx, tenantID, event); err != nil {
			t.Fatalf("SaveAuditEvent failed: %v", err)
		}

		events, err := repo.ListAuditEvents(ctx, tenantID, 10)
		if err != nil {
			t.Fatalf("ListAuditEvents failed: %v", err)
		}
		if len(events) != 1 {
			t.Fatalf("expected 1 event, got %d", len(events))
		}
		if events[0].EventType != domain.AuditAssessmentCompleted {
			t.Errorf("unexpected event type: %s", events[0].EventType)
		}
		if events[0].TenantID != tenantID {
			t.Errorf("expected tenantID %s, got %s", tenantID, events[0].TenantID)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := repo.GetRule(ctx, tenantID, "nonexistent")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}

		_, err = repo.GetResponse(ctx, tenantID, "nonexistent")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	cfg := domain.RepositoryConfig{
		Driver: "mysql",
	}

	_, err := New(cfg)
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		result := repo.rebind(tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
