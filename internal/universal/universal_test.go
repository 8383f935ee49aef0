package universal_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/opensource-compliance/kestrel/internal/cache"
	"github.com/opensource-compliance/kestrel/internal/domain"
	"github.com/opensource-compliance/kestrel/internal/matrix"
	"github.com/opensource-compliance/kestrel/internal/orchestrator"
	"github.com/opensource-compliance/kestrel/internal/registry"
	"github.com/opensource-compliance/kestrel/internal/rules"
	"github.com/opensource-compliance/kestrel/internal/universal"
)

func newValidator(t *testing.T, c domain.Cache) *universal.Validator {
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
			Condition: domain.RuleCondition{
				Operator: domain.OpNotEmpty,
				Field:    "tin",
			},
			Enabled: true,
		},
	})
	if err != nil {
		t.Fatalf("LoadRules failed: %v", err)
	}

	reg := registry.New()
	reg.Register(domain.FrameworkTaxAuthority,
		registry.NewRuleValidator(domain.FrameworkTaxAuthority, engine, nil),
		registry.Metadata{Name: "tax-validator", Version: "1.0.0"},
	)
	reg.Register(domain.FrameworkEntityRegistry,
		registry.NewRuleValidator(domain.FrameworkEntityRegistry, engine, nil),
		registry.Metadata{Name: "entity-validator", Version: "1.0.0"},
	)

	orch, err := orchestrator.New(matrix.New(), reg, engine, domain.EngineConfig{})
	if err != nil {
		t.Fatalf("orchestrator.New failed: %v", err)
	}

	return universal.New(orch, c, nil, time.Minute)
}

func request(cacheEnabled bool) *domain.ValidationRequest {
	return &domain.ValidationRequest{
		RequestID:    "req-001",
		TenantID:     "tenant-001",
		DocumentType: "invoice",
		Document: map[string]any{
			"tin":    "12345678-0001",
			"amount": 1500.00,
		},
		Frameworks:   []domain.ComplianceFramework{domain.FrameworkTaxAuthority},
		CacheEnabled: cacheEnabled,
	}
}

func TestValidate(t *testing.T) {
	ctx := context.Background()

	t.Run("SecondIdenticalCallHitsCache", func(t *testing.T) {
		v := newValidator(t, cache.NewLRUCache(100))

		first, err := v.Validate(ctx, request(true))
		if err != nil {
			t.Fatalf("first Validate failed: %v", err)
		}
		if first.FromCache {
			t.Error("first call must run a real assessment")
		}

		second, err := v.Validate(ctx, request(true))
		if err != nil {
			t.Fatalf("second Validate failed: %v", err)
		}
		if !second.FromCache {
			t.Error("identical second call should be served from cache")
		}
		if second.OverallStatus != first.OverallStatus {
			t.Errorf("cached status %s differs from original %s", second.OverallStatus, first.OverallStatus)
		}

		// FromCache is excluded from serialization, so the replay must be
		// byte-equal to the original on the wire.
		firstJSON, err := json.Marshal(first)
		if err != nil {
			t.Fatalf("marshal first response: %v", err)
		}
		secondJSON, err := json.Marshal(second)
		if err != nil {
			t.Fatalf("marshal second response: %v", err)
		}
		if !bytes.Equal(firstJSON, secondJSON) {
			t.Errorf("cached replay differs from original:\n first: %s\nsecond: %s", firstJSON, secondJSON)
		}

		stats := v.Stats()
		if stats.Requests != 2 {
			t.Errorf("expected 2 requests, got %d", stats.Requests)
		}
		if stats.CacheHits != 1 || stats.CacheMisses != 1 {
			t.Errorf("expected 1 hit / 1 miss, got %d / %d", stats.CacheHits, stats.CacheMisses)
		}
		if stats.Assessments != 1 {
			t.Errorf("cache hit must not run the orchestrator, got %d assessments", stats.Assessments)
		}
	})

	t.Run("CacheDisabledAlwaysAssesses", func(t *testing.T) {
		v := newValidator(t, cache.NewLRUCache(100))

		for i := 0; i < 3; i++ {
			resp, err := v.Validate(ctx, request(false))
			if err != nil {
				t.Fatalf("Validate %d failed: %v", i, err)
			}
			if resp.FromCache {
				t.Error("caching disabled, response must not come from cache")
			}
		}

		stats := v.Stats()
		if stats.Assessments != 3 {
			t.Errorf("expected 3 assessments, got %d", stats.Assessments)
		}
		if stats.CacheHits != 0 || stats.CacheMisses != 0 {
			t.Errorf("cache counters must stay zero, got %d / %d", stats.CacheHits, stats.CacheMisses)
		}
	})

	t.Run("NilCacheIsSafe", func(t *testing.T) {
		v := newValidator(t, nil)

		resp, err := v.Validate(ctx, request(true))
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if resp.FromCache {
			t.Error("no cache configured, response must be freshly computed")
		}
	})

	t.Run("ClearCacheForcesReassessment", func(t *testing.T) {
		v := newValidator(t, cache.NewLRUCache(100))

		if _, err := v.Validate(ctx, request(true)); err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if err := v.ClearCache(ctx, "tenant-001"); err != nil {
			t.Fatalf("ClearCache failed: %v", err)
		}

		resp, err := v.Validate(ctx, request(true))
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if resp.FromCache {
			t.Error("cleared cache must not serve the old response")
		}
		if v.Stats().Assessments != 2 {
			t.Errorf("expected 2 assessments after clear, got %d", v.Stats().Assessments)
		}
	})

	t.Run("NilRequestRejected", func(t *testing.T) {
		v := newValidator(t, nil)
		if _, err := v.Validate(ctx, nil); err == nil {
			t.Fatal("expected error for nil request")
		}
	})

	t.Run("MissingTenantRejected", func(t *testing.T) {
		v := newValidator(t, nil)
		req := request(false)
		req.TenantID = ""
		if _, err := v.Validate(ctx, req); err == nil {
			t.Fatal("expected error for missing tenant")
		}
	})

	t.Run("ResponseCarriesRequestIdentity", func(t *testing.T) {
		v := newValidator(t, nil)

		resp, err := v.Validate(ctx, request(false))
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if resp.RequestID != "req-001" {
			t.Errorf("expected requestID echoed, got %q", resp.RequestID)
		}
		if resp.TenantID != "tenant-001" {
			t.Errorf("expected tenantID echoed, got %q", resp.TenantID)
		}
		if resp.ResponseID == "" || resp.RequestHash == "" {
			t.Error("response must carry its own id and the request hash")
		}
		if resp.Mode != domain.ModeFull {
			t.Errorf("unset mode should default to full, got %s", resp.Mode)
		}
	})
}

func TestCacheKey(t *testing.T) {
	doc := map[string]any{"tin": "12345678-0001", "amount": 1500.00}

	t.Run("Deterministic", func(t *testing.T) {
		a := universal.CacheKey([]domain.ComplianceFramework{domain.FrameworkTaxAuthority}, doc, domain.ModeFull)
		b := universal.CacheKey([]domain.ComplianceFramework{domain.FrameworkTaxAuthority}, doc, domain.ModeFull)
		if a != b {
			t.Error("identical inputs must produce identical keys")
		}
	})

	t.Run("FrameworkOrderIrrelevant", func(t *testing.T) {
		a := universal.CacheKey([]domain.ComplianceFramework{
			domain.FrameworkTaxAuthority, domain.FrameworkEInvoicing,
		}, doc, domain.ModeFull)
		b := universal.CacheKey([]domain.ComplianceFramework{
			domain.FrameworkEInvoicing, domain.FrameworkTaxAuthority,
		}, doc, domain.ModeFull)
		if a != b {
			t.Error("framework order must not change the key")
		}
	})

	t.Run("ModeChangesKey", func(t *testing.T) {
		a := universal.CacheKey(nil, doc, domain.ModeFast)
		b := universal.CacheKey(nil, doc, domain.ModeFull)
		if a == b {
			t.Error("different modes must produce different keys")
		}
	})

	t.Run("DocumentChangesKey", func(t *testing.T) {
		other := map[string]any{"tin": "87654321-0002", "amount": 1500.00}
		a := universal.CacheKey(nil, doc, domain.ModeFull)
		b := universal.CacheKey(nil, other, domain.ModeFull)
		if a == b {
			t.Error("different documents must produce different keys")
		}
	})
}

func TestRequestHash(t *testing.T) {
	t.Run("IgnoresRequestID", func(t *testing.T) {
		a := request(false)
		b := request(false)
		b.RequestID = "req-999"
		if universal.RequestHash(a) != universal.RequestHash(b) {
			t.Error("requestID must not affect the request hash")
		}
	})

	t.Run("DocumentAffectsHash", func(t *testing.T) {
		a := request(false)
		b := request(false)
		b.Document["amount"] = 9999.99
		if universal.RequestHash(a) == universal.RequestHash(b) {
			t.Error("different documents must hash differently")
		}
	})
}

func TestFingerprint(t *testing.T) {
	t.Run("LogicallyEqualDocumentsHashEqually", func(t *testing.T) {
		a := map[string]any{
			"tin": "12345678-0001",
			"lines": []any{
				map[string]any{"amount": 100.0, "description": "widget"},
			},
		}
		b := map[string]any{
			"lines": []any{
				map[string]any{"description": "widget", "amount": 100.0},
			},
			"tin": "12345678-0001",
		}
		if universal.Fingerprint(a) != universal.Fingerprint(b) {
			t.Error("key insertion order must not change the fingerprint")
		}
	})

	t.Run("ListOrderMatters", func(t *testing.T) {
		a := map[string]any{"lines": []any{"x", "y"}}
		b := map[string]any{"lines": []any{"y", "x"}}
		if universal.Fingerprint(a) == universal.Fingerprint(b) {
			t.Error("list element order is significant")
		}
	})

	t.Run("NestedValueMatters", func(t *testing.T) {
		a := map[string]any{"reg": map[string]any{"status": "active"}}
		b := map[string]any{"reg": map[string]any{"status": "suspended"}}
		if universal.Fingerprint(a) == universal.Fingerprint(b) {
			t.Error("nested values must be part of the fingerprint")
		}
	})
}
