package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-compliance/kestrel/internal/aggregator"
	"github.com/opensource-compliance/kestrel/internal/domain"
	"github.com/opensource-compliance/kestrel/internal/history"
	"github.com/opensource-compliance/kestrel/internal/orchestrator"
	"github.com/opensource-compliance/kestrel/internal/registry"
	"github.com/opensource-compliance/kestrel/internal/rules"
	"github.com/opensource-compliance/kestrel/internal/universal"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	engine    *rules.Engine
	orch      *orchestrator.Orchestrator
	validator *universal.Validator
	agg       *aggregator.Aggregator
	hist      *history.Service
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, orch *orchestrator.Orchestrator, validator *universal.Validator, agg *aggregator.Aggregator, hist *history.Service, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		engine:    engine,
		orch:      orch,
		validator: validator,
		agg:       agg,
		hist:      hist,
		version:   version,
	}
}

// Assess handles POST /assess requests: a full orchestrated assessment
// without the caching facade.
func (h *Handler) Assess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var octx domain.OrchestrationContext
	if err := json.NewDecoder(r.Body).Decode(&octx); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	octx.TenantID = tenantID
	if octx.TraceID == "" {
		octx.TraceID = traceID
	}
	if octx.DocumentType == "" && len(octx.RequiredFrameworks) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "documentType or requiredFrameworks is required",
		})
		return
	}

	result, err := h.orch.Assess(ctx, &octx)
	if err != nil {
		slog.Error("assessment failed", "error", err, "trace_id", traceID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "assessment failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Validate handles POST /validate requests through the caching facade.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req domain.ValidationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	req.TenantID = tenantID
	if req.DocumentType == "" && len(req.Frameworks) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "documentType or frameworks is required",
		})
		return
	}

	resp, err := h.validator.Validate(ctx, &req)
	if err != nil {
		slog.Error("validation failed", "error", err, "request_id", req.RequestID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "validation failed",
		})
		return
	}

	if resp.FromCache {
		w.Header().Set("X-Cache", "HIT")
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetResult retrieves a persisted validation response by ID.
func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	resultID := chi.URLParam(r, "id")

	if resultID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "result id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	resp, err := h.repo.GetResponse(ctx, tenantID, resultID)
	if err != nil {
		slog.Error("failed to get result", "id", resultID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "result not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListRules returns all rules currently loaded in the engine.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	var loaded []*domain.ComplianceRule
	for _, f := range domain.AllFrameworks() {
		loaded = append(loaded, h.engine.FrameworkRules(f)...)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": loaded,
		"count": len(loaded),
	})
}

// GetRule retrieves a rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	if rule, ok := h.engine.Rule(ruleID); ok {
		writeJSON(w, http.StatusOK, rule)
		return
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// GlobalTenantID is used for rules that apply to all tenants.
const GlobalTenantID = "*"

// CreateRule creates a new rule, validates its condition by loading it,
// and persists it. Rules are saved globally (tenant_id = "*").
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var rule domain.ComplianceRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if rule.ID == "" || rule.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id and name are required",
		})
		return
	}
	if !rule.Framework.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "unknown framework: " + string(rule.Framework),
		})
		return
	}
	if rule.Version == "" {
		rule.Version = "1.0.0"
	}
	rule.TenantID = GlobalTenantID

	// Validate the condition (CEL compilation for expression rules) by
	// loading into the engine.
	if err := h.engine.LoadRule(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid rule condition: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveRule(ctx, GlobalTenantID, &rule); err != nil {
			slog.Error("failed to save rule", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("rule created", "id", rule.ID, "framework", rule.Framework)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    rule,
		"message": "Rule created and loaded.",
	})
}

// ReloadRules reloads all rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbRules, err := h.repo.ListRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

// Frameworks dumps the compliance matrix: frameworks, weights,
// priorities, dependencies, and mandatory flags.
func (h *Handler) Frameworks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.orch.Matrix().Snapshot())
}

// Audit returns the in-memory audit ring buffer, newest last.
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	events := h.orch.AuditEvents()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// RegistryHealth probes every registered validator.
func (h *Handler) RegistryHealth(w http.ResponseWriter, r *http.Request) {
	report := h.orch.Registry().HealthCheck(r.Context())

	status := http.StatusOK
	if report.Status == registry.HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// Trends fits a trend line over the tenant's persisted response history.
// The lookback window defaults to 30 days; override with ?hours=N.
func (h *Handler) Trends(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.hist == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "history not available",
		})
		return
	}

	lookback := 30 * 24 * time.Hour
	if hours := r.URL.Query().Get("hours"); hours != "" {
		n, err := strconv.Atoi(hours)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "hours must be a positive integer",
			})
			return
		}
		lookback = time.Duration(n) * time.Hour
	}

	responses, err := h.hist.Responses(ctx, tenantID, lookback, 0)
	if err != nil {
		slog.Error("failed to load response history", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load response history",
		})
		return
	}

	report, err := h.agg.TrendAnalysis(responses)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// Stats returns facade counters, orchestrator performance, and the
// tenant's recent assessment count.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	global, perFramework := h.orch.PerfSnapshot()

	stats := map[string]interface{}{
		"validator":     h.validator.Stats(),
		"assessments":   global,
		"per_framework": perFramework,
	}

	if h.hist != nil {
		if count, err := h.hist.AssessmentCount(ctx, tenantID, 24*3600); err == nil {
			stats["assessments_24h"] = count
		}
	}

	writeJSON(w, http.StatusOK, stats)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ready := "true"
	if h.engine.RuleCount() == 0 {
		ready = "false"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": ready,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
