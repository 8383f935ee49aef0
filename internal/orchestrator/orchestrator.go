// Package orchestrator coordinates one compliance assessment: framework
// selection via the compliance matrix, dependency resolution, parallel or
// sequential validator execution, conflict handling, and aggregation into
// a single ComplianceResult.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/opensource-compliance/kestrel/internal/domain"
	"github.com/opensource-compliance/kestrel/internal/matrix"
	"github.com/opensource-compliance/kestrel/internal/registry"
	"github.com/opensource-compliance/kestrel/internal/rules"
)

const engineVersion = "kestrel-1.0"

var tracer = otel.Tracer("kestrel-orchestrator")

// Orchestrator is the top-level assessment coordinator. Construct with New
// and inject everywhere it is needed; there are no package-level instances.
type Orchestrator struct {
	matrix   *matrix.Matrix
	registry *registry.Registry
	engine   *rules.Engine

	bus  domain.EventBus   // optional
	repo domain.Repository // optional, audit overflow

	audit *AuditLog
	perf  *PerfTracker

	maxWorkers      int
	defaultMaxTime  time.Duration
	defaultStrategy domain.ResolutionStrategy
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEventBus publishes assessment lifecycle events to the bus.
func WithEventBus(bus domain.EventBus) Option {
	return func(o *Orchestrator) { o.bus = bus }
}

// WithRepository persists audit events beyond the in-memory ring, best-effort.
func WithRepository(repo domain.Repository) Option {
	return func(o *Orchestrator) { o.repo = repo }
}

// New creates an Orchestrator. The matrix dependency table is validated
// here: a cyclic table is a configuration error and fails construction.
func New(m *matrix.Matrix, reg *registry.Registry, eng *rules.Engine, cfg domain.EngineConfig, opts ...Option) (*Orchestrator, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid compliance matrix: %w", err)
	}

	maxWorkers := cfg.MaxParallelValidators
	if maxWorkers <= 0 {
		maxWorkers = 5
	}
	maxTime := cfg.DefaultMaxValidationTime
	if maxTime <= 0 {
		maxTime = 30 * time.Second
	}
	strategy := cfg.DefaultConflictStrategy
	if strategy == "" {
		strategy = domain.StrategyFrameworkPriority
	}

	o := &Orchestrator{
		matrix:          m,
		registry:        reg,
		engine:          eng,
		audit:           NewAuditLog(cfg.AuditRingCapacity),
		perf:            NewPerfTracker(),
		maxWorkers:      maxWorkers,
		defaultMaxTime:  maxTime,
		defaultStrategy: strategy,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Assess runs one compliance assessment. Errors are contained at the
// smallest possible scope: a failing rule fails its framework, a failing
// framework becomes an ERROR result, and the returned ComplianceResult
// always carries an overall status and score. The returned error is
// non-nil only for unusable input.
func (o *Orchestrator) Assess(ctx context.Context, octx *domain.OrchestrationContext) (*domain.ComplianceResult, error) {
	if octx == nil {
		return nil, fmt.Errorf("orchestration context is required")
	}
	if octx.TenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	start := time.Now()
	assessmentID := octx.AssessmentID
	if assessmentID == "" {
		assessmentID = uuid.New().String()
	}

	ctx, span := tracer.Start(ctx, "orchestrator.Assess")
	span.SetAttributes(
		attribute.String("assessment.id", assessmentID),
		attribute.String("document.type", octx.DocumentType),
	)
	defer span.End()

	o.recordAudit(ctx, domain.AuditEvent{
		EventType:    domain.AuditAssessmentStarted,
		ComplianceID: assessmentID,
		TenantID:     octx.TenantID,
		Description:  fmt.Sprintf("assessment started for document type %q", octx.DocumentType),
		Severity:     domain.SeverityInfo,
	})

	// 1. Framework selection and dependency closure.
	applicable, warnings := o.selectFrameworks(octx)
	selectionMs := time.Since(start).Milliseconds()

	result := &domain.ComplianceResult{
		AssessmentID:     assessmentID,
		TenantID:         octx.TenantID,
		FrameworkResults: make(map[domain.ComplianceFramework]*domain.ValidationResult, len(applicable)),
		Warnings:         warnings,
		Timestamp:        time.Now().UTC(),
		Metadata: domain.AssessmentMetadata{
			TraceID:             octx.TraceID,
			FrameworksRequested: len(octx.RequiredFrameworks),
			FrameworksResolved:  len(applicable),
			Parallel:            octx.Parallel && len(applicable) > 1,
			SelectionMs:         selectionMs,
			EngineVersion:       engineVersion,
		},
	}

	if len(applicable) == 0 {
		// Aggregation error: nothing to assess is surfaced as data.
		result.OverallStatus = domain.StatusError
		result.OverallScore = 0
		result.BusinessRisk = domain.RiskHigh
		result.RegulatoryRisk = domain.RiskHigh
		result.Summary = "no applicable frameworks with registered validators"
		result.PriorityActions = []string{
			"no frameworks could be assessed; register validators or fix the request configuration and retry",
		}
		result.Metadata.TotalMs = time.Since(start).Milliseconds()
		o.finish(ctx, octx, result, start, false)
		return result, nil
	}

	// 2. Execution with an overall deadline.
	maxTime := octx.MaxValidationTime
	if maxTime <= 0 {
		maxTime = o.defaultMaxTime
	}
	vctx, cancel := context.WithTimeout(ctx, maxTime)
	defer cancel()

	validationStart := time.Now()
	if result.Metadata.Parallel {
		o.executeParallel(vctx, applicable, octx, result)
	} else {
		o.executeSequential(vctx, applicable, octx, result)
	}
	result.Metadata.ValidationMs = time.Since(validationStart).Milliseconds()

	// 3. Conflict detection and resolution over the per-rule breakdowns.
	o.handleConflicts(ctx, octx, result)

	// 4. Aggregation, recommendations, risk.
	o.aggregate(result)
	o.deriveRecommendations(result)
	o.classifyRisk(result)
	result.Summary = o.summarize(result)

	result.Metadata.TotalMs = time.Since(start).Milliseconds()
	o.finish(ctx, octx, result, start, result.OverallStatus != domain.StatusError)
	return result, nil
}

// selectFrameworks unions the matrix lookups, closes the set under the
// dependency table, and drops frameworks without a registered validator
// with a warning rather than an error.
func (o *Orchestrator) selectFrameworks(octx *domain.OrchestrationContext) ([]domain.ComplianceFramework, []string) {
	selected := make(map[domain.ComplianceFramework]bool)

	add := func(frameworks []domain.ComplianceFramework) {
		for _, f := range frameworks {
			selected[f] = true
		}
	}

	add(octx.RequiredFrameworks)
	add(o.matrix.FrameworksForDocumentType(octx.DocumentType))

	jurisdictions := matrix.DeriveJurisdictions(octx.SenderCountry, octx.ReceiverCountry, octx.Jurisdictions, octx.RequiredFrameworks)
	for _, code := range jurisdictions {
		add(o.matrix.FrameworksForJurisdiction(code))
	}

	add(o.matrix.FrameworksForBusinessType(octx.BusinessType))
	add(octx.OptionalFrameworks)

	initial := make([]domain.ComplianceFramework, 0, len(selected))
	for f := range selected {
		initial = append(initial, f)
	}
	resolved := o.matrix.ResolveDependencies(initial)

	var applicable []domain.ComplianceFramework
	var warnings []string
	for _, f := range resolved {
		if o.registry.Has(f) {
			applicable = append(applicable, f)
			continue
		}
		warning := fmt.Sprintf("framework %q dropped: no validator registered", f)
		warnings = append(warnings, warning)
		slog.Warn("framework dropped during selection",
			"framework", f,
			"tenant_id", octx.TenantID,
		)
	}

	sort.Slice(applicable, func(i, j int) bool { return applicable[i] < applicable[j] })
	return applicable, warnings
}

// executeParallel dispatches one validation task per framework to a bounded
// worker pool. Every dispatched framework yields exactly one result before
// aggregation proceeds; tasks that miss the deadline come back as ERROR
// results from the registry and never block the batch.
func (o *Orchestrator) executeParallel(ctx context.Context, frameworks []domain.ComplianceFramework, octx *domain.OrchestrationContext, result *domain.ComplianceResult) {
	workers := len(frameworks)
	if workers > o.maxWorkers {
		workers = o.maxWorkers
	}
	sem := make(chan struct{}, workers)

	results := make([]*domain.ValidationResult, len(frameworks))
	var wg sync.WaitGroup

	for i, f := range frameworks {
		wg.Add(1)
		go func(idx int, framework domain.ComplianceFramework) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			frameworkStart := time.Now()
			r := o.registry.Execute(ctx, framework, octx)
			o.perf.RecordFramework(framework, time.Since(frameworkStart), r.Status != domain.StatusError)
			results[idx] = r
		}(i, f)
	}
	wg.Wait()

	for i, f := range frameworks {
		result.FrameworkResults[f] = results[i]
	}
}

// executeSequential runs frameworks strictly in descending priority order.
func (o *Orchestrator) executeSequential(ctx context.Context, frameworks []domain.ComplianceFramework, octx *domain.OrchestrationContext, result *domain.ComplianceResult) {
	ordered := append([]domain.ComplianceFramework(nil), frameworks...)
	o.matrix.SortByPriority(ordered)

	for _, f := range ordered {
		frameworkStart := time.Now()
		r := o.registry.Execute(ctx, f, octx)
		o.perf.RecordFramework(f, time.Since(frameworkStart), r.Status != domain.StatusError)
		result.FrameworkResults[f] = r
	}
}

func (o *Orchestrator) handleConflicts(ctx context.Context, octx *domain.OrchestrationContext, result *domain.ComplianceResult) {
	resultsByFramework := make(map[domain.ComplianceFramework][]domain.ValidationResult)
	for f, r := range result.FrameworkResults {
		if len(r.RuleResults) > 0 {
			resultsByFramework[f] = r.RuleResults
		}
	}
	if len(resultsByFramework) < 2 {
		return
	}

	conflicts := o.engine.DetectConflicts(resultsByFramework)
	if len(conflicts) == 0 {
		return
	}

	strategy := octx.ConflictStrategy
	if strategy == "" {
		strategy = o.defaultStrategy
	}
	report := o.engine.ResolveConflicts(conflicts, strategy, o.matrix.Priority)
	result.Conflicts = report.Conflicts

	o.recordAudit(ctx, domain.AuditEvent{
		EventType:    domain.AuditConflictDetected,
		ComplianceID: result.AssessmentID,
		TenantID:     result.TenantID,
		Description:  fmt.Sprintf("%d cross-framework conflicts detected, %d resolved via %s", report.Total, report.Resolved, strategy),
		Severity:     domain.SeverityMedium,
		TechnicalDetails: map[string]any{
			"total":      report.Total,
			"resolved":   report.Resolved,
			"unresolved": report.Unresolved,
			"strategy":   string(strategy),
		},
	})

	if o.bus != nil {
		payload, _ := json.Marshal(report)
		_ = o.bus.Publish(ctx, result.TenantID, domain.TopicConflictDetected, payload)
	}
}

// aggregate computes the weight-normalized mean score and derives the
// overall status by precedence: ERROR beats CRITICAL issues beats HIGH
// issues beats full compliance. NOT_APPLICABLE frameworks carry no weight.
func (o *Orchestrator) aggregate(result *domain.ComplianceResult) {
	result.IssueCounts = make(map[domain.Severity]int)

	var weightedSum, totalWeight float64
	hasError := false
	hasCritical := false
	hasHigh := false
	allCompliant := true
	scored := 0

	for f, r := range result.FrameworkResults {
		for _, issue := range r.Issues {
			result.IssueCounts[issue.Severity]++
		}

		switch r.Status {
		case domain.StatusNotApplicable:
			continue
		case domain.StatusError:
			hasError = true
			allCompliant = false
		case domain.StatusCompliant:
		default:
			allCompliant = false
		}

		if r.HasIssueAtLeast(domain.SeverityCritical) {
			hasCritical = true
		} else if r.HasIssueAtLeast(domain.SeverityHigh) {
			hasHigh = true
		}

		weight := o.matrix.Weight(f)
		weightedSum += r.Score * weight
		totalWeight += weight
		scored++
	}

	if scored == 0 {
		result.OverallStatus = domain.StatusNotApplicable
		result.OverallScore = 0
		return
	}

	if totalWeight > 0 {
		result.OverallScore = weightedSum / totalWeight
	}

	switch {
	case hasError:
		result.OverallStatus = domain.StatusError
	case hasCritical:
		result.OverallStatus = domain.StatusNonCompliant
	case hasHigh:
		result.OverallStatus = domain.StatusPartiallyCompliant
	case allCompliant:
		result.OverallStatus = domain.StatusCompliant
	default:
		result.OverallStatus = domain.StatusPartiallyCompliant
	}
}

func (o *Orchestrator) deriveRecommendations(result *domain.ComplianceResult) {
	seen := make(map[string]bool)
	add := func(list *[]string, text string) {
		if text != "" && !seen[text] {
			seen[text] = true
			*list = append(*list, text)
		}
	}

	if n := result.IssueCounts[domain.SeverityCritical]; n > 0 {
		add(&result.PriorityActions, fmt.Sprintf("resolve %d critical issue(s) before submission", n))
	}

	frameworks := make([]domain.ComplianceFramework, 0, len(result.FrameworkResults))
	for f := range result.FrameworkResults {
		frameworks = append(frameworks, f)
	}
	sort.Slice(frameworks, func(i, j int) bool { return frameworks[i] < frameworks[j] })

	for _, f := range frameworks {
		r := result.FrameworkResults[f]
		switch r.Status {
		case domain.StatusError:
			add(&result.PriorityActions, fmt.Sprintf("framework %s failed to validate; retry or fix configuration", f))
		case domain.StatusNonCompliant:
			add(&result.PriorityActions, fmt.Sprintf("address %d issue(s) under framework %s", len(r.Issues), f))
		case domain.StatusPartiallyCompliant:
			add(&result.Recommendations, fmt.Sprintf("review remaining issue(s) under framework %s", f))
		}
		for _, rec := range r.Recommendations {
			add(&result.Recommendations, rec)
		}
	}

	for _, conflict := range result.Conflicts {
		if !conflict.Resolved {
			add(&result.Recommendations, fmt.Sprintf("manually review conflicting verdicts on field %q", conflict.FieldKey))
		}
	}
}

// classifyRisk applies the documented thresholds: these are fixed policy,
// not hidden heuristics.
func (o *Orchestrator) classifyRisk(result *domain.ComplianceResult) {
	critical := result.IssueCounts[domain.SeverityCritical]
	high := result.IssueCounts[domain.SeverityHigh]

	switch {
	case critical > 0 || result.OverallScore < 50:
		result.BusinessRisk = domain.RiskHigh
	case high > 2 || result.OverallScore < 75:
		result.BusinessRisk = domain.RiskMedium
	default:
		result.BusinessRisk = domain.RiskLow
	}

	mandatoryCritical := false
	mandatoryHigh := 0
	for f, r := range result.FrameworkResults {
		if !o.matrix.Mandatory(f) {
			continue
		}
		for _, issue := range r.Issues {
			switch issue.Severity {
			case domain.SeverityCritical:
				mandatoryCritical = true
			case domain.SeverityHigh:
				mandatoryHigh++
			}
		}
	}

	switch {
	case mandatoryCritical || mandatoryHigh >= 3:
		result.RegulatoryRisk = domain.RiskHigh
	case high > 0:
		result.RegulatoryRisk = domain.RiskMedium
	default:
		result.RegulatoryRisk = domain.RiskLow
	}
}

func (o *Orchestrator) summarize(result *domain.ComplianceResult) string {
	compliant := 0
	for _, r := range result.FrameworkResults {
		if r.Status == domain.StatusCompliant {
			compliant++
		}
	}
	return fmt.Sprintf("%d/%d frameworks compliant, overall score %.1f, status %s",
		compliant, len(result.FrameworkResults), result.OverallScore, result.OverallStatus)
}

func (o *Orchestrator) finish(ctx context.Context, octx *domain.OrchestrationContext, result *domain.ComplianceResult, start time.Time, success bool) {
	o.perf.Record(time.Since(start), success)

	eventType := domain.AuditAssessmentCompleted
	severity := domain.SeverityInfo
	topic := domain.TopicAssessmentCompleted
	if !success {
		eventType = domain.AuditAssessmentFailed
		severity = domain.SeverityHigh
		topic = domain.TopicAssessmentFailed
	}

	o.recordAudit(ctx, domain.AuditEvent{
		EventType:    eventType,
		ComplianceID: result.AssessmentID,
		TenantID:     result.TenantID,
		Description:  result.Summary,
		Severity:     severity,
		TechnicalDetails: map[string]any{
			"overall_status": string(result.OverallStatus),
			"overall_score":  result.OverallScore,
			"frameworks":     len(result.FrameworkResults),
			"total_ms":       result.Metadata.TotalMs,
		},
	})

	if o.bus != nil {
		payload, _ := json.Marshal(result)
		_ = o.bus.Publish(ctx, result.TenantID, topic, payload)
	}

	slog.Info("assessment finished",
		"assessment_id", result.AssessmentID,
		"tenant_id", result.TenantID,
		"status", result.OverallStatus,
		"score", result.OverallScore,
		"frameworks", len(result.FrameworkResults),
		"duration_ms", result.Metadata.TotalMs,
	)
}

func (o *Orchestrator) recordAudit(ctx context.Context, event domain.AuditEvent) {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	o.audit.Append(event)

	if o.repo != nil {
		// Persistence is best-effort; the ring buffer is authoritative.
		_ = o.repo.SaveAuditEvent(ctx, event.TenantID, &event)
	}
}

// AuditEvents returns the in-memory audit trail, oldest first.
func (o *Orchestrator) AuditEvents() []domain.AuditEvent {
	return o.audit.Events()
}

// PerfSnapshot returns the global and per-framework counters.
func (o *Orchestrator) PerfSnapshot() (Counters, map[domain.ComplianceFramework]Counters) {
	return o.perf.Snapshot()
}

// Matrix exposes the compliance matrix for read-only surfaces.
func (o *Orchestrator) Matrix() *matrix.Matrix {
	return o.matrix
}

// Registry exposes the validator registry for health reporting.
func (o *Orchestrator) Registry() *registry.Registry {
	return o.registry
}
