// Package registry holds one validator per framework behind a uniform
// capability interface and tracks per-validator health and performance.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/opensource-compliance/kestrel/internal/domain"
)

// Validator is the capability interface every framework-specific checker
// implements. The engine is agnostic to how a validator implements the
// legal logic; registration is explicit, never reflective.
type Validator interface {
	// Validate runs the framework's checks against the document.
	Validate(ctx context.Context, octx *domain.OrchestrationContext) (*domain.ValidationResult, error)

	// SupportedRules lists the rule ids the validator implements.
	SupportedRules() []string

	// IsApplicable reports whether the validator applies to the document.
	IsApplicable(document map[string]any) bool
}

// Metadata describes a registered validator.
type Metadata struct {
	Name           string   `json:"name"`
	Version        string   `json:"version"`
	RuleCategories []string `json:"ruleCategories,omitempty"`
}

// Stats holds rolling performance counters for one validator.
type Stats struct {
	Executions int64   `json:"executions"`
	Successes  int64   `json:"successes"`
	Failures   int64   `json:"failures"`
	AvgMs      float64 `json:"avgMs"`
}

type entry struct {
	validator Validator
	meta      Metadata
	stats     Stats
}

// Registry maps frameworks to validators. At most one validator per
// framework; last registration wins.
type Registry struct {
	mu      sync.RWMutex
	entries map[domain.ComplianceFramework]*entry
}

// New creates an empty validator registry.
func New() *Registry {
	return &Registry{
		entries: make(map[domain.ComplianceFramework]*entry),
	}
}

// Register binds a validator to a framework, replacing any previous one.
func (r *Registry) Register(framework domain.ComplianceFramework, v Validator, meta Metadata) error {
	if v == nil {
		return fmt.Errorf("validator is required")
	}
	if !framework.Valid() {
		return fmt.Errorf("unknown framework %q", framework)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[framework] = &entry{validator: v, meta: meta}
	return nil
}

// Has reports whether a validator is registered for the framework.
func (r *Registry) Has(framework domain.ComplianceFramework) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[framework]
	return ok
}

// Frameworks returns the registered frameworks in sorted order.
func (r *Registry) Frameworks() []domain.ComplianceFramework {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ComplianceFramework, 0, len(r.entries))
	for f := range r.entries {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Execute runs one framework's validator against the document. Any internal
// failure — validator error, panic, or deadline expiry — is converted into
// an ERROR-status result: one validator's failure never takes down the batch.
func (r *Registry) Execute(ctx context.Context, framework domain.ComplianceFramework, octx *domain.OrchestrationContext) *domain.ValidationResult {
	start := time.Now()

	r.mu.RLock()
	ent, ok := r.entries[framework]
	r.mu.RUnlock()

	if !ok {
		return errorResult(framework, start, fmt.Sprintf("no validator registered for framework %q", framework))
	}

	if !ent.validator.IsApplicable(octx.Document) {
		result := &domain.ValidationResult{
			Framework: framework,
			Status:    domain.StatusNotApplicable,
			Score:     0,
			ProcessMs: time.Since(start).Milliseconds(),
			Timestamp: time.Now().UTC(),
		}
		r.recordExecution(framework, time.Since(start), true)
		return result
	}

	type outcome struct {
		result *domain.ValidationResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("validator panic: %v", rec)}
			}
		}()
		result, err := ent.validator.Validate(ctx, octx)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		elapsed := time.Since(start)
		if out.err != nil {
			r.recordExecution(framework, elapsed, false)
			return errorResult(framework, start, out.err.Error())
		}
		if out.result == nil {
			r.recordExecution(framework, elapsed, false)
			return errorResult(framework, start, "validator returned no result")
		}
		out.result.Framework = framework
		out.result.ProcessMs = elapsed.Milliseconds()
		if out.result.Timestamp.IsZero() {
			out.result.Timestamp = time.Now().UTC()
		}
		r.recordExecution(framework, elapsed, out.result.Status != domain.StatusError)
		return out.result

	case <-ctx.Done():
		// The validator goroutine is left to finish on its own; its result
		// is discarded via the buffered channel.
		r.recordExecution(framework, time.Since(start), false)
		return errorResult(framework, start, fmt.Sprintf("validation timed out: %v", ctx.Err()))
	}
}

func errorResult(framework domain.ComplianceFramework, start time.Time, message string) *domain.ValidationResult {
	return &domain.ValidationResult{
		Framework: framework,
		Status:    domain.StatusError,
		Severity:  domain.SeverityCritical,
		Score:     0,
		Issues: []domain.Issue{{
			Severity: domain.SeverityCritical,
			Message:  message,
		}},
		ProcessMs: time.Since(start).Milliseconds(),
		Timestamp: time.Now().UTC(),
	}
}

func (r *Registry) recordExecution(framework domain.ComplianceFramework, elapsed time.Duration, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ent, ok := r.entries[framework]
	if !ok {
		return
	}

	s := &ent.stats
	s.Executions++
	if success {
		s.Successes++
	} else {
		s.Failures++
	}
	// Rolling average latency.
	s.AvgMs += (float64(elapsed.Milliseconds()) - s.AvgMs) / float64(s.Executions)
}

// Stats returns a copy of the performance counters for one framework.
func (r *Registry) Stats(framework domain.ComplianceFramework) (Stats, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ent, ok := r.entries[framework]
	if !ok {
		return Stats{}, false
	}
	return ent.stats, true
}

// HealthStatus is the aggregate health of the registry.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// HealthReport is the result of probing every registered validator.
type HealthReport struct {
	Status     HealthStatus                           `json:"status"`
	Validators map[domain.ComplianceFramework]bool    `json:"validators"`
	Metadata   map[domain.ComplianceFramework]Metadata `json:"metadata"`
	CheckedAt  time.Time                              `json:"checkedAt"`
}

// HealthCheck probes every validator's metadata call. Degraded when any
// probe fails, unhealthy when all do.
func (r *Registry) HealthCheck(ctx context.Context) HealthReport {
	r.mu.RLock()
	frameworks := make([]domain.ComplianceFramework, 0, len(r.entries))
	for f := range r.entries {
		frameworks = append(frameworks, f)
	}
	r.mu.RUnlock()

	report := HealthReport{
		Status:     HealthHealthy,
		Validators: make(map[domain.ComplianceFramework]bool, len(frameworks)),
		Metadata:   make(map[domain.ComplianceFramework]Metadata, len(frameworks)),
		CheckedAt:  time.Now().UTC(),
	}

	healthy := 0
	for _, f := range frameworks {
		r.mu.RLock()
		ent := r.entries[f]
		r.mu.RUnlock()
		if ent == nil {
			continue
		}

		ok := probe(ent.validator)
		report.Validators[f] = ok
		report.Metadata[f] = ent.meta
		if ok {
			healthy++
		}
	}

	switch {
	case len(frameworks) == 0 || healthy == 0:
		report.Status = HealthUnhealthy
	case healthy < len(frameworks):
		report.Status = HealthDegraded
	}
	return report
}

func probe(v Validator) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	v.SupportedRules()
	return true
}
