// Package aggregator combines many validation responses into a weighted
// overall score with risk and readiness classification, and supports
// comparison between runs and trend analysis over a history.
package aggregator

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-compliance/kestrel/internal/domain"
)

// Framework classification thresholds (percent).
const (
	fullyCompliantThreshold     = 100.0
	partiallyCompliantThreshold = 70.0
)

// Aggregator computes cross-assessment aggregates. Its weight table is
// deliberately independent from the orchestrator's matrix weights:
// per-assessment weighting and cross-assessment weighting are tuned
// separately.
type Aggregator struct {
	weights       map[domain.ComplianceFramework]float64
	defaultWeight float64
}

// New creates an aggregator with the default cross-assessment weights.
func New() *Aggregator {
	return &Aggregator{
		weights: map[domain.ComplianceFramework]float64{
			domain.FrameworkTaxAuthority:   0.35,
			domain.FrameworkDataProtection: 0.20,
			domain.FrameworkEInvoicing:     0.20,
			domain.FrameworkEntityRegistry: 0.15,
			domain.FrameworkTradeStandard:  0.10,
		},
		defaultWeight: 0.10,
	}
}

// SetWeight overrides one framework's cross-assessment weight.
func (a *Aggregator) SetWeight(f domain.ComplianceFramework, w float64) {
	a.weights[f] = w
}

func (a *Aggregator) weight(f domain.ComplianceFramework) float64 {
	if w, ok := a.weights[f]; ok {
		return w
	}
	return a.defaultWeight
}

// Aggregate combines validation responses into one weighted result.
// An empty input yields a zero-score, not-ready aggregate rather than an
// error: the caller always gets a value.
func (a *Aggregator) Aggregate(responses []*domain.ValidationResponse) *domain.AggregatedValidationResult {
	agg := &domain.AggregatedValidationResult{
		ID:                  uuid.New().String(),
		ResponsesAggregated: len(responses),
		FrameworkScores:     make(map[domain.ComplianceFramework]float64),
		IssueCounts:         make(map[domain.Severity]int),
		GeneratedAt:         time.Now().UTC(),
	}

	if len(responses) == 0 {
		agg.BusinessRisk = domain.RiskHigh
		agg.Readiness = domain.ReadinessNotReady
		agg.ActionPlan.Immediate = append(agg.ActionPlan.Immediate,
			"no validation history available; run an assessment")
		return agg
	}

	agg.TenantID = responses[0].TenantID

	// Mean score per framework across all responses.
	scoreSums := make(map[domain.ComplianceFramework]float64)
	scoreCounts := make(map[domain.ComplianceFramework]int)

	for _, resp := range responses {
		for f, r := range resp.FrameworkResults {
			if r.Status == domain.StatusNotApplicable {
				continue
			}
			scoreSums[f] += r.Score
			scoreCounts[f]++
		}
		for sev, n := range resp.IssueCounts {
			agg.IssueCounts[sev] += n
		}
		for _, conflict := range resp.Conflicts {
			if !conflict.Resolved {
				agg.OpenConflicts++
			}
		}
	}

	frameworks := make([]domain.ComplianceFramework, 0, len(scoreSums))
	for f := range scoreSums {
		frameworks = append(frameworks, f)
	}
	sort.Slice(frameworks, func(i, j int) bool { return frameworks[i] < frameworks[j] })

	var weightedSum, totalWeight float64
	for _, f := range frameworks {
		score := scoreSums[f] / float64(scoreCounts[f])
		agg.FrameworkScores[f] = score

		switch {
		case score >= fullyCompliantThreshold:
			agg.FullyCompliant = append(agg.FullyCompliant, f)
		case score >= partiallyCompliantThreshold:
			agg.PartiallyCompliant = append(agg.PartiallyCompliant, f)
		default:
			agg.NonCompliant = append(agg.NonCompliant, f)
		}

		w := a.weight(f)
		weightedSum += score * w
		totalWeight += w
	}

	if totalWeight > 0 {
		agg.OverallScore = weightedSum / totalWeight
	}

	a.classify(agg)
	a.buildActionPlan(agg)
	return agg
}

// classify derives business risk and readiness from critical-issue counts
// and score thresholds.
func (a *Aggregator) classify(agg *domain.AggregatedValidationResult) {
	critical := agg.IssueCounts[domain.SeverityCritical]
	high := agg.IssueCounts[domain.SeverityHigh]

	switch {
	case critical > 0 || agg.OverallScore < 50:
		agg.BusinessRisk = domain.RiskHigh
	case high > 2 || agg.OverallScore < 75:
		agg.BusinessRisk = domain.RiskMedium
	default:
		agg.BusinessRisk = domain.RiskLow
	}

	switch {
	case agg.OverallScore >= 95 && critical == 0:
		agg.Readiness = domain.ReadinessReady
	case agg.OverallScore >= 85:
		agg.Readiness = domain.ReadinessMostlyReady
	case agg.OverallScore >= 60:
		agg.Readiness = domain.ReadinessPartiallyReady
	default:
		agg.Readiness = domain.ReadinessNotReady
	}
}

// buildActionPlan stages remediation: immediate for critical issues and
// heavy high-severity load, short-term for medium issues and open
// conflicts, long-term for fixed process improvements.
func (a *Aggregator) buildActionPlan(agg *domain.AggregatedValidationResult) {
	critical := agg.IssueCounts[domain.SeverityCritical]
	high := agg.IssueCounts[domain.SeverityHigh]
	medium := agg.IssueCounts[domain.SeverityMedium]

	if critical > 0 {
		agg.ActionPlan.Immediate = append(agg.ActionPlan.Immediate,
			fmt.Sprintf("remediate %d critical issue(s)", critical))
	}
	if high > 3 {
		agg.ActionPlan.Immediate = append(agg.ActionPlan.Immediate,
			fmt.Sprintf("reduce the backlog of %d high-severity issue(s)", high))
	}
	for _, f := range agg.NonCompliant {
		agg.ActionPlan.Immediate = append(agg.ActionPlan.Immediate,
			fmt.Sprintf("bring framework %s above the %.0f%% threshold", f, partiallyCompliantThreshold))
	}

	if medium > 0 {
		agg.ActionPlan.ShortTerm = append(agg.ActionPlan.ShortTerm,
			fmt.Sprintf("schedule fixes for %d medium-severity issue(s)", medium))
	}
	if agg.OpenConflicts > 0 {
		agg.ActionPlan.ShortTerm = append(agg.ActionPlan.ShortTerm,
			fmt.Sprintf("review %d unresolved cross-framework conflict(s)", agg.OpenConflicts))
	}
	for _, f := range agg.PartiallyCompliant {
		agg.ActionPlan.ShortTerm = append(agg.ActionPlan.ShortTerm,
			fmt.Sprintf("close remaining gaps under framework %s", f))
	}

	agg.ActionPlan.LongTerm = append(agg.ActionPlan.LongTerm,
		"automate compliance checks in the submission pipeline",
		"review rule sets against regulation updates quarterly",
		"establish a periodic compliance audit cadence",
	)
}
