package aggregator

import (
	"sort"

	"github.com/opensource-compliance/kestrel/internal/domain"
)

// Compare diffs a candidate response against a baseline: per-framework
// status and score deltas for common frameworks, new versus resolved issues
// as a set difference over issue messages, and the net score improvement.
func (a *Aggregator) Compare(baseline, candidate *domain.ValidationResponse) *domain.ComparisonReport {
	report := &domain.ComparisonReport{
		BaselineID:     baseline.ResponseID,
		CandidateID:    candidate.ResponseID,
		NetImprovement: candidate.OverallScore - baseline.OverallScore,
	}

	common := make([]domain.ComplianceFramework, 0, len(baseline.FrameworkResults))
	for f := range baseline.FrameworkResults {
		if _, ok := candidate.FrameworkResults[f]; ok {
			common = append(common, f)
		}
	}
	sort.Slice(common, func(i, j int) bool { return common[i] < common[j] })

	for _, f := range common {
		b := baseline.FrameworkResults[f]
		c := candidate.FrameworkResults[f]
		report.Deltas = append(report.Deltas, domain.FrameworkDelta{
			Framework:       f,
			BaselineStatus:  b.Status,
			CandidateStatus: c.Status,
			ScoreDelta:      c.Score - b.Score,
		})
	}

	baselineIssues := issueSet(baseline)
	candidateIssues := issueSet(candidate)

	for msg := range candidateIssues {
		if !baselineIssues[msg] {
			report.NewIssues = append(report.NewIssues, msg)
		}
	}
	for msg := range baselineIssues {
		if !candidateIssues[msg] {
			report.ResolvedIssues = append(report.ResolvedIssues, msg)
		}
	}
	sort.Strings(report.NewIssues)
	sort.Strings(report.ResolvedIssues)

	return report
}

func issueSet(resp *domain.ValidationResponse) map[string]bool {
	set := make(map[string]bool)
	for _, r := range resp.FrameworkResults {
		for _, issue := range r.Issues {
			set[issue.Message] = true
		}
	}
	return set
}
