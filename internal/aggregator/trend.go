package aggregator

import (
	"fmt"
	"math"

	"github.com/opensource-compliance/kestrel/internal/domain"
)

// slopeThreshold separates stable from improving/declining trends.
const slopeThreshold = 0.5

// TrendAnalysis fits a least-squares line over the overall score series and
// each severity's issue-count series of a time-ordered response history.
// Requires at least two points.
func (a *Aggregator) TrendAnalysis(history []*domain.ValidationResponse) (*domain.TrendReport, error) {
	if len(history) < 2 {
		return nil, fmt.Errorf("trend analysis requires at least 2 historical points, got %d", len(history))
	}

	report := &domain.TrendReport{
		Points:         len(history),
		SeveritySlopes: make(map[domain.Severity]float64),
		PeriodsToFull:  -1,
	}

	scores := make([]float64, len(history))
	for i, resp := range history {
		scores[i] = resp.OverallScore
	}
	report.ScoreSlope = leastSquaresSlope(scores)

	switch {
	case math.Abs(report.ScoreSlope) <= slopeThreshold:
		report.Direction = domain.TrendStable
	case report.ScoreSlope > 0:
		report.Direction = domain.TrendImproving
	default:
		report.Direction = domain.TrendDeclining
	}

	for _, sev := range []domain.Severity{
		domain.SeverityCritical, domain.SeverityHigh, domain.SeverityMedium,
		domain.SeverityLow, domain.SeverityInfo,
	} {
		counts := make([]float64, len(history))
		any := false
		for i, resp := range history {
			n := resp.IssueCounts[sev]
			counts[i] = float64(n)
			if n > 0 {
				any = true
			}
		}
		if any {
			report.SeveritySlopes[sev] = leastSquaresSlope(counts)
		}
	}

	latest := scores[len(scores)-1]
	projected := latest + report.ScoreSlope
	report.ProjectedNextScore = clamp(projected, 0, 100)

	if report.Direction == domain.TrendImproving && latest < 100 {
		report.PeriodsToFull = int(math.Ceil((100 - latest) / report.ScoreSlope))
	}

	return report, nil
}

// leastSquaresSlope fits y = a + b*x over x = 0..n-1 and returns b.
func leastSquaresSlope(ys []float64) float64 {
	n := float64(len(ys))
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
