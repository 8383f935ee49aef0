package domain

import "time"

// ReadinessLevel classifies how close a business is to full compliance.
type ReadinessLevel string

const (
	ReadinessNotReady       ReadinessLevel = "not_ready"
	ReadinessPartiallyReady ReadinessLevel = "partially_ready"
	ReadinessMostlyReady    ReadinessLevel = "mostly_ready"
	ReadinessReady          ReadinessLevel = "ready"
)

// ActionPlan stages remediation work by urgency.
type ActionPlan struct {
	Immediate []string `json:"immediate,omitempty"`
	ShortTerm []string `json:"shortTerm,omitempty"`
	LongTerm  []string `json:"longTerm,omitempty"`
}

// AggregatedValidationResult combines multiple validation responses, e.g.
// across time or batch runs, into weighted framework scores, risk and
// readiness classification, and a staged action plan.
type AggregatedValidationResult struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId,omitempty"`

	ResponsesAggregated int `json:"responsesAggregated"`

	OverallScore    float64                         `json:"overallScore"`
	FrameworkScores map[ComplianceFramework]float64 `json:"frameworkScores"`

	FullyCompliant     []ComplianceFramework `json:"fullyCompliant,omitempty"`
	PartiallyCompliant []ComplianceFramework `json:"partiallyCompliant,omitempty"`
	NonCompliant       []ComplianceFramework `json:"nonCompliant,omitempty"`

	IssueCounts   map[Severity]int `json:"issueCounts"`
	OpenConflicts int              `json:"openConflicts"`

	BusinessRisk RiskLevel      `json:"businessRisk"`
	Readiness    ReadinessLevel `json:"readiness"`

	ActionPlan ActionPlan `json:"actionPlan"`

	GeneratedAt time.Time `json:"generatedAt"`
}

// FrameworkDelta is the per-framework difference between two responses.
type FrameworkDelta struct {
	Framework      ComplianceFramework `json:"framework"`
	BaselineStatus ValidationStatus    `json:"baselineStatus"`
	CandidateStatus ValidationStatus   `json:"candidateStatus"`
	ScoreDelta     float64             `json:"scoreDelta"`
}

// ComparisonReport diffs a candidate response against a baseline.
type ComparisonReport struct {
	BaselineID  string `json:"baselineId"`
	CandidateID string `json:"candidateId"`

	Deltas []FrameworkDelta `json:"deltas,omitempty"`

	NewIssues      []string `json:"newIssues,omitempty"`
	ResolvedIssues []string `json:"resolvedIssues,omitempty"`

	// NetImprovement is the candidate overall score minus the baseline's.
	NetImprovement float64 `json:"netImprovement"`
}

// TrendDirection classifies a score trajectory.
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendDeclining TrendDirection = "declining"
	TrendStable    TrendDirection = "stable"
)

// TrendReport is the output of trend analysis over a response history.
type TrendReport struct {
	Points int `json:"points"`

	// ScoreSlope is the least-squares slope over the overall score series.
	ScoreSlope float64        `json:"scoreSlope"`
	Direction  TrendDirection `json:"direction"`

	// SeveritySlopes holds per-severity slopes over issue-count series.
	SeveritySlopes map[Severity]float64 `json:"severitySlopes,omitempty"`

	// ProjectedNextScore linearly extrapolates the next overall score,
	// clamped to [0, 100].
	ProjectedNextScore float64 `json:"projectedNextScore"`

	// PeriodsToFull is the projected number of periods to reach a score of
	// 100 when the trend is improving; -1 otherwise.
	PeriodsToFull int `json:"periodsToFull"`
}
