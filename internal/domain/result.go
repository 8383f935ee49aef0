package domain

import "time"

// ValidationStatus is the verdict of a validation at rule, framework, or
// assessment level.
type ValidationStatus string

const (
	StatusCompliant          ValidationStatus = "COMPLIANT"
	StatusNonCompliant       ValidationStatus = "NON_COMPLIANT"
	StatusPartiallyCompliant ValidationStatus = "PARTIALLY_COMPLIANT"
	StatusPending            ValidationStatus = "PENDING"
	StatusError              ValidationStatus = "ERROR"
	StatusNotApplicable      ValidationStatus = "NOT_APPLICABLE"
)

// Severity ranks the impact of a rule or issue.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// severityRank orders severities for precedence comparisons. Lower is worse.
var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
	SeverityInfo:     4,
}

// Worse reports whether s is more severe than other.
func (s Severity) Worse(other Severity) bool {
	a, ok := severityRank[s]
	if !ok {
		a = len(severityRank)
	}
	b, ok := severityRank[other]
	if !ok {
		b = len(severityRank)
	}
	return a < b
}

// Issue is one finding produced during validation.
type Issue struct {
	Severity    Severity `json:"severity"`
	Message     string   `json:"message"`
	Field       string   `json:"field,omitempty"`
	RuleID      string   `json:"ruleId,omitempty"`
	Remediation string   `json:"remediation,omitempty"`
}

// ValidationResult is the immutable outcome of evaluating one rule, or one
// framework as a whole, against one document.
type ValidationResult struct {
	RuleID    string              `json:"ruleId,omitempty"`
	Framework ComplianceFramework `json:"framework"`
	Status    ValidationStatus    `json:"status"`
	Severity  Severity            `json:"severity,omitempty"`

	// Score is 0-100.
	Score float64 `json:"score"`

	Issues          []Issue  `json:"issues,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`

	// Evidence holds the extracted values the verdict was based on.
	Evidence map[string]any `json:"evidence,omitempty"`

	// RuleResults is the per-rule breakdown when this result is a
	// framework-level fold. Conflict detection reads it.
	RuleResults []ValidationResult `json:"ruleResults,omitempty"`

	ProcessMs int64     `json:"processMs"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// HasIssueAtLeast reports whether any issue is at or above the given severity.
func (r *ValidationResult) HasIssueAtLeast(sev Severity) bool {
	for _, issue := range r.Issues {
		if issue.Severity == sev || issue.Severity.Worse(sev) {
			return true
		}
	}
	return false
}

// RiskLevel classifies business or regulatory exposure.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// AssessmentMetadata carries processing information for one assessment.
type AssessmentMetadata struct {
	TraceID             string `json:"traceId,omitempty"`
	FrameworksRequested int    `json:"frameworksRequested"`
	FrameworksResolved  int    `json:"frameworksResolved"`
	Parallel            bool   `json:"parallel"`
	SelectionMs         int64  `json:"selectionMs"`
	ValidationMs        int64  `json:"validationMs"`
	TotalMs             int64  `json:"totalMs"`
	EngineVersion       string `json:"engineVersion"`
}

// ComplianceResult is the final per-assessment output. Immutable once returned.
//
// Invariant: OverallScore is the weight-normalized mean of the framework
// scores, and FrameworkResults keys are a subset of the frameworks resolved
// as applicable for the context.
type ComplianceResult struct {
	AssessmentID string `json:"assessmentId"`
	TenantID     string `json:"tenantId"`

	OverallStatus ValidationStatus `json:"overallStatus"`
	OverallScore  float64          `json:"overallScore"`

	FrameworkResults map[ComplianceFramework]*ValidationResult `json:"frameworkResults"`

	IssueCounts map[Severity]int `json:"issueCounts"`
	Conflicts   []RuleConflict   `json:"conflicts,omitempty"`

	Recommendations []string `json:"recommendations,omitempty"`
	PriorityActions []string `json:"priorityActions,omitempty"`

	BusinessRisk   RiskLevel `json:"businessRisk"`
	RegulatoryRisk RiskLevel `json:"regulatoryRisk"`

	Summary string `json:"summary"`

	Warnings []string `json:"warnings,omitempty"`

	Metadata  AssessmentMetadata `json:"metadata"`
	Timestamp time.Time          `json:"timestamp"`
}

// ValidationResponse is the cacheable output of the Universal Validator.
type ValidationResponse struct {
	ResponseID string `json:"responseId"`
	RequestID  string `json:"requestId,omitempty"`
	TenantID   string `json:"tenantId"`

	// RequestHash is the full request hash, kept for exact-duplicate
	// detection and audit. Distinct from the cache key.
	RequestHash string `json:"requestHash"`

	Mode ValidationMode `json:"mode"`

	OverallStatus    ValidationStatus                          `json:"overallStatus"`
	OverallScore     float64                                   `json:"overallScore"`
	FrameworkResults map[ComplianceFramework]*ValidationResult `json:"frameworkResults"`
	IssueCounts      map[Severity]int                          `json:"issueCounts"`
	Conflicts        []RuleConflict                            `json:"conflicts,omitempty"`
	Recommendations  []string                                  `json:"recommendations,omitempty"`

	ProcessMs int64     `json:"processMs"`
	Timestamp time.Time `json:"timestamp"`

	// FromCache marks a response replayed from cache. It is the one field
	// where a replay differs in memory from the original, and it is
	// excluded from serialization so cached and fresh responses stay
	// byte-equal on the wire.
	FromCache bool `json:"-"`
}

// ValidationMode selects the execution strategy for a validation request.
type ValidationMode string

const (
	// ModeFull runs all applicable frameworks in parallel with conflict
	// detection.
	ModeFull ValidationMode = "full"

	// ModeFast runs frameworks sequentially in priority order and skips
	// conflict detection.
	ModeFast ValidationMode = "fast"
)
