package domain

import "time"

// ResolutionStrategy selects how a cross-framework conflict is resolved.
type ResolutionStrategy string

const (
	// StrategyStrictPrecedence lets the highest-severity verdict win.
	StrategyStrictPrecedence ResolutionStrategy = "strict_precedence"

	// StrategyFrameworkPriority lets the framework with the lowest priority
	// number (highest priority) win, using the compliance matrix table.
	StrategyFrameworkPriority ResolutionStrategy = "framework_priority"

	// StrategyLatestRule lets the most recently defined rule win.
	StrategyLatestRule ResolutionStrategy = "latest_rule"

	// StrategyAggregate unions all requirements; nothing is discarded.
	StrategyAggregate ResolutionStrategy = "aggregate"

	// StrategyManual marks the conflict unresolved for human review.
	// Terminal state.
	StrategyManual ResolutionStrategy = "manual"
)

// ConflictEntry is one framework's verdict participating in a conflict.
type ConflictEntry struct {
	Framework     ComplianceFramework `json:"framework"`
	RuleID        string              `json:"ruleId"`
	Status        ValidationStatus    `json:"status"`
	Severity      Severity            `json:"severity,omitempty"`
	RuleCreatedAt time.Time           `json:"ruleCreatedAt,omitempty"`
}

// RuleConflict records that two or more frameworks produced incompatible
// verdicts for the same logical field. Always references at least two
// distinct frameworks.
type RuleConflict struct {
	ID string `json:"id"`

	// FieldKey is the derived grouping key the disagreement was detected on.
	FieldKey string `json:"fieldKey"`

	Frameworks []ComplianceFramework `json:"frameworks"`
	RuleIDs    []string              `json:"ruleIds"`
	Entries    []ConflictEntry       `json:"entries"`

	Strategy ResolutionStrategy `json:"strategy,omitempty"`
	Resolved bool               `json:"resolved"`

	// Resolution names the winning verdict or framework; empty while
	// unresolved.
	Resolution string `json:"resolution,omitempty"`

	// Rationale is the human-readable explanation recorded at resolution.
	Rationale string `json:"rationale,omitempty"`

	DetectedAt time.Time `json:"detectedAt"`
}

// ResolutionReport summarizes a conflict resolution pass.
type ResolutionReport struct {
	Strategy   ResolutionStrategy `json:"strategy"`
	Total      int                `json:"total"`
	Resolved   int                `json:"resolved"`
	Unresolved int                `json:"unresolved"`
	Conflicts  []RuleConflict     `json:"conflicts"`
}
