package rules

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-compliance/kestrel/internal/domain"
)

// FieldKey derives the grouping key used to decide whether two rules from
// different frameworks talk about the same logical field: the trailing
// segment of the rule id after the last dot, falling back to the whole id.
// This is a heuristic detector of disagreement, not semantic equivalence.
func FieldKey(ruleID string) string {
	if idx := strings.LastIndex(ruleID, "."); idx >= 0 && idx < len(ruleID)-1 {
		return ruleID[idx+1:]
	}
	return ruleID
}

// DetectConflicts flags field keys where two or more frameworks produced
// differing status sets. The output is deterministic: conflicts are ordered
// by field key, frameworks within a conflict alphabetically.
func (e *Engine) DetectConflicts(resultsByFramework map[domain.ComplianceFramework][]domain.ValidationResult) []domain.RuleConflict {
	type verdict struct {
		framework domain.ComplianceFramework
		result    domain.ValidationResult
	}

	byKey := make(map[string][]verdict)
	for framework, results := range resultsByFramework {
		for _, r := range results {
			if r.RuleID == "" {
				continue
			}
			key := FieldKey(r.RuleID)
			byKey[key] = append(byKey[key], verdict{framework: framework, result: r})
		}
	}

	keys := make([]string, 0, len(byKey))
	for key := range byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	now := time.Now().UTC()
	var conflicts []domain.RuleConflict

	for _, key := range keys {
		verdicts := byKey[key]

		// Status set per framework, as a canonical signature.
		statusSets := make(map[domain.ComplianceFramework]map[domain.ValidationStatus]bool)
		for _, v := range verdicts {
			set, ok := statusSets[v.framework]
			if !ok {
				set = make(map[domain.ValidationStatus]bool)
				statusSets[v.framework] = set
			}
			set[v.result.Status] = true
		}
		if len(statusSets) < 2 {
			continue
		}

		signatures := make(map[string]bool)
		for _, set := range statusSets {
			signatures[statusSignature(set)] = true
		}
		if len(signatures) < 2 {
			continue
		}

		conflict := domain.RuleConflict{
			ID:         uuid.New().String(),
			FieldKey:   key,
			DetectedAt: now,
		}

		sort.Slice(verdicts, func(i, j int) bool {
			if verdicts[i].framework != verdicts[j].framework {
				return verdicts[i].framework < verdicts[j].framework
			}
			return verdicts[i].result.RuleID < verdicts[j].result.RuleID
		})

		seenFramework := make(map[domain.ComplianceFramework]bool)
		for _, v := range verdicts {
			entry := domain.ConflictEntry{
				Framework: v.framework,
				RuleID:    v.result.RuleID,
				Status:    v.result.Status,
				Severity:  v.result.Severity,
			}
			if rule, ok := e.Rule(v.result.RuleID); ok {
				entry.RuleCreatedAt = rule.CreatedAt
			}
			conflict.Entries = append(conflict.Entries, entry)
			conflict.RuleIDs = append(conflict.RuleIDs, v.result.RuleID)
			if !seenFramework[v.framework] {
				seenFramework[v.framework] = true
				conflict.Frameworks = append(conflict.Frameworks, v.framework)
			}
		}

		conflicts = append(conflicts, conflict)
	}

	return conflicts
}

func statusSignature(set map[domain.ValidationStatus]bool) string {
	statuses := make([]string, 0, len(set))
	for s := range set {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)
	return strings.Join(statuses, "|")
}

// ResolveConflicts applies one resolution strategy to every conflict and
// returns the resolution report. priorityOf supplies the static framework
// priority table (lower number wins). Conflicts are resolved in place on
// the returned copies; every resolution records a rationale.
func (e *Engine) ResolveConflicts(conflicts []domain.RuleConflict, strategy domain.ResolutionStrategy, priorityOf func(domain.ComplianceFramework) int) *domain.ResolutionReport {
	report := &domain.ResolutionReport{
		Strategy: strategy,
		Total:    len(conflicts),
	}

	for _, conflict := range conflicts {
		conflict.Strategy = strategy
		e.resolveOne(&conflict, strategy, priorityOf)
		if conflict.Resolved {
			report.Resolved++
		} else {
			report.Unresolved++
		}
		report.Conflicts = append(report.Conflicts, conflict)
	}

	return report
}

func (e *Engine) resolveOne(conflict *domain.RuleConflict, strategy domain.ResolutionStrategy, priorityOf func(domain.ComplianceFramework) int) {
	switch strategy {
	case domain.StrategyStrictPrecedence:
		winner := conflict.Entries[0]
		for _, entry := range conflict.Entries[1:] {
			if entry.Severity.Worse(winner.Severity) {
				winner = entry
			}
		}
		conflict.Resolved = true
		conflict.Resolution = fmt.Sprintf("%s:%s", winner.Framework, winner.Status)
		conflict.Rationale = fmt.Sprintf(
			"strict precedence: verdict %s from %s wins with highest severity %s on field %q",
			winner.Status, winner.Framework, winner.Severity, conflict.FieldKey)

	case domain.StrategyFrameworkPriority:
		winner := conflict.Entries[0]
		best := priorityOf(winner.Framework)
		for _, entry := range conflict.Entries[1:] {
			if p := priorityOf(entry.Framework); p < best {
				best = p
				winner = entry
			}
		}
		conflict.Resolved = true
		conflict.Resolution = fmt.Sprintf("%s:%s", winner.Framework, winner.Status)
		conflict.Rationale = fmt.Sprintf(
			"framework priority: %s (priority %d) outranks the other frameworks on field %q",
			winner.Framework, best, conflict.FieldKey)

	case domain.StrategyLatestRule:
		winner := conflict.Entries[0]
		for _, entry := range conflict.Entries[1:] {
			if entry.RuleCreatedAt.After(winner.RuleCreatedAt) {
				winner = entry
			}
		}
		conflict.Resolved = true
		conflict.Resolution = fmt.Sprintf("%s:%s", winner.Framework, winner.Status)
		conflict.Rationale = fmt.Sprintf(
			"latest rule: %s (defined %s) supersedes earlier rules on field %q",
			winner.RuleID, winner.RuleCreatedAt.Format(time.RFC3339), conflict.FieldKey)

	case domain.StrategyAggregate:
		conflict.Resolved = true
		conflict.Resolution = "aggregate"
		conflict.Rationale = fmt.Sprintf(
			"aggregate: all %d requirements on field %q retained; the document must satisfy every framework",
			len(conflict.Entries), conflict.FieldKey)

	case domain.StrategyManual:
		conflict.Resolved = false
		conflict.Rationale = fmt.Sprintf("manual review required for field %q; no automatic resolution applied", conflict.FieldKey)

	default:
		conflict.Resolved = false
		conflict.Rationale = fmt.Sprintf("unknown resolution strategy %q", strategy)
	}
}
