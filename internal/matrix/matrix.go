// Package matrix holds the static compliance matrix: the lookup tables
// mapping document type, jurisdiction, and business type to the frameworks
// they require, plus the framework dependency, weight, and priority tables.
package matrix

import (
	"fmt"
	"sort"

	"github.com/opensource-compliance/kestrel/internal/domain"
)

// Synthetic jurisdiction codes derived during framework selection.
const (
	JurisdictionCrossBorder   = "cross_border"
	JurisdictionInternational = "international"
)

// DefaultWeight applies to frameworks without an explicit weight entry.
const DefaultWeight = 0.10

// DefaultPriority applies to frameworks without an explicit priority entry.
// Lower numbers mean higher priority.
const DefaultPriority = 10

// Matrix is the static framework registry. Built once at startup, read-only
// afterwards, so it is safe for concurrent use without locking.
type Matrix struct {
	byDocumentType map[string][]domain.ComplianceFramework
	byJurisdiction map[string][]domain.ComplianceFramework
	byBusinessType map[string][]domain.ComplianceFramework

	dependencies map[domain.ComplianceFramework][]domain.ComplianceFramework
	weights      map[domain.ComplianceFramework]float64
	priorities   map[domain.ComplianceFramework]int
	mandatory    map[domain.ComplianceFramework]bool
}

// New returns the default compliance matrix.
func New() *Matrix {
	m := &Matrix{
		byDocumentType: map[string][]domain.ComplianceFramework{
			"invoice":       {domain.FrameworkTaxAuthority, domain.FrameworkEInvoicing},
			"credit_note":   {domain.FrameworkTaxAuthority, domain.FrameworkEInvoicing},
			"trade_message": {domain.FrameworkTradeStandard, domain.FrameworkEInvoicing},
			"personal_data": {domain.FrameworkDataProtection},
		},
		byJurisdiction: map[string][]domain.ComplianceFramework{
			"NG": {domain.FrameworkTaxAuthority, domain.FrameworkEntityRegistry},
			"GH": {domain.FrameworkTaxAuthority},
			"EU": {domain.FrameworkDataProtection},
			"GB": {domain.FrameworkDataProtection},

			JurisdictionCrossBorder:   {domain.FrameworkTradeStandard, domain.FrameworkDataProtection},
			JurisdictionInternational: {domain.FrameworkEInvoicing, domain.FrameworkTradeStandard},
		},
		byBusinessType: map[string][]domain.ComplianceFramework{
			"registered_company": {domain.FrameworkEntityRegistry},
			"sole_proprietor":    {domain.FrameworkTaxAuthority},
			"data_processor":     {domain.FrameworkDataProtection},
			"exporter":           {domain.FrameworkTradeStandard},
		},
		dependencies: map[domain.ComplianceFramework][]domain.ComplianceFramework{
			domain.FrameworkTaxAuthority:  {domain.FrameworkEntityRegistry},
			domain.FrameworkEInvoicing:    {domain.FrameworkTaxAuthority},
			domain.FrameworkTradeStandard: {domain.FrameworkEInvoicing},
		},
		weights: map[domain.ComplianceFramework]float64{
			domain.FrameworkTaxAuthority:   0.30,
			domain.FrameworkDataProtection: 0.25,
			domain.FrameworkEInvoicing:     0.20,
			domain.FrameworkEntityRegistry: 0.15,
			domain.FrameworkTradeStandard:  0.10,
		},
		priorities: map[domain.ComplianceFramework]int{
			domain.FrameworkTaxAuthority:   1,
			domain.FrameworkEntityRegistry: 2,
			domain.FrameworkEInvoicing:     3,
			domain.FrameworkDataProtection: 4,
			domain.FrameworkTradeStandard:  5,
		},
		mandatory: map[domain.ComplianceFramework]bool{
			domain.FrameworkTaxAuthority:   true,
			domain.FrameworkEntityRegistry: true,
			domain.FrameworkDataProtection: true,
		},
	}
	return m
}

// Validate checks the dependency table for cycles. A cyclic table is a
// configuration error and must fail at startup, never at request time.
func (m *Matrix) Validate() error {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[domain.ComplianceFramework]int)

	var visit func(f domain.ComplianceFramework) error
	visit = func(f domain.ComplianceFramework) error {
		switch color[f] {
		case grey:
			return fmt.Errorf("dependency cycle through framework %q", f)
		case black:
			return nil
		}
		color[f] = grey
		for _, dep := range m.dependencies[f] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[f] = black
		return nil
	}

	for f := range m.dependencies {
		if err := visit(f); err != nil {
			return err
		}
	}
	return nil
}

// FrameworksForDocumentType returns the frameworks keyed by document type.
func (m *Matrix) FrameworksForDocumentType(docType string) []domain.ComplianceFramework {
	return m.byDocumentType[docType]
}

// FrameworksForJurisdiction returns the frameworks keyed by jurisdiction code.
func (m *Matrix) FrameworksForJurisdiction(code string) []domain.ComplianceFramework {
	return m.byJurisdiction[code]
}

// FrameworksForBusinessType returns the frameworks keyed by business type.
func (m *Matrix) FrameworksForBusinessType(businessType string) []domain.ComplianceFramework {
	return m.byBusinessType[businessType]
}

// Dependencies returns the direct dependencies of a framework.
func (m *Matrix) Dependencies(f domain.ComplianceFramework) []domain.ComplianceFramework {
	return m.dependencies[f]
}

// ResolveDependencies closes the given set under the dependency relation.
// The fixed point is reached by iteratively adding declared dependencies.
// The returned slice is sorted for determinism.
func (m *Matrix) ResolveDependencies(frameworks []domain.ComplianceFramework) []domain.ComplianceFramework {
	set := make(map[domain.ComplianceFramework]bool, len(frameworks))
	for _, f := range frameworks {
		set[f] = true
	}

	for {
		added := false
		for f := range set {
			for _, dep := range m.dependencies[f] {
				if !set[dep] {
					set[dep] = true
					added = true
				}
			}
		}
		if !added {
			break
		}
	}

	resolved := make([]domain.ComplianceFramework, 0, len(set))
	for f := range set {
		resolved = append(resolved, f)
	}
	sort.Slice(resolved, func(i, j int) bool { return resolved[i] < resolved[j] })
	return resolved
}

// Weight returns the scoring weight for a framework.
func (m *Matrix) Weight(f domain.ComplianceFramework) float64 {
	if w, ok := m.weights[f]; ok {
		return w
	}
	return DefaultWeight
}

// Priority returns the execution priority for a framework. Lower numbers
// run first in sequential mode and win under framework-priority conflict
// resolution.
func (m *Matrix) Priority(f domain.ComplianceFramework) int {
	if p, ok := m.priorities[f]; ok {
		return p
	}
	return DefaultPriority
}

// Mandatory reports whether non-compliance in the framework carries
// regulatory risk weight.
func (m *Matrix) Mandatory(f domain.ComplianceFramework) bool {
	return m.mandatory[f]
}

// SortByPriority orders frameworks by ascending priority number, with the
// framework name as a deterministic tiebreaker.
func (m *Matrix) SortByPriority(frameworks []domain.ComplianceFramework) {
	sort.SliceStable(frameworks, func(i, j int) bool {
		pi, pj := m.Priority(frameworks[i]), m.Priority(frameworks[j])
		if pi != pj {
			return pi < pj
		}
		return frameworks[i] < frameworks[j]
	})
}

// Snapshot is a serializable dump of the matrix for the API surface.
type Snapshot struct {
	Frameworks   []domain.ComplianceFramework                              `json:"frameworks"`
	Weights      map[domain.ComplianceFramework]float64                    `json:"weights"`
	Priorities   map[domain.ComplianceFramework]int                        `json:"priorities"`
	Dependencies map[domain.ComplianceFramework][]domain.ComplianceFramework `json:"dependencies"`
}

// Snapshot returns a copy of the matrix tables.
func (m *Matrix) Snapshot() Snapshot {
	snap := Snapshot{
		Frameworks:   domain.AllFrameworks(),
		Weights:      make(map[domain.ComplianceFramework]float64, len(m.weights)),
		Priorities:   make(map[domain.ComplianceFramework]int, len(m.priorities)),
		Dependencies: make(map[domain.ComplianceFramework][]domain.ComplianceFramework, len(m.dependencies)),
	}
	for f, w := range m.weights {
		snap.Weights[f] = w
	}
	for f, p := range m.priorities {
		snap.Priorities[f] = p
	}
	for f, deps := range m.dependencies {
		snap.Dependencies[f] = append([]domain.ComplianceFramework(nil), deps...)
	}
	return snap
}

// DeriveJurisdictions expands sender/receiver countries into jurisdiction
// codes, adding the synthetic cross-border jurisdiction when the countries
// differ and the international jurisdiction when any requested framework is
// an international standard.
func DeriveJurisdictions(sender, receiver string, extra []string, requested []domain.ComplianceFramework) []string {
	seen := make(map[string]bool)
	var codes []string

	add := func(code string) {
		if code != "" && !seen[code] {
			seen[code] = true
			codes = append(codes, code)
		}
	}

	add(sender)
	add(receiver)
	for _, j := range extra {
		add(j)
	}

	if sender != "" && receiver != "" && sender != receiver {
		add(JurisdictionCrossBorder)
	}

	for _, f := range requested {
		if f.IsInternational() {
			add(JurisdictionInternational)
			break
		}
	}

	return codes
}
