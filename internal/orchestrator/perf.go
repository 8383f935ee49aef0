package orchestrator

import (
	"sync"
	"time"

	"github.com/opensource-compliance/kestrel/internal/domain"
)

// Counters holds running assessment counters with a rolling average latency.
type Counters struct {
	Assessments int64   `json:"assessments"`
	Successes   int64   `json:"successes"`
	Failures    int64   `json:"failures"`
	AvgMs       float64 `json:"avgMs"`
}

func (c *Counters) record(elapsed time.Duration, success bool) {
	c.Assessments++
	if success {
		c.Successes++
	} else {
		c.Failures++
	}
	c.AvgMs += (float64(elapsed.Milliseconds()) - c.AvgMs) / float64(c.Assessments)
}

// PerfTracker keeps global and per-framework performance counters.
// Updates are append/replace-only under a single mutex; update rates are
// low relative to validation latency, so lock-free structures buy nothing.
type PerfTracker struct {
	mu          sync.Mutex
	global      Counters
	byFramework map[domain.ComplianceFramework]*Counters
}

// NewPerfTracker creates an empty tracker.
func NewPerfTracker() *PerfTracker {
	return &PerfTracker{
		byFramework: make(map[domain.ComplianceFramework]*Counters),
	}
}

// Record updates the global counters.
func (t *PerfTracker) Record(elapsed time.Duration, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.global.record(elapsed, success)
}

// RecordFramework updates one framework's counters.
func (t *PerfTracker) RecordFramework(f domain.ComplianceFramework, elapsed time.Duration, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.byFramework[f]
	if !ok {
		c = &Counters{}
		t.byFramework[f] = c
	}
	c.record(elapsed, success)
}

// Snapshot returns copies of the global and per-framework counters.
func (t *PerfTracker) Snapshot() (Counters, map[domain.ComplianceFramework]Counters) {
	t.mu.Lock()
	defer t.mu.Unlock()

	byFramework := make(map[domain.ComplianceFramework]Counters, len(t.byFramework))
	for f, c := range t.byFramework {
		byFramework[f] = *c
	}
	return t.global, byFramework
}
