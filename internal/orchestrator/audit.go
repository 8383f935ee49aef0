package orchestrator

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-compliance/kestrel/internal/domain"
)

// AuditLog is a bounded, time-ordered ring buffer of audit events.
// When full it drops the oldest entry. Append-only, single writer at a time.
type AuditLog struct {
	mu       sync.Mutex
	capacity int
	events   []domain.AuditEvent
	start    int
	count    int
}

// NewAuditLog creates a ring buffer with the given fixed capacity.
func NewAuditLog(capacity int) *AuditLog {
	if capacity <= 0 {
		capacity = 1000
	}
	return &AuditLog{
		capacity: capacity,
		events:   make([]domain.AuditEvent, capacity),
	}
}

// Append records one event, dropping the oldest when at capacity.
func (l *AuditLog) Append(event domain.AuditEvent) {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	idx := (l.start + l.count) % l.capacity
	l.events[idx] = event
	if l.count < l.capacity {
		l.count++
	} else {
		l.start = (l.start + 1) % l.capacity
	}
}

// Events returns a copy of the buffer in insertion order, oldest first.
func (l *AuditLog) Events() []domain.AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.AuditEvent, l.count)
	for i := 0; i < l.count; i++ {
		out[i] = l.events[(l.start+i)%l.capacity]
	}
	return out
}

// Len returns the number of buffered events.
func (l *AuditLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}
