package domain

import "time"

// AuditEventType classifies audit trail entries.
type AuditEventType string

const (
	AuditAssessmentStarted   AuditEventType = "assessment_started"
	AuditAssessmentCompleted AuditEventType = "assessment_completed"
	AuditAssessmentFailed    AuditEventType = "assessment_failed"
	AuditConflictDetected    AuditEventType = "conflict_detected"
	AuditCacheHit            AuditEventType = "cache_hit"
	AuditValidatorRegistered AuditEventType = "validator_registered"
)

// AuditEvent is one entry in the bounded, time-ordered audit stream.
// Persistence beyond the in-memory ring buffer is an external concern.
type AuditEvent struct {
	EventID      string         `json:"eventId"`
	Timestamp    time.Time      `json:"timestamp"`
	EventType    AuditEventType `json:"eventType"`
	ComplianceID string         `json:"complianceId,omitempty"`
	TenantID     string         `json:"tenantId,omitempty"`
	Description  string         `json:"description"`
	Severity     Severity       `json:"severity,omitempty"`

	TechnicalDetails map[string]any `json:"technicalDetails,omitempty"`
}
