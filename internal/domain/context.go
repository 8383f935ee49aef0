package domain

import "time"

// OrchestrationContext is the read-only input envelope for one assessment.
// The caller constructs it; the engine never mutates it.
type OrchestrationContext struct {
	AssessmentID string `json:"assessmentId,omitempty"`
	TenantID     string `json:"tenantId"`
	TraceID      string `json:"traceId,omitempty"`

	// Document is the payload under assessment.
	Document map[string]any `json:"document"`

	// DocumentType keys framework selection, e.g. "invoice",
	// "trade_message", "personal_data".
	DocumentType string `json:"documentType"`

	// BusinessType keys framework selection, e.g. "registered_company",
	// "sole_proprietor", "data_processor".
	BusinessType string `json:"businessType,omitempty"`

	SenderCountry   string `json:"senderCountry,omitempty"`
	ReceiverCountry string `json:"receiverCountry,omitempty"`

	// RequiredFrameworks are always assessed (validator permitting).
	RequiredFrameworks []ComplianceFramework `json:"requiredFrameworks,omitempty"`

	// OptionalFrameworks are added to the applicable set but carry no
	// mandatory weight in risk classification.
	OptionalFrameworks []ComplianceFramework `json:"optionalFrameworks,omitempty"`

	// Jurisdictions lists extra jurisdiction codes beyond those derived
	// from the sender/receiver countries.
	Jurisdictions []string `json:"jurisdictions,omitempty"`

	// Execution knobs.
	Parallel          bool          `json:"parallel"`
	MaxValidationTime time.Duration `json:"maxValidationTime,omitempty"`
	CacheEnabled      bool          `json:"cacheEnabled"`

	// ConflictStrategy selects how cross-framework conflicts are resolved.
	// Empty defaults to framework priority.
	ConflictStrategy ResolutionStrategy `json:"conflictStrategy,omitempty"`
}

// ValidationRequest is the input to the Universal Validator facade.
type ValidationRequest struct {
	RequestID string `json:"requestId,omitempty"`
	TenantID  string `json:"tenantId"`

	Document     map[string]any `json:"document"`
	DocumentType string         `json:"documentType"`
	BusinessType string         `json:"businessType,omitempty"`

	SenderCountry   string `json:"senderCountry,omitempty"`
	ReceiverCountry string `json:"receiverCountry,omitempty"`

	// Frameworks explicitly requested. Empty means derive from the
	// compliance matrix via document type, jurisdictions, and business type.
	Frameworks []ComplianceFramework `json:"frameworks,omitempty"`

	Mode ValidationMode `json:"mode,omitempty"`

	CacheEnabled bool          `json:"cacheEnabled"`
	CacheTTL     time.Duration `json:"cacheTTL,omitempty"`

	MaxValidationTime time.Duration `json:"maxValidationTime,omitempty"`
}

// ToOrchestrationContext converts a validation request into the engine's
// input envelope.
func (r *ValidationRequest) ToOrchestrationContext() *OrchestrationContext {
	return &OrchestrationContext{
		AssessmentID:       r.RequestID,
		TenantID:           r.TenantID,
		Document:           r.Document,
		DocumentType:       r.DocumentType,
		BusinessType:       r.BusinessType,
		SenderCountry:      r.SenderCountry,
		ReceiverCountry:    r.ReceiverCountry,
		RequiredFrameworks: r.Frameworks,
		Parallel:           r.Mode != ModeFast,
		MaxValidationTime:  r.MaxValidationTime,
		CacheEnabled:       r.CacheEnabled,
	}
}
