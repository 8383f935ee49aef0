package repository

// Schema definitions for Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaComplianceRules = `
CREATE TABLE IF NOT EXISTS compliance_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    framework TEXT NOT NULL,
    severity TEXT NOT NULL,
    condition TEXT NOT NULL,
    citation TEXT,
    jurisdictions TEXT,
    effective_from TIMESTAMP,
    expires_at TIMESTAMP,
    remediation TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_compliance_rules_tenant ON compliance_rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_compliance_rules_framework ON compliance_rules(tenant_id, framework);
CREATE INDEX IF NOT EXISTS idx_compliance_rules_enabled ON compliance_rules(tenant_id, enabled);
`

const schemaValidationResponses = `
CREATE TABLE IF NOT EXISTS validation_responses (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    request_id TEXT,
    request_hash TEXT NOT NULL,
    mode TEXT NOT NULL,
    overall_status TEXT NOT NULL,
    overall_score REAL NOT NULL,
    framework_results TEXT NOT NULL,
    issue_counts TEXT,
    conflicts TEXT,
    recommendations TEXT,
    process_ms INTEGER NOT NULL,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_validation_responses_tenant ON validation_responses(tenant_id);
CREATE INDEX IF NOT EXISTS idx_validation_responses_hash ON validation_responses(tenant_id, request_hash);
CREATE INDEX IF NOT EXISTS idx_validation_responses_timestamp ON validation_responses(tenant_id, timestamp);
`

const schemaAuditEvents = `
CREATE TABLE IF NOT EXISTS audit_events (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    compliance_id TEXT,
    description TEXT NOT NULL,
    severity TEXT,
    technical_details TEXT,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_events_tenant ON audit_events(tenant_id);
CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(tenant_id, event_type);
CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(tenant_id, timestamp);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaComplianceRules,
		schemaValidationResponses,
		schemaAuditEvents,
	}
}
