package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Compliance rule operations. Saving an existing (id, version) replaces it.
	SaveRule(ctx context.Context, tenantID string, rule *ComplianceRule) error
	GetRule(ctx context.Context, tenantID string, ruleID string) (*ComplianceRule, error)
	ListRules(ctx context.Context, tenantID string) ([]*ComplianceRule, error)
	ListRulesByFramework(ctx context.Context, tenantID string, framework ComplianceFramework) ([]*ComplianceRule, error)

	// Validation response operations. Responses are the persisted history
	// that feeds comparison and trend analysis.
	SaveResponse(ctx context.Context, tenantID string, resp *ValidationResponse) error
	GetResponse(ctx context.Context, tenantID string, responseID string) (*ValidationResponse, error)
	ListResponses(ctx context.Context, tenantID string, since time.Time, limit int) ([]*ValidationResponse, error)
	CountResponses(ctx context.Context, tenantID string, since time.Time) (int64, error)

	// Audit event overflow. The orchestrator's ring buffer is authoritative
	// for recent events; persistence here is best-effort.
	SaveAuditEvent(ctx context.Context, tenantID string, event *AuditEvent) error
	ListAuditEvents(ctx context.Context, tenantID string, limit int) ([]*AuditEvent, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
