// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-compliance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveRule stores a compliance rule with tenant isolation. Saving an
// existing (id, version) replaces it.
func (r *SQLRepository) SaveRule(ctx context.Context, tenantID string, rule *domain.ComplianceRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	condition, _ := json.Marshal(rule.Condition)
	jurisdictions, _ := json.Marshal(rule.Jurisdictions)

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()
	createdAt := rule.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	query := `
		INSERT INTO compliance_rules (
			id, tenant_id, name, description, version, framework, severity,
			condition, citation, jurisdictions, effective_from, expires_at,
			remediation, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			framework = excluded.framework,
			severity = excluded.severity,
			condition = excluded.condition,
			citation = excluded.citation,
			jurisdictions = excluded.jurisdictions,
			effective_from = excluded.effective_from,
			expires_at = excluded.expires_at,
			remediation = excluded.remediation,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Version, rule.Framework, rule.Severity,
		string(condition), rule.Citation, string(jurisdictions),
		rule.EffectiveFrom, rule.ExpiresAt,
		rule.Remediation, enabled,
		createdAt, now,
	)
	return err
}

// GetRule retrieves the latest enabled version of a rule with tenant isolation.
func (r *SQLRepository) GetRule(ctx context.Context, tenantID string, ruleID string) (*domain.ComplianceRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, framework, severity,
			   condition, citation, jurisdictions, effective_from, expires_at,
			   remediation, enabled, created_at, updated_at
		FROM compliance_rules
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rule, err
}

// ListRules retrieves all enabled rules for a tenant.
func (r *SQLRepository) ListRules(ctx context.Context, tenantID string) ([]*domain.ComplianceRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, framework, severity,
			   condition, citation, jurisdictions, effective_from, expires_at,
			   remediation, enabled, created_at, updated_at
		FROM compliance_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY framework, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRules(rows)
}

// ListRulesByFramework retrieves enabled rules for one framework.
func (r *SQLRepository) ListRulesByFramework(ctx context.Context, tenantID string, framework domain.ComplianceFramework) ([]*domain.ComplianceRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, framework, severity,
			   condition, citation, jurisdictions, effective_from, expires_at,
			   remediation, enabled, created_at, updated_at
		FROM compliance_rules
		WHERE tenant_id = ? AND framework = ? AND enabled = 1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, framework)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRules(rows)
}

// SaveResponse stores a validation response with tenant isolation.
func (r *SQLRepository) SaveResponse(ctx context.Context, tenantID string, resp *domain.ValidationResponse) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	frameworkResults, _ := json.Marshal(resp.FrameworkResults)
	issueCounts, _ := json.Marshal(resp.IssueCounts)
	conflicts, _ := json.Marshal(resp.Conflicts)
	recommendations, _ := json.Marshal(resp.Recommendations)

	query := `
		INSERT INTO validation_responses (
			id, tenant_id, request_id, request_hash, mode,
			overall_status, overall_score, framework_results,
			issue_counts, conflicts, recommendations, process_ms, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		resp.ResponseID, tenantID, resp.RequestID, resp.RequestHash, resp.Mode,
		resp.OverallStatus, resp.OverallScore, string(frameworkResults),
		string(issueCounts), string(conflicts), string(recommendations),
		resp.ProcessMs, resp.Timestamp,
	)
	return err
}

// GetResponse retrieves a validation response by ID with tenant isolation.
func (r *SQLRepository) GetResponse(ctx context.Context, tenantID string, responseID string) (*domain.ValidationResponse, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, request_id, request_hash, mode,
			   overall_status, overall_score, framework_results,
			   issue_counts, conflicts, recommendations, process_ms, timestamp
		FROM validation_responses
		WHERE tenant_id = ? AND id = ?
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, responseID)
	resp, err := scanResponse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return resp, err
}

// ListResponses retrieves responses since a time, oldest first, for trend
// analysis. limit <= 0 means no limit.
func (r *SQLRepository) ListResponses(ctx context.Context, tenantID string, since time.Time, limit int) ([]*domain.ValidationResponse, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, request_id, request_hash, mode,
			   overall_status, overall_score, framework_results,
			   issue_counts, conflicts, recommendations, process_ms, timestamp
		FROM validation_responses
		WHERE tenant_id = ? AND timestamp >= ?
		ORDER BY timestamp ASC
	`
	args := []any{tenantID, since}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var responses []*domain.ValidationResponse
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}

	return responses, rows.Err()
}

// CountResponses counts responses since a time without loading the rows.
func (r *SQLRepository) CountResponses(ctx context.Context, tenantID string, since time.Time) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*)
		FROM validation_responses
		WHERE tenant_id = ? AND timestamp >= ?
	`

	var count int64
	if err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, since).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// SaveAuditEvent stores an audit event with tenant isolation.
func (r *SQLRepository) SaveAuditEvent(ctx context.Context, tenantID string, event *domain.AuditEvent) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	details, _ := json.Marshal(event.TechnicalDetails)

	query := `
		INSERT INTO audit_events (
			id, tenant_id, event_type, compliance_id,
			description, severity, technical_details, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		event.EventID, tenantID, event.EventType, event.ComplianceID,
		event.Description, event.Severity, string(details), event.Timestamp,
	)
	return err
}

// ListAuditEvents retrieves the most recent audit events for a tenant.
func (r *SQLRepository) ListAuditEvents(ctx context.Context, tenantID string, limit int) ([]*domain.AuditEvent, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, event_type, compliance_id, description, severity, technical_details, timestamp
		FROM audit_events
		WHERE tenant_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.AuditEvent
	for rows.Next() {
		var ev domain.AuditEvent
		var details string

		if err := rows.Scan(
			&ev.EventID, &ev.EventType, &ev.ComplianceID,
			&ev.Description, &ev.Severity, &details, &ev.Timestamp,
		); err != nil {
			return nil, err
		}

		ev.TenantID = tenantID
		if details != "" {
			json.Unmarshal([]byte(details), &ev.TechnicalDetails)
		}
		events = append(events, &ev)
	}

	return events, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// scanner abstracts sql.Row and sql.Rows for shared scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

func scanRule(s scanner) (*domain.ComplianceRule, error) {
	var rule domain.ComplianceRule
	var condition, jurisdictions string
	var enabled int
	var effectiveFrom, expiresAt sql.NullTime

	if err := s.Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
		&rule.Version, &rule.Framework, &rule.Severity,
		&condition, &rule.Citation, &jurisdictions,
		&effectiveFrom, &expiresAt,
		&rule.Remediation, &enabled,
		&rule.CreatedAt, &rule.UpdatedAt,
	); err != nil {
		return nil, err
	}

	rule.Enabled = enabled == 1
	if effectiveFrom.Valid {
		rule.EffectiveFrom = effectiveFrom.Time
	}
	if expiresAt.Valid {
		rule.ExpiresAt = expiresAt.Time
	}
	if err := json.Unmarshal([]byte(condition), &rule.Condition); err != nil {
		return nil, fmt.Errorf("failed to parse rule condition for %s: %w", rule.ID, err)
	}
	if jurisdictions != "" {
		json.Unmarshal([]byte(jurisdictions), &rule.Jurisdictions)
	}

	return &rule, nil
}

func collectRules(rows *sql.Rows) ([]*domain.ComplianceRule, error) {
	var rules []*domain.ComplianceRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func scanResponse(s scanner) (*domain.ValidationResponse, error) {
	var resp domain.ValidationResponse
	var frameworkResults, issueCounts, conflicts, recommendations string

	if err := s.Scan(
		&resp.ResponseID, &resp.TenantID, &resp.RequestID, &resp.RequestHash, &resp.Mode,
		&resp.OverallStatus, &resp.OverallScore, &frameworkResults,
		&issueCounts, &conflicts, &recommendations,
		&resp.ProcessMs, &resp.Timestamp,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(frameworkResults), &resp.FrameworkResults); err != nil {
		return nil, fmt.Errorf("failed to parse framework results for %s: %w", resp.ResponseID, err)
	}
	if issueCounts != "" {
		json.Unmarshal([]byte(issueCounts), &resp.IssueCounts)
	}
	if conflicts != "" {
		json.Unmarshal([]byte(conflicts), &resp.Conflicts)
	}
	if recommendations != "" {
		json.Unmarshal([]byte(recommendations), &resp.Recommendations)
	}

	return &resp, nil
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
