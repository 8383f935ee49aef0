// Package history provides access to persisted validation response history.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-compliance/kestrel/internal/domain"
)

// Service reads validation response history for trend and comparison
// analysis. Responses come back oldest first, the order trend fitting expects.
type Service struct {
	repo domain.Repository
}

// NewService creates a new history service.
func NewService(repo domain.Repository) *Service {
	return &Service{repo: repo}
}

// Responses returns responses for a tenant within the lookback window,
// oldest first. limit <= 0 means no limit.
func (s *Service) Responses(ctx context.Context, tenantID string, lookback time.Duration, limit int) ([]*domain.ValidationResponse, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}
	if s.repo == nil {
		return nil, fmt.Errorf("no data source available")
	}

	since := time.Now().Add(-lookback)
	responses, err := s.repo.ListResponses(ctx, tenantID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list responses: %w", err)
	}
	return responses, nil
}

// Latest returns the most recent response within the lookback window, or
// nil when the tenant has no history.
func (s *Service) Latest(ctx context.Context, tenantID string, lookback time.Duration) (*domain.ValidationResponse, error) {
	responses, err := s.Responses(ctx, tenantID, lookback, 0)
	if err != nil {
		return nil, err
	}
	if len(responses) == 0 {
		return nil, nil
	}
	return responses[len(responses)-1], nil
}

// AssessmentCount returns how many validation responses a tenant recorded
// within a time window.
func (s *Service) AssessmentCount(ctx context.Context, tenantID string, windowSecs int) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("tenantID is required")
	}
	if s.repo == nil {
		return 0, fmt.Errorf("no data source available")
	}

	since := time.Now().Add(-time.Duration(windowSecs) * time.Second)
	count, err := s.repo.CountResponses(ctx, tenantID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count responses: %w", err)
	}
	return count, nil
}
