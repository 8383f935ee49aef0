// Package worker consumes assessment requests from the event bus and runs
// them through the validation facade, publishing the verdict (or the
// failure) back onto the tenant's topics.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-compliance/kestrel/internal/domain"
	"github.com/opensource-compliance/kestrel/internal/universal"
)

// Worker holds one subscription per tenant on the assessment-requested
// topic.
type Worker struct {
	bus       domain.EventBus
	repo      domain.Repository
	validator *universal.Validator

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config names the tenants to serve. An empty list falls back to a single
// "_global" subscription, which only the in-process bus delivers to.
type Config struct {
	TenantIDs []string

	// WorkerCount is reserved for per-tenant concurrency; delivery is
	// currently one message at a time per subscription.
	WorkerCount int
}

// NewWorker wires the bus, optional repository, and the validation facade.
func NewWorker(bus domain.EventBus, repo domain.Repository, validator *universal.Validator) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		repo:      repo,
		validator: validator,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins processing assessment requests for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker serves the "_global" pseudo-tenant, used by local
// development setups that publish without per-tenant topics.
func (w *Worker) startGlobalWorker() error {
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicAssessmentRequested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker subscribes one tenant's requested topic.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicAssessmentRequested, func(ctx context.Context, msg *domain.Message) error {
		return w.processRequest(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicAssessmentRequested,
	)

	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processRequest(ctx, msg.TenantID, msg)
}

// validateRequest rejects requests that carry nothing to assess before
// they reach the validation pipeline.
func validateRequest(req *domain.ValidationRequest) error {
	if req.TenantID == "" {
		return fmt.Errorf("request %s has no tenant", req.RequestID)
	}
	if req.DocumentType == "" && len(req.Document) == 0 {
		return fmt.Errorf("request %s carries no document", req.RequestID)
	}
	return nil
}

// failurePayload is published to the failed topic when a request cannot
// be processed.
type failurePayload struct {
	RequestID string `json:"requestId"`
	TenantID  string `json:"tenantId"`
	Error     string `json:"error"`
}

// processRequest runs one assessment request through the validation pipeline.
func (w *Worker) processRequest(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var req domain.ValidationRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse validation request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if req.TenantID == "" {
		req.TenantID = tenantID
	}
	tenantID = req.TenantID

	if req.RequestID == "" {
		req.RequestID = msg.ID
	}

	slog.Debug("processing assessment request",
		"request_id", req.RequestID,
		"tenant_id", tenantID,
	)

	var resp *domain.ValidationResponse
	err := validateRequest(&req)
	if err == nil {
		resp, err = w.validator.Validate(ctx, &req)
	}
	if err != nil {
		slog.Error("assessment failed",
			"request_id", req.RequestID,
			"tenant_id", tenantID,
			"error", err,
		)

		payload, _ := json.Marshal(failurePayload{
			RequestID: req.RequestID,
			TenantID:  tenantID,
			Error:     err.Error(),
		})
		if pubErr := w.bus.Publish(ctx, tenantID, domain.TopicAssessmentFailed, payload); pubErr != nil {
			slog.Error("failed to publish assessment failure",
				"request_id", req.RequestID,
				"error", pubErr,
			)
		}
		return err
	}

	resultPayload, _ := json.Marshal(resp)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicAssessmentCompleted, resultPayload); err != nil {
		slog.Error("failed to publish assessment result",
			"request_id", req.RequestID,
			"error", err,
		)
	}

	slog.Info("assessment request processed",
		"request_id", req.RequestID,
		"tenant_id", tenantID,
		"status", resp.OverallStatus,
		"score", resp.OverallScore,
		"from_cache", resp.FromCache,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop detaches every subscription and waits for in-flight handlers.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
