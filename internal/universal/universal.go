// Package universal provides the request-scoped validation facade: a
// cacheable wrapper around the orchestrator for repeated invocation.
package universal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-compliance/kestrel/internal/domain"
	"github.com/opensource-compliance/kestrel/internal/orchestrator"
)

// Validator is the Universal Validator facade. It caches validation
// responses keyed by (sorted frameworks, document fingerprint, mode) and
// tracks execution statistics across requests.
type Validator struct {
	orch  *orchestrator.Orchestrator
	cache domain.Cache
	repo  domain.Repository // optional, response history

	defaultTTL time.Duration

	mu    sync.Mutex
	stats ExecutionStats
}

// ExecutionStats tracks facade-level counters.
type ExecutionStats struct {
	Requests    int64 `json:"requests"`
	CacheHits   int64 `json:"cacheHits"`
	CacheMisses int64 `json:"cacheMisses"`
	Assessments int64 `json:"assessments"`
}

// New creates a Universal Validator. cache may be nil to disable caching
// entirely; repo may be nil to skip history persistence.
func New(orch *orchestrator.Orchestrator, cache domain.Cache, repo domain.Repository, defaultTTL time.Duration) *Validator {
	if defaultTTL <= 0 {
		defaultTTL = 15 * time.Minute
	}
	return &Validator{
		orch:       orch,
		cache:      cache,
		repo:       repo,
		defaultTTL: defaultTTL,
	}
}

// Validate runs one validation request through the cache and, on a miss,
// the orchestrator. Identical requests with caching enabled return the
// stored response without invoking any validator.
func (v *Validator) Validate(ctx context.Context, req *domain.ValidationRequest) (*domain.ValidationResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("validation request is required")
	}
	if req.TenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	v.mu.Lock()
	v.stats.Requests++
	v.mu.Unlock()

	mode := req.Mode
	if mode == "" {
		mode = domain.ModeFull
	}

	key := CacheKey(req.Frameworks, req.Document, mode)

	if req.CacheEnabled && v.cache != nil {
		cached, err := v.cache.GetResponse(ctx, req.TenantID, key)
		if err != nil {
			slog.Warn("cache lookup failed", "error", err)
		} else if cached != nil {
			v.mu.Lock()
			v.stats.CacheHits++
			v.mu.Unlock()
			cached.FromCache = true
			return cached, nil
		}
		v.mu.Lock()
		v.stats.CacheMisses++
		v.mu.Unlock()
	}

	start := time.Now()
	octx := req.ToOrchestrationContext()
	result, err := v.orch.Assess(ctx, octx)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	v.stats.Assessments++
	v.mu.Unlock()

	resp := &domain.ValidationResponse{
		ResponseID:       uuid.New().String(),
		RequestID:        req.RequestID,
		TenantID:         req.TenantID,
		RequestHash:      RequestHash(req),
		Mode:             mode,
		OverallStatus:    result.OverallStatus,
		OverallScore:     result.OverallScore,
		FrameworkResults: result.FrameworkResults,
		IssueCounts:      result.IssueCounts,
		Conflicts:        result.Conflicts,
		Recommendations:  result.Recommendations,
		ProcessMs:        time.Since(start).Milliseconds(),
		Timestamp:        result.Timestamp,
	}

	if req.CacheEnabled && v.cache != nil {
		ttl := req.CacheTTL
		if ttl <= 0 {
			ttl = v.defaultTTL
		}
		if err := v.cache.SetResponse(ctx, req.TenantID, key, resp, ttl); err != nil {
			slog.Warn("cache store failed", "error", err)
		}
	}

	if v.repo != nil {
		if err := v.repo.SaveResponse(ctx, req.TenantID, resp); err != nil {
			slog.Warn("failed to persist validation response", "error", err)
		}
	}

	return resp, nil
}

// ClearCache drops all cached responses for a tenant.
func (v *Validator) ClearCache(ctx context.Context, tenantID string) error {
	if v.cache == nil {
		return nil
	}
	return v.cache.Clear(ctx, tenantID)
}

// Stats returns a copy of the facade counters.
func (v *Validator) Stats() ExecutionStats {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stats
}

// CacheKey builds the deterministic cache key: SHA-256 over the sorted
// framework list, the document content fingerprint, and the mode.
func CacheKey(frameworks []domain.ComplianceFramework, document map[string]any, mode domain.ValidationMode) string {
	names := make([]string, 0, len(frameworks))
	for _, f := range frameworks {
		names = append(names, string(f))
	}
	sort.Strings(names)

	h := sha256.New()
	h.Write([]byte(strings.Join(names, ",")))
	h.Write([]byte{0})
	h.Write([]byte(Fingerprint(document)))
	h.Write([]byte{0})
	h.Write([]byte(mode))
	return hex.EncodeToString(h.Sum(nil))
}

// RequestHash hashes the whole request for exact-duplicate detection and
// audit. Distinct from the cache key, which ignores request identity.
func RequestHash(req *domain.ValidationRequest) string {
	shadow := *req
	shadow.RequestID = ""

	payload, err := json.Marshal(shadow)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Fingerprint produces a stable content hash of a document. Maps are
// serialized with sorted keys so logically equal documents hash equally.
func Fingerprint(document map[string]any) string {
	var b strings.Builder
	writeCanonical(&b, document)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func writeCanonical(b *strings.Builder, v any) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(k)
			b.WriteByte(':')
			writeCanonical(b, t[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, item)
		}
		b.WriteByte(']')
	default:
		fmt.Fprintf(b, "%v", t)
	}
}
