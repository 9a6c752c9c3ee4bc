// Package collect implements the discovery collectors. Every collector
// shares one contract: Collect never returns an error, it logs failures
// with (source, host, error_kind, duration_ms) and returns whatever
// documents it managed to gather.
package collect

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"scout/internal/config"
	"scout/internal/core"
	"scout/internal/dedup"
	"scout/internal/logger"
	"scout/internal/ratelimit"
)

// Collector is the uniform collection contract.
type Collector interface {
	Name() string
	Collect(ctx context.Context, cfg *config.MarketConfig) []core.Document
}

// maxConsecutiveFailures is the skip threshold per resource.
const maxConsecutiveFailures = 5

// failureBackoff is how long a tripped resource stays skipped.
const failureBackoff = 6 * time.Hour

// healthTracker keeps per-resource health records for one collector.
// Resources are feed URLs, subreddits, or query hosts.
type healthTracker struct {
	mu        sync.Mutex
	records   map[string]*core.HealthRecord
	skippedAt map[string]time.Time
}

func newHealthTracker() *healthTracker {
	return &healthTracker{
		records:   make(map[string]*core.HealthRecord),
		skippedAt: make(map[string]time.Time),
	}
}

// shouldSkip reports whether a resource has tripped its failure threshold
// and its backoff window has not yet elapsed.
func (h *healthTracker) shouldSkip(resource string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.records[resource]
	if !ok || rec.ConsecutiveFailures < maxConsecutiveFailures {
		return false
	}
	trippedAt, ok := h.skippedAt[resource]
	if !ok {
		h.skippedAt[resource] = time.Now()
		return true
	}
	if time.Since(trippedAt) > failureBackoff {
		// Window elapsed, allow one probe attempt.
		rec.ConsecutiveFailures = maxConsecutiveFailures - 1
		delete(h.skippedAt, resource)
		return false
	}
	return true
}

func (h *healthTracker) recordSuccess(resource string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec := h.record(resource)
	rec.SuccessCount++
	rec.ConsecutiveFailures = 0
	rec.LastSuccess = time.Now().UTC()
	rec.LastError = ""
	delete(h.skippedAt, resource)
}

func (h *healthTracker) recordFailure(resource string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec := h.record(resource)
	rec.FailureCount++
	rec.ConsecutiveFailures++
	if err != nil {
		rec.LastError = err.Error()
	}
}

// get returns a copy of the record for a resource.
func (h *healthTracker) get(resource string) core.HealthRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return *h.record(resource)
}

// set seeds a resource record, used to restore persisted health state.
func (h *healthTracker) set(resource string, rec core.HealthRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	copied := rec
	h.records[resource] = &copied
}

func (h *healthTracker) record(resource string) *core.HealthRecord {
	rec, ok := h.records[resource]
	if !ok {
		rec = &core.HealthRecord{}
		h.records[resource] = rec
	}
	return rec
}

// logCollectError emits the uniform collector failure log line.
func logCollectError(source, host, kind string, started time.Time, err error) {
	logger.Warn("collector error",
		"source", source,
		"host", host,
		"error_kind", kind,
		"duration_ms", time.Since(started).Milliseconds(),
		"error", errString(err))
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// newDocument builds a Document with deterministic ID and canonical URL.
// The ID is derived from the canonical URL so re-collection of the same
// page yields the same identity.
func newDocument(source, rawURL, title, content, summary string, cfg *config.MarketConfig) core.Document {
	canonical := dedup.CanonicalURL(rawURL)
	return core.Document{
		ID:           uuid.NewSHA1(uuid.NameSpaceURL, []byte(canonical)).String(),
		Source:       source,
		SourceURL:    rawURL,
		CanonicalURL: canonical,
		Title:        strings.TrimSpace(title),
		Content:      content,
		Summary:      summary,
		Language:     cfg.Language,
		Domain:       cfg.Domain,
		Market:       cfg.Market,
		Vertical:     cfg.Vertical,
		ContentHash:  dedup.ContentHash(content + title),
		FetchedAt:    time.Now().UTC(),
		Status:       core.DocumentStatusNew,
	}
}

// acquireHost blocks on the governor bucket for the URL's host.
func acquireHost(ctx context.Context, gov *ratelimit.Governor, rawURL string) (string, error) {
	host := ratelimit.HostOf(rawURL)
	return host, gov.Acquire(ctx, host)
}
