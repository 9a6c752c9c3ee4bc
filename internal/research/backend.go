// Package research fans a topic out across heterogeneous search backends
// and fuses the ranked results. Backends absorb their own failures; the
// orchestrator's only externally visible error is AllSourcesFailed.
package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"scout/internal/core"
	"scout/internal/logger"
)

// Horizon describes what kind of coverage a backend specializes in.
type Horizon string

const (
	HorizonDepth    Horizon = "DEPTH"
	HorizonBreadth  Horizon = "BREADTH"
	HorizonTrends   Horizon = "TRENDS"
	HorizonCurated  Horizon = "CURATED"
	HorizonBreaking Horizon = "BREAKING"
)

// Health is the backend health-check outcome.
type Health string

const (
	HealthOK       Health = "ok"
	HealthDegraded Health = "degraded"
	HealthFailed   Health = "failed"
)

// Backend is the uniform research-backend contract. Search never returns
// an error; failures are logged and yield an empty slice.
type Backend interface {
	Name() string
	Horizon() Horizon
	CostPerQuery() float64
	SupportsCitations() bool
	Search(ctx context.Context, query string, maxResults int) []core.SearchResult
	HealthCheck(ctx context.Context) Health
}

// logBackendError emits the uniform backend failure record.
func logBackendError(backend, query, kind string, err error) {
	logger.Warn("backend error",
		"backend", backend,
		"query", query,
		"kind", kind,
		"detail", errDetail(err))
}

func errDetail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// AllSourcesFailed is raised when fewer than min_successful_backends
// produced results for a topic.
type AllSourcesFailed struct {
	FailedBackends []string
}

func (e *AllSourcesFailed) Error() string {
	return fmt.Sprintf("all research sources failed: %s", strings.Join(e.FailedBackends, ", "))
}

// domainOf extracts the bare domain for a result URL.
func domainOf(rawURL string) string {
	rest := rawURL
	if idx := strings.Index(rest, "://"); idx >= 0 {
		rest = rest[idx+3:]
	}
	if idx := strings.IndexAny(rest, "/?#"); idx >= 0 {
		rest = rest[:idx]
	}
	return strings.TrimPrefix(strings.ToLower(rest), "www.")
}

// rankResults fills Backend, Rank, and Domain on a result list.
func rankResults(backend string, results []core.SearchResult) []core.SearchResult {
	for i := range results {
		results[i].Backend = backend
		results[i].Rank = i + 1
		if results[i].Domain == "" {
			results[i].Domain = domainOf(results[i].URL)
		}
	}
	return results
}

// withDeadline clamps a context to a ceiling unless it already has a
// tighter one.
func withDeadline(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < d {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
