// Package ratelimit provides the per-host token-bucket governor and the
// timeout envelope used around every external call.
package ratelimit

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"scout/internal/logger"
)

// Default request rates per host class.
const (
	WebRate          = rate.Limit(2.0)  // general web fetchers
	RedditRate       = rate.Limit(1.0)  // reddit API
	AutocompleteRate = rate.Limit(10.0) // autocomplete endpoints

	// DefaultCollectorConcurrency caps in-flight requests per collector.
	DefaultCollectorConcurrency = 4
)

// Governor owns per-host token buckets and per-collector concurrency caps.
// It is process-wide; all acquires are atomic.
type Governor struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	rates   map[string]rate.Limit // explicit per-host overrides
	slots   map[string]chan struct{}
}

// NewGovernor creates a governor with empty bucket state.
func NewGovernor() *Governor {
	return &Governor{
		buckets: make(map[string]*rate.Limiter),
		rates:   make(map[string]rate.Limit),
		slots:   make(map[string]chan struct{}),
	}
}

// SetHostRate overrides the request rate for a host before its bucket is
// first used.
func (g *Governor) SetHostRate(host string, r rate.Limit) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rates[normalizeHost(host)] = r
}

// Acquire blocks cooperatively until the host's bucket grants a token or the
// context is cancelled.
func (g *Governor) Acquire(ctx context.Context, host string) error {
	return g.limiterFor(host).Wait(ctx)
}

// Charge consumes a token without waiting. Used when an enveloped call is
// abandoned on deadline so the host still pays for the attempt.
func (g *Governor) Charge(host string) {
	g.limiterFor(host).Allow()
}

func (g *Governor) limiterFor(host string) *rate.Limiter {
	host = normalizeHost(host)
	g.mu.Lock()
	defer g.mu.Unlock()
	if l, ok := g.buckets[host]; ok {
		return l
	}
	r := WebRate
	if override, ok := g.rates[host]; ok {
		r = override
	} else if strings.Contains(host, "reddit") {
		r = RedditRate
	} else if strings.Contains(host, "suggestqueries") || strings.Contains(host, "autocomplete") {
		r = AutocompleteRate
	}
	l := rate.NewLimiter(r, burstFor(r))
	g.buckets[host] = l
	return l
}

func burstFor(r rate.Limit) int {
	b := int(r)
	if b < 1 {
		b = 1
	}
	return b
}

// CollectorSlot returns the concurrency gate for a named collector,
// creating it with the default cap on first use. Callers send to reserve and
// receive to release.
func (g *Governor) CollectorSlot(collector string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.slots[collector]; ok {
		return s
	}
	s := make(chan struct{}, DefaultCollectorConcurrency)
	g.slots[collector] = s
	return s
}

// HostOf extracts the lowercase host from a URL, for bucket keying.
func HostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return normalizeHost(u.Hostname())
}

func normalizeHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

// Envelope runs fn in a bounded worker with a hard deadline. On deadline
// elapse the call is abandoned, the host's bucket is charged, and the zero
// value is returned; the caller never sees an error from the envelope
// itself. Third-party calls with no native timeout go through here.
func Envelope[T any](ctx context.Context, g *Governor, host string, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, bool) {
	var zero T

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		v, err := fn(ctx)
		ch <- outcome{val: v, err: err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			logger.Debug("enveloped call failed", "host", host, "error", out.err.Error())
			return zero, false
		}
		return out.val, true
	case <-ctx.Done():
		if g != nil {
			g.Charge(host)
		}
		logger.Warn("enveloped call abandoned on deadline", "host", host, "timeout", timeout.String())
		return zero, false
	}
}
