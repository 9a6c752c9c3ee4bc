package research

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"scout/internal/core"
	"scout/internal/dedup"
	"scout/internal/logger"
)

// Orchestrator defaults.
const (
	// rrfK is the rank-fusion constant.
	rrfK = 60
	// resultDedupThreshold is the MinHash similarity above which two
	// merged results count as the same content.
	resultDedupThreshold = 0.85
	// DefaultLatencyBudget caps one topic's research fan-out.
	DefaultLatencyBudget = 90 * time.Second
	// DefaultCostBudget caps per-topic fan-out spend in USD, synthesis
	// excluded.
	DefaultCostBudget = 0.02
	// defaultMaxPerBackend is how many results each backend is asked for.
	defaultMaxPerBackend = 10
)

// interleaveOrder fixes the round-robin diversity ordering.
var interleaveOrder = []string{"tavily", "searxng", "gemini", "rss", "thenewsapi"}

// SourceCache is the orchestrator's view of the source-intelligence
// cache. A non-stale hit replaces a paid content fetch.
type SourceCache interface {
	Get(url string) (*core.SourceRecord, bool)
	Save(url, title, content, topicID string) error
}

// Queries are the three specialized query variants built per topic.
type Queries struct {
	Depth   string
	Breadth string
	Trends  string
}

// BuildQueries derives the per-horizon query variants from a topic title.
func BuildQueries(title string) Queries {
	return Queries{
		Depth:   title + " in-depth analysis research report",
		Breadth: title + " latest developments news coverage",
		Trends:  title + " emerging trends forecast outlook",
	}
}

// queryFor picks the variant matching a backend's horizon.
func (q Queries) queryFor(h Horizon) string {
	switch h {
	case HorizonDepth:
		return q.Depth
	case HorizonTrends:
		return q.Trends
	default:
		return q.Breadth
	}
}

// Orchestrator fans a topic out across all configured backends.
type Orchestrator struct {
	backends      []Backend
	cache         SourceCache
	minSuccessful int
	latencyBudget time.Duration
	costBudget    float64
	maxPerBackend int

	mu        sync.Mutex
	lastStats map[string]core.BackendRunStats
	cacheHits int
	cacheMiss int
}

// NewOrchestrator wires the orchestrator. cache may be nil, which
// disables the consult/persist steps.
func NewOrchestrator(backends []Backend, cache SourceCache, minSuccessful int) *Orchestrator {
	if minSuccessful < 1 {
		minSuccessful = 1
	}
	return &Orchestrator{
		backends:      backends,
		cache:         cache,
		minSuccessful: minSuccessful,
		latencyBudget: DefaultLatencyBudget,
		costBudget:    DefaultCostBudget,
		maxPerBackend: defaultMaxPerBackend,
	}
}

// backendOutcome is one backend's contribution to a run.
type backendOutcome struct {
	name    string
	results []core.SearchResult
	stats   core.BackendRunStats
}

// Research runs the full fan-out for one topic: specialized queries,
// parallel backends, RRF fusion, content dedup, diversity interleave, and
// cache refresh. The only error it returns is AllSourcesFailed.
func (o *Orchestrator) Research(ctx context.Context, topic core.Topic) ([]core.SearchResult, error) {
	ctx, cancel := withDeadline(ctx, o.latencyBudget)
	defer cancel()

	queries := BuildQueries(topic.Title)
	outcomes := o.fanOut(ctx, queries)

	stats := make(map[string]core.BackendRunStats, len(outcomes))
	var failed []string
	succeeded := 0
	perBackend := make(map[string][]core.SearchResult)
	for _, out := range outcomes {
		stats[out.name] = out.stats
		if out.stats.Succeeded {
			succeeded++
			perBackend[out.name] = out.results
		} else {
			failed = append(failed, out.name)
		}
	}
	o.setStats(stats)

	if succeeded < o.minSuccessful {
		sort.Strings(failed)
		return nil, &AllSourcesFailed{FailedBackends: failed}
	}

	fused := rrfFuse(perBackend)
	fused = dedup.DeduplicateResults(fused, resultDedupThreshold)
	fused = interleaveByBackend(fused)

	o.refreshCache(fused, topic.ID)

	logger.Info("research fan-out finished",
		"topic", topic.ID,
		"backends_ok", succeeded,
		"backends_failed", len(failed),
		"results", len(fused))
	return fused, nil
}

// fanOut queries every backend in parallel. A backend that would blow the
// remaining cost budget is skipped and reported as failed. Panics and
// errors never propagate; they become empty outcomes.
func (o *Orchestrator) fanOut(ctx context.Context, queries Queries) []backendOutcome {
	outcomes := make([]backendOutcome, len(o.backends))

	var costMu sync.Mutex
	spent := 0.0

	g, gctx := errgroup.WithContext(ctx)
	for i, backend := range o.backends {
		i, backend := i, backend
		g.Go(func() error {
			name := backend.Name()
			query := queries.queryFor(backend.Horizon())
			outcome := backendOutcome{name: name, stats: core.BackendRunStats{Requested: o.maxPerBackend}}

			costMu.Lock()
			overBudget := spent+backend.CostPerQuery() > o.costBudget
			if !overBudget {
				spent += backend.CostPerQuery()
			}
			costMu.Unlock()
			if overBudget {
				logger.Warn("backend skipped, cost budget exhausted", "backend", name, "budget", o.costBudget)
				outcomes[i] = outcome
				return nil
			}

			started := time.Now()
			results := o.safeSearch(gctx, backend, query)
			outcome.stats.LatencyMS = time.Since(started).Milliseconds()
			outcome.stats.Returned = len(results)
			outcome.stats.Succeeded = len(results) > 0
			outcome.results = results
			outcomes[i] = outcome
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// safeSearch converts a panicking backend into an empty result.
func (o *Orchestrator) safeSearch(ctx context.Context, backend Backend, query string) (results []core.SearchResult) {
	defer func() {
		if r := recover(); r != nil {
			logBackendError(backend.Name(), query, "panic", nil)
			results = nil
		}
	}()
	return backend.Search(ctx, query, o.maxPerBackend)
}

// rrfFuse merges per-backend ranked lists with reciprocal rank fusion.
// Each unique URL scores sum(1/(k+rank)) over the backends that returned
// it; the kept entry remembers its best-ranked provenance and the fused
// score.
func rrfFuse(perBackend map[string][]core.SearchResult) []core.SearchResult {
	type fusedEntry struct {
		result core.SearchResult
		score  float64
	}
	byURL := make(map[string]*fusedEntry)

	// Deterministic backend visit order.
	names := make([]string, 0, len(perBackend))
	for name := range perBackend {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, result := range perBackend[name] {
			if result.URL == "" {
				continue
			}
			entry, ok := byURL[result.URL]
			if !ok {
				entry = &fusedEntry{result: result}
				byURL[result.URL] = entry
			} else if entry.result.Content == "" && result.Content != "" {
				// First-seen backend keeps provenance; later copies may
				// still donate content the first one lacked.
				entry.result.Content = result.Content
			}
			entry.score += 1.0 / float64(rrfK+result.Rank)
		}
	}

	fused := make([]core.SearchResult, 0, len(byURL))
	for _, entry := range byURL {
		r := entry.result
		r.Score = entry.score
		fused = append(fused, r)
	}
	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].URL < fused[j].URL
	})
	return fused
}

// interleaveByBackend round-robins results across backends in the fixed
// diversity order, preserving fused-score order within each backend.
func interleaveByBackend(results []core.SearchResult) []core.SearchResult {
	buckets := make(map[string][]core.SearchResult)
	for _, r := range results {
		buckets[r.Backend] = append(buckets[r.Backend], r)
	}

	order := append([]string(nil), interleaveOrder...)
	// Backends outside the fixed order go last, alphabetically.
	var extra []string
	for backend := range buckets {
		known := false
		for _, name := range order {
			if name == backend {
				known = true
				break
			}
		}
		if !known {
			extra = append(extra, backend)
		}
	}
	sort.Strings(extra)
	order = append(order, extra...)

	out := make([]core.SearchResult, 0, len(results))
	for len(out) < len(results) {
		advanced := false
		for _, backend := range order {
			if len(buckets[backend]) == 0 {
				continue
			}
			out = append(out, buckets[backend][0])
			buckets[backend] = buckets[backend][1:]
			advanced = true
		}
		if !advanced {
			break
		}
	}
	return out
}

// refreshCache consults and refreshes the source-intelligence cache for
// every retained URL. Non-stale hits donate their cached preview when the
// result carries no content.
func (o *Orchestrator) refreshCache(results []core.SearchResult, topicID string) {
	if o.cache == nil {
		return
	}
	for i := range results {
		record, hit := o.cache.Get(results[i].URL)
		o.countCache(hit && record != nil && !record.IsStale)
		if hit && record != nil && !record.IsStale && results[i].Content == "" {
			results[i].Content = record.ContentPreview
		}
		if err := o.cache.Save(results[i].URL, results[i].Title, results[i].Content, topicID); err != nil {
			logger.Debug("source cache save failed", "url", results[i].URL, "error", err.Error())
		}
	}
}

func (o *Orchestrator) countCache(hit bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if hit {
		o.cacheHits++
	} else {
		o.cacheMiss++
	}
}

// CacheHitRate reports the cache consult hit rate across runs.
func (o *Orchestrator) CacheHitRate() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	total := o.cacheHits + o.cacheMiss
	if total == 0 {
		return 0
	}
	return float64(o.cacheHits) / float64(total)
}

func (o *Orchestrator) setStats(stats map[string]core.BackendRunStats) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastStats = stats
}

// GetBackendStatistics returns a copy of the last run's per-backend
// statistics.
func (o *Orchestrator) GetBackendStatistics() map[string]core.BackendRunStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]core.BackendRunStats, len(o.lastStats))
	for name, stats := range o.lastStats {
		out[name] = stats
	}
	return out
}
