package research

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"scout/internal/core"
)

// stubBackend is a configurable in-memory backend.
type stubBackend struct {
	name    string
	horizon Horizon
	cost    float64
	results []core.SearchResult
	panics  bool
	queries []string
}

func (s *stubBackend) Name() string            { return s.name }
func (s *stubBackend) Horizon() Horizon        { return s.horizon }
func (s *stubBackend) CostPerQuery() float64   { return s.cost }
func (s *stubBackend) SupportsCitations() bool { return false }
func (s *stubBackend) HealthCheck(context.Context) Health {
	return HealthOK
}

func (s *stubBackend) Search(_ context.Context, query string, _ int) []core.SearchResult {
	s.queries = append(s.queries, query)
	if s.panics {
		panic("backend exploded")
	}
	return rankResults(s.name, append([]core.SearchResult(nil), s.results...))
}

func result(url, title string) core.SearchResult {
	return core.SearchResult{URL: url, Title: title, Snippet: title}
}

func testTopic() core.Topic {
	return core.Topic{ID: "battery-storage", Title: "battery storage"}
}

func TestResearchAllSourcesFailed(t *testing.T) {
	o := NewOrchestrator([]Backend{
		&stubBackend{name: "tavily", horizon: HorizonDepth},
		&stubBackend{name: "searxng", horizon: HorizonBreadth},
	}, nil, 1)

	_, err := o.Research(context.Background(), testTopic())
	var asf *AllSourcesFailed
	if !errors.As(err, &asf) {
		t.Fatalf("expected AllSourcesFailed, got %v", err)
	}
	if len(asf.FailedBackends) != 2 {
		t.Errorf("failed backends = %v", asf.FailedBackends)
	}
}

func TestResearchMinSuccessfulBackends(t *testing.T) {
	ok := &stubBackend{name: "searxng", horizon: HorizonBreadth,
		results: []core.SearchResult{result("https://a.example/1", "one")}}
	dead := &stubBackend{name: "tavily", horizon: HorizonDepth}

	o := NewOrchestrator([]Backend{ok, dead}, nil, 2)
	if _, err := o.Research(context.Background(), testTopic()); err == nil {
		t.Error("expected failure with min_successful_backends=2")
	}

	o = NewOrchestrator([]Backend{ok, dead}, nil, 1)
	results, err := o.Research(context.Background(), testTopic())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 result, got %d", len(results))
	}
}

func TestResearchPanickingBackendIsAbsorbed(t *testing.T) {
	ok := &stubBackend{name: "searxng", horizon: HorizonBreadth,
		results: []core.SearchResult{result("https://a.example/1", "one")}}
	bomb := &stubBackend{name: "tavily", horizon: HorizonDepth, panics: true}

	o := NewOrchestrator([]Backend{ok, bomb}, nil, 1)
	results, err := o.Research(context.Background(), testTopic())
	if err != nil {
		t.Fatalf("panic propagated: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 result, got %d", len(results))
	}
	stats := o.GetBackendStatistics()
	if stats["tavily"].Succeeded {
		t.Error("panicking backend recorded as succeeded")
	}
}

func TestResearchHorizonQueries(t *testing.T) {
	depth := &stubBackend{name: "tavily", horizon: HorizonDepth,
		results: []core.SearchResult{result("https://a.example/1", "one")}}
	trends := &stubBackend{name: "gemini", horizon: HorizonTrends,
		results: []core.SearchResult{result("https://a.example/2", "two")}}
	breadth := &stubBackend{name: "searxng", horizon: HorizonBreadth,
		results: []core.SearchResult{result("https://a.example/3", "three")}}

	o := NewOrchestrator([]Backend{depth, trends, breadth}, nil, 1)
	if _, err := o.Research(context.Background(), testTopic()); err != nil {
		t.Fatalf("research failed: %v", err)
	}

	q := BuildQueries("battery storage")
	if depth.queries[0] != q.Depth {
		t.Errorf("depth backend got %q", depth.queries[0])
	}
	if trends.queries[0] != q.Trends {
		t.Errorf("trends backend got %q", trends.queries[0])
	}
	if breadth.queries[0] != q.Breadth {
		t.Errorf("breadth backend got %q", breadth.queries[0])
	}
}

func TestRRFFusionScoresSharedURLsHigher(t *testing.T) {
	shared := "https://shared.example/article"
	perBackend := map[string][]core.SearchResult{
		"tavily": rankResults("tavily", []core.SearchResult{
			result(shared, "shared"),
			result("https://t.example/only", "tavily only"),
		}),
		"searxng": rankResults("searxng", []core.SearchResult{
			result("https://s.example/only", "searxng only"),
			result(shared, "shared"),
		}),
	}

	fused := rrfFuse(perBackend)
	if fused[0].URL != shared {
		t.Fatalf("shared URL not ranked first: %v", fused[0].URL)
	}
	want := 1.0/float64(rrfK+1) + 1.0/float64(rrfK+2)
	if diff := fused[0].Score - want; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("fused score = %v, want %v", fused[0].Score, want)
	}
	if len(fused) != 3 {
		t.Errorf("expected 3 unique URLs, got %d", len(fused))
	}
}

func TestInterleaveByBackendOrder(t *testing.T) {
	var results []core.SearchResult
	for i := 1; i <= 2; i++ {
		for _, backend := range []string{"rss", "tavily", "searxng"} {
			r := result(fmt.Sprintf("https://%s.example/%d", backend, i), backend)
			r.Backend = backend
			results = append(results, r)
		}
	}

	interleaved := interleaveByBackend(results)
	wantBackends := []string{"tavily", "searxng", "rss", "tavily", "searxng", "rss"}
	for i, want := range wantBackends {
		if interleaved[i].Backend != want {
			t.Errorf("position %d backend = %s, want %s", i, interleaved[i].Backend, want)
		}
	}
}

func TestResearchDeduplicatesNearIdenticalResults(t *testing.T) {
	title := "battery storage prices fall sharply across european markets this quarter"
	a := &stubBackend{name: "tavily", horizon: HorizonDepth,
		results: []core.SearchResult{{URL: "https://a.example/x", Title: title, Snippet: title}}}
	b := &stubBackend{name: "searxng", horizon: HorizonBreadth,
		results: []core.SearchResult{{URL: "https://b.example/y", Title: title, Snippet: title}}}

	o := NewOrchestrator([]Backend{a, b}, nil, 1)
	results, err := o.Research(context.Background(), testTopic())
	if err != nil {
		t.Fatalf("research failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("near-duplicate content not collapsed: %d results", len(results))
	}
}

func TestResearchCostBudgetSkipsPaidBackends(t *testing.T) {
	free := &stubBackend{name: "searxng", horizon: HorizonBreadth,
		results: []core.SearchResult{result("https://a.example/1", "one")}}
	paid := &stubBackend{name: "tavily", horizon: HorizonDepth, cost: 0.05,
		results: []core.SearchResult{result("https://b.example/2", "two")}}

	o := NewOrchestrator([]Backend{free, paid}, nil, 1)
	results, err := o.Research(context.Background(), testTopic())
	if err != nil {
		t.Fatalf("research failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected only the free backend's result, got %d", len(results))
	}
	if len(paid.queries) != 0 {
		t.Error("paid backend was queried despite blowing the budget")
	}
	stats := o.GetBackendStatistics()
	if stats["tavily"].Succeeded {
		t.Error("skipped backend recorded as succeeded")
	}
}

type fakeCache struct {
	records map[string]*core.SourceRecord
	saved   []string
}

func (f *fakeCache) Get(url string) (*core.SourceRecord, bool) {
	r, ok := f.records[url]
	return r, ok
}

func (f *fakeCache) Save(url, title, content, topicID string) error {
	f.saved = append(f.saved, url)
	return nil
}

func TestResearchConsultsAndRefreshesSourceCache(t *testing.T) {
	cached := "https://cached.example/article"
	backend := &stubBackend{name: "searxng", horizon: HorizonBreadth,
		results: []core.SearchResult{result(cached, "cached article")}}

	cache := &fakeCache{records: map[string]*core.SourceRecord{
		cached: {URL: cached, ContentPreview: "cached preview text", IsStale: false},
	}}

	o := NewOrchestrator([]Backend{backend}, cache, 1)
	results, err := o.Research(context.Background(), testTopic())
	if err != nil {
		t.Fatalf("research failed: %v", err)
	}
	if results[0].Content != "cached preview text" {
		t.Errorf("non-stale cache hit did not replace content fetch: %q", results[0].Content)
	}
	if len(cache.saved) != 1 || cache.saved[0] != cached {
		t.Errorf("retained URL not persisted: %v", cache.saved)
	}
	if o.CacheHitRate() != 1.0 {
		t.Errorf("cache hit rate = %v, want 1.0", o.CacheHitRate())
	}
}
