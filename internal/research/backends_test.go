package research

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"scout/internal/core"
	"scout/internal/llm"
	"scout/internal/ratelimit"
	"scout/internal/store"
)

func testGovernor() *ratelimit.Governor {
	g := ratelimit.NewGovernor()
	g.SetHostRate("127.0.0.1", rate.Inf)
	return g
}

func TestTavilyBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		fmt.Fprint(w, `{"results":[
			{"url":"https://gov.example/report","title":"Official report","content":"summary text","raw_content":"full body text","score":0.95,"published_date":"2026-08-01"},
			{"url":"https://edu.example/study","title":"Study","content":"study summary","score":0.80}
		]}`)
	}))
	defer srv.Close()

	oldBase := tavilyBaseURL
	tavilyBaseURL = srv.URL
	defer func() { tavilyBaseURL = oldBase }()

	b := NewTavilyBackend("key", testGovernor())
	results := b.Search(context.Background(), "battery storage", 5)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Content != "full body text" {
		t.Errorf("raw content not preferred: %q", results[0].Content)
	}
	if results[0].Backend != "tavily" || results[0].Rank != 1 {
		t.Errorf("provenance not stamped: %+v", results[0])
	}
	if results[0].Domain != "gov.example" {
		t.Errorf("domain not derived: %q", results[0].Domain)
	}
	if results[0].PublishedAt.IsZero() {
		t.Error("published date not parsed")
	}
}

func TestTavilyBackendAbsorbsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	oldBase := tavilyBaseURL
	tavilyBaseURL = srv.URL
	defer func() { tavilyBaseURL = oldBase }()

	b := NewTavilyBackend("key", testGovernor())
	if results := b.Search(context.Background(), "q", 5); results != nil {
		t.Errorf("expected nil on 429, got %d results", len(results))
	}
}

func TestTavilyBackendNoKey(t *testing.T) {
	b := NewTavilyBackend("", testGovernor())
	if results := b.Search(context.Background(), "q", 5); results != nil {
		t.Error("expected nil without api key")
	}
	if b.HealthCheck(context.Background()) != HealthFailed {
		t.Error("health should be failed without api key")
	}
}

func TestSearxNGBackendTracksEngines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") != "json" {
			t.Error("json format not requested")
		}
		fmt.Fprint(w, `{"results":[
			{"url":"https://a.example/1","title":"One","content":"snippet one","engine":"duckduckgo","engines":["duckduckgo","brave"],"score":2.0},
			{"url":"https://b.example/2","title":"Two","content":"snippet two","engine":"brave","score":1.0}
		]}`)
	}))
	defer srv.Close()

	b := NewSearxNGBackend(srv.URL, testGovernor())
	results := b.Search(context.Background(), "grid storage", 10)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	engines := b.RespondingEngines()
	if len(engines) != 2 {
		t.Fatalf("engines = %v", engines)
	}
	if engines[0] != "brave" && engines[0] != "duckduckgo" {
		t.Errorf("unexpected engines: %v", engines)
	}
}

func TestSearxNGBackendMaxResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results":[
			{"url":"https://a.example/1","title":"One","content":"x"},
			{"url":"https://a.example/2","title":"Two","content":"x"},
			{"url":"https://a.example/3","title":"Three","content":"x"}
		]}`)
	}))
	defer srv.Close()

	b := NewSearxNGBackend(srv.URL, testGovernor())
	if results := b.Search(context.Background(), "q", 2); len(results) != 2 {
		t.Errorf("max results not enforced: %d", len(results))
	}
}

func TestGeminiBackend(t *testing.T) {
	provider := &fakeProvider{
		content: `[{"url":"https://t.example/trend","title":"Trend piece","snippet":"What is rising."}]`,
		grounding: []llm.GroundingSource{
			{Title: "Extra grounded source", URL: "https://g.example/extra"},
		},
	}
	b := NewGeminiBackend(provider)
	results := b.Search(context.Background(), "battery trends", 5)
	if len(results) != 2 {
		t.Fatalf("expected 2 results (listed + grounding), got %d", len(results))
	}
	if !provider.lastOpts.Grounding {
		t.Error("grounding not requested")
	}
	if results[0].URL != "https://t.example/trend" {
		t.Errorf("listed result not first: %q", results[0].URL)
	}
}

type fakeProvider struct {
	content   string
	grounding []llm.GroundingSource
	err       error
	lastOpts  llm.Options
}

func (f *fakeProvider) Generate(_ context.Context, _ string, opts llm.Options) (*llm.Response, error) {
	f.lastOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Content: f.content, Model: "fake", Grounding: f.grounding}, nil
}

func TestRSSBackendSearchesCollectedDocuments(t *testing.T) {
	st, err := store.NewMemoryStore()
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	defer func() { _ = st.Close() }()

	docs := []core.Document{
		{ID: "d1", Source: "rss_heise", CanonicalURL: "https://heise.example/battery", Title: "Battery storage milestone",
			Content: "Grid battery storage reached a new milestone.", Summary: "Milestone reached.", Language: "en",
			ContentHash: "h1", FetchedAt: time.Now(), Status: core.DocumentStatusNew},
		{ID: "d2", Source: "reddit_energy", CanonicalURL: "https://reddit.example/post", Title: "Battery question",
			Content: "Which battery should I buy?", Language: "en",
			ContentHash: "h2", FetchedAt: time.Now(), Status: core.DocumentStatusNew},
	}
	for _, doc := range docs {
		if err := st.InsertDocument(doc); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	b := NewRSSBackend(st)
	results := b.Search(context.Background(), "battery storage", 10)
	if len(results) != 1 {
		t.Fatalf("expected 1 rss-sourced result, got %d", len(results))
	}
	if results[0].URL != "https://heise.example/battery" {
		t.Errorf("unexpected result: %q", results[0].URL)
	}
	if results[0].Snippet != "Milestone reached." {
		t.Errorf("summary not used as snippet: %q", results[0].Snippet)
	}
	if b.HealthCheck(context.Background()) != HealthOK {
		t.Error("health check failed on live store")
	}
}

func TestNewsBackendDateWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("published_after") == "" {
			t.Error("date window missing")
		}
		fmt.Fprint(w, `{"data":[{"title":"Breaking","description":"desc","snippet":"snippet text","url":"https://n.example/breaking","published_at":"2026-08-25T06:00:00Z"}]}`)
	}))
	defer srv.Close()

	oldBase := newsBackendBaseURL
	newsBackendBaseURL = srv.URL
	defer func() { newsBackendBaseURL = oldBase }()

	b := NewNewsBackend("key", "en", testGovernor())
	results := b.Search(context.Background(), "storage", 5)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Snippet != "snippet text" {
		t.Errorf("snippet not mapped: %q", results[0].Snippet)
	}
}

func TestBuildQueries(t *testing.T) {
	q := BuildQueries("heat pumps")
	for _, s := range []string{q.Depth, q.Breadth, q.Trends} {
		if s == "" || s == "heat pumps" {
			t.Errorf("query variant not specialized: %q", s)
		}
	}
	if q.Depth == q.Breadth || q.Breadth == q.Trends {
		t.Error("query variants should differ")
	}
}
