package rerank

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"scout/internal/config"
	"scout/internal/core"
)

func testReranker(finalCount int) *Reranker {
	cfg := &config.MarketConfig{Market: "Germany", Language: "de"}
	cfg.Reranker.Stage2Threshold = 0.3
	cfg.Reranker.Stage3FinalCount = finalCount
	r := New(cfg, "")
	r.now = func() time.Time { return time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC) }
	return r
}

func searchResult(url, domain, title, snippet string) core.SearchResult {
	return core.SearchResult{URL: url, Domain: domain, Title: title, Snippet: snippet}
}

func TestBM25RanksMatchingDocumentsHigher(t *testing.T) {
	idx := NewBM25([]string{
		"grid battery storage costs fall",
		"recipe for sourdough bread",
		"battery storage deployment accelerates in germany",
	})
	scores := idx.Scores("battery storage")
	if scores[1] >= scores[0] || scores[1] >= scores[2] {
		t.Errorf("off-topic document outranked matches: %v", scores)
	}
	if scores[0] <= 0 || scores[2] <= 0 {
		t.Errorf("matching documents scored zero: %v", scores)
	}

	top := idx.TopN("battery storage", 2)
	if len(top) != 2 || top[0] == 1 || top[1] == 1 {
		t.Errorf("topN included off-topic document: %v", top)
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("Grid-scale Battery: 40% cheaper!")
	want := []string{"grid", "scale", "battery", "40", "cheaper"}
	if len(got) != len(want) {
		t.Fatalf("tokens = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRerankDropsOffTopicResults(t *testing.T) {
	r := testReranker(10)
	results := []core.SearchResult{
		searchResult("https://a.example/1", "a.example", "Battery storage economics", "battery storage cost analysis for grid operators"),
		searchResult("https://b.example/2", "b.example", "Sourdough tips", "how to bake better bread at home"),
		searchResult("https://c.example/3", "c.example", "Grid battery storage report", "battery storage capacity doubles in one year"),
	}

	ranked, err := r.Rerank(context.Background(), "battery storage", results)
	if err != nil {
		t.Fatalf("rerank failed: %v", err)
	}
	for _, res := range ranked {
		if res.URL == "https://b.example/2" {
			t.Error("off-topic result survived the cascade")
		}
	}
	if len(ranked) != 2 {
		t.Fatalf("expected 2 survivors, got %d", len(ranked))
	}
	if ranked[0].FinalScore < ranked[1].FinalScore {
		t.Error("results not ordered by final score")
	}
}

func TestRerankHonorsFinalCount(t *testing.T) {
	r := testReranker(3)
	var results []core.SearchResult
	for i := 0; i < 10; i++ {
		results = append(results, searchResult(
			fmt.Sprintf("https://site%d.example/a", i),
			fmt.Sprintf("site%d.example", i),
			fmt.Sprintf("Battery storage insight %d", i),
			fmt.Sprintf("battery storage finding number %d with distinct details", i)))
	}
	ranked, err := r.Rerank(context.Background(), "battery storage", results)
	if err != nil {
		t.Fatalf("rerank failed: %v", err)
	}
	if len(ranked) != 3 {
		t.Errorf("final count = %d, want 3", len(ranked))
	}
}

func TestStage3PrefersAuthoritativeDomains(t *testing.T) {
	r := testReranker(2)
	pool := []RankedResult{
		{SearchResult: searchResult("https://energy.gov/report", "energy.gov", "Battery storage report", "official battery storage analysis"), SemanticScore: 0.6},
		{SearchResult: searchResult("https://randomblog.medium.com/post", "randomblog.medium.com", "Battery storage hot take", "my opinion on battery storage markets"), SemanticScore: 0.6},
	}
	final := r.stage3(pool)
	if final[0].Domain != "energy.gov" {
		t.Errorf("gov domain not ranked first: %s", final[0].Domain)
	}
}

func TestStage3NoveltyPenalizesDuplicates(t *testing.T) {
	r := testReranker(3)
	dupTitle := "battery storage prices fall sharply across markets"
	pool := []RankedResult{
		{SearchResult: searchResult("https://a.example/1", "a.example", dupTitle, dupTitle), SemanticScore: 0.9},
		{SearchResult: searchResult("https://b.example/2", "b.example", dupTitle, dupTitle), SemanticScore: 0.88},
		{SearchResult: searchResult("https://c.example/3", "c.example", "Heat pump adoption grows", "european heat pump installations rise"), SemanticScore: 0.5},
	}
	final := r.stage3(pool)
	if final[1].URL != "https://c.example/3" {
		t.Errorf("near-duplicate outranked novel result: %v", final[1].URL)
	}
}

func TestStage2ReinjectsUnderrepresentedDomain(t *testing.T) {
	kept := []RankedResult{
		{SearchResult: searchResult("https://a.example/1", "a.example", "x", "x"), SemanticScore: 0.9},
		{SearchResult: searchResult("https://a.example/2", "a.example", "x", "x"), SemanticScore: 0.8},
		{SearchResult: searchResult("https://a.example/3", "a.example", "x", "x"), SemanticScore: 0.7},
	}
	dropped := []RankedResult{
		{SearchResult: searchResult("https://rare.example/1", "rare.example", "x", "x"), SemanticScore: 0.2},
	}
	merged := reinjectDomains(kept, dropped)
	found := false
	for _, res := range merged {
		if res.Domain == "rare.example" {
			found = true
		}
	}
	if !found {
		t.Error("under-represented domain not reinjected")
	}
	if len(merged) != 3 {
		t.Errorf("reinject changed pool size: %d", len(merged))
	}
}

func TestLocalityFrom(t *testing.T) {
	tests := []struct {
		name         string
		cfg          any
		wantMarket   string
		wantLanguage string
	}{
		{"flat map", map[string]any{"market": "Germany", "language": "DE"}, "germany", "de"},
		{"nested map", map[string]any{"market": map[string]any{"market": "Germany", "language": "de"}}, "germany", "de"},
		{"string map", map[string]string{"market": "France", "language": "fr"}, "france", "fr"},
		{"market config", &config.MarketConfig{Market: "Germany", Language: "de"}, "germany", "de"},
		{"nil config", (*config.MarketConfig)(nil), "", ""},
		{"unsupported", 42, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := LocalityFrom(tt.cfg)
			if loc.Market != tt.wantMarket || loc.Language != tt.wantLanguage {
				t.Errorf("got %+v, want {%s %s}", loc, tt.wantMarket, tt.wantLanguage)
			}
		})
	}
}

func TestLocalityScore(t *testing.T) {
	r := testReranker(5)
	tests := []struct {
		domain string
		want   float64
	}{
		{"heise.de", 1.0},
		{"example.com", 0.5},
		{"lemonde.fr", 0.2},
	}
	for _, tt := range tests {
		if got := r.localityScore(tt.domain); got != tt.want {
			t.Errorf("localityScore(%s) = %v, want %v", tt.domain, got, tt.want)
		}
	}

	empty := testReranker(5)
	empty.locality = Locality{}
	if got := empty.localityScore("heise.de"); got != 0.5 {
		t.Errorf("empty locality fallback = %v, want 0.5", got)
	}
}

func TestVoyageScorer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer vkey" {
			t.Errorf("auth header = %q", r.Header.Get("Authorization"))
		}
		fmt.Fprint(w, `{"data":[{"index":1,"relevance_score":0.9},{"index":0,"relevance_score":0.2}]}`)
	}))
	defer srv.Close()

	oldBase := voyageBaseURL
	voyageBaseURL = srv.URL
	defer func() { voyageBaseURL = oldBase }()

	s := NewVoyageScorer("vkey")
	scores, err := s.Score(context.Background(), "q", []string{"doc a", "doc b"})
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if scores[0] != 0.2 || scores[1] != 0.9 {
		t.Errorf("scores = %v", scores)
	}
}

func TestVoyageScorerFallsBackOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	oldBase := voyageBaseURL
	voyageBaseURL = srv.URL
	defer func() { voyageBaseURL = oldBase }()

	s := NewVoyageScorer("vkey")
	scores, err := s.Score(context.Background(), "battery storage", []string{"battery storage report", "bread recipe"})
	if err != nil {
		t.Fatalf("fallback did not absorb failure: %v", err)
	}
	if scores[0] <= scores[1] {
		t.Errorf("lite fallback scores = %v", scores)
	}
}
