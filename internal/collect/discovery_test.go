package collect

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"scout/internal/core"
)

func TestFeedDiscoveryStaticOnly(t *testing.T) {
	d := NewFeedDiscovery(nil, nil, newTestGovernor())
	cfg := testConfig()
	cfg.Collectors.CustomFeeds = []string{"https://a.example/feed.xml", "https://a.example/feed.xml", "https://b.example/rss"}

	feeds := d.Discover(context.Background(), cfg)
	if len(feeds) != 2 {
		t.Fatalf("expected 2 unique feeds, got %d: %v", len(feeds), feeds)
	}
	if feeds[0] != "https://a.example/feed.xml" {
		t.Errorf("static feed order not preserved: %v", feeds)
	}
}

func TestFeedDiscoveryProbesAutoDiscoveryLinks(t *testing.T) {
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><head><link rel="alternate" type="application/rss+xml" href="%s/found.xml"></head><body>site</body></html>`, srv.URL)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	provider := &fakeLLM{content: `["solar news"]`}
	search := func(_ context.Context, query string, _ int) []core.SearchResult {
		return []core.SearchResult{{URL: srv.URL + "/", Title: "Solar site"}}
	}

	d := NewFeedDiscovery(provider, search, newTestGovernor())
	feeds := d.Discover(context.Background(), testConfig())
	if len(feeds) != 1 {
		t.Fatalf("expected 1 discovered feed, got %d: %v", len(feeds), feeds)
	}
	if feeds[0] != srv.URL+"/found.xml" {
		t.Errorf("unexpected feed: %q", feeds[0])
	}
}

func TestFeedDiscoveryFallsBackToConventionalPaths(t *testing.T) {
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>No links here</title></head><body>site</body></html>`)
	})
	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>T</title><item><title>a</title><link>https://x/a</link></item></channel></rss>`)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	provider := &fakeLLM{content: `["solar news"]`}
	search := func(_ context.Context, _ string, _ int) []core.SearchResult {
		return []core.SearchResult{{URL: srv.URL + "/", Title: "Solar site"}}
	}

	d := NewFeedDiscovery(provider, search, newTestGovernor())
	feeds := d.Discover(context.Background(), testConfig())
	if len(feeds) != 1 {
		t.Fatalf("expected 1 feed from conventional path probe, got %d: %v", len(feeds), feeds)
	}
	if feeds[0] != srv.URL+"/feed" {
		t.Errorf("unexpected feed: %q", feeds[0])
	}
}
