package collect

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func redditTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/r/energy/hot.json", func(w http.ResponseWriter, r *http.Request) {
		now := float64(time.Now().Unix())
		fmt.Fprintf(w, `{"data":{"children":[
			{"data":{"id":"p1","title":"Heat pump install costs dropping","selftext":"%s","permalink":"/r/energy/comments/p1/heat_pumps/","score":120,"num_comments":40,"created_utc":%f,"author":"user1","subreddit":"energy"}},
			{"data":{"id":"p2","title":"Low effort post","selftext":"short","permalink":"/r/energy/comments/p2/low/","score":3,"num_comments":1,"created_utc":%f,"author":"user2","subreddit":"energy"}},
			{"data":{"id":"p3","title":"Removed post","selftext":"was here","permalink":"/r/energy/comments/p3/gone/","score":50,"created_utc":%f,"author":"user3","subreddit":"energy","removed_by_category":"moderator"}}
		]}}`, strings.Repeat("Installers report lower quotes. ", 5), now, now, now)
	})
	mux.HandleFunc("/r/energy/comments/p1.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"data":{"children":[]}},
			{"data":{"children":[
				{"data":{"body":"Got three quotes, all under last year's price.","score":30,"author":"c1"}},
				{"data":{"body":"[deleted]","score":2,"author":"[deleted]"}},
				{"data":{"body":"Rebates help a lot here.","score":12,"author":"c2"}}
			]}}
		]`)
	})
	return httptest.NewServer(mux)
}

func TestRedditCollector(t *testing.T) {
	srv := redditTestServer(t)
	defer srv.Close()

	oldBase := redditBaseURL
	redditBaseURL = srv.URL
	defer func() { redditBaseURL = oldBase }()

	c := NewRedditCollector(newTestGovernor())
	cfg := testConfig()
	cfg.Collectors.RedditSubreddits = []string{"energy"}

	docs := c.Collect(context.Background(), cfg)
	if len(docs) != 1 {
		t.Fatalf("expected 1 document (score and removal filters), got %d", len(docs))
	}

	doc := docs[0]
	if doc.Source != "reddit_energy" {
		t.Errorf("unexpected source: %q", doc.Source)
	}
	if doc.Author != "user1" {
		t.Errorf("unexpected author: %q", doc.Author)
	}
	if !strings.Contains(doc.Content, "Got three quotes") {
		t.Error("top comment missing from content")
	}
	if strings.Contains(doc.Content, "[deleted]") {
		t.Error("deleted comment leaked into content")
	}
	if doc.PublishedAt.IsZero() {
		t.Error("created_utc not mapped to published time")
	}
}

func TestRedditCollectorServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	oldBase := redditBaseURL
	redditBaseURL = srv.URL
	defer func() { redditBaseURL = oldBase }()

	c := NewRedditCollector(newTestGovernor())
	cfg := testConfig()
	cfg.Collectors.RedditSubreddits = []string{"energy"}

	if docs := c.Collect(context.Background(), cfg); len(docs) != 0 {
		t.Errorf("expected no documents on server error, got %d", len(docs))
	}
	if rec := c.health.get("energy"); rec.ConsecutiveFailures != 1 {
		t.Errorf("failure not recorded: %+v", rec)
	}
}

func TestRedditSetSort(t *testing.T) {
	c := NewRedditCollector(newTestGovernor())
	c.SetSort("top")
	if c.sort != "top" {
		t.Errorf("sort = %q, want top", c.sort)
	}
	c.SetSort("bogus")
	if c.sort != "top" {
		t.Errorf("invalid sort accepted: %q", c.sort)
	}
}
