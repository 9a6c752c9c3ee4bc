package collect

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestHealthTrackerSkipsAfterThreshold(t *testing.T) {
	h := newHealthTracker()
	resource := "https://example.com/feed.xml"

	for i := 0; i < maxConsecutiveFailures-1; i++ {
		h.recordFailure(resource, errors.New("boom"))
	}
	if h.shouldSkip(resource) {
		t.Error("should not skip below threshold")
	}

	h.recordFailure(resource, errors.New("boom"))
	if !h.shouldSkip(resource) {
		t.Error("should skip at threshold")
	}
}

func TestHealthTrackerSuccessResetsStreak(t *testing.T) {
	h := newHealthTracker()
	resource := "r/golang"

	for i := 0; i < maxConsecutiveFailures; i++ {
		h.recordFailure(resource, errors.New("boom"))
	}
	h.recordSuccess(resource)

	if h.shouldSkip(resource) {
		t.Error("success should clear the skip state")
	}
	rec := h.get(resource)
	if rec.ConsecutiveFailures != 0 {
		t.Errorf("consecutive failures = %d, want 0", rec.ConsecutiveFailures)
	}
	if rec.FailureCount != maxConsecutiveFailures {
		t.Errorf("failure count = %d, want %d", rec.FailureCount, maxConsecutiveFailures)
	}
	if rec.LastSuccess.IsZero() {
		t.Error("last success not recorded")
	}
}

func TestNewDocumentDeterministicID(t *testing.T) {
	cfg := testConfig()
	a := newDocument("rss_example", "https://www.Example.com/post?utm_source=x", "Title", "body", "", cfg)
	b := newDocument("rss_example", "https://example.com/post", "Title", "body", "", cfg)

	if a.ID != b.ID {
		t.Errorf("IDs differ for same canonical URL: %s vs %s", a.ID, b.ID)
	}
	if a.CanonicalURL != "https://example.com/post" {
		t.Errorf("unexpected canonical URL: %s", a.CanonicalURL)
	}
	if a.Language != "en" || a.Market != "US" {
		t.Errorf("market config not applied: %+v", a)
	}
}

func TestParseFeedDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"Mon, 02 Jan 2006 15:04:05 -0700", time.Date(2006, 1, 2, 22, 4, 5, 0, time.UTC)},
		{"2026-08-20T10:30:00Z", time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC)},
		{"2026-08-20", time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)},
		{"", time.Time{}},
		{"not a date", time.Time{}},
	}
	for _, tt := range tests {
		if got := parseFeedDate(tt.in); !got.Equal(tt.want) {
			t.Errorf("parseFeedDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestStripTags(t *testing.T) {
	got := stripTags(`<p>Hello <b>world</b></p>  and   more`)
	if got != "Hello world and more" {
		t.Errorf("stripTags = %q", got)
	}
}

func TestPositionScore(t *testing.T) {
	if got := positionScore(1); got != 1.0 {
		t.Errorf("position 1 score = %v, want 1.0", got)
	}
	if got := positionScore(11); got != 0.0 {
		t.Errorf("position 11 score = %v, want 0.0", got)
	}
	if positionScore(2) <= positionScore(5) {
		t.Error("earlier positions should score higher")
	}
}

func TestSiteRoot(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://example.com/blog/post", "https://example.com"},
		{"https://example.com", "https://example.com"},
		{"no-scheme", ""},
	}
	for _, tt := range tests {
		if got := siteRoot(tt.in); got != tt.want {
			t.Errorf("siteRoot(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestContextCancelStopsCollection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := testConfig()
	cfg.Collectors.CustomFeeds = []string{"https://example.com/feed.xml"}

	c := NewRSSCollector(newTestStore(t), nil, newTestGovernor())
	docs := c.Collect(ctx, cfg)
	if len(docs) != 0 {
		t.Errorf("expected no documents after cancellation, got %d", len(docs))
	}
}
