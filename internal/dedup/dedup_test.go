package dedup

import (
	"fmt"
	"sync"
	"testing"

	"scout/internal/core"
)

func TestCanonicalURL(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "strips www and lowercases host",
			in:   "https://WWW.Example.com/Path",
			want: "https://example.com/Path",
		},
		{
			name: "drops fragment",
			in:   "https://example.com/a#section-2",
			want: "https://example.com/a",
		},
		{
			name: "drops utm params and sorts the rest",
			in:   "https://example.com/a?utm_source=x&b=2&a=1&utm_campaign=y",
			want: "https://example.com/a?a=1&b=2",
		},
		{
			name: "drops gclid and fbclid",
			in:   "https://example.com/a?gclid=abc&fbclid=def&q=go",
			want: "https://example.com/a?q=go",
		},
		{
			name: "collapses trailing slash",
			in:   "https://example.com/path/",
			want: "https://example.com/path",
		},
		{
			name: "keeps root slash",
			in:   "https://example.com/",
			want: "https://example.com/",
		},
		{
			name: "upgrades known hsts host",
			in:   "http://www.reddit.com/r/golang",
			want: "https://reddit.com/r/golang",
		},
		{
			name: "upgrades hsts subdomain",
			in:   "http://old.reddit.com/r/golang",
			want: "https://old.reddit.com/r/golang",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CanonicalURL(tc.in)
			if got != tc.want {
				t.Errorf("CanonicalURL(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCanonicalURLIdempotent(t *testing.T) {
	urls := []string{
		"https://WWW.Example.com/Path/?utm_source=x&b=2&a=1#frag",
		"http://www.reddit.com/r/golang/",
		"https://example.com",
	}
	for _, u := range urls {
		once := CanonicalURL(u)
		twice := CanonicalURL(once)
		if once != twice {
			t.Errorf("canonicalization not idempotent for %q: %q != %q", u, once, twice)
		}
	}
}

func TestObserveSecureHostUpgradesCanonicalURL(t *testing.T) {
	raw := "http://newsecure.example/articles/one"
	if got := CanonicalURL(raw); got != raw {
		t.Fatalf("unobserved host should keep http, got %q", got)
	}

	ObserveSecureHost("www.NewSecure.example")

	want := "https://newsecure.example/articles/one"
	if got := CanonicalURL(raw); got != want {
		t.Errorf("CanonicalURL(%q) = %q, want %q", raw, got, want)
	}
	if got := CanonicalURL("http://blog.newsecure.example/post"); got != "https://blog.newsecure.example/post" {
		t.Errorf("subdomain not upgraded: %q", got)
	}
}

func TestObserveSecureHostConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				ObserveSecureHost(fmt.Sprintf("racy%d-%d.example", i, j))
				CanonicalURL(fmt.Sprintf("http://racy%d-%d.example/page", i, j))
			}
		}(i)
	}
	wg.Wait()
}

func TestContentHashDeterministic(t *testing.T) {
	a := ContentHash("The  Quick\nBrown Fox")
	b := ContentHash("the quick brown fox")
	if a != b {
		t.Errorf("hash should normalize whitespace and case: %s != %s", a, b)
	}
	c := ContentHash("a different text entirely")
	if a == c {
		t.Error("different content should not collide")
	}
	if ContentHash("x") != ContentHash("x") {
		t.Error("hash must be deterministic")
	}
}

func TestMinHashSimilarity(t *testing.T) {
	base := "Solar panel prices fall sharply as new supply floods the European market this quarter"
	near := "Solar panel prices fall sharply as fresh supply floods the European market this quarter"
	far := "Central bank raises interest rates amid persistent services inflation worries"

	simNear := MinHash(base).Similarity(MinHash(near))
	simFar := MinHash(base).Similarity(MinHash(far))

	if simNear < 0.5 {
		t.Errorf("near-duplicate similarity too low: %.2f", simNear)
	}
	if simFar > 0.3 {
		t.Errorf("unrelated similarity too high: %.2f", simFar)
	}
	if MinHash(base).Similarity(MinHash(base)) != 1.0 {
		t.Error("identical text must have similarity 1.0")
	}
}

func makeDoc(id, url, title, content string) core.Document {
	return core.Document{
		ID:           id,
		SourceURL:    url,
		CanonicalURL: CanonicalURL(url),
		Title:        title,
		Content:      content,
		ContentHash:  ContentHash(title + " " + content),
	}
}

func TestIsDuplicateByCanonicalURL(t *testing.T) {
	d := New()
	d.Add(makeDoc("1", "https://example.com/story?utm_source=rss", "A story", "body text one"))

	dup := makeDoc("2", "https://www.example.com/story", "Different title", "entirely different body")
	if !d.IsDuplicate(dup) {
		t.Error("same canonical URL should be a duplicate")
	}
}

func TestIsDuplicateNearContent(t *testing.T) {
	d := New()
	story := "Germany announces new subsidy scheme for rooftop solar installations covering up to forty percent of costs for private households starting next year"
	d.Add(makeDoc("1", "https://heise.de/solar-subsidy", "Solar subsidy announced", story))

	// Same story, different host, light paraphrase.
	second := makeDoc("2", "https://golem.de/solar-foerderung",
		"Solar subsidy announced",
		"Germany announces new subsidy scheme for rooftop solar installations covering up to forty percent of costs for private households beginning next year")
	if !d.IsDuplicate(second) {
		t.Error("near-duplicate content on a different host should be detected")
	}
}

func TestDeduplicateBatchInvariant(t *testing.T) {
	d := New()
	var docs []core.Document
	// Three distinct stories, each appearing twice under different URLs.
	stories := []string{
		"Electric vehicle sales in Norway exceed ninety percent of all new registrations for the first time",
		"Researchers demonstrate room temperature operation of a novel perovskite tandem solar cell with record efficiency",
		"The city council approves an ambitious plan to expand protected cycling infrastructure across the entire downtown core",
	}
	for i, s := range stories {
		docs = append(docs,
			makeDoc(fmt.Sprintf("a%d", i), fmt.Sprintf("https://site-a.com/story-%d", i), "Story", s),
			makeDoc(fmt.Sprintf("b%d", i), fmt.Sprintf("https://site-b.com/article-%d", i), "Story", s),
		)
	}

	kept := d.Deduplicate(docs)
	if len(kept) != 3 {
		t.Fatalf("expected 3 unique documents, got %d", len(kept))
	}

	seenURL := make(map[string]bool)
	seenHash := make(map[string]bool)
	for i, doc := range kept {
		if seenURL[doc.CanonicalURL] {
			t.Errorf("duplicate canonical URL survived: %s", doc.CanonicalURL)
		}
		if seenHash[doc.ContentHash] {
			t.Errorf("duplicate content hash survived: %s", doc.ContentHash)
		}
		seenURL[doc.CanonicalURL] = true
		seenHash[doc.ContentHash] = true

		for j := i + 1; j < len(kept); j++ {
			sim := MinHash(doc.Title + " " + doc.Content).Similarity(MinHash(kept[j].Title + " " + kept[j].Content))
			if sim >= SimilarityThreshold {
				t.Errorf("near-duplicates survived: %s vs %s (sim %.2f)", doc.ID, kept[j].ID, sim)
			}
		}
	}
}

func TestDeduplicateResults(t *testing.T) {
	results := []core.SearchResult{
		{URL: "https://a.com/1", Title: "Heat pump adoption accelerates across northern Europe", Snippet: "Sales of heat pumps doubled last year in several markets"},
		{URL: "https://b.com/2", Title: "Heat pump adoption accelerates across northern Europe", Snippet: "Sales of heat pumps doubled last year in several markets"},
		{URL: "https://c.com/3", Title: "Quantum startup raises large funding round", Snippet: "A different story about venture capital and qubits"},
	}
	kept := DeduplicateResults(results, 0.85)
	if len(kept) != 2 {
		t.Fatalf("expected 2 results after dedup, got %d", len(kept))
	}
	if kept[0].URL != "https://a.com/1" || kept[1].URL != "https://c.com/3" {
		t.Errorf("unexpected survivors: %+v", kept)
	}
}
