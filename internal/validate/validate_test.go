package validate

import (
	"math"
	"testing"
	"time"

	"scout/internal/core"
)

func candidate(title string, docs ...core.Document) Candidate {
	return Candidate{
		Cluster:   core.TopicCluster{ClusterID: "c1", RepresentativeTitle: title, Label: "label"},
		Documents: docs,
	}
}

func fixedValidator(t *testing.T, seeds, existing []string) *Validator {
	t.Helper()
	v, err := New(seeds, existing)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	v.now = func() time.Time { return time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC) }
	return v
}

func TestWeightsSumToOne(t *testing.T) {
	sum := WeightRelevance + WeightDiversity + WeightFreshness + WeightVolume + WeightNovelty
	if math.Abs(sum-1.0) > 1e-9 {
		t.Fatalf("weights sum to %v", sum)
	}
	if _, err := New([]string{"solar"}, nil); err != nil {
		t.Errorf("construction failed: %v", err)
	}
}

func TestRelevanceJaccard(t *testing.T) {
	v := fixedValidator(t, []string{"heat pumps"}, nil)

	full := v.relevance(candidate("heat pumps"))
	if full != 1.0 {
		t.Errorf("exact seed match relevance = %v, want 1.0", full)
	}

	partial := v.relevance(candidate("heat pump rebates explained"))
	// Title tokens {heat, pump, rebates, explained}, seeds {heat, pumps}:
	// intersection {heat}, union 5.
	if math.Abs(partial-0.2) > 1e-9 {
		t.Errorf("partial relevance = %v, want 0.2", partial)
	}

	if v.relevance(candidate("")) != 0 {
		t.Error("empty title should score 0")
	}
}

func TestDiversityCountsCollectorFamilies(t *testing.T) {
	cand := candidate("t",
		core.Document{Source: "rss_heise"},
		core.Document{Source: "rss_verge"},
		core.Document{Source: "reddit_energy"},
		core.Document{Source: "trends"},
	)
	got := diversity(cand)
	if math.Abs(got-0.6) > 1e-9 {
		t.Errorf("diversity = %v, want 0.6 (3 of 5 families)", got)
	}
}

func TestFreshnessHalfLife(t *testing.T) {
	v := fixedValidator(t, nil, nil)
	now := v.now()

	fresh := v.freshness(candidate("t", core.Document{PublishedAt: now}))
	if math.Abs(fresh-1.0) > 1e-9 {
		t.Errorf("same-day freshness = %v, want 1.0", fresh)
	}

	weekOld := v.freshness(candidate("t", core.Document{PublishedAt: now.AddDate(0, 0, -7)}))
	if math.Abs(weekOld-0.5) > 1e-6 {
		t.Errorf("week-old freshness = %v, want 0.5", weekOld)
	}

	// Newest member wins.
	mixed := v.freshness(candidate("t",
		core.Document{PublishedAt: now.AddDate(0, 0, -30)},
		core.Document{PublishedAt: now},
	))
	if math.Abs(mixed-1.0) > 1e-9 {
		t.Errorf("mixed freshness = %v, want 1.0", mixed)
	}

	if v.freshness(candidate("t", core.Document{})) != 0 {
		t.Error("no timestamps should score 0")
	}
}

func TestVolumeMetric(t *testing.T) {
	// Non-autocomplete candidates default to 0.5.
	if got := volume(candidate("t", core.Document{Source: "rss_x"})); got != 0.5 {
		t.Errorf("default volume = %v, want 0.5", got)
	}

	// Autocomplete: 0.7*position + 0.3*min(len/50, 1).
	title := "heat pump installation cost calculator germany 2026"
	cand := candidate("t", core.Document{
		Source:           "autocomplete",
		Title:            title,
		ReliabilityScore: 0.9,
	})
	want := 0.7*0.9 + 0.3*1.0
	if got := volume(cand); math.Abs(got-want) > 1e-9 {
		t.Errorf("autocomplete volume = %v, want %v", got, want)
	}
}

func TestNoveltyAgainstExistingTopics(t *testing.T) {
	v := fixedValidator(t, nil, []string{"heat pump subsidy program extended in germany this year"})

	same := v.novelty(candidate("heat pump subsidy program extended in germany this year"))
	if same > 0.1 {
		t.Errorf("identical topic novelty = %v, want ~0", same)
	}

	fresh := v.novelty(candidate("offshore wind auction results surprise analysts completely"))
	if fresh < 0.8 {
		t.Errorf("unrelated topic novelty = %v, want ~1", fresh)
	}

	empty := fixedValidator(t, nil, nil)
	if got := empty.novelty(candidate("anything")); got != 1.0 {
		t.Errorf("novelty with no history = %v, want 1.0", got)
	}
}

func TestSafeMetricClampsAndRecovers(t *testing.T) {
	v := fixedValidator(t, nil, nil)

	if got := v.safeMetric("x", Candidate{}, func(Candidate) float64 { return math.NaN() }); got != 0 {
		t.Errorf("NaN clamp = %v, want 0", got)
	}
	if got := v.safeMetric("x", Candidate{}, func(Candidate) float64 { return 1.5 }); got != 1 {
		t.Errorf("overflow clamp = %v, want 1", got)
	}
	if got := v.safeMetric("x", Candidate{}, func(Candidate) float64 { panic("boom") }); got != 0 {
		t.Errorf("panic recovery = %v, want 0", got)
	}
}

func TestFilterTopicsThresholdAndOrder(t *testing.T) {
	v := fixedValidator(t, []string{"battery storage"}, nil)
	now := v.now()

	strong := candidate("battery storage",
		core.Document{Source: "rss_a", PublishedAt: now, Language: "en"},
		core.Document{Source: "reddit_b", PublishedAt: now},
		core.Document{Source: "trends", PublishedAt: now},
		core.Document{Source: "newsapi_c", PublishedAt: now},
		core.Document{Source: "autocomplete", Title: "battery storage cost", ReliabilityScore: 1.0, PublishedAt: now},
	)
	weak := candidate("unrelated gardening tips",
		core.Document{Source: "rss_a", PublishedAt: now.AddDate(0, 0, -60)},
	)

	scored := v.FilterTopics([]Candidate{weak, strong}, 0.6, 20)
	if len(scored) != 1 {
		t.Fatalf("expected only the strong candidate to pass, got %d", len(scored))
	}
	st := scored[0]
	if st.Topic.Title != "battery storage" {
		t.Errorf("wrong topic passed: %q", st.Topic.Title)
	}
	if st.Topic.ID != "battery-storage" {
		t.Errorf("unexpected slug: %q", st.Topic.ID)
	}
	if st.Topic.Priority < 1 || st.Topic.Priority > 10 {
		t.Errorf("priority out of range: %d", st.Topic.Priority)
	}
	if st.Topic.PriorityScore != st.Total {
		t.Error("priority score should equal total")
	}
}

func TestFilterTopicsTopN(t *testing.T) {
	v := fixedValidator(t, []string{"solar"}, nil)
	now := v.now()

	var candidates []Candidate
	for i := 0; i < 30; i++ {
		candidates = append(candidates, candidate("solar panels",
			core.Document{Source: "rss_a", PublishedAt: now},
			core.Document{Source: "reddit_b", PublishedAt: now},
			core.Document{Source: "trends", PublishedAt: now},
			core.Document{Source: "autocomplete", Title: "solar panels cost", ReliabilityScore: 1.0, PublishedAt: now},
		))
	}
	scored := v.FilterTopics(candidates, 0.1, 5)
	if len(scored) != 5 {
		t.Errorf("topN not applied: got %d", len(scored))
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Heat Pump Subsidies, Extended!", "heat-pump-subsidies-extended"},
		{"  Grid   Storage  ", "grid-storage"},
		{"2026 outlook", "2026-outlook"},
	}
	for _, tt := range tests {
		if got := slugify(tt.in); got != tt.want {
			t.Errorf("slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDominantSource(t *testing.T) {
	docs := []core.Document{
		{Source: "reddit_energy"},
		{Source: "reddit_solar"},
		{Source: "rss_heise"},
	}
	if got := dominantSource(docs); got != core.TopicSourceReddit {
		t.Errorf("dominant source = %s, want REDDIT", got)
	}
}
