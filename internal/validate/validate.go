// Package validate scores topic candidates on five weighted metrics and
// filters them to the research-worthy set.
package validate

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"scout/internal/core"
	"scout/internal/dedup"
	"scout/internal/logger"
)

// Metric weights. They must sum to 1.0; New checks this at construction.
const (
	WeightRelevance = 0.30
	WeightDiversity = 0.25
	WeightFreshness = 0.20
	WeightVolume    = 0.15
	WeightNovelty   = 0.10
)

// Default filter parameters.
const (
	DefaultThreshold = 0.6
	DefaultTopN      = 20
)

// collectorFamilies is the denominator of the diversity metric.
const collectorFamilies = 5

// Candidate pairs a cluster with its member documents.
type Candidate struct {
	Cluster   core.TopicCluster
	Documents []core.Document
}

// Metrics holds the five per-candidate scores, each in [0,1].
type Metrics struct {
	Relevance float64
	Diversity float64
	Freshness float64
	Volume    float64
	Novelty   float64
}

// Total returns the weighted sum.
func (m Metrics) Total() float64 {
	return WeightRelevance*m.Relevance +
		WeightDiversity*m.Diversity +
		WeightFreshness*m.Freshness +
		WeightVolume*m.Volume +
		WeightNovelty*m.Novelty
}

// ScoredTopic is a validated candidate with its metric breakdown.
type ScoredTopic struct {
	Topic   core.Topic
	Metrics Metrics
	Total   float64
}

// Validator scores candidates against the market's seed keywords and the
// titles of already-researched topics.
type Validator struct {
	seedTokens   map[string]bool
	existingSigs []dedup.Signature
	now          func() time.Time
}

// New builds a validator. existingTitles are the titles of topics that
// already have research reports; they feed the novelty metric.
func New(seedKeywords, existingTitles []string) (*Validator, error) {
	sum := WeightRelevance + WeightDiversity + WeightFreshness + WeightVolume + WeightNovelty
	if math.Abs(sum-1.0) > 1e-9 {
		return nil, fmt.Errorf("metric weights sum to %v, want 1.0", sum)
	}

	seedTokens := make(map[string]bool)
	for _, kw := range seedKeywords {
		for _, tok := range tokenize(kw) {
			seedTokens[tok] = true
		}
	}

	v := &Validator{
		seedTokens: seedTokens,
		now:        time.Now,
	}
	for _, title := range existingTitles {
		v.existingSigs = append(v.existingSigs, dedup.MinHash(title))
	}
	return v, nil
}

// FilterTopics scores all candidates, drops those below the threshold,
// and returns the top n sorted by total score, ties broken by relevance
// then freshness. A metric that fails to compute becomes 0 and scoring
// continues.
func (v *Validator) FilterTopics(candidates []Candidate, threshold float64, topN int) []ScoredTopic {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if topN <= 0 {
		topN = DefaultTopN
	}

	var scored []ScoredTopic
	for _, cand := range candidates {
		metrics := v.score(cand)
		total := metrics.Total()
		if total < threshold {
			continue
		}
		scored = append(scored, ScoredTopic{
			Topic:   v.buildTopic(cand, metrics, total),
			Metrics: metrics,
			Total:   total,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Total != scored[j].Total {
			return scored[i].Total > scored[j].Total
		}
		if scored[i].Metrics.Relevance != scored[j].Metrics.Relevance {
			return scored[i].Metrics.Relevance > scored[j].Metrics.Relevance
		}
		return scored[i].Metrics.Freshness > scored[j].Metrics.Freshness
	})

	if len(scored) > topN {
		scored = scored[:topN]
	}
	logger.Info("topic validation finished",
		"candidates", len(candidates), "passed", len(scored), "threshold", threshold)
	return scored
}

// score computes the five metrics, absorbing per-metric failures.
func (v *Validator) score(cand Candidate) Metrics {
	var m Metrics
	m.Relevance = v.safeMetric("relevance", cand, v.relevance)
	m.Diversity = v.safeMetric("diversity", cand, diversity)
	m.Freshness = v.safeMetric("freshness", cand, v.freshness)
	m.Volume = v.safeMetric("volume", cand, volume)
	m.Novelty = v.safeMetric("novelty", cand, v.novelty)
	return m
}

// safeMetric clamps to [0,1] and converts panics into a zero score.
func (v *Validator) safeMetric(name string, cand Candidate, fn func(Candidate) float64) (score float64) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("metric computation failed", "metric", name, "cluster", cand.Cluster.ClusterID, "error", fmt.Sprint(r))
			score = 0
		}
	}()
	score = fn(cand)
	if math.IsNaN(score) || score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// relevance is the Jaccard overlap between the candidate title tokens and
// the union of seed keyword tokens.
func (v *Validator) relevance(cand Candidate) float64 {
	titleTokens := tokenize(cand.Cluster.RepresentativeTitle)
	if len(titleTokens) == 0 || len(v.seedTokens) == 0 {
		return 0
	}
	titleSet := make(map[string]bool, len(titleTokens))
	for _, tok := range titleTokens {
		titleSet[tok] = true
	}
	intersection := 0
	for tok := range titleSet {
		if v.seedTokens[tok] {
			intersection++
		}
	}
	union := len(titleSet) + len(v.seedTokens) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// diversity counts distinct collector families across member documents.
func diversity(cand Candidate) float64 {
	families := make(map[string]bool)
	for _, doc := range cand.Documents {
		families[collectorFamily(doc.Source)] = true
	}
	return float64(len(families)) / collectorFamilies
}

// collectorFamily strips the per-resource suffix: "rss_heise" -> "rss".
func collectorFamily(source string) string {
	if idx := strings.Index(source, "_"); idx > 0 {
		return source[:idx]
	}
	return source
}

// freshness decays by half every seven days from the newest member's
// publication date. Documents without one fall back to fetch time.
func (v *Validator) freshness(cand Candidate) float64 {
	var newest time.Time
	for _, doc := range cand.Documents {
		ts := doc.PublishedAt
		if ts.IsZero() {
			ts = doc.FetchedAt
		}
		if ts.After(newest) {
			newest = ts
		}
	}
	if newest.IsZero() {
		return 0
	}
	ageDays := v.now().Sub(newest).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Pow(0.5, ageDays/7)
}

// volume uses the autocomplete position signal when the candidate came
// from autocomplete; everything else defaults to 0.5.
func volume(cand Candidate) float64 {
	for _, doc := range cand.Documents {
		if collectorFamily(doc.Source) != "autocomplete" {
			continue
		}
		lengthScore := float64(len(doc.Title)) / 50
		if lengthScore > 1 {
			lengthScore = 1
		}
		return 0.7*doc.ReliabilityScore + 0.3*lengthScore
	}
	return 0.5
}

// novelty is the MinHash distance to the closest already-researched topic.
func (v *Validator) novelty(cand Candidate) float64 {
	if len(v.existingSigs) == 0 {
		return 1
	}
	sig := dedup.MinHash(cand.Cluster.RepresentativeTitle)
	maxSim := 0.0
	for _, existing := range v.existingSigs {
		if sim := sig.Similarity(existing); sim > maxSim {
			maxSim = sim
		}
	}
	return 1 - maxSim
}

// buildTopic materializes a core.Topic from a scored candidate.
func (v *Validator) buildTopic(cand Candidate, m Metrics, total float64) core.Topic {
	now := v.now().UTC()
	topic := core.Topic{
		ID:               slugify(cand.Cluster.RepresentativeTitle),
		Title:            cand.Cluster.RepresentativeTitle,
		ClusterLabel:     cand.Cluster.Label,
		Source:           dominantSource(cand.Documents),
		DemandScore:      m.Volume,
		OpportunityScore: (m.Diversity + m.Freshness) / 2,
		FitScore:         m.Relevance,
		NoveltyScore:     m.Novelty,
		PriorityScore:    total,
		Priority:         core.PriorityFromScore(total),
		DiscoveredAt:     now,
		UpdatedAt:        now,
	}
	if len(cand.Documents) > 0 {
		doc := cand.Documents[0]
		topic.SourceURL = doc.CanonicalURL
		topic.Language = doc.Language
		topic.Domain = doc.Domain
		topic.Market = doc.Market
	}
	return topic
}

// dominantSource maps the most frequent collector family to a TopicSource.
func dominantSource(docs []core.Document) core.TopicSource {
	counts := make(map[string]int)
	for _, doc := range docs {
		counts[collectorFamily(doc.Source)]++
	}
	best, bestCount := "", 0
	for family, count := range counts {
		if count > bestCount || (count == bestCount && family < best) {
			best, bestCount = family, count
		}
	}
	switch best {
	case "rss", "newsapi":
		return core.TopicSourceRSS
	case "reddit":
		return core.TopicSourceReddit
	case "trends":
		return core.TopicSourceTrends
	case "autocomplete":
		return core.TopicSourceAutocomplete
	case "competitor":
		return core.TopicSourceCompetitor
	default:
		return core.TopicSourceManual
	}
}

// tokenize mirrors the clusterer's tokenization for consistent Jaccard
// comparisons.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var tokens []string
	for _, f := range fields {
		if len(f) >= 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// slugify derives a stable topic ID from a title.
func slugify(title string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(title) {
		switch {
		case 'a' <= r && r <= 'z' || '0' <= r && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}
