// Package rerank implements the cascaded three-stage reranker: lexical
// BM25, lite semantic, and a full weighted scoring pass with SEO metrics.
package rerank

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"scout/internal/authority"
	"scout/internal/config"
	"scout/internal/core"
	"scout/internal/logger"
)

// Stage pool sizes and default weights.
const (
	stage1Keep        = 60
	stage2Keep        = 35
	defaultFinalCount = 25

	weightRelevance = 0.30
	weightNovelty   = 0.25
	weightAuthority = 0.20
	weightFreshness = 0.15
	weightDiversity = 0.05
	weightLocality  = 0.05
)

// RankedResult is a search result annotated with per-stage scores.
type RankedResult struct {
	core.SearchResult
	BM25Score     float64 `json:"bm25_score"`
	SemanticScore float64 `json:"semantic_score"`
	FinalScore    float64 `json:"final_score"`
}

// Locality holds the market/language hints used by the locality metric.
type Locality struct {
	Market   string
	Language string
}

// LocalityFrom extracts market and language from either a flat map
// ({market, language}), a map with a nested market object, or a
// MarketConfig. Values are lowercased; missing fields fall back to
// empty strings.
func LocalityFrom(cfg any) Locality {
	switch c := cfg.(type) {
	case Locality:
		return Locality{Market: lower(c.Market), Language: lower(c.Language)}
	case *config.MarketConfig:
		if c == nil {
			return Locality{}
		}
		return Locality{Market: lower(c.Market), Language: lower(c.Language)}
	case config.MarketConfig:
		return Locality{Market: lower(c.Market), Language: lower(c.Language)}
	case map[string]any:
		loc := Locality{
			Market:   lower(stringAt(c, "market")),
			Language: lower(stringAt(c, "language")),
		}
		// Nested shape: {market: {market: ..., language: ...}}.
		if nested, ok := c["market"].(map[string]any); ok {
			loc.Market = lower(stringAt(nested, "market"))
			if l := lower(stringAt(nested, "language")); l != "" {
				loc.Language = l
			}
		}
		return loc
	case map[string]string:
		return Locality{Market: lower(c["market"]), Language: lower(c["language"])}
	default:
		return Locality{}
	}
}

func stringAt(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func lower(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Reranker narrows a fused result pool down to the final research set.
type Reranker struct {
	scorer     SemanticScorer
	threshold1 float64
	threshold2 float64
	finalCount int
	locality   Locality
	now        func() time.Time
}

// New builds a reranker from the market config. EnableVoyage selects the
// Voyage API scorer; otherwise the local lite scorer is used.
func New(cfg *config.MarketConfig, voyageAPIKey string) *Reranker {
	var scorer SemanticScorer = liteScorer{}
	if cfg.Reranker.EnableVoyage {
		scorer = NewVoyageScorer(voyageAPIKey)
	}
	finalCount := cfg.Reranker.Stage3FinalCount
	if finalCount <= 0 {
		finalCount = defaultFinalCount
	}
	return &Reranker{
		scorer:     scorer,
		threshold1: cfg.Reranker.Stage1Threshold,
		threshold2: cfg.Reranker.Stage2Threshold,
		finalCount: finalCount,
		locality:   LocalityFrom(cfg),
		now:        time.Now,
	}
}

// Rerank runs the full cascade for one topic query.
func (r *Reranker) Rerank(ctx context.Context, query string, results []core.SearchResult) ([]RankedResult, error) {
	if len(results) == 0 {
		return nil, nil
	}

	pool := r.stage1(query, results)
	pool, err := r.stage2(ctx, query, pool)
	if err != nil {
		return nil, err
	}
	final := r.stage3(pool)

	logger.Debug("rerank cascade finished",
		"input", len(results),
		"final", len(final))
	return final, nil
}

// stage1 scores title+snippet with BM25 and keeps the top of the pool.
func (r *Reranker) stage1(query string, results []core.SearchResult) []RankedResult {
	docs := make([]string, len(results))
	for i, res := range results {
		docs[i] = res.Title + " " + res.Snippet
	}
	scores := NewBM25(docs).Scores(query)

	pool := make([]RankedResult, 0, len(results))
	for i, res := range results {
		if scores[i] < r.threshold1 {
			continue
		}
		pool = append(pool, RankedResult{SearchResult: res, BM25Score: scores[i]})
	}
	sort.SliceStable(pool, func(a, b int) bool {
		if pool[a].BM25Score != pool[b].BM25Score {
			return pool[a].BM25Score > pool[b].BM25Score
		}
		return pool[a].URL < pool[b].URL
	})
	if len(pool) > stage1Keep {
		pool = pool[:stage1Keep]
	}
	return pool
}

// stage2 applies the semantic scorer, keeps results above the threshold,
// and reinjects the best dropped candidate of any domain that would
// otherwise vanish from the kept set.
func (r *Reranker) stage2(ctx context.Context, query string, pool []RankedResult) ([]RankedResult, error) {
	if len(pool) == 0 {
		return nil, nil
	}
	docs := make([]string, len(pool))
	for i, res := range pool {
		docs[i] = res.Title + " " + res.Snippet
	}
	scores, err := r.scorer.Score(ctx, query, docs)
	if err != nil {
		return nil, err
	}
	for i := range pool {
		pool[i].SemanticScore = scores[i]
	}

	var kept, dropped []RankedResult
	for _, res := range pool {
		if res.SemanticScore >= r.threshold2 {
			kept = append(kept, res)
		} else {
			dropped = append(dropped, res)
		}
	}
	sort.SliceStable(kept, func(a, b int) bool {
		if kept[a].SemanticScore != kept[b].SemanticScore {
			return kept[a].SemanticScore > kept[b].SemanticScore
		}
		return kept[a].URL < kept[b].URL
	})
	if len(kept) > stage2Keep {
		kept = kept[:stage2Keep]
	}
	return reinjectDomains(kept, dropped), nil
}

// reinjectDomains brings back the best dropped result of each domain that
// has no representation among kept results, swapping out the weakest kept
// result from the most-represented domain.
func reinjectDomains(kept, dropped []RankedResult) []RankedResult {
	if len(kept) == 0 || len(dropped) == 0 {
		return kept
	}
	keptDomains := make(map[string]int)
	for _, res := range kept {
		keptDomains[res.Domain]++
	}

	// Best dropped candidate per missing domain, strongest first.
	best := make(map[string]RankedResult)
	for _, res := range dropped {
		if res.Domain == "" || keptDomains[res.Domain] > 0 {
			continue
		}
		cur, ok := best[res.Domain]
		if !ok || res.SemanticScore > cur.SemanticScore {
			best[res.Domain] = res
		}
	}
	candidates := make([]RankedResult, 0, len(best))
	for _, res := range best {
		candidates = append(candidates, res)
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		if candidates[a].SemanticScore != candidates[b].SemanticScore {
			return candidates[a].SemanticScore > candidates[b].SemanticScore
		}
		return candidates[a].URL < candidates[b].URL
	})

	for _, candidate := range candidates {
		// Only swap against a domain that keeps at least two results.
		victim := -1
		for i := len(kept) - 1; i >= 0; i-- {
			if keptDomains[kept[i].Domain] >= 2 {
				victim = i
				break
			}
		}
		if victim == -1 {
			break
		}
		keptDomains[kept[victim].Domain]--
		kept = append(kept[:victim], kept[victim+1:]...)
		kept = append(kept, candidate)
		keptDomains[candidate.Domain]++
	}
	return kept
}

// stage3 greedily accepts results by the weighted 6-metric score. Novelty
// and diversity depend on what has been accepted so far, so each pick
// rescores the remaining pool.
func (r *Reranker) stage3(pool []RankedResult) []RankedResult {
	now := r.now()
	accepted := make([]RankedResult, 0, r.finalCount)
	acceptedTokens := make([]map[string]bool, 0, r.finalCount)
	domainCounts := make(map[string]int)

	remaining := append([]RankedResult(nil), pool...)
	for len(accepted) < r.finalCount && len(remaining) > 0 {
		bestIdx, bestScore := -1, math.Inf(-1)
		for i, res := range remaining {
			score := r.finalScore(res, acceptedTokens, domainCounts, now)
			if score > bestScore || (score == bestScore && bestIdx >= 0 && res.URL < remaining[bestIdx].URL) {
				bestIdx, bestScore = i, score
			}
		}
		picked := remaining[bestIdx]
		picked.FinalScore = bestScore
		accepted = append(accepted, picked)
		acceptedTokens = append(acceptedTokens, tokenSet(picked.Title+" "+picked.Snippet))
		domainCounts[picked.Domain]++
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return accepted
}

func (r *Reranker) finalScore(res RankedResult, acceptedTokens []map[string]bool, domainCounts map[string]int, now time.Time) float64 {
	novelty := 1.0
	tokens := tokenSet(res.Title + " " + res.Snippet)
	for _, prev := range acceptedTokens {
		if sim := jaccard(tokens, prev); 1-sim < novelty {
			novelty = 1 - sim
		}
	}

	freshness := 0.5
	if !res.PublishedAt.IsZero() {
		ageDays := now.Sub(res.PublishedAt).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		freshness = math.Exp(-ageDays / 30)
	}

	diversity := 1.0 / float64(1+domainCounts[res.Domain])

	return weightRelevance*res.SemanticScore +
		weightNovelty*novelty +
		weightAuthority*authority.DomainScore(res.Domain) +
		weightFreshness*freshness +
		weightDiversity*diversity +
		weightLocality*r.localityScore(res.Domain)
}

// marketTLDs maps market names to their country-code TLD.
var marketTLDs = map[string]string{
	"germany": "de", "deutschland": "de",
	"austria": "at", "switzerland": "ch",
	"france": "fr", "spain": "es", "italy": "it",
	"netherlands": "nl", "poland": "pl",
	"united kingdom": "uk", "uk": "uk",
	"united states": "us", "usa": "us", "us": "us",
	"japan": "jp", "india": "in", "brazil": "br",
}

// localityScore rewards domains whose TLD matches the configured market
// or language. Generic TLDs are neutral; foreign country TLDs score low.
func (r *Reranker) localityScore(domain string) float64 {
	if r.locality.Market == "" && r.locality.Language == "" {
		return 0.5
	}
	parts := strings.Split(strings.ToLower(domain), ".")
	if len(parts) < 2 {
		return 0.5
	}
	tld := parts[len(parts)-1]

	wantTLD := marketTLDs[r.locality.Market]
	if wantTLD == "" {
		wantTLD = r.locality.Market
	}
	if tld == wantTLD || tld == r.locality.Language {
		return 1.0
	}
	switch tld {
	case "com", "org", "net", "io", "dev", "gov", "edu":
		return 0.5
	}
	return 0.2
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range Tokenize(text) {
		set[tok] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	inter := 0
	for tok := range a {
		if b[tok] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
