// Package synthesize turns reranked sources into a cited markdown
// article: best-effort extraction, BM25 passage pre-filter, LLM passage
// selection, then a single synthesis call with citation validation.
package synthesize

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"scout/internal/config"
	"scout/internal/core"
	"scout/internal/fetch"
	"scout/internal/llm"
	"scout/internal/logger"
	"scout/internal/ratelimit"
	"scout/internal/rerank"
)

// Strategy names and per-topic cost estimates in USD.
const (
	StrategyBM25LLM = "bm25_llm"
	StrategyLLMOnly = "llm_only"

	costBM25LLM = 0.0019
	costLLMOnly = 0.0038

	// synthesisTimeout is the hard ceiling on the article-writing call.
	synthesisTimeout = 60 * time.Second
	extractTimeout   = 20 * time.Second

	passagesPerSource = 3
	prefilterKeep     = 10
	maxPassageChars   = 600
	defaultMaxWords   = 2000
)

// Fetcher is the article extraction surface.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Page, error)
}

// Result is one synthesized article plus its provenance and cost.
type Result struct {
	Article     string
	Citations   []string
	CostUSD     float64
	DurationsMS map[string]int64
}

// Synthesizer writes research articles from reranked sources.
type Synthesizer struct {
	provider llm.Provider
	fetcher  Fetcher
	gov      *ratelimit.Governor
	strategy string
	maxWords int
}

// New builds a synthesizer. An unknown strategy falls back to bm25_llm.
func New(provider llm.Provider, fetcher Fetcher, gov *ratelimit.Governor, cfg config.Synthesizer) *Synthesizer {
	strategy := cfg.Strategy
	if strategy != StrategyLLMOnly {
		strategy = StrategyBM25LLM
	}
	maxWords := cfg.MaxArticleWords
	if maxWords <= 0 || maxWords > defaultMaxWords {
		maxWords = defaultMaxWords
	}
	return &Synthesizer{
		provider: provider,
		fetcher:  fetcher,
		gov:      gov,
		strategy: strategy,
		maxWords: maxWords,
	}
}

// sourceMaterial is one source's contribution to the synthesis prompt.
type sourceMaterial struct {
	index    int // 1-based [Source N] index
	url      string
	title    string
	passages []string
}

// Synthesize runs the full pipeline for one topic. crossTopic may be nil.
// On any failure the caller stores the reranker output without an
// article, so every error here is terminal for the article only.
func (s *Synthesizer) Synthesize(ctx context.Context, topic core.Topic, sources []rerank.RankedResult, crossTopic *CrossTopicContext) (*Result, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources to synthesize for topic %s", topic.ID)
	}
	durations := make(map[string]int64)

	started := time.Now()
	materials := s.gatherMaterials(ctx, topic.Title, sources)
	durations["extract_ms"] = time.Since(started).Milliseconds()

	started = time.Now()
	s.selectPassages(ctx, topic.Title, materials)
	durations["select_ms"] = time.Since(started).Milliseconds()

	started = time.Now()
	article, err := s.writeArticle(ctx, topic, materials, crossTopic)
	durations["synthesize_ms"] = time.Since(started).Milliseconds()
	if err != nil {
		return nil, err
	}

	citations := make([]string, len(materials))
	for i, m := range materials {
		citations[i] = m.url
	}
	if err := validateCitations(article, len(citations)); err != nil {
		return nil, err
	}

	cost := costBM25LLM
	if s.strategy == StrategyLLMOnly {
		cost = costLLMOnly
	}
	return &Result{
		Article:     article,
		Citations:   citations,
		CostUSD:     cost,
		DurationsMS: durations,
	}, nil
}

// gatherMaterials extracts text per source and pre-filters passages.
// Extraction failures degrade to the search snippet.
func (s *Synthesizer) gatherMaterials(ctx context.Context, query string, sources []rerank.RankedResult) []*sourceMaterial {
	materials := make([]*sourceMaterial, 0, len(sources))
	for i, src := range sources {
		text := src.Content
		if page := s.extract(ctx, src.URL); page != nil && page.Text != "" {
			text = page.Text
		}
		if text == "" {
			text = src.Snippet
		}

		passages := splitPassages(text)
		if s.strategy == StrategyBM25LLM && len(passages) > prefilterKeep {
			idx := rerank.NewBM25(passages).TopN(query, prefilterKeep)
			kept := make([]string, 0, prefilterKeep)
			for _, j := range idx {
				kept = append(kept, passages[j])
			}
			passages = kept
		}
		materials = append(materials, &sourceMaterial{
			index:    i + 1,
			url:      src.URL,
			title:    src.Title,
			passages: passages,
		})
	}
	return materials
}

func (s *Synthesizer) extract(ctx context.Context, url string) *fetch.Page {
	if s.fetcher == nil || url == "" {
		return nil
	}
	host := ratelimit.HostOf(url)
	page, ok := ratelimit.Envelope(ctx, s.gov, host, extractTimeout, func(ctx context.Context) (*fetch.Page, error) {
		return s.fetcher.Fetch(ctx, url)
	})
	if !ok {
		logger.Debug("source extraction failed, using snippet", "url", url)
		return nil
	}
	return page
}

// passageSelection is the structured LLM response shape.
type passageSelection struct {
	Selections []struct {
		Source   int   `json:"source"`
		Passages []int `json:"passages"`
	} `json:"selections"`
}

// selectPassages asks the LLM to keep the best passages per source. On
// failure each source keeps its leading pre-filtered passages.
func (s *Synthesizer) selectPassages(ctx context.Context, query string, materials []*sourceMaterial) {
	var b strings.Builder
	fmt.Fprintf(&b, "Select the %d most informative passages per source for researching %q.\n", passagesPerSource, query)
	b.WriteString("Respond with JSON only: {\"selections\": [{\"source\": N, \"passages\": [passage numbers]}]}\n\n")
	for _, m := range materials {
		fmt.Fprintf(&b, "Source %d: %s\n", m.index, m.title)
		for j, p := range m.passages {
			fmt.Fprintf(&b, "  Passage %d: %s\n", j+1, clip(p, maxPassageChars))
		}
		b.WriteString("\n")
	}

	var picked passageSelection
	_, err := llm.GenerateJSON(ctx, s.provider, b.String(), llm.Options{}, &picked)
	if err != nil {
		logger.Warn("passage selection failed, keeping pre-filter order", "error", err.Error())
		for _, m := range materials {
			m.passages = headPassages(m.passages, passagesPerSource)
		}
		return
	}

	chosen := make(map[int][]int, len(picked.Selections))
	for _, sel := range picked.Selections {
		chosen[sel.Source] = sel.Passages
	}
	for _, m := range materials {
		indices, ok := chosen[m.index]
		if !ok {
			m.passages = headPassages(m.passages, passagesPerSource)
			continue
		}
		var kept []string
		for _, n := range indices {
			if n >= 1 && n <= len(m.passages) {
				kept = append(kept, m.passages[n-1])
			}
			if len(kept) == passagesPerSource {
				break
			}
		}
		if len(kept) == 0 {
			kept = headPassages(m.passages, passagesPerSource)
		}
		m.passages = kept
	}
}

// writeArticle issues the synthesis call under the hard timeout.
func (s *Synthesizer) writeArticle(ctx context.Context, topic core.Topic, materials []*sourceMaterial, crossTopic *CrossTopicContext) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, synthesisTimeout)
	defer cancel()

	var b strings.Builder
	fmt.Fprintf(&b, "Write a research article in markdown about %q, at most %d words.\n", topic.Title, s.maxWords)
	b.WriteString("Cite claims inline as [Source N] using only the sources below. Do not invent sources.\n")
	if topic.Description != "" {
		b.WriteString("Context: " + topic.Description + "\n")
	}
	b.WriteString("\nSources:\n")
	for _, m := range materials {
		fmt.Fprintf(&b, "[Source %d] %s (%s)\n", m.index, m.title, m.url)
		for _, p := range m.passages {
			b.WriteString("  " + clip(p, maxPassageChars) + "\n")
		}
	}
	b.WriteString(crossTopic.promptSection())

	resp, err := s.provider.Generate(ctx, b.String(), llm.Options{})
	if err != nil {
		return "", fmt.Errorf("synthesis call failed for topic %s: %w", topic.ID, err)
	}
	article := strings.TrimSpace(resp.Content)
	if article == "" {
		return "", fmt.Errorf("synthesis returned empty article for topic %s", topic.ID)
	}
	return article, nil
}

var citationPattern = regexp.MustCompile(`\[Source (\d+)\]`)

// validateCitations rejects articles referencing sources outside the
// citations list.
func validateCitations(article string, numCitations int) error {
	for _, match := range citationPattern.FindAllStringSubmatch(article, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil || n < 1 || n > numCitations {
			return fmt.Errorf("article cites [Source %s] but only %d sources exist", match[1], numCitations)
		}
	}
	return nil
}

// splitPassages breaks text into paragraph-sized passages.
func splitPassages(text string) []string {
	var passages []string
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if len(block) >= 40 {
			passages = append(passages, block)
		}
	}
	if len(passages) == 0 && strings.TrimSpace(text) != "" {
		passages = []string{strings.TrimSpace(text)}
	}
	return passages
}

func headPassages(passages []string, n int) []string {
	if len(passages) > n {
		return passages[:n]
	}
	return passages
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
