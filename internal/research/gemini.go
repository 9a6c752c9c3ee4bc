package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"scout/internal/core"
	"scout/internal/llm"
)

// geminiCostPerQuery approximates one grounded flash call.
const geminiCostPerQuery = 0.002

// geminiSearchPrompt asks for trend-analysis-shaped results as JSON.
const geminiSearchPrompt = `Using current web search, research this query and return the
most relevant sources as a JSON array. Query: %s

Each element must be shaped as:
{"url": "...", "title": "...", "snippet": "2-3 sentence summary of what this source says"}

Return up to %d entries, most relevant first. Prefer sources discussing
trends, forecasts, and emerging developments.`

// GeminiBackend is the TRENDS specialization: a grounded LLM producing
// trending-analysis-shaped results.
type GeminiBackend struct {
	provider llm.Provider
}

// NewGeminiBackend wires the grounded-LLM adapter.
func NewGeminiBackend(provider llm.Provider) *GeminiBackend {
	return &GeminiBackend{provider: provider}
}

func (b *GeminiBackend) Name() string            { return "gemini" }
func (b *GeminiBackend) Horizon() Horizon        { return HorizonTrends }
func (b *GeminiBackend) CostPerQuery() float64   { return geminiCostPerQuery }
func (b *GeminiBackend) SupportsCitations() bool { return true }

func (b *GeminiBackend) Search(ctx context.Context, query string, maxResults int) []core.SearchResult {
	if b.provider == nil {
		return nil
	}
	prompt := fmt.Sprintf(geminiSearchPrompt, query, maxResults)

	var items []struct {
		URL     string `json:"url"`
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
	}
	resp, err := llm.GenerateJSON(ctx, b.provider, prompt, llm.Options{Grounding: true}, &items)
	if err != nil {
		logBackendError(b.Name(), query, "llm", err)
		return nil
	}

	seen := make(map[string]bool)
	var results []core.SearchResult
	add := func(url, title, snippet string) {
		if url == "" || seen[url] || len(results) >= maxResults {
			return
		}
		seen[url] = true
		results = append(results, core.SearchResult{URL: url, Title: title, Snippet: snippet})
	}
	for _, item := range items {
		add(item.URL, item.Title, item.Snippet)
	}
	// Grounding chunks the model consulted but did not list still count
	// as sources.
	if resp != nil {
		for _, src := range resp.Grounding {
			add(src.URL, src.Title, "")
		}
	}
	return rankResults(b.Name(), results)
}

func (b *GeminiBackend) HealthCheck(ctx context.Context) Health {
	if b.provider == nil {
		return HealthFailed
	}
	ctx, cancel := withDeadline(ctx, 15*time.Second)
	defer cancel()
	resp, err := b.provider.Generate(ctx, "Reply with the single word: ok", llm.Options{})
	if err != nil {
		return HealthFailed
	}
	if !strings.Contains(strings.ToLower(resp.Content), "ok") {
		return HealthDegraded
	}
	return HealthOK
}
