package collect

import (
	"context"
	"fmt"
	"strings"
	"time"

	"scout/internal/config"
	"scout/internal/core"
	"scout/internal/llm"
	"scout/internal/logger"
)

// trendsPrompt asks for trend phrases as a JSON array. Grounding supplies
// the recency; no scraping is involved.
const trendsPrompt = `You are a trend researcher for the %s market (language: %s).
Using current web search, identify trending topics and rising search phrases
related to these seed keywords: %s.

Return ONLY a JSON array of objects, each shaped as:
{"phrase": "...", "reason": "one sentence on why it is trending"}

Return between 5 and 15 entries. Focus on the last 30 days.`

// TrendsCollector surfaces trending phrases via a grounded LLM call.
type TrendsCollector struct {
	provider llm.Provider
}

// NewTrendsCollector wires the trends collector.
func NewTrendsCollector(provider llm.Provider) *TrendsCollector {
	return &TrendsCollector{provider: provider}
}

func (c *TrendsCollector) Name() string { return "trends" }

func (c *TrendsCollector) Collect(ctx context.Context, cfg *config.MarketConfig) []core.Document {
	started := time.Now()
	prompt := fmt.Sprintf(trendsPrompt, cfg.Market, cfg.Language, strings.Join(cfg.SeedKeywords, ", "))

	var trends []struct {
		Phrase string `json:"phrase"`
		Reason string `json:"reason"`
	}
	resp, err := llm.GenerateJSON(ctx, c.provider, prompt, llm.Options{Grounding: true}, &trends)
	if err != nil {
		logCollectError(c.Name(), "gemini", "llm", started, err)
		return nil
	}

	groundingByTitle := make(map[string]string)
	if resp != nil {
		for _, src := range resp.Grounding {
			groundingByTitle[strings.ToLower(src.Title)] = src.URL
		}
	}

	var docs []core.Document
	for _, trend := range trends {
		phrase := strings.TrimSpace(trend.Phrase)
		if phrase == "" {
			continue
		}
		sourceURL := groundingByTitle[strings.ToLower(phrase)]
		if sourceURL == "" {
			sourceURL = "https://trends.internal/" + strings.ReplaceAll(strings.ToLower(phrase), " ", "-")
		}
		doc := newDocument("trends", sourceURL, phrase, trend.Reason, trend.Reason, cfg)
		docs = append(docs, doc)
	}
	logger.Info("trends collection finished", "phrases", len(docs), "duration_ms", time.Since(started).Milliseconds())
	return docs
}
