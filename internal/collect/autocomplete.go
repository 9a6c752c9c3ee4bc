package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"scout/internal/config"
	"scout/internal/core"
	"scout/internal/logger"
	"scout/internal/ratelimit"
	"scout/internal/store"
)

// autocompleteBaseURL is overridable in tests.
var autocompleteBaseURL = "https://suggestqueries.google.com/complete/search"

var questionPrefixes = []string{"what", "how", "why", "when", "where", "who"}

var prepositionSuffixes = []string{"for", "with", "without", "near", "vs", "versus"}

// AutocompleteCollector expands seed keywords through suggestion queries.
// Three strategies per keyword: alphabet (26), question prefixes (6), and
// prepositions (6); results are deduplicated across strategies. Responses
// are cached for 30 days.
type AutocompleteCollector struct {
	store  *store.Store
	gov    *ratelimit.Governor
	client *http.Client
}

// NewAutocompleteCollector wires the autocomplete collector.
func NewAutocompleteCollector(st *store.Store, gov *ratelimit.Governor) *AutocompleteCollector {
	return &AutocompleteCollector{
		store:  st,
		gov:    gov,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *AutocompleteCollector) Name() string { return "autocomplete" }

func (c *AutocompleteCollector) Collect(ctx context.Context, cfg *config.MarketConfig) []core.Document {
	seen := make(map[string]bool)
	var docs []core.Document

	for _, keyword := range cfg.SeedKeywords {
		for rank, suggestion := range c.expand(ctx, keyword, cfg.Language) {
			normalized := strings.ToLower(strings.TrimSpace(suggestion))
			if normalized == "" || seen[normalized] {
				continue
			}
			seen[normalized] = true

			// Suggestions have no URL; a synthetic one keeps the dedup
			// key stable per suggestion text.
			syntheticURL := "https://suggest.internal/" + url.PathEscape(normalized)
			doc := newDocument("autocomplete", syntheticURL, suggestion, suggestion, "", cfg)
			doc.Keywords = []string{keyword}
			doc.ReliabilityScore = positionScore(rank + 1)
			docs = append(docs, doc)
		}
	}
	logger.Info("autocomplete collection finished", "seeds", len(cfg.SeedKeywords), "suggestions", len(docs))
	return docs
}

// expand runs all three strategies for one keyword, deduplicating across
// them while preserving first-seen order.
func (c *AutocompleteCollector) expand(ctx context.Context, keyword, language string) []string {
	var queries []string
	for ch := 'a'; ch <= 'z'; ch++ {
		queries = append(queries, fmt.Sprintf("%s %c", keyword, ch))
	}
	for _, prefix := range questionPrefixes {
		queries = append(queries, prefix+" "+keyword)
	}
	for _, suffix := range prepositionSuffixes {
		queries = append(queries, keyword+" "+suffix)
	}

	seen := make(map[string]bool)
	var out []string
	for _, q := range queries {
		for _, s := range c.suggest(ctx, q, language) {
			key := strings.ToLower(strings.TrimSpace(s))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, s)
		}
	}
	return out
}

// suggest returns suggestions for one query, consulting the 30-day cache
// before touching the network. Failures yield no suggestions.
func (c *AutocompleteCollector) suggest(ctx context.Context, query, language string) []string {
	if cached, err := c.store.GetAutocompleteCache(query); err == nil && cached != nil {
		return cached
	}

	host := ratelimit.HostOf(autocompleteBaseURL)
	if err := c.gov.Acquire(ctx, host); err != nil {
		return nil
	}

	started := time.Now()
	reqURL := fmt.Sprintf("%s?client=firefox&hl=%s&q=%s", autocompleteBaseURL, url.QueryEscape(language), url.QueryEscape(query))
	suggestions, err := c.fetchSuggestions(ctx, reqURL)
	if err != nil {
		logCollectError(c.Name(), host, "fetch", started, err)
		return nil
	}

	if err := c.store.PutAutocompleteCache(query, suggestions); err != nil {
		logger.Debug("failed to cache suggestions", "query", query, "error", err.Error())
	}
	return suggestions
}

// fetchSuggestions parses the firefox-client response shape:
// ["query", ["suggestion one", "suggestion two", ...]].
func (c *AutocompleteCollector) fetchSuggestions(ctx context.Context, reqURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "scout-research-agent/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("suggest endpoint returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var payload []json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("unexpected suggest payload: %w", err)
	}
	if len(payload) < 2 {
		return nil, nil
	}
	var suggestions []string
	if err := json.Unmarshal(payload[1], &suggestions); err != nil {
		return nil, fmt.Errorf("unexpected suggestions array: %w", err)
	}
	return suggestions, nil
}

// positionScore maps a suggestion's position to a [0,1] signal; earlier
// suggestions imply higher search volume.
func positionScore(position int) float64 {
	if position < 1 {
		position = 1
	}
	score := 1.0 - float64(position-1)/10.0
	if score < 0 {
		score = 0
	}
	return score
}
