package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"scout/internal/core"
	"scout/internal/ratelimit"
)

// tavilyBaseURL is overridable in tests.
var tavilyBaseURL = "https://api.tavily.com/search"

// tavilyCostPerQuery is the advanced-search credit price in USD.
const tavilyCostPerQuery = 0.005

// TavilyBackend is the DEPTH specialization: an authoritative search
// provider, paid per call.
type TavilyBackend struct {
	apiKey string
	gov    *ratelimit.Governor
	client *http.Client
}

// NewTavilyBackend wires the Tavily adapter.
func NewTavilyBackend(apiKey string, gov *ratelimit.Governor) *TavilyBackend {
	return &TavilyBackend{
		apiKey: apiKey,
		gov:    gov,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (b *TavilyBackend) Name() string            { return "tavily" }
func (b *TavilyBackend) Horizon() Horizon        { return HorizonDepth }
func (b *TavilyBackend) CostPerQuery() float64   { return tavilyCostPerQuery }
func (b *TavilyBackend) SupportsCitations() bool { return true }

type tavilyRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
	IncludeRaw  bool   `json:"include_raw_content"`
}

type tavilyResponse struct {
	Results []struct {
		URL           string  `json:"url"`
		Title         string  `json:"title"`
		Content       string  `json:"content"`
		RawContent    string  `json:"raw_content"`
		Score         float64 `json:"score"`
		PublishedDate string  `json:"published_date"`
	} `json:"results"`
}

func (b *TavilyBackend) Search(ctx context.Context, query string, maxResults int) []core.SearchResult {
	if b.apiKey == "" {
		return nil
	}
	host := ratelimit.HostOf(tavilyBaseURL)
	if err := b.gov.Acquire(ctx, host); err != nil {
		return nil
	}

	payload, _ := json.Marshal(tavilyRequest{
		APIKey:      b.apiKey,
		Query:       query,
		SearchDepth: "advanced",
		MaxResults:  maxResults,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tavilyBaseURL, bytes.NewReader(payload))
	if err != nil {
		logBackendError(b.Name(), query, "request", err)
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		logBackendError(b.Name(), query, "network", err)
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		logBackendError(b.Name(), query, "status", fmt.Errorf("status %d", resp.StatusCode))
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		logBackendError(b.Name(), query, "read", err)
		return nil
	}

	var parsed tavilyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		logBackendError(b.Name(), query, "parse", err)
		return nil
	}

	results := make([]core.SearchResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		content := r.RawContent
		if content == "" {
			content = r.Content
		}
		results = append(results, core.SearchResult{
			URL:         r.URL,
			Title:       r.Title,
			Snippet:     r.Content,
			Content:     content,
			Score:       r.Score,
			PublishedAt: parseISODate(r.PublishedDate),
		})
	}
	return rankResults(b.Name(), results)
}

func (b *TavilyBackend) HealthCheck(ctx context.Context) Health {
	if b.apiKey == "" {
		return HealthFailed
	}
	ctx, cancel := withDeadline(ctx, 10*time.Second)
	defer cancel()
	if results := b.Search(ctx, "health check", 1); len(results) == 0 {
		return HealthDegraded
	}
	return HealthOK
}

func parseISODate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, format := range []string{time.RFC3339, "2006-01-02", "Mon, 02 Jan 2006 15:04:05 GMT"} {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
