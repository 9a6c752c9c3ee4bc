package research

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"scout/internal/core"
	"scout/internal/ratelimit"
)

// newsBackendBaseURL is overridable in tests.
var newsBackendBaseURL = "https://api.thenewsapi.com/v1/news/all"

// newsBackendWindow is the breaking-news date window.
const newsBackendWindow = 24 * time.Hour

// NewsBackend is the BREAKING specialization: real-time news with a
// date-window filter.
type NewsBackend struct {
	apiKey   string
	language string
	gov      *ratelimit.Governor
	client   *http.Client
	window   time.Duration
}

// NewNewsBackend wires the TheNewsAPI adapter.
func NewNewsBackend(apiKey, language string, gov *ratelimit.Governor) *NewsBackend {
	return &NewsBackend{
		apiKey:   apiKey,
		language: language,
		gov:      gov,
		client:   &http.Client{Timeout: 30 * time.Second},
		window:   newsBackendWindow,
	}
}

func (b *NewsBackend) Name() string            { return "thenewsapi" }
func (b *NewsBackend) Horizon() Horizon        { return HorizonBreaking }
func (b *NewsBackend) CostPerQuery() float64   { return 0 }
func (b *NewsBackend) SupportsCitations() bool { return false }

func (b *NewsBackend) Search(ctx context.Context, query string, maxResults int) []core.SearchResult {
	if b.apiKey == "" {
		return nil
	}
	host := ratelimit.HostOf(newsBackendBaseURL)
	if err := b.gov.Acquire(ctx, host); err != nil {
		return nil
	}

	params := url.Values{}
	params.Set("api_token", b.apiKey)
	params.Set("search", query)
	params.Set("language", b.language)
	params.Set("published_after", time.Now().Add(-b.window).UTC().Format("2006-01-02T15:04:05"))
	params.Set("limit", fmt.Sprint(maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, newsBackendBaseURL+"?"+params.Encode(), nil)
	if err != nil {
		logBackendError(b.Name(), query, "request", err)
		return nil
	}

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
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		logBackendError(b.Name(), query, "read", err)
		return nil
	}

	var parsed struct {
		Data []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			Snippet     string `json:"snippet"`
			URL         string `json:"url"`
			PublishedAt string `json:"published_at"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		logBackendError(b.Name(), query, "parse", err)
		return nil
	}

	results := make([]core.SearchResult, 0, len(parsed.Data))
	for _, a := range parsed.Data {
		snippet := a.Snippet
		if snippet == "" {
			snippet = a.Description
		}
		results = append(results, core.SearchResult{
			URL:         a.URL,
			Title:       a.Title,
			Snippet:     snippet,
			PublishedAt: parseISODate(a.PublishedAt),
		})
	}
	return rankResults(b.Name(), results)
}

func (b *NewsBackend) HealthCheck(ctx context.Context) Health {
	if b.apiKey == "" {
		return HealthFailed
	}
	ctx, cancel := withDeadline(ctx, 10*time.Second)
	defer cancel()
	if results := b.Search(ctx, "news", 1); len(results) == 0 {
		return HealthDegraded
	}
	return HealthOK
}
