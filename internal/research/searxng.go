package research

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"scout/internal/core"
	"scout/internal/ratelimit"
)

// SearxNGBackend is the BREADTH specialization: free metasearch over many
// engines, tracking which engines answered.
type SearxNGBackend struct {
	baseURL string
	gov     *ratelimit.Governor
	client  *http.Client

	mu         sync.Mutex
	engineHits map[string]int
}

// NewSearxNGBackend wires the SearxNG adapter against a self-hosted or
// public instance base URL.
func NewSearxNGBackend(baseURL string, gov *ratelimit.Governor) *SearxNGBackend {
	return &SearxNGBackend{
		baseURL:    baseURL,
		gov:        gov,
		client:     &http.Client{Timeout: 30 * time.Second},
		engineHits: make(map[string]int),
	}
}

func (b *SearxNGBackend) Name() string            { return "searxng" }
func (b *SearxNGBackend) Horizon() Horizon        { return HorizonBreadth }
func (b *SearxNGBackend) CostPerQuery() float64   { return 0 }
func (b *SearxNGBackend) SupportsCitations() bool { return false }

type searxngResponse struct {
	Results []struct {
		URL           string   `json:"url"`
		Title         string   `json:"title"`
		Content       string   `json:"content"`
		Engine        string   `json:"engine"`
		Engines       []string `json:"engines"`
		Score         float64  `json:"score"`
		PublishedDate string   `json:"publishedDate"`
	} `json:"results"`
}

func (b *SearxNGBackend) Search(ctx context.Context, query string, maxResults int) []core.SearchResult {
	if b.baseURL == "" {
		return nil
	}
	host := ratelimit.HostOf(b.baseURL)
	if err := b.gov.Acquire(ctx, host); err != nil {
		return nil
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("safesearch", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		logBackendError(b.Name(), query, "request", err)
		return nil
	}
	req.Header.Set("User-Agent", "scout-research-agent/1.0")

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

	var parsed searxngResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		logBackendError(b.Name(), query, "parse", err)
		return nil
	}

	results := make([]core.SearchResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if len(results) >= maxResults {
			break
		}
		b.recordEngines(r.Engine, r.Engines)
		results = append(results, core.SearchResult{
			URL:         r.URL,
			Title:       r.Title,
			Snippet:     r.Content,
			Score:       r.Score,
			PublishedAt: parseISODate(r.PublishedDate),
		})
	}
	return rankResults(b.Name(), results)
}

func (b *SearxNGBackend) recordEngines(engine string, engines []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if engine != "" {
		b.engineHits[engine]++
	}
	for _, e := range engines {
		if e != engine {
			b.engineHits[e]++
		}
	}
}

// RespondingEngines returns the engines that have contributed results so
// far, sorted by hit count.
func (b *SearxNGBackend) RespondingEngines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	engines := make([]string, 0, len(b.engineHits))
	for e := range b.engineHits {
		engines = append(engines, e)
	}
	sort.Slice(engines, func(i, j int) bool {
		if b.engineHits[engines[i]] != b.engineHits[engines[j]] {
			return b.engineHits[engines[i]] > b.engineHits[engines[j]]
		}
		return engines[i] < engines[j]
	})
	return engines
}

func (b *SearxNGBackend) HealthCheck(ctx context.Context) Health {
	if b.baseURL == "" {
		return HealthFailed
	}
	ctx, cancel := withDeadline(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/healthz", nil)
	if err != nil {
		return HealthFailed
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return HealthFailed
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 500 {
		return HealthFailed
	}
	if resp.StatusCode != http.StatusOK {
		return HealthDegraded
	}
	return HealthOK
}
