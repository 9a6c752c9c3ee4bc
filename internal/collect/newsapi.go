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
)

// newsAPIBaseURL is overridable in tests.
var newsAPIBaseURL = "https://api.thenewsapi.com/v1/news/all"

// breakingWindow is the default date window for news queries.
const breakingWindow = 24 * time.Hour

type newsAPIResponse struct {
	Data []newsAPIArticle `json:"data"`
}

type newsAPIArticle struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Snippet     string `json:"snippet"`
	URL         string `json:"url"`
	Source      string `json:"source"`
	PublishedAt string `json:"published_at"`
	Language    string `json:"language"`
}

// NewsAPICollector queries TheNewsAPI for breaking coverage of the seed
// keywords within the last 24 hours.
type NewsAPICollector struct {
	gov    *ratelimit.Governor
	client *http.Client
	apiKey string
	window time.Duration
}

// NewNewsAPICollector wires the news collector.
func NewNewsAPICollector(gov *ratelimit.Governor, apiKey string) *NewsAPICollector {
	return &NewsAPICollector{
		gov:    gov,
		client: &http.Client{Timeout: 30 * time.Second},
		apiKey: apiKey,
		window: breakingWindow,
	}
}

func (c *NewsAPICollector) Name() string { return "newsapi" }

func (c *NewsAPICollector) Collect(ctx context.Context, cfg *config.MarketConfig) []core.Document {
	if c.apiKey == "" {
		logger.Debug("newsapi collector disabled, no api key")
		return nil
	}

	seen := make(map[string]bool)
	var docs []core.Document
	for _, keyword := range cfg.SeedKeywords {
		for _, article := range c.search(ctx, keyword, cfg.Language) {
			if article.URL == "" || seen[article.URL] {
				continue
			}
			seen[article.URL] = true

			content := article.Snippet
			if content == "" {
				content = article.Description
			}
			doc := newDocument("newsapi_"+strings.ToLower(article.Source), article.URL, article.Title, content, article.Description, cfg)
			doc.PublishedAt = parseFeedDate(article.PublishedAt)
			docs = append(docs, doc)
		}
	}
	logger.Info("newsapi collection finished", "keywords", len(cfg.SeedKeywords), "documents", len(docs))
	return docs
}

func (c *NewsAPICollector) search(ctx context.Context, keyword, language string) []newsAPIArticle {
	started := time.Now()
	host := ratelimit.HostOf(newsAPIBaseURL)
	if err := c.gov.Acquire(ctx, host); err != nil {
		return nil
	}

	params := url.Values{}
	params.Set("api_token", c.apiKey)
	params.Set("search", keyword)
	params.Set("language", language)
	params.Set("published_after", time.Now().Add(-c.window).UTC().Format("2006-01-02T15:04:05"))
	params.Set("limit", "25")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, newsAPIBaseURL+"?"+params.Encode(), nil)
	if err != nil {
		logCollectError(c.Name(), host, "request", started, err)
		return nil
	}

	resp, err := c.client.Do(req)
	if err != nil {
		logCollectError(c.Name(), host, "fetch", started, err)
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		logCollectError(c.Name(), host, "status", started, fmt.Errorf("status %d", resp.StatusCode))
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		logCollectError(c.Name(), host, "read", started, err)
		return nil
	}

	var parsed newsAPIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		logCollectError(c.Name(), host, "parse", started, err)
		return nil
	}
	return parsed.Data
}
