package collect

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scout/internal/config"
	"scout/internal/core"
	"scout/internal/fetch"
	"scout/internal/llm"
	"scout/internal/logger"
	"scout/internal/ratelimit"
)

// discoveryProbeTimeout caps each per-host feed probe.
const discoveryProbeTimeout = 10 * time.Second

// keywordExpansionPrompt asks for feed-discovery query variants.
const keywordExpansionPrompt = `Expand these seed keywords into search queries useful for
finding RSS feeds and news sources about the topic. Market: %s, language: %s.
Keywords: %s

Return ONLY a JSON array of 5 to 10 short query strings.`

// SearchFunc issues one search-engine query; the discovery stage uses it
// to find hosts likely to publish feeds.
type SearchFunc func(ctx context.Context, query string, maxResults int) []core.SearchResult

// FeedDiscovery finds feed URLs for a market in two stages: static feeds
// from config, then LLM-expanded queries probed for feed auto-discovery
// links.
type FeedDiscovery struct {
	provider llm.Provider
	search   SearchFunc
	gov      *ratelimit.Governor
	client   *http.Client
}

// NewFeedDiscovery wires the discovery stage. provider and search may be
// nil, which limits discovery to the static stage.
func NewFeedDiscovery(provider llm.Provider, search SearchFunc, gov *ratelimit.Governor) *FeedDiscovery {
	return &FeedDiscovery{
		provider: provider,
		search:   search,
		gov:      gov,
		client:   &http.Client{Timeout: discoveryProbeTimeout},
	}
}

// Discover returns feed URLs for the market, static feeds first, each
// discovered feed at most once.
func (d *FeedDiscovery) Discover(ctx context.Context, cfg *config.MarketConfig) []string {
	seen := make(map[string]bool)
	var feeds []string
	add := func(feedURL string) {
		feedURL = strings.TrimSpace(feedURL)
		if feedURL == "" || seen[feedURL] {
			return
		}
		seen[feedURL] = true
		feeds = append(feeds, feedURL)
	}

	for _, feedURL := range cfg.Collectors.CustomFeeds {
		add(feedURL)
	}

	if d.provider == nil || d.search == nil {
		return feeds
	}

	for _, query := range d.expandQueries(ctx, cfg) {
		results := d.search(ctx, fmt.Sprintf("%q rss OR feed", query), 5)
		hostSeen := make(map[string]bool)
		for _, result := range results {
			host := ratelimit.HostOf(result.URL)
			if host == "unknown" || hostSeen[host] {
				continue
			}
			hostSeen[host] = true
			for _, feedURL := range d.probeHost(ctx, result.URL) {
				add(feedURL)
			}
		}
	}

	logger.Info("feed discovery finished", "feeds", len(feeds))
	return feeds
}

// expandQueries turns the seed keywords into discovery queries via the
// LLM, falling back to the raw keywords on failure.
func (d *FeedDiscovery) expandQueries(ctx context.Context, cfg *config.MarketConfig) []string {
	prompt := fmt.Sprintf(keywordExpansionPrompt, cfg.Market, cfg.Language, strings.Join(cfg.SeedKeywords, ", "))
	var queries []string
	if _, err := llm.GenerateJSON(ctx, d.provider, prompt, llm.Options{}, &queries); err != nil {
		logger.Warn("keyword expansion failed, using seeds directly", "error", err.Error())
		return cfg.SeedKeywords
	}
	if len(queries) == 0 {
		return cfg.SeedKeywords
	}
	return queries
}

// probeHost fetches one page and returns its feed auto-discovery links,
// falling back to conventional feed paths, all under the hard per-host
// timeout.
func (d *FeedDiscovery) probeHost(ctx context.Context, pageURL string) []string {
	host, err := acquireHost(ctx, d.gov, pageURL)
	if err != nil {
		return nil
	}
	links, ok := ratelimit.Envelope(ctx, d.gov, host, discoveryProbeTimeout, func(ctx context.Context) ([]string, error) {
		html, err := d.rawGet(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		return fetch.FeedLinks(html, pageURL), nil
	})
	if ok && len(links) > 0 {
		return links
	}
	return d.probeConventionalPaths(ctx, pageURL)
}

// conventionalFeedPaths are the well-known feed locations probed when a
// page exposes no auto-discovery links.
var conventionalFeedPaths = []string{"/feed", "/rss", "/feed.xml", "/rss.xml", "/atom.xml", "/index.xml"}

func (d *FeedDiscovery) probeConventionalPaths(ctx context.Context, pageURL string) []string {
	base := siteRoot(pageURL)
	if base == "" {
		return nil
	}
	host := ratelimit.HostOf(base)

	for _, path := range conventionalFeedPaths {
		candidate := base + path
		if err := d.gov.Acquire(ctx, host); err != nil {
			return nil
		}
		ok, _ := ratelimit.Envelope(ctx, d.gov, host, discoveryProbeTimeout, func(ctx context.Context) (bool, error) {
			body, err := d.rawGet(ctx, candidate)
			if err != nil {
				return false, err
			}
			_, err = parseFeed([]byte(body))
			return err == nil, nil
		})
		if ok {
			return []string{candidate}
		}
	}
	return nil
}

// rawGet fetches a URL and returns the raw body, unlike the extractor
// which discards markup.
func (d *FeedDiscovery) rawGet(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "scout-research-agent/1.0")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d for %s", resp.StatusCode, rawURL)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func siteRoot(rawURL string) string {
	idx := strings.Index(rawURL, "://")
	if idx < 0 {
		return ""
	}
	rest := rawURL[idx+3:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	if rest == "" {
		return ""
	}
	return rawURL[:idx+3] + rest
}
