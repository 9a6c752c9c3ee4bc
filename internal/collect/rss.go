package collect

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scout/internal/config"
	"scout/internal/core"
	"scout/internal/fetch"
	"scout/internal/logger"
	"scout/internal/ratelimit"
	"scout/internal/store"
)

// rss2 models an RSS 2.0 (and 0.9x) document.
type rss2 struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Title string    `xml:"title"`
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

// rdfFeed models RSS 1.0, where items are siblings of the channel.
type rdfFeed struct {
	XMLName xml.Name `xml:"RDF"`
	Channel struct {
		Title string `xml:"title"`
	} `xml:"channel"`
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	Date        string `xml:"date"` // dc:date, used by RSS 1.0
	GUID        string `xml:"guid"`
}

// atomFeed models an Atom document.
type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Title   string      `xml:"title"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title     string     `xml:"title"`
	Links     []atomLink `xml:"link"`
	Summary   string     `xml:"summary"`
	Content   string     `xml:"content"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
	ID        string     `xml:"id"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

// feedEntry is the format-neutral item shape the collector works with.
type feedEntry struct {
	Title     string
	Link      string
	Summary   string
	Published time.Time
}

// RSSCollector fetches configured feeds with conditional GET and extracts
// full article text for each entry.
type RSSCollector struct {
	store   *store.Store
	fetcher *fetch.Fetcher
	gov     *ratelimit.Governor
	client  *http.Client
	health  *healthTracker
}

// NewRSSCollector wires the RSS collector.
func NewRSSCollector(st *store.Store, fetcher *fetch.Fetcher, gov *ratelimit.Governor) *RSSCollector {
	return &RSSCollector{
		store:   st,
		fetcher: fetcher,
		gov:     gov,
		client:  &http.Client{Timeout: 30 * time.Second},
		health:  newHealthTracker(),
	}
}

func (c *RSSCollector) Name() string { return "rss" }

// Collect walks the configured feeds. Feeds that tripped the failure
// threshold are skipped; a 304 yields no documents for that feed.
func (c *RSSCollector) Collect(ctx context.Context, cfg *config.MarketConfig) []core.Document {
	var docs []core.Document
	slot := c.gov.CollectorSlot(c.Name())

	for _, feedURL := range cfg.Collectors.CustomFeeds {
		c.restoreHealth(feedURL)
		if c.health.shouldSkip(feedURL) {
			logger.Debug("skipping unhealthy feed", "feed", feedURL)
			continue
		}

		select {
		case slot <- struct{}{}:
		case <-ctx.Done():
			return docs
		}
		feedDocs := c.collectFeed(ctx, feedURL, cfg)
		<-slot

		docs = append(docs, feedDocs...)
	}
	logger.Info("rss collection finished", "feeds", len(cfg.Collectors.CustomFeeds), "documents", len(docs))
	return docs
}

// restoreHealth seeds the in-memory tracker from the persisted feed cache
// so failure streaks survive process restarts.
func (c *RSSCollector) restoreHealth(feedURL string) {
	entry, err := c.store.GetFeedCache(feedURL)
	if err != nil || entry == nil {
		return
	}
	if existing := c.health.get(feedURL); existing.SuccessCount == 0 && existing.FailureCount == 0 {
		c.health.set(feedURL, entry.Health)
	}
}

func (c *RSSCollector) collectFeed(ctx context.Context, feedURL string, cfg *config.MarketConfig) []core.Document {
	started := time.Now()
	host, err := acquireHost(ctx, c.gov, feedURL)
	if err != nil {
		return nil
	}

	cached, _ := c.store.GetFeedCache(feedURL)
	var etag, lastMod string
	if cached != nil {
		etag, lastMod = cached.ETag, cached.LastMod
	}

	entries, newETag, newLastMod, notModified, err := c.fetchFeed(ctx, feedURL, etag, lastMod)
	if err != nil {
		c.health.recordFailure(feedURL, err)
		c.persistHealth(feedURL, etag, lastMod)
		logCollectError(c.Name(), host, "fetch", started, err)
		return nil
	}

	c.health.recordSuccess(feedURL)
	if notModified {
		c.persistHealth(feedURL, etag, lastMod)
		logger.Debug("feed not modified", "feed", feedURL)
		return nil
	}
	c.persistHealth(feedURL, newETag, newLastMod)

	source := "rss_" + host
	cutoff := time.Now().AddDate(0, 0, -lookbackDays(cfg))

	var docs []core.Document
	for _, entry := range entries {
		if entry.Link == "" || entry.Title == "" {
			continue
		}
		if !entry.Published.IsZero() && entry.Published.Before(cutoff) {
			continue
		}
		doc := c.buildDocument(ctx, source, entry, cfg)
		docs = append(docs, doc)
	}
	return docs
}

// buildDocument extracts full article text, falling back to the feed
// summary when extraction fails.
func (c *RSSCollector) buildDocument(ctx context.Context, source string, entry feedEntry, cfg *config.MarketConfig) core.Document {
	content := ""
	author := ""
	if host, err := acquireHost(ctx, c.gov, entry.Link); err == nil {
		page, ok := ratelimit.Envelope(ctx, c.gov, host, 20*time.Second, func(ctx context.Context) (*fetch.Page, error) {
			return c.fetcher.Fetch(ctx, entry.Link)
		})
		if ok && page.Text != "" {
			content = page.Text
			author = page.Author
		}
	}
	if content == "" {
		content = stripTags(entry.Summary)
	}

	doc := newDocument(source, entry.Link, entry.Title, content, stripTags(entry.Summary), cfg)
	doc.PublishedAt = entry.Published
	doc.Author = author
	return doc
}

func (c *RSSCollector) persistHealth(feedURL, etag, lastMod string) {
	err := c.store.PutFeedCache(store.FeedCacheEntry{
		FeedURL: feedURL,
		ETag:    etag,
		LastMod: lastMod,
		Health:  c.health.get(feedURL),
	})
	if err != nil {
		logger.Debug("failed to persist feed cache", "feed", feedURL, "error", err.Error())
	}
}

// fetchFeed performs the conditional GET and parses whichever of RSS 2.0,
// RSS 1.0, or Atom the body turns out to be.
func (c *RSSCollector) fetchFeed(ctx context.Context, feedURL, etag, lastMod string) (entries []feedEntry, newETag, newLastMod string, notModified bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, "", "", false, fmt.Errorf("failed to create request: %w", err)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastMod != "" {
		req.Header.Set("If-Modified-Since", lastMod)
	}
	req.Header.Set("User-Agent", "scout-research-agent/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", "", false, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotModified {
		return nil, etag, lastMod, true, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", "", false, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, "", "", false, fmt.Errorf("failed to read feed body: %w", err)
	}

	entries, err = parseFeed(body)
	if err != nil {
		return nil, "", "", false, err
	}
	return entries, resp.Header.Get("ETag"), resp.Header.Get("Last-Modified"), false, nil
}

// parseFeed tries RSS 2.0, then Atom, then RSS 1.0 (RDF).
func parseFeed(body []byte) ([]feedEntry, error) {
	var r rss2
	if err := xml.Unmarshal(body, &r); err == nil && len(r.Channel.Items) > 0 {
		return rssEntries(r.Channel.Items), nil
	}

	var a atomFeed
	if err := xml.Unmarshal(body, &a); err == nil && len(a.Entries) > 0 {
		entries := make([]feedEntry, 0, len(a.Entries))
		for _, e := range a.Entries {
			link := ""
			for _, l := range e.Links {
				if l.Rel == "" || l.Rel == "alternate" {
					link = l.Href
					break
				}
			}
			published := e.Published
			if published == "" {
				published = e.Updated
			}
			summary := e.Summary
			if summary == "" {
				summary = e.Content
			}
			entries = append(entries, feedEntry{
				Title:     strings.TrimSpace(e.Title),
				Link:      link,
				Summary:   summary,
				Published: parseFeedDate(published),
			})
		}
		return entries, nil
	}

	var rdf rdfFeed
	if err := xml.Unmarshal(body, &rdf); err == nil && len(rdf.Items) > 0 {
		return rssEntries(rdf.Items), nil
	}

	return nil, fmt.Errorf("unable to parse as RSS or Atom feed")
}

func rssEntries(items []rssItem) []feedEntry {
	entries := make([]feedEntry, 0, len(items))
	for _, item := range items {
		date := item.PubDate
		if date == "" {
			date = item.Date
		}
		entries = append(entries, feedEntry{
			Title:     strings.TrimSpace(item.Title),
			Link:      strings.TrimSpace(item.Link),
			Summary:   item.Description,
			Published: parseFeedDate(date),
		})
	}
	return entries
}

// feedDateFormats covers the date styles seen across RSS and Atom feeds.
var feedDateFormats = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseFeedDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, format := range feedDateFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// stripTags removes HTML markup from feed summaries.
func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(strings.Join(strings.Fields(b.String()), " "))
}

func lookbackDays(cfg *config.MarketConfig) int {
	if cfg.Scheduling.LookbackDays > 0 {
		return cfg.Scheduling.LookbackDays
	}
	return 7
}
