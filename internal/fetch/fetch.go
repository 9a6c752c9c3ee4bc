// Package fetch retrieves web pages and extracts their readable text.
// Collectors and the synthesizer share this extractor; every call runs
// under the caller's context deadline.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"scout/internal/dedup"
)

// userAgent identifies the crawler to origin servers.
const userAgent = "scout-research-agent/1.0 (+https://github.com/scout)"

// maxBodyBytes caps response reads; pages beyond this are truncated.
const maxBodyBytes = 4 << 20

// Page is the extraction result for one URL.
type Page struct {
	URL       string
	Title     string
	Text      string
	Author    string
	FetchedAt time.Time
}

// Fetcher wraps an http.Client configured for article fetching.
type Fetcher struct {
	client *http.Client
}

// New creates a fetcher with a 30 s client timeout. Callers narrow the
// deadline per request via context.
func New() *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Fetch retrieves the URL and extracts title, author, and main text.
// A non-2xx status or unparsable body is an error; graceful-degradation
// policy lives with the callers.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// The client follows redirects; an http request landing on https marks
	// the host for canonical https upgrades.
	if strings.HasPrefix(url, "http://") && resp.Request.URL.Scheme == "https" {
		dedup.ObserveSecureHost(resp.Request.URL.Hostname())
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body from %s: %w", url, err)
	}

	page := ExtractPage(string(body))
	page.URL = url
	page.FetchedAt = time.Now().UTC()
	return page, nil
}

// mainContentSelectors are tried in order; the first that yields text wins.
var mainContentSelectors = []string{
	"article", "main", ".main-content", ".entry-content", ".post-content",
	".post-body", ".article-body", "[role='main']", ".content", "#content",
}

var multiNewline = regexp.MustCompile(`\n{3,}`)

// ExtractPage parses HTML and pulls out the title, author, and readable
// body text, stripping navigation, ads, and other boilerplate.
func ExtractPage(html string) *Page {
	page := &Page{}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return page
	}

	page.Title = extractTitle(doc)
	page.Author = extractAuthor(doc)

	doc.Find("script, style, nav, footer, header, aside, form, iframe, noscript, .sidebar, #sidebar, .ad, .advertisement, .popup, .modal, .cookie-banner").Remove()

	var b strings.Builder
	appendBlocks := func(s *goquery.Selection) {
		s.Find("p, h1, h2, h3, h4, h5, h6, li, blockquote, pre").Each(func(_ int, item *goquery.Selection) {
			text := strings.TrimSpace(item.Text())
			if text == "" {
				return
			}
			b.WriteString(text)
			b.WriteString("\n\n")
		})
	}

	for _, selector := range mainContentSelectors {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			appendBlocks(s)
		})
		if b.Len() > 0 {
			break
		}
	}
	if b.Len() == 0 {
		appendBlocks(doc.Find("body"))
	}

	page.Text = strings.TrimSpace(multiNewline.ReplaceAllString(b.String(), "\n\n"))
	return page
}

func extractTitle(doc *goquery.Document) string {
	if title := strings.TrimSpace(doc.Find("head title").First().Text()); title != "" {
		return title
	}
	if og, ok := doc.Find("meta[property='og:title']").Attr("content"); ok && og != "" {
		return strings.TrimSpace(og)
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

func extractAuthor(doc *goquery.Document) string {
	if author, ok := doc.Find("meta[name='author']").Attr("content"); ok {
		return strings.TrimSpace(author)
	}
	if author, ok := doc.Find("meta[property='article:author']").Attr("content"); ok {
		return strings.TrimSpace(author)
	}
	return ""
}

// FeedLinks returns feed auto-discovery URLs declared in the page head.
func FeedLinks(html, baseURL string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	var links []string
	doc.Find("link[rel='alternate']").Each(func(_ int, s *goquery.Selection) {
		typ, _ := s.Attr("type")
		if typ != "application/rss+xml" && typ != "application/atom+xml" {
			return
		}
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return
		}
		links = append(links, resolveHref(baseURL, href))
	})
	return links
}

func resolveHref(base, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	base = strings.TrimSuffix(base, "/")
	if strings.HasPrefix(href, "/") {
		// Keep only scheme://host from the base.
		if idx := strings.Index(base, "://"); idx >= 0 {
			if slash := strings.Index(base[idx+3:], "/"); slash >= 0 {
				base = base[:idx+3+slash]
			}
		}
		return base + href
	}
	return base + "/" + href
}
