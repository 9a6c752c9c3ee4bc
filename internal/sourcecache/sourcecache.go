// Package sourcecache maintains the source-intelligence cache: per-URL
// records with fetch history, topic usage, and an E-E-A-T-inspired
// quality score.
package sourcecache

import (
	"math"
	"net/url"
	"sort"
	"strings"
	"time"

	"scout/internal/authority"
	"scout/internal/core"
	"scout/internal/logger"
)

// Quality score weights and staleness window.
const (
	weightDomainAuthority = 0.4
	weightPublicationType = 0.3
	weightFreshness       = 0.2
	weightUsage           = 0.1

	staleAfter = 7 * 24 * time.Hour

	previewLen = 500
)

// Store is the persistence surface the cache needs.
type Store interface {
	GetSource(url string) (*core.SourceRecord, error)
	PutSource(rec core.SourceRecord) error
	ListSources(limit int) ([]core.SourceRecord, error)
}

// Cache implements the orchestrator's SourceCache contract on top of the
// store.
type Cache struct {
	store Store
	now   func() time.Time
}

// New wires the cache.
func New(store Store) *Cache {
	return &Cache{store: store, now: time.Now}
}

// Get returns the record for a URL, recomputing staleness against the
// current clock. The boolean reports presence, not freshness.
func (c *Cache) Get(rawURL string) (*core.SourceRecord, bool) {
	rec, err := c.store.GetSource(rawURL)
	if err != nil {
		logger.Debug("source cache read failed", "url", rawURL, "error", err.Error())
		return nil, false
	}
	if rec == nil {
		return nil, false
	}
	rec.IsStale = c.now().Sub(rec.LastFetchedAt) > staleAfter
	return rec, true
}

// Save upserts a source record. Existing records accumulate fetch counts
// and topic usage and get their quality score recomputed; new records
// start with first_fetched_at = last_fetched_at = now.
func (c *Cache) Save(rawURL, title, content, topicID string) error {
	now := c.now()
	rec, err := c.store.GetSource(rawURL)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &core.SourceRecord{
			URL:            rawURL,
			Domain:         domainOf(rawURL),
			FirstFetchedAt: now,
			FetchCount:     0,
		}
	}

	rec.FetchCount++
	rec.LastFetchedAt = now
	rec.IsStale = false
	if title != "" {
		rec.Title = title
	}
	if content != "" {
		rec.ContentPreview = preview(content)
	}
	if topicID != "" && !contains(rec.TopicIDs, topicID) {
		rec.TopicIDs = append(rec.TopicIDs, topicID)
		rec.UsageCount++
	}

	rec.EEATSignals = c.signals(rec, now)
	rec.QualityScore = weightDomainAuthority*rec.EEATSignals["domain_authority"] +
		weightPublicationType*rec.EEATSignals["publication_type"] +
		weightFreshness*rec.EEATSignals["freshness"] +
		weightUsage*rec.EEATSignals["usage_popularity"]

	return c.store.PutSource(*rec)
}

// signals computes the four E-E-A-T component scores.
func (c *Cache) signals(rec *core.SourceRecord, now time.Time) map[string]float64 {
	domain := rec.Domain
	path := pathOf(rec.URL)

	freshness := 0.5
	ref := rec.PublishedAt
	if ref.IsZero() {
		ref = rec.FirstFetchedAt
	}
	if !ref.IsZero() {
		ageDays := now.Sub(ref).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		freshness = math.Exp(-ageDays / 30)
	}

	usage := math.Log10(float64(rec.UsageCount)+1) / math.Log10(100)
	if usage > 1 {
		usage = 1
	}
	if usage < 0 {
		usage = 0
	}

	return map[string]float64{
		"domain_authority": authority.DomainScore(domain),
		"publication_type": authority.TypeScore(authority.DetectType(domain, path)),
		"freshness":        freshness,
		"usage_popularity": usage,
	}
}

// HitRateTarget is the multi-run cache effectiveness goal.
const HitRateTarget = 0.30

// TopSources returns the highest-quality known sources, for reporting.
func (c *Cache) TopSources(limit int) ([]core.SourceRecord, error) {
	records, err := c.store.ListSources(0)
	if err != nil {
		return nil, err
	}
	now := c.now()
	for i := range records {
		records[i].IsStale = now.Sub(records[i].LastFetchedAt) > staleAfter
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].QualityScore != records[j].QualityScore {
			return records[i].QualityScore > records[j].QualityScore
		}
		return records[i].URL < records[j].URL
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func preview(content string) string {
	if len(content) <= previewLen {
		return content
	}
	return content[:previewLen]
}

func contains(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func pathOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Path
}
