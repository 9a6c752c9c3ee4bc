// Package core defines the shared data model for the topic research pipeline.
package core

import "time"

// DocumentStatus tracks a document through its lifecycle.
type DocumentStatus string

const (
	DocumentStatusNew       DocumentStatus = "new"
	DocumentStatusProcessed DocumentStatus = "processed"
	DocumentStatusRejected  DocumentStatus = "rejected"
)

// Document represents a single piece of content discovered by a collector.
// CanonicalURL is unique per store; ContentHash is deterministic over
// normalized content.
type Document struct {
	ID               string         `json:"id"`                // Unique identifier
	Source           string         `json:"source"`            // Collector tag, e.g. "rss_heise"
	SourceURL        string         `json:"source_url"`        // URL as discovered
	CanonicalURL     string         `json:"canonical_url"`     // Normalized URL, dedup key
	Title            string         `json:"title"`             // Document title
	Content          string         `json:"content"`           // Full extracted text
	Summary          string         `json:"summary"`           // Feed summary or excerpt
	Language         string         `json:"language"`          // ISO 639-1 code
	Domain           string         `json:"domain"`            // Vertical label from market config
	Market           string         `json:"market"`            // Geographic market
	Vertical         string         `json:"vertical"`          // Sub-vertical label
	ContentHash      string         `json:"content_hash"`      // SHA-256 over normalized content
	PublishedAt      time.Time      `json:"published_at"`      // Publication date (zero if unknown)
	FetchedAt        time.Time      `json:"fetched_at"`        // When the collector fetched it
	Author           string         `json:"author"`            // Author if available
	Entities         []string       `json:"entities"`          // Named entities from enrichment
	Keywords         []string       `json:"keywords"`          // Extracted keywords
	ReliabilityScore float64        `json:"reliability_score"` // Source reliability in [0,1]
	Paywall          bool           `json:"paywall"`           // Whether content sits behind a paywall
	Status           DocumentStatus `json:"status"`            // new | processed | rejected
}

// TopicSource identifies which discovery channel surfaced a topic.
type TopicSource string

const (
	TopicSourceRSS          TopicSource = "RSS"
	TopicSourceReddit       TopicSource = "REDDIT"
	TopicSourceTrends       TopicSource = "TRENDS"
	TopicSourceAutocomplete TopicSource = "AUTOCOMPLETE"
	TopicSourceCompetitor   TopicSource = "COMPETITOR"
	TopicSourceManual       TopicSource = "MANUAL"
)

// Topic represents a validated candidate content topic.
// All score fields live in [0,1]; Priority is an integer 1-10 derived from
// PriorityScore at the export boundary.
type Topic struct {
	ID               string             `json:"id"` // Slug
	Title            string             `json:"title"`
	Description      string             `json:"description"`
	ClusterLabel     string             `json:"cluster_label"`
	Source           TopicSource        `json:"source"`
	SourceURL        string             `json:"source_url"`
	Language         string             `json:"language"`
	Domain           string             `json:"domain"`
	Market           string             `json:"market"`
	DemandScore      float64            `json:"demand_score"`
	OpportunityScore float64            `json:"opportunity_score"`
	FitScore         float64            `json:"fit_score"`
	NoveltyScore     float64            `json:"novelty_score"`
	PriorityScore    float64            `json:"priority_score"`
	Priority         int                `json:"priority"` // 1-10
	Competitors      []string           `json:"competitors"`
	ContentGaps      []string           `json:"content_gaps"`
	Keywords         map[string]float64 `json:"keywords"`
	ResearchReport   string             `json:"research_report"` // Markdown article, empty until synthesized
	HeroImageURL     string             `json:"hero_image_url"`
	SupportingImages []string           `json:"supporting_images"`
	DiscoveredAt     time.Time          `json:"discovered_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
	PublishedAt      time.Time          `json:"published_at"` // Zero until exported
}

// TopicCluster groups related documents into one topic candidate.
// Clusters reference documents by id only; documents do not own clusters.
type TopicCluster struct {
	ClusterID           string    `json:"cluster_id"`
	Label               string    `json:"label"`                // Top discriminative tokens joined
	RepresentativeTitle string    `json:"representative_title"` // Title of highest-norm member
	DocumentIDs         []string  `json:"document_ids"`         // At least one
	CreatedAt           time.Time `json:"created_at"`
}

// SearchResult is the unified result shape returned by research backends.
type SearchResult struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Snippet     string    `json:"snippet"`
	Content     string    `json:"content,omitempty"`
	PublishedAt time.Time `json:"published_date,omitempty"`
	Backend     string    `json:"backend"` // tavily | searxng | gemini | rss | thenewsapi
	Score       float64   `json:"score,omitempty"`
	Domain      string    `json:"domain"`
	Rank        int       `json:"rank"` // Position within the backend's list
}

// SourceRecord is a source-intelligence cache entry, keyed by URL.
type SourceRecord struct {
	URL            string             `json:"url"`
	Domain         string             `json:"domain"`
	Title          string             `json:"title"`
	ContentPreview string             `json:"content_preview"` // First 500 chars
	FirstFetchedAt time.Time          `json:"first_fetched_at"`
	LastFetchedAt  time.Time          `json:"last_fetched_at"`
	FetchCount     int                `json:"fetch_count"`
	TopicIDs       []string           `json:"topic_ids"`
	UsageCount     int                `json:"usage_count"`
	QualityScore   float64            `json:"quality_score"` // E-E-A-T composite in [0,1]
	EEATSignals    map[string]float64 `json:"e_e_a_t_signals"`
	Author         string             `json:"author"`
	PublishedAt    time.Time          `json:"published_at"`
	IsStale        bool               `json:"is_stale"` // now - last_fetched_at > 7 days
}

// SERPResult is one position within a SERP snapshot.
type SERPResult struct {
	Position int    `json:"position"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
	Domain   string `json:"domain"`
}

// SERPSnapshot is an append-only record of a search-results page for a topic.
// The latest snapshot is the one with the maximum SearchedAt.
type SERPSnapshot struct {
	TopicID     string       `json:"topic_id"`
	SearchQuery string       `json:"search_query"`
	SearchedAt  time.Time    `json:"searched_at"`
	Results     []SERPResult `json:"results"`
}

// BackendRunStats captures per-backend outcome statistics for one research run.
type BackendRunStats struct {
	Requested int   `json:"requested"`
	Returned  int   `json:"returned"`
	LatencyMS int64 `json:"latency_ms"`
	Succeeded bool  `json:"succeeded"`
}

// ResearchReport is the persisted output of researching one topic.
// Citations maps 1-based [Source N] indices to URLs.
type ResearchReport struct {
	TopicID         string                     `json:"topic_id"`
	Query           string                     `json:"query"`
	ArticleMarkdown string                     `json:"article_markdown"`
	Citations       []string                   `json:"citations"`
	BackendStats    map[string]BackendRunStats `json:"backend_stats"`
	CostUSD         float64                    `json:"cost_usd"`
	GeneratedAt     time.Time                  `json:"generated_at"`
}

// HealthRecord tracks per-resource collector health (a feed URL, a
// subreddit). Resources with ConsecutiveFailures >= 5 are skipped until a
// backoff window elapses.
type HealthRecord struct {
	SuccessCount        int       `json:"success_count"`
	FailureCount        int       `json:"failure_count"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastSuccess         time.Time `json:"last_success"`
	LastError           string    `json:"last_error"`
}

// PriorityFromScore bridges the internal [0,1] priority score to the 1-10
// integer scale used at the export boundary.
func PriorityFromScore(score float64) int {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	p := int(score*10) + 1
	if p > 10 {
		p = 10
	}
	return p
}
