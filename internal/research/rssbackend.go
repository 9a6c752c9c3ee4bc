package research

import (
	"context"
	"strings"

	"scout/internal/core"
	"scout/internal/store"
)

// RSSBackend is the CURATED specialization: full-text search over the
// documents the RSS collectors already gathered, shaped as SearchResults.
// Free and local.
type RSSBackend struct {
	store *store.Store
}

// NewRSSBackend wires the curated backend over the document store.
func NewRSSBackend(st *store.Store) *RSSBackend {
	return &RSSBackend{store: st}
}

func (b *RSSBackend) Name() string            { return "rss" }
func (b *RSSBackend) Horizon() Horizon        { return HorizonCurated }
func (b *RSSBackend) CostPerQuery() float64   { return 0 }
func (b *RSSBackend) SupportsCitations() bool { return false }

func (b *RSSBackend) Search(ctx context.Context, query string, maxResults int) []core.SearchResult {
	docs, err := b.store.SearchDocuments(ftsQuery(query), maxResults)
	if err != nil {
		logBackendError(b.Name(), query, "store", err)
		return nil
	}

	results := make([]core.SearchResult, 0, len(docs))
	for _, doc := range docs {
		if !strings.HasPrefix(doc.Source, "rss_") && !strings.HasPrefix(doc.Source, "newsapi_") {
			continue
		}
		results = append(results, core.SearchResult{
			URL:         doc.CanonicalURL,
			Title:       doc.Title,
			Snippet:     snippetOf(doc),
			Content:     doc.Content,
			PublishedAt: doc.PublishedAt,
		})
	}
	return rankResults(b.Name(), results)
}

// ftsQuery turns free text into an OR query so partial matches still hit;
// FTS5 treats bare tokens conjunctively.
func ftsQuery(query string) string {
	fields := strings.Fields(query)
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		quoted = append(quoted, `"`+strings.ReplaceAll(f, `"`, "")+`"`)
	}
	return strings.Join(quoted, " OR ")
}

func snippetOf(doc core.Document) string {
	if doc.Summary != "" {
		return doc.Summary
	}
	if len(doc.Content) > 300 {
		return doc.Content[:300]
	}
	return doc.Content
}

func (b *RSSBackend) HealthCheck(context.Context) Health {
	if _, err := b.store.GetStats(); err != nil {
		return HealthFailed
	}
	return HealthOK
}
