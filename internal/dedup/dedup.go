// Package dedup detects exact and near-duplicate documents. The first level
// matches canonical URLs and content hashes; the second level runs MinHash
// with LSH banding over shingled tokens to catch the same story republished
// under a different URL.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"scout/internal/core"
	"scout/internal/logger"
)

// SimilarityThreshold is the MinHash Jaccard estimate above which two
// documents are treated as near-duplicates.
const SimilarityThreshold = 0.7

// Deduplicator holds process-wide dedup state. Reads take the read lock;
// Add and Deduplicate take the write lock.
type Deduplicator struct {
	mu        sync.RWMutex
	urls      map[string]bool
	hashes    map[string]bool
	index     *lshIndex
	threshold float64
}

// New creates a deduplicator with the default similarity threshold.
func New() *Deduplicator {
	return NewWithThreshold(SimilarityThreshold)
}

// NewWithThreshold creates a deduplicator with a custom near-duplicate
// threshold; the orchestrator uses a stricter 0.85 for merged search results.
func NewWithThreshold(threshold float64) *Deduplicator {
	return &Deduplicator{
		urls:      make(map[string]bool),
		hashes:    make(map[string]bool),
		index:     newLSHIndex(),
		threshold: threshold,
	}
}

// ContentHash returns the deterministic SHA-256 hash of whitespace-collapsed,
// case-folded content.
func ContentHash(content string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(content)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// GetCanonicalURL is the canonicalization entry point exposed to collectors.
func GetCanonicalURL(raw string) string {
	return CanonicalURL(raw)
}

// IsDuplicate reports whether the document matches a known canonical URL or
// content hash, or has a MinHash neighbor at or above the threshold.
func (d *Deduplicator) IsDuplicate(doc core.Document) bool {
	canonical := doc.CanonicalURL
	if canonical == "" {
		canonical = CanonicalURL(doc.SourceURL)
	}
	hash := doc.ContentHash
	if hash == "" {
		hash = ContentHash(doc.Title + " " + doc.Content)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.urls[canonical] || d.hashes[hash] {
		return true
	}
	_, sim := d.index.query(MinHash(doc.Title + " " + doc.Content))
	return sim >= d.threshold
}

// Add registers the document's canonical URL, content hash, and MinHash
// signature.
func (d *Deduplicator) Add(doc core.Document) {
	canonical := doc.CanonicalURL
	if canonical == "" {
		canonical = CanonicalURL(doc.SourceURL)
	}
	hash := doc.ContentHash
	if hash == "" {
		hash = ContentHash(doc.Title + " " + doc.Content)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls[canonical] = true
	d.hashes[hash] = true
	d.index.add(doc.ID, MinHash(doc.Title+" "+doc.Content))
}

// Deduplicate filters a batch, returning only the first occurrence of each
// document by canonical URL, content hash, and near-duplicate similarity.
// The surviving documents are registered. Per-batch dup rate is logged.
func (d *Deduplicator) Deduplicate(docs []core.Document) []core.Document {
	kept := make([]core.Document, 0, len(docs))
	for _, doc := range docs {
		if d.IsDuplicate(doc) {
			continue
		}
		d.Add(doc)
		kept = append(kept, doc)
	}

	if len(docs) > 0 {
		dropped := len(docs) - len(kept)
		logger.Info("deduplicated batch",
			"total", len(docs),
			"kept", len(kept),
			"dropped", dropped,
			"dup_rate", float64(dropped)/float64(len(docs)),
		)
	}
	return kept
}

// DeduplicateResults filters merged search results by title+snippet
// similarity, keeping the first occurrence. Used by the research
// orchestrator after rank fusion.
func DeduplicateResults(results []core.SearchResult, threshold float64) []core.SearchResult {
	var sigs []Signature
	kept := make([]core.SearchResult, 0, len(results))

	for _, r := range results {
		sig := MinHash(r.Title + " " + r.Snippet)
		dup := false
		for _, prev := range sigs {
			if sig.Similarity(prev) >= threshold {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		sigs = append(sigs, sig)
		kept = append(kept, r)
	}
	return kept
}
