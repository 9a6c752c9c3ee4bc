package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"scout/internal/core"
)

// FeedCacheEntry holds conditional-GET state and health bookkeeping for one
// feed URL. Entries older than 30 days are treated as absent.
type FeedCacheEntry struct {
	FeedURL string
	ETag    string
	LastMod string
	Health  core.HealthRecord
}

// feedCacheTTL bounds how long conditional-GET validators are trusted.
const feedCacheTTL = 30 * 24 * time.Hour

// GetFeedCache returns the cache entry for a feed URL, or nil when absent
// or expired.
func (s *Store) GetFeedCache(feedURL string) (*FeedCacheEntry, error) {
	var e FeedCacheEntry
	var lastSuccess sql.NullTime
	var updatedAt time.Time
	err := s.conn().QueryRow(`SELECT feed_url, etag, last_modified,
		success_count, failure_count, consecutive_failures, last_success,
		last_error, updated_at FROM feed_cache WHERE feed_url = ?`, feedURL).
		Scan(&e.FeedURL, &e.ETag, &e.LastMod, &e.Health.SuccessCount,
			&e.Health.FailureCount, &e.Health.ConsecutiveFailures,
			&lastSuccess, &e.Health.LastError, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if time.Since(updatedAt) > feedCacheTTL {
		return nil, nil
	}
	if lastSuccess.Valid {
		e.Health.LastSuccess = lastSuccess.Time
	}
	return &e, nil
}

// PutFeedCache upserts the conditional-GET state and health counters for a
// feed URL.
func (s *Store) PutFeedCache(e FeedCacheEntry) error {
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT OR REPLACE INTO feed_cache
			(feed_url, etag, last_modified, success_count, failure_count,
			 consecutive_failures, last_success, last_error, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.FeedURL, e.ETag, e.LastMod, e.Health.SuccessCount,
			e.Health.FailureCount, e.Health.ConsecutiveFailures,
			timeOrNil(e.Health.LastSuccess), e.Health.LastError, time.Now().UTC())
		return err
	})
}

// autocompleteCacheTTL bounds suggestion reuse to 30 days.
const autocompleteCacheTTL = 30 * 24 * time.Hour

// GetAutocompleteCache returns cached suggestions for a query, or nil when
// absent or expired.
func (s *Store) GetAutocompleteCache(query string) ([]string, error) {
	var raw string
	var cachedAt time.Time
	err := s.conn().QueryRow(`SELECT suggestions, cached_at FROM autocomplete_cache
		WHERE query = ?`, query).Scan(&raw, &cachedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if time.Since(cachedAt) > autocompleteCacheTTL {
		return nil, nil
	}
	var suggestions []string
	if err := json.Unmarshal([]byte(raw), &suggestions); err != nil {
		return nil, nil // corrupt entry behaves as a miss
	}
	return suggestions, nil
}

// PutAutocompleteCache stores suggestions for a query.
func (s *Store) PutAutocompleteCache(query string, suggestions []string) error {
	raw, _ := json.Marshal(suggestions)
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT OR REPLACE INTO autocomplete_cache
			(query, suggestions, cached_at) VALUES (?, ?, ?)`,
			query, string(raw), time.Now().UTC())
		return err
	})
}
