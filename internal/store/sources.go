package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"scout/internal/core"
	"scout/internal/logger"
)

// GetSource retrieves a source-cache entry by URL, or nil when absent.
func (s *Store) GetSource(url string) (*core.SourceRecord, error) {
	row := s.conn().QueryRow(sourceSelect+` WHERE url = ?`, url)
	rec, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// PutSource writes the full record, inserting or replacing. Cache policy
// (fetch counts, staleness, quality) lives in the sourcecache package; the
// store only persists.
func (s *Store) PutSource(rec core.SourceRecord) error {
	topicIDs, _ := json.Marshal(rec.TopicIDs)
	signals, _ := json.Marshal(rec.EEATSignals)
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT OR REPLACE INTO sources
			(url, domain, title, content_preview, first_fetched_at,
			 last_fetched_at, fetch_count, topic_ids, usage_count,
			 quality_score, eeat_signals, author, published_at, is_stale)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.URL, rec.Domain, rec.Title, rec.ContentPreview,
			rec.FirstFetchedAt, rec.LastFetchedAt, rec.FetchCount,
			string(topicIDs), rec.UsageCount, rec.QualityScore,
			string(signals), rec.Author, timeOrNil(rec.PublishedAt), rec.IsStale)
		return err
	})
}

// ListSources returns all cache entries, most recently fetched first.
// Corrupt rows are logged and skipped.
func (s *Store) ListSources(limit int) ([]core.SourceRecord, error) {
	query := sourceSelect + ` ORDER BY last_fetched_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var records []core.SourceRecord
	for rows.Next() {
		rec, err := scanSource(rows)
		if err != nil {
			logger.Warn("skipping corrupt source row", "error", err.Error())
			continue
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

const sourceSelect = `SELECT url, domain, title, content_preview,
	first_fetched_at, last_fetched_at, fetch_count, topic_ids, usage_count,
	quality_score, eeat_signals, author, published_at, is_stale FROM sources`

func scanSource(row rowScanner) (*core.SourceRecord, error) {
	var rec core.SourceRecord
	var topicIDs, signals string
	var publishedAt sql.NullTime

	err := row.Scan(&rec.URL, &rec.Domain, &rec.Title, &rec.ContentPreview,
		&rec.FirstFetchedAt, &rec.LastFetchedAt, &rec.FetchCount, &topicIDs,
		&rec.UsageCount, &rec.QualityScore, &signals, &rec.Author,
		&publishedAt, &rec.IsStale)
	if err != nil {
		return nil, err
	}
	if publishedAt.Valid {
		rec.PublishedAt = publishedAt.Time
	}
	if topicIDs != "" {
		if err := json.Unmarshal([]byte(topicIDs), &rec.TopicIDs); err != nil {
			return nil, fmt.Errorf("corrupt topic_ids for %s: %w", rec.URL, err)
		}
	}
	if signals != "" {
		if err := json.Unmarshal([]byte(signals), &rec.EEATSignals); err != nil {
			return nil, fmt.Errorf("corrupt eeat_signals for %s: %w", rec.URL, err)
		}
	}
	return &rec, nil
}
