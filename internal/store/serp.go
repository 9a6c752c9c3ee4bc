package store

import (
	"database/sql"
	"fmt"
	"time"

	"scout/internal/core"
)

// SaveSERPResults appends one snapshot of search results for a topic.
// Snapshots are append-only; history is never rewritten.
func (s *Store) SaveSERPResults(topicID, query string, results []core.SERPResult) error {
	searchedAt := time.Now().UTC()
	return s.withTx(func(tx *sql.Tx) error {
		for _, r := range results {
			_, err := tx.Exec(`INSERT INTO serp_results
				(topic_id, search_query, searched_at, position, url, title, snippet, domain)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				topicID, query, searchedAt, r.Position, r.URL, r.Title, r.Snippet, r.Domain)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// GetLatestSERPSnapshot returns the most recent snapshot for a topic, or nil
// when none exists. Latest means the maximum searched_at.
func (s *Store) GetLatestSERPSnapshot(topicID string) (*core.SERPSnapshot, error) {
	var searchedAt time.Time
	var query string
	err := s.conn().QueryRow(`SELECT searched_at, search_query FROM serp_results
		WHERE topic_id = ? ORDER BY searched_at DESC LIMIT 1`, topicID).
		Scan(&searchedAt, &query)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.loadSnapshot(topicID, query, searchedAt)
}

// GetSERPHistory returns up to limit snapshots, newest first.
func (s *Store) GetSERPHistory(topicID string, limit int) ([]core.SERPSnapshot, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.conn().Query(`SELECT DISTINCT searched_at, search_query
		FROM serp_results WHERE topic_id = ?
		ORDER BY searched_at DESC LIMIT ?`, topicID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot history: %w", err)
	}
	defer rows.Close()

	type key struct {
		at    time.Time
		query string
	}
	var keys []key
	for rows.Next() {
		var k key
		if err := rows.Scan(&k.at, &k.query); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var snapshots []core.SERPSnapshot
	for _, k := range keys {
		snap, err := s.loadSnapshot(topicID, k.query, k.at)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *snap)
	}
	return snapshots, nil
}

func (s *Store) loadSnapshot(topicID, query string, searchedAt time.Time) (*core.SERPSnapshot, error) {
	rows, err := s.conn().Query(`SELECT position, url, title, snippet, domain
		FROM serp_results WHERE topic_id = ? AND searched_at = ?
		ORDER BY position`, topicID, searchedAt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snap := &core.SERPSnapshot{TopicID: topicID, SearchQuery: query, SearchedAt: searchedAt}
	for rows.Next() {
		var r core.SERPResult
		if err := rows.Scan(&r.Position, &r.URL, &r.Title, &r.Snippet, &r.Domain); err != nil {
			return nil, err
		}
		snap.Results = append(snap.Results, r)
	}
	return snap, rows.Err()
}
