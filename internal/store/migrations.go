package store

import (
	"database/sql"
	"fmt"

	"scout/internal/logger"
)

// migration is one forward-only schema step. Applied versions are tracked in
// schema_migrations and never re-run.
type migration struct {
	version int
	stmts   []string
	// needsFTS5 marks steps that require the fts5 module, which
	// mattn/go-sqlite3 compiles in only under the sqlite_fts5 build tag.
	needsFTS5 bool
}

var migrations = []migration{
	{
		version: 1,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS documents (
				id TEXT PRIMARY KEY,
				source TEXT NOT NULL,
				source_url TEXT NOT NULL,
				canonical_url TEXT NOT NULL UNIQUE,
				title TEXT,
				content TEXT,
				summary TEXT,
				language TEXT,
				domain TEXT,
				market TEXT,
				vertical TEXT,
				content_hash TEXT NOT NULL,
				published_at DATETIME,
				fetched_at DATETIME,
				author TEXT,
				entities TEXT,
				keywords TEXT,
				reliability_score REAL DEFAULT 0,
				paywall INTEGER DEFAULT 0,
				status TEXT DEFAULT 'new'
			)`,
			`CREATE INDEX IF NOT EXISTS idx_documents_language ON documents(language)`,
			`CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(content_hash)`,
			`CREATE TABLE IF NOT EXISTS topics (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				description TEXT,
				cluster_label TEXT,
				source TEXT,
				source_url TEXT,
				language TEXT,
				domain TEXT,
				market TEXT,
				demand_score REAL DEFAULT 0,
				opportunity_score REAL DEFAULT 0,
				fit_score REAL DEFAULT 0,
				novelty_score REAL DEFAULT 0,
				priority_score REAL DEFAULT 0,
				priority INTEGER DEFAULT 1,
				competitors TEXT,
				content_gaps TEXT,
				keywords TEXT,
				research_report TEXT,
				hero_image_url TEXT,
				supporting_images TEXT,
				discovered_at DATETIME,
				updated_at DATETIME,
				published_at DATETIME
			)`,
			`CREATE TABLE IF NOT EXISTS clusters (
				cluster_id TEXT PRIMARY KEY,
				label TEXT,
				representative_title TEXT,
				document_ids TEXT NOT NULL,
				created_at DATETIME
			)`,
			`CREATE TABLE IF NOT EXISTS sources (
				url TEXT PRIMARY KEY,
				domain TEXT,
				title TEXT,
				content_preview TEXT,
				first_fetched_at DATETIME,
				last_fetched_at DATETIME,
				fetch_count INTEGER DEFAULT 0,
				topic_ids TEXT,
				usage_count INTEGER DEFAULT 0,
				quality_score REAL DEFAULT 0,
				eeat_signals TEXT,
				author TEXT,
				published_at DATETIME,
				is_stale INTEGER DEFAULT 0
			)`,
			`CREATE TABLE IF NOT EXISTS serp_results (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				topic_id TEXT NOT NULL,
				search_query TEXT,
				searched_at DATETIME,
				position INTEGER,
				url TEXT,
				title TEXT,
				snippet TEXT,
				domain TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_serp_topic ON serp_results(topic_id, searched_at)`,
			`CREATE TABLE IF NOT EXISTS research_reports (
				topic_id TEXT PRIMARY KEY,
				query TEXT,
				article_markdown TEXT,
				citations TEXT,
				backend_stats TEXT,
				cost_usd REAL DEFAULT 0,
				generated_at DATETIME
			)`,
			`CREATE TABLE IF NOT EXISTS dead_letter_queue (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				task_name TEXT NOT NULL,
				error TEXT,
				created_at DATETIME
			)`,
		},
	},
	{
		version:   2,
		needsFTS5: true,
		stmts: []string{
			`CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
				title, content, summary,
				content='documents', content_rowid='rowid'
			)`,
			`CREATE TRIGGER IF NOT EXISTS documents_fts_insert AFTER INSERT ON documents BEGIN
				INSERT INTO documents_fts(rowid, title, content, summary)
				VALUES (new.rowid, new.title, new.content, new.summary);
			END`,
			`CREATE TRIGGER IF NOT EXISTS documents_fts_delete AFTER DELETE ON documents BEGIN
				INSERT INTO documents_fts(documents_fts, rowid, title, content, summary)
				VALUES ('delete', old.rowid, old.title, old.content, old.summary);
			END`,
		},
	},
	{
		version: 3,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS feed_cache (
				feed_url TEXT PRIMARY KEY,
				etag TEXT,
				last_modified TEXT,
				success_count INTEGER DEFAULT 0,
				failure_count INTEGER DEFAULT 0,
				consecutive_failures INTEGER DEFAULT 0,
				last_success DATETIME,
				last_error TEXT,
				updated_at DATETIME
			)`,
			`CREATE TABLE IF NOT EXISTS autocomplete_cache (
				query TEXT PRIMARY KEY,
				suggestions TEXT,
				cached_at DATETIME
			)`,
		},
	},
}

// migrate applies all pending migrations in order. The migration log is
// forward-only.
func (s *Store) migrate() error {
	if _, err := s.conn().Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("failed to create migration log: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := s.conn().Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("failed to read migration log: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	rows.Close()

	for _, m := range migrations {
		if applied[m.version] {
			if m.needsFTS5 && s.probeFTS5() {
				s.fts = true
			}
			continue
		}
		if m.needsFTS5 && !s.probeFTS5() {
			// Left unrecorded so a build with the tag applies it later.
			logger.Warn("sqlite built without fts5, document search degrades to LIKE",
				"version", m.version, "build_tag", "sqlite_fts5")
			continue
		}
		err := s.withTx(func(tx *sql.Tx) error {
			for _, stmt := range m.stmts {
				if _, err := tx.Exec(stmt); err != nil {
					return fmt.Errorf("migration %d failed: %w", m.version, err)
				}
			}
			_, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, m.version)
			return err
		})
		if err != nil {
			return err
		}
		if m.needsFTS5 {
			s.fts = true
		}
		logger.Debug("applied migration", "version", m.version)
	}
	return nil
}

// probeFTS5 reports whether the linked SQLite has the fts5 module.
func (s *Store) probeFTS5() bool {
	if _, err := s.conn().Exec(`CREATE VIRTUAL TABLE temp.fts5_probe USING fts5(probe)`); err != nil {
		return false
	}
	_, _ = s.conn().Exec(`DROP TABLE temp.fts5_probe`)
	return true
}
