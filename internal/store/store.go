// Package store provides SQLite-backed persistence for documents, topics,
// clusters, research reports, sources, SERP snapshots, and the dead-letter
// queue. File-backed stores run in WAL mode with a single writer and
// concurrent readers; the in-memory variant shares one connection for the
// store's lifetime.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"scout/internal/logger"
)

// ErrDuplicateCanonicalURL signals that a document's canonical URL already
// exists. Callers treat it as a success signal and drop the document.
var ErrDuplicateCanonicalURL = fmt.Errorf("duplicate canonical url")

// Store wraps the SQLite database. Writes are serialized through writeMu;
// reads run concurrently under WAL.
type Store struct {
	db      *sql.DB
	path    string
	memory  bool
	fts     bool
	writeMu sync.Mutex
}

// NewStore opens (or creates) the database file under dataDir and applies
// pending migrations.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "scout.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// NewMemoryStore opens an in-memory database for tests. The single shared
// connection stays alive for the store's lifetime; without this cap every
// new pool connection would see an empty schema.
func NewMemoryStore() (*Store, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, memory: true}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate in-memory database: %w", err)
	}
	return s, nil
}

// conn yields the handle used for queries: the shared connection under
// :memory:, the pooled handle otherwise.
func (s *Store) conn() *sql.DB {
	return s.db
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure on
// the given column.
func isUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, column)
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on error. All writes go through here.
func (s *Store) withTx(fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("rollback failed", rbErr)
		}
		return err
	}
	return tx.Commit()
}

// Stats summarizes row counts for the cache command.
type Stats struct {
	Documents  int
	Topics     int
	Clusters   int
	Sources    int
	Reports    int
	DeadLetter int
	FileSize   int64
}

// GetStats returns table counts and the database file size.
func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{}
	counts := map[string]*int{
		"SELECT COUNT(*) FROM documents":         &stats.Documents,
		"SELECT COUNT(*) FROM topics":            &stats.Topics,
		"SELECT COUNT(*) FROM clusters":          &stats.Clusters,
		"SELECT COUNT(*) FROM sources":           &stats.Sources,
		"SELECT COUNT(*) FROM research_reports":  &stats.Reports,
		"SELECT COUNT(*) FROM dead_letter_queue": &stats.DeadLetter,
	}
	for query, target := range counts {
		if err := s.conn().QueryRow(query).Scan(target); err != nil {
			return nil, fmt.Errorf("failed to count: %w", err)
		}
	}
	if s.path != "" {
		if info, err := os.Stat(s.path); err == nil {
			stats.FileSize = info.Size()
		}
	}
	return stats, nil
}

// Clear removes all rows from every table. Used by the cache clear command
// and by tests.
func (s *Store) Clear() error {
	tables := []string{
		"documents", "topics", "clusters", "sources",
		"serp_results", "research_reports", "dead_letter_queue",
		"feed_cache", "autocomplete_cache",
	}
	return s.withTx(func(tx *sql.Tx) error {
		for _, table := range tables {
			if _, err := tx.Exec("DELETE FROM " + table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		return nil
	})
}
