package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"scout/internal/core"
	"scout/internal/logger"
)

// InsertDocument stores a new document. A canonical-URL conflict returns
// ErrDuplicateCanonicalURL, which callers treat as a drop signal, not a
// failure.
func (s *Store) InsertDocument(doc core.Document) error {
	entities, _ := json.Marshal(doc.Entities)
	keywords, _ := json.Marshal(doc.Keywords)

	err := s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO documents
			(id, source, source_url, canonical_url, title, content, summary,
			 language, domain, market, vertical, content_hash, published_at,
			 fetched_at, author, entities, keywords, reliability_score, paywall, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			doc.ID, doc.Source, doc.SourceURL, doc.CanonicalURL, doc.Title,
			doc.Content, doc.Summary, doc.Language, doc.Domain, doc.Market,
			doc.Vertical, doc.ContentHash, timeOrNil(doc.PublishedAt),
			doc.FetchedAt, doc.Author, string(entities), string(keywords),
			doc.ReliabilityScore, doc.Paywall, string(doc.Status))
		return err
	})
	if isUniqueViolation(err, "canonical_url") {
		return ErrDuplicateCanonicalURL
	}
	return err
}

// GetDocument retrieves one document by id, or nil when absent.
func (s *Store) GetDocument(id string) (*core.Document, error) {
	row := s.conn().QueryRow(documentSelect+` WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return doc, err
}

// GetDocumentsByLanguage returns documents in insertion order. limit <= 0
// means no limit. Corrupt rows are logged and skipped.
func (s *Store) GetDocumentsByLanguage(language string, limit int) ([]core.Document, error) {
	query := documentSelect + ` WHERE language = ? ORDER BY rowid`
	args := []any{language}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

// UpdateDocumentStatus moves a document through its lifecycle.
func (s *Store) UpdateDocumentStatus(id string, status core.DocumentStatus) error {
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE documents SET status = ? WHERE id = ?`, string(status), id)
		return err
	})
}

// EnrichDocument updates the enrichment fields (entities, keywords) only.
// Enrichment is the sole mutation documents receive after insert.
func (s *Store) EnrichDocument(id string, entities, keywords []string) error {
	e, _ := json.Marshal(entities)
	k, _ := json.Marshal(keywords)
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE documents SET entities = ?, keywords = ? WHERE id = ?`,
			string(e), string(k), id)
		return err
	})
}

// SearchDocuments runs a full-text query over title, content, and summary.
// Builds without the sqlite_fts5 tag fall back to a LIKE scan.
func (s *Store) SearchDocuments(query string, limit int) ([]core.Document, error) {
	if limit <= 0 {
		limit = 20
	}
	if !s.fts {
		return s.searchDocumentsLike(query, limit)
	}
	rows, err := s.conn().Query(documentSelect+`
		WHERE rowid IN (SELECT rowid FROM documents_fts WHERE documents_fts MATCH ? LIMIT ?)
		ORDER BY rowid`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("full-text search failed: %w", err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

// searchDocumentsLike is the degraded search path: FTS quoting and operators
// are stripped and terms match disjunctively.
func (s *Store) searchDocumentsLike(query string, limit int) ([]core.Document, error) {
	terms := likeTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	conds := make([]string, 0, len(terms))
	args := make([]any, 0, 3*len(terms)+1)
	for _, term := range terms {
		conds = append(conds, `(lower(title) LIKE ? OR lower(content) LIKE ? OR lower(summary) LIKE ?)`)
		pattern := "%" + term + "%"
		args = append(args, pattern, pattern, pattern)
	}
	args = append(args, limit)

	rows, err := s.conn().Query(documentSelect+` WHERE `+strings.Join(conds, " OR ")+
		` ORDER BY rowid LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("document search failed: %w", err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

// likeTerms tokenizes a free-text or FTS-shaped query for the LIKE path.
func likeTerms(query string) []string {
	var terms []string
	for _, field := range strings.Fields(query) {
		term := strings.ToLower(strings.Trim(field, `"`))
		switch term {
		case "", "or", "and", "not":
			continue
		}
		terms = append(terms, term)
	}
	return terms
}

func collectDocuments(rows *sql.Rows) ([]core.Document, error) {
	var docs []core.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			logger.Warn("skipping corrupt document row", "error", err.Error())
			continue
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

const documentSelect = `SELECT id, source, source_url, canonical_url, title,
	content, summary, language, domain, market, vertical, content_hash,
	published_at, fetched_at, author, entities, keywords, reliability_score,
	paywall, status FROM documents`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*core.Document, error) {
	var doc core.Document
	var publishedAt sql.NullTime
	var entities, keywords, status string

	err := row.Scan(&doc.ID, &doc.Source, &doc.SourceURL, &doc.CanonicalURL,
		&doc.Title, &doc.Content, &doc.Summary, &doc.Language, &doc.Domain,
		&doc.Market, &doc.Vertical, &doc.ContentHash, &publishedAt,
		&doc.FetchedAt, &doc.Author, &entities, &keywords,
		&doc.ReliabilityScore, &doc.Paywall, &status)
	if err != nil {
		return nil, err
	}
	if publishedAt.Valid {
		doc.PublishedAt = publishedAt.Time
	}
	doc.Status = core.DocumentStatus(status)
	if entities != "" {
		if err := json.Unmarshal([]byte(entities), &doc.Entities); err != nil {
			return nil, fmt.Errorf("corrupt entities column for %s: %w", doc.ID, err)
		}
	}
	if keywords != "" {
		if err := json.Unmarshal([]byte(keywords), &doc.Keywords); err != nil {
			return nil, fmt.Errorf("corrupt keywords column for %s: %w", doc.ID, err)
		}
	}
	return &doc, nil
}

func timeOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
