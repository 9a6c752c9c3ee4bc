package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"scout/internal/core"
)

// SaveResearchReport stores one report per topic, overwriting any previous
// report for the same topic.
func (s *Store) SaveResearchReport(topicID string, report core.ResearchReport) error {
	citations, _ := json.Marshal(report.Citations)
	stats, _ := json.Marshal(report.BackendStats)
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT OR REPLACE INTO research_reports
			(topic_id, query, article_markdown, citations, backend_stats, cost_usd, generated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			topicID, report.Query, report.ArticleMarkdown, string(citations),
			string(stats), report.CostUSD, report.GeneratedAt)
		return err
	})
}

// GetResearchReport retrieves the stored report for a topic, or nil.
func (s *Store) GetResearchReport(topicID string) (*core.ResearchReport, error) {
	var r core.ResearchReport
	var citations, stats string
	err := s.conn().QueryRow(`SELECT topic_id, query, article_markdown,
		citations, backend_stats, cost_usd, generated_at
		FROM research_reports WHERE topic_id = ?`, topicID).
		Scan(&r.TopicID, &r.Query, &r.ArticleMarkdown, &citations, &stats,
			&r.CostUSD, &r.GeneratedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if citations != "" {
		if err := json.Unmarshal([]byte(citations), &r.Citations); err != nil {
			return nil, fmt.Errorf("corrupt citations for topic %s: %w", topicID, err)
		}
	}
	if stats != "" {
		if err := json.Unmarshal([]byte(stats), &r.BackendStats); err != nil {
			return nil, fmt.Errorf("corrupt backend_stats for topic %s: %w", topicID, err)
		}
	}
	return &r, nil
}

// RelatedTopic pairs a topic with its title similarity to the query topic.
type RelatedTopic struct {
	Topic      core.Topic
	Similarity float64
}

// FindRelatedTopics returns topics that already have a stored report, ranked
// by Jaccard similarity over tokenized, stop-word-filtered titles. Stop
// lists cover English and German.
func (s *Store) FindRelatedTopics(topicID string, limit int, minSim float64) ([]RelatedTopic, error) {
	if limit <= 0 {
		limit = 5
	}

	base, err := s.GetTopic(topicID)
	if err != nil {
		return nil, err
	}
	if base == nil {
		return nil, fmt.Errorf("topic not found: %s", topicID)
	}
	baseTokens := titleTokenSet(base.Title, base.Language)
	if len(baseTokens) == 0 {
		return nil, nil
	}

	rows, err := s.conn().Query(topicSelect + ` WHERE id IN
		(SELECT topic_id FROM research_reports)`)
	if err != nil {
		return nil, fmt.Errorf("failed to query reported topics: %w", err)
	}
	defer rows.Close()

	var related []RelatedTopic
	for rows.Next() {
		topic, err := scanTopic(rows)
		if err != nil {
			continue
		}
		if topic.ID == topicID {
			continue
		}
		sim := jaccard(baseTokens, titleTokenSet(topic.Title, topic.Language))
		if sim >= minSim {
			related = append(related, RelatedTopic{Topic: *topic, Similarity: sim})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(related, func(i, j int) bool {
		if related[i].Similarity != related[j].Similarity {
			return related[i].Similarity > related[j].Similarity
		}
		return related[i].Topic.ID < related[j].Topic.ID
	})
	if len(related) > limit {
		related = related[:limit]
	}
	return related, nil
}

// jaccard computes set Jaccard similarity.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if b[tok] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// titleTokenSet tokenizes a title and removes stop words for the given
// language. Unknown languages fall back to the English list.
func titleTokenSet(title, language string) map[string]bool {
	stops := stopWords(language)
	set := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !(r == '-' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r >= 0x80)
	}) {
		if len(tok) < 2 || stops[tok] {
			continue
		}
		set[tok] = true
	}
	return set
}

var englishStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "have": true, "has": true,
	"had": true, "do": true, "does": true, "did": true, "will": true,
	"would": true, "could": true, "should": true, "how": true, "what": true,
	"why": true, "when": true, "where": true, "who": true, "your": true,
	"you": true, "it": true, "its": true, "this": true, "that": true,
	"from": true, "as": true, "not": true, "best": true, "guide": true,
}

var germanStopWords = map[string]bool{
	"der": true, "die": true, "das": true, "ein": true, "eine": true,
	"einer": true, "eines": true, "einem": true, "einen": true, "und": true,
	"oder": true, "aber": true, "in": true, "im": true, "an": true,
	"am": true, "auf": true, "zu": true, "zum": true, "zur": true,
	"für": true, "fuer": true, "von": true, "vom": true, "mit": true,
	"bei": true, "ist": true, "sind": true, "war": true, "waren": true,
	"sein": true, "haben": true, "hat": true, "hatte": true, "wird": true,
	"werden": true, "wurde": true, "kann": true, "können": true,
	"soll": true, "wie": true, "was": true, "warum": true, "wann": true,
	"wo": true, "wer": true, "ihr": true, "ihre": true, "es": true,
	"dies": true, "diese": true, "dieser": true, "dieses": true,
	"nicht": true, "als": true, "auch": true, "beste": true, "besten": true,
}

func stopWords(language string) map[string]bool {
	switch strings.ToLower(language) {
	case "de":
		return germanStopWords
	default:
		return englishStopWords
	}
}
