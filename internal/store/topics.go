package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"scout/internal/core"
	"scout/internal/logger"
)

// UpsertTopic creates the topic when its id is new; otherwise it overwrites
// the scored fields only, leaving enrichment and lifecycle columns intact.
func (s *Store) UpsertTopic(topic core.Topic) error {
	return s.withTx(func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRow(`SELECT COUNT(*) FROM topics WHERE id = ?`, topic.ID).Scan(&exists)
		if err != nil {
			return err
		}

		if exists > 0 {
			_, err = tx.Exec(`UPDATE topics SET
				demand_score = ?, opportunity_score = ?, fit_score = ?,
				novelty_score = ?, priority_score = ?, priority = ?, updated_at = ?
				WHERE id = ?`,
				topic.DemandScore, topic.OpportunityScore, topic.FitScore,
				topic.NoveltyScore, topic.PriorityScore, topic.Priority,
				time.Now().UTC(), topic.ID)
			return err
		}

		competitors, _ := json.Marshal(topic.Competitors)
		gaps, _ := json.Marshal(topic.ContentGaps)
		keywords, _ := json.Marshal(topic.Keywords)
		images, _ := json.Marshal(topic.SupportingImages)

		_, err = tx.Exec(`INSERT INTO topics
			(id, title, description, cluster_label, source, source_url, language,
			 domain, market, demand_score, opportunity_score, fit_score,
			 novelty_score, priority_score, priority, competitors, content_gaps,
			 keywords, research_report, hero_image_url, supporting_images,
			 discovered_at, updated_at, published_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			topic.ID, topic.Title, topic.Description, topic.ClusterLabel,
			string(topic.Source), topic.SourceURL, topic.Language, topic.Domain,
			topic.Market, topic.DemandScore, topic.OpportunityScore,
			topic.FitScore, topic.NoveltyScore, topic.PriorityScore,
			topic.Priority, string(competitors), string(gaps), string(keywords),
			topic.ResearchReport, topic.HeroImageURL, string(images),
			topic.DiscoveredAt, time.Now().UTC(), timeOrNil(topic.PublishedAt))
		return err
	})
}

// GetTopic retrieves one topic by id, or nil when absent.
func (s *Store) GetTopic(id string) (*core.Topic, error) {
	row := s.conn().QueryRow(topicSelect+` WHERE id = ?`, id)
	topic, err := scanTopic(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return topic, err
}

// ListTopics returns topics ordered by priority score descending.
func (s *Store) ListTopics(limit int) ([]core.Topic, error) {
	query := topicSelect + ` ORDER BY priority_score DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	defer rows.Close()

	var topics []core.Topic
	for rows.Next() {
		topic, err := scanTopic(rows)
		if err != nil {
			logger.Warn("skipping corrupt topic row", "error", err.Error())
			continue
		}
		topics = append(topics, *topic)
	}
	return topics, rows.Err()
}

// MarkTopicPublished records the terminal lifecycle state after export.
func (s *Store) MarkTopicPublished(id string) error {
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE topics SET published_at = ?, updated_at = ? WHERE id = ?`,
			time.Now().UTC(), time.Now().UTC(), id)
		return err
	})
}

// SetTopicArticle stores the synthesized article markdown on the topic row.
func (s *Store) SetTopicArticle(id, markdown string) error {
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE topics SET research_report = ?, updated_at = ? WHERE id = ?`,
			markdown, time.Now().UTC(), id)
		return err
	})
}

// SaveCluster persists a topic cluster. Cluster document ids must reference
// stored documents; the pipeline guarantees this ordering.
func (s *Store) SaveCluster(cluster core.TopicCluster) error {
	ids, _ := json.Marshal(cluster.DocumentIDs)
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT OR REPLACE INTO clusters
			(cluster_id, label, representative_title, document_ids, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			cluster.ClusterID, cluster.Label, cluster.RepresentativeTitle,
			string(ids), cluster.CreatedAt)
		return err
	})
}

// GetCluster retrieves one cluster by id, or nil when absent.
func (s *Store) GetCluster(id string) (*core.TopicCluster, error) {
	var c core.TopicCluster
	var ids string
	err := s.conn().QueryRow(`SELECT cluster_id, label, representative_title,
		document_ids, created_at FROM clusters WHERE cluster_id = ?`, id).
		Scan(&c.ClusterID, &c.Label, &c.RepresentativeTitle, &ids, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ids), &c.DocumentIDs); err != nil {
		return nil, fmt.Errorf("corrupt document_ids for cluster %s: %w", id, err)
	}
	return &c, nil
}

const topicSelect = `SELECT id, title, description, cluster_label, source,
	source_url, language, domain, market, demand_score, opportunity_score,
	fit_score, novelty_score, priority_score, priority, competitors,
	content_gaps, keywords, research_report, hero_image_url,
	supporting_images, discovered_at, updated_at, published_at FROM topics`

func scanTopic(row rowScanner) (*core.Topic, error) {
	var t core.Topic
	var source, competitors, gaps, keywords, images string
	var publishedAt sql.NullTime

	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.ClusterLabel, &source,
		&t.SourceURL, &t.Language, &t.Domain, &t.Market, &t.DemandScore,
		&t.OpportunityScore, &t.FitScore, &t.NoveltyScore, &t.PriorityScore,
		&t.Priority, &competitors, &gaps, &keywords, &t.ResearchReport,
		&t.HeroImageURL, &images, &t.DiscoveredAt, &t.UpdatedAt, &publishedAt)
	if err != nil {
		return nil, err
	}
	t.Source = core.TopicSource(source)
	if publishedAt.Valid {
		t.PublishedAt = publishedAt.Time
	}
	jsonCols := []struct {
		raw  string
		dest any
	}{
		{competitors, &t.Competitors},
		{gaps, &t.ContentGaps},
		{keywords, &t.Keywords},
		{images, &t.SupportingImages},
	}
	for _, col := range jsonCols {
		if col.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(col.raw), col.dest); err != nil {
			return nil, fmt.Errorf("corrupt JSON column for topic %s: %w", t.ID, err)
		}
	}
	return &t, nil
}
