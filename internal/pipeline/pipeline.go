// Package pipeline wires the full run: collect, dedup, cluster, validate,
// research, synthesize, export.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"scout/internal/cluster"
	"scout/internal/collect"
	"scout/internal/config"
	"scout/internal/core"
	"scout/internal/cost"
	"scout/internal/dedup"
	"scout/internal/export"
	"scout/internal/logger"
	"scout/internal/rerank"
	"scout/internal/store"
	"scout/internal/synthesize"
	"scout/internal/validate"
)

// Topic processing statuses.
const (
	StatusOK              = "ok"
	StatusResearched      = "researched"
	StatusResearchFailed  = "research_failed"
	StatusSynthesisFailed = "synthesis_failed"
)

// Validation defaults.
const (
	validationThreshold = 0.6
	validationTopN      = 20
)

// defaultRetryBackoff is the periodic-task retry ladder.
var defaultRetryBackoff = []time.Duration{60 * time.Second, 120 * time.Second, 240 * time.Second}

// Researcher runs the multi-backend fan-out for one topic.
type Researcher interface {
	Research(ctx context.Context, topic core.Topic) ([]core.SearchResult, error)
}

// BackendReporter exposes per-backend statistics for the last research run.
// Researchers that implement it get their stats persisted on each report.
type BackendReporter interface {
	GetBackendStatistics() map[string]core.BackendRunStats
}

// Reranker narrows research results to the final source pool.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []core.SearchResult) ([]rerank.RankedResult, error)
}

// Synthesizer writes the cited article.
type Synthesizer interface {
	Synthesize(ctx context.Context, topic core.Topic, sources []rerank.RankedResult, crossTopic *synthesize.CrossTopicContext) (*synthesize.Result, error)
}

// Exporter pushes finished topics to the external sink.
type Exporter interface {
	ExportBatch(ctx context.Context, topics []core.Topic, skipErrors bool) (*export.BatchResult, error)
}

// RunResult aggregates one pipeline run.
type RunResult struct {
	DocumentsCollected int
	DocumentsStored    int
	Duplicates         int
	Clusters           int
	TopicsValidated    int
	TopicStatuses      map[string]string
	Exported           *export.BatchResult
	CostUSD            float64
	Duration           time.Duration
}

// Runner owns one pipeline run. Synthesizer and exporter may be nil; the
// corresponding stages are skipped.
type Runner struct {
	cfg          *config.MarketConfig
	store        *store.Store
	collectors   []collect.Collector
	clusterer    *cluster.Clusterer
	researcher   Researcher
	reranker     Reranker
	synthesizer  Synthesizer
	exporter     Exporter
	tracker      *cost.Tracker
	retryBackoff []time.Duration
}

// NewRunner wires a runner.
func NewRunner(cfg *config.MarketConfig, st *store.Store, collectors []collect.Collector,
	researcher Researcher, reranker Reranker, synthesizer Synthesizer, exporter Exporter) *Runner {
	return &Runner{
		cfg:          cfg,
		store:        st,
		collectors:   collectors,
		clusterer:    cluster.New(),
		researcher:   researcher,
		reranker:     reranker,
		synthesizer:  synthesizer,
		exporter:     exporter,
		tracker:      cost.NewTracker(),
		retryBackoff: defaultRetryBackoff,
	}
}

// Run executes the full pipeline.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	started := time.Now()
	result := &RunResult{TopicStatuses: make(map[string]string)}

	docs := r.collectAll(ctx)
	result.DocumentsCollected = len(docs)

	stored, dupes := r.storeDocuments(docs)
	result.DocumentsStored = stored
	result.Duplicates = dupes

	clusters, byID, err := r.clusterDocuments()
	if err != nil {
		return result, err
	}
	result.Clusters = len(clusters)

	topics, err := r.validateClusters(clusters, byID)
	if err != nil {
		return result, err
	}
	result.TopicsValidated = len(topics)

	for _, topic := range topics {
		select {
		case <-ctx.Done():
			result.Duration = time.Since(started)
			return result, ctx.Err()
		default:
		}
		result.TopicStatuses[topic.ID] = r.processTopic(ctx, topic)
	}

	if r.exporter != nil {
		batch, err := r.exportTopics(ctx)
		if err != nil {
			logger.Error("export stage failed", err)
		}
		result.Exported = batch
	}

	result.CostUSD = r.tracker.Total()
	result.Duration = time.Since(started)
	logger.Info("pipeline run finished",
		"documents", result.DocumentsCollected,
		"duplicates", result.Duplicates,
		"clusters", result.Clusters,
		"topics", result.TopicsValidated,
		"cost_usd", result.CostUSD,
		"duration_ms", result.Duration.Milliseconds())
	return result, nil
}

// collectAll fans collectors out in parallel and concatenates their
// documents in collector order.
func (r *Runner) collectAll(ctx context.Context) []core.Document {
	perCollector := make([][]core.Document, len(r.collectors))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range r.collectors {
		i, c := i, c
		g.Go(func() error {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("collector panicked", fmt.Errorf("%v", rec), "collector", c.Name())
				}
			}()
			perCollector[i] = c.Collect(gctx, r.cfg)
			return nil
		})
	}
	_ = g.Wait()

	var docs []core.Document
	for _, batch := range perCollector {
		docs = append(docs, batch...)
	}
	return docs
}

// storeDocuments inserts in-batch-deduplicated documents; canonical-URL
// conflicts with prior runs count as duplicates, not errors.
func (r *Runner) storeDocuments(docs []core.Document) (stored, dupes int) {
	before := len(docs)
	docs = dedup.New().Deduplicate(docs)
	dupes = before - len(docs)

	for _, doc := range docs {
		err := r.store.InsertDocument(doc)
		switch {
		case errors.Is(err, store.ErrDuplicateCanonicalURL):
			dupes++
		case err != nil:
			logger.Warn("document insert failed", "id", doc.ID, "error", err.Error())
		default:
			stored++
		}
	}
	return stored, dupes
}

func (r *Runner) clusterDocuments() ([]core.TopicCluster, map[string]core.Document, error) {
	docs, err := r.store.GetDocumentsByLanguage(r.cfg.Language, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load documents for clustering: %w", err)
	}
	byID := make(map[string]core.Document, len(docs))
	for _, doc := range docs {
		byID[doc.ID] = doc
	}

	clusters := r.clusterer.Cluster(docs, r.cfg.SeedKeywords)
	for _, c := range clusters {
		if err := r.store.SaveCluster(c); err != nil {
			logger.Warn("cluster save failed", "cluster", c.ClusterID, "error", err.Error())
		}
	}
	return clusters, byID, nil
}

// validateClusters scores candidates and persists the survivors.
func (r *Runner) validateClusters(clusters []core.TopicCluster, byID map[string]core.Document) ([]core.Topic, error) {
	existing, err := r.store.ListTopics(0)
	if err != nil {
		return nil, fmt.Errorf("failed to list existing topics: %w", err)
	}
	titles := make([]string, 0, len(existing))
	for _, t := range existing {
		titles = append(titles, t.Title)
	}

	validator, err := validate.New(r.cfg.SeedKeywords, titles)
	if err != nil {
		return nil, err
	}

	candidates := make([]validate.Candidate, 0, len(clusters))
	for _, c := range clusters {
		cand := validate.Candidate{Cluster: c}
		for _, id := range c.DocumentIDs {
			if doc, ok := byID[id]; ok {
				cand.Documents = append(cand.Documents, doc)
			}
		}
		if len(cand.Documents) > 0 {
			candidates = append(candidates, cand)
		}
	}

	scored := validator.FilterTopics(candidates, validationThreshold, validationTopN)
	topics := make([]core.Topic, 0, len(scored))
	for _, s := range scored {
		topic := s.Topic
		topic.Market = r.cfg.Market
		topic.Domain = r.cfg.Domain
		topic.Language = r.cfg.Language
		if err := r.store.UpsertTopic(topic); err != nil {
			logger.Warn("topic upsert failed", "topic", topic.ID, "error", err.Error())
			continue
		}
		topics = append(topics, topic)
	}
	return topics, nil
}

// processTopic runs research, rerank, and synthesis for one topic and
// persists the report. Failures degrade stepwise rather than aborting
// the run.
func (r *Runner) processTopic(ctx context.Context, topic core.Topic) string {
	results, err := r.researcher.Research(ctx, topic)
	if err != nil {
		logger.Warn("research failed", "topic", topic.ID, "error", err.Error())
		_ = r.store.InsertDeadLetter("research:"+topic.ID, err.Error())
		return StatusResearchFailed
	}

	ranked := rankedFrom(results)
	if r.reranker != nil {
		ranked, err = r.reranker.Rerank(ctx, topic.Title, results)
		if err != nil {
			logger.Warn("rerank failed, keeping fused order", "topic", topic.ID, "error", err.Error())
			ranked = rankedFrom(results)
		}
	}

	report := core.ResearchReport{
		TopicID:     topic.ID,
		Query:       topic.Title,
		GeneratedAt: time.Now().UTC(),
	}
	if reporter, ok := r.researcher.(BackendReporter); ok {
		report.BackendStats = reporter.GetBackendStatistics()
	}
	for _, src := range ranked {
		report.Citations = append(report.Citations, src.URL)
	}

	if r.synthesizer == nil {
		if err := r.store.SaveResearchReport(topic.ID, report); err != nil {
			logger.Warn("report save failed", "topic", topic.ID, "error", err.Error())
		}
		return StatusResearched
	}

	crossTopic, err := synthesize.BuildCrossTopicContext(r.store, topic.ID)
	if err != nil {
		logger.Debug("cross-topic context unavailable", "topic", topic.ID, "error", err.Error())
	}

	synth, err := r.synthesizer.Synthesize(ctx, topic, ranked, crossTopic)
	if err != nil {
		// The reranker output is still worth keeping.
		logger.Warn("synthesis failed, storing report without article", "topic", topic.ID, "error", err.Error())
		if err := r.store.SaveResearchReport(topic.ID, report); err != nil {
			logger.Warn("report save failed", "topic", topic.ID, "error", err.Error())
		}
		return StatusSynthesisFailed
	}

	report.ArticleMarkdown = synth.Article
	report.Citations = synth.Citations
	report.CostUSD = synth.CostUSD
	r.tracker.Add("synthesis", synth.CostUSD)

	if err := r.store.SaveResearchReport(topic.ID, report); err != nil {
		logger.Warn("report save failed", "topic", topic.ID, "error", err.Error())
	}
	if err := r.store.SetTopicArticle(topic.ID, synth.Article); err != nil {
		logger.Warn("article save failed", "topic", topic.ID, "error", err.Error())
	}
	return StatusOK
}

// exportTopics pushes every stored topic through the sink with retries.
func (r *Runner) exportTopics(ctx context.Context) (*export.BatchResult, error) {
	topics, err := r.store.ListTopics(0)
	if err != nil {
		return nil, err
	}
	var batch *export.BatchResult
	err = r.retryTask(ctx, "export", func() error {
		var err error
		batch, err = r.exporter.ExportBatch(ctx, topics, true)
		return err
	})
	return batch, err
}

// retryTask retries a periodic task with the backoff ladder; final
// failure lands in the dead-letter queue.
func (r *Runner) retryTask(ctx context.Context, name string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= len(r.retryBackoff); attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(r.retryBackoff[attempt-1]):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		logger.Warn("task attempt failed", "task", name, "attempt", attempt+1, "error", lastErr.Error())
	}
	if err := r.store.InsertDeadLetter(name, lastErr.Error()); err != nil {
		logger.Error("dead letter insert failed", err, "task", name)
	}
	return lastErr
}

// rankedFrom wraps raw fused results when no reranker is configured.
func rankedFrom(results []core.SearchResult) []rerank.RankedResult {
	ranked := make([]rerank.RankedResult, len(results))
	for i, res := range results {
		ranked[i] = rerank.RankedResult{SearchResult: res, FinalScore: res.Score}
	}
	return ranked
}
