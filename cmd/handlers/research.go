package handlers

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"scout/internal/core"
	"scout/internal/logger"
	"scout/internal/synthesize"
)

// NewResearchCmd creates the single-topic research command.
func NewResearchCmd() *cobra.Command {
	var withArticle bool

	researchCmd := &cobra.Command{
		Use:   "research <topic-id>",
		Short: "Research one stored topic across all configured backends",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := runResearch(cmd.Context(), args[0], withArticle); err != nil {
				logger.Error("Research failed", err)
				os.Exit(1)
			}
		},
	}
	researchCmd.Flags().BoolVar(&withArticle, "article", true, "synthesize a cited article")
	return researchCmd
}

func runResearch(ctx context.Context, topicID string, withArticle bool) error {
	s, err := openStack(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	topic, err := s.store.GetTopic(topicID)
	if err != nil {
		return err
	}
	if topic == nil {
		return fmt.Errorf("topic not found: %s", topicID)
	}

	orch := s.orchestrator()
	results, err := orch.Research(ctx, *topic)
	if err != nil {
		return err
	}
	ranked, err := s.reranker().Rerank(ctx, topic.Title, results)
	if err != nil {
		return err
	}

	report := core.ResearchReport{
		TopicID:      topic.ID,
		Query:        topic.Title,
		BackendStats: orch.GetBackendStatistics(),
		GeneratedAt:  time.Now().UTC(),
	}
	for _, src := range ranked {
		report.Citations = append(report.Citations, src.URL)
	}

	if withArticle {
		if synth := s.synthesizer(); synth != nil {
			crossTopic, err := synthesize.BuildCrossTopicContext(s.store, topic.ID)
			if err != nil {
				logger.Debug("cross-topic context unavailable", "topic", topic.ID, "error", err.Error())
			}
			result, err := synth.Synthesize(ctx, *topic, ranked, crossTopic)
			if err != nil {
				logger.Warn("synthesis failed, storing sources only", "topic", topic.ID, "error", err.Error())
			} else {
				report.ArticleMarkdown = result.Article
				report.Citations = result.Citations
				report.CostUSD = result.CostUSD
			}
		}
	}

	if err := s.store.SaveResearchReport(topic.ID, report); err != nil {
		return err
	}
	if report.ArticleMarkdown != "" {
		if err := s.store.SetTopicArticle(topic.ID, report.ArticleMarkdown); err != nil {
			return err
		}
	}

	fmt.Printf("Researched %q: %d sources", topic.Title, len(report.Citations))
	if report.ArticleMarkdown != "" {
		fmt.Printf(", article synthesized ($%.4f)", report.CostUSD)
	}
	fmt.Println()
	for name, stats := range report.BackendStats {
		fmt.Printf("  %-12s ok=%-5t returned=%-3d latency=%dms\n",
			name, stats.Succeeded, stats.Returned, stats.LatencyMS)
	}
	return nil
}
