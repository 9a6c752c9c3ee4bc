package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"scout/internal/logger"
)

// NewRunCmd creates the full-pipeline command.
func NewRunCmd() *cobra.Command {
	var outDir string

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline: collect, cluster, validate, research, synthesize, export",
		Run: func(cmd *cobra.Command, args []string) {
			if err := runPipeline(cmd.Context(), outDir); err != nil {
				logger.Error("Pipeline run failed", err)
				os.Exit(1)
			}
		},
	}
	runCmd.Flags().StringVar(&outDir, "out", "", "markdown export directory (empty disables export)")
	return runCmd
}

func runPipeline(ctx context.Context, outDir string) error {
	s, err := openStack(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	s.discoverFeeds(ctx)
	runner, err := s.runner(outDir)
	if err != nil {
		return err
	}
	result, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Documents: %d collected, %d stored, %d duplicates\n",
		result.DocumentsCollected, result.DocumentsStored, result.Duplicates)
	fmt.Printf("Clusters: %d, topics validated: %d\n", result.Clusters, result.TopicsValidated)
	for id, status := range result.TopicStatuses {
		fmt.Printf("  %-40s %s\n", id, status)
	}
	if result.Exported != nil {
		fmt.Printf("Exported: %d created, %d updated, %d skipped, %d failed\n",
			result.Exported.Created, result.Exported.Updated,
			result.Exported.Skipped, result.Exported.Failed)
	}
	fmt.Printf("Cost: $%.4f, duration: %s\n", result.CostUSD, result.Duration.Round(1e8))
	return nil
}
