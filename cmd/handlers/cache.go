package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"scout/internal/logger"
)

// NewCacheCmd creates the cache management command.
func NewCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the document store and source cache",
	}
	cacheCmd.AddCommand(newCacheStatsCmd())
	cacheCmd.AddCommand(newCacheClearCmd())
	cacheCmd.AddCommand(newCacheSourcesCmd())
	return cacheCmd
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store statistics",
		Run: func(cmd *cobra.Command, args []string) {
			if err := runCacheStats(cmd.Context()); err != nil {
				logger.Error("Failed to get cache stats", err)
				os.Exit(1)
			}
		},
	}
}

func newCacheClearCmd() *cobra.Command {
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear all stored documents, topics, reports, and sources",
		Run: func(cmd *cobra.Command, args []string) {
			confirm, _ := cmd.Flags().GetBool("confirm")
			if err := runCacheClear(cmd.Context(), confirm); err != nil {
				logger.Error("Failed to clear cache", err)
				os.Exit(1)
			}
		},
	}
	clearCmd.Flags().Bool("confirm", false, "skip confirmation prompt")
	return clearCmd
}

func newCacheSourcesCmd() *cobra.Command {
	sourcesCmd := &cobra.Command{
		Use:   "sources",
		Short: "List the highest-quality known sources",
		Run: func(cmd *cobra.Command, args []string) {
			limit, _ := cmd.Flags().GetInt("limit")
			if err := runCacheSources(cmd.Context(), limit); err != nil {
				logger.Error("Failed to list sources", err)
				os.Exit(1)
			}
		},
	}
	sourcesCmd.Flags().Int("limit", 20, "maximum sources to show")
	return sourcesCmd
}

func runCacheStats(ctx context.Context) error {
	s, err := openStack(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	stats, err := s.store.GetStats()
	if err != nil {
		return err
	}
	fmt.Printf("Documents:    %d\n", stats.Documents)
	fmt.Printf("Topics:       %d\n", stats.Topics)
	fmt.Printf("Clusters:     %d\n", stats.Clusters)
	fmt.Printf("Sources:      %d\n", stats.Sources)
	fmt.Printf("Reports:      %d\n", stats.Reports)
	fmt.Printf("Dead letters: %d\n", stats.DeadLetter)
	if stats.FileSize > 0 {
		fmt.Printf("DB size:      %.1f MB\n", float64(stats.FileSize)/(1<<20))
	}
	return nil
}

func runCacheClear(ctx context.Context, confirm bool) error {
	if !confirm {
		fmt.Print("This removes all stored data. Continue? [y/N] ")
		var answer string
		_, _ = fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	s, err := openStack(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.store.Clear(); err != nil {
		return err
	}
	fmt.Println("Cache cleared.")
	return nil
}

func runCacheSources(ctx context.Context, limit int) error {
	s, err := openStack(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	sources, err := s.cache.TopSources(limit)
	if err != nil {
		return err
	}
	for _, src := range sources {
		stale := ""
		if src.IsStale {
			stale = " (stale)"
		}
		fmt.Printf("%.2f  used %-3d %-30s %s%s\n",
			src.QualityScore, src.UsageCount, src.Domain, src.URL, stale)
	}
	return nil
}
