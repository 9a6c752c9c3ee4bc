// Package handlers holds the CLI surface: one cobra command per
// pipeline entry point.
package handlers

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	dataDir string
)

// NewRootCmd creates the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "scout",
		Short: "Scout discovers, validates, and researches content topics for a market.",
		Long: `Scout is a topic research agent: it collects candidate topics from
RSS feeds, Reddit, autocomplete, trends, and news APIs, clusters and
scores them, researches the best ones across multiple search backends,
and synthesizes cited research articles.`,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "market config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", ".scout", "data directory for the SQLite store")

	rootCmd.AddCommand(NewRunCmd())
	rootCmd.AddCommand(NewCollectCmd())
	rootCmd.AddCommand(NewResearchCmd())
	rootCmd.AddCommand(NewTopicsCmd())
	rootCmd.AddCommand(NewCacheCmd())
	rootCmd.AddCommand(NewExportCmd())
	return rootCmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
