package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"scout/internal/logger"
)

// NewExportCmd creates the export command.
func NewExportCmd() *cobra.Command {
	var (
		outDir     string
		skipErrors bool
	)

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored topics through the sink",
		Run: func(cmd *cobra.Command, args []string) {
			if err := runExport(cmd.Context(), outDir, skipErrors); err != nil {
				logger.Error("Export failed", err)
				os.Exit(1)
			}
		},
	}
	exportCmd.Flags().StringVar(&outDir, "out", "exports", "markdown export directory")
	exportCmd.Flags().BoolVar(&skipErrors, "skip-errors", true, "continue past per-topic failures")
	return exportCmd
}

func runExport(ctx context.Context, outDir string, skipErrors bool) error {
	s, err := openStack(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	exporter, err := s.exporter(outDir)
	if err != nil {
		return err
	}
	topics, err := s.store.ListTopics(0)
	if err != nil {
		return err
	}
	if len(topics) == 0 {
		fmt.Println("Nothing to export.")
		return nil
	}

	result, err := exporter.ExportBatch(ctx, topics, skipErrors)
	if err != nil {
		return err
	}
	fmt.Printf("Exported to %s: %d created, %d updated, %d skipped, %d failed\n",
		outDir, result.Created, result.Updated, result.Skipped, result.Failed)
	for _, expErr := range result.Errors {
		fmt.Fprintf(os.Stderr, "  error: %v\n", expErr)
	}
	return nil
}
