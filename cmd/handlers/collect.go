package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"scout/internal/dedup"
	"scout/internal/logger"
	"scout/internal/store"
)

// NewCollectCmd creates the collection-only command.
func NewCollectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Run the enabled collectors and store deduplicated documents",
		Run: func(cmd *cobra.Command, args []string) {
			if err := runCollect(cmd.Context()); err != nil {
				logger.Error("Collection failed", err)
				os.Exit(1)
			}
		},
	}
}

func runCollect(ctx context.Context) error {
	s, err := openStack(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	s.discoverFeeds(ctx)
	collectors := s.collectors()
	if len(collectors) == 0 {
		return fmt.Errorf("no collectors enabled in config")
	}

	d := dedup.New()
	total, stored := 0, 0
	for _, c := range collectors {
		docs := c.Collect(ctx, s.cfg)
		total += len(docs)
		for _, doc := range d.Deduplicate(docs) {
			switch err := s.store.InsertDocument(doc); err {
			case nil:
				stored++
			case store.ErrDuplicateCanonicalURL:
			default:
				logger.Warn("document insert failed", "id", doc.ID, "error", err.Error())
			}
		}
		fmt.Printf("%-16s %d documents\n", c.Name(), len(docs))
	}
	fmt.Printf("Total: %d collected, %d newly stored\n", total, stored)
	return nil
}
