package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"scout/internal/logger"
)

// NewTopicsCmd creates the topic listing command.
func NewTopicsCmd() *cobra.Command {
	var limit int

	topicsCmd := &cobra.Command{
		Use:   "topics",
		Short: "List stored topics by priority",
		Run: func(cmd *cobra.Command, args []string) {
			if err := runTopics(cmd.Context(), limit); err != nil {
				logger.Error("Failed to list topics", err)
				os.Exit(1)
			}
		},
	}
	topicsCmd.Flags().IntVar(&limit, "limit", 20, "maximum topics to show")
	return topicsCmd
}

func runTopics(ctx context.Context, limit int) error {
	s, err := openStack(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	topics, err := s.store.ListTopics(limit)
	if err != nil {
		return err
	}
	if len(topics) == 0 {
		fmt.Println("No topics stored yet. Run `scout run` first.")
		return nil
	}

	for _, topic := range topics {
		marker := " "
		if topic.ResearchReport != "" {
			marker = "*"
		}
		fmt.Printf("%s %2d/10  %.2f  %-40s %s\n",
			marker, topic.Priority, topic.PriorityScore, topic.ID, topic.Title)
	}
	fmt.Println("\n* = research article available")
	return nil
}
