package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"scout/internal/core"
)

// MarkdownSink writes one markdown file per topic into a directory. It
// satisfies the upsert contract: identical content is skipped, changed
// content updates the file in place.
type MarkdownSink struct {
	dir string
}

// NewMarkdownSink ensures the output directory exists.
func NewMarkdownSink(dir string) (*MarkdownSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export dir %s: %w", dir, err)
	}
	return &MarkdownSink{dir: dir}, nil
}

func (s *MarkdownSink) UpsertTopic(_ context.Context, topic core.Topic) (Action, error) {
	rendered := renderTopic(topic)
	path := filepath.Join(s.dir, topic.ID+".md")

	existing, err := os.ReadFile(path)
	switch {
	case err == nil && bytes.Equal(existing, rendered):
		return ActionSkipped, nil
	case err == nil:
		if err := os.WriteFile(path, rendered, 0o644); err != nil {
			return "", err
		}
		return ActionUpdated, nil
	case os.IsNotExist(err):
		if err := os.WriteFile(path, rendered, 0o644); err != nil {
			return "", err
		}
		return ActionCreated, nil
	default:
		return "", err
	}
}

func renderTopic(topic core.Topic) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", topic.Title)
	if topic.Description != "" {
		b.WriteString(topic.Description + "\n\n")
	}
	fmt.Fprintf(&b, "- Priority: %d/10 (score %.2f)\n", topic.Priority, topic.PriorityScore)
	fmt.Fprintf(&b, "- Source: %s\n", topic.Source)
	if topic.Market != "" {
		fmt.Fprintf(&b, "- Market: %s\n", topic.Market)
	}
	fmt.Fprintf(&b, "- Discovered: %s\n", topic.DiscoveredAt.Format("2006-01-02"))

	if topic.ResearchReport != "" {
		b.WriteString("\n---\n\n")
		b.WriteString(topic.ResearchReport)
		b.WriteString("\n")
	}
	return []byte(b.String())
}
