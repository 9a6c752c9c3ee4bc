package synthesize

import (
	"fmt"
	"sort"
	"strings"

	"scout/internal/core"
	"scout/internal/rerank"
	"scout/internal/store"
)

// Cross-topic extraction limits.
const (
	maxRelatedTopics  = 3
	keywordsPerReport = 8
)

// CrossTopicContext links a topic to its already-researched neighbors.
// It is pure CPU work over stored reports and gets appended to the
// synthesis prompt.
type CrossTopicContext struct {
	RelatedTopics          []string `json:"related_topics"`
	CommonThemes           []string `json:"common_themes"`
	UniqueAngles           []string `json:"unique_angles"`
	SuggestedInternalLinks []string `json:"suggested_internal_links"`
}

// ReportStore is the persistence surface cross-topic analysis reads from.
type ReportStore interface {
	FindRelatedTopics(topicID string, limit int, minSim float64) ([]store.RelatedTopic, error)
	GetResearchReport(topicID string) (*core.ResearchReport, error)
}

// BuildCrossTopicContext finds up to three related topics with stored
// reports and mines their articles for shared and unique keywords.
// Topics with no researched neighbors get a nil context.
func BuildCrossTopicContext(reports ReportStore, topicID string) (*CrossTopicContext, error) {
	related, err := reports.FindRelatedTopics(topicID, maxRelatedTopics, 0.1)
	if err != nil {
		return nil, fmt.Errorf("failed to find related topics for %s: %w", topicID, err)
	}
	if len(related) == 0 {
		return nil, nil
	}

	ctx := &CrossTopicContext{}
	keywordSets := make([]map[string]bool, 0, len(related))
	for _, rel := range related {
		ctx.RelatedTopics = append(ctx.RelatedTopics, rel.Topic.Title)
		ctx.SuggestedInternalLinks = append(ctx.SuggestedInternalLinks, "/topics/"+rel.Topic.ID)

		report, err := reports.GetResearchReport(rel.Topic.ID)
		if err != nil || report == nil {
			keywordSets = append(keywordSets, map[string]bool{})
			continue
		}
		keywords := topKeywords(report.ArticleMarkdown, keywordsPerReport)
		set := make(map[string]bool, len(keywords))
		for _, kw := range keywords {
			set[kw] = true
		}
		keywordSets = append(keywordSets, set)
	}

	counts := make(map[string]int)
	for _, set := range keywordSets {
		for kw := range set {
			counts[kw]++
		}
	}
	for kw, n := range counts {
		if n >= 2 {
			ctx.CommonThemes = append(ctx.CommonThemes, kw)
		} else {
			ctx.UniqueAngles = append(ctx.UniqueAngles, kw)
		}
	}
	sort.Strings(ctx.CommonThemes)
	sort.Strings(ctx.UniqueAngles)
	return ctx, nil
}

// topKeywords returns the most frequent meaningful tokens of a report.
func topKeywords(text string, n int) []string {
	counts := make(map[string]int)
	for _, tok := range rerank.Tokenize(text) {
		if len(tok) < 4 || crossTopicStopWords[tok] {
			continue
		}
		counts[tok]++
	}
	keywords := make([]string, 0, len(counts))
	for kw := range counts {
		keywords = append(keywords, kw)
	}
	sort.SliceStable(keywords, func(i, j int) bool {
		if counts[keywords[i]] != counts[keywords[j]] {
			return counts[keywords[i]] > counts[keywords[j]]
		}
		return keywords[i] < keywords[j]
	})
	if len(keywords) > n {
		keywords = keywords[:n]
	}
	return keywords
}

// promptSection renders the context for inclusion in a synthesis prompt.
func (c *CrossTopicContext) promptSection() string {
	if c == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nRelated coverage already published on this site:\n")
	for _, title := range c.RelatedTopics {
		b.WriteString("- " + title + "\n")
	}
	if len(c.CommonThemes) > 0 {
		b.WriteString("Themes already covered (avoid repeating in depth): " + strings.Join(c.CommonThemes, ", ") + "\n")
	}
	if len(c.UniqueAngles) > 0 {
		b.WriteString("Angles unique to related articles: " + strings.Join(c.UniqueAngles, ", ") + "\n")
	}
	return b.String()
}

var crossTopicStopWords = map[string]bool{
	"that": true, "this": true, "with": true, "from": true, "have": true,
	"they": true, "their": true, "been": true, "will": true, "more": true,
	"than": true, "were": true, "which": true, "about": true, "also": true,
	"source": true, "sources": true,
}
