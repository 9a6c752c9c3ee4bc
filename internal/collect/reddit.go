package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scout/internal/config"
	"scout/internal/core"
	"scout/internal/logger"
	"scout/internal/ratelimit"
)

// redditBaseURL is overridable in tests.
var redditBaseURL = "https://www.reddit.com"

// Reddit quality thresholds. Posts below either are dropped.
const (
	redditMinScore      = 10
	redditMinContentLen = 100
	redditMaxComments   = 5
	redditPostLimit     = 25
)

// redditListing mirrors the JSON listing envelope.
type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	SelfText    string  `json:"selftext"`
	URL         string  `json:"url"`
	Permalink   string  `json:"permalink"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	Removed     string  `json:"removed_by_category"`
}

type redditComment struct {
	Body   string `json:"body"`
	Score  int    `json:"score"`
	Author string `json:"author"`
}

// RedditCollector pulls posts and top comments from configured subreddits.
type RedditCollector struct {
	gov    *ratelimit.Governor
	client *http.Client
	health *healthTracker
	sort   string
}

// NewRedditCollector wires the Reddit collector with the default hot sort.
func NewRedditCollector(gov *ratelimit.Governor) *RedditCollector {
	return &RedditCollector{
		gov:    gov,
		client: &http.Client{Timeout: 30 * time.Second},
		health: newHealthTracker(),
		sort:   "hot",
	}
}

// SetSort switches the listing sort. Valid values: hot, new, top, rising.
func (c *RedditCollector) SetSort(sort string) {
	switch sort {
	case "hot", "new", "top", "rising":
		c.sort = sort
	}
}

func (c *RedditCollector) Name() string { return "reddit" }

func (c *RedditCollector) Collect(ctx context.Context, cfg *config.MarketConfig) []core.Document {
	var docs []core.Document
	for _, subreddit := range cfg.Collectors.RedditSubreddits {
		if c.health.shouldSkip(subreddit) {
			logger.Debug("skipping unhealthy subreddit", "subreddit", subreddit)
			continue
		}
		docs = append(docs, c.collectSubreddit(ctx, subreddit, cfg)...)
	}
	logger.Info("reddit collection finished", "subreddits", len(cfg.Collectors.RedditSubreddits), "documents", len(docs))
	return docs
}

func (c *RedditCollector) collectSubreddit(ctx context.Context, subreddit string, cfg *config.MarketConfig) []core.Document {
	started := time.Now()
	listingURL := fmt.Sprintf("%s/r/%s/%s.json?limit=%d", redditBaseURL, subreddit, c.sort, redditPostLimit)
	if c.sort == "top" {
		listingURL += "&t=week"
	}

	host, err := acquireHost(ctx, c.gov, listingURL)
	if err != nil {
		return nil
	}

	var listing redditListing
	if err := c.getJSON(ctx, listingURL, &listing); err != nil {
		c.health.recordFailure(subreddit, err)
		logCollectError(c.Name(), host, "fetch", started, err)
		return nil
	}
	c.health.recordSuccess(subreddit)

	var docs []core.Document
	for _, child := range listing.Data.Children {
		post := child.Data
		if post.Removed != "" || post.Author == "[deleted]" {
			continue
		}
		if post.Score < redditMinScore {
			continue
		}

		content := post.SelfText
		if comments := c.fetchComments(ctx, subreddit, post.ID); len(comments) > 0 {
			content += "\n\n" + strings.Join(comments, "\n\n")
		}
		if len(content) < redditMinContentLen {
			continue
		}

		permalink := redditBaseURL + post.Permalink
		doc := newDocument("reddit_"+strings.ToLower(subreddit), permalink, post.Title, content, truncate(post.SelfText, 500), cfg)
		doc.PublishedAt = time.Unix(int64(post.CreatedUTC), 0).UTC()
		doc.Author = post.Author
		docs = append(docs, doc)
	}
	return docs
}

// fetchComments returns up to redditMaxComments top-level comment bodies,
// skipping deleted and removed ones. Failures degrade to no comments.
func (c *RedditCollector) fetchComments(ctx context.Context, subreddit, postID string) []string {
	commentsURL := fmt.Sprintf("%s/r/%s/comments/%s.json?limit=%d&depth=1", redditBaseURL, subreddit, postID, redditMaxComments)
	if _, err := acquireHost(ctx, c.gov, commentsURL); err != nil {
		return nil
	}

	// The comments endpoint returns [postListing, commentListing].
	var payload []json.RawMessage
	if err := c.getJSON(ctx, commentsURL, &payload); err != nil || len(payload) < 2 {
		return nil
	}
	var listing struct {
		Data struct {
			Children []struct {
				Data redditComment `json:"data"`
			} `json:"children"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload[1], &listing); err != nil {
		return nil
	}

	var comments []string
	for _, child := range listing.Data.Children {
		body := strings.TrimSpace(child.Data.Body)
		if body == "" || body == "[deleted]" || body == "[removed]" {
			continue
		}
		comments = append(comments, body)
		if len(comments) >= redditMaxComments {
			break
		}
	}
	return comments
}

func (c *RedditCollector) getJSON(ctx context.Context, url string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "scout-research-agent/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reddit returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, dest)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
