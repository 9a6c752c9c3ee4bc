// Package cluster groups collected documents into topic candidates using
// TF-IDF vectors and density-based clustering. Given the same input set
// the assignment is deterministic.
package cluster

import (
	"fmt"
	"strings"
	"time"

	"scout/internal/core"
	"scout/internal/logger"
)

// Defaults for the density clustering pass.
const (
	// MinClusterSize is the smallest document count that forms a topic.
	MinClusterSize = 3
	// similarityEps is the cosine similarity above which two documents
	// count as neighbors.
	similarityEps = 0.25
)

// Clusterer groups documents of one language into topic clusters.
type Clusterer struct {
	minClusterSize int
	eps            float64
}

// New creates a clusterer with default parameters.
func New() *Clusterer {
	return &Clusterer{minClusterSize: MinClusterSize, eps: similarityEps}
}

// NewWithParams creates a clusterer with explicit parameters, used by tests
// and tuning runs.
func NewWithParams(minClusterSize int, eps float64) *Clusterer {
	return &Clusterer{minClusterSize: minClusterSize, eps: eps}
}

// Cluster assigns documents to density clusters. Noise documents become
// singleton clusters only when their title matches a seed keyword;
// otherwise they are dropped.
func (c *Clusterer) Cluster(docs []core.Document, seedKeywords []string) []core.TopicCluster {
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		content := doc.Content
		if len(content) > titleContentChars {
			content = content[:titleContentChars]
		}
		texts[i] = doc.Title + " " + content
	}
	vectors := vectorize(texts)

	assignments := c.densityCluster(vectors)

	clusters := c.buildClusters(docs, vectors, assignments)
	clusters = append(clusters, c.seedSingletons(docs, assignments, seedKeywords)...)

	logger.Info("clustering finished",
		"documents", len(docs),
		"clusters", len(clusters),
		"noise", countNoise(assignments))
	return clusters
}

// densityCluster runs a DBSCAN-style pass over the similarity graph.
// Documents are visited in input order, so the assignment is a pure
// function of the input set. Returns -1 for noise.
func (c *Clusterer) densityCluster(vectors []vector) []int {
	n := len(vectors)
	assignments := make([]int, n)
	for i := range assignments {
		assignments[i] = -1
	}

	// Precompute the neighbor lists once; n is collection-sized, not
	// web-scale.
	neighbors := make([][]int, n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if cosineSimilarity(vectors[i], vectors[j]) >= c.eps {
				neighbors[i] = append(neighbors[i], j)
				neighbors[j] = append(neighbors[j], i)
			}
		}
	}

	clusterID := 0
	for i := 0; i < n; i++ {
		if assignments[i] != -1 || len(neighbors[i])+1 < c.minClusterSize {
			continue
		}
		// Grow the cluster from this core point.
		assignments[i] = clusterID
		queue := append([]int(nil), neighbors[i]...)
		for len(queue) > 0 {
			j := queue[0]
			queue = queue[1:]
			if assignments[j] != -1 {
				continue
			}
			assignments[j] = clusterID
			// Only core points extend the frontier.
			if len(neighbors[j])+1 >= c.minClusterSize {
				queue = append(queue, neighbors[j]...)
			}
		}
		clusterID++
	}
	return assignments
}

// buildClusters materializes TopicClusters: representative title comes
// from the member with the highest TF-IDF norm, the label joins the top
// three discriminative tokens.
func (c *Clusterer) buildClusters(docs []core.Document, vectors []vector, assignments []int) []core.TopicCluster {
	memberIdx := make(map[int][]int)
	maxID := -1
	for i, id := range assignments {
		if id < 0 {
			continue
		}
		memberIdx[id] = append(memberIdx[id], i)
		if id > maxID {
			maxID = id
		}
	}

	now := time.Now().UTC()
	var clusters []core.TopicCluster
	for id := 0; id <= maxID; id++ {
		members := memberIdx[id]
		if len(members) == 0 {
			continue
		}

		summed := make(vector)
		bestIdx, bestNorm := members[0], -1.0
		var docIDs []string
		for _, i := range members {
			docIDs = append(docIDs, docs[i].ID)
			for tok, w := range vectors[i] {
				summed[tok] += w
			}
			if n := norm(vectors[i]); n > bestNorm {
				bestNorm = n
				bestIdx = i
			}
		}

		clusters = append(clusters, core.TopicCluster{
			ClusterID:           fmt.Sprintf("cluster_%d", id),
			Label:               strings.Join(topTokens(summed, 3), " "),
			RepresentativeTitle: docs[bestIdx].Title,
			DocumentIDs:         docIDs,
			CreatedAt:           now,
		})
	}
	return clusters
}

// seedSingletons promotes noise documents whose title matches a seed
// keyword into singleton clusters. Other noise is discarded.
func (c *Clusterer) seedSingletons(docs []core.Document, assignments []int, seedKeywords []string) []core.TopicCluster {
	loweredSeeds := make([]string, len(seedKeywords))
	for i, kw := range seedKeywords {
		loweredSeeds[i] = strings.ToLower(kw)
	}

	now := time.Now().UTC()
	var singletons []core.TopicCluster
	for i, id := range assignments {
		if id != -1 {
			continue
		}
		title := strings.ToLower(docs[i].Title)
		matched := false
		for _, seed := range loweredSeeds {
			if seed != "" && strings.Contains(title, seed) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		singletons = append(singletons, core.TopicCluster{
			ClusterID:           fmt.Sprintf("singleton_%s", docs[i].ID),
			Label:               strings.Join(topTokens(vectorize([]string{docs[i].Title})[0], 3), " "),
			RepresentativeTitle: docs[i].Title,
			DocumentIDs:         []string{docs[i].ID},
			CreatedAt:           now,
		})
	}
	return singletons
}

func countNoise(assignments []int) int {
	n := 0
	for _, id := range assignments {
		if id == -1 {
			n++
		}
	}
	return n
}
