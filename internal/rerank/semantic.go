package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"scout/internal/logger"
)

// voyageBaseURL is overridable in tests.
var voyageBaseURL = "https://api.voyageai.com/v1/rerank"

const voyageModel = "rerank-2-lite"

// SemanticScorer scores documents against a query in [0,1].
type SemanticScorer interface {
	Score(ctx context.Context, query string, documents []string) ([]float64, error)
}

// liteScorer is the local fallback scorer: cosine similarity over term
// frequency vectors. No network, deterministic.
type liteScorer struct{}

func (liteScorer) Score(_ context.Context, query string, documents []string) ([]float64, error) {
	queryVec := termVector(query)
	scores := make([]float64, len(documents))
	for i, doc := range documents {
		scores[i] = cosine(queryVec, termVector(doc))
	}
	return scores, nil
}

func termVector(text string) map[string]float64 {
	vec := make(map[string]float64)
	for _, tok := range Tokenize(text) {
		vec[tok]++
	}
	return vec
}

func cosine(a, b map[string]float64) float64 {
	if len(a) > len(b) {
		a, b = b, a
	}
	dot := 0.0
	for tok, wa := range a {
		if wb, ok := b[tok]; ok {
			dot += wa * wb
		}
	}
	if dot == 0 {
		return 0
	}
	normA, normB := 0.0, 0.0
	for _, w := range a {
		normA += w * w
	}
	for _, w := range b {
		normB += w * w
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim > 1 {
		sim = 1
	}
	return sim
}

// VoyageScorer calls the Voyage rerank API. Failures fall back to the
// lite scorer so a dead API never kills a pipeline run.
type VoyageScorer struct {
	apiKey   string
	client   *http.Client
	fallback liteScorer
}

// NewVoyageScorer wires the Voyage adapter.
func NewVoyageScorer(apiKey string) *VoyageScorer {
	return &VoyageScorer{
		apiKey: apiKey,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *VoyageScorer) Score(ctx context.Context, query string, documents []string) ([]float64, error) {
	scores, err := s.call(ctx, query, documents)
	if err != nil {
		logger.Warn("voyage rerank failed, using lite scorer", "error", err.Error())
		return s.fallback.Score(ctx, query, documents)
	}
	return scores, nil
}

func (s *VoyageScorer) call(ctx context.Context, query string, documents []string) ([]float64, error) {
	if s.apiKey == "" {
		return nil, fmt.Errorf("voyage api key missing")
	}
	payload, err := json.Marshal(map[string]any{
		"model":     voyageModel,
		"query":     query,
		"documents": documents,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, voyageBaseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("voyage status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Data []struct {
			Index          int     `json:"index"`
			RelevanceScore float64 `json:"relevance_score"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}

	scores := make([]float64, len(documents))
	for _, d := range parsed.Data {
		if d.Index >= 0 && d.Index < len(scores) {
			scores[d.Index] = d.RelevanceScore
		}
	}
	return scores, nil
}
