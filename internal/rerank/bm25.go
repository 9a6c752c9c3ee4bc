package rerank

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// Okapi BM25 parameters.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// BM25 is an in-memory Okapi BM25 index over a fixed set of documents.
// The synthesizer reuses it for passage selection.
type BM25 struct {
	docs      [][]string
	docFreq   map[string]int
	avgDocLen float64
}

// NewBM25 indexes the given documents.
func NewBM25(documents []string) *BM25 {
	idx := &BM25{
		docs:    make([][]string, len(documents)),
		docFreq: make(map[string]int),
	}
	totalLen := 0
	for i, doc := range documents {
		tokens := Tokenize(doc)
		idx.docs[i] = tokens
		totalLen += len(tokens)
		seen := make(map[string]bool, len(tokens))
		for _, tok := range tokens {
			if !seen[tok] {
				seen[tok] = true
				idx.docFreq[tok]++
			}
		}
	}
	if len(documents) > 0 {
		idx.avgDocLen = float64(totalLen) / float64(len(documents))
	}
	return idx
}

// Scores returns the BM25 score of every indexed document against the
// query, in document order.
func (idx *BM25) Scores(query string) []float64 {
	queryTokens := Tokenize(query)
	scores := make([]float64, len(idx.docs))
	n := float64(len(idx.docs))
	for i, doc := range idx.docs {
		docLen := float64(len(doc))
		tf := make(map[string]int, len(doc))
		for _, tok := range doc {
			tf[tok]++
		}
		score := 0.0
		for _, tok := range queryTokens {
			freq := float64(tf[tok])
			if freq == 0 {
				continue
			}
			df := float64(idx.docFreq[tok])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			denom := freq + bm25K1*(1-bm25B+bm25B*docLen/idx.avgDocLen)
			score += idf * freq * (bm25K1 + 1) / denom
		}
		scores[i] = score
	}
	return scores
}

// TopN returns the indices of the n highest-scoring documents for the
// query, best first. Ties break by document order.
func (idx *BM25) TopN(query string, n int) []int {
	scores := idx.Scores(query)
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	if n > len(order) {
		n = len(order)
	}
	return order[:n]
}

// Tokenize lowercases and splits on non-alphanumeric runes, dropping
// single-rune tokens.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) >= 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
