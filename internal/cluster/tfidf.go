package cluster

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// titleContentChars caps how much document content feeds vectorization.
const titleContentChars = 500

// vector is a sparse TF-IDF vector over the corpus vocabulary.
type vector map[string]float64

// tokenize lowercases and splits on non-letter/digit runes, dropping
// single-character tokens and stopwords.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var tokens []string
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "from": true, "are": true, "was": true, "has": true,
	"have": true, "its": true, "but": true, "not": true, "you": true,
	"der": true, "die": true, "das": true, "und": true, "ein": true,
	"eine": true, "mit": true, "von": true, "für": true, "auf": true,
}

// vectorize builds TF-IDF vectors for each document text. IDF uses the
// smoothed form log((N+1)/(df+1)) + 1 so every term keeps positive weight.
func vectorize(texts []string) []vector {
	tokenLists := make([][]string, len(texts))
	df := make(map[string]int)
	for i, text := range texts {
		tokenLists[i] = tokenize(text)
		seen := make(map[string]bool)
		for _, tok := range tokenLists[i] {
			if !seen[tok] {
				seen[tok] = true
				df[tok]++
			}
		}
	}

	n := float64(len(texts))
	vectors := make([]vector, len(texts))
	for i, tokens := range tokenLists {
		tf := make(map[string]float64)
		for _, tok := range tokens {
			tf[tok]++
		}
		v := make(vector, len(tf))
		for tok, count := range tf {
			idf := math.Log((n+1)/float64(df[tok]+1)) + 1
			v[tok] = (count / float64(len(tokens))) * idf
		}
		vectors[i] = v
	}
	return vectors
}

// norm returns the Euclidean norm of a sparse vector.
func norm(v vector) float64 {
	var sum float64
	for _, w := range v {
		sum += w * w
	}
	return math.Sqrt(sum)
}

// cosineSimilarity over sparse vectors; zero vectors are orthogonal to
// everything.
func cosineSimilarity(a, b vector) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	// Iterate the smaller map.
	if len(b) < len(a) {
		a, b = b, a
	}
	var dot float64
	for tok, wa := range a {
		if wb, ok := b[tok]; ok {
			dot += wa * wb
		}
	}
	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (na * nb)
	if sim > 1 {
		sim = 1
	}
	return sim
}

// topTokens returns the k highest-weight tokens of a summed cluster
// vector, ties broken alphabetically for determinism.
func topTokens(v vector, k int) []string {
	type entry struct {
		tok    string
		weight float64
	}
	entries := make([]entry, 0, len(v))
	for tok, w := range v {
		entries = append(entries, entry{tok, w})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].weight != entries[j].weight {
			return entries[i].weight > entries[j].weight
		}
		return entries[i].tok < entries[j].tok
	})
	if len(entries) > k {
		entries = entries[:k]
	}
	tokens := make([]string, len(entries))
	for i, e := range entries {
		tokens[i] = e.tok
	}
	return tokens
}
