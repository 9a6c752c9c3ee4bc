package dedup

import (
	"hash/fnv"
	"math"
	"strings"
)

const (
	// NumPermutations is the MinHash signature width.
	NumPermutations = 128
	// ShingleSize is the token shingle width used for signatures.
	ShingleSize = 3
	// lshBands / lshRows tune the banding to recall pairs with
	// Jaccard >= ~0.7 (threshold ~ (1/b)^(1/r) = (1/32)^(1/4) ≈ 0.42,
	// comfortably below the 0.7 decision threshold so candidates are
	// verified by exact signature similarity).
	lshBands = 32
	lshRows  = NumPermutations / lshBands
)

// Signature is a MinHash signature over shingled tokens.
type Signature [NumPermutations]uint64

// seeds for the permutation family. Derived once from FNV over the
// permutation index; deterministic across processes.
var permSeeds = buildPermSeeds()

func buildPermSeeds() [NumPermutations]uint64 {
	var seeds [NumPermutations]uint64
	for i := 0; i < NumPermutations; i++ {
		h := fnv.New64a()
		h.Write([]byte{byte(i), byte(i >> 8), 0x5c, 0xa7})
		seeds[i] = h.Sum64() | 1 // odd multiplier
	}
	return seeds
}

// MinHash computes the signature for a piece of text. Empty or very short
// text yields a signature over whatever shingles exist; fully empty text
// yields the max-value signature, which matches nothing.
func MinHash(text string) Signature {
	var sig Signature
	for i := range sig {
		sig[i] = math.MaxUint64
	}

	tokens := tokenize(text)
	if len(tokens) == 0 {
		return sig
	}

	n := len(tokens) - ShingleSize + 1
	if n < 1 {
		n = 1 // single shingle from all available tokens
	}
	for s := 0; s < n; s++ {
		end := s + ShingleSize
		if end > len(tokens) {
			end = len(tokens)
		}
		h := fnv.New64a()
		h.Write([]byte(strings.Join(tokens[s:end], " ")))
		base := h.Sum64()
		for i := 0; i < NumPermutations; i++ {
			// Universal hashing: permute the base hash per row.
			v := base*permSeeds[i] + uint64(i)
			if v < sig[i] {
				sig[i] = v
			}
		}
	}
	return sig
}

// Similarity estimates the Jaccard similarity of the underlying shingle sets.
func (s Signature) Similarity(other Signature) float64 {
	matches := 0
	for i := range s {
		if s[i] == other[i] {
			matches++
		}
	}
	return float64(matches) / float64(NumPermutations)
}

// bandKeys returns one key per LSH band, used to bucket candidate pairs.
func (s Signature) bandKeys() []uint64 {
	keys := make([]uint64, lshBands)
	for b := 0; b < lshBands; b++ {
		h := fnv.New64a()
		for r := 0; r < lshRows; r++ {
			v := s[b*lshRows+r]
			h.Write([]byte{
				byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24),
				byte(v >> 32), byte(v >> 40), byte(v >> 48), byte(v >> 56),
			})
		}
		// Mix the band index so identical rows in different bands collide
		// only within their own band.
		keys[b] = h.Sum64() ^ (uint64(b) << 56)
	}
	return keys
}

// lshIndex buckets signatures by band so near-duplicate lookup inspects a
// handful of candidates instead of every known document.
type lshIndex struct {
	buckets map[uint64][]string // band key -> document ids
	sigs    map[string]Signature
}

func newLSHIndex() *lshIndex {
	return &lshIndex{
		buckets: make(map[uint64][]string),
		sigs:    make(map[string]Signature),
	}
}

// add registers a signature under the given id.
func (idx *lshIndex) add(id string, sig Signature) {
	idx.sigs[id] = sig
	for _, key := range sig.bandKeys() {
		idx.buckets[key] = append(idx.buckets[key], id)
	}
}

// query returns the best-matching known id and its estimated similarity,
// or ("", 0) when no candidate shares a band.
func (idx *lshIndex) query(sig Signature) (string, float64) {
	seen := make(map[string]bool)
	bestID := ""
	bestSim := 0.0
	for _, key := range sig.bandKeys() {
		for _, id := range idx.buckets[key] {
			if seen[id] {
				continue
			}
			seen[id] = true
			if sim := sig.Similarity(idx.sigs[id]); sim > bestSim {
				bestSim = sim
				bestID = id
			}
		}
	}
	return bestID, bestSim
}

// tokenize lowercases and splits text into word tokens, dropping
// punctuation-only fragments.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isWordRune(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func isWordRune(r rune) bool {
	return r == '-' ||
		(r >= 'a' && r <= 'z') ||
		(r >= '0' && r <= '9') ||
		r >= 0x80 // keep non-ASCII letters (umlauts etc.)
}
