// Package cost estimates and accumulates per-run API spend.
package cost

import (
	"math"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"
)

// ModelPricing is the per-1M-token pricing of one LLM model.
type ModelPricing struct {
	Model              string
	InputPer1MTokens   float64
	OutputPer1MTokens  float64
	EstimatedOutputTok int
}

// PricingTable holds Gemini pricing as of mid-2026.
var PricingTable = map[string]ModelPricing{
	"gemini-2.5-flash": {
		Model:              "gemini-2.5-flash",
		InputPer1MTokens:   0.30,
		OutputPer1MTokens:  2.50,
		EstimatedOutputTok: 400,
	},
	"gemini-2.5-pro": {
		Model:              "gemini-2.5-pro",
		InputPer1MTokens:   1.25,
		OutputPer1MTokens:  10.00,
		EstimatedOutputTok: 600,
	},
	"gemini-2.0-flash": {
		Model:              "gemini-2.0-flash",
		InputPer1MTokens:   0.10,
		OutputPer1MTokens:  0.40,
		EstimatedOutputTok: 400,
	},
}

// Flat per-call prices for non-LLM services.
const (
	TavilyPerQuery = 0.005
	VoyagePerCall  = 0.0002
)

// EstimateTokenCount approximates token usage from text length.
// Roughly 3.5 characters per token for mixed-language content.
func EstimateTokenCount(text string) int {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(utf8.RuneCountInString(text)) / 3.5))
}

// EstimateCallCost prices one LLM call from its prompt text. Unknown
// models price as gemini-2.5-flash.
func EstimateCallCost(model, prompt string) float64 {
	pricing, ok := PricingTable[model]
	if !ok {
		pricing = PricingTable["gemini-2.5-flash"]
	}
	inputTokens := EstimateTokenCount(prompt)
	return TokenCost(model, inputTokens, pricing.EstimatedOutputTok)
}

// TokenCost prices a call from actual token counts.
func TokenCost(model string, inputTokens, outputTokens int) float64 {
	pricing, ok := PricingTable[model]
	if !ok {
		pricing = PricingTable["gemini-2.5-flash"]
	}
	return float64(inputTokens)/1e6*pricing.InputPer1MTokens +
		float64(outputTokens)/1e6*pricing.OutputPer1MTokens
}

// Tracker accumulates spend by category across one pipeline run.
type Tracker struct {
	mu      sync.Mutex
	byLabel map[string]float64
}

// NewTracker returns an empty accumulator.
func NewTracker() *Tracker {
	return &Tracker{byLabel: make(map[string]float64)}
}

// Add records spend under a label (backend name, "synthesis", ...).
func (t *Tracker) Add(label string, usd float64) {
	if usd <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byLabel[label] += usd
}

// Total returns the accumulated spend in USD.
func (t *Tracker) Total() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := 0.0
	for _, usd := range t.byLabel {
		total += usd
	}
	return total
}

// Breakdown returns per-label spend, labels sorted.
func (t *Tracker) Breakdown() []LabelCost {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]LabelCost, 0, len(t.byLabel))
	for label, usd := range t.byLabel {
		out = append(out, LabelCost{Label: label, USD: usd})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// LabelCost is one line of a spend breakdown.
type LabelCost struct {
	Label string
	USD   float64
}
