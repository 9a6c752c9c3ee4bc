package cost

import (
	"strings"
	"testing"
)

func TestEstimateTokenCount(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"empty", "", 0},
		{"simple", "Hello world", 4},
		{"newlines collapse", "Line 1\nLine 2", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateTokenCount(tt.input); got != tt.want {
				t.Errorf("EstimateTokenCount(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestTokenCost(t *testing.T) {
	got := TokenCost("gemini-2.5-flash", 1_000_000, 1_000_000)
	want := 0.30 + 2.50
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("TokenCost = %v, want %v", got, want)
	}
}

func TestUnknownModelFallsBackToFlash(t *testing.T) {
	if TokenCost("made-up-model", 1000, 1000) != TokenCost("gemini-2.5-flash", 1000, 1000) {
		t.Error("unknown model did not price as flash")
	}
}

func TestEstimateCallCost(t *testing.T) {
	prompt := strings.Repeat("research this topic ", 50)
	got := EstimateCallCost("gemini-2.5-flash", prompt)
	if got <= 0 {
		t.Errorf("cost = %v, want > 0", got)
	}
}

func TestTrackerAccumulates(t *testing.T) {
	tracker := NewTracker()
	tracker.Add("tavily", 0.005)
	tracker.Add("tavily", 0.005)
	tracker.Add("synthesis", 0.0019)
	tracker.Add("ignored", 0)

	if diff := tracker.Total() - 0.0119; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("total = %v, want 0.0119", tracker.Total())
	}
	breakdown := tracker.Breakdown()
	if len(breakdown) != 2 {
		t.Fatalf("breakdown = %v", breakdown)
	}
	if breakdown[0].Label != "synthesis" || breakdown[1].Label != "tavily" {
		t.Errorf("labels not sorted: %v", breakdown)
	}
}
