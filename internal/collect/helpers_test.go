package collect

import (
	"testing"

	"golang.org/x/time/rate"

	"scout/internal/config"
	"scout/internal/ratelimit"
	"scout/internal/store"
)

func testConfig() *config.MarketConfig {
	return &config.MarketConfig{
		Domain:       "energy",
		Market:       "US",
		Language:     "en",
		SeedKeywords: []string{"heat pumps", "grid storage"},
	}
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.NewMemoryStore()
	if err != nil {
		t.Fatalf("failed to open memory store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// newTestGovernor returns a governor whose buckets never block, so tests
// are not paced by real token refill.
func newTestGovernor() *ratelimit.Governor {
	g := ratelimit.NewGovernor()
	g.SetHostRate("127.0.0.1", rate.Inf)
	g.SetHostRate("localhost", rate.Inf)
	return g
}
