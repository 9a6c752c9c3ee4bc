package handlers

import (
	"context"
	"fmt"

	"scout/internal/collect"
	"scout/internal/config"
	"scout/internal/export"
	"scout/internal/fetch"
	"scout/internal/llm"
	"scout/internal/pipeline"
	"scout/internal/ratelimit"
	"scout/internal/rerank"
	"scout/internal/research"
	"scout/internal/sourcecache"
	"scout/internal/store"
	"scout/internal/synthesize"
)

// stack bundles everything a command needs.
type stack struct {
	cfg      *config.MarketConfig
	store    *store.Store
	gov      *ratelimit.Governor
	provider llm.Provider
	cache    *sourcecache.Cache
}

// openStack loads config and opens the store. The LLM client is built
// only when a Gemini key is configured; stages needing it degrade.
func openStack(ctx context.Context) (*stack, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	st, err := store.NewStore(dataDir)
	if err != nil {
		return nil, err
	}

	s := &stack{
		cfg:   cfg,
		store: st,
		gov:   ratelimit.NewGovernor(),
		cache: sourcecache.New(st),
	}
	if cfg.Backends.GeminiAPIKey != "" {
		client, err := llm.NewClient(ctx, cfg.Backends.GeminiAPIKey, cfg.Backends.GeminiModel)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		s.provider = client
	}
	return s, nil
}

func (s *stack) close() {
	_ = s.store.Close()
}

// discoverFeeds expands the RSS feed list once per run: static config
// feeds plus LLM-assisted feed discovery when a provider and a search
// backend are available. The merged list replaces CustomFeeds before
// the collectors are built.
func (s *stack) discoverFeeds(ctx context.Context) {
	if !s.cfg.Collectors.RSSEnabled {
		return
	}
	var search collect.SearchFunc
	if s.cfg.Backends.SearxNGBaseURL != "" {
		search = research.NewSearxNGBackend(s.cfg.Backends.SearxNGBaseURL, s.gov).Search
	} else if s.cfg.Backends.TavilyAPIKey != "" {
		search = research.NewTavilyBackend(s.cfg.Backends.TavilyAPIKey, s.gov).Search
	}
	discovery := collect.NewFeedDiscovery(s.provider, search, s.gov)
	s.cfg.Collectors.CustomFeeds = discovery.Discover(ctx, s.cfg)
}

// collectors builds the enabled collector set in a stable order.
func (s *stack) collectors() []collect.Collector {
	var out []collect.Collector
	if s.cfg.Collectors.RSSEnabled {
		out = append(out, collect.NewRSSCollector(s.store, fetch.New(), s.gov))
	}
	if s.cfg.Collectors.RedditEnabled {
		out = append(out, collect.NewRedditCollector(s.gov))
	}
	if s.cfg.Collectors.AutocompleteEnabled {
		out = append(out, collect.NewAutocompleteCollector(s.store, s.gov))
	}
	if s.cfg.Collectors.TrendsEnabled && s.provider != nil {
		out = append(out, collect.NewTrendsCollector(s.provider))
	}
	if s.cfg.Collectors.NewsAPIEnabled && s.cfg.Backends.TheNewsAPIKey != "" {
		out = append(out, collect.NewNewsAPICollector(s.gov, s.cfg.Backends.TheNewsAPIKey))
	}
	return out
}

// orchestrator wires every backend with a configured credential or
// endpoint. The curated store-backed backend is always available.
func (s *stack) orchestrator() *research.Orchestrator {
	var backends []research.Backend
	if s.cfg.Backends.TavilyAPIKey != "" {
		backends = append(backends, research.NewTavilyBackend(s.cfg.Backends.TavilyAPIKey, s.gov))
	}
	if s.cfg.Backends.SearxNGBaseURL != "" {
		backends = append(backends, research.NewSearxNGBackend(s.cfg.Backends.SearxNGBaseURL, s.gov))
	}
	if s.provider != nil {
		backends = append(backends, research.NewGeminiBackend(s.provider))
	}
	backends = append(backends, research.NewRSSBackend(s.store))
	if s.cfg.Backends.TheNewsAPIKey != "" {
		backends = append(backends, research.NewNewsBackend(s.cfg.Backends.TheNewsAPIKey, s.cfg.Language, s.gov))
	}
	return research.NewOrchestrator(backends, s.cache, s.cfg.DeepResearch.MinSuccessfulBackends)
}

func (s *stack) reranker() *rerank.Reranker {
	return rerank.New(s.cfg, s.cfg.Backends.VoyageAPIKey)
}

func (s *stack) synthesizer() *synthesize.Synthesizer {
	if s.provider == nil {
		return nil
	}
	return synthesize.New(s.provider, fetch.New(), s.gov, s.cfg.Synthesizer)
}

// exporter returns nil when no sink is configured.
func (s *stack) exporter(outDir string) (*export.Exporter, error) {
	if outDir == "" {
		return nil, nil
	}
	sink, err := export.NewMarkdownSink(outDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open export sink: %w", err)
	}
	return export.New(sink, s.store), nil
}

// runner assembles the full pipeline.
func (s *stack) runner(outDir string) (*pipeline.Runner, error) {
	exp, err := s.exporter(outDir)
	if err != nil {
		return nil, err
	}
	var exporter pipeline.Exporter
	if exp != nil {
		exporter = exp
	}
	var synthesizer pipeline.Synthesizer
	if synth := s.synthesizer(); synth != nil {
		synthesizer = synth
	}
	return pipeline.NewRunner(s.cfg, s.store, s.collectors(),
		s.orchestrator(), s.reranker(), synthesizer, exporter), nil
}
