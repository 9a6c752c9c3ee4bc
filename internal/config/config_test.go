package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "market.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadFlatConfig(t *testing.T) {
	path := writeConfig(t, `
domain: renewable energy
market: Germany
language: de
seed_keywords:
  - solaranlage
  - balkonkraftwerk
collectors:
  rss_enabled: true
  custom_feeds:
    - https://www.heise.de/rss/heise-atom.xml
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Market != "Germany" {
		t.Errorf("expected market Germany, got %q", cfg.Market)
	}
	if cfg.Language != "de" {
		t.Errorf("expected language de, got %q", cfg.Language)
	}
	if len(cfg.SeedKeywords) != 2 {
		t.Errorf("expected 2 seed keywords, got %d", len(cfg.SeedKeywords))
	}
	if !cfg.Collectors.RSSEnabled {
		t.Error("expected rss_enabled true")
	}
}

func TestLoadNestedMarketConfig(t *testing.T) {
	path := writeConfig(t, `
market:
  market: Germany
  language: de
  domain: e-mobility
seed_keywords:
  - wallbox
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Market != "Germany" {
		t.Errorf("expected coerced market Germany, got %q", cfg.Market)
	}
	if cfg.Language != "de" {
		t.Errorf("expected coerced language de, got %q", cfg.Language)
	}
	if cfg.Domain != "e-mobility" {
		t.Errorf("expected coerced domain e-mobility, got %q", cfg.Domain)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
market: US
language: en
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Scheduling.LookbackDays != 7 {
		t.Errorf("expected default lookback_days 7, got %d", cfg.Scheduling.LookbackDays)
	}
	if cfg.Reranker.Stage3FinalCount != 25 {
		t.Errorf("expected default stage3_final_count 25, got %d", cfg.Reranker.Stage3FinalCount)
	}
	if cfg.Synthesizer.Strategy != "bm25_llm" {
		t.Errorf("expected default strategy bm25_llm, got %q", cfg.Synthesizer.Strategy)
	}
	if cfg.Synthesizer.MaxArticleWords != 2000 {
		t.Errorf("expected default max_article_words 2000, got %d", cfg.Synthesizer.MaxArticleWords)
	}
	if cfg.DeepResearch.MinSuccessfulBackends != 1 {
		t.Errorf("expected default min_successful_backends 1, got %d", cfg.DeepResearch.MinSuccessfulBackends)
	}
	if cfg.Collectors.RedditEnabled {
		t.Error("expected reddit disabled by default")
	}
}

func TestValidateRejectsBadLanguage(t *testing.T) {
	path := writeConfig(t, `
market: Germany
language: deu
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for 3-letter language code")
	}
	if _, ok := err.(*ConfigError); !ok {
		t.Errorf("expected *ConfigError, got %T", err)
	}
}

func TestValidateRejectsUnknownStrategy(t *testing.T) {
	path := writeConfig(t, `
language: en
synthesizer:
  strategy: embeddings_only
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown synthesizer strategy")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/market.yaml")
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}
