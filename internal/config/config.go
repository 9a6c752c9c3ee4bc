// Package config loads market configuration from YAML files and the
// environment. A market config describes one research run: the domain,
// market, language, seed keywords, and per-component settings.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ConfigError is fatal at startup; a run refuses to begin with a bad config.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Reason)
}

// MarketConfig holds the per-run market configuration.
type MarketConfig struct {
	Domain         string   `mapstructure:"domain"`
	Market         string   `mapstructure:"market"`
	Language       string   `mapstructure:"language"`
	Vertical       string   `mapstructure:"vertical"`
	SeedKeywords   []string `mapstructure:"seed_keywords"`
	CompetitorURLs []string `mapstructure:"competitor_urls"`

	Collectors   Collectors   `mapstructure:"collectors"`
	Scheduling   Scheduling   `mapstructure:"scheduling"`
	Reranker     Reranker     `mapstructure:"reranker"`
	Synthesizer  Synthesizer  `mapstructure:"synthesizer"`
	DeepResearch DeepResearch `mapstructure:"deep_research"`
	Backends     Backends     `mapstructure:"backends"`
}

// Collectors toggles and configures the collection layer.
type Collectors struct {
	RSSEnabled          bool     `mapstructure:"rss_enabled"`
	RedditEnabled       bool     `mapstructure:"reddit_enabled"`
	TrendsEnabled       bool     `mapstructure:"trends_enabled"`
	AutocompleteEnabled bool     `mapstructure:"autocomplete_enabled"`
	NewsAPIEnabled      bool     `mapstructure:"newsapi_enabled"`
	CustomFeeds         []string `mapstructure:"custom_feeds"`
	RedditSubreddits    []string `mapstructure:"reddit_subreddits"`
}

// Scheduling holds run-trigger settings. The scheduler itself is an external
// collaborator; lookback_days feeds the news collector's date window.
type Scheduling struct {
	CollectionTime string `mapstructure:"collection_time"` // cron expression, default "0 2 * * *"
	SyncDay        string `mapstructure:"sync_day"`        // weekday, default "monday"
	LookbackDays   int    `mapstructure:"lookback_days"`   // default 7
}

// Reranker configures the cascaded reranking stage.
type Reranker struct {
	EnableVoyage     bool    `mapstructure:"enable_voyage"`
	Stage1Threshold  float64 `mapstructure:"stage1_threshold"`
	Stage2Threshold  float64 `mapstructure:"stage2_threshold"`
	Stage3FinalCount int     `mapstructure:"stage3_final_count"`
}

// Synthesizer configures article synthesis.
type Synthesizer struct {
	Strategy        string `mapstructure:"strategy"` // bm25_llm | llm_only
	MaxArticleWords int    `mapstructure:"max_article_words"`
}

// DeepResearch configures the multi-backend orchestrator.
type DeepResearch struct {
	MinSuccessfulBackends int `mapstructure:"min_successful_backends"`
}

// Backends holds API credentials for the research backends. Keys come from
// the environment when not present in the file.
type Backends struct {
	TavilyAPIKey     string `mapstructure:"tavily_api_key"`
	SearxNGBaseURL   string `mapstructure:"searxng_base_url"`
	TheNewsAPIKey    string `mapstructure:"thenewsapi_key"`
	GeminiAPIKey     string `mapstructure:"gemini_api_key"`
	GeminiModel      string `mapstructure:"gemini_model"`
	NotionAPIKey     string `mapstructure:"notion_api_key"`
	NotionDatabaseID string `mapstructure:"notion_database_id"`
	VoyageAPIKey     string `mapstructure:"voyage_api_key"`
}

// Defaults applied before unmarshalling.
func setDefaults(v *viper.Viper) {
	v.SetDefault("language", "en")
	v.SetDefault("collectors.rss_enabled", true)
	v.SetDefault("collectors.reddit_enabled", false)
	v.SetDefault("collectors.trends_enabled", false)
	v.SetDefault("collectors.autocomplete_enabled", false)
	v.SetDefault("collectors.newsapi_enabled", false)
	v.SetDefault("scheduling.collection_time", "0 2 * * *")
	v.SetDefault("scheduling.sync_day", "monday")
	v.SetDefault("scheduling.lookback_days", 7)
	v.SetDefault("reranker.enable_voyage", false)
	v.SetDefault("reranker.stage1_threshold", 0.0)
	v.SetDefault("reranker.stage2_threshold", 0.3)
	v.SetDefault("reranker.stage3_final_count", 25)
	v.SetDefault("synthesizer.strategy", "bm25_llm")
	v.SetDefault("synthesizer.max_article_words", 2000)
	v.SetDefault("deep_research.min_successful_backends", 1)
}

// Load reads a market config from the given YAML file. A missing path loads
// defaults plus environment overrides only. Top-level configs may be flat
// maps or nested objects with a .market sub-object carrying
// market/language/domain; both shapes are accepted.
func Load(path string) (*MarketConfig, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("SCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, statErr := os.Stat(path); statErr == nil {
				return nil, &ConfigError{Field: "file", Reason: err.Error()}
			}
			return nil, &ConfigError{Field: "file", Reason: fmt.Sprintf("config file not found: %s", path)}
		}
	}

	// Must run before Unmarshal: a map-typed market key fails string decoding.
	coerceNestedMarket(v)

	cfg := &MarketConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, &ConfigError{Field: "unmarshal", Reason: err.Error()}
	}

	applyEnvSecrets(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// coerceNestedMarket accepts configs shaped as {market: {market: "Germany",
// language: "de", domain: "..."}} in addition to the flat shape. The nested
// values are lifted onto the top-level keys, replacing the map.
func coerceNestedMarket(v *viper.Viper) {
	sub := v.Sub("market")
	if sub == nil {
		return
	}
	market := sub.GetString("market")
	language := sub.GetString("language")
	domain := sub.GetString("domain")

	v.Set("market", market)
	if language != "" {
		v.Set("language", language)
	}
	if domain != "" {
		v.Set("domain", domain)
	}
}

// applyEnvSecrets fills backend credentials from well-known environment
// variables when the file omits them.
func applyEnvSecrets(cfg *MarketConfig) {
	if cfg.Backends.GeminiAPIKey == "" {
		cfg.Backends.GeminiAPIKey = firstEnv("GEMINI_API_KEY", "GOOGLE_GEMINI_API_KEY", "GOOGLE_AI_API_KEY")
	}
	if cfg.Backends.TavilyAPIKey == "" {
		cfg.Backends.TavilyAPIKey = os.Getenv("TAVILY_API_KEY")
	}
	if cfg.Backends.TheNewsAPIKey == "" {
		cfg.Backends.TheNewsAPIKey = os.Getenv("THENEWSAPI_KEY")
	}
	if cfg.Backends.SearxNGBaseURL == "" {
		cfg.Backends.SearxNGBaseURL = os.Getenv("SEARXNG_BASE_URL")
	}
	if cfg.Backends.NotionAPIKey == "" {
		cfg.Backends.NotionAPIKey = os.Getenv("NOTION_API_KEY")
	}
	if cfg.Backends.VoyageAPIKey == "" {
		cfg.Backends.VoyageAPIKey = os.Getenv("VOYAGE_API_KEY")
	}
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

// Validate enforces startup invariants. Violations are ConfigErrors and
// abort the run.
func (c *MarketConfig) Validate() error {
	if c.Language == "" {
		return &ConfigError{Field: "language", Reason: "required"}
	}
	if len(c.Language) != 2 {
		return &ConfigError{Field: "language", Reason: fmt.Sprintf("expected ISO 639-1 code, got %q", c.Language)}
	}
	if c.Scheduling.LookbackDays < 0 {
		return &ConfigError{Field: "scheduling.lookback_days", Reason: "must be >= 0"}
	}
	if c.Reranker.Stage3FinalCount <= 0 {
		return &ConfigError{Field: "reranker.stage3_final_count", Reason: "must be > 0"}
	}
	switch c.Synthesizer.Strategy {
	case "bm25_llm", "llm_only":
	default:
		return &ConfigError{Field: "synthesizer.strategy", Reason: fmt.Sprintf("unknown strategy %q", c.Synthesizer.Strategy)}
	}
	if c.DeepResearch.MinSuccessfulBackends < 1 {
		return &ConfigError{Field: "deep_research.min_successful_backends", Reason: "must be >= 1"}
	}
	return nil
}
