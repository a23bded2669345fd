package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all settings for the bot, loaded from environment variables.
type Config struct {
	// Telegram settings
	TelegramToken string

	// LLM settings
	OpenAIKey           string
	OpenAIModel         string
	GeminiAPIKey        string // optional fallback provider
	MaxAnalysisRequests int    // daily budget across providers (0 = unlimited)

	// Storage settings
	DatabaseDSN string // postgres:// DSN or a SQLite file path

	// Feed settings
	FeedsConfigPath string
	NewsAPIKey      string // optional extra source
	NewsAPIQuery    string

	// Fetch pipeline settings
	FetchInterval      time.Duration
	StartupSkipWindow  time.Duration // skip the startup run if the store is fresher than this
	PrimarySources     []string
	PrimarySourceCap   int
	SecondarySourceCap int
	ScrapeMaxArticles  int

	// Q&A settings
	RelevanceMaxCount       int
	RelevanceCandidateLimit int

	// Interactive selection settings
	SelectionTTL time.Duration

	// App settings
	RequestTimeout time.Duration
	Debug          bool
}

// Primary-tier outlets for the storage caps and relevance bias. The set the
// original deployment converged on; override with PRIMARY_SOURCES.
var defaultPrimarySources = []string{
	"CNN", "Fox News", "New York Times", "Washington Post",
	"NBC News", "ABC News", "NPR", "Reuters",
}

func Load() (*Config, error) {
	cfg := &Config{
		OpenAIModel:             "gpt-4o-mini",
		DatabaseDSN:             "newsdesk.db",
		FeedsConfigPath:         "configs/feeds.yaml",
		NewsAPIQuery:            "technology",
		FetchInterval:           24 * time.Hour,
		StartupSkipWindow:       6 * time.Hour,
		PrimarySources:          defaultPrimarySources,
		PrimarySourceCap:        12,
		SecondarySourceCap:      5,
		ScrapeMaxArticles:       40,
		RelevanceMaxCount:       3,
		RelevanceCandidateLimit: 50,
		SelectionTTL:            5 * time.Minute,
		RequestTimeout:          30 * time.Second,
	}

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	cfg.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.NewsAPIKey = os.Getenv("NEWSAPI_KEY")

	cfg.OpenAIModel = getEnvOrDefault("OPENAI_MODEL", cfg.OpenAIModel)
	cfg.DatabaseDSN = getEnvOrDefault("DATABASE_DSN", cfg.DatabaseDSN)
	cfg.FeedsConfigPath = getEnvOrDefault("FEEDS_CONFIG_PATH", cfg.FeedsConfigPath)
	cfg.NewsAPIQuery = getEnvOrDefault("NEWSAPI_QUERY", cfg.NewsAPIQuery)

	if hours := getEnvIntOrDefault("FETCH_INTERVAL_HOURS", 24); hours > 0 {
		cfg.FetchInterval = time.Duration(hours) * time.Hour
	}
	cfg.MaxAnalysisRequests = getEnvIntOrDefault("MAX_ANALYSIS_REQUESTS", 200)
	cfg.PrimarySourceCap = getEnvIntOrDefault("PRIMARY_SOURCE_CAP", cfg.PrimarySourceCap)
	cfg.SecondarySourceCap = getEnvIntOrDefault("SECONDARY_SOURCE_CAP", cfg.SecondarySourceCap)
	cfg.ScrapeMaxArticles = getEnvIntOrDefault("SCRAPE_MAX_ARTICLES", cfg.ScrapeMaxArticles)
	cfg.RelevanceMaxCount = getEnvIntOrDefault("RELEVANCE_MAX_COUNT", cfg.RelevanceMaxCount)
	cfg.RelevanceCandidateLimit = getEnvIntOrDefault("RELEVANCE_CANDIDATE_LIMIT", cfg.RelevanceCandidateLimit)

	if v := os.Getenv("PRIMARY_SOURCES"); v != "" {
		var sources []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				sources = append(sources, s)
			}
		}
		if len(sources) > 0 {
			cfg.PrimarySources = sources
		}
	}

	if v := os.Getenv("SELECTION_TTL_MINUTES"); v != "" {
		if val, err := strconv.Atoi(v); err == nil && val > 0 {
			cfg.SelectionTTL = time.Duration(val) * time.Minute
		}
	}

	if os.Getenv("DEBUG") == "true" {
		cfg.Debug = true
	}

	return cfg, cfg.Validate()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil && intValue >= 0 {
			return intValue
		}
	}
	return defaultValue
}

// Validate reports missing required credentials. A failure here is fatal:
// the process must not start without them.
func (c *Config) Validate() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	if c.OpenAIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.PrimarySourceCap <= 0 || c.SecondarySourceCap <= 0 {
		return fmt.Errorf("source caps must be positive")
	}
	return nil
}

// IsPrimarySource reports whether the outlet is in the primary tier.
func (c *Config) IsPrimarySource(source string) bool {
	for _, s := range c.PrimarySources {
		if s == source {
			return true
		}
	}
	return false
}
