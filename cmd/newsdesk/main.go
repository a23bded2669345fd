package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mkoval/newsdesk/internal/analyst"
	"github.com/mkoval/newsdesk/internal/cache"
	"github.com/mkoval/newsdesk/internal/config"
	"github.com/mkoval/newsdesk/internal/logger"
	"github.com/mkoval/newsdesk/internal/metrics"
	"github.com/mkoval/newsdesk/internal/ratelimit"
	"github.com/mkoval/newsdesk/internal/responder"
	"github.com/mkoval/newsdesk/internal/rss"
	"github.com/mkoval/newsdesk/internal/scheduler"
	"github.com/mkoval/newsdesk/internal/scraper"
	"github.com/mkoval/newsdesk/internal/selection"
	"github.com/mkoval/newsdesk/internal/store"
	"github.com/mkoval/newsdesk/internal/telegram"
)

func main() {
	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	if os.Getenv("ENABLE_HTTP_MONITORING") == "true" {
		go startMonitoringServer()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	articleStore, err := store.Open(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("Store error: %v", err)
	}
	defer articleStore.Close()

	feeds, err := rss.LoadFeeds(cfg.FeedsConfigPath)
	if err != nil {
		log.Fatalf("Feeds config error: %v", err)
	}

	analysisCache := cache.New()
	analysisCache.StartCleanup(ctx, time.Hour)

	limiter := ratelimit.NewAIRateLimiter(cfg.MaxAnalysisRequests, cfg.MaxAnalysisRequests, cfg.MaxAnalysisRequests)

	primary := analyst.NewOpenAIProvider(cfg.OpenAIKey, cfg.OpenAIModel)
	var fallback analyst.Completer
	if cfg.GeminiAPIKey != "" {
		gemini, err := analyst.NewGeminiProvider(ctx, cfg.GeminiAPIKey)
		if err != nil {
			logger.Warn("Gemini fallback unavailable", "error", err)
		} else {
			defer gemini.Close()
			fallback = gemini
		}
	}
	ai := analyst.New(primary, fallback, analysisCache, limiter)

	policy := selection.Policy{
		PrimarySources: cfg.PrimarySources,
		PrimaryCap:     cfg.PrimarySourceCap,
		SecondaryCap:   cfg.SecondarySourceCap,
	}

	fetcher := rss.NewFetcher()
	pageScraper := scraper.New(cfg.RequestTimeout)

	var newsAPI *rss.NewsAPIClient
	if cfg.NewsAPIKey != "" {
		newsAPI = rss.NewNewsAPIClient(cfg.NewsAPIKey, cfg.NewsAPIQuery)
	}

	sched := scheduler.New(articleStore, policy, ai, cfg.FetchInterval, cfg.StartupSkipWindow, cfg.ScrapeMaxArticles)
	sched.FetchFunc = func(ctx context.Context) []store.Article {
		pool := fetcher.FetchAll(feeds)
		if newsAPI != nil {
			extra, err := newsAPI.Fetch(ctx, 20)
			if err != nil {
				logger.Warn("NewsAPI fetch failed", "error", err)
			} else {
				pool = append(pool, extra...)
			}
		}
		return pool
	}
	sched.ExtractFunc = pageScraper.ExtractFullText

	registry := selection.NewRegistry(cfg.SelectionTTL)
	registry.StartSweeper(ctx, time.Minute)

	resp := responder.New(articleStore, ai, policy, cfg.RelevanceMaxCount, cfg.RelevanceCandidateLimit)

	client := telegram.NewClient(cfg.TelegramToken)
	bot := telegram.NewBot(client, articleStore, ai, resp, sched, registry, policy, pageScraper)

	sched.Start(ctx)
	defer sched.Stop()

	logger.Info("newsdesk starting", "interval", cfg.FetchInterval, "store", cfg.DatabaseDSN)
	if err := bot.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("Bot error: %v", err)
	}
	logger.Info("newsdesk stopped")
}

func startMonitoringServer() {
	port := os.Getenv("MONITORING_PORT")
	if port == "" {
		port = "8080"
	}

	http.HandleFunc("/health", healthHandler)
	http.HandleFunc("/metrics", metricsHandler)

	log.Printf("Starting monitoring server on port %s", port)
	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Printf("Monitoring server error: %v", err)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	stats := metrics.Global.GetStats()

	status := "ok"
	if !stats["is_healthy"].(bool) {
		status = "error"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	response := map[string]interface{}{
		"status":     status,
		"last_run":   stats["last_run_time"],
		"last_error": stats["last_error"],
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func metricsHandler(w http.ResponseWriter, r *http.Request) {
	stats := metrics.Global.GetStats()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}
