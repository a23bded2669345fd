// Package scheduler orchestrates the fetch cycle: pull feeds, drop known
// articles, apply source caps, scrape, analyze, store. At most one cycle
// runs at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mkoval/newsdesk/internal/metrics"
	"github.com/mkoval/newsdesk/internal/selection"
	"github.com/mkoval/newsdesk/internal/store"
)

// ErrFetchInProgress means a cycle is already running; the trigger is
// rejected, not queued.
var ErrFetchInProgress = errors.New("fetch cycle already in progress")

// ErrTooSoon means the automatic minimum interval has not elapsed. Manual
// runs bypass this guard.
var ErrTooSoon = errors.New("fetch interval has not elapsed")

// Analyzer is the analysis stage of the pipeline.
type Analyzer interface {
	AnalyzeBatch(ctx context.Context, articles []store.Article) []store.Article
}

// Scheduler runs fetch cycles on a timer and on demand.
type Scheduler struct {
	store       store.Store
	policy      selection.Policy
	analyzer    Analyzer
	interval    time.Duration
	startupSkip time.Duration
	scrapeMax   int

	// FetchFunc pulls the raw article pool from all configured feeds.
	FetchFunc func(ctx context.Context) []store.Article
	// ExtractFunc scrapes one article's body text.
	ExtractFunc func(ctx context.Context, url string) (string, error)

	mu         sync.Mutex
	inFlight   bool
	lastAuto   time.Time
	lastManual time.Time

	cancel context.CancelFunc
}

func New(s store.Store, policy selection.Policy, analyzer Analyzer, interval, startupSkip time.Duration, scrapeMax int) *Scheduler {
	return &Scheduler{
		store:       s,
		policy:      policy,
		analyzer:    analyzer,
		interval:    interval,
		startupSkip: startupSkip,
		scrapeMax:   scrapeMax,
	}
}

// Start launches the interval loop. The startup run is skipped when the
// store was already updated recently, so a restart does not immediately
// re-fetch.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	if s.shouldRunAtStartup() {
		if _, err := s.Run(ctx, false); err != nil {
			slog.Error("Startup fetch failed", "error", err)
		}
	} else {
		slog.Info("Skipping startup fetch, store is fresh", "window", s.startupSkip)
	}

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Run(ctx, false); err != nil {
					slog.Warn("Scheduled fetch skipped", "error", err)
				}
			}
		}
	}()
}

// Stop halts the interval loop. An in-flight cycle finishes on its own.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Scheduler) shouldRunAtStartup() bool {
	stats, err := s.store.Stats()
	if err != nil {
		slog.Warn("Could not read store stats at startup", "error", err)
		return true
	}
	if stats.LatestUpdate == nil {
		return true
	}
	return time.Since(*stats.LatestUpdate) > s.startupSkip
}

// Run executes one fetch cycle and returns how many articles were stored.
// force bypasses the minimum-interval guard (manual /update). Concurrent
// calls while a cycle is running get ErrFetchInProgress.
func (s *Scheduler) Run(ctx context.Context, force bool) (int, error) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return 0, ErrFetchInProgress
	}
	if !force && !s.lastAuto.IsZero() && time.Since(s.lastAuto) < s.interval {
		s.mu.Unlock()
		return 0, ErrTooSoon
	}
	s.inFlight = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	start := time.Now()
	stored, err := s.runCycle(ctx)

	s.mu.Lock()
	if force {
		s.lastManual = time.Now()
	} else {
		s.lastAuto = time.Now()
	}
	s.mu.Unlock()

	if err != nil {
		metrics.Global.SetError(err.Error())
		return stored, err
	}

	metrics.Global.RecordCycleTime(time.Since(start))
	metrics.Global.SetLastRun()
	slog.Info("Fetch cycle complete", "stored", stored, "took", time.Since(start))
	return stored, nil
}

func (s *Scheduler) runCycle(ctx context.Context) (int, error) {
	if s.FetchFunc == nil {
		return 0, fmt.Errorf("no fetch function configured")
	}

	pool := s.FetchFunc(ctx)
	metrics.Global.AddArticlesFetched(len(pool))
	slog.Info("Fetched article pool", "count", len(pool))

	fresh := s.dedup(pool)
	selected := s.policy.SelectForStorage(fresh)
	selected = s.scrape(ctx, selected)
	analyzed := s.analyzer.AnalyzeBatch(ctx, selected)

	stored := 0
	for _, article := range analyzed {
		if _, err := s.store.Insert(article); err != nil {
			if errors.Is(err, store.ErrDuplicateURL) {
				metrics.Global.IncrementDuplicatesSkipped()
				continue
			}
			slog.Error("Failed to store article", "url", article.URL, "error", err)
			continue
		}
		stored++
	}

	metrics.Global.AddArticlesStored(stored)
	return stored, nil
}

// dedup drops articles whose URL the store already knows, and duplicates
// within the pool itself. An Exists error keeps the article; Insert will
// settle it.
func (s *Scheduler) dedup(pool []store.Article) []store.Article {
	seen := make(map[string]bool, len(pool))
	var fresh []store.Article

	for _, article := range pool {
		if seen[article.URL] {
			metrics.Global.IncrementDuplicatesSkipped()
			continue
		}
		seen[article.URL] = true

		exists, err := s.store.Exists(article.URL)
		if err != nil {
			slog.Warn("Existence check failed", "url", article.URL, "error", err)
			fresh = append(fresh, article)
			continue
		}
		if exists {
			metrics.Global.IncrementDuplicatesSkipped()
			continue
		}
		fresh = append(fresh, article)
	}

	slog.Info("Deduplicated pool", "in", len(pool), "fresh", len(fresh))
	return fresh
}

// scrape fills in full text for up to scrapeMax articles. An article with
// no scraped text keeps its feed summary as analysis input; one with
// neither is dropped.
func (s *Scheduler) scrape(ctx context.Context, articles []store.Article) []store.Article {
	kept := make([]store.Article, 0, len(articles))

	for i, article := range articles {
		if s.ExtractFunc != nil && i < s.scrapeMax {
			text, err := s.ExtractFunc(ctx, article.URL)
			if err != nil {
				slog.Debug("Scrape failed", "url", article.URL, "error", err)
			} else {
				article.FullText = text
			}
		}

		if article.FullText == "" && article.Summary == "" {
			metrics.Global.IncrementExtractionFailures()
			slog.Warn("Dropping article with no text", "url", article.URL)
			continue
		}
		kept = append(kept, article)
	}

	return kept
}

// LastFetchInfo reports scheduler state for the /stats command.
func (s *Scheduler) LastFetchInfo() (lastAuto, lastManual time.Time, inFlight bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAuto, s.lastManual, s.inFlight
}
