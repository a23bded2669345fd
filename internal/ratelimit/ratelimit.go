package ratelimit

import (
	"log/slog"
	"sync"
	"time"
)

// AIRateLimiter caps daily LLM usage so a chatty channel cannot burn the
// whole API budget. Counts reset every 24 hours.
type AIRateLimiter struct {
	mu          sync.Mutex
	openaiCount int
	geminiCount int
	totalCount  int
	maxOpenAI   int
	maxGemini   int
	maxTotal    int
	resetTime   time.Time
	cacheHits   int
	cacheMisses int
}

// NewAIRateLimiter creates a limiter with per-provider and total ceilings.
// A ceiling of 0 means unlimited.
func NewAIRateLimiter(maxOpenAI, maxGemini, maxTotal int) *AIRateLimiter {
	return &AIRateLimiter{
		maxOpenAI: maxOpenAI,
		maxGemini: maxGemini,
		maxTotal:  maxTotal,
		resetTime: time.Now().Add(24 * time.Hour),
	}
}

// CanUseOpenAI checks if an OpenAI request fits the budget.
func (rl *AIRateLimiter) CanUseOpenAI() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.checkReset()

	if rl.maxOpenAI > 0 && rl.openaiCount >= rl.maxOpenAI {
		slog.Warn("OpenAI rate limit reached", "count", rl.openaiCount, "max", rl.maxOpenAI)
		return false
	}
	return rl.canUseTotal()
}

// CanUseGemini checks if a Gemini request fits the budget.
func (rl *AIRateLimiter) CanUseGemini() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.checkReset()

	if rl.maxGemini > 0 && rl.geminiCount >= rl.maxGemini {
		slog.Warn("Gemini rate limit reached", "count", rl.geminiCount, "max", rl.maxGemini)
		return false
	}
	return rl.canUseTotal()
}

func (rl *AIRateLimiter) canUseTotal() bool {
	if rl.maxTotal > 0 && rl.totalCount >= rl.maxTotal {
		slog.Warn("total AI rate limit reached", "count", rl.totalCount, "max", rl.maxTotal)
		return false
	}
	return true
}

// RecordOpenAI counts one OpenAI request against the budget.
func (rl *AIRateLimiter) RecordOpenAI() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.openaiCount++
	rl.totalCount++
}

// RecordGemini counts one Gemini request against the budget.
func (rl *AIRateLimiter) RecordGemini() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.geminiCount++
	rl.totalCount++
}

// RecordCacheHit tracks a request served from the analysis cache.
func (rl *AIRateLimiter) RecordCacheHit() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.cacheHits++
}

// RecordCacheMiss tracks a request that had to go to a provider.
func (rl *AIRateLimiter) RecordCacheMiss() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.cacheMisses++
}

// Stats returns current usage for the monitoring endpoint.
func (rl *AIRateLimiter) Stats() map[string]int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return map[string]int{
		"openai_requests": rl.openaiCount,
		"gemini_requests": rl.geminiCount,
		"total_requests":  rl.totalCount,
		"cache_hits":      rl.cacheHits,
		"cache_misses":    rl.cacheMisses,
	}
}

func (rl *AIRateLimiter) checkReset() {
	if time.Now().After(rl.resetTime) {
		rl.openaiCount = 0
		rl.geminiCount = 0
		rl.totalCount = 0
		rl.resetTime = time.Now().Add(24 * time.Hour)
		slog.Info("AI rate limit counters reset")
	}
}
