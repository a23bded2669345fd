package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	ArticlesFetched    int64
	ArticlesStored     int64
	DuplicatesSkipped  int64
	AnalysesCompleted  int64
	AnalysesFailed     int64
	QuestionsAnswered  int64
	MessagesSent       int64
	ExtractionFailures int64

	// Timings
	LastCycleTime    time.Duration
	TotalCycleTime   time.Duration
	CycleCount       int64
	AverageCycleTime time.Duration

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = &Metrics{IsHealthy: true}

func (m *Metrics) AddArticlesFetched(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ArticlesFetched += int64(n)
}

func (m *Metrics) AddArticlesStored(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ArticlesStored += int64(n)
}

func (m *Metrics) IncrementDuplicatesSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DuplicatesSkipped++
}

func (m *Metrics) IncrementAnalysesCompleted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AnalysesCompleted++
}

func (m *Metrics) IncrementAnalysesFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AnalysesFailed++
}

func (m *Metrics) IncrementQuestionsAnswered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QuestionsAnswered++
}

func (m *Metrics) IncrementMessagesSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesSent++
}

func (m *Metrics) IncrementExtractionFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExtractionFailures++
}

func (m *Metrics) RecordCycleTime(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastCycleTime = duration
	m.TotalCycleTime += duration
	m.CycleCount++

	if m.CycleCount > 0 {
		m.AverageCycleTime = m.TotalCycleTime / time.Duration(m.CycleCount)
	}
}

func (m *Metrics) SetLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"articles_fetched":      m.ArticlesFetched,
		"articles_stored":       m.ArticlesStored,
		"duplicates_skipped":    m.DuplicatesSkipped,
		"analyses_completed":    m.AnalysesCompleted,
		"analyses_failed":       m.AnalysesFailed,
		"questions_answered":    m.QuestionsAnswered,
		"messages_sent":         m.MessagesSent,
		"extraction_failures":   m.ExtractionFailures,
		"last_cycle_time_ms":    m.LastCycleTime.Milliseconds(),
		"average_cycle_time_ms": m.AverageCycleTime.Milliseconds(),
		"last_run_time":         m.LastRunTime.Format(time.RFC3339),
		"last_error_time":       m.LastErrorTime.Format(time.RFC3339),
		"last_error":            m.LastError,
		"is_healthy":            m.IsHealthy,
	}
}
