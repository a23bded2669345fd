package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mkoval/newsdesk/internal/selection"
	"github.com/mkoval/newsdesk/internal/store"
)

type memStore struct {
	mu       sync.Mutex
	articles map[string]store.Article
	nextID   int64
}

func newMemStore() *memStore {
	return &memStore{articles: make(map[string]store.Article)}
}

func (m *memStore) Exists(url string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.articles[url]
	return ok, nil
}

func (m *memStore) Insert(a store.Article) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.articles[a.URL]; ok {
		return 0, store.ErrDuplicateURL
	}
	m.nextID++
	a.ID = m.nextID
	m.articles[a.URL] = a
	return a.ID, nil
}

func (m *memStore) Recent(limit int) ([]store.Article, error)             { return nil, nil }
func (m *memStore) BySource(s string, limit int) ([]store.Article, error) { return nil, nil }
func (m *memStore) Search(q string, limit int) ([]store.Article, error)   { return nil, nil }
func (m *memStore) ByIDs(ids []int64) ([]store.Article, error)            { return nil, nil }
func (m *memStore) Stats() (store.Stats, error)                           { return store.Stats{}, nil }
func (m *memStore) Close() error                                          { return nil }

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.articles)
}

type passAnalyzer struct{}

func (passAnalyzer) AnalyzeBatch(ctx context.Context, articles []store.Article) []store.Article {
	return articles
}

func testScheduler(s store.Store) *Scheduler {
	policy := selection.Policy{
		PrimarySources: []string{"CNN"},
		PrimaryCap:     12,
		SecondaryCap:   5,
	}
	return New(s, policy, passAnalyzer{}, time.Hour, 6*time.Hour, 40)
}

func TestRun_DedupAgainstStore(t *testing.T) {
	ms := newMemStore()
	if _, err := ms.Insert(store.Article{Title: "a", URL: "A", Source: "CNN", Summary: "s"}); err != nil {
		t.Fatal(err)
	}

	sched := testScheduler(ms)
	sched.FetchFunc = func(ctx context.Context) []store.Article {
		return []store.Article{
			{Title: "a", URL: "A", Source: "CNN", Summary: "s"},
			{Title: "b", URL: "B", Source: "CNN", Summary: "s"},
		}
	}

	stored, err := sched.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stored != 1 {
		t.Errorf("stored = %d, want only the unknown article", stored)
	}
	if ms.count() != 2 {
		t.Errorf("store holds %d articles, want 2", ms.count())
	}
}

func TestRun_RejectsConcurrentCycle(t *testing.T) {
	ms := newMemStore()
	sched := testScheduler(ms)

	started := make(chan struct{})
	release := make(chan struct{})
	sched.FetchFunc = func(ctx context.Context) []store.Article {
		close(started)
		<-release
		return nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := sched.Run(context.Background(), true)
		done <- err
	}()

	<-started
	if _, err := sched.Run(context.Background(), true); !errors.Is(err, ErrFetchInProgress) {
		t.Errorf("concurrent run err = %v, want ErrFetchInProgress", err)
	}
	close(release)

	if err := <-done; err != nil {
		t.Errorf("first run failed: %v", err)
	}
}

func TestRun_IntervalGuard(t *testing.T) {
	ms := newMemStore()
	sched := testScheduler(ms)
	sched.FetchFunc = func(ctx context.Context) []store.Article { return nil }

	if _, err := sched.Run(context.Background(), false); err != nil {
		t.Fatalf("first auto run: %v", err)
	}
	if _, err := sched.Run(context.Background(), false); !errors.Is(err, ErrTooSoon) {
		t.Errorf("second auto run err = %v, want ErrTooSoon", err)
	}
	// Manual run bypasses the guard.
	if _, err := sched.Run(context.Background(), true); err != nil {
		t.Errorf("manual run err = %v, want nil", err)
	}
}

func TestRun_DropsArticlesWithNoText(t *testing.T) {
	ms := newMemStore()
	sched := testScheduler(ms)
	sched.FetchFunc = func(ctx context.Context) []store.Article {
		return []store.Article{
			{Title: "scraped", URL: "A", Source: "CNN"},
			{Title: "summary only", URL: "B", Source: "CNN", Summary: "s"},
			{Title: "nothing", URL: "C", Source: "CNN"},
		}
	}
	sched.ExtractFunc = func(ctx context.Context, url string) (string, error) {
		if url == "A" {
			return "full body", nil
		}
		return "", errors.New("no content")
	}

	stored, err := sched.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stored != 2 {
		t.Errorf("stored = %d, want 2 (textless article dropped)", stored)
	}
	if ok, _ := ms.Exists("C"); ok {
		t.Error("article with no text was stored")
	}
}

func TestRun_AppliesSourceCaps(t *testing.T) {
	ms := newMemStore()
	sched := testScheduler(ms)
	sched.FetchFunc = func(ctx context.Context) []store.Article {
		var pool []store.Article
		for i := 0; i < 20; i++ {
			pool = append(pool, store.Article{
				Title: "c", URL: string(rune('a' + i)), Source: "CNN", Summary: "s",
			})
		}
		return pool
	}

	stored, err := sched.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stored != 12 {
		t.Errorf("stored = %d, want primary cap of 12", stored)
	}
}

func TestLastFetchInfo(t *testing.T) {
	ms := newMemStore()
	sched := testScheduler(ms)
	sched.FetchFunc = func(ctx context.Context) []store.Article { return nil }

	if _, err := sched.Run(context.Background(), true); err != nil {
		t.Fatal(err)
	}
	lastAuto, lastManual, inFlight := sched.LastFetchInfo()
	if !lastAuto.IsZero() {
		t.Error("manual run updated the automatic timestamp")
	}
	if lastManual.IsZero() {
		t.Error("manual run did not record its timestamp")
	}
	if inFlight {
		t.Error("inFlight still set after run")
	}
}
