package selection

import (
	"testing"
	"time"

	"github.com/mkoval/newsdesk/internal/store"
)

var testKey = Key{ChatID: 100, MessageID: 7, UserID: 42}

func testCandidates() []store.Article {
	return []store.Article{
		{ID: 1, Title: "first"},
		{ID: 2, Title: "second"},
		{ID: 3, Title: "third"},
	}
}

func TestRegistry_ToggleAndTake(t *testing.T) {
	r := NewRegistry(5 * time.Minute)
	r.Create(testKey, testCandidates())

	if chosen, ok := r.Toggle(testKey, 0); !ok || !chosen {
		t.Fatalf("first toggle = (%v, %v), want (true, true)", chosen, ok)
	}
	if chosen, ok := r.Toggle(testKey, 2); !ok || !chosen {
		t.Fatalf("toggle index 2 = (%v, %v)", chosen, ok)
	}
	// Toggle off again.
	if chosen, _ := r.Toggle(testKey, 0); chosen {
		t.Error("second toggle on same index should flip off")
	}

	articles, ok := r.Take(testKey)
	if !ok {
		t.Fatal("Take failed for live key")
	}
	if len(articles) != 1 || articles[0].Title != "third" {
		t.Errorf("Take returned %v, want only 'third'", articles)
	}

	if _, ok := r.Take(testKey); ok {
		t.Error("Take succeeded twice for the same key")
	}
}

func TestRegistry_ToggleInvalid(t *testing.T) {
	r := NewRegistry(5 * time.Minute)
	r.Create(testKey, testCandidates())

	if _, ok := r.Toggle(testKey, 10); ok {
		t.Error("toggle accepted out-of-range index")
	}
	if _, ok := r.Toggle(Key{ChatID: 1}, 0); ok {
		t.Error("toggle accepted unknown key")
	}
}

func TestRegistry_SelectAll(t *testing.T) {
	r := NewRegistry(5 * time.Minute)
	r.Create(testKey, testCandidates())

	if !r.SelectAll(testKey) {
		t.Fatal("SelectAll failed for live key")
	}
	articles, _ := r.Take(testKey)
	if len(articles) != 3 {
		t.Errorf("Take after SelectAll returned %d articles, want 3", len(articles))
	}
}

func TestRegistry_Cancel(t *testing.T) {
	r := NewRegistry(5 * time.Minute)
	r.Create(testKey, testCandidates())
	r.Cancel(testKey)

	if _, ok := r.Take(testKey); ok {
		t.Error("Take succeeded after Cancel")
	}
	// Cancelling again is a no-op.
	r.Cancel(testKey)
}

func TestRegistry_KeysAreIndependent(t *testing.T) {
	r := NewRegistry(5 * time.Minute)
	otherUser := Key{ChatID: 100, MessageID: 7, UserID: 43}

	r.Create(testKey, testCandidates())
	r.Create(otherUser, testCandidates())

	r.Toggle(testKey, 0)

	articles, _ := r.Take(otherUser)
	if len(articles) != 0 {
		t.Errorf("other user's selection affected: %v", articles)
	}
}

func TestRegistry_SweepTTL(t *testing.T) {
	r := NewRegistry(5 * time.Minute)

	created := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	now := created
	r.now = func() time.Time { return now }

	r.Create(testKey, testCandidates())

	// Still present at T+4min.
	now = created.Add(4 * time.Minute)
	if purged := r.Sweep(); purged != 0 {
		t.Errorf("sweep at T+4min purged %d, want 0", purged)
	}
	if _, ok := r.Chosen(testKey); !ok {
		t.Fatal("key missing at T+4min")
	}

	// Gone at T+6min.
	now = created.Add(6 * time.Minute)
	if purged := r.Sweep(); purged != 1 {
		t.Errorf("sweep at T+6min purged %d, want 1", purged)
	}
	if _, ok := r.Chosen(testKey); ok {
		t.Error("key still present at T+6min after sweep")
	}
}
