package selection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mkoval/newsdesk/internal/store"
)

// Key identifies one in-progress interactive selection. Keyed per user per
// message, so two users picking from the same prompt never collide.
type Key struct {
	ChatID    int64
	MessageID int
	UserID    int64
}

// pendingSelection is the candidate list plus the indices chosen so far.
type pendingSelection struct {
	articles  []store.Article
	chosen    map[int]bool
	createdAt time.Time
}

// Registry tracks pending interactive selections with a TTL. Abandoned
// selections are purged by a periodic sweep, decoupled from the request
// path.
type Registry struct {
	mu      sync.Mutex
	pending map[Key]*pendingSelection
	ttl     time.Duration

	now func() time.Time // swapped in tests
}

func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		pending: make(map[Key]*pendingSelection),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Create registers a new pending selection, replacing any previous one under
// the same key.
func (r *Registry) Create(key Key, articles []store.Article) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending[key] = &pendingSelection{
		articles:  articles,
		chosen:    make(map[int]bool),
		createdAt: r.now(),
	}
}

// Toggle flips the chosen state of one candidate index. Returns the new
// state and whether the key (and index) was valid. Toggles are idempotent
// set flips, so a double-tap just restores the previous state.
func (r *Registry) Toggle(key Key, index int) (chosen, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sel, exists := r.pending[key]
	if !exists || index < 0 || index >= len(sel.articles) {
		return false, false
	}

	sel.chosen[index] = !sel.chosen[index]
	return sel.chosen[index], true
}

// SelectAll marks every candidate chosen.
func (r *Registry) SelectAll(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sel, exists := r.pending[key]
	if !exists {
		return false
	}
	for i := range sel.articles {
		sel.chosen[i] = true
	}
	return true
}

// Chosen returns the currently chosen articles in candidate order, without
// resolving the selection.
func (r *Registry) Chosen(key Key) ([]store.Article, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sel, exists := r.pending[key]
	if !exists {
		return nil, false
	}
	return chosenArticles(sel), true
}

// Candidates returns the full candidate list for a pending selection.
func (r *Registry) Candidates(key Key) ([]store.Article, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sel, exists := r.pending[key]
	if !exists {
		return nil, false
	}
	out := make([]store.Article, len(sel.articles))
	copy(out, sel.articles)
	return out, true
}

// Take resolves the selection: returns the chosen articles and removes the
// key. The second return is false if the key was unknown or expired.
func (r *Registry) Take(key Key) ([]store.Article, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sel, exists := r.pending[key]
	if !exists {
		return nil, false
	}
	delete(r.pending, key)
	return chosenArticles(sel), true
}

// Cancel discards a pending selection. Removing an already-resolved key is
// a no-op.
func (r *Registry) Cancel(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, key)
}

// Sweep removes selections older than the TTL, returning how many were
// purged.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.ttl)
	purged := 0
	for key, sel := range r.pending {
		if sel.createdAt.Before(cutoff) {
			delete(r.pending, key)
			purged++
		}
	}
	if purged > 0 {
		slog.Debug("Swept expired selections", "count", purged)
	}
	return purged
}

// StartSweeper runs Sweep on a fixed interval until ctx is done.
func (r *Registry) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep()
			}
		}
	}()
}

func chosenArticles(sel *pendingSelection) []store.Article {
	var out []store.Article
	for i, a := range sel.articles {
		if sel.chosen[i] {
			out = append(out, a)
		}
	}
	return out
}
