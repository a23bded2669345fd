// Package store persists article records keyed by URL.
package store

import (
	"errors"
	"strings"
	"time"
)

// ErrDuplicateURL is returned by Insert when the URL is already stored.
// Callers treat it as "skip, not new".
var ErrDuplicateURL = errors.New("article url already exists")

// Article is one fetched news article. URL is the natural identity; ID is
// assigned by the store at insertion and never reused. Summary, Intent and
// Emotion start as the feed-provided values (or empty) and are set once by
// analysis.
type Article struct {
	ID          int64
	Title       string
	URL         string
	Source      string
	PublishedAt *time.Time
	Summary     string
	Intent      string
	Emotion     string
	FullText    string
	CreatedAt   time.Time
}

// Stats summarizes the stored collection.
type Stats struct {
	TotalArticles int
	UniqueSources int
	LatestUpdate  *time.Time
}

// Store is the article collection contract. All read operations are pure
// queries ordered by insertion recency; only Insert writes.
type Store interface {
	Exists(url string) (bool, error)
	Insert(a Article) (int64, error)
	Recent(limit int) ([]Article, error)
	BySource(source string, limit int) ([]Article, error)
	Search(query string, limit int) ([]Article, error)
	ByIDs(ids []int64) ([]Article, error)
	Stats() (Stats, error)
	Close() error
}

// Open picks a backend from the DSN: postgres:// connection strings get the
// Postgres store, anything else is treated as a SQLite file path.
func Open(dsn string) (Store, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return OpenPostgres(dsn)
	}
	return OpenSQLite(dsn)
}

// createdAtLayout is fixed-width so lexicographic order in SQLite matches
// chronological order.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z"

// orderByIDs reorders query results into the order ids were requested in.
// Callers pass ranked id lists; request order is the ranking.
func orderByIDs(articles []Article, ids []int64) []Article {
	byID := make(map[int64]Article, len(articles))
	for _, a := range articles {
		byID[a.ID] = a
	}

	ordered := make([]Article, 0, len(articles))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			ordered = append(ordered, a)
			delete(byID, id)
		}
	}
	return ordered
}
