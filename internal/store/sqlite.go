package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps articles in a local SQLite database file. This is the
// default backend; it needs no external service.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has a single writer; one connection avoids lock churn and keeps
	// in-memory databases coherent.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	slog.Info("SQLite article store ready", "path", path)
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		url TEXT UNIQUE NOT NULL,
		source TEXT,
		published_at TEXT,
		summary TEXT,
		intent TEXT,
		emotion TEXT,
		full_text TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_articles_created_at ON articles(created_at);
	CREATE INDEX IF NOT EXISTS idx_articles_source ON articles(source);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Exists(url string) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM articles WHERE url = ?`, url).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check url: %w", err)
	}
	return count > 0, nil
}

func (s *SQLiteStore) Insert(a Article) (int64, error) {
	exists, err := s.Exists(a.URL)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, ErrDuplicateURL
	}

	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var publishedAt interface{}
	if a.PublishedAt != nil {
		publishedAt = a.PublishedAt.UTC().Format(createdAtLayout)
	}

	res, err := s.db.Exec(`
		INSERT INTO articles (title, url, source, published_at, summary, intent, emotion, full_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Title, a.URL, a.Source, publishedAt, a.Summary, a.Intent, a.Emotion, a.FullText,
		createdAt.UTC().Format(createdAtLayout),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return 0, ErrDuplicateURL
		}
		return 0, fmt.Errorf("failed to insert article: %w", err)
	}

	return res.LastInsertId()
}

func (s *SQLiteStore) Recent(limit int) ([]Article, error) {
	return s.query(`
		SELECT id, title, url, source, published_at, summary, intent, emotion, full_text, created_at
		FROM articles
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
}

func (s *SQLiteStore) BySource(source string, limit int) ([]Article, error) {
	return s.query(`
		SELECT id, title, url, source, published_at, summary, intent, emotion, full_text, created_at
		FROM articles
		WHERE source = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, source, limit)
}

func (s *SQLiteStore) Search(query string, limit int) ([]Article, error) {
	pattern := "%" + strings.ToLower(query) + "%"
	return s.query(`
		SELECT id, title, url, source, published_at, summary, intent, emotion, full_text, created_at
		FROM articles
		WHERE LOWER(title) LIKE ? OR LOWER(summary) LIKE ? OR LOWER(full_text) LIKE ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, pattern, pattern, pattern, limit)
}

func (s *SQLiteStore) ByIDs(ids []int64) ([]Article, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	articles, err := s.query(fmt.Sprintf(`
		SELECT id, title, url, source, published_at, summary, intent, emotion, full_text, created_at
		FROM articles
		WHERE id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, err
	}
	return orderByIDs(articles, ids), nil
}

func (s *SQLiteStore) Stats() (Stats, error) {
	var stats Stats

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM articles`).Scan(&stats.TotalArticles); err != nil {
		return stats, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(DISTINCT source) FROM articles`).Scan(&stats.UniqueSources); err != nil {
		return stats, err
	}

	var latest sql.NullString
	err := s.db.QueryRow(`SELECT MAX(created_at) FROM articles`).Scan(&latest)
	if err != nil {
		return stats, err
	}
	if latest.Valid {
		if t, err := time.Parse(createdAtLayout, latest.String); err == nil {
			stats.LatestUpdate = &t
		}
	}

	return stats, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) query(q string, args ...interface{}) ([]Article, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		var a Article
		var publishedAt, createdAt sql.NullString
		if err := rows.Scan(&a.ID, &a.Title, &a.URL, &a.Source, &publishedAt,
			&a.Summary, &a.Intent, &a.Emotion, &a.FullText, &createdAt); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}

		if publishedAt.Valid {
			if t, err := time.Parse(createdAtLayout, publishedAt.String); err == nil {
				a.PublishedAt = &t
			}
		}
		if createdAt.Valid {
			if t, err := time.Parse(createdAtLayout, createdAt.String); err == nil {
				a.CreatedAt = t
			}
		}
		articles = append(articles, a)
	}

	return articles, rows.Err()
}
