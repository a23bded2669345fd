package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"
)

// PostgresStore keeps articles in PostgreSQL, for deployments that already
// run one. Selected automatically when the DSN is a postgres:// URL.
type PostgresStore struct {
	db *sql.DB
}

func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	slog.Info("PostgreSQL article store ready")
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		id BIGSERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		url TEXT UNIQUE NOT NULL,
		source TEXT,
		published_at TIMESTAMPTZ,
		summary TEXT,
		intent TEXT,
		emotion TEXT,
		full_text TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_articles_created_at ON articles(created_at);
	CREATE INDEX IF NOT EXISTS idx_articles_source ON articles(source);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Exists(url string) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM articles WHERE url = $1`, url).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check url: %w", err)
	}
	return count > 0, nil
}

func (s *PostgresStore) Insert(a Article) (int64, error) {
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var publishedAt interface{}
	if a.PublishedAt != nil {
		publishedAt = *a.PublishedAt
	}

	var id int64
	err := s.db.QueryRow(`
		INSERT INTO articles (title, url, source, published_at, summary, intent, emotion, full_text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		a.Title, a.URL, a.Source, publishedAt, a.Summary, a.Intent, a.Emotion, a.FullText, createdAt,
	).Scan(&id)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return 0, ErrDuplicateURL
		}
		return 0, fmt.Errorf("failed to insert article: %w", err)
	}

	return id, nil
}

func (s *PostgresStore) Recent(limit int) ([]Article, error) {
	return s.query(`
		SELECT id, title, url, source, published_at, summary, intent, emotion, full_text, created_at
		FROM articles
		ORDER BY created_at DESC, id DESC
		LIMIT $1`, limit)
}

func (s *PostgresStore) BySource(source string, limit int) ([]Article, error) {
	return s.query(`
		SELECT id, title, url, source, published_at, summary, intent, emotion, full_text, created_at
		FROM articles
		WHERE source = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, source, limit)
}

func (s *PostgresStore) Search(query string, limit int) ([]Article, error) {
	pattern := "%" + query + "%"
	return s.query(`
		SELECT id, title, url, source, published_at, summary, intent, emotion, full_text, created_at
		FROM articles
		WHERE title ILIKE $1 OR summary ILIKE $1 OR full_text ILIKE $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, pattern, limit)
}

func (s *PostgresStore) ByIDs(ids []int64) ([]Article, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	articles, err := s.query(`
		SELECT id, title, url, source, published_at, summary, intent, emotion, full_text, created_at
		FROM articles
		WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	return orderByIDs(articles, ids), nil
}

func (s *PostgresStore) Stats() (Stats, error) {
	var stats Stats

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM articles`).Scan(&stats.TotalArticles); err != nil {
		return stats, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(DISTINCT source) FROM articles`).Scan(&stats.UniqueSources); err != nil {
		return stats, err
	}

	var latest sql.NullTime
	if err := s.db.QueryRow(`SELECT MAX(created_at) FROM articles`).Scan(&latest); err != nil {
		return stats, err
	}
	if latest.Valid {
		t := latest.Time
		stats.LatestUpdate = &t
	}

	return stats, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) query(q string, args ...interface{}) ([]Article, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		var a Article
		var publishedAt, createdAt sql.NullTime
		var title, url, source, summary, intent, emotion, fullText sql.NullString
		if err := rows.Scan(&a.ID, &title, &url, &source, &publishedAt,
			&summary, &intent, &emotion, &fullText, &createdAt); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}

		a.Title = title.String
		a.URL = url.String
		a.Source = source.String
		a.Summary = summary.String
		a.Intent = intent.String
		a.Emotion = emotion.String
		a.FullText = strings.TrimSpace(fullText.String)
		if publishedAt.Valid {
			t := publishedAt.Time
			a.PublishedAt = &t
		}
		if createdAt.Valid {
			a.CreatedAt = createdAt.Time
		}
		articles = append(articles, a)
	}

	return articles, rows.Err()
}
