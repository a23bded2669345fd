package rss

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mkoval/newsdesk/internal/retry"
	"github.com/mkoval/newsdesk/internal/source"
	"github.com/mkoval/newsdesk/internal/store"
)

const newsAPIEndpoint = "https://newsapi.org/v2/everything"

// NewsAPIClient pulls extra headlines from newsapi.org. Optional; only used
// when a key is configured.
type NewsAPIClient struct {
	apiKey     string
	query      string
	httpClient *http.Client
}

func NewNewsAPIClient(apiKey, query string) *NewsAPIClient {
	return &NewsAPIClient{
		apiKey: apiKey,
		query:  query,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type newsAPIResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
	} `json:"articles"`
}

// Fetch returns up to limit articles matching the configured query.
func (c *NewsAPIClient) Fetch(ctx context.Context, limit int) ([]store.Article, error) {
	params := url.Values{}
	params.Set("q", c.query)
	params.Set("language", "en")
	params.Set("sortBy", "publishedAt")
	params.Set("pageSize", fmt.Sprintf("%d", limit))

	reqURL := newsAPIEndpoint + "?" + params.Encode()

	var apiResp newsAPIResponse
	err := retry.WithRetry(ctx, retry.Config{MaxAttempts: 3, Delay: 2 * time.Second, Backoff: true}, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("X-Api-Key", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("newsapi returned HTTP %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&apiResp)
	})
	if err != nil {
		return nil, fmt.Errorf("newsapi request failed: %w", err)
	}
	if apiResp.Status != "ok" {
		return nil, fmt.Errorf("newsapi error: %s", apiResp.Message)
	}

	articles := make([]store.Article, 0, len(apiResp.Articles))
	for _, item := range apiResp.Articles {
		if item.URL == "" || item.Title == "" {
			continue
		}

		a := store.Article{
			Title:   strings.TrimSpace(item.Title),
			URL:     item.URL,
			Source:  item.Source.Name,
			Summary: strings.TrimSpace(item.Description),
		}
		if a.Source == "" {
			a.Source = source.Extract(item.URL)
		}
		if t, err := time.Parse(time.RFC3339, item.PublishedAt); err == nil {
			t = t.UTC()
			a.PublishedAt = &t
		}
		articles = append(articles, a)
	}

	slog.Info("Loaded NewsAPI articles", "query", c.query, "count", len(articles))
	return articles, nil
}
