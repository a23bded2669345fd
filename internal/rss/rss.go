// Package rss turns configured feeds into article records.
package rss

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mmcdole/gofeed"
	"gopkg.in/yaml.v3"

	"github.com/mkoval/newsdesk/internal/source"
	"github.com/mkoval/newsdesk/internal/store"
)

// FeedsConfig is the YAML config structure:
//
//	feeds:
//	  - https://...
type FeedsConfig struct {
	Feeds []string `yaml:"feeds"`
}

// LoadFeeds reads the RSS feed URL list from a YAML file.
func LoadFeeds(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg FeedsConfig
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse feeds config: %w", err)
	}
	if len(cfg.Feeds) == 0 {
		return nil, fmt.Errorf("feeds config %s lists no feeds", path)
	}
	return cfg.Feeds, nil
}

// Fetcher downloads and parses RSS feeds.
type Fetcher struct {
	parser *gofeed.Parser
}

func NewFetcher() *Fetcher {
	return &Fetcher{parser: gofeed.NewParser()}
}

// FetchAll downloads every feed and flattens the items into articles, in
// feed order. A feed that fails to parse is logged and skipped; the rest
// still load.
func (f *Fetcher) FetchAll(urls []string) []store.Article {
	var articles []store.Article
	successCount := 0

	for _, url := range urls {
		feed, err := f.parser.ParseURL(url)
		if err != nil {
			slog.Error("Failed to parse RSS feed", "url", url, "error", err)
			continue
		}
		articles = append(articles, itemsToArticles(url, feed.Items)...)
		successCount++
		slog.Debug("Loaded feed", "url", url, "items", len(feed.Items))
	}

	slog.Info("Processed RSS feeds", "ok", successCount, "total", len(urls))
	return articles
}

func itemsToArticles(feedURL string, items []*gofeed.Item) []store.Article {
	articles := make([]store.Article, 0, len(items))
	for _, item := range items {
		if item == nil || item.Link == "" {
			continue
		}

		a := store.Article{
			Title:   strings.TrimSpace(item.Title),
			URL:     item.Link,
			Source:  source.Extract(item.Link),
			Summary: strings.TrimSpace(item.Description),
		}
		if a.Title == "" {
			a.Title = "Untitled"
		}
		// Feeds served off CDN hosts carry the outlet in the feed URL, not
		// the item link.
		if a.Source == source.Unknown {
			a.Source = source.Extract(feedURL)
		}
		if item.PublishedParsed != nil {
			t := item.PublishedParsed.UTC()
			a.PublishedAt = &t
		}
		articles = append(articles, a)
	}
	return articles
}
