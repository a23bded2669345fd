// Package scraper pulls readable article text out of news pages.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoContent means the page loaded but no usable article text was found.
var ErrNoContent = errors.New("no article content found")

// maxTextLength caps extracted text so a single long-form piece cannot blow
// up prompts or storage. The cut lands on a paragraph boundary.
const maxTextLength = 8000

// Article is a scraped page: the on-page headline plus body text.
type Article struct {
	Title string
	Text  string
	URL   string
}

// Scraper fetches pages over HTTP and extracts their article body.
type Scraper struct {
	httpClient *http.Client
}

func New(timeout time.Duration) *Scraper {
	return &Scraper{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ExtractFullText returns the article body text at url.
func (s *Scraper) ExtractFullText(ctx context.Context, url string) (string, error) {
	article, err := s.ExtractArticle(ctx, url)
	if err != nil {
		return "", err
	}
	return article.Text, nil
}

// ExtractArticle returns the page headline and body text at url. Used by
// on-demand analysis, where the caller has no feed title to fall back on.
func (s *Scraper) ExtractArticle(ctx context.Context, url string) (*Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error building request: %w", err)
	}
	// Some outlets serve an empty shell to unknown agents.
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; newsdesk/1.0)")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error loading page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error parsing HTML: %w", err)
	}

	text := extractText(doc)
	if text == "" {
		return nil, ErrNoContent
	}

	return &Article{
		Title: extractTitle(doc),
		Text:  text,
		URL:   url,
	}, nil
}

// contentSelectors is the fallback chain for article bodies, most specific
// first. The bare "p" at the end catches sites with no article markup at all.
var contentSelectors = []string{
	"article p",
	".article-body p",
	".article-content p",
	".story-body p",
	".post-content p",
	".entry-content p",
	"main p",
	"#content p",
	"p",
}

// extractText walks the selector chain and returns cleaned paragraphs joined
// with blank lines. Empty string means nothing usable was found.
func extractText(doc *goquery.Document) string {
	var paragraphs []string

	for _, selector := range contentSelectors {
		doc.Find(selector).Each(func(i int, sel *goquery.Selection) {
			text := strings.TrimSpace(sel.Text())
			if len(text) > 20 && !isJunkLine(text) {
				paragraphs = append(paragraphs, text)
			}
		})
		// Three real paragraphs is enough to call it an article.
		if len(paragraphs) >= 3 {
			break
		}
		paragraphs = paragraphs[:0]
	}

	// A page with one or two long paragraphs is still worth keeping; retry
	// the generic selector without the three-paragraph bar.
	if len(paragraphs) == 0 {
		doc.Find("article p, p").Each(func(i int, sel *goquery.Selection) {
			text := strings.TrimSpace(sel.Text())
			if len(text) > 80 && !isJunkLine(text) {
				paragraphs = append(paragraphs, text)
			}
		})
	}

	return capLength(strings.Join(paragraphs, "\n\n"))
}

var junkIndicators = []string{
	"cookie", "subscribe to", "sign up for", "newsletter",
	"advertisement", "sponsored content", "all rights reserved",
	"click here", "follow us", "share this article", "read more:",
	"terms of service", "privacy policy", "log in", "create an account",
}

func isJunkLine(line string) bool {
	lower := strings.ToLower(line)
	for _, indicator := range junkIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

func extractTitle(doc *goquery.Document) string {
	selectors := []string{
		"h1",
		".article-title",
		".headline",
		".entry-title",
		"title",
	}

	for _, selector := range selectors {
		title := strings.TrimSpace(doc.Find(selector).First().Text())
		if title != "" {
			return title
		}
	}
	return ""
}

// capLength trims text to maxTextLength, keeping whole paragraphs.
func capLength(text string) string {
	if len(text) <= maxTextLength {
		return text
	}

	paragraphs := strings.Split(text, "\n\n")
	var kept []string
	total := 0

	for _, p := range paragraphs {
		if total+len(p)+2 > maxTextLength {
			break
		}
		kept = append(kept, p)
		total += len(p) + 2
	}

	if len(kept) == 0 {
		return text[:maxTextLength]
	}
	return strings.Join(kept, "\n\n")
}
