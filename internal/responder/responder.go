// Package responder turns user questions into grounded answers: pick the
// stored articles that fit the question, then hand them to the analyst.
package responder

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/mkoval/newsdesk/internal/selection"
	"github.com/mkoval/newsdesk/internal/store"
)

// conversationWindow caps how much chat history goes into the prompt.
const conversationWindow = 5

// Message is one chat message of recent conversation context.
type Message struct {
	Author string
	Text   string
}

// Analyst is the slice of analysis operations the responder needs.
type Analyst interface {
	AnswerQuestion(ctx context.Context, question string, grounding []store.Article, conversation string) string
	RankArticles(ctx context.Context, question, manifest string, domestic bool, maxCount int) (string, error)
}

// Responder routes a question to relevance selection or keyword search and
// produces the final answer text.
type Responder struct {
	store          store.Store
	ai             Analyst
	policy         selection.Policy
	maxRelevant    int
	candidateLimit int
}

func New(s store.Store, ai Analyst, policy selection.Policy, maxRelevant, candidateLimit int) *Responder {
	return &Responder{
		store:          s,
		ai:             ai,
		policy:         policy,
		maxRelevant:    maxRelevant,
		candidateLimit: candidateLimit,
	}
}

// HandleMention answers a free-form question. Grounding articles come from,
// in order of preference: LLM relevance selection over recent candidates,
// keyword search, or plain recency if the question sounds news-related.
// Always returns displayable text.
func (r *Responder) HandleMention(ctx context.Context, question string, recent []Message) string {
	conversation := formatConversation(recent)

	grounding := r.relevantArticles(ctx, question)
	if len(grounding) == 0 {
		grounding = r.searchArticles(question)
	}
	if len(grounding) == 0 && IsNewsRelated(question) {
		articles, err := r.store.Recent(r.maxRelevant)
		if err != nil {
			slog.Error("Failed to load recent articles", "error", err)
		}
		grounding = articles
	}

	return r.ai.AnswerQuestion(ctx, question, grounding, conversation)
}

func (r *Responder) relevantArticles(ctx context.Context, question string) []store.Article {
	candidates, err := r.store.Recent(r.candidateLimit)
	if err != nil {
		slog.Error("Failed to load relevance candidates", "error", err)
		return nil
	}

	ids := r.policy.SelectRelevant(ctx, r.ai, question, candidates, r.maxRelevant)
	if len(ids) == 0 {
		return nil
	}

	articles, err := r.store.ByIDs(ids)
	if err != nil {
		slog.Error("Failed to load selected articles", "error", err)
		return nil
	}
	return articles
}

// searchArticles runs each extracted term against the store, two hits per
// term, deduplicates by URL preserving order, and keeps the top results.
func (r *Responder) searchArticles(question string) []store.Article {
	terms := ExtractSearchTerms(question)
	if len(terms) == 0 {
		return nil
	}

	var hits []store.Article
	for _, term := range terms {
		articles, err := r.store.Search(term, 2)
		if err != nil {
			slog.Error("Article search failed", "term", term, "error", err)
			continue
		}
		hits = append(hits, articles...)
	}

	seen := make(map[string]bool)
	var unique []store.Article
	for _, a := range hits {
		if seen[a.URL] {
			continue
		}
		seen[a.URL] = true
		unique = append(unique, a)
		if len(unique) == r.maxRelevant {
			break
		}
	}
	return unique
}

var wordPattern = regexp.MustCompile(`\b\w+\b`)

var stopWords = map[string]bool{
	"what": true, "is": true, "the": true, "a": true, "an": true,
	"and": true, "or": true, "but": true, "in": true, "on": true,
	"at": true, "to": true, "for": true, "of": true, "with": true,
	"by": true,
}

// ExtractSearchTerms pulls up to five meaningful lowercase terms out of a
// question, dropping stop words and anything shorter than three characters.
func ExtractSearchTerms(message string) []string {
	var terms []string
	for _, word := range wordPattern.FindAllString(strings.ToLower(message), -1) {
		if stopWords[word] || len(word) <= 2 {
			continue
		}
		terms = append(terms, word)
		if len(terms) == 5 {
			break
		}
	}
	return terms
}

var newsKeywords = []string{
	"news", "article", "story", "report", "breaking", "latest",
	"politics", "technology", "economy", "sports", "health",
	"science", "business", "entertainment", "world", "local",
}

// IsNewsRelated reports whether a message sounds like a news question.
func IsNewsRelated(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range newsKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func formatConversation(recent []Message) string {
	if len(recent) == 0 {
		return ""
	}
	if len(recent) > conversationWindow {
		recent = recent[len(recent)-conversationWindow:]
	}

	var sb strings.Builder
	for _, msg := range recent {
		author := msg.Author
		if author == "" {
			author = "User"
		}
		fmt.Fprintf(&sb, "%s: %s\n", author, msg.Text)
	}
	return sb.String()
}

// HelpText lists the bot's commands and mention behavior.
func HelpText() string {
	return `I can help you with:
📰 AI analysis of the latest news with /news
🔄 Fetching new articles with /update
🏢 Listing news sources with /sources
📊 Bot statistics with /stats
🔍 Deep analysis of a single article with /analyze <url>
💬 Answering questions about recent news when you mention me

Commands:
/news [source] - AI analysis of recent articles, optionally from one outlet
/update - Fetch the latest news now (bypasses the daily schedule)
/sources - List available news sources
/stats - Show bot statistics
/analyze <url> - Detailed analysis of one article
/help - Show this message

Just mention me with your question and I'll answer using recent
conversation context and stored articles.

Examples:
- "What's the latest on technology?"
- "Any news about climate change?"
- "Tell me about recent political developments"

I fetch news automatically every 24 hours; /update forces it anytime.`
}

// StatsText renders store statistics for the /stats command.
func StatsText(stats store.Stats) string {
	lastUpdate := "Never"
	if stats.LatestUpdate != nil {
		lastUpdate = stats.LatestUpdate.Format("2006-01-02 15:04 MST")
	}

	return fmt.Sprintf(`📊 Bot Stats
• Total Articles: %d
• Unique Sources: %d
• Last Update: %s

Recent articles are available for search and discussion.`,
		stats.TotalArticles, stats.UniqueSources, lastUpdate)
}
