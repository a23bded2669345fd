// Package analyst wraps LLM providers behind the analysis operations the
// bot needs: per-article structured analysis, collection overviews and
// grounded conversational answers. Every operation degrades to a usable
// default when providers fail; callers never see an analysis error.
package analyst

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mkoval/newsdesk/internal/cache"
	"github.com/mkoval/newsdesk/internal/metrics"
	"github.com/mkoval/newsdesk/internal/ratelimit"
	"github.com/mkoval/newsdesk/internal/store"
)

// Apology is the user-visible text for any total analysis failure. Internal
// detail goes to the log, never to chat.
const Apology = "I'm sorry, I'm having trouble processing your request right now. Please try again later!"

const collectionApology = "I'm sorry, I encountered an error while analyzing the news articles."

// NoRelevantArticles is the sentinel the ranking prompt asks for when no
// candidate fits the question.
const NoRelevantArticles = "NONE"

const (
	defaultSummary = "Summary unavailable"
	defaultIntent  = "Unknown"
	defaultEmotion = "Neutral"
)

// maxArticleChars caps how much article body goes into a prompt.
const maxArticleChars = 3000

// analysisCacheTTL keeps per-article results long enough to survive
// re-fetches of the same story without re-spending tokens.
const analysisCacheTTL = 12 * time.Hour

// Request is one completion call to a provider.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float32
}

// Completer is a single LLM provider.
type Completer interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

var errNoProvider = errors.New("no analysis provider available")

// Analysis is the structured result for one article.
type Analysis struct {
	Summary string
	Intent  string
	Emotion string
}

// Analyst runs analysis operations against a primary provider with an
// optional fallback, under a shared daily budget.
type Analyst struct {
	primary  Completer
	fallback Completer
	cache    *cache.Cache
	limiter  *ratelimit.AIRateLimiter
}

func New(primary, fallback Completer, c *cache.Cache, limiter *ratelimit.AIRateLimiter) *Analyst {
	return &Analyst{
		primary:  primary,
		fallback: fallback,
		cache:    c,
		limiter:  limiter,
	}
}

// complete tries the primary provider, then the fallback. Budget checks
// happen per provider; a provider over budget is skipped, not failed.
func (a *Analyst) complete(ctx context.Context, req Request) (string, error) {
	var lastErr error

	if a.primary != nil && a.limiter.CanUseOpenAI() {
		a.limiter.RecordOpenAI()
		text, err := a.primary.Complete(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err
		slog.Warn("Primary analysis provider failed", "provider", a.primary.Name(), "error", err)
	}

	if a.fallback != nil && a.limiter.CanUseGemini() {
		a.limiter.RecordGemini()
		text, err := a.fallback.Complete(ctx, req)
		if err == nil {
			slog.Info("Fallback analysis provider served request", "provider", a.fallback.Name())
			return text, nil
		}
		lastErr = err
		slog.Warn("Fallback analysis provider failed", "provider", a.fallback.Name(), "error", err)
	}

	if lastErr == nil {
		lastErr = errNoProvider
	}
	return "", lastErr
}

// AnalyzeOne fills in summary, intent and emotion for one article. On any
// provider failure the article keeps its feed summary (or a stock line) and
// gets neutral defaults; the error is logged, not returned.
func (a *Analyst) AnalyzeOne(ctx context.Context, article store.Article) store.Article {
	key := a.cache.GenerateKey(article.Title, article.FullText+article.Summary)
	if cached, ok := a.cache.Get(key); ok {
		if analysis, ok := cached.(Analysis); ok {
			a.limiter.RecordCacheHit()
			article.Summary = analysis.Summary
			article.Intent = analysis.Intent
			article.Emotion = analysis.Emotion
			return article
		}
	}
	a.limiter.RecordCacheMiss()

	prompt := fmt.Sprintf(`Please analyze this news article and provide:
1. A concise 2-3 sentence summary of the key points
2. The author's intent (inform, persuade, entertain, warn, etc.)
3. The likely emotional response from readers (neutral, concerned, optimistic, angry, etc.)

Format your response as:
SUMMARY: [your summary here]
INTENT: [author's intent]
EMOTION: [reader emotion]

Article:
Title: %s
Source: %s
Original Summary: %s
Full Text: %s`,
		article.Title, article.Source, article.Summary, truncate(article.FullText, maxArticleChars))

	text, err := a.complete(ctx, Request{
		System:      "You are a news analyst that provides objective, concise analysis of news articles.",
		Prompt:      prompt,
		MaxTokens:   300,
		Temperature: 0.3,
	})
	if err != nil {
		slog.Error("Article analysis failed", "title", article.Title, "error", err)
		metrics.Global.IncrementAnalysesFailed()
		if article.Summary == "" {
			article.Summary = defaultSummary
		}
		article.Intent = defaultIntent
		article.Emotion = defaultEmotion
		return article
	}

	analysis := parseAnalysis(text, article.Summary)
	a.cache.Set(key, analysis, analysisCacheTTL)
	metrics.Global.IncrementAnalysesCompleted()

	article.Summary = analysis.Summary
	article.Intent = analysis.Intent
	article.Emotion = analysis.Emotion
	return article
}

// AnalyzeBatch analyzes articles one at a time, preserving input order.
// Individual failures degrade per article and never abort the batch.
func (a *Analyst) AnalyzeBatch(ctx context.Context, articles []store.Article) []store.Article {
	analyzed := make([]store.Article, 0, len(articles))
	for i, article := range articles {
		slog.Debug("Analyzing article", "n", i+1, "total", len(articles), "title", article.Title)
		analyzed = append(analyzed, a.AnalyzeOne(ctx, article))
	}
	return analyzed
}

// AnswerQuestion produces a conversational answer grounded on the supplied
// articles. conversation is a preformatted recent-message transcript, may be
// empty. Returns Apology on total failure.
func (a *Analyst) AnswerQuestion(ctx context.Context, question string, grounding []store.Article, conversation string) string {
	var sb strings.Builder

	if conversation != "" {
		sb.WriteString("Recent conversation context:\n")
		sb.WriteString(conversation)
		sb.WriteString("\n")
	}

	if len(grounding) > 0 {
		sb.WriteString("Recent news articles that might be relevant:\n\n")
		for _, article := range grounding {
			fmt.Fprintf(&sb, "- [%s] %s: %s\n", article.Source, article.Title, article.Summary)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, `You are a friendly, conversational news bot. Today's date is %s. Respond naturally to the user's message.

Guidelines:
- Act like a knowledgeable friend who stays up-to-date on current events
- When you state a fact drawn from one of the articles above, name its source outlet
- Only cite the articles listed above; never invent articles or sources
- Reference today's date when discussing how recent something is
- If asked about something you don't have info on, admit it honestly
- Keep responses engaging but not too long

User message: %s`, time.Now().Format("January 2, 2006"), question)

	text, err := a.complete(ctx, Request{
		System:      "You are a friendly, knowledgeable news bot that chats naturally with users about current events. You're helpful, conversational, and provide objective information while being engaging.",
		Prompt:      sb.String(),
		MaxTokens:   500,
		Temperature: 0.8,
	})
	if err != nil {
		slog.Error("Question answering failed", "error", err)
		return Apology
	}

	metrics.Global.IncrementQuestionsAnswered()
	return strings.TrimSpace(text)
}

// SkepticalCollectionAnalysis produces a cross-article read of up to ten
// articles: main topics, who benefits from each framing, visible source
// bias, and what the coverage omits.
func (a *Analyst) SkepticalCollectionAnalysis(ctx context.Context, articles []store.Article) string {
	if len(articles) == 0 {
		return "No articles to analyze yet. Try /update to fetch the latest news."
	}
	if len(articles) > 10 {
		articles = articles[:10]
	}

	var sb strings.Builder
	for i, article := range articles {
		fmt.Fprintf(&sb, "%d. **%s** - %s\n", i+1, article.Source, article.Title)
		fmt.Fprintf(&sb, "Summary: %s\n", orDefault(article.Summary, "No summary available"))
		if article.PublishedAt != nil {
			fmt.Fprintf(&sb, "Published: %s\n", article.PublishedAt.Format("2006-01-02 15:04"))
		}
		fmt.Fprintf(&sb, "URL: %s\n\n", article.URL)
	}

	prompt := fmt.Sprintf(`Analyze these recent news articles with a skeptical eye and provide:
1. The core facts: what actually happened, stripped of framing
2. Who benefits from each story being told this way
3. How each outlet's known leanings show in its coverage
4. What the coverage collectively omits or downplays

Be completely objective and avoid any political bias of your own. Present facts and let readers form their own opinions. Keep the analysis concise but comprehensive.

Articles to analyze:
%s`, sb.String())

	text, err := a.complete(ctx, Request{
		System:      "You are an objective news analyst. Provide factual, unbiased analysis without partisan viewpoints. Present information neutrally and let readers form their own conclusions.",
		Prompt:      prompt,
		MaxTokens:   800,
		Temperature: 0.3,
	})
	if err != nil {
		slog.Error("Collection analysis failed", "articles", len(articles), "error", err)
		return collectionApology
	}
	return strings.TrimSpace(text)
}

// DetailedArticleAnalysis produces a deep single-article read under the same
// rubric, plus the people and organizations named.
func (a *Analyst) DetailedArticleAnalysis(ctx context.Context, article store.Article) string {
	prompt := fmt.Sprintf(`Provide a detailed, skeptical analysis of this single news article:
1. The core facts: what is actually claimed to have happened
2. Who benefits from this story being told this way
3. How the outlet's perspective shows in the framing and word choice
4. What the article omits or leaves unquestioned
5. The key people and organizations mentioned, and their roles

Be objective; separate what is reported from how it is framed.

Title: %s
Source: %s
Text: %s`,
		article.Title, article.Source,
		orDefault(truncate(article.FullText, maxArticleChars), article.Summary))

	text, err := a.complete(ctx, Request{
		System:      "You are an objective news analyst. Provide factual, unbiased analysis without partisan viewpoints.",
		Prompt:      prompt,
		MaxTokens:   800,
		Temperature: 0.3,
	})
	if err != nil {
		slog.Error("Detailed article analysis failed", "title", article.Title, "error", err)
		return collectionApology
	}
	return strings.TrimSpace(text)
}

// RankArticles asks a provider to pick the candidate ids most relevant to
// the question. manifest is one candidate per line; the response is raw text
// (expected: comma-separated ids or NONE) that the caller validates.
func (a *Analyst) RankArticles(ctx context.Context, question, manifest string, domestic bool, maxCount int) (string, error) {
	bias := "Balance topical relevance over source tier."
	if domestic {
		bias = "The question is about domestic politics or institutions: bias strongly toward primary-tier sources. At least 70% of your picks should be primary-tier."
	}

	prompt := fmt.Sprintf(`Pick the stored articles most relevant to the user's question.

Question: %s

Candidate articles (one per line, "id | source (tier) | title | published"):
%s

%s

Respond with ONLY a comma-separated list of at most %d article ids, most relevant first. If no candidate is relevant, respond with exactly %s.`,
		question, manifest, bias, maxCount, NoRelevantArticles)

	return a.complete(ctx, Request{
		System:      "You select article ids from a provided list. You respond only with ids from the list, comma-separated, or the word NONE. You never invent ids.",
		Prompt:      prompt,
		MaxTokens:   100,
		Temperature: 0.1,
	})
}

// parseAnalysis reads the SUMMARY:/INTENT:/EMOTION: line-prefix format.
// Lines with unknown prefixes are ignored; missing sections keep defaults.
func parseAnalysis(text, fallbackSummary string) Analysis {
	analysis := Analysis{
		Summary: orDefault(fallbackSummary, defaultSummary),
		Intent:  defaultIntent,
		Emotion: defaultEmotion,
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(line, "SUMMARY:"):
			if v := strings.TrimSpace(strings.TrimPrefix(line, "SUMMARY:")); v != "" {
				analysis.Summary = v
			}
		case strings.HasPrefix(line, "INTENT:"):
			if v := strings.TrimSpace(strings.TrimPrefix(line, "INTENT:")); v != "" {
				analysis.Intent = v
			}
		case strings.HasPrefix(line, "EMOTION:"):
			if v := strings.TrimSpace(strings.TrimPrefix(line, "EMOTION:")); v != "" {
				analysis.Emotion = v
			}
		}
	}

	return analysis
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
