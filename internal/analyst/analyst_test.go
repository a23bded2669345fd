package analyst

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mkoval/newsdesk/internal/cache"
	"github.com/mkoval/newsdesk/internal/ratelimit"
	"github.com/mkoval/newsdesk/internal/store"
)

type fakeCompleter struct {
	name     string
	response string
	err      error
	calls    int
}

func (f *fakeCompleter) Name() string { return f.name }

func (f *fakeCompleter) Complete(ctx context.Context, req Request) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func newTestAnalyst(primary, fallback Completer) *Analyst {
	return New(primary, fallback, cache.New(), ratelimit.NewAIRateLimiter(0, 0, 0))
}

func TestAnalyzeOne_ParsesStructuredResponse(t *testing.T) {
	primary := &fakeCompleter{name: "fake", response: `Some preamble the model added.
SUMMARY: Two sentences about the story.
INTENT: inform
EMOTION: concerned`}
	a := newTestAnalyst(primary, nil)

	article := a.AnalyzeOne(context.Background(), store.Article{
		Title: "Story", Summary: "feed excerpt", FullText: "body",
	})

	if article.Summary != "Two sentences about the story." {
		t.Errorf("summary = %q", article.Summary)
	}
	if article.Intent != "inform" {
		t.Errorf("intent = %q", article.Intent)
	}
	if article.Emotion != "concerned" {
		t.Errorf("emotion = %q", article.Emotion)
	}
}

func TestAnalyzeOne_DegradesOnFailure(t *testing.T) {
	primary := &fakeCompleter{name: "fake", err: errors.New("quota exceeded")}
	a := newTestAnalyst(primary, nil)

	article := a.AnalyzeOne(context.Background(), store.Article{
		Title: "Story", URL: "https://example.com/s", Summary: "feed excerpt",
	})

	if article.Summary != "feed excerpt" {
		t.Errorf("degraded summary = %q, want original feed excerpt", article.Summary)
	}
	if article.Intent != "Unknown" || article.Emotion != "Neutral" {
		t.Errorf("degraded intent/emotion = %q/%q", article.Intent, article.Emotion)
	}
	if article.URL != "https://example.com/s" || article.Title != "Story" {
		t.Error("degradation lost original fields")
	}
}

func TestAnalyzeOne_DefaultSummaryWhenNoneAvailable(t *testing.T) {
	primary := &fakeCompleter{name: "fake", err: errors.New("down")}
	a := newTestAnalyst(primary, nil)

	article := a.AnalyzeOne(context.Background(), store.Article{Title: "Story"})
	if article.Summary != "Summary unavailable" {
		t.Errorf("summary = %q", article.Summary)
	}
}

func TestAnalyzeOne_UsesFallbackProvider(t *testing.T) {
	primary := &fakeCompleter{name: "primary", err: errors.New("down")}
	fallback := &fakeCompleter{name: "fallback", response: "SUMMARY: via fallback\nINTENT: inform\nEMOTION: neutral"}
	a := newTestAnalyst(primary, fallback)

	article := a.AnalyzeOne(context.Background(), store.Article{Title: "Story", FullText: "x"})

	if primary.calls != 1 || fallback.calls != 1 {
		t.Errorf("calls primary=%d fallback=%d, want 1 and 1", primary.calls, fallback.calls)
	}
	if article.Summary != "via fallback" {
		t.Errorf("summary = %q", article.Summary)
	}
}

func TestAnalyzeOne_CachesResult(t *testing.T) {
	primary := &fakeCompleter{name: "fake", response: "SUMMARY: cached\nINTENT: inform\nEMOTION: neutral"}
	a := newTestAnalyst(primary, nil)

	article := store.Article{Title: "Same story", FullText: "same body"}
	a.AnalyzeOne(context.Background(), article)
	a.AnalyzeOne(context.Background(), article)

	if primary.calls != 1 {
		t.Errorf("provider called %d times for identical article, want 1", primary.calls)
	}
}

func TestAnalyzeBatch_PreservesOrderAndSurvivesFailures(t *testing.T) {
	// Fails every call; every article must still come back, in order.
	primary := &fakeCompleter{name: "fake", err: errors.New("down")}
	a := newTestAnalyst(primary, nil)

	in := []store.Article{
		{Title: "first", FullText: "1"},
		{Title: "second", FullText: "2"},
		{Title: "third", FullText: "3"},
	}
	out := a.AnalyzeBatch(context.Background(), in)

	if len(out) != 3 {
		t.Fatalf("batch returned %d articles, want 3", len(out))
	}
	for i := range in {
		if out[i].Title != in[i].Title {
			t.Errorf("order broken at %d: %q", i, out[i].Title)
		}
		if out[i].Intent != "Unknown" {
			t.Errorf("article %d not degraded: intent %q", i, out[i].Intent)
		}
	}
}

func TestAnswerQuestion_ApologyOnFailure(t *testing.T) {
	primary := &fakeCompleter{name: "fake", err: errors.New("down")}
	a := newTestAnalyst(primary, nil)

	got := a.AnswerQuestion(context.Background(), "what happened?", nil, "")
	if got != Apology {
		t.Errorf("AnswerQuestion on failure = %q, want apology", got)
	}
}

func TestAnswerQuestion_ReturnsProviderText(t *testing.T) {
	primary := &fakeCompleter{name: "fake", response: "  Here's the latest.  "}
	a := newTestAnalyst(primary, nil)

	got := a.AnswerQuestion(context.Background(), "what happened?",
		[]store.Article{{Source: "CNN", Title: "t", Summary: "s"}}, "User: hi\n")
	if got != "Here's the latest." {
		t.Errorf("AnswerQuestion = %q", got)
	}
}

func TestSkepticalCollectionAnalysis_EmptyAndFailure(t *testing.T) {
	primary := &fakeCompleter{name: "fake", err: errors.New("down")}
	a := newTestAnalyst(primary, nil)

	if got := a.SkepticalCollectionAnalysis(context.Background(), nil); strings.Contains(got, "sorry") {
		t.Errorf("empty collection should not apologize: %q", got)
	}
	if primary.calls != 0 {
		t.Error("provider called for empty collection")
	}

	got := a.SkepticalCollectionAnalysis(context.Background(), []store.Article{{Title: "t", Source: "CNN"}})
	if got != collectionApology {
		t.Errorf("failure output = %q", got)
	}
}

func TestParseAnalysis(t *testing.T) {
	cases := []struct {
		name    string
		text    string
		summary string
		intent  string
		emotion string
	}{
		{
			name:    "all sections",
			text:    "SUMMARY: s\nINTENT: i\nEMOTION: e",
			summary: "s", intent: "i", emotion: "e",
		},
		{
			name:    "unknown lines ignored",
			text:    "Sure, here's my analysis:\nSUMMARY: s\nNOTES: junk\nINTENT: i",
			summary: "s", intent: "i", emotion: "Neutral",
		},
		{
			name:    "missing sections keep defaults",
			text:    "EMOTION: angry",
			summary: "fallback", intent: "Unknown", emotion: "angry",
		},
		{
			name:    "empty response keeps all defaults",
			text:    "",
			summary: "fallback", intent: "Unknown", emotion: "Neutral",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseAnalysis(tc.text, "fallback")
			if got.Summary != tc.summary || got.Intent != tc.intent || got.Emotion != tc.emotion {
				t.Errorf("parseAnalysis = %+v", got)
			}
		})
	}
}

func TestRankArticles_DomesticBias(t *testing.T) {
	primary := &fakeCompleter{name: "fake", response: "1,2"}
	a := newTestAnalyst(primary, nil)

	got, err := a.RankArticles(context.Background(), "what about congress?", "1 | CNN (primary) | t | -", true, 3)
	if err != nil {
		t.Fatalf("RankArticles: %v", err)
	}
	if got != "1,2" {
		t.Errorf("RankArticles = %q", got)
	}
}
