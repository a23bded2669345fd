package selection

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/mkoval/newsdesk/internal/store"
)

func testPolicy() Policy {
	return Policy{
		PrimarySources: []string{"CNN", "Fox News", "NPR"},
		PrimaryCap:     12,
		SecondaryCap:   5,
	}
}

func articlesFrom(source string, n int) []store.Article {
	out := make([]store.Article, n)
	for i := range out {
		out[i] = store.Article{
			Title:  fmt.Sprintf("%s story %d", source, i),
			URL:    fmt.Sprintf("https://example.com/%s/%d", source, i),
			Source: source,
		}
	}
	return out
}

func TestSelectForStorage_TieredCaps(t *testing.T) {
	p := testPolicy()

	var pool []store.Article
	pool = append(pool, articlesFrom("CNN", 20)...)
	pool = append(pool, articlesFrom("Al Jazeera", 8)...)

	selected := p.SelectForStorage(pool)

	if len(selected) != 17 {
		t.Fatalf("selected %d articles, want 17 (12 CNN + 5 Al Jazeera)", len(selected))
	}

	counts := map[string]int{}
	for _, a := range selected {
		counts[a.Source]++
	}
	if counts["CNN"] != 12 {
		t.Errorf("CNN count = %d, want 12", counts["CNN"])
	}
	if counts["Al Jazeera"] != 5 {
		t.Errorf("Al Jazeera count = %d, want 5", counts["Al Jazeera"])
	}
}

func TestSelectForStorage_SmallGroupsKeptWhole(t *testing.T) {
	p := testPolicy()

	var pool []store.Article
	pool = append(pool, articlesFrom("CNN", 3)...)
	pool = append(pool, articlesFrom("Herald", 2)...)

	selected := p.SelectForStorage(pool)
	if len(selected) != 5 {
		t.Errorf("selected %d, want all 5 when under caps", len(selected))
	}
}

func TestSelectForStorage_PrimaryGroupsFirstFetchOrderWithin(t *testing.T) {
	p := testPolicy()

	var pool []store.Article
	pool = append(pool, articlesFrom("Herald", 2)...) // secondary fetched first
	pool = append(pool, articlesFrom("CNN", 3)...)

	selected := p.SelectForStorage(pool)
	if len(selected) != 5 {
		t.Fatalf("selected %d, want 5", len(selected))
	}
	if selected[0].Source != "CNN" {
		t.Errorf("first selected from %q, want primary tier first", selected[0].Source)
	}
	// Fetch order preserved inside the group.
	if selected[0].Title != "CNN story 0" || selected[2].Title != "CNN story 2" {
		t.Errorf("group order not preserved: %q, %q", selected[0].Title, selected[2].Title)
	}
}

func TestSelectForStorage_Empty(t *testing.T) {
	if got := testPolicy().SelectForStorage(nil); len(got) != 0 {
		t.Errorf("empty input selected %d articles", len(got))
	}
}

func TestIsDomesticQuestion(t *testing.T) {
	cases := []struct {
		question string
		want     bool
	}{
		{"What did Congress do today?", true},
		{"any news on the Election campaign?", true},
		{"what's happening in the middle east?", false},
		{"tell me about sports", false},
	}
	for _, tc := range cases {
		if got := IsDomesticQuestion(tc.question); got != tc.want {
			t.Errorf("IsDomesticQuestion(%q) = %v, want %v", tc.question, got, tc.want)
		}
	}
}

func TestBuildManifest(t *testing.T) {
	p := testPolicy()
	manifest := p.BuildManifest([]store.Article{
		{ID: 7, Source: "CNN", Title: "Big story"},
		{ID: 9, Source: "Al Jazeera", Title: "Other story"},
	})

	want7 := "7 | CNN (primary) | Big story | -\n"
	want9 := "9 | Al Jazeera (secondary) | Other story | -\n"
	if manifest != want7+want9 {
		t.Errorf("manifest = %q", manifest)
	}
}

type fakeRanker struct {
	response string
	err      error
	domestic *bool
}

func (f *fakeRanker) RankArticles(ctx context.Context, question, manifest string, domestic bool, maxCount int) (string, error) {
	if f.domestic != nil {
		*f.domestic = domestic
	}
	return f.response, f.err
}

func TestSelectRelevant_ValidatesIDs(t *testing.T) {
	p := testPolicy()
	candidates := []store.Article{
		{ID: 1, Source: "CNN", Title: "a"},
		{ID: 2, Source: "NPR", Title: "b"},
		{ID: 3, Source: "Herald", Title: "c"},
	}

	// Hallucinated 99, junk token, duplicate, and more ids than maxCount.
	ranker := &fakeRanker{response: "2, 99, banana, 2, 1, 3"}
	ids := p.SelectRelevant(context.Background(), ranker, "q", candidates, 2)

	if len(ids) != 2 || ids[0] != 2 || ids[1] != 1 {
		t.Errorf("ids = %v, want [2 1]", ids)
	}
}

func TestSelectRelevant_EmptyOnFailure(t *testing.T) {
	p := testPolicy()
	candidates := []store.Article{{ID: 1, Source: "CNN", Title: "a"}}

	cases := []struct {
		name   string
		ranker *fakeRanker
	}{
		{"ranker error", &fakeRanker{err: errors.New("down")}},
		{"no-match sentinel", &fakeRanker{response: "NONE"}},
		{"lowercase sentinel", &fakeRanker{response: "none"}},
		{"empty response", &fakeRanker{response: "   "}},
		{"all hallucinated", &fakeRanker{response: "42,43"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if ids := p.SelectRelevant(context.Background(), tc.ranker, "q", candidates, 3); len(ids) != 0 {
				t.Errorf("ids = %v, want empty", ids)
			}
		})
	}
}

func TestSelectRelevant_PassesDomesticFlag(t *testing.T) {
	p := testPolicy()
	var domestic bool
	ranker := &fakeRanker{response: "1", domestic: &domestic}

	p.SelectRelevant(context.Background(), ranker, "what's new in the senate?",
		[]store.Article{{ID: 1, Source: "CNN", Title: "a"}}, 3)
	if !domestic {
		t.Error("domestic question not flagged to ranker")
	}
}

func TestSelectRelevant_NoCandidates(t *testing.T) {
	p := testPolicy()
	ranker := &fakeRanker{response: "1"}
	if ids := p.SelectRelevant(context.Background(), ranker, "q", nil, 3); ids != nil {
		t.Errorf("ids = %v for no candidates", ids)
	}
}
