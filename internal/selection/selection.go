// Package selection decides which articles to keep. Two concerns share the
// rationale of source diversity: pre-storage tiered caps, and LLM-ranked
// relevance selection for Q&A.
package selection

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mkoval/newsdesk/internal/store"
)

// noMatchSentinel is what the ranking prompt returns when nothing fits.
const noMatchSentinel = "NONE"

// Policy holds the tier configuration for storage caps and relevance bias.
type Policy struct {
	PrimarySources []string
	PrimaryCap     int
	SecondaryCap   int
}

// IsPrimary reports whether the outlet is in the primary tier.
func (p Policy) IsPrimary(source string) bool {
	for _, s := range p.PrimarySources {
		if s == source {
			return true
		}
	}
	return false
}

// SelectForStorage caps each source's contribution: primary-tier outlets
// keep their first PrimaryCap articles, all others their first SecondaryCap.
// Fetch order is preserved within each group; primary groups come first,
// groups in first-seen order within each tier. Pure and deterministic.
func (p Policy) SelectForStorage(articles []store.Article) []store.Article {
	groups := make(map[string][]store.Article)
	var primaryOrder, secondaryOrder []string

	for _, a := range articles {
		if _, seen := groups[a.Source]; !seen {
			if p.IsPrimary(a.Source) {
				primaryOrder = append(primaryOrder, a.Source)
			} else {
				secondaryOrder = append(secondaryOrder, a.Source)
			}
		}
		groups[a.Source] = append(groups[a.Source], a)
	}

	var selected []store.Article
	for _, src := range primaryOrder {
		selected = append(selected, capGroup(groups[src], p.PrimaryCap)...)
	}
	for _, src := range secondaryOrder {
		selected = append(selected, capGroup(groups[src], p.SecondaryCap)...)
	}

	if len(selected) < len(articles) {
		slog.Info("Applied source caps", "in", len(articles), "kept", len(selected))
	}
	return selected
}

func capGroup(group []store.Article, limit int) []store.Article {
	if len(group) <= limit {
		return group
	}
	return group[:limit]
}

// Terms whose presence marks a question as domestic-politics focused, which
// biases relevance selection toward primary-tier outlets.
var domesticKeywords = []string{
	"congress", "senate", "house of representatives", "white house",
	"president", "supreme court", "federal", "governor", "legislation",
	"election", "campaign", "democrat", "republican", "bipartisan",
	"capitol", "washington", "domestic", "national", "state department",
	"pentagon",
}

// IsDomesticQuestion classifies a question by keyword presence.
func IsDomesticQuestion(question string) bool {
	lower := strings.ToLower(question)
	for _, kw := range domesticKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// BuildManifest renders candidates one per line for the ranking prompt:
// id | source (tier) | title | published.
func (p Policy) BuildManifest(candidates []store.Article) string {
	var sb strings.Builder
	for _, a := range candidates {
		tier := "secondary"
		if p.IsPrimary(a.Source) {
			tier = "primary"
		}
		published := "-"
		if a.PublishedAt != nil {
			published = a.PublishedAt.Format("2006-01-02")
		}
		fmt.Fprintf(&sb, "%d | %s (%s) | %s | %s\n", a.ID, a.Source, tier, a.Title, published)
	}
	return sb.String()
}

// Ranker is the LLM-backed id picker. The returned text is untrusted and is
// validated here before use.
type Ranker interface {
	RankArticles(ctx context.Context, question, manifest string, domestic bool, maxCount int) (string, error)
}

// SelectRelevant asks the ranker which candidates answer the question and
// returns their ids, validated against the candidate set and truncated to
// maxCount. Any failure — ranker error, no-match sentinel, nothing parseable —
// yields an empty list; the caller falls back to keyword search.
func (p Policy) SelectRelevant(ctx context.Context, ranker Ranker, question string, candidates []store.Article, maxCount int) []int64 {
	if len(candidates) == 0 || maxCount <= 0 {
		return nil
	}

	manifest := p.BuildManifest(candidates)
	domestic := IsDomesticQuestion(question)

	raw, err := ranker.RankArticles(ctx, question, manifest, domestic, maxCount)
	if err != nil {
		slog.Warn("Relevance ranking failed", "error", err)
		return nil
	}

	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, noMatchSentinel) {
		return nil
	}

	known := make(map[int64]bool, len(candidates))
	for _, a := range candidates {
		known[a.ID] = true
	}

	var ids []int64
	seen := make(map[int64]bool)
	for _, field := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(field), 10, 64)
		if err != nil {
			// Whole response is suspect once it stops being a clean id list.
			slog.Warn("Relevance ranking returned unparseable field", "field", field)
			continue
		}
		if !known[id] {
			slog.Warn("Relevance ranking hallucinated an id", "id", id)
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
		if len(ids) == maxCount {
			break
		}
	}

	return ids
}
