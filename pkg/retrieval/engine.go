// Package retrieval ranks stored knowledge for a query by blending vector
// similarity with keyword overlap.
package retrieval

import (
	"context"
	"sort"
	"strings"

	"opsagent/pkg/logx"
	"opsagent/pkg/store"
)

// Score weights for the hybrid blend.
const (
	VectorWeight  = 0.7
	KeywordWeight = 0.3
)

// VectorSearcher is the store-side contract the engine needs.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, limit int) ([]store.SearchResult, error)
}

// HybridResult is one ranked retrieval candidate.
type HybridResult struct {
	Content       string
	VectorScore   float64
	KeywordScore  float64
	CombinedScore float64
}

// Engine combines vector search results with lexical overlap scoring.
type Engine struct {
	store  VectorSearcher
	logger *logx.Logger
}

// NewEngine creates a hybrid retrieval engine over the given store.
func NewEngine(s VectorSearcher) *Engine {
	return &Engine{
		store:  s,
		logger: logx.NewLogger("retrieval"),
	}
}

// Search returns the top-limit candidates ranked by combined score. An
// empty candidate set returns an empty slice, not an error.
func (e *Engine) Search(ctx context.Context, query string, vector []float32, limit int) ([]HybridResult, error) {
	candidates, err := e.store.Search(ctx, vector, limit)
	if err != nil {
		return nil, err
	}

	results := make([]HybridResult, 0, len(candidates))
	for _, c := range candidates {
		kw := KeywordScore(query, c.Content)
		results = append(results, HybridResult{
			Content:       c.Content,
			VectorScore:   c.Score,
			KeywordScore:  kw,
			CombinedScore: VectorWeight*c.Score + KeywordWeight*kw,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].CombinedScore > results[j].CombinedScore
	})
	if len(results) > limit {
		results = results[:limit]
	}

	e.logger.Debug("hybrid search returned %d results for %q", len(results), query)
	return results, nil
}

// SearchExpanded runs Search once per expanded query form and merges the
// results, deduplicating by content and keeping the best combined score.
func (e *Engine) SearchExpanded(ctx context.Context, query string, vector []float32, limit int) ([]HybridResult, error) {
	best := make(map[string]HybridResult)

	for _, form := range ExpandQuery(query) {
		results, err := e.Search(ctx, form, vector, limit)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			if prev, ok := best[r.Content]; !ok || r.CombinedScore > prev.CombinedScore {
				best[r.Content] = r
			}
		}
	}

	merged := make([]HybridResult, 0, len(best))
	for _, r := range best {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].CombinedScore > merged[j].CombinedScore
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}

	return merged, nil
}

// KeywordScore is the fraction of query terms present in the content,
// using case-insensitive whitespace tokenization. An empty query scores 0.
func KeywordScore(query, content string) float64 {
	queryTerms := strings.Fields(strings.ToLower(query))
	if len(queryTerms) == 0 {
		return 0
	}

	contentTerms := make(map[string]bool)
	for _, term := range strings.Fields(strings.ToLower(content)) {
		contentTerms[term] = true
	}

	matched := 0
	seen := make(map[string]bool, len(queryTerms))
	for _, term := range queryTerms {
		if seen[term] {
			continue
		}
		seen[term] = true
		if contentTerms[term] {
			matched++
		}
	}

	return float64(matched) / float64(len(seen))
}

// ExpandQuery produces alternative phrasings to widen recall. The original
// query always comes first; queries longer than 3 terms also contribute
// their 3-term prefix.
func ExpandQuery(query string) []string {
	forms := []string{query}

	terms := strings.Fields(query)
	if len(terms) > 3 {
		forms = append(forms, strings.Join(terms[:3], " "))
	}

	return forms
}
