package retrieval

import (
	"context"
	"fmt"
	"math"
	"testing"

	"opsagent/pkg/store"
)

type fakeStore struct {
	results []store.SearchResult
	err     error
	calls   int
}

func (f *fakeStore) Search(_ context.Context, _ []float32, limit int) ([]store.SearchResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) > limit {
		return f.results[:limit], nil
	}
	return f.results, nil
}

func TestKeywordScore(t *testing.T) {
	tests := []struct {
		query   string
		content string
		want    float64
	}{
		{"check system status", "check system status", 1.0},
		{"check system status", "nothing relevant here", 0.0},
		{"check system status", "system is fine", 1.0 / 3.0},
		{"Check SYSTEM Status", "check system status", 1.0},
		{"", "anything", 0.0},
		{"   ", "anything", 0.0},
		{"database database", "the database is up", 1.0},
	}

	for _, tt := range tests {
		got := KeywordScore(tt.query, tt.content)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("KeywordScore(%q, %q) = %f, want %f", tt.query, tt.content, got, tt.want)
		}
	}
}

func TestExpandQuery(t *testing.T) {
	short := ExpandQuery("check status")
	if len(short) != 1 || short[0] != "check status" {
		t.Errorf("Expected short query unchanged, got %v", short)
	}

	long := ExpandQuery("check the database backup schedule")
	if len(long) != 2 {
		t.Fatalf("Expected 2 forms for long query, got %v", long)
	}
	if long[0] != "check the database backup schedule" {
		t.Errorf("Expected original query first, got %q", long[0])
	}
	if long[1] != "check the database" {
		t.Errorf("Expected 3-term prefix, got %q", long[1])
	}
}

func TestEngine_Search_CombinedScoring(t *testing.T) {
	fake := &fakeStore{
		results: []store.SearchResult{
			{Content: "semantic but no overlap", Score: 0.9},
			{Content: "check system status daily", Score: 0.5},
		},
	}
	engine := NewEngine(fake)

	results, err := engine.Search(context.Background(), "check system status", []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}

	// 0.7*0.9 + 0.3*0 = 0.63 vs 0.7*0.5 + 0.3*1 = 0.65
	if results[0].Content != "check system status daily" {
		t.Errorf("Expected keyword overlap to win, got %q first", results[0].Content)
	}

	if math.Abs(results[0].CombinedScore-0.65) > 1e-9 {
		t.Errorf("Expected combined score 0.65, got %f", results[0].CombinedScore)
	}
	if math.Abs(results[1].CombinedScore-0.63) > 1e-9 {
		t.Errorf("Expected combined score 0.63, got %f", results[1].CombinedScore)
	}
}

func TestEngine_Search_DescendingOrder(t *testing.T) {
	fake := &fakeStore{
		results: []store.SearchResult{
			{Content: "a", Score: 0.1},
			{Content: "b", Score: 0.8},
			{Content: "c", Score: 0.4},
		},
	}
	engine := NewEngine(fake)

	results, err := engine.Search(context.Background(), "unrelated query", []float32{1}, 3)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	for i := 1; i < len(results); i++ {
		if results[i].CombinedScore > results[i-1].CombinedScore {
			t.Errorf("Results not sorted descending at index %d", i)
		}
	}
}

func TestEngine_Search_EmptyStore(t *testing.T) {
	engine := NewEngine(&fakeStore{})

	results, err := engine.Search(context.Background(), "query", []float32{1}, 3)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected empty results, got %d", len(results))
	}
}

func TestEngine_Search_StoreError(t *testing.T) {
	engine := NewEngine(&fakeStore{err: fmt.Errorf("store down")})

	if _, err := engine.Search(context.Background(), "query", []float32{1}, 3); err == nil {
		t.Error("Expected store error to propagate")
	}
}

func TestEngine_SearchExpanded_Dedupes(t *testing.T) {
	fake := &fakeStore{
		results: []store.SearchResult{
			{Content: "backup runs nightly via pg_dump", Score: 0.6},
			{Content: "unrelated note", Score: 0.3},
		},
	}
	engine := NewEngine(fake)

	results, err := engine.SearchExpanded(context.Background(),
		"check the database backup schedule", []float32{1}, 3)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// Two expanded forms searched, same candidates returned twice.
	if fake.calls != 2 {
		t.Errorf("Expected 2 store searches, got %d", fake.calls)
	}

	if len(results) != 2 {
		t.Fatalf("Expected deduplicated results, got %d", len(results))
	}

	seen := make(map[string]bool)
	for _, r := range results {
		if seen[r.Content] {
			t.Errorf("Duplicate content in merged results: %q", r.Content)
		}
		seen[r.Content] = true
	}
}

func TestEngine_SearchExpanded_ShortQuerySearchesOnce(t *testing.T) {
	fake := &fakeStore{}
	engine := NewEngine(fake)

	if _, err := engine.SearchExpanded(context.Background(), "status", []float32{1}, 3); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if fake.calls != 1 {
		t.Errorf("Expected 1 store search for short query, got %d", fake.calls)
	}
}
