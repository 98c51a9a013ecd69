package preferences

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/johnymontana/memory-graph-workshop/internal/graph"
	"github.com/johnymontana/memory-graph-workshop/internal/log"
)

func newTestStore() *Store {
	return NewStore(graph.NewMemStore(), DefaultPolicy(), log.NewNop())
}

func TestApplyInsertAndMergeIdempotence(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	c := Candidate{
		Category:   "detail_level",
		Preference: "Prefers concise summaries",
		Context:    "asked for shorter answers",
		Confidence: 0.7,
	}
	inserted, updated, err := s.Apply(ctx, []Candidate{c})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if inserted != 1 || updated != 0 {
		t.Fatalf("first apply: inserted=%d updated=%d", inserted, updated)
	}

	c.Confidence = 0.9
	inserted, updated, err = s.Apply(ctx, []Candidate{c})
	if err != nil {
		t.Fatalf("Apply again: %v", err)
	}
	if inserted != 0 || updated != 1 {
		t.Fatalf("second apply: inserted=%d updated=%d", inserted, updated)
	}

	prefs, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(prefs) != 1 {
		t.Fatalf("duplicate created a second node: %d prefs", len(prefs))
	}
	if prefs[0].Confidence != 0.9 {
		t.Errorf("confidence = %v, want max 0.9", prefs[0].Confidence)
	}
	if prefs[0].LastUpdated.Before(prefs[0].CreatedAt) {
		t.Error("last_updated not refreshed")
	}
}

func TestApplyLowerConfidenceKeepsMax(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	base := Candidate{Category: "writing_style", Preference: "Likes a neutral tone", Confidence: 0.8}
	if _, _, err := s.Apply(ctx, []Candidate{base}); err != nil {
		t.Fatal(err)
	}
	base.Confidence = 0.3
	if _, _, err := s.Apply(ctx, []Candidate{base}); err != nil {
		t.Fatal(err)
	}
	prefs, _ := s.List(ctx)
	if len(prefs) != 1 || prefs[0].Confidence != 0.8 {
		t.Errorf("got %+v", prefs)
	}
}

func TestApplySameTextDifferentCategory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	_, _, err := s.Apply(ctx, []Candidate{
		{Category: "topics_of_interest", Preference: "technology news", Confidence: 0.8},
		{Category: "topic_dislikes", Preference: "technology news", Confidence: 0.8},
	})
	if err != nil {
		t.Fatal(err)
	}
	prefs, _ := s.List(ctx)
	if len(prefs) != 2 {
		t.Errorf("categories must not share dedup scope: %d prefs", len(prefs))
	}
}

func TestApplyNormalizesUnknownCategory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	if _, _, err := s.Apply(ctx, []Candidate{{Category: "Weather", Preference: "likes sunny days", Confidence: 2.5}}); err != nil {
		t.Fatal(err)
	}
	prefs, _ := s.List(ctx)
	if len(prefs) != 1 || prefs[0].Category != "other" {
		t.Fatalf("got %+v", prefs)
	}
	if prefs[0].Confidence != 1 {
		t.Errorf("confidence not clamped: %v", prefs[0].Confidence)
	}
}

func TestApplySkipsBlankPreference(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	inserted, updated, err := s.Apply(ctx, []Candidate{{Category: "other", Preference: "   "}})
	if err != nil || inserted != 0 || updated != 0 {
		t.Errorf("inserted=%d updated=%d err=%v", inserted, updated, err)
	}
}

func TestDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	if _, _, err := s.Apply(ctx, []Candidate{
		{Category: "topics_of_interest", Preference: "AI news", Confidence: 0.9},
		{Category: "news_sources", Preference: "trusts wire services", Confidence: 0.6},
	}); err != nil {
		t.Fatal(err)
	}
	prefs, _ := s.List(ctx)
	if len(prefs) != 2 {
		t.Fatal("setup failed")
	}

	if err := s.Delete(ctx, prefs[0].ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete missing = %v", err)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	st, err := s.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Total != 0 {
		t.Errorf("total after clear = %d", st.Total)
	}
}

func TestConcurrentMergesSameCategory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	// All goroutines submit near-identical text; serialization must
	// collapse them into one node instead of racing inserts.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.Apply(ctx, []Candidate{{
				Category:   "geographic_focus",
				Preference: "cares about european news",
				Confidence: 0.5,
			}})
			if err != nil {
				t.Errorf("Apply: %v", err)
			}
		}()
	}
	wg.Wait()

	prefs, _ := s.List(ctx)
	if len(prefs) != 1 {
		t.Errorf("concurrent merges produced %d nodes, want 1", len(prefs))
	}
}

func TestFormatForPrompt(t *testing.T) {
	if got := FormatForPrompt(nil); got != "" {
		t.Errorf("empty input: %q", got)
	}
	got := FormatForPrompt([]Preference{
		{Category: "detail_level", Preference: "Prefers concise summaries", Confidence: 0.9},
		{Category: "topics_of_interest", Preference: "Follows AI news", Confidence: 0.8},
	})
	for _, want := range []string{"detail_level", "Prefers concise summaries", "Follows AI news"} {
		if !strings.Contains(got, want) {
			t.Errorf("formatted prompt missing %q:\n%s", want, got)
		}
	}
}
