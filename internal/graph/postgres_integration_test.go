//go:build integration
// +build integration

package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/johnymontana/memory-graph-workshop/internal/testutil"
)

func TestPostgresStoreNodes(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	s := NewPostgresStore(db.Pool)

	t.Run("create and get", func(t *testing.T) {
		testutil.CleanGraphTables(t, db.Pool)
		n := Node{ID: "n1", Label: "Thread", Props: map[string]any{"title": "hello"}}
		if err := s.CreateNode(ctx, n); err != nil {
			t.Fatalf("CreateNode: %v", err)
		}
		got, err := s.GetNode(ctx, "n1")
		if err != nil {
			t.Fatalf("GetNode: %v", err)
		}
		if got.Label != "Thread" || got.Props["title"] != "hello" {
			t.Errorf("got %+v", got)
		}

		if err := s.CreateNode(ctx, n); err == nil {
			t.Error("duplicate id accepted")
		}
		if _, err := s.GetNode(ctx, "missing"); !errors.Is(err, ErrNodeNotFound) {
			t.Errorf("want ErrNodeNotFound, got %v", err)
		}
	})

	t.Run("find by jsonb equality", func(t *testing.T) {
		testutil.CleanGraphTables(t, db.Pool)
		seed := []Node{
			{ID: "t1", Label: "Tool", Props: map[string]any{"name": "search_news", "usage_count": 3}},
			{ID: "t2", Label: "Tool", Props: map[string]any{"name": "get_article", "usage_count": 1}},
		}
		for _, n := range seed {
			if err := s.CreateNode(ctx, n); err != nil {
				t.Fatalf("CreateNode %s: %v", n.ID, err)
			}
		}

		got, ok, err := s.FindNode(ctx, "Tool", "name", "search_news")
		if err != nil || !ok {
			t.Fatalf("FindNode by string: ok=%v err=%v", ok, err)
		}
		if got.ID != "t1" {
			t.Errorf("got %s, want t1", got.ID)
		}

		// JSONB round-trips integers as float64; equality must still
		// hit because both sides compare as jsonb numbers.
		got, ok, err = s.FindNode(ctx, "Tool", "usage_count", 1)
		if err != nil || !ok {
			t.Fatalf("FindNode by number: ok=%v err=%v", ok, err)
		}
		if got.ID != "t2" {
			t.Errorf("got %s, want t2", got.ID)
		}

		if _, ok, err := s.FindNode(ctx, "Tool", "name", "nope"); err != nil || ok {
			t.Errorf("absent value: ok=%v err=%v", ok, err)
		}
		if _, ok, err := s.FindNode(ctx, "Thread", "name", "search_news"); err != nil || ok {
			t.Errorf("label filter leaked: ok=%v err=%v", ok, err)
		}
	})

	t.Run("update overlays props", func(t *testing.T) {
		testutil.CleanGraphTables(t, db.Pool)
		n := Node{ID: "p1", Label: "UserPreference", Props: map[string]any{
			"category": "technology", "weight": 0.5,
		}}
		if err := s.CreateNode(ctx, n); err != nil {
			t.Fatalf("CreateNode: %v", err)
		}
		if err := s.UpdateNode(ctx, "p1", map[string]any{"weight": 0.8}); err != nil {
			t.Fatalf("UpdateNode: %v", err)
		}
		got, err := s.GetNode(ctx, "p1")
		if err != nil {
			t.Fatalf("GetNode: %v", err)
		}
		if got.Props["weight"] != 0.8 || got.Props["category"] != "technology" {
			t.Errorf("props %+v", got.Props)
		}

		if err := s.UpdateNode(ctx, "missing", map[string]any{"x": 1}); !errors.Is(err, ErrNodeNotFound) {
			t.Errorf("want ErrNodeNotFound, got %v", err)
		}
	})

	t.Run("match by label", func(t *testing.T) {
		testutil.CleanGraphTables(t, db.Pool)
		for i := 0; i < 3; i++ {
			n := Node{ID: fmt.Sprintf("m%d", i), Label: "Message", Props: map[string]any{}}
			if err := s.CreateNode(ctx, n); err != nil {
				t.Fatalf("CreateNode: %v", err)
			}
		}
		got, err := s.MatchNodes(ctx, "Message")
		if err != nil {
			t.Fatalf("MatchNodes: %v", err)
		}
		if len(got) != 3 {
			t.Errorf("got %d nodes, want 3", len(got))
		}
	})
}

func TestPostgresStoreRelationships(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	s := NewPostgresStore(db.Pool)

	t.Run("neighbors follow type and direction", func(t *testing.T) {
		testutil.CleanGraphTables(t, db.Pool)
		for _, id := range []string{"th1", "m1", "m2"} {
			if err := s.CreateNode(ctx, Node{ID: id, Label: "Message", Props: map[string]any{}}); err != nil {
				t.Fatalf("CreateNode %s: %v", id, err)
			}
		}
		if err := s.CreateRelationship(ctx, "FIRST_MESSAGE", "th1", "m1"); err != nil {
			t.Fatalf("CreateRelationship: %v", err)
		}
		if err := s.CreateRelationship(ctx, "NEXT_MESSAGE", "m1", "m2"); err != nil {
			t.Fatalf("CreateRelationship: %v", err)
		}

		got, err := s.Neighbors(ctx, "m1", "NEXT_MESSAGE")
		if err != nil {
			t.Fatalf("Neighbors: %v", err)
		}
		if len(got) != 1 || got[0].ID != "m2" {
			t.Errorf("got %+v, want [m2]", got)
		}
		// Reverse direction and wrong type both come back empty.
		if got, _ := s.Neighbors(ctx, "m2", "NEXT_MESSAGE"); len(got) != 0 {
			t.Errorf("reverse traversal returned %+v", got)
		}
		if got, _ := s.Neighbors(ctx, "m1", "FIRST_MESSAGE"); len(got) != 0 {
			t.Errorf("wrong rel type returned %+v", got)
		}
	})

	t.Run("delete cascades to touching relationships", func(t *testing.T) {
		testutil.CleanGraphTables(t, db.Pool)
		for _, id := range []string{"a", "b", "c"} {
			if err := s.CreateNode(ctx, Node{ID: id, Label: "ReasoningStep", Props: map[string]any{}}); err != nil {
				t.Fatalf("CreateNode %s: %v", id, err)
			}
		}
		if err := s.CreateRelationship(ctx, "NEXT_STEP", "a", "b"); err != nil {
			t.Fatalf("CreateRelationship: %v", err)
		}
		if err := s.CreateRelationship(ctx, "NEXT_STEP", "b", "c"); err != nil {
			t.Fatalf("CreateRelationship: %v", err)
		}

		if err := s.DeleteNodes(ctx, []string{"b"}); err != nil {
			t.Fatalf("DeleteNodes: %v", err)
		}
		_, rels, err := s.Export(ctx)
		if err != nil {
			t.Fatalf("Export: %v", err)
		}
		if len(rels) != 0 {
			t.Errorf("%d relationships survived the cascade", len(rels))
		}
		if _, err := s.GetNode(ctx, "a"); err != nil {
			t.Errorf("untouched node gone: %v", err)
		}
	})

	t.Run("export returns both sides", func(t *testing.T) {
		testutil.CleanGraphTables(t, db.Pool)
		if err := s.CreateNode(ctx, Node{ID: "x", Label: "Thread", Props: map[string]any{}}); err != nil {
			t.Fatalf("CreateNode: %v", err)
		}
		if err := s.CreateNode(ctx, Node{ID: "y", Label: "Message", Props: map[string]any{}}); err != nil {
			t.Fatalf("CreateNode: %v", err)
		}
		if err := s.CreateRelationship(ctx, "FIRST_MESSAGE", "x", "y"); err != nil {
			t.Fatalf("CreateRelationship: %v", err)
		}
		nodes, rels, err := s.Export(ctx)
		if err != nil {
			t.Fatalf("Export: %v", err)
		}
		if len(nodes) != 2 || len(rels) != 1 {
			t.Errorf("got %d nodes %d rels", len(nodes), len(rels))
		}
		if rels[0].Type != "FIRST_MESSAGE" || rels[0].StartID != "x" || rels[0].EndID != "y" {
			t.Errorf("relationship %+v", rels[0])
		}
	})
}

func TestPostgresStoreMergeNode(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	s := NewPostgresStore(db.Pool)

	t.Run("creates then increments", func(t *testing.T) {
		testutil.CleanGraphTables(t, db.Pool)
		spec := MergeSpec{
			ID:    "tool-1",
			Label: "Tool",
			Key:   "name",
			Value: "search_news",
			Create: map[string]any{
				"description": "keyword search",
				"usage_count": 1,
			},
			Increment: []string{"usage_count"},
		}
		first, err := s.MergeNode(ctx, spec)
		if err != nil {
			t.Fatalf("MergeNode create: %v", err)
		}
		if first.ID != "tool-1" || toInt(first.Props["usage_count"]) != 1 {
			t.Errorf("created %+v", first)
		}

		spec.ID = "tool-ignored"
		second, err := s.MergeNode(ctx, spec)
		if err != nil {
			t.Fatalf("MergeNode match: %v", err)
		}
		if second.ID != "tool-1" {
			t.Errorf("matched %s, want tool-1", second.ID)
		}
		if toInt(second.Props["usage_count"]) != 2 {
			t.Errorf("usage_count %v, want 2", second.Props["usage_count"])
		}
	})

	t.Run("concurrent merges serialize on the key", func(t *testing.T) {
		testutil.CleanGraphTables(t, db.Pool)
		const workers = 8
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.MergeNode(ctx, MergeSpec{
					ID:        fmt.Sprintf("cand-%d", i),
					Label:     "Tool",
					Key:       "name",
					Value:     "get_article",
					Create:    map[string]any{"usage_count": 1},
					Increment: []string{"usage_count"},
				})
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("MergeNode: %v", err)
			}
		}

		got, err := s.MatchNodes(ctx, "Tool")
		if err != nil {
			t.Fatalf("MatchNodes: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("advisory lock missed: %d Tool nodes", len(got))
		}
		if toInt(got[0].Props["usage_count"]) != workers {
			t.Errorf("usage_count %v, want %d", got[0].Props["usage_count"], workers)
		}
	})
}

func TestPostgresStoreTxRollback(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	s := NewPostgresStore(db.Pool)

	boom := errors.New("boom")
	err := s.Tx(ctx, func(tx Store) error {
		if err := tx.CreateNode(ctx, Node{ID: "r1", Label: "Thread", Props: map[string]any{}}); err != nil {
			return err
		}
		if err := tx.CreateNode(ctx, Node{ID: "r2", Label: "Message", Props: map[string]any{}}); err != nil {
			return err
		}
		if err := tx.CreateRelationship(ctx, "FIRST_MESSAGE", "r1", "r2"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	nodes, rels, err := s.Export(ctx)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(nodes) != 0 || len(rels) != 0 {
		t.Errorf("rollback left %d nodes %d rels", len(nodes), len(rels))
	}

	err = s.Tx(ctx, func(tx Store) error {
		return tx.CreateNode(ctx, Node{ID: "r3", Label: "Thread", Props: map[string]any{}})
	})
	if err != nil {
		t.Fatalf("Tx commit: %v", err)
	}
	if _, err := s.GetNode(ctx, "r3"); err != nil {
		t.Errorf("committed node missing: %v", err)
	}
}
