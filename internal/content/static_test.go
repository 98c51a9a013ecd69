package content

import (
	"context"
	"errors"
	"testing"
	"time"
)

func ptr(f float64) *float64 { return &f }

func testArticles() []Article {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return []Article{
		{ID: "1", Title: "AI chips reshape data centers", Abstract: "semiconductor demand surges", Topic: "technology", Location: "San Francisco", Latitude: ptr(37.77), Longitude: ptr(-122.42), PublishedAt: base.Add(72 * time.Hour)},
		{ID: "2", Title: "Elections ahead in parliament", Abstract: "coalition talks continue", Topic: "politics", Location: "Berlin", Latitude: ptr(52.52), Longitude: ptr(13.40), PublishedAt: base.Add(48 * time.Hour)},
		{ID: "3", Title: "New AI model released", Abstract: "open weights announced", Topic: "technology", PublishedAt: base.Add(24 * time.Hour)},
		{ID: "4", Title: "Storm hits the coast", Abstract: "flooding reported", Topic: "weather", Location: "Hamburg", Latitude: ptr(53.55), Longitude: ptr(9.99), PublishedAt: base},
	}
}

func TestStaticSearchAndLimit(t *testing.T) {
	ctx := context.Background()
	s := NewStaticSource(testArticles())

	got, err := s.Search(ctx, "ai", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("search 'ai' = %d articles", len(got))
	}
	if got[0].ID != "1" || got[1].ID != "3" {
		t.Errorf("not recency ordered: %s, %s", got[0].ID, got[1].ID)
	}

	one, _ := s.Search(ctx, "ai", 1)
	if len(one) != 1 {
		t.Errorf("limit ignored: %d", len(one))
	}

	none, _ := s.Search(ctx, "cricket", 10)
	if len(none) != 0 {
		t.Errorf("expected empty result, got %d", len(none))
	}
}

func TestStaticRecentAndTopics(t *testing.T) {
	ctx := context.Background()
	s := NewStaticSource(testArticles())

	recent, _ := s.Recent(ctx, 2)
	if len(recent) != 2 || recent[0].ID != "1" {
		t.Errorf("recent = %+v", recent)
	}

	topics, _ := s.Topics(ctx)
	if len(topics) != 3 {
		t.Fatalf("topics = %d", len(topics))
	}
	if topics[0].Name != "technology" || topics[0].Articles != 2 {
		t.Errorf("top topic = %+v", topics[0])
	}

	byTopic, _ := s.ByTopic(ctx, "Politics", 10)
	if len(byTopic) != 1 || byTopic[0].ID != "2" {
		t.Errorf("byTopic = %+v", byTopic)
	}
}

func TestStaticByLocation(t *testing.T) {
	ctx := context.Background()
	s := NewStaticSource(testArticles())

	// Berlin and Hamburg are ~255 km apart.
	near, _ := s.ByLocation(ctx, 52.52, 13.40, 50, 10)
	if len(near) != 1 || near[0].ID != "2" {
		t.Errorf("50 km around Berlin = %+v", near)
	}
	wide, _ := s.ByLocation(ctx, 52.52, 13.40, 300, 10)
	if len(wide) != 2 {
		t.Errorf("300 km around Berlin = %d articles", len(wide))
	}
}

func TestStaticByDateRange(t *testing.T) {
	ctx := context.Background()
	s := NewStaticSource(testArticles())
	from := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 3, 23, 59, 0, 0, time.UTC)
	got, _ := s.ByDateRange(ctx, from, to, 10)
	if len(got) != 2 {
		t.Errorf("range = %d articles", len(got))
	}
}

func TestValidateReadOnlyQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		ok    bool
	}{
		{"plain select", "SELECT title FROM articles LIMIT 5", true},
		{"lowercase", "select count(*) from articles", true},
		{"cte", "WITH recent AS (SELECT * FROM articles) SELECT title FROM recent", true},
		{"trailing semicolon", "SELECT 1;", true},
		{"delete", "DELETE FROM articles", false},
		{"stacked statements", "SELECT 1; DROP TABLE articles", false},
		{"embedded drop", "SELECT 1 WHERE true; drop table articles --", false},
		{"update disguised", "  update articles set title = 'x'", false},
		{"comment hidden write", "SELECT 1 /* x */; INSERT INTO articles VALUES (1)", false},
		{"empty", "   ", false},
		{"comment only", "-- nothing here", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateReadOnlyQuery(tt.query)
			if tt.ok && err != nil {
				t.Errorf("rejected valid query: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrQueryRejected) {
				t.Errorf("accepted bad query %q (err=%v)", tt.query, err)
			}
		})
	}
}
