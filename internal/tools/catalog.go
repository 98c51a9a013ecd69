package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/johnymontana/memory-graph-workshop/internal/content"
)

// QueryGenerator translates a natural-language question into a
// read-only query against the content store, given its schema.
type QueryGenerator interface {
	GenerateQuery(ctx context.Context, schema, question string) (string, error)
}

// Catalog builds the ten domain tool definitions over the content
// source. gen may be nil, which makes text2graph_query report an
// error result instead of translating.
func Catalog(src content.Source, gen QueryGenerator) []Definition {
	return []Definition{
		{
			Name:        "search_news",
			Description: "Search news articles by keyword in title or abstract. Args: query (string), limit (int, default 5).",
			Escalate:    escalateLimit,
			Run: func(ctx context.Context, args map[string]any) (Result, error) {
				articles, err := src.Search(ctx, argString(args, "query"), argInt(args, "limit", defaultLimit))
				if err != nil {
					return Result{}, err
				}
				return Result{Data: articles, Count: len(articles)}, nil
			},
		},
		{
			Name:        "get_recent_news",
			Description: "Get the most recently published news articles. Args: limit (int, default 5).",
			Escalate:    escalateLimit,
			Run: func(ctx context.Context, args map[string]any) (Result, error) {
				articles, err := src.Recent(ctx, argInt(args, "limit", defaultLimit))
				if err != nil {
					return Result{}, err
				}
				return Result{Data: articles, Count: len(articles)}, nil
			},
		},
		{
			Name:        "get_news_by_topic",
			Description: "Get news articles filed under a topic. Args: topic (string), limit (int, default 5).",
			Escalate:    escalateLimit,
			Run: func(ctx context.Context, args map[string]any) (Result, error) {
				articles, err := src.ByTopic(ctx, argString(args, "topic"), argInt(args, "limit", defaultLimit))
				if err != nil {
					return Result{}, err
				}
				return Result{Data: articles, Count: len(articles)}, nil
			},
		},
		{
			Name:        "get_topics",
			Description: "List all news topics with article counts. No arguments.",
			Run: func(ctx context.Context, args map[string]any) (Result, error) {
				topics, err := src.Topics(ctx)
				if err != nil {
					return Result{}, err
				}
				return Result{Data: topics, Count: len(topics)}, nil
			},
		},
		{
			Name:        "vector_search_news",
			Description: "Semantic search over news articles by meaning rather than keywords. Args: query (string), limit (int, default 5).",
			Escalate:    escalateLimit,
			Run: func(ctx context.Context, args map[string]any) (Result, error) {
				articles, err := src.VectorSearch(ctx, argString(args, "query"), argInt(args, "limit", defaultLimit))
				if err != nil {
					return Result{}, err
				}
				return Result{Data: articles, Count: len(articles)}, nil
			},
		},
		{
			Name:        "search_news_by_location",
			Description: "Find news near a geographic point. Args: latitude (float), longitude (float), radius_km (float, default 50), limit (int, default 5).",
			Escalate:    escalateRadius,
			Run: func(ctx context.Context, args map[string]any) (Result, error) {
				articles, err := src.ByLocation(ctx,
					argFloat(args, "latitude", 0),
					argFloat(args, "longitude", 0),
					argFloat(args, "radius_km", defaultRadius),
					argInt(args, "limit", defaultLimit))
				if err != nil {
					return Result{}, err
				}
				return Result{Data: articles, Count: len(articles)}, nil
			},
		},
		{
			Name:        "search_news_by_date_range",
			Description: "Find news published between two dates. Args: start_date (YYYY-MM-DD), end_date (YYYY-MM-DD), limit (int, default 5).",
			Escalate:    escalateDateRange,
			Run: func(ctx context.Context, args map[string]any) (Result, error) {
				now := time.Now().UTC()
				from := argDate(args, "start_date", now.AddDate(0, 0, -7))
				to := argDate(args, "end_date", now)
				articles, err := src.ByDateRange(ctx, from, to, argInt(args, "limit", defaultLimit))
				if err != nil {
					return Result{}, err
				}
				return Result{Data: articles, Count: len(articles)}, nil
			},
		},
		{
			Name:        "get_database_schema",
			Description: "Describe the news database schema. No arguments.",
			Run: func(ctx context.Context, args map[string]any) (Result, error) {
				schema, err := src.Schema(ctx)
				if err != nil {
					return Result{}, err
				}
				count := 0
				if schema != "" {
					count = 1
				}
				return Result{Data: schema, Count: count}, nil
			},
		},
		{
			Name:        "text2graph_query",
			Description: "Translate a natural-language question into a read-only database query and run it. Args: question (string).",
			Run: func(ctx context.Context, args map[string]any) (Result, error) {
				if gen == nil {
					return Result{}, fmt.Errorf("text2graph_query: no query generator configured")
				}
				schema, err := src.Schema(ctx)
				if err != nil {
					return Result{}, err
				}
				query, err := gen.GenerateQuery(ctx, schema, argString(args, "question"))
				if err != nil {
					return Result{}, err
				}
				rows, err := src.Query(ctx, query)
				if err != nil {
					return Result{}, err
				}
				return Result{
					Data:  map[string]any{"query": query, "rows": rows},
					Count: len(rows),
				}, nil
			},
		},
		{
			Name:        "execute_graph_query",
			Description: "Run a read-only database query verbatim. Args: query (string). Writes are rejected.",
			Run: func(ctx context.Context, args map[string]any) (Result, error) {
				rows, err := src.Query(ctx, argString(args, "query"))
				if err != nil {
					return Result{}, err
				}
				return Result{Data: rows, Count: len(rows)}, nil
			},
		},
	}
}
