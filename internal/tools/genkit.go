package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// DefineAll registers the catalog with genkit so the model sees each
// tool's schema. The returned refs go into ai.WithTools. The
// orchestrator requests tool calls back (it owns retries and the
// procedural record), so the handlers here delegate straight to the
// registry for callers that let genkit run tools itself.
func DefineAll(g *genkit.Genkit, reg *Registry) []ai.ToolRef {
	run := func(name string, args map[string]any) func(*ai.ToolContext) (string, error) {
		return func(tc *ai.ToolContext) (string, error) {
			def, ok := reg.Get(name)
			if !ok {
				return "", fmt.Errorf("unknown tool %q", name)
			}
			res, err := def.Run(tc.Context, args)
			if err != nil {
				return "", err
			}
			return res.MarshalOutput(), nil
		}
	}

	type queryInput struct {
		Query string `json:"query"`
		Limit int    `json:"limit,omitempty"`
	}
	type limitInput struct {
		Limit int `json:"limit,omitempty"`
	}
	type topicInput struct {
		Topic string `json:"topic"`
		Limit int    `json:"limit,omitempty"`
	}
	type locationInput struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		RadiusKM  float64 `json:"radius_km,omitempty"`
		Limit     int     `json:"limit,omitempty"`
	}
	type dateRangeInput struct {
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
		Limit     int    `json:"limit,omitempty"`
	}
	type emptyInput struct{}
	type questionInput struct {
		Question string `json:"question"`
	}

	desc := func(name string) string {
		d, _ := reg.Get(name)
		return d.Description
	}

	return []ai.ToolRef{
		genkit.DefineTool(g, "search_news", desc("search_news"),
			func(tc *ai.ToolContext, in queryInput) (string, error) {
				return run("search_news", map[string]any{"query": in.Query, "limit": float64(in.Limit)})(tc)
			}),
		genkit.DefineTool(g, "get_recent_news", desc("get_recent_news"),
			func(tc *ai.ToolContext, in limitInput) (string, error) {
				return run("get_recent_news", map[string]any{"limit": float64(in.Limit)})(tc)
			}),
		genkit.DefineTool(g, "get_news_by_topic", desc("get_news_by_topic"),
			func(tc *ai.ToolContext, in topicInput) (string, error) {
				return run("get_news_by_topic", map[string]any{"topic": in.Topic, "limit": float64(in.Limit)})(tc)
			}),
		genkit.DefineTool(g, "get_topics", desc("get_topics"),
			func(tc *ai.ToolContext, _ emptyInput) (string, error) {
				return run("get_topics", nil)(tc)
			}),
		genkit.DefineTool(g, "vector_search_news", desc("vector_search_news"),
			func(tc *ai.ToolContext, in queryInput) (string, error) {
				return run("vector_search_news", map[string]any{"query": in.Query, "limit": float64(in.Limit)})(tc)
			}),
		genkit.DefineTool(g, "search_news_by_location", desc("search_news_by_location"),
			func(tc *ai.ToolContext, in locationInput) (string, error) {
				return run("search_news_by_location", map[string]any{
					"latitude": in.Latitude, "longitude": in.Longitude,
					"radius_km": in.RadiusKM, "limit": float64(in.Limit),
				})(tc)
			}),
		genkit.DefineTool(g, "search_news_by_date_range", desc("search_news_by_date_range"),
			func(tc *ai.ToolContext, in dateRangeInput) (string, error) {
				return run("search_news_by_date_range", map[string]any{
					"start_date": in.StartDate, "end_date": in.EndDate, "limit": float64(in.Limit),
				})(tc)
			}),
		genkit.DefineTool(g, "get_database_schema", desc("get_database_schema"),
			func(tc *ai.ToolContext, _ emptyInput) (string, error) {
				return run("get_database_schema", nil)(tc)
			}),
		genkit.DefineTool(g, "text2graph_query", desc("text2graph_query"),
			func(tc *ai.ToolContext, in questionInput) (string, error) {
				return run("text2graph_query", map[string]any{"question": in.Question})(tc)
			}),
		genkit.DefineTool(g, "execute_graph_query", desc("execute_graph_query"),
			func(tc *ai.ToolContext, in queryInput) (string, error) {
				return run("execute_graph_query", map[string]any{"query": in.Query})(tc)
			}),
	}
}

// query generation prompt. %s placeholders: schema, question.
const text2queryPrompt = `You translate questions about a news database into a single read-only SQL SELECT statement.

Schema:
%s

Rules:
- Output exactly one SELECT statement, nothing else
- Never write, never use multiple statements
- Limit results to 20 rows unless the question asks otherwise

Question: %s

SQL:`

// GenkitQueryGenerator implements QueryGenerator with an LLM call.
type GenkitQueryGenerator struct {
	g     *genkit.Genkit
	model string
}

// NewGenkitQueryGenerator creates a generator using the given model.
func NewGenkitQueryGenerator(g *genkit.Genkit, model string) *GenkitQueryGenerator {
	return &GenkitQueryGenerator{g: g, model: model}
}

func (q *GenkitQueryGenerator) GenerateQuery(ctx context.Context, schema, question string) (string, error) {
	resp, err := genkit.Generate(ctx, q.g,
		ai.WithModelName(q.model),
		ai.WithPrompt(fmt.Sprintf(text2queryPrompt, schema, question)),
	)
	if err != nil {
		return "", fmt.Errorf("generate query: %w", err)
	}
	query := strings.TrimSpace(resp.Text())
	query = strings.TrimPrefix(query, "```sql")
	query = strings.TrimPrefix(query, "```")
	query = strings.TrimSuffix(query, "```")
	return strings.TrimSpace(query), nil
}
