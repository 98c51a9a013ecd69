package content

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ErrQueryRejected reports an ad hoc query that failed the read-only
// gate.
var ErrQueryRejected = errors.New("content: query rejected")

const articleColumns = `id, title, abstract, url, topic, author, location,
	latitude, longitude, published_at`

// PostgresSource implements Source over the articles table. Vector
// search goes through pgvector; the embedder turns query text into the
// same vector space the articles were indexed in.
type PostgresSource struct {
	pool     *pgxpool.Pool
	embedder Embedder
}

// NewPostgresSource creates a source over the given pool. embedder may
// be nil, which disables VectorSearch.
func NewPostgresSource(pool *pgxpool.Pool, embedder Embedder) *PostgresSource {
	return &PostgresSource{pool: pool, embedder: embedder}
}

func (s *PostgresSource) Search(ctx context.Context, query string, limit int) ([]Article, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+articleColumns+`
		 FROM articles
		 WHERE title ILIKE '%' || $1 || '%' OR abstract ILIKE '%' || $1 || '%'
		 ORDER BY published_at DESC
		 LIMIT $2`,
		query, limit)
	if err != nil {
		return nil, fmt.Errorf("search articles: %w", err)
	}
	defer rows.Close()
	return collectArticles(rows)
}

func (s *PostgresSource) Recent(ctx context.Context, limit int) ([]Article, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+articleColumns+`
		 FROM articles ORDER BY published_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent articles: %w", err)
	}
	defer rows.Close()
	return collectArticles(rows)
}

func (s *PostgresSource) ByTopic(ctx context.Context, topic string, limit int) ([]Article, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+articleColumns+`
		 FROM articles WHERE topic ILIKE $1
		 ORDER BY published_at DESC LIMIT $2`, topic, limit)
	if err != nil {
		return nil, fmt.Errorf("articles by topic: %w", err)
	}
	defer rows.Close()
	return collectArticles(rows)
}

func (s *PostgresSource) Topics(ctx context.Context) ([]TopicCount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT topic, COUNT(*) FROM articles
		 WHERE topic <> '' GROUP BY topic ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer rows.Close()

	out := make([]TopicCount, 0)
	for rows.Next() {
		var tc TopicCount
		if err := rows.Scan(&tc.Name, &tc.Articles); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

func (s *PostgresSource) VectorSearch(ctx context.Context, query string, limit int) ([]Article, error) {
	if s.embedder == nil {
		return nil, errors.New("content: vector search unavailable, no embedder configured")
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+articleColumns+`
		 FROM articles
		 WHERE embedding IS NOT NULL
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		pgvector.NewVector(vec), limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()
	return collectArticles(rows)
}

func (s *PostgresSource) ByLocation(ctx context.Context, lat, lon, radiusKM float64, limit int) ([]Article, error) {
	// Haversine over the article coordinates, radius in kilometers.
	rows, err := s.pool.Query(ctx,
		`SELECT `+articleColumns+`
		 FROM articles
		 WHERE latitude IS NOT NULL AND longitude IS NOT NULL
		   AND 6371 * 2 * asin(sqrt(
		         pow(sin(radians(latitude - $1) / 2), 2) +
		         cos(radians($1)) * cos(radians(latitude)) *
		         pow(sin(radians(longitude - $2) / 2), 2)
		       )) <= $3
		 ORDER BY published_at DESC
		 LIMIT $4`,
		lat, lon, radiusKM, limit)
	if err != nil {
		return nil, fmt.Errorf("articles by location: %w", err)
	}
	defer rows.Close()
	return collectArticles(rows)
}

func (s *PostgresSource) ByDateRange(ctx context.Context, from, to time.Time, limit int) ([]Article, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+articleColumns+`
		 FROM articles
		 WHERE published_at >= $1 AND published_at <= $2
		 ORDER BY published_at DESC LIMIT $3`,
		from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("articles by date range: %w", err)
	}
	defer rows.Close()
	return collectArticles(rows)
}

func (s *PostgresSource) Schema(ctx context.Context) (string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT table_name, column_name, data_type
		 FROM information_schema.columns
		 WHERE table_schema = 'public'
		 ORDER BY table_name, ordinal_position`)
	if err != nil {
		return "", fmt.Errorf("read schema: %w", err)
	}
	defer rows.Close()

	var b strings.Builder
	lastTable := ""
	for rows.Next() {
		var table, column, typ string
		if err := rows.Scan(&table, &column, &typ); err != nil {
			return "", fmt.Errorf("scan schema: %w", err)
		}
		if table != lastTable {
			if lastTable != "" {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "table %s:\n", table)
			lastTable = table
		}
		fmt.Fprintf(&b, "  %s %s\n", column, typ)
	}
	return b.String(), rows.Err()
}

func (s *PostgresSource) Query(ctx context.Context, query string) ([]map[string]any, error) {
	if err := ValidateReadOnlyQuery(query); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ad hoc query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	out := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		row := make(map[string]any, len(fields))
		for i, f := range fields {
			row[f.Name] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

var sqlCommentRe = regexp.MustCompile(`--[^\n]*|/\*.*?\*/`)

// forbiddenSQL lists statement keywords that can mutate state. Matched
// as whole words anywhere in the query, which over-rejects strings
// containing them; acceptable for a generated-query gate.
var forbiddenSQL = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|create|truncate|grant|revoke|copy|vacuum|call|do|execute|set|listen|notify)\b`)

// ValidateReadOnlyQuery accepts a single SELECT (or WITH ... SELECT)
// statement and nothing else.
func ValidateReadOnlyQuery(query string) error {
	cleaned := strings.TrimSpace(sqlCommentRe.ReplaceAllString(query, " "))
	cleaned = strings.TrimSuffix(cleaned, ";")
	if cleaned == "" {
		return fmt.Errorf("%w: empty query", ErrQueryRejected)
	}
	if strings.Contains(cleaned, ";") {
		return fmt.Errorf("%w: multiple statements", ErrQueryRejected)
	}
	upper := strings.ToUpper(cleaned)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return fmt.Errorf("%w: only SELECT queries are allowed", ErrQueryRejected)
	}
	if m := forbiddenSQL.FindString(cleaned); m != "" {
		return fmt.Errorf("%w: forbidden keyword %q", ErrQueryRejected, strings.ToUpper(m))
	}
	return nil
}

func collectArticles(rows pgx.Rows) ([]Article, error) {
	out := make([]Article, 0)
	for rows.Next() {
		var a Article
		if err := rows.Scan(&a.ID, &a.Title, &a.Abstract, &a.URL, &a.Topic,
			&a.Author, &a.Location, &a.Latitude, &a.Longitude, &a.PublishedAt); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
