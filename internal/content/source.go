// Package content is the domain news store behind the agent's tools.
// The Source interface is the fixed tool contract; implementations are
// a PostgreSQL store (production) and a static in-memory store (tests
// and demos).
package content

import (
	"context"
	"time"
)

// Article is one news item.
type Article struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Abstract    string    `json:"abstract,omitempty"`
	URL         string    `json:"url,omitempty"`
	Topic       string    `json:"topic,omitempty"`
	Author      string    `json:"author,omitempty"`
	Location    string    `json:"location,omitempty"`
	Latitude    *float64  `json:"latitude,omitempty"`
	Longitude   *float64  `json:"longitude,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// TopicCount is a topic with its article count.
type TopicCount struct {
	Name     string `json:"name"`
	Articles int    `json:"articles"`
}

// Source is the read-only contract the agent's tools are built on. All
// queries are idempotent for identical arguments, and an empty result
// slice is the detectable "empty" shape the retry policy keys on.
type Source interface {
	// Search matches query keywords against titles and abstracts.
	Search(ctx context.Context, query string, limit int) ([]Article, error)

	// Recent returns the newest articles by publication time.
	Recent(ctx context.Context, limit int) ([]Article, error)

	// ByTopic returns articles filed under an exact topic name.
	ByTopic(ctx context.Context, topic string, limit int) ([]Article, error)

	// Topics lists all topics with article counts.
	Topics(ctx context.Context) ([]TopicCount, error)

	// VectorSearch ranks articles by embedding similarity to the query.
	VectorSearch(ctx context.Context, query string, limit int) ([]Article, error)

	// ByLocation returns articles within radiusKM of a point.
	ByLocation(ctx context.Context, lat, lon, radiusKM float64, limit int) ([]Article, error)

	// ByDateRange returns articles published in [from, to].
	ByDateRange(ctx context.Context, from, to time.Time, limit int) ([]Article, error)

	// Schema describes the store's structure as text, for query
	// generation prompts.
	Schema(ctx context.Context) (string, error)

	// Query executes a read-only ad hoc query. Implementations must
	// reject anything that could write.
	Query(ctx context.Context, query string) ([]map[string]any, error)
}

// Embedder converts text to a vector for semantic search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
