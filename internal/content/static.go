package content

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"
)

// StaticSource serves a fixed article set from memory. It backs tests
// and the demo mode where no database is configured.
type StaticSource struct {
	articles []Article
}

// NewStaticSource creates a source over the given articles.
func NewStaticSource(articles []Article) *StaticSource {
	sorted := make([]Article, len(articles))
	copy(sorted, articles)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].PublishedAt.After(sorted[j].PublishedAt)
	})
	return &StaticSource{articles: sorted}
}

func (s *StaticSource) Search(ctx context.Context, query string, limit int) ([]Article, error) {
	q := strings.ToLower(query)
	return s.filter(limit, func(a Article) bool {
		return strings.Contains(strings.ToLower(a.Title), q) ||
			strings.Contains(strings.ToLower(a.Abstract), q)
	}), nil
}

func (s *StaticSource) Recent(ctx context.Context, limit int) ([]Article, error) {
	return s.filter(limit, func(Article) bool { return true }), nil
}

func (s *StaticSource) ByTopic(ctx context.Context, topic string, limit int) ([]Article, error) {
	return s.filter(limit, func(a Article) bool {
		return strings.EqualFold(a.Topic, topic)
	}), nil
}

func (s *StaticSource) Topics(ctx context.Context) ([]TopicCount, error) {
	counts := make(map[string]int)
	for _, a := range s.articles {
		if a.Topic != "" {
			counts[a.Topic]++
		}
	}
	out := make([]TopicCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, TopicCount{Name: name, Articles: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Articles != out[j].Articles {
			return out[i].Articles > out[j].Articles
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// VectorSearch degrades to keyword search; the static source has no
// embeddings.
func (s *StaticSource) VectorSearch(ctx context.Context, query string, limit int) ([]Article, error) {
	return s.Search(ctx, query, limit)
}

func (s *StaticSource) ByLocation(ctx context.Context, lat, lon, radiusKM float64, limit int) ([]Article, error) {
	return s.filter(limit, func(a Article) bool {
		if a.Latitude == nil || a.Longitude == nil {
			return false
		}
		return haversineKM(lat, lon, *a.Latitude, *a.Longitude) <= radiusKM
	}), nil
}

func (s *StaticSource) ByDateRange(ctx context.Context, from, to time.Time, limit int) ([]Article, error) {
	return s.filter(limit, func(a Article) bool {
		return !a.PublishedAt.Before(from) && !a.PublishedAt.After(to)
	}), nil
}

func (s *StaticSource) Schema(ctx context.Context) (string, error) {
	return "table articles:\n  id uuid\n  title text\n  abstract text\n  url text\n  topic text\n  author text\n  location text\n  latitude double precision\n  longitude double precision\n  published_at timestamptz\n", nil
}

// Query is not supported; the static source has no query engine.
func (s *StaticSource) Query(ctx context.Context, query string) ([]map[string]any, error) {
	if err := ValidateReadOnlyQuery(query); err != nil {
		return nil, err
	}
	return []map[string]any{}, nil
}

func (s *StaticSource) filter(limit int, keep func(Article) bool) []Article {
	out := make([]Article, 0)
	for _, a := range s.articles {
		if keep(a) {
			out = append(out, a)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out
}

func haversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKM = 6371
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)
	a := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Pow(math.Sin(dLon/2), 2)
	return earthRadiusKM * 2 * math.Asin(math.Sqrt(a))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
