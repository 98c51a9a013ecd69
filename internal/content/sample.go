package content

import "time"

func ptrFloat(f float64) *float64 { return &f }

// SampleArticles returns a small fixed article set for demo mode, where
// no article database is configured. Timestamps are relative to now so
// recency and date-range tools behave sensibly.
func SampleArticles() []Article {
	now := time.Now().UTC()
	return []Article{
		{
			ID:          "sample-1",
			Title:       "City council approves downtown transit expansion",
			Abstract:    "The council voted 7-2 to fund two new light rail lines connecting the waterfront to the university district.",
			Topic:       "politics",
			Author:      "M. Alvarez",
			Location:    "Portland",
			Latitude:    ptrFloat(45.515),
			Longitude:   ptrFloat(-122.678),
			PublishedAt: now.Add(-2 * time.Hour),
		},
		{
			ID:          "sample-2",
			Title:       "Researchers map urban heat islands with satellite data",
			Abstract:    "A new study combines thermal imagery with street-level sensors to identify neighborhoods most at risk during heat waves.",
			Topic:       "science",
			Author:      "J. Chen",
			PublishedAt: now.Add(-6 * time.Hour),
		},
		{
			ID:          "sample-3",
			Title:       "Local bakery chain expands with three new storefronts",
			Abstract:    "The family-owned business cites demand for early-morning pickup and a revived downtown foot traffic.",
			Topic:       "business",
			Location:    "Portland",
			Latitude:    ptrFloat(45.523),
			Longitude:   ptrFloat(-122.681),
			PublishedAt: now.Add(-20 * time.Hour),
		},
		{
			ID:          "sample-4",
			Title:       "Storm system expected to bring record rainfall this weekend",
			Abstract:    "Forecasters warn of localized flooding in low-lying areas as an atmospheric river moves inland.",
			Topic:       "weather",
			PublishedAt: now.Add(-26 * time.Hour),
		},
		{
			ID:          "sample-5",
			Title:       "University robotics team wins national competition",
			Abstract:    "The autonomous navigation entry completed the obstacle course in record time.",
			Topic:       "science",
			Author:      "R. Okafor",
			PublishedAt: now.Add(-2 * 24 * time.Hour),
		},
		{
			ID:          "sample-6",
			Title:       "State legislature debates housing density bill",
			Abstract:    "The bill would allow fourplexes on most residential lots statewide, drawing both strong support and opposition.",
			Topic:       "politics",
			PublishedAt: now.Add(-3 * 24 * time.Hour),
		},
		{
			ID:          "sample-7",
			Title:       "Minor league season opens with sold-out stadium",
			Abstract:    "Fans packed the renovated ballpark for opening night despite chilly conditions.",
			Topic:       "sports",
			Location:    "Hillsboro",
			Latitude:    ptrFloat(45.523),
			Longitude:   ptrFloat(-122.989),
			PublishedAt: now.Add(-4 * 24 * time.Hour),
		},
		{
			ID:          "sample-8",
			Title:       "Regional grid operator tests battery storage at scale",
			Abstract:    "The pilot stores surplus solar generation for evening demand, cutting reliance on gas peaker plants.",
			Topic:       "business",
			PublishedAt: now.Add(-6 * 24 * time.Hour),
		},
	}
}
