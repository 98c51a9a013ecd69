// Package preferences implements the declarative memory store: learned
// user preferences extracted from conversation turns, deduplicated and
// merged into a normalized per-category graph.
package preferences

import "time"

// Node labels and relationship types.
const (
	LabelPreference = "UserPreference"
	LabelCategory   = "PreferenceCategory"
	RelInCategory   = "IN_CATEGORY"
)

// Categories is the fixed enumerated set. Extraction output naming any
// other category is normalized to "other".
var Categories = map[string]string{
	"topics_of_interest": "News topics the user wants to hear about",
	"detail_level":       "How much depth the user wants in answers",
	"writing_style":      "Tone and formatting the user responds to",
	"topic_dislikes":     "Topics the user wants to avoid",
	"geographic_focus":   "Regions the user cares about",
	"news_sources":       "Publications the user trusts or prefers",
	"other":              "Preferences that fit no other category",
}

// A Preference is one learned fact about the user. Preferences are
// global, shared by all threads.
type Preference struct {
	ID          string    `json:"id"`
	Category    string    `json:"category"`
	Preference  string    `json:"preference"`
	Context     string    `json:"context,omitempty"`
	Confidence  float64   `json:"confidence"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// Candidate is one extraction result before merging.
type Candidate struct {
	Category   string  `json:"category"`
	Preference string  `json:"preference"`
	Context    string  `json:"context"`
	Confidence float64 `json:"confidence"`
}

// Status summarizes the declarative store for the API.
type Status struct {
	Total      int            `json:"total"`
	ByCategory map[string]int `json:"by_category"`
}
