package preferences

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/johnymontana/memory-graph-workshop/internal/graph"
	"github.com/johnymontana/memory-graph-workshop/internal/log"
)

// ErrNotFound reports an unknown preference id.
var ErrNotFound = errors.New("preferences: not found")

// Store merges extracted candidates into the declarative graph.
// Preferences are global, so concurrent merges into the same category
// serialize on a per-category lock to avoid lost updates.
type Store struct {
	store  graph.Store
	policy MergePolicy
	logger log.Logger

	mu       sync.Mutex
	catLocks map[string]*sync.Mutex
}

// NewStore creates a preference store with the given merge policy.
func NewStore(store graph.Store, policy MergePolicy, logger log.Logger) *Store {
	return &Store{
		store:    store,
		policy:   policy,
		logger:   logger,
		catLocks: make(map[string]*sync.Mutex),
	}
}

func (s *Store) categoryLock(category string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.catLocks[category]
	if !ok {
		m = &sync.Mutex{}
		s.catLocks[category] = m
	}
	return m
}

// Apply merges each candidate into the store. A candidate judged a
// duplicate of an existing preference in its category updates that
// preference in place: the text is replaced (most recent wins),
// confidence combines per policy, last_updated refreshes. Otherwise a
// new preference is inserted. Returns the number inserted and updated.
func (s *Store) Apply(ctx context.Context, candidates []Candidate) (inserted, updated int, err error) {
	for _, c := range candidates {
		c.Category = normalizeCategory(c.Category)
		c.Confidence = clamp01(c.Confidence)
		if strings.TrimSpace(c.Preference) == "" {
			continue
		}

		wasNew, err := s.applyOne(ctx, c)
		if err != nil {
			return inserted, updated, err
		}
		if wasNew {
			inserted++
		} else {
			updated++
		}
	}
	return inserted, updated, nil
}

func (s *Store) applyOne(ctx context.Context, c Candidate) (bool, error) {
	lock := s.categoryLock(c.Category)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now().UTC()

	existing, err := s.inCategory(ctx, c.Category)
	if err != nil {
		return false, err
	}
	for _, p := range existing {
		if !s.policy.Duplicate(p.Preference, c.Preference) {
			continue
		}
		props := map[string]any{
			"preference":   c.Preference,
			"confidence":   s.policy.Combine(p.Confidence, c.Confidence),
			"last_updated": now.Format(time.RFC3339Nano),
		}
		if c.Context != "" {
			props["context"] = c.Context
		}
		if err := s.store.UpdateNode(ctx, p.ID, props); err != nil {
			return false, fmt.Errorf("update preference: %w", err)
		}
		s.logger.Debug("preference merged", "category", c.Category, "id", p.ID)
		return false, nil
	}

	category, err := s.store.MergeNode(ctx, graph.MergeSpec{
		Label: LabelCategory,
		Key:   "name",
		Value: c.Category,
		ID:    uuid.NewString(),
		Create: map[string]any{
			"description": Categories[c.Category],
		},
	})
	if err != nil {
		return false, fmt.Errorf("upsert category: %w", err)
	}

	id := uuid.NewString()
	err = s.store.Tx(ctx, func(tx graph.Store) error {
		err := tx.CreateNode(ctx, graph.Node{
			ID:    id,
			Label: LabelPreference,
			Props: map[string]any{
				"category":     c.Category,
				"preference":   c.Preference,
				"context":      c.Context,
				"confidence":   c.Confidence,
				"created_at":   now.Format(time.RFC3339Nano),
				"last_updated": now.Format(time.RFC3339Nano),
			},
		})
		if err != nil {
			return err
		}
		return tx.CreateRelationship(ctx, RelInCategory, id, category.ID)
	})
	if err != nil {
		return false, fmt.Errorf("insert preference: %w", err)
	}
	s.logger.Debug("preference learned", "category", c.Category, "id", id)
	return true, nil
}

// List returns all preferences ordered by category, then recency.
func (s *Store) List(ctx context.Context) ([]Preference, error) {
	nodes, err := s.store.MatchNodes(ctx, LabelPreference)
	if err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}
	out := make([]Preference, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, fromNode(n))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].LastUpdated.After(out[j].LastUpdated)
	})
	return out, nil
}

func (s *Store) inCategory(ctx context.Context, category string) ([]Preference, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []Preference
	for _, p := range all {
		if p.Category == category {
			out = append(out, p)
		}
	}
	return out, nil
}

// Delete removes one preference by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	node, err := s.store.GetNode(ctx, id)
	if err != nil {
		if errors.Is(err, graph.ErrNodeNotFound) {
			return fmt.Errorf("preference %s: %w", id, ErrNotFound)
		}
		return err
	}
	if node.Label != LabelPreference {
		return fmt.Errorf("preference %s: %w", id, ErrNotFound)
	}
	return s.store.DeleteNodes(ctx, []string{id})
}

// Clear removes every preference. Category nodes stay; they are shared,
// long-lived vocabulary.
func (s *Store) Clear(ctx context.Context) error {
	nodes, err := s.store.MatchNodes(ctx, LabelPreference)
	if err != nil {
		return fmt.Errorf("clear preferences: %w", err)
	}
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	if err := s.store.DeleteNodes(ctx, ids); err != nil {
		return fmt.Errorf("clear preferences: %w", err)
	}
	s.logger.Info("preferences cleared", "count", len(ids))
	return nil
}

// Status reports preference counts for the API.
func (s *Store) Status(ctx context.Context) (Status, error) {
	all, err := s.List(ctx)
	if err != nil {
		return Status{}, err
	}
	st := Status{Total: len(all), ByCategory: make(map[string]int)}
	for _, p := range all {
		st.ByCategory[p.Category]++
	}
	return st, nil
}

// FormatForPrompt renders preferences as a compact text block for the
// agent's system context. Empty input yields an empty string.
func FormatForPrompt(prefs []Preference) string {
	if len(prefs) == 0 {
		return ""
	}
	byCat := make(map[string][]Preference)
	var order []string
	for _, p := range prefs {
		if _, seen := byCat[p.Category]; !seen {
			order = append(order, p.Category)
		}
		byCat[p.Category] = append(byCat[p.Category], p)
	}
	sort.Strings(order)

	var b strings.Builder
	b.WriteString("Known user preferences:\n")
	for _, cat := range order {
		fmt.Fprintf(&b, "- %s:\n", cat)
		for _, p := range byCat[cat] {
			fmt.Fprintf(&b, "  - %s (confidence %.2f)\n", p.Preference, p.Confidence)
		}
	}
	return b.String()
}

func normalizeCategory(category string) string {
	category = strings.ToLower(strings.TrimSpace(category))
	if _, ok := Categories[category]; !ok {
		return "other"
	}
	return category
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func fromNode(n graph.Node) Preference {
	p := Preference{
		ID:         n.ID,
		Category:   str(n.Props, "category"),
		Preference: str(n.Props, "preference"),
		Context:    str(n.Props, "context"),
	}
	if f, ok := n.Props["confidence"].(float64); ok {
		p.Confidence = f
	}
	p.CreatedAt = ts(n.Props, "created_at")
	p.LastUpdated = ts(n.Props, "last_updated")
	return p
}

func str(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

func ts(props map[string]any, key string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, str(props, key))
	if err != nil {
		return time.Time{}
	}
	return t
}
