package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store implementation. It keeps everything
// under a single mutex and implements Tx with a full snapshot rollback,
// which is cheap at the scale tests run at.
type MemStore struct {
	mu    sync.Mutex
	nodes map[string]Node
	rels  map[string]Relationship
}

// NewMemStore creates an empty in-memory graph store.
func NewMemStore() *MemStore {
	return &MemStore{
		nodes: make(map[string]Node),
		rels:  make(map[string]Relationship),
	}
}

func (s *MemStore) CreateNode(ctx context.Context, n Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createNodeLocked(n)
}

func (s *MemStore) createNodeLocked(n Node) error {
	if _, exists := s.nodes[n.ID]; exists {
		return fmt.Errorf("graph: duplicate node id %q", n.ID)
	}
	s.nodes[n.ID] = Node{ID: n.ID, Label: n.Label, Props: copyProps(n.Props)}
	return nil
}

func (s *MemStore) MergeNode(ctx context.Context, spec MergeSpec) (Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mergeNodeLocked(spec)
}

func (s *MemStore) mergeNodeLocked(spec MergeSpec) (Node, error) {
	for id, n := range s.nodes {
		if n.Label != spec.Label || !propEqual(n.Props[spec.Key], spec.Value) {
			continue
		}
		props := copyProps(n.Props)
		for k, v := range spec.Match {
			props[k] = v
		}
		for _, k := range spec.Increment {
			props[k] = toInt(props[k]) + 1
		}
		n.Props = props
		s.nodes[id] = n
		return n, nil
	}
	id := spec.ID
	if id == "" {
		id = uuid.NewString()
	}
	props := copyProps(spec.Create)
	props[spec.Key] = spec.Value
	n := Node{ID: id, Label: spec.Label, Props: props}
	s.nodes[id] = n
	return n, nil
}

func (s *MemStore) GetNode(ctx context.Context, id string) (Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return Node{}, ErrNodeNotFound
	}
	n.Props = copyProps(n.Props)
	return n, nil
}

func (s *MemStore) FindNode(ctx context.Context, label, prop string, value any) (Node, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.nodes {
		if n.Label == label && propEqual(n.Props[prop], value) {
			n.Props = copyProps(n.Props)
			return n, true, nil
		}
	}
	return Node{}, false, nil
}

func (s *MemStore) MatchNodes(ctx context.Context, label string) ([]Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Node
	for _, n := range s.nodes {
		if n.Label == label {
			n.Props = copyProps(n.Props)
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *MemStore) UpdateNode(ctx context.Context, id string, props map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateNodeLocked(id, props)
}

func (s *MemStore) updateNodeLocked(id string, props map[string]any) error {
	n, ok := s.nodes[id]
	if !ok {
		return ErrNodeNotFound
	}
	merged := copyProps(n.Props)
	for k, v := range props {
		merged[k] = v
	}
	n.Props = merged
	s.nodes[id] = n
	return nil
}

func (s *MemStore) CreateRelationship(ctx context.Context, relType, startID, endID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createRelLocked(relType, startID, endID)
}

func (s *MemStore) createRelLocked(relType, startID, endID string) error {
	if _, ok := s.nodes[startID]; !ok {
		return fmt.Errorf("graph: relationship start %q: %w", startID, ErrNodeNotFound)
	}
	if _, ok := s.nodes[endID]; !ok {
		return fmt.Errorf("graph: relationship end %q: %w", endID, ErrNodeNotFound)
	}
	id := uuid.NewString()
	s.rels[id] = Relationship{ID: id, Type: relType, StartID: startID, EndID: endID}
	return nil
}

func (s *MemStore) Neighbors(ctx context.Context, startID, relType string) ([]Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Node
	for _, r := range s.rels {
		if r.StartID != startID || r.Type != relType {
			continue
		}
		if n, ok := s.nodes[r.EndID]; ok {
			n.Props = copyProps(n.Props)
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *MemStore) DeleteNodes(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteNodesLocked(ids)
	return nil
}

func (s *MemStore) deleteNodesLocked(ids []string) {
	gone := make(map[string]bool, len(ids))
	for _, id := range ids {
		gone[id] = true
		delete(s.nodes, id)
	}
	for id, r := range s.rels {
		if gone[r.StartID] || gone[r.EndID] {
			delete(s.rels, id)
		}
	}
}

func (s *MemStore) Export(ctx context.Context) ([]Node, []Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nodes := make([]Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		n.Props = copyProps(n.Props)
		nodes = append(nodes, n)
	}
	rels := make([]Relationship, 0, len(s.rels))
	for _, r := range s.rels {
		rels = append(rels, r)
	}
	return nodes, rels, nil
}

// Tx snapshots the maps, runs fn against a view that writes through to
// the live maps under the held lock, and restores the snapshot if fn
// fails. The store lock is held for the whole transaction, so fn must
// not call back into the parent store.
func (s *MemStore) Tx(ctx context.Context, fn func(tx Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapNodes := make(map[string]Node, len(s.nodes))
	for id, n := range s.nodes {
		n.Props = copyProps(n.Props)
		snapNodes[id] = n
	}
	snapRels := make(map[string]Relationship, len(s.rels))
	for id, r := range s.rels {
		snapRels[id] = r
	}

	if err := fn(&memTx{s: s}); err != nil {
		s.nodes = snapNodes
		s.rels = snapRels
		return err
	}
	return nil
}

// memTx forwards to the parent's locked helpers. The parent holds its
// mutex for the transaction's duration.
type memTx struct {
	s *MemStore
}

func (t *memTx) CreateNode(ctx context.Context, n Node) error {
	return t.s.createNodeLocked(n)
}

func (t *memTx) MergeNode(ctx context.Context, spec MergeSpec) (Node, error) {
	return t.s.mergeNodeLocked(spec)
}

func (t *memTx) GetNode(ctx context.Context, id string) (Node, error) {
	n, ok := t.s.nodes[id]
	if !ok {
		return Node{}, ErrNodeNotFound
	}
	n.Props = copyProps(n.Props)
	return n, nil
}

func (t *memTx) FindNode(ctx context.Context, label, prop string, value any) (Node, bool, error) {
	for _, n := range t.s.nodes {
		if n.Label == label && propEqual(n.Props[prop], value) {
			n.Props = copyProps(n.Props)
			return n, true, nil
		}
	}
	return Node{}, false, nil
}

func (t *memTx) MatchNodes(ctx context.Context, label string) ([]Node, error) {
	var out []Node
	for _, n := range t.s.nodes {
		if n.Label == label {
			n.Props = copyProps(n.Props)
			out = append(out, n)
		}
	}
	return out, nil
}

func (t *memTx) UpdateNode(ctx context.Context, id string, props map[string]any) error {
	return t.s.updateNodeLocked(id, props)
}

func (t *memTx) CreateRelationship(ctx context.Context, relType, startID, endID string) error {
	return t.s.createRelLocked(relType, startID, endID)
}

func (t *memTx) Neighbors(ctx context.Context, startID, relType string) ([]Node, error) {
	var out []Node
	for _, r := range t.s.rels {
		if r.StartID != startID || r.Type != relType {
			continue
		}
		if n, ok := t.s.nodes[r.EndID]; ok {
			n.Props = copyProps(n.Props)
			out = append(out, n)
		}
	}
	return out, nil
}

func (t *memTx) DeleteNodes(ctx context.Context, ids []string) error {
	t.s.deleteNodesLocked(ids)
	return nil
}

func (t *memTx) Export(ctx context.Context) ([]Node, []Relationship, error) {
	return nil, nil, fmt.Errorf("graph: export inside transaction not supported")
}

func (t *memTx) Tx(ctx context.Context, fn func(tx Store) error) error {
	return fn(t)
}

func copyProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}

// propEqual compares a stored property against a lookup value through a
// JSON lens, so int 3 matches float64 3 after a round trip.
func propEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	aj, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bj, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(aj) == string(bj)
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
