// Package graph defines a minimal capability interface over a
// graph-structured store: labeled nodes with free-form properties,
// typed directed relationships, upsert-by-key, one-hop traversal, and
// atomic multi-write transactions.
//
// Two drivers are provided: a PostgreSQL driver (pgx, JSONB properties)
// for production and an in-memory driver for tests. Higher layers
// (internal/memory, internal/preferences) own the schema; this package
// only moves nodes and edges.
package graph

import (
	"context"
	"errors"
)

// ErrNodeNotFound is returned when an operation references a node id
// that does not exist in the store.
var ErrNodeNotFound = errors.New("graph: node not found")

// Node is a labeled node with writer-assigned id and JSON-compatible
// properties. Property values survive a JSON round trip, so numeric
// values read back as float64 regardless of how they were written.
type Node struct {
	ID    string         `json:"id"`
	Label string         `json:"label"`
	Props map[string]any `json:"properties"`
}

// Relationship is a typed directed edge between two nodes.
type Relationship struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	StartID string `json:"from"`
	EndID   string `json:"to"`
}

// MergeSpec describes an upsert-by-key operation. The node is matched by
// (Label, Key); Key is a property name whose value uniquely identifies
// the node within its label (e.g. a Tool's name).
type MergeSpec struct {
	Label  string
	Key    string
	Value  any
	ID     string // id assigned if the merge creates the node
	Create map[string]any
	Match  map[string]any
	// Increment lists integer properties bumped by one when the node
	// already exists. Applied atomically with Match.
	Increment []string
}

// Store is the capability set required by the memory layers.
//
// Implementations must be safe for concurrent use. Mutations issued
// through Tx are applied atomically: either the whole function's writes
// are visible or none are.
type Store interface {
	// CreateNode inserts a new node. The caller assigns the id; inserting
	// a duplicate id is an error, which makes idempotent re-creation
	// detectable by identity collision.
	CreateNode(ctx context.Context, n Node) error

	// MergeNode upserts a node by (label, key property). On create it
	// applies spec.Create; on match it applies spec.Match and bumps
	// spec.Increment counters. Returns the resulting node.
	MergeNode(ctx context.Context, spec MergeSpec) (Node, error)

	// GetNode fetches a node by id.
	GetNode(ctx context.Context, id string) (Node, error)

	// FindNode fetches the first node with the given label whose property
	// equals value. ok is false when no node matches.
	FindNode(ctx context.Context, label, prop string, value any) (Node, bool, error)

	// MatchNodes returns all nodes with the given label, in unspecified
	// order. Callers impose ordering themselves.
	MatchNodes(ctx context.Context, label string) ([]Node, error)

	// UpdateNode overlays props onto the node's existing properties.
	UpdateNode(ctx context.Context, id string, props map[string]any) error

	// CreateRelationship inserts a typed edge. Both endpoints must exist.
	CreateRelationship(ctx context.Context, relType, startID, endID string) error

	// Neighbors returns the nodes reachable from startID over outgoing
	// relationships of the given type, one hop.
	Neighbors(ctx context.Context, startID, relType string) ([]Node, error)

	// DeleteNodes removes the given nodes and every relationship that
	// touches them. Unknown ids are ignored.
	DeleteNodes(ctx context.Context, ids []string) error

	// Export returns the full graph for visualization. Read-only.
	Export(ctx context.Context) ([]Node, []Relationship, error)

	// Tx runs fn against a transactional view of the store. fn's writes
	// commit together when it returns nil and are discarded when it
	// returns an error.
	Tx(ctx context.Context, fn func(tx Store) error) error
}
