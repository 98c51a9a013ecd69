package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, so
// every query helper runs unchanged inside or outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store on PostgreSQL. Nodes live in
// graph_nodes with JSONB properties; relationships in graph_rels with
// ON DELETE CASCADE foreign keys, so deleting nodes detaches their
// edges in one statement.
type PostgresStore struct {
	pool *pgxpool.Pool
	q    querier
}

// NewPostgresStore creates a store backed by the given pool. The schema
// is managed by internal/database migrations.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, q: pool}
}

func (s *PostgresStore) CreateNode(ctx context.Context, n Node) error {
	props, err := json.Marshal(ensureProps(n.Props))
	if err != nil {
		return fmt.Errorf("marshal node props: %w", err)
	}
	_, err = s.q.Exec(ctx,
		`INSERT INTO graph_nodes (id, label, props) VALUES ($1, $2, $3)`,
		n.ID, n.Label, props)
	if err != nil {
		return fmt.Errorf("create node %s: %w", n.ID, err)
	}
	return nil
}

// MergeNode takes an advisory lock on the merge key so concurrent
// merges of the same key serialize instead of racing the existence
// check. The lock is transaction scoped; outside a transaction the
// check-then-write pair runs in its own.
func (s *PostgresStore) MergeNode(ctx context.Context, spec MergeSpec) (Node, error) {
	var out Node
	err := s.Tx(ctx, func(tx Store) error {
		ptx := tx.(*PostgresStore)
		key := spec.Label + ":" + fmt.Sprint(spec.Value)
		if _, err := ptx.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return fmt.Errorf("merge lock: %w", err)
		}

		existing, ok, err := ptx.FindNode(ctx, spec.Label, spec.Key, spec.Value)
		if err != nil {
			return err
		}
		if !ok {
			id := spec.ID
			n := Node{ID: id, Label: spec.Label, Props: copyProps(spec.Create)}
			n.Props[spec.Key] = spec.Value
			if err := ptx.CreateNode(ctx, n); err != nil {
				return err
			}
			out = n
			return nil
		}

		updates := copyProps(spec.Match)
		for _, k := range spec.Increment {
			updates[k] = toInt(existing.Props[k]) + 1
		}
		if len(updates) > 0 {
			if err := ptx.UpdateNode(ctx, existing.ID, updates); err != nil {
				return err
			}
			for k, v := range updates {
				existing.Props[k] = v
			}
		}
		out = existing
		return nil
	})
	return out, err
}

func (s *PostgresStore) GetNode(ctx context.Context, id string) (Node, error) {
	row := s.q.QueryRow(ctx,
		`SELECT id, label, props FROM graph_nodes WHERE id = $1`, id)
	n, err := scanNode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Node{}, ErrNodeNotFound
	}
	return n, err
}

func (s *PostgresStore) FindNode(ctx context.Context, label, prop string, value any) (Node, bool, error) {
	val, err := json.Marshal(value)
	if err != nil {
		return Node{}, false, fmt.Errorf("marshal lookup value: %w", err)
	}
	row := s.q.QueryRow(ctx,
		`SELECT id, label, props FROM graph_nodes
		 WHERE label = $1 AND props -> $2 = $3::jsonb
		 LIMIT 1`,
		label, prop, val)
	n, err := scanNode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Node{}, false, nil
	}
	if err != nil {
		return Node{}, false, err
	}
	return n, true, nil
}

func (s *PostgresStore) MatchNodes(ctx context.Context, label string) ([]Node, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, label, props FROM graph_nodes WHERE label = $1`, label)
	if err != nil {
		return nil, fmt.Errorf("match nodes %s: %w", label, err)
	}
	defer rows.Close()
	return collectNodes(rows)
}

func (s *PostgresStore) UpdateNode(ctx context.Context, id string, props map[string]any) error {
	overlay, err := json.Marshal(ensureProps(props))
	if err != nil {
		return fmt.Errorf("marshal update props: %w", err)
	}
	tag, err := s.q.Exec(ctx,
		`UPDATE graph_nodes SET props = props || $2::jsonb WHERE id = $1`,
		id, overlay)
	if err != nil {
		return fmt.Errorf("update node %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNodeNotFound
	}
	return nil
}

func (s *PostgresStore) CreateRelationship(ctx context.Context, relType, startID, endID string) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO graph_rels (id, rel_type, start_id, end_id)
		 VALUES (gen_random_uuid(), $1, $2, $3)`,
		relType, startID, endID)
	if err != nil {
		return fmt.Errorf("create relationship %s: %w", relType, err)
	}
	return nil
}

func (s *PostgresStore) Neighbors(ctx context.Context, startID, relType string) ([]Node, error) {
	rows, err := s.q.Query(ctx,
		`SELECT n.id, n.label, n.props
		 FROM graph_rels r
		 JOIN graph_nodes n ON n.id = r.end_id
		 WHERE r.start_id = $1 AND r.rel_type = $2`,
		startID, relType)
	if err != nil {
		return nil, fmt.Errorf("neighbors of %s: %w", startID, err)
	}
	defer rows.Close()
	return collectNodes(rows)
}

func (s *PostgresStore) DeleteNodes(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.q.Exec(ctx, `DELETE FROM graph_nodes WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("delete nodes: %w", err)
	}
	return nil
}

func (s *PostgresStore) Export(ctx context.Context) ([]Node, []Relationship, error) {
	rows, err := s.q.Query(ctx, `SELECT id, label, props FROM graph_nodes`)
	if err != nil {
		return nil, nil, fmt.Errorf("export nodes: %w", err)
	}
	nodes, err := collectNodes(rows)
	rows.Close()
	if err != nil {
		return nil, nil, err
	}

	relRows, err := s.q.Query(ctx,
		`SELECT id, rel_type, start_id, end_id FROM graph_rels`)
	if err != nil {
		return nil, nil, fmt.Errorf("export relationships: %w", err)
	}
	defer relRows.Close()
	rels := make([]Relationship, 0)
	for relRows.Next() {
		var r Relationship
		if err := relRows.Scan(&r.ID, &r.Type, &r.StartID, &r.EndID); err != nil {
			return nil, nil, fmt.Errorf("scan relationship: %w", err)
		}
		rels = append(rels, r)
	}
	return nodes, rels, relRows.Err()
}

func (s *PostgresStore) Tx(ctx context.Context, fn func(tx Store) error) error {
	// Already inside a transaction; nest by reusing it.
	if s.pool == nil {
		return fn(s)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&PostgresStore{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func scanNode(row pgx.Row) (Node, error) {
	var n Node
	var props []byte
	if err := row.Scan(&n.ID, &n.Label, &props); err != nil {
		return Node{}, err
	}
	if err := json.Unmarshal(props, &n.Props); err != nil {
		return Node{}, fmt.Errorf("unmarshal node props: %w", err)
	}
	return n, nil
}

func collectNodes(rows pgx.Rows) ([]Node, error) {
	out := make([]Node, 0)
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func ensureProps(props map[string]any) map[string]any {
	if props == nil {
		return map[string]any{}
	}
	return props
}
