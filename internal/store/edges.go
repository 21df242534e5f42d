package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rcliao/agent-mind/internal/model"
)

// Hebbian tuning defaults.
const (
	DefaultEdgeWeight    = 0.5
	DefaultReinforcement = 0.1
	DefaultCoActivation  = 0.02

	DefaultConnectedMinWeight = 0.1
	DefaultTraverseMinWeight  = 0.2
)

const edgeColumns = `id, source_node_id, target_node_id, weight, edge_type, created_at, last_strengthened`

// CreateEdge inserts a directed edge. If the ordered pair already exists the
// stored weight is raised by the reinforcement amount and capped at 1.0 in a
// single statement, so concurrent callers never lose an increment.
func (s *SQLiteStore) CreateEdge(ctx context.Context, p EdgeParams) (*model.Edge, error) {
	if p.Source == "" || p.Target == "" {
		return nil, fmt.Errorf("edge source and target are required")
	}
	if p.Source == p.Target {
		return nil, fmt.Errorf("edge endpoints must differ")
	}
	if err := s.nodesExist(ctx, p.Source, p.Target); err != nil {
		return nil, fmt.Errorf("resolve edge: %w", err)
	}

	edgeType := p.Type
	if edgeType == "" {
		edgeType = model.DefaultEdgeType
	}
	weight := clamp01(weightOr(p.Weight, DefaultEdgeWeight))
	reinforce := p.Reinforce
	if reinforce == 0 {
		reinforce = DefaultReinforcement
	}

	now := formatTime(time.Now())
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO memory_edges (`+edgeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source_node_id, target_node_id) DO UPDATE SET
			weight = MIN(1.0, MAX(0.0, memory_edges.weight + ?)),
			last_strengthened = excluded.last_strengthened
		 RETURNING `+edgeColumns,
		s.newID(), p.Source, p.Target, weight, edgeType, now, now, reinforce)
	e, err := scanEdge(row)
	if err != nil {
		return nil, fmt.Errorf("upsert edge: %w", err)
	}
	return &e, nil
}

// GetEdge returns the edge for an ordered pair.
func (s *SQLiteStore) GetEdge(ctx context.Context, source, target string) (*model.Edge, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+edgeColumns+` FROM memory_edges WHERE source_node_id = ? AND target_node_id = ?`,
		source, target)
	e, err := scanEdge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("edge %s -> %s: %w", source, target, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListEdges returns every edge touching id in either direction.
func (s *SQLiteStore) ListEdges(ctx context.Context, id string) ([]model.Edge, error) {
	return s.queryEdges(ctx,
		`SELECT `+edgeColumns+` FROM memory_edges
		 WHERE source_node_id = ? OR target_node_id = ?
		 ORDER BY weight DESC`, id, id)
}

// StrengthenEdge adds amount to an existing edge (negative amounts weaken
// it) and returns the new weight, clamped to [0, 1].
func (s *SQLiteStore) StrengthenEdge(ctx context.Context, source, target string, amount float64) (float64, error) {
	var w float64
	err := s.db.QueryRowContext(ctx,
		`UPDATE memory_edges
		 SET weight = MIN(1.0, MAX(0.0, weight + ?)), last_strengthened = ?
		 WHERE source_node_id = ? AND target_node_id = ?
		 RETURNING weight`,
		amount, formatTime(time.Now()), source, target).Scan(&w)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("edge %s -> %s: %w", source, target, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("strengthen edge: %w", err)
	}
	return w, nil
}

// CoActivate strengthens existing edges between every pair of ids, in both
// directions, and returns how many edges changed. Missing edges are not
// created.
func (s *SQLiteStore) CoActivate(ctx context.Context, ids []string, amount float64) (int, error) {
	if len(ids) < 2 {
		return 0, nil
	}
	if amount == 0 {
		amount = DefaultCoActivation
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE memory_edges
		 SET weight = MIN(1.0, MAX(0.0, weight + ?)), last_strengthened = ?
		 WHERE source_node_id = ? AND target_node_id = ?`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := formatTime(time.Now())
	strengthened := 0
	for i, a := range ids {
		for _, b := range ids[i+1:] {
			for _, pair := range [2][2]string{{a, b}, {b, a}} {
				res, err := stmt.ExecContext(ctx, amount, now, pair[0], pair[1])
				if err != nil {
					return 0, fmt.Errorf("co-activate: %w", err)
				}
				if n, _ := res.RowsAffected(); n > 0 {
					strengthened++
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return strengthened, nil
}

// Connected returns neighbors of id joined through edges of at least
// MinWeight, strongest first.
func (s *SQLiteStore) Connected(ctx context.Context, id string, p ConnectedParams) ([]model.ConnectedNode, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 10
	}
	direction := p.Direction
	if direction == "" {
		direction = model.DirectionBoth
	}

	minWeight := weightOr(p.MinWeight, DefaultConnectedMinWeight)

	var out []model.ConnectedNode
	if direction == model.DirectionOutgoing || direction == model.DirectionBoth {
		res, err := s.queryConnected(ctx, `e.target_node_id`, `e.source_node_id`, model.DirectionOutgoing, id, minWeight, limit)
		if err != nil {
			return nil, err
		}
		out = append(out, res...)
	}
	if direction == model.DirectionIncoming || direction == model.DirectionBoth {
		res, err := s.queryConnected(ctx, `e.source_node_id`, `e.target_node_id`, model.DirectionIncoming, id, minWeight, limit)
		if err != nil {
			return nil, err
		}
		out = append(out, res...)
	}
	if direction != model.DirectionOutgoing && direction != model.DirectionIncoming && direction != model.DirectionBoth {
		return nil, fmt.Errorf("invalid direction %q (valid: incoming, outgoing, both)", direction)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *SQLiteStore) queryConnected(ctx context.Context, joinCol, matchCol, direction, id string, minWeight float64, limit int) ([]model.ConnectedNode, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT n.id, n.content, n.summary, n.source, n.tags, n.access_count, n.created_at, n.last_accessed,
		        e.weight, e.edge_type
		 FROM memory_nodes n
		 JOIN memory_edges e ON n.id = `+joinCol+`
		 WHERE `+matchCol+` = ? AND e.weight >= ?
		 ORDER BY e.weight DESC
		 LIMIT ?`, id, minWeight, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ConnectedNode
	for rows.Next() {
		c := model.ConnectedNode{Direction: direction}
		n, err := scanNode(rows, &c.Weight, &c.EdgeType)
		if err != nil {
			return nil, err
		}
		c.Node = n
		out = append(out, c)
	}
	return out, rows.Err()
}

// Connectivity reports incoming and outgoing edge aggregates for a node.
func (s *SQLiteStore) Connectivity(ctx context.Context, id string) (*model.Connectivity, error) {
	if err := s.nodesExist(ctx, id); err != nil {
		return nil, err
	}

	c := &model.Connectivity{NodeID: id}
	aggregate := func(col string, dst *model.EdgeAggregate) error {
		return s.db.QueryRowContext(ctx,
			`SELECT COUNT(*), COALESCE(SUM(weight), 0), COALESCE(AVG(weight), 0)
			 FROM memory_edges WHERE `+col+` = ?`, id).
			Scan(&dst.Count, &dst.TotalWeight, &dst.AvgWeight)
	}
	if err := aggregate("target_node_id", &c.Incoming); err != nil {
		return nil, fmt.Errorf("incoming edges: %w", err)
	}
	if err := aggregate("source_node_id", &c.Outgoing); err != nil {
		return nil, fmt.Errorf("outgoing edges: %w", err)
	}
	c.GraphScore = graphScore(c.Incoming.TotalWeight, c.Outgoing.TotalWeight)
	return c, nil
}

// DecayEdges applies weight = max(floor, weight * (1 - rate)) to every edge.
// Edges are never deleted; weights approach floor asymptotically.
func (s *SQLiteStore) DecayEdges(ctx context.Context, rate, floor float64) (*model.DecayStats, error) {
	if rate < 0 || rate > 1 {
		return nil, fmt.Errorf("decay rate %v out of range [0, 1]", rate)
	}
	if floor < 0 || floor > 1 {
		return nil, fmt.Errorf("decay floor %v out of range [0, 1]", floor)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stats := &model.DecayStats{DecayRate: rate, Floor: floor}
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(weight), 0) FROM memory_edges`).Scan(&stats.BeforeAvgWeight); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE memory_edges SET weight = MAX(?, weight * ?)`, floor, 1-rate); err != nil {
		return nil, fmt.Errorf("decay edges: %w", err)
	}
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(weight), 0) FROM memory_edges`).Scan(&stats.EdgeCount, &stats.AfterAvgWeight); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *SQLiteStore) queryEdges(ctx context.Context, query string, args ...interface{}) ([]model.Edge, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []model.Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func scanEdge(row scanner) (model.Edge, error) {
	var e model.Edge
	var createdAt, strengthened string
	if err := row.Scan(&e.ID, &e.Source, &e.Target, &e.Weight, &e.Type, &createdAt, &strengthened); err != nil {
		return e, err
	}
	e.CreatedAt = parseTime(createdAt)
	e.LastStrengthened = parseTime(strengthened)
	return e, nil
}

// graphScore averages the incoming and outgoing weight sums.
func graphScore(incoming, outgoing float64) float64 {
	return (incoming + outgoing) / 2
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
