package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rcliao/agent-mind/internal/model"
)

// GraphSnapshot is the portable form of the node/edge memory.
type GraphSnapshot struct {
	ExportedAt time.Time    `json:"exported_at"`
	Nodes      []model.Node `json:"nodes"`
	Edges      []model.Edge `json:"edges"`
}

// ImportResult counts rows written by ImportGraph.
type ImportResult struct {
	Nodes        int `json:"nodes"`
	Edges        int `json:"edges"`
	SkippedNodes int `json:"skipped_nodes"`
	SkippedEdges int `json:"skipped_edges"`
}

// ExportGraph returns every node and edge. Reading through here does not
// count as an access.
func (s *SQLiteStore) ExportGraph(ctx context.Context) (*GraphSnapshot, error) {
	nodes, err := s.queryNodes(ctx,
		`SELECT `+nodeColumns+` FROM memory_nodes ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("export nodes: %w", err)
	}
	edges, err := s.queryEdges(ctx,
		`SELECT `+edgeColumns+` FROM memory_edges ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("export edges: %w", err)
	}
	return &GraphSnapshot{ExportedAt: time.Now().UTC(), Nodes: nodes, Edges: edges}, nil
}

// ImportGraph loads a snapshot, keeping ids, weights and timestamps. Nodes
// and edges that already exist are skipped, so importing the same snapshot
// twice is a no-op.
func (s *SQLiteStore) ImportGraph(ctx context.Context, snap *GraphSnapshot) (*ImportResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res := &ImportResult{}
	for _, n := range snap.Nodes {
		if n.ID == "" || n.Content == "" {
			return nil, fmt.Errorf("import node: id and content are required")
		}
		source := n.Source
		if source == "" {
			source = model.SourceConversation
		}
		var tagsJSON *string
		if len(n.Tags) > 0 {
			b, _ := json.Marshal(n.Tags)
			str := string(b)
			tagsJSON = &str
		}
		created := importTime(n.CreatedAt)
		accessed := importTime(n.LastAccessed)
		r, err := tx.ExecContext(ctx,
			`INSERT INTO memory_nodes (`+nodeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO NOTHING`,
			n.ID, n.Content, nullString(n.Summary), source, tagsJSON, n.AccessCount, created, accessed)
		if err != nil {
			return nil, fmt.Errorf("import node %s: %w", n.ID, err)
		}
		if c, _ := r.RowsAffected(); c > 0 {
			res.Nodes++
		} else {
			res.SkippedNodes++
		}
	}

	for _, e := range snap.Edges {
		if e.Source == e.Target {
			return nil, fmt.Errorf("import edge %s: endpoints must differ", e.ID)
		}
		id := e.ID
		if id == "" {
			id = s.newID()
		}
		edgeType := e.Type
		if edgeType == "" {
			edgeType = model.DefaultEdgeType
		}
		r, err := tx.ExecContext(ctx,
			`INSERT INTO memory_edges (`+edgeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT DO NOTHING`,
			id, e.Source, e.Target, clamp01(e.Weight), edgeType,
			importTime(e.CreatedAt), importTime(e.LastStrengthened))
		if err != nil {
			return nil, fmt.Errorf("import edge %s -> %s: %w", e.Source, e.Target, err)
		}
		if c, _ := r.RowsAffected(); c > 0 {
			res.Edges++
		} else {
			res.SkippedEdges++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return res, nil
}

func importTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return formatTime(t)
}
