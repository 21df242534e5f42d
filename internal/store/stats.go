package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath         string        `json:"db_path"`
	DBSizeBytes    int64         `json:"db_size_bytes"`
	Messages       int           `json:"messages"`
	Blocks         int           `json:"blocks"`
	Summaries      int           `json:"summaries"`
	Nodes          int           `json:"node_count"`
	Edges          int           `json:"edge_count"`
	AvgConnections float64       `json:"avg_connections"`
	AvgEdgeWeight  float64       `json:"avg_edge_weight"`
	NodesBySource  []SourceStats `json:"nodes_by_source"`
}

// SourceStats holds per-source node counts.
type SourceStats struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath string) (*Stats, error) {
	st := &Stats{DBPath: dbPath}

	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	counts := []struct {
		query string
		dst   interface{}
	}{
		{`SELECT COUNT(*) FROM messages`, &st.Messages},
		{`SELECT COUNT(*) FROM memory_blocks`, &st.Blocks},
		{`SELECT COUNT(*) FROM summaries`, &st.Summaries},
		{`SELECT COUNT(*) FROM memory_nodes`, &st.Nodes},
		{`SELECT COUNT(*) FROM memory_edges`, &st.Edges},
		{`SELECT COALESCE(AVG(weight), 0) FROM memory_edges`, &st.AvgEdgeWeight},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return st, err
		}
	}
	if st.Nodes > 0 {
		st.AvgConnections = float64(st.Edges) / float64(st.Nodes)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT source, COUNT(*) AS cnt
		FROM memory_nodes
		GROUP BY source ORDER BY cnt DESC, source`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var ss SourceStats
		if err := rows.Scan(&ss.Source, &ss.Count); err != nil {
			return st, err
		}
		st.NodesBySource = append(st.NodesBySource, ss)
	}
	return st, rows.Err()
}
