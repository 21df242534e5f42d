package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/rcliao/agent-mind/internal/model"
)

// DefaultFetchMultiplier is how many candidates per requested result
// SearchWeighted pulls before re-ranking.
const DefaultFetchMultiplier = 3

const nodeMatch = `(content LIKE ? ESCAPE '\' OR summary LIKE ? ESCAPE '\')`

// SearchNodes finds nodes whose content or summary contains the query,
// most recently accessed first.
func (s *SQLiteStore) SearchNodes(ctx context.Context, p SearchParams) ([]model.Node, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 10
	}

	pattern := likePattern(p.Query)
	query := `SELECT ` + nodeColumns + ` FROM memory_nodes WHERE ` + nodeMatch
	args := []interface{}{pattern, pattern}
	if p.Source != "" {
		query += ` AND source = ?`
		args = append(args, p.Source)
	}
	query += ` ORDER BY last_accessed DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	nodes, err := s.queryNodes(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search nodes: %w", err)
	}

	if p.Strengthen && len(nodes) >= 2 {
		ids := make([]string, len(nodes))
		for i, n := range nodes {
			ids[i] = n.ID
		}
		if _, err := s.CoActivate(ctx, ids, p.CoActivation); err != nil {
			return nil, err
		}
	}
	return nodes, nil
}

// SearchWeighted ranks text matches by a blend of recency and graph
// connectivity:
//
//	final = (1 - boost) * recency_rank + boost * graph_score
//
// recency_rank falls linearly from 1.0 for the most recently accessed
// candidate to 0.0 for the least; graph_score is the mean of the node's
// incoming and outgoing weight sums.
func (s *SQLiteStore) SearchWeighted(ctx context.Context, p WeightedSearchParams) ([]model.ScoredNode, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 10
	}
	mult := p.FetchMultiplier
	if mult <= 0 {
		mult = DefaultFetchMultiplier
	}
	boost := clamp01(p.WeightBoost)

	pattern := likePattern(p.Query)
	query := `SELECT ` + nodeColumns + `,
		(SELECT COALESCE(SUM(weight), 0) FROM memory_edges WHERE target_node_id = memory_nodes.id),
		(SELECT COALESCE(SUM(weight), 0) FROM memory_edges WHERE source_node_id = memory_nodes.id)
		FROM memory_nodes WHERE ` + nodeMatch
	args := []interface{}{pattern, pattern}
	if p.Source != "" {
		query += ` AND source = ?`
		args = append(args, p.Source)
	}
	query += ` ORDER BY last_accessed DESC, rowid DESC LIMIT ?`
	args = append(args, limit*mult)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search nodes: %w", err)
	}
	defer rows.Close()

	var candidates []model.ScoredNode
	for rows.Next() {
		var in, out float64
		n, err := scanNode(rows, &in, &out)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, model.ScoredNode{Node: n, GraphScore: graphScore(in, out)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range candidates {
		c := &candidates[i]
		c.RecencyRank = recencyRank(i, len(candidates))
		c.FinalScore = (1-boost)*c.RecencyRank + boost*c.GraphScore
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].FinalScore > candidates[j].FinalScore
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	if p.Strengthen && len(candidates) >= 2 {
		ids := make([]string, len(candidates))
		for i, c := range candidates {
			ids[i] = c.ID
		}
		if _, err := s.CoActivate(ctx, ids, p.CoActivation); err != nil {
			return nil, err
		}
	}
	return candidates, nil
}

func recencyRank(i, n int) float64 {
	if n <= 1 {
		return 1
	}
	return 1 - float64(i)/float64(n-1)
}
