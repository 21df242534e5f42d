package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rcliao/agent-mind/internal/model"
)

// traverseFanout caps how many outgoing edges are followed per node.
const traverseFanout = 10

type queued struct {
	id    string
	depth int
}

// Traverse walks outgoing edges breadth-first from start. Every visited node
// is read through GetNode, so traversal counts as an access. Each node
// appears at most once, at its shallowest depth.
func (s *SQLiteStore) Traverse(ctx context.Context, start string, p TraverseParams) ([]model.TraversedNode, error) {
	maxDepth := p.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 2
	}
	maxNodes := p.MaxNodes
	if maxNodes <= 0 {
		maxNodes = 20
	}

	minWeight := Weight(weightOr(p.MinWeight, DefaultTraverseMinWeight))

	visited := map[string]bool{}
	queue := []queued{{id: start}}
	var out []model.TraversedNode

	for len(queue) > 0 && len(out) < maxNodes {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur.id] {
			continue
		}
		visited[cur.id] = true

		n, err := s.GetNode(ctx, cur.id)
		if errors.Is(err, ErrNotFound) && cur.depth > 0 {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("traverse: %w", err)
		}
		out = append(out, model.TraversedNode{Node: *n, Depth: cur.depth})

		if cur.depth >= maxDepth {
			continue
		}
		next, err := s.Connected(ctx, cur.id, ConnectedParams{
			Direction: model.DirectionOutgoing,
			MinWeight: minWeight,
			Limit:     traverseFanout,
		})
		if err != nil {
			return nil, fmt.Errorf("traverse: %w", err)
		}
		for _, c := range next {
			if !visited[c.ID] {
				queue = append(queue, queued{id: c.ID, depth: cur.depth + 1})
			}
		}
	}
	return out, nil
}
