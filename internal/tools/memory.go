package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rcliao/agent-mind/internal/model"
	"github.com/rcliao/agent-mind/internal/store"
)

// MemoryStore is the storage surface the built-in memory tools need.
type MemoryStore interface {
	store.GraphStore
	UpsertBlock(ctx context.Context, p store.BlockParams) (*model.MemoryBlock, error)
	SearchMessages(ctx context.Context, query string, limit int) ([]model.Message, error)
	Stats(ctx context.Context, dbPath string) (*store.Stats, error)
}

// MemoryConfig supplies defaults for arguments the model leaves out.
type MemoryConfig struct {
	DBPath          string
	WeightBoost     float64
	FetchMultiplier int
	CoActivation    float64
	Reinforcement   float64
	DecayRate       float64
	DecayFloor      float64
}

// DefaultMemoryConfig mirrors the graph defaults in config.DefaultConfig.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		WeightBoost:     0.3,
		FetchMultiplier: store.DefaultFetchMultiplier,
		CoActivation:    store.DefaultCoActivation,
		Reinforcement:   store.DefaultReinforcement,
		DecayRate:       0.05,
		DecayFloor:      0.1,
	}
}

type createNodeInput struct {
	Content string   `json:"content" jsonschema_description:"The memory content to store."`
	Source  string   `json:"source,omitempty" jsonschema_description:"Origin type: conversation, perch_tick, research or reflection (default conversation)."`
	Summary string   `json:"summary,omitempty" jsonschema_description:"Optional short summary."`
	Tags    []string `json:"tags,omitempty" jsonschema_description:"Optional tags."`
}

type searchNodesInput struct {
	Query       string   `json:"query" jsonschema_description:"Text to search for in node content and summaries."`
	Limit       int      `json:"limit,omitempty" jsonschema_description:"Maximum results (default 10)."`
	Source      string   `json:"source,omitempty" jsonschema_description:"Only return nodes from this source."`
	WeightBoost *float64 `json:"weight_boost,omitempty" jsonschema_description:"0.0 ranks by recency only, 1.0 by graph connectivity only (default 0.3)."`
}

type createEdgeInput struct {
	SourceID string   `json:"source_id" jsonschema_description:"Source node ID."`
	TargetID string   `json:"target_id" jsonschema_description:"Target node ID."`
	EdgeType string   `json:"edge_type,omitempty" jsonschema_description:"Relationship: related, caused_by, supports or contradicts (default related)."`
	Weight   *float64 `json:"weight,omitempty" jsonschema_description:"Initial weight between 0 and 1 (default 0.5). An existing edge is strengthened instead."`
}

type connectedInput struct {
	NodeID    string   `json:"node_id" jsonschema_description:"The node to find connections for."`
	Direction string   `json:"direction,omitempty" jsonschema_description:"outgoing, incoming or both (default both)."`
	MinWeight *float64 `json:"min_weight,omitempty" jsonschema_description:"Minimum edge weight (default 0.1)."`
	Limit     int      `json:"limit,omitempty" jsonschema_description:"Maximum results (default 10)."`
}

type traverseInput struct {
	StartNodeID string   `json:"start_node_id" jsonschema_description:"Node to start the traversal from."`
	MaxDepth    int      `json:"max_depth,omitempty" jsonschema_description:"Maximum depth (default 2)."`
	MaxNodes    int      `json:"max_nodes,omitempty" jsonschema_description:"Maximum nodes returned (default 20)."`
	MinWeight   *float64 `json:"min_weight,omitempty" jsonschema_description:"Minimum weight of followed edges (default 0.2)."`
}

type decayInput struct {
	DecayRate *float64 `json:"decay_rate,omitempty" jsonschema_description:"Fraction removed from every weight (default 0.05)."`
	Floor     *float64 `json:"floor,omitempty" jsonschema_description:"Minimum weight; edges never fall below it (default 0.1)."`
}

type nodeIDInput struct {
	NodeID string `json:"node_id" jsonschema_description:"The node ID to inspect."`
}

type updateBlockInput struct {
	Label       string `json:"label" jsonschema_description:"Block label, e.g. persona or human."`
	Content     string `json:"content" jsonschema_description:"New block content. Replaces the old value."`
	Description string `json:"description,omitempty" jsonschema_description:"Optional description. Empty keeps the current one."`
}

type searchMessagesInput struct {
	Query string `json:"query" jsonschema_description:"Text to search for in stored messages."`
	Limit int    `json:"limit,omitempty" jsonschema_description:"Maximum results (default 10)."`
}

type emptyInput struct{}

// RegisterMemoryTools adds the graph and block tools backed by s.
func RegisterMemoryTools(r *Registry, s MemoryStore, cfg MemoryConfig) error {
	m := &memoryTools{store: s, cfg: cfg}
	defs := []func() error{
		func() error {
			return Define(r, "graph_create_node", "Create a new memory node in the graph.", m.createNode)
		},
		func() error {
			return Define(r, "graph_search_nodes", "Search memory nodes with weight-aware ranking. Well-connected nodes rank higher, and edges between nodes found together are strengthened.", m.searchNodes)
		},
		func() error {
			return Define(r, "graph_create_edge", "Create an edge between two memory nodes, or strengthen it if it exists.", m.createEdge)
		},
		func() error {
			return Define(r, "graph_get_connected", "Get nodes connected to a given node.", m.connected)
		},
		func() error {
			return Define(r, "graph_traverse", "Traverse the memory graph breadth-first from a starting node.", m.traverse)
		},
		func() error {
			return Define(r, "graph_stats", "Get statistics about the memory graph.", m.stats)
		},
		func() error {
			return Define(r, "graph_decay_edges", "Weaken every edge weight toward a floor. Edges are never removed.", m.decay)
		},
		func() error {
			return Define(r, "graph_node_connectivity", "Get incoming and outgoing edge statistics for a node.", m.connectivity)
		},
		func() error {
			return Define(r, "memory_update_block", "Replace the content of a memory block shown in every prompt.", m.updateBlock)
		},
		func() error {
			return Define(r, "memory_search_messages", "Search the stored conversation history.", m.searchMessages)
		},
	}
	for _, def := range defs {
		if err := def(); err != nil {
			return err
		}
	}
	return nil
}

type memoryTools struct {
	store MemoryStore
	cfg   MemoryConfig
}

func (m *memoryTools) createNode(ctx context.Context, in createNodeInput) (string, error) {
	if in.Content == "" {
		return "", fmt.Errorf("content is required")
	}
	n, err := m.store.CreateNode(ctx, store.NodeParams{
		Content: in.Content,
		Summary: in.Summary,
		Source:  in.Source,
		Tags:    in.Tags,
	})
	if err != nil {
		return "", err
	}
	return jsonResult(n)
}

func (m *memoryTools) searchNodes(ctx context.Context, in searchNodesInput) (string, error) {
	if in.Query == "" {
		return "", fmt.Errorf("query is required")
	}
	boost := m.cfg.WeightBoost
	if in.WeightBoost != nil {
		boost = *in.WeightBoost
	}
	nodes, err := m.store.SearchWeighted(ctx, store.WeightedSearchParams{
		Query:           in.Query,
		Limit:           in.Limit,
		Source:          in.Source,
		WeightBoost:     boost,
		FetchMultiplier: m.cfg.FetchMultiplier,
		Strengthen:      true,
		CoActivation:    m.cfg.CoActivation,
	})
	if err != nil {
		return "", err
	}
	if len(nodes) == 0 {
		return "No nodes found matching: " + in.Query, nil
	}
	return jsonResult(nodes)
}

func (m *memoryTools) createEdge(ctx context.Context, in createEdgeInput) (string, error) {
	e, err := m.store.CreateEdge(ctx, store.EdgeParams{
		Source:    in.SourceID,
		Target:    in.TargetID,
		Type:      in.EdgeType,
		Weight:    in.Weight,
		Reinforce: m.cfg.Reinforcement,
	})
	if err != nil {
		return "", err
	}
	return jsonResult(e)
}

func (m *memoryTools) connected(ctx context.Context, in connectedInput) (string, error) {
	nodes, err := m.store.Connected(ctx, in.NodeID, store.ConnectedParams{
		Direction: in.Direction,
		MinWeight: in.MinWeight,
		Limit:     in.Limit,
	})
	if err != nil {
		return "", err
	}
	if len(nodes) == 0 {
		return "No connections found for node " + in.NodeID, nil
	}
	return jsonResult(nodes)
}

func (m *memoryTools) traverse(ctx context.Context, in traverseInput) (string, error) {
	nodes, err := m.store.Traverse(ctx, in.StartNodeID, store.TraverseParams{
		MaxDepth:  in.MaxDepth,
		MaxNodes:  in.MaxNodes,
		MinWeight: in.MinWeight,
	})
	if err != nil {
		return "", err
	}
	return jsonResult(nodes)
}

func (m *memoryTools) stats(ctx context.Context, _ emptyInput) (string, error) {
	st, err := m.store.Stats(ctx, m.cfg.DBPath)
	if err != nil {
		return "", err
	}
	return jsonResult(struct {
		Nodes          int                 `json:"node_count"`
		Edges          int                 `json:"edge_count"`
		AvgConnections float64             `json:"avg_connections"`
		AvgEdgeWeight  float64             `json:"avg_edge_weight"`
		NodesBySource  []store.SourceStats `json:"nodes_by_source"`
	}{st.Nodes, st.Edges, st.AvgConnections, st.AvgEdgeWeight, st.NodesBySource})
}

func (m *memoryTools) decay(ctx context.Context, in decayInput) (string, error) {
	rate, floor := m.cfg.DecayRate, m.cfg.DecayFloor
	if in.DecayRate != nil {
		rate = *in.DecayRate
	}
	if in.Floor != nil {
		floor = *in.Floor
	}
	st, err := m.store.DecayEdges(ctx, rate, floor)
	if err != nil {
		return "", err
	}
	return jsonResult(st)
}

func (m *memoryTools) connectivity(ctx context.Context, in nodeIDInput) (string, error) {
	c, err := m.store.Connectivity(ctx, in.NodeID)
	if err != nil {
		return "", err
	}
	return jsonResult(c)
}

func (m *memoryTools) updateBlock(ctx context.Context, in updateBlockInput) (string, error) {
	b, err := m.store.UpsertBlock(ctx, store.BlockParams{
		Label:       in.Label,
		Content:     in.Content,
		Description: in.Description,
	})
	if err != nil {
		return "", err
	}
	return jsonResult(b)
}

func (m *memoryTools) searchMessages(ctx context.Context, in searchMessagesInput) (string, error) {
	if in.Query == "" {
		return "", fmt.Errorf("query is required")
	}
	limit := in.Limit
	if limit <= 0 {
		limit = 10
	}
	msgs, err := m.store.SearchMessages(ctx, in.Query, limit)
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return "No messages found matching: " + in.Query, nil
	}
	return jsonResult(msgs)
}

func jsonResult(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(b), nil
}
