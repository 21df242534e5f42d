package model

import "time"

// Node sources.
const (
	SourceConversation = "conversation"
	SourceReflection   = "reflection"
	SourceResearch     = "research"
	SourcePerchTick    = "perch_tick"
)

// DefaultEdgeType is used when an edge is created without a type.
const DefaultEdgeType = "related"

// Node is a discrete unit of long-horizon associative memory.
type Node struct {
	ID           string    `json:"id"`
	Content      string    `json:"content"`
	Summary      string    `json:"summary,omitempty"`
	Source       string    `json:"source"`
	Tags         []string  `json:"tags,omitempty"`
	AccessCount  int       `json:"access_count"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
}

// Edge is a directed, weighted association between two nodes.
type Edge struct {
	ID               string    `json:"id"`
	Source           string    `json:"source"`
	Target           string    `json:"target"`
	Weight           float64   `json:"weight"`
	Type             string    `json:"edge_type"`
	CreatedAt        time.Time `json:"created_at"`
	LastStrengthened time.Time `json:"last_strengthened"`
}

// ScoredNode is a weighted search hit.
type ScoredNode struct {
	Node
	GraphScore  float64 `json:"graph_score"`
	RecencyRank float64 `json:"recency_rank"`
	FinalScore  float64 `json:"final_score"`
}

// ConnectedNode is a neighbor reached through one edge.
type ConnectedNode struct {
	Node
	Weight    float64 `json:"weight"`
	EdgeType  string  `json:"edge_type"`
	Direction string  `json:"direction"`
}

// TraversedNode is a node reached by breadth-first traversal.
type TraversedNode struct {
	Node
	Depth int `json:"depth"`
}

// EdgeAggregate summarizes the edges on one side of a node.
type EdgeAggregate struct {
	Count       int     `json:"count"`
	TotalWeight float64 `json:"total_weight"`
	AvgWeight   float64 `json:"avg_weight"`
}

// Connectivity reports how strongly a node is wired into the graph.
type Connectivity struct {
	NodeID     string        `json:"node_id"`
	Incoming   EdgeAggregate `json:"incoming"`
	Outgoing   EdgeAggregate `json:"outgoing"`
	GraphScore float64       `json:"graph_score"`
}

// DecayStats describes one decay pass.
type DecayStats struct {
	EdgeCount       int     `json:"edge_count"`
	DecayRate       float64 `json:"decay_rate"`
	Floor           float64 `json:"floor"`
	BeforeAvgWeight float64 `json:"before_avg_weight"`
	AfterAvgWeight  float64 `json:"after_avg_weight"`
}

// Connection directions.
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
	DirectionBoth     = "both"
)
