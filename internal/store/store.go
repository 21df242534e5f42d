// Package store provides the context and graph memory storage interfaces and
// their SQLite implementation.
package store

import (
	"context"
	"errors"

	"github.com/rcliao/agent-mind/internal/model"
	"github.com/rcliao/agent-mind/internal/tokens"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// AddMessageParams holds parameters for appending a message.
type AddMessageParams struct {
	Role        string
	Content     string
	ToolCalls   []model.ToolCall
	ToolCallRef string
	SessionID   string
}

// BlockParams holds parameters for upserting a memory block.
// An empty Description keeps the stored one.
type BlockParams struct {
	Label       string
	Content     string
	Description string
}

// AddSummaryParams holds parameters for appending a summary.
type AddSummaryParams struct {
	Summary    string
	RangeStart string
	RangeEnd   string
	TokenCount int
}

// ContextParams holds parameters for context assembly.
type ContextParams struct {
	BaseInstructions string
	MessageLimit     int // newest messages to include; 0 means 50
	Estimator        tokens.Estimator
}

// NodeParams holds parameters for creating a memory node.
type NodeParams struct {
	Content string
	Summary string
	Source  string // defaults to "conversation"
	Tags    []string
}

// EdgeParams holds parameters for creating or reinforcing an edge.
type EdgeParams struct {
	Source    string
	Target    string
	Type      string   // defaults to "related"
	Weight    *float64 // initial weight; nil means DefaultEdgeWeight
	Reinforce float64  // increment when the edge exists; 0 means DefaultReinforcement
}

// SearchParams holds parameters for plain recency-ordered node search.
type SearchParams struct {
	Query        string
	Limit        int
	Source       string
	Strengthen   bool
	CoActivation float64 // 0 means DefaultCoActivation
}

// WeightedSearchParams holds parameters for weight-aware node search.
type WeightedSearchParams struct {
	Query           string
	Limit           int
	Source          string
	WeightBoost     float64 // clamped to [0, 1]
	FetchMultiplier int     // 0 means DefaultFetchMultiplier
	Strengthen      bool
	CoActivation    float64 // 0 means DefaultCoActivation
}

// ConnectedParams holds parameters for neighbor lookup.
type ConnectedParams struct {
	Direction string   // incoming | outgoing | both (default)
	MinWeight *float64 // nil means DefaultConnectedMinWeight
	Limit     int
}

// TraverseParams holds parameters for breadth-first traversal.
type TraverseParams struct {
	MaxDepth  int      // 0 means 2
	MaxNodes  int      // 0 means 20
	MinWeight *float64 // nil means DefaultTraverseMinWeight
}

// Weight returns a pointer to w for the optional weight fields.
func Weight(w float64) *float64 { return &w }

func weightOr(w *float64, def float64) float64 {
	if w == nil {
		return def
	}
	return *w
}

// ContextStore persists conversation state: messages, blocks and summaries.
type ContextStore interface {
	AddMessage(ctx context.Context, p AddMessageParams) (*model.Message, error)
	RecentMessages(ctx context.Context, limit int) ([]model.Message, error)
	AllMessages(ctx context.Context) ([]model.Message, error)
	DeleteMessages(ctx context.Context, ids []string) (int, error)
	SearchMessages(ctx context.Context, query string, limit int) ([]model.Message, error)

	UpsertBlock(ctx context.Context, p BlockParams) (*model.MemoryBlock, error)
	GetBlock(ctx context.Context, label string) (*model.MemoryBlock, error)
	ListBlocks(ctx context.Context) ([]model.MemoryBlock, error)
	DeleteBlock(ctx context.Context, label string) error

	AddSummary(ctx context.Context, p AddSummaryParams) (*model.Summary, error)
	ListSummaries(ctx context.Context) ([]model.Summary, error)

	// LoadContext assembles blocks, summaries and recent messages with a
	// token estimate for the whole window.
	LoadContext(ctx context.Context, p ContextParams) (*Context, error)
}

// GraphStore persists the associative node/edge memory.
type GraphStore interface {
	CreateNode(ctx context.Context, p NodeParams) (*model.Node, error)
	// GetNode returns a node and records the access.
	GetNode(ctx context.Context, id string) (*model.Node, error)
	ListRecentNodes(ctx context.Context, limit int, source string) ([]model.Node, error)

	// CreateEdge inserts an edge or, if the ordered pair exists, strengthens it.
	CreateEdge(ctx context.Context, p EdgeParams) (*model.Edge, error)
	StrengthenEdge(ctx context.Context, source, target string, amount float64) (float64, error)
	CoActivate(ctx context.Context, ids []string, amount float64) (int, error)

	SearchNodes(ctx context.Context, p SearchParams) ([]model.Node, error)
	SearchWeighted(ctx context.Context, p WeightedSearchParams) ([]model.ScoredNode, error)
	Connected(ctx context.Context, id string, p ConnectedParams) ([]model.ConnectedNode, error)
	Traverse(ctx context.Context, start string, p TraverseParams) ([]model.TraversedNode, error)
	Connectivity(ctx context.Context, id string) (*model.Connectivity, error)

	// DecayEdges applies weight = max(floor, weight * (1 - rate)) to every edge.
	DecayEdges(ctx context.Context, rate, floor float64) (*model.DecayStats, error)
}

// Store is the full storage surface.
type Store interface {
	ContextStore
	GraphStore

	// Close closes the store.
	Close() error
}
