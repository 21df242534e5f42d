package store

import (
	"context"
	"fmt"

	"github.com/rcliao/agent-mind/internal/model"
)

// Context is the assembled model-facing state for one turn.
type Context struct {
	BaseInstructions string              `json:"base_instructions,omitempty"`
	Blocks           []model.MemoryBlock `json:"blocks"`
	Summaries        []model.Summary     `json:"summaries"`
	Messages         []model.Message     `json:"messages"`
	EstimatedTokens  int                 `json:"estimated_tokens"`
}

// LoadContext assembles blocks, summaries and the most recent messages, and
// estimates the token size of the whole window.
func (s *SQLiteStore) LoadContext(ctx context.Context, p ContextParams) (*Context, error) {
	limit := p.MessageLimit
	if limit <= 0 {
		limit = 50
	}

	blocks, err := s.ListBlocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load blocks: %w", err)
	}
	summaries, err := s.ListSummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("load summaries: %w", err)
	}
	msgs, err := s.RecentMessages(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	c := &Context{
		BaseInstructions: p.BaseInstructions,
		Blocks:           blocks,
		Summaries:        summaries,
		Messages:         msgs,
	}
	c.EstimatedTokens = estimateContext(c, p)
	return c, nil
}

func estimateContext(c *Context, p ContextParams) int {
	est := p.Estimator
	total := est.Estimate(c.BaseInstructions)
	for _, b := range c.Blocks {
		total += est.Estimate(b.Label) + est.Estimate(b.Content) + est.Estimate(b.Description)
	}
	for _, sum := range c.Summaries {
		total += est.Estimate(sum.Summary)
	}
	total += est.EstimateMessages(c.Messages)
	return total
}
