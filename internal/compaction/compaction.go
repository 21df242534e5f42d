// Package compaction keeps the conversation inside its token budget by
// summarizing the oldest messages and evicting them.
package compaction

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/rcliao/agent-mind/internal/llm"
	"github.com/rcliao/agent-mind/internal/model"
	"github.com/rcliao/agent-mind/internal/store"
	"github.com/rcliao/agent-mind/internal/tokens"
)

// Skip reasons reported in Result.Reason.
const (
	ReasonTooFewMessages     = "too_few_messages"
	ReasonNothingToSummarize = "nothing_to_summarize"
)

// MinMessages is the smallest history worth compacting.
const MinMessages = 10

const systemPrompt = "You are a helpful assistant that creates concise conversation summaries."

const summarizePrompt = `Summarize the following conversation history, preserving:
- Key facts and decisions made
- Important context for future conversations
- User preferences or corrections mentioned
- Any ongoing tasks or commitments

Be concise but don't lose critical information. Write in third person.

Conversation to summarize:
%s

Summary:`

// Store is the slice of the context store compaction needs.
type Store interface {
	AllMessages(ctx context.Context) ([]model.Message, error)
	DeleteMessages(ctx context.Context, ids []string) (int, error)
	AddSummary(ctx context.Context, p store.AddSummaryParams) (*model.Summary, error)
	LoadContext(ctx context.Context, p store.ContextParams) (*store.Context, error)
}

// Config controls when compaction triggers and how much it keeps.
type Config struct {
	ContextLimit     int
	CompactThreshold float64
	TargetRatio      float64
	// MessageLimit is the context window used for the trigger estimate.
	MessageLimit     int
	BaseInstructions string
	SummaryMaxTokens int
}

// DefaultConfig returns the stock budget: 50000 tokens, compact at 70%,
// shrink to 25%.
func DefaultConfig() Config {
	return Config{
		ContextLimit:     50000,
		CompactThreshold: 0.70,
		TargetRatio:      0.25,
		MessageLimit:     50,
		SummaryMaxTokens: 1024,
	}
}

// Result reports what a compaction run did.
type Result struct {
	Skipped       bool   `json:"skipped"`
	Reason        string `json:"reason,omitempty"`
	Summarized    int    `json:"summarized"`
	Kept          int    `json:"kept"`
	Deleted       int    `json:"deleted"`
	SummaryTokens int    `json:"summary_tokens"`
	SummaryID     string `json:"summary_id,omitempty"`
}

// Engine decides when to compact and performs it.
type Engine struct {
	store     Store
	provider  llm.Provider
	estimator tokens.Estimator
	cfg       Config
	logger    *zap.Logger
}

// New creates an engine. A nil logger disables logging.
func New(s Store, p llm.Provider, est tokens.Estimator, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SummaryMaxTokens <= 0 {
		cfg.SummaryMaxTokens = 1024
	}
	return &Engine{store: s, provider: p, estimator: est, cfg: cfg, logger: logger}
}

// Estimate returns the token estimate of the current context window.
func (e *Engine) Estimate(ctx context.Context) (int, error) {
	c, err := e.store.LoadContext(ctx, store.ContextParams{
		BaseInstructions: e.cfg.BaseInstructions,
		MessageLimit:     e.cfg.MessageLimit,
		Estimator:        e.estimator,
	})
	if err != nil {
		return 0, fmt.Errorf("load context: %w", err)
	}
	return c.EstimatedTokens, nil
}

// NeedsCompaction reports whether the context estimate has reached
// ContextLimit × CompactThreshold.
func (e *Engine) NeedsCompaction(ctx context.Context) (bool, error) {
	current, err := e.Estimate(ctx)
	if err != nil {
		return false, err
	}
	threshold := int(float64(e.cfg.ContextLimit) * e.cfg.CompactThreshold)
	needs := current >= threshold
	e.logger.Info("compaction_check",
		zap.Int("current_tokens", current),
		zap.Int("threshold_tokens", threshold),
		zap.Bool("needs_compaction", needs))
	return needs, nil
}

// Compact summarizes every message older than the newest run that fits in
// ContextLimit × TargetRatio, stores the summary, then deletes exactly the
// summarized messages. If summarization fails nothing is deleted.
func (e *Engine) Compact(ctx context.Context) (*Result, error) {
	e.logger.Info("compaction_starting")

	msgs, err := e.store.AllMessages(ctx)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	if len(msgs) < MinMessages {
		e.logger.Info("compaction_skipped", zap.String("reason", ReasonTooFewMessages))
		return &Result{Skipped: true, Reason: ReasonTooFewMessages}, nil
	}

	candidates, kept := e.split(msgs)
	if len(candidates) == 0 {
		e.logger.Info("compaction_skipped", zap.String("reason", ReasonNothingToSummarize))
		return &Result{Skipped: true, Reason: ReasonNothingToSummarize}, nil
	}

	prompt := fmt.Sprintf(summarizePrompt, formatMessages(candidates))
	summary, _, err := llm.Complete(ctx, e.provider, systemPrompt, prompt, e.cfg.SummaryMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}

	summaryTokens := e.estimator.Estimate(summary)
	saved, err := e.store.AddSummary(ctx, store.AddSummaryParams{
		Summary:    summary,
		RangeStart: candidates[0].ID,
		RangeEnd:   candidates[len(candidates)-1].ID,
		TokenCount: summaryTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("save summary: %w", err)
	}

	ids := make([]string, len(candidates))
	for i, m := range candidates {
		ids[i] = m.ID
	}
	deleted, err := e.store.DeleteMessages(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("delete summarized messages: %w", err)
	}

	res := &Result{
		Summarized:    len(candidates),
		Kept:          kept,
		Deleted:       deleted,
		SummaryTokens: summaryTokens,
		SummaryID:     saved.ID,
	}
	e.logger.Info("compaction_complete",
		zap.Int("summarized_messages", res.Summarized),
		zap.Int("kept_messages", res.Kept),
		zap.Int("deleted_messages", res.Deleted),
		zap.Int("summary_tokens", res.SummaryTokens))
	return res, nil
}

// split walks newest to oldest keeping messages while their content fits
// the target, and returns the older remainder plus the kept count.
func (e *Engine) split(msgs []model.Message) ([]model.Message, int) {
	target := int(float64(e.cfg.ContextLimit) * e.cfg.TargetRatio)
	keptTokens := 0
	boundary := len(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		n := e.estimator.Estimate(msgs[i].Content)
		if keptTokens+n > target {
			break
		}
		keptTokens += n
		boundary = i
	}
	return msgs[:boundary], len(msgs) - boundary
}

func formatMessages(msgs []model.Message) string {
	parts := make([]string, len(msgs))
	for i, m := range msgs {
		role := m.Role
		if role == "" {
			role = "unknown"
		}
		parts[i] = strings.ToUpper(role) + ": " + m.Content
	}
	return strings.Join(parts, "\n\n")
}
