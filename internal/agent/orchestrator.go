// Package agent runs one user turn through the model: it assembles context
// from memory, loops over tool calls up to a fixed bound, and persists the
// exchange.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rcliao/agent-mind/internal/compaction"
	"github.com/rcliao/agent-mind/internal/llm"
	"github.com/rcliao/agent-mind/internal/model"
	"github.com/rcliao/agent-mind/internal/store"
	"github.com/rcliao/agent-mind/internal/tokens"
	"github.com/rcliao/agent-mind/internal/tools"
)

// ErrEmptyMessage is returned for blank user input.
var ErrEmptyMessage = errors.New("empty message")

// Store is the slice of the context store a turn touches.
type Store interface {
	AddMessage(ctx context.Context, p store.AddMessageParams) (*model.Message, error)
	LoadContext(ctx context.Context, p store.ContextParams) (*store.Context, error)
}

// Compactor keeps the persisted context inside its budget.
type Compactor interface {
	NeedsCompaction(ctx context.Context) (bool, error)
	Compact(ctx context.Context) (*compaction.Result, error)
}

// Config bounds a turn.
type Config struct {
	MaxToolIterations   int
	MaxTokens           int
	SessionBufferLimit  int
	ContextMessageLimit int
	BaseInstructions    string
	// Model overrides the provider's configured model when set.
	Model string
}

// DefaultConfig returns the stock limits.
func DefaultConfig() Config {
	return Config{
		MaxToolIterations:   10,
		MaxTokens:           4096,
		SessionBufferLimit:  40,
		ContextMessageLimit: 50,
	}
}

// Result describes a completed turn.
type Result struct {
	Response            string             `json:"response"`
	ToolCalls           []model.ToolCall   `json:"tool_calls,omitempty"`
	TotalIterations     int                `json:"total_iterations"`
	Usage               llm.Usage          `json:"usage"`
	CompactionPerformed bool               `json:"compaction_performed"`
	Compaction          *compaction.Result `json:"compaction,omitempty"`
	// Capped is set when the iteration bound ended the loop.
	Capped bool `json:"capped"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCompactor enables the pre-turn compaction check.
func WithCompactor(c Compactor) Option {
	return func(o *Orchestrator) { o.compactor = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithEstimator sets the estimator used for context loading.
func WithEstimator(e tokens.Estimator) Option {
	return func(o *Orchestrator) { o.estimator = e }
}

// Orchestrator runs turns for one conversation. Turns must not overlap.
type Orchestrator struct {
	provider  llm.Provider
	store     Store
	tools     tools.Backend
	compactor Compactor
	estimator tokens.Estimator
	cfg       Config
	logger    *zap.Logger

	mu        sync.Mutex
	sessionID string
	buffer    []model.Message
}

// New creates an orchestrator. backend may be nil, in which case the model
// is offered no tools.
func New(p llm.Provider, s Store, backend tools.Backend, cfg Config, opts ...Option) *Orchestrator {
	def := DefaultConfig()
	if cfg.MaxToolIterations <= 0 {
		cfg.MaxToolIterations = def.MaxToolIterations
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.SessionBufferLimit <= 0 {
		cfg.SessionBufferLimit = def.SessionBufferLimit
	}
	if cfg.ContextMessageLimit <= 0 {
		cfg.ContextMessageLimit = def.ContextMessageLimit
	}

	o := &Orchestrator{
		provider:  p,
		store:     s,
		tools:     backend,
		estimator: tokens.NewEstimator(tokens.DefaultCharsPerToken),
		cfg:       cfg,
		logger:    zap.NewNop(),
		sessionID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SessionID returns the id stamped on persisted messages.
func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionID
}

// ClearSession drops the short-term buffer and starts a new session id.
func (o *Orchestrator) ClearSession() {
	o.mu.Lock()
	o.buffer = nil
	o.sessionID = uuid.NewString()
	o.mu.Unlock()
	o.logger.Info("session_buffer_cleared")
}

// ProcessMessage runs one turn for text.
func (o *Orchestrator) ProcessMessage(ctx context.Context, text string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	res := &Result{}

	if o.compactor != nil {
		needs, err := o.compactor.NeedsCompaction(ctx)
		if err != nil {
			return nil, fmt.Errorf("compaction check: %w", err)
		}
		if needs {
			o.logger.Info("compaction_triggered", zap.String("reason", "pre_request_check"))
			cres, err := o.compactor.Compact(ctx)
			if err != nil {
				return nil, fmt.Errorf("compaction: %w", err)
			}
			res.CompactionPerformed = true
			res.Compaction = cres
		}
	}

	mem, err := o.store.LoadContext(ctx, store.ContextParams{
		BaseInstructions: o.cfg.BaseInstructions,
		MessageLimit:     o.cfg.ContextMessageLimit,
		Estimator:        o.estimator,
	})
	if err != nil {
		return nil, fmt.Errorf("load context: %w", err)
	}
	o.logger.Debug("got_memory_context", zap.Int("tokens", mem.EstimatedTokens))

	msgs := o.buildMessages(mem.Messages, text)
	system := buildSystemPrompt(mem)
	var defs []llm.Tool
	if o.tools != nil {
		defs = o.tools.Definitions()
	}

	var final string
	finished := false
	for res.TotalIterations < o.cfg.MaxToolIterations {
		res.TotalIterations++
		o.logger.Debug("llm_iteration", zap.Int("iteration", res.TotalIterations))

		resp, err := o.provider.Send(ctx, llm.Request{
			Model:     o.cfg.Model,
			System:    system,
			Messages:  msgs,
			Tools:     defs,
			MaxTokens: o.cfg.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("model call (iteration %d): %w", res.TotalIterations, err)
		}
		res.Usage.Add(resp.Usage)

		if !resp.HasToolCalls() {
			final = resp.Content
			finished = true
			break
		}

		res.ToolCalls = append(res.ToolCalls, resp.ToolCalls...)
		msgs = append(msgs, llm.Message{Role: model.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})
		msgs = append(msgs, o.executeTools(ctx, resp.ToolCalls)...)
	}
	res.Capped = !finished

	res.Response = assistantContent(final, res.ToolCalls)
	if res.Capped {
		notice := fmt.Sprintf("[Stopped after %d tool iterations without a final response]", o.cfg.MaxToolIterations)
		o.logger.Warn("tool_iterations_exhausted", zap.Int("iterations", res.TotalIterations))
		res.Response += "\n\n" + notice
	}

	if err := o.persist(ctx, text, res.Response); err != nil {
		return nil, err
	}
	return res, nil
}

// buildMessages orders persisted history, then buffered messages that are
// not already part of it, then the new user message.
func (o *Orchestrator) buildMessages(history []model.Message, text string) []llm.Message {
	o.mu.Lock()
	buffered := append([]model.Message(nil), o.buffer...)
	o.mu.Unlock()

	seen := make(map[string]bool, len(history))
	all := make([]model.Message, 0, len(history)+len(buffered))
	for _, m := range history {
		seen[m.ID] = true
		all = append(all, m)
	}
	for _, m := range buffered {
		if m.ID != "" && seen[m.ID] {
			continue
		}
		all = append(all, m)
	}

	msgs := toLLMMessages(all)
	return append(msgs, llm.Message{Role: model.RoleUser, Content: text})
}

func (o *Orchestrator) executeTools(ctx context.Context, calls []model.ToolCall) []llm.Message {
	out := make([]llm.Message, 0, len(calls))
	for _, tc := range calls {
		o.logger.Info("executing_tool", zap.String("tool", tc.Name))
		var (
			result string
			err    error
		)
		if o.tools == nil {
			err = fmt.Errorf("%w: %s", tools.ErrUnknownTool, tc.Name)
		} else {
			result, err = o.tools.Execute(ctx, tc.Name, tc.Arguments)
		}
		msg := llm.Message{Role: model.RoleTool, ToolCallID: tc.ID, ToolName: tc.Name, Content: result}
		if err != nil {
			o.logger.Error("tool_execution_error", zap.String("tool", tc.Name), zap.Error(err))
			msg.Content = fmt.Sprintf("Error executing %s: %v", tc.Name, err)
			msg.IsError = true
		} else if tools.IsPendingApproval(result) {
			o.logger.Info("tool_pending_approval", zap.String("tool", tc.Name))
		}
		out = append(out, msg)
	}
	return out
}

func (o *Orchestrator) persist(ctx context.Context, text, reply string) error {
	sessionID := o.SessionID()

	user, err := o.store.AddMessage(ctx, store.AddMessageParams{Role: model.RoleUser, Content: text, SessionID: sessionID})
	if err != nil {
		return fmt.Errorf("save user message: %w", err)
	}
	saved := []model.Message{*user}
	if reply != "" {
		assistant, err := o.store.AddMessage(ctx, store.AddMessageParams{Role: model.RoleAssistant, Content: reply, SessionID: sessionID})
		if err != nil {
			return fmt.Errorf("save assistant message: %w", err)
		}
		saved = append(saved, *assistant)
	}

	o.mu.Lock()
	o.buffer = append(o.buffer, saved...)
	if over := len(o.buffer) - o.cfg.SessionBufferLimit; over > 0 {
		o.buffer = append([]model.Message(nil), o.buffer[over:]...)
	}
	size := len(o.buffer)
	o.mu.Unlock()

	o.logger.Debug("session_buffer_size", zap.Int("messages", size))
	return nil
}

// assistantContent keeps tool activity visible in history when the model
// produced no text.
func assistantContent(text string, calls []model.ToolCall) string {
	if text != "" {
		return text
	}
	if len(calls) == 0 {
		return ""
	}
	names := make([]string, len(calls))
	for i, tc := range calls {
		names[i] = tc.Name
	}
	return "[Tool-only response: " + strings.Join(names, ", ") + "]"
}

// toLLMMessages converts stored messages. Tool messages get their tool name
// from the assistant call they answer.
func toLLMMessages(msgs []model.Message) []llm.Message {
	names := make(map[string]string)
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		lm := llm.Message{Role: m.Role, Content: m.Content, ToolCalls: m.ToolCalls}
		for _, tc := range m.ToolCalls {
			names[tc.ID] = tc.Name
		}
		if m.Role == model.RoleTool {
			lm.ToolCallID = m.ToolCallRef
			lm.ToolName = names[m.ToolCallRef]
		}
		out = append(out, lm)
	}
	return out
}
