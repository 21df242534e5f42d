package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/rcliao/agent-mind/internal/llm"
)

// Handler runs one local tool with its raw JSON arguments.
type Handler func(ctx context.Context, args json.RawMessage) (string, error)

type entry struct {
	def     llm.Tool
	handler Handler
}

// Registry holds local tools and optionally forwards unknown names to a
// fallback backend.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]entry
	order    []string
	fallback Backend
	logger   *zap.Logger
}

// NewRegistry creates an empty registry. A nil logger disables logging.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{entries: make(map[string]entry), logger: logger}
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(def llm.Tool, h Handler) error {
	if def.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if h == nil {
		return fmt.Errorf("tool %s: handler is required", def.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[def.Name]; ok {
		return fmt.Errorf("tool %s already registered", def.Name)
	}
	r.entries[def.Name] = entry{def: def, handler: h}
	r.order = append(r.order, def.Name)
	return nil
}

// Define registers a tool whose arguments decode into T. The input schema
// is generated from T.
func Define[T any](r *Registry, name, description string, fn func(ctx context.Context, in T) (string, error)) error {
	def := llm.Tool{Name: name, Description: description, InputSchema: schemaFor[T]()}
	return r.Register(def, func(ctx context.Context, raw json.RawMessage) (string, error) {
		var in T
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &in); err != nil {
				return "", fmt.Errorf("invalid arguments for %s: %w", name, err)
			}
		}
		return fn(ctx, in)
	})
}

// SetFallback routes names the registry does not know to b.
func (r *Registry) SetFallback(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = b
}

// Execute runs the named tool.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	fallback := r.fallback
	r.mu.RUnlock()

	if !ok {
		if fallback != nil {
			return fallback.Execute(ctx, name, args)
		}
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encode arguments for %s: %w", name, err)
	}
	r.logger.Debug("executing_local_tool", zap.String("tool", name))
	return e.handler(ctx, raw)
}

// Definitions lists local tools in registration order, then the fallback's
// tools that are not shadowed locally.
func (r *Registry) Definitions() []llm.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]llm.Tool, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.entries[name].def)
	}
	if r.fallback != nil {
		for _, d := range r.fallback.Definitions() {
			if _, ok := r.entries[d.Name]; !ok {
				defs = append(defs, d)
			}
		}
	}
	return defs
}
