// Package llm defines a vendor-neutral model backend and its
// implementations for Anthropic, OpenAI, Ollama and Gemini.
//
// The orchestrator speaks only [Request] and [Response]; each provider
// translates to and from its own wire format. Tool calls carry decoded
// argument maps so results can be fed back regardless of vendor.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rcliao/agent-mind/internal/model"
)

// Provider sends one model request and blocks until the full response is
// available.
type Provider interface {
	Send(ctx context.Context, req Request) (*Response, error)
	// Name identifies the backend, e.g. "anthropic".
	Name() string
}

// Message is one conversation turn in vendor-neutral form. Role is one of
// model.RoleUser, model.RoleAssistant or model.RoleTool; tool messages carry
// the result of the call named by ToolCallID.
type Message struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []model.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	// ToolName is the name of the tool a tool message answers. Gemini pairs
	// function responses by name.
	ToolName string `json:"tool_name,omitempty"`
	IsError  bool   `json:"is_error,omitempty"`
}

// Tool describes a callable tool. InputSchema is a JSON Schema object.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Request is a single model call.
type Request struct {
	Model     string
	System    string
	Messages  []Message
	Tools     []Tool
	MaxTokens int
}

// Usage reports token consumption for one call.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Add accumulates other into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Total returns input plus output tokens.
func (u Usage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}

// Stop reasons normalized across providers.
const (
	StopEndTurn   = "end_turn"
	StopToolUse   = "tool_use"
	StopMaxTokens = "max_tokens"
)

// Response is the model's reply.
type Response struct {
	Content    string           `json:"content"`
	ToolCalls  []model.ToolCall `json:"tool_calls,omitempty"`
	StopReason string           `json:"stop_reason"`
	Usage      Usage            `json:"usage"`
}

// HasToolCalls reports whether the model asked for tools.
func (r *Response) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// Complete sends a single user prompt without tools and returns the text.
func Complete(ctx context.Context, p Provider, system, prompt string, maxTokens int) (string, *Response, error) {
	resp, err := p.Send(ctx, Request{
		System:    system,
		Messages:  []Message{{Role: model.RoleUser, Content: prompt}},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", nil, err
	}
	return resp.Content, resp, nil
}

// ProviderError is a non-200 reply from a model API.
type ProviderError struct {
	StatusCode int
	// Type is the provider-specific error type string, when present.
	Type    string
	Message string
}

func (err *ProviderError) Error() string {
	if err.Type != "" {
		return fmt.Sprintf("llm: HTTP %d: %s: %s", err.StatusCode, err.Type, err.Message)
	}
	return fmt.Sprintf("llm: HTTP %d: %s", err.StatusCode, err.Message)
}

// IsRateLimited reports whether the provider rejected the call for rate.
func (err *ProviderError) IsRateLimited() bool {
	return err.StatusCode == http.StatusTooManyRequests
}

// doProviderRequest POSTs wireRequest as JSON. Non-200 replies are turned
// into a *ProviderError and the body is closed.
func doProviderRequest(ctx context.Context, client *http.Client, endpoint string, headers map[string]string, wireRequest any, prefix string) (*http.Response, error) {
	body, err := json.Marshal(wireRequest)
	if err != nil {
		return nil, fmt.Errorf("%s: marshaling request: %w", prefix, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: creating request: %w", prefix, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: sending request: %w", prefix, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, readProviderError(resp)
	}
	return resp, nil
}

func decodeJSON[T any](resp *http.Response, prefix string) (*T, error) {
	defer resp.Body.Close()
	out := new(T)
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, fmt.Errorf("%s: decoding response: %w", prefix, err)
	}
	return out, nil
}

// readProviderError understands both {"error":{"type","message"}} and
// Ollama's {"error":"..."} bodies, falling back to the raw text.
func readProviderError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var structured struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &structured) == nil && structured.Error.Message != "" {
		return &ProviderError{StatusCode: resp.StatusCode, Type: structured.Error.Type, Message: structured.Error.Message}
	}

	var flat struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &flat) == nil && flat.Error != "" {
		return &ProviderError{StatusCode: resp.StatusCode, Message: flat.Error}
	}

	return &ProviderError{StatusCode: resp.StatusCode, Message: string(body)}
}

// decodeArguments parses a JSON argument string, yielding an empty map when
// the model sent something unparseable.
func decodeArguments(raw string) map[string]any {
	args := map[string]any{}
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}

func encodeArguments(args map[string]any) string {
	if args == nil {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}
