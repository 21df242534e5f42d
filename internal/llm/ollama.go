package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rcliao/agent-mind/internal/model"
)

// DefaultOllamaModel and DefaultOllamaBaseURL apply when unset.
const (
	DefaultOllamaModel   = "llama3.2"
	DefaultOllamaBaseURL = "http://localhost:11434"
)

// Ollama talks to a local Ollama server's /api/chat endpoint without
// streaming.
type Ollama struct {
	httpClient *http.Client
	baseURL    string
	model      string
	logger     *zap.Logger
}

// NewOllama builds a provider. Ollama needs no API key.
func NewOllama(modelName, baseURL string, httpClient *http.Client, logger *zap.Logger) *Ollama {
	if modelName == "" {
		modelName = DefaultOllamaModel
	}
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ollama{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      modelName,
		logger:     logger,
	}
}

func (p *Ollama) Name() string { return "ollama" }

func (p *Ollama) Send(ctx context.Context, req Request) (*Response, error) {
	wire := p.buildRequest(req)
	url := p.baseURL + "/api/chat"
	p.logger.Debug("llm_request", zap.String("provider", "ollama"), zap.String("url", url), zap.String("model", wire.Model))

	httpResp, err := doProviderRequest(ctx, p.httpClient, url, nil, wire, "llm/ollama")
	if err != nil {
		return nil, err
	}
	decoded, err := decodeJSON[ollamaResponse](httpResp, "llm/ollama")
	if err != nil {
		return nil, err
	}
	return decoded.toResponse(), nil
}

func (p *Ollama) buildRequest(req Request) ollamaRequest {
	modelName := req.Model
	if modelName == "" {
		modelName = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	wire := ollamaRequest{
		Model:   modelName,
		Stream:  false,
		Options: ollamaOptions{NumPredict: maxTokens},
	}

	if req.System != "" {
		wire.Messages = append(wire.Messages, ollamaMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		switch m.Role {
		case model.RoleAssistant:
			wm := ollamaMessage{Role: "assistant", Content: m.Content}
			for _, tc := range m.ToolCalls {
				args := tc.Arguments
				if args == nil {
					args = map[string]any{}
				}
				wm.ToolCalls = append(wm.ToolCalls, ollamaToolCall{
					Function: ollamaFunction{Name: tc.Name, Arguments: mustRaw(args)},
				})
			}
			wire.Messages = append(wire.Messages, wm)
		case model.RoleTool:
			wire.Messages = append(wire.Messages, ollamaMessage{Role: "tool", Content: m.Content, ToolName: m.ToolName})
		default:
			wire.Messages = append(wire.Messages, ollamaMessage{Role: "user", Content: m.Content})
		}
	}
	for _, t := range req.Tools {
		wire.Tools = append(wire.Tools, openaiTool{
			Type: "function",
			Function: openaiToolDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schemaOrEmpty(t.InputSchema),
			},
		})
	}
	return wire
}

func mustRaw(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Tools    []openaiTool    `json:"tools,omitempty"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaToolCall struct {
	Function ollamaFunction `json:"function"`
}

// Arguments is normally an object, but some models send a JSON string.
type ollamaFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type ollamaResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	DoneReason      string        `json:"done_reason"`
	PromptEvalCount int64         `json:"prompt_eval_count"`
	EvalCount       int64         `json:"eval_count"`
}

func (r *ollamaResponse) toResponse() *Response {
	resp := &Response{
		Content: r.Message.Content,
		Usage: Usage{
			InputTokens:  r.PromptEvalCount,
			OutputTokens: r.EvalCount,
		},
	}
	for _, tc := range r.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, model.ToolCall{
			ID:        "ollama_" + uuid.NewString(),
			Name:      tc.Function.Name,
			Arguments: ollamaArguments(tc.Function.Arguments),
		})
	}

	switch {
	case len(resp.ToolCalls) > 0:
		resp.StopReason = StopToolUse
	case r.DoneReason == "length":
		resp.StopReason = StopMaxTokens
	case r.DoneReason == "" || r.DoneReason == "stop":
		resp.StopReason = StopEndTurn
	default:
		resp.StopReason = r.DoneReason
	}
	return resp
}

func ollamaArguments(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return decodeArguments(asString)
	}
	args := map[string]any{}
	if err := json.Unmarshal(raw, &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}
