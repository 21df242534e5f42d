package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/rcliao/agent-mind/internal/model"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o"

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAI talks to any chat-completions compatible endpoint.
type OpenAI struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
	logger     *zap.Logger
}

// NewOpenAI builds a provider. An empty baseURL targets api.openai.com.
func NewOpenAI(apiKey, modelName, baseURL string, httpClient *http.Client, logger *zap.Logger) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: API key not set (OPENAI_API_KEY)")
	}
	if modelName == "" {
		modelName = DefaultOpenAIModel
	}
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAI{
		httpClient: httpClient,
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      modelName,
		logger:     logger,
	}, nil
}

func (p *OpenAI) Name() string { return "openai" }

func (p *OpenAI) Send(ctx context.Context, req Request) (*Response, error) {
	wire := p.buildRequest(req)
	p.logger.Debug("llm_request",
		zap.String("provider", "openai"),
		zap.String("model", wire.Model),
		zap.Int("messages", len(wire.Messages)),
		zap.Int("tools", len(wire.Tools)))
	httpResp, err := doProviderRequest(ctx, p.httpClient, p.baseURL+"/chat/completions",
		map[string]string{"Authorization": "Bearer " + p.apiKey}, wire, "llm/openai")
	if err != nil {
		return nil, err
	}
	decoded, err := decodeJSON[openaiResponse](httpResp, "llm/openai")
	if err != nil {
		return nil, err
	}
	return decoded.toResponse()
}

func (p *OpenAI) buildRequest(req Request) openaiRequest {
	modelName := req.Model
	if modelName == "" {
		modelName = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	wire := openaiRequest{Model: modelName, MaxTokens: maxTokens}

	if req.System != "" {
		wire.Messages = append(wire.Messages, openaiMessage{Role: "system", Content: stringPtr(req.System)})
	}
	for _, m := range req.Messages {
		switch m.Role {
		case model.RoleAssistant:
			wm := openaiMessage{Role: "assistant"}
			if m.Content != "" || len(m.ToolCalls) == 0 {
				wm.Content = stringPtr(m.Content)
			}
			for _, tc := range m.ToolCalls {
				wm.ToolCalls = append(wm.ToolCalls, openaiToolCall{
					ID:       tc.ID,
					Type:     "function",
					Function: openaiToolFunction{Name: tc.Name, Arguments: encodeArguments(tc.Arguments)},
				})
			}
			wire.Messages = append(wire.Messages, wm)
		case model.RoleTool:
			wire.Messages = append(wire.Messages, openaiMessage{
				Role:       "tool",
				Content:    stringPtr(m.Content),
				ToolCallID: m.ToolCallID,
			})
		default:
			wire.Messages = append(wire.Messages, openaiMessage{Role: "user", Content: stringPtr(m.Content)})
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

func mapOpenAIFinishReason(reason string) string {
	switch reason {
	case "tool_calls", "function_call":
		return StopToolUse
	case "length":
		return StopMaxTokens
	case "stop":
		return StopEndTurn
	default:
		return reason
	}
}

func stringPtr(s string) *string { return &s }

func schemaOrEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return raw
}

type openaiRequest struct {
	Model     string          `json:"model"`
	Messages  []openaiMessage `json:"messages"`
	Tools     []openaiTool    `json:"tools,omitempty"`
	MaxTokens int             `json:"max_tokens"`
}

type openaiMessage struct {
	Role       string           `json:"role"`
	Content    *string          `json:"content"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openaiToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openaiToolFunction `json:"function"`
}

type openaiToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openaiTool struct {
	Type     string               `json:"type"`
	Function openaiToolDefinition `json:"function"`
}

type openaiToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type openaiResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      openaiMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

func (r *openaiResponse) toResponse() (*Response, error) {
	if len(r.Choices) == 0 {
		return nil, fmt.Errorf("llm/openai: response has no choices")
	}
	choice := r.Choices[0]
	resp := &Response{
		StopReason: mapOpenAIFinishReason(choice.FinishReason),
		Usage: Usage{
			InputTokens:  r.Usage.PromptTokens,
			OutputTokens: r.Usage.CompletionTokens,
		},
	}
	if choice.Message.Content != nil {
		resp.Content = *choice.Message.Content
	}
	for _, tc := range choice.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, model.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: decodeArguments(tc.Function.Arguments),
		})
	}
	return resp, nil
}
