package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/rcliao/agent-mind/internal/model"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// Gemini call ids minted locally when the API omits one. They are never
// sent back.
const geminiLocalIDPrefix = "gemini_"

// Gemini talks to the Gemini API through the genai SDK.
type Gemini struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// NewGemini builds a provider. baseURL and httpClient are optional.
func NewGemini(ctx context.Context, apiKey, modelName, baseURL string, httpClient *http.Client, logger *zap.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key not set (GEMINI_API_KEY)")
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Gemini{client: client, model: modelName, logger: logger}, nil
}

func (p *Gemini) Name() string { return "gemini" }

func (p *Gemini) Send(ctx context.Context, req Request) (*Response, error) {
	modelName := req.Model
	if modelName == "" {
		modelName = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	cfg := &genai.GenerateContentConfig{MaxOutputTokens: int32(maxTokens)}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: schemaOrEmpty(t.InputSchema),
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	p.logger.Debug("llm_request", zap.String("provider", "gemini"), zap.String("model", modelName), zap.Int("messages", len(req.Messages)))
	result, err := p.client.Models.GenerateContent(ctx, modelName, toGeminiContents(req.Messages), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return fromGeminiResponse(result), nil
}

// toGeminiContents maps assistant turns onto the "model" role and groups
// consecutive tool results into one user content of function responses.
func toGeminiContents(msgs []Message) []*genai.Content {
	var out []*genai.Content
	var pending []*genai.Part

	flush := func() {
		if len(pending) > 0 {
			out = append(out, &genai.Content{Role: genai.RoleUser, Parts: pending})
			pending = nil
		}
	}

	for _, m := range msgs {
		switch m.Role {
		case model.RoleTool:
			key := "output"
			if m.IsError {
				key = "error"
			}
			pending = append(pending, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       remoteGeminiID(m.ToolCallID),
				Name:     m.ToolName,
				Response: map[string]any{key: m.Content},
			}})
		case model.RoleAssistant:
			flush()
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   remoteGeminiID(tc.ID),
					Name: tc.Name,
					Args: tc.Arguments,
				}})
			}
			if len(parts) == 0 {
				continue
			}
			out = append(out, &genai.Content{Role: genai.RoleModel, Parts: parts})
		default:
			flush()
			out = append(out, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	flush()
	return out
}

func fromGeminiResponse(result *genai.GenerateContentResponse) *Response {
	resp := &Response{StopReason: StopEndTurn}
	if result.UsageMetadata != nil {
		resp.Usage = Usage{
			InputTokens:  int64(result.UsageMetadata.PromptTokenCount),
			OutputTokens: int64(result.UsageMetadata.CandidatesTokenCount),
		}
	}
	if len(result.Candidates) == 0 {
		return resp
	}

	cand := result.Candidates[0]
	if cand.FinishReason == genai.FinishReasonMaxTokens {
		resp.StopReason = StopMaxTokens
	}
	if cand.Content == nil {
		return resp
	}

	var text strings.Builder
	for _, part := range cand.Content.Parts {
		switch {
		case part.FunctionCall != nil:
			id := part.FunctionCall.ID
			if id == "" {
				id = geminiLocalIDPrefix + uuid.NewString()
			}
			args := part.FunctionCall.Args
			if args == nil {
				args = map[string]any{}
			}
			resp.ToolCalls = append(resp.ToolCalls, model.ToolCall{ID: id, Name: part.FunctionCall.Name, Arguments: args})
		case part.Thought:
			// thought summaries are not part of the reply
		case part.Text != "":
			text.WriteString(part.Text)
		}
	}
	resp.Content = text.String()
	if len(resp.ToolCalls) > 0 {
		resp.StopReason = StopToolUse
	}
	return resp
}

func remoteGeminiID(id string) string {
	if strings.HasPrefix(id, geminiLocalIDPrefix) {
		return ""
	}
	return id
}
