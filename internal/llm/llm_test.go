package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/agent-mind/internal/config"
	"github.com/rcliao/agent-mind/internal/model"
)

// fakeTransport answers every request with a canned body and records the
// last request body.
type fakeTransport struct {
	status int
	body   string
	got    []byte
	path   string
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	b, _ := io.ReadAll(req.Body)
	_ = req.Body.Close()
	f.got = b
	f.path = req.URL.Path
	resp := &http.Response{
		StatusCode: f.status,
		Body:       io.NopCloser(bytes.NewReader([]byte(f.body))),
		Header:     make(http.Header),
		Request:    req,
	}
	resp.Header.Set("Content-Type", "application/json")
	return resp, nil
}

var conversation = []Message{
	{Role: model.RoleUser, Content: "remember tea"},
	{Role: model.RoleAssistant, Content: "on it", ToolCalls: []model.ToolCall{
		{ID: "call_1", Name: "graph_create_node", Arguments: map[string]any{"content": "likes tea"}},
		{ID: "call_2", Name: "graph_stats", Arguments: map[string]any{}},
	}},
	{Role: model.RoleTool, Content: `{"id":"n1"}`, ToolCallID: "call_1", ToolName: "graph_create_node"},
	{Role: model.RoleTool, Content: "boom", ToolCallID: "call_2", ToolName: "graph_stats", IsError: true},
}

var nodeTool = Tool{
	Name:        "graph_create_node",
	Description: "Create a memory node",
	InputSchema: json.RawMessage(`{"type":"object","properties":{"content":{"type":"string"}},"required":["content"]}`),
}

func TestAnthropicSend(t *testing.T) {
	ft := &fakeTransport{status: 200, body: `{
		"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
		"content": [
			{"type": "text", "text": "Saving that."},
			{"type": "tool_use", "id": "tu_1", "name": "graph_create_node", "input": {"content": "likes tea"}}
		],
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 12, "output_tokens": 7}
	}`}
	p, err := NewAnthropic("test-key", "claude-test", "", &http.Client{Transport: ft}, nil)
	require.NoError(t, err)

	resp, err := p.Send(context.Background(), Request{System: "be brief", Messages: conversation, Tools: []Tool{nodeTool}})
	require.NoError(t, err)

	assert.Equal(t, "Saving that.", resp.Content)
	assert.Equal(t, StopToolUse, resp.StopReason)
	assert.Equal(t, Usage{InputTokens: 12, OutputTokens: 7}, resp.Usage)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "tu_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "likes tea", resp.ToolCalls[0].Arguments["content"])

	var sent struct {
		System []struct {
			Text string `json:"text"`
		} `json:"system"`
		Messages []struct {
			Role    string `json:"role"`
			Content []struct {
				Type      string `json:"type"`
				ToolUseID string `json:"tool_use_id"`
				IsError   bool   `json:"is_error"`
			} `json:"content"`
		} `json:"messages"`
		Tools []struct {
			Name        string         `json:"name"`
			InputSchema map[string]any `json:"input_schema"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(ft.got, &sent))
	require.Len(t, sent.System, 1)
	assert.Equal(t, "be brief", sent.System[0].Text)

	// user, assistant, one merged user message of tool results
	require.Len(t, sent.Messages, 3)
	assert.Equal(t, "assistant", sent.Messages[1].Role)
	assert.Len(t, sent.Messages[1].Content, 3, "text plus two tool_use blocks")
	results := sent.Messages[2].Content
	require.Len(t, results, 2)
	assert.Equal(t, "tool_result", results[0].Type)
	assert.Equal(t, "call_1", results[0].ToolUseID)
	assert.True(t, results[1].IsError)

	require.Len(t, sent.Tools, 1)
	assert.Contains(t, sent.Tools[0].InputSchema, "properties")
}

func TestAnthropicRequiresKey(t *testing.T) {
	_, err := NewAnthropic("", "", "", nil, nil)
	assert.Error(t, err)
}

func TestOpenAISend(t *testing.T) {
	var got map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"choices": [{
				"message": {"role": "assistant", "content": null, "tool_calls": [
					{"id": "c9", "type": "function", "function": {"name": "graph_stats", "arguments": "{\"verbose\":true}"}},
					{"id": "c10", "type": "function", "function": {"name": "graph_stats", "arguments": "not json"}}
				]},
				"finish_reason": "tool_calls"
			}],
			"usage": {"prompt_tokens": 20, "completion_tokens": 4}
		}`))
	}))
	defer srv.Close()

	p, err := NewOpenAI("sk-test", "gpt-test", srv.URL+"/v1", srv.Client(), nil)
	require.NoError(t, err)

	resp, err := p.Send(context.Background(), Request{System: "sys", Messages: conversation, Tools: []Tool{nodeTool}})
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, StopToolUse, resp.StopReason)
	assert.Equal(t, int64(24), resp.Usage.Total())
	require.Len(t, resp.ToolCalls, 2)
	assert.Equal(t, true, resp.ToolCalls[0].Arguments["verbose"])
	assert.Empty(t, resp.ToolCalls[1].Arguments, "bad arguments decode to an empty map")

	msgs := got["messages"].([]any)
	require.Len(t, msgs, 5, "system prompt is prepended")
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assistant := msgs[2].(map[string]any)
	call := assistant["tool_calls"].([]any)[0].(map[string]any)["function"].(map[string]any)
	assert.JSONEq(t, `{"content":"likes tea"}`, call["arguments"].(string))
	assert.Equal(t, "call_1", msgs[3].(map[string]any)["tool_call_id"])
}

func TestOpenAIProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	p, err := NewOpenAI("sk-test", "", srv.URL, srv.Client(), nil)
	require.NoError(t, err)

	_, err = p.Send(context.Background(), Request{Messages: []Message{{Role: model.RoleUser, Content: "hi"}}})
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.IsRateLimited())
	assert.Equal(t, "rate_limit_error", perr.Type)
}

func TestOllamaSend(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{
			"model": "llama3.2",
			"message": {"role": "assistant", "content": "", "tool_calls": [
				{"function": {"name": "graph_traverse", "arguments": {"start_node_id": "n1"}}},
				{"function": {"name": "graph_stats", "arguments": "{\"x\": 1}"}}
			]},
			"done_reason": "stop",
			"prompt_eval_count": 30,
			"eval_count": 6
		}`))
	}))
	defer srv.Close()

	p := NewOllama("", srv.URL+"/", srv.Client(), nil)
	resp, err := p.Send(context.Background(), Request{System: "sys", Messages: conversation, MaxTokens: 256})
	require.NoError(t, err)

	assert.False(t, got.Stream)
	assert.Equal(t, 256, got.Options.NumPredict)
	assert.Equal(t, DefaultOllamaModel, got.Model)
	assert.Equal(t, "system", got.Messages[0].Role)

	assert.Equal(t, Usage{InputTokens: 30, OutputTokens: 6}, resp.Usage)
	assert.Equal(t, StopToolUse, resp.StopReason)
	require.Len(t, resp.ToolCalls, 2)
	assert.True(t, strings.HasPrefix(resp.ToolCalls[0].ID, "ollama_"))
	assert.NotEqual(t, resp.ToolCalls[0].ID, resp.ToolCalls[1].ID)
	assert.Equal(t, "n1", resp.ToolCalls[0].Arguments["start_node_id"])
	assert.Equal(t, float64(1), resp.ToolCalls[1].Arguments["x"], "string arguments are decoded")
}

func TestOllamaErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model 'nope' not found"}`))
	}))
	defer srv.Close()

	_, err := NewOllama("nope", srv.URL, srv.Client(), nil).Send(context.Background(), Request{})
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusNotFound, perr.StatusCode)
	assert.Contains(t, perr.Message, "not found")
}

func TestGeminiSend(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "gemini-test:generateContent")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"candidates": [{
				"content": {"role": "model", "parts": [
					{"text": "Looking."},
					{"functionCall": {"name": "graph_stats", "args": {"a": "b"}}}
				]},
				"finishReason": "STOP"
			}],
			"usageMetadata": {"promptTokenCount": 9, "candidatesTokenCount": 3}
		}`))
	}))
	defer srv.Close()

	p, err := NewGemini(context.Background(), "g-key", "gemini-test", srv.URL, srv.Client(), nil)
	require.NoError(t, err)

	resp, err := p.Send(context.Background(), Request{System: "sys", Messages: conversation, Tools: []Tool{nodeTool}})
	require.NoError(t, err)

	assert.Equal(t, "Looking.", resp.Content)
	assert.Equal(t, StopToolUse, resp.StopReason)
	assert.Equal(t, Usage{InputTokens: 9, OutputTokens: 3}, resp.Usage)
	require.Len(t, resp.ToolCalls, 1)
	assert.True(t, strings.HasPrefix(resp.ToolCalls[0].ID, geminiLocalIDPrefix))
	assert.Equal(t, "b", resp.ToolCalls[0].Arguments["a"])

	contents := got["contents"].([]any)
	require.Len(t, contents, 3)
	assert.Equal(t, "model", contents[1].(map[string]any)["role"])
}

func TestToGeminiContentsPairsResponsesByName(t *testing.T) {
	contents := toGeminiContents(conversation)
	require.Len(t, contents, 3)

	responses := contents[2].Parts
	require.Len(t, responses, 2)
	assert.Equal(t, "graph_create_node", responses[0].FunctionResponse.Name)
	assert.Equal(t, "call_1", responses[0].FunctionResponse.ID)
	assert.Equal(t, "boom", responses[1].FunctionResponse.Response["error"])
}

func TestComplete(t *testing.T) {
	ft := &fakeTransport{status: 200, body: `{
		"id": "msg_2", "type": "message", "role": "assistant", "model": "m",
		"content": [{"type": "text", "text": "A summary."}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 1, "output_tokens": 2}
	}`}
	p, err := NewAnthropic("k", "m", "", &http.Client{Transport: ft}, nil)
	require.NoError(t, err)

	text, resp, err := Complete(context.Background(), p, "sys", "summarize", 500)
	require.NoError(t, err)
	assert.Equal(t, "A summary.", text)
	assert.Equal(t, StopEndTurn, resp.StopReason)
	assert.NotContains(t, string(ft.got), `"tools"`)
}

func TestFactory(t *testing.T) {
	ctx := context.Background()

	p, err := New(ctx, config.LLMConfig{Provider: "ollama"}, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())

	p, err = New(ctx, config.LLMConfig{Provider: "OpenAI", APIKey: "k"}, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	_, err = New(ctx, config.LLMConfig{Provider: "openai"}, 0, nil)
	assert.Error(t, err, "missing key")

	_, err = New(ctx, config.LLMConfig{Provider: "telepathy"}, 0, nil)
	assert.Error(t, err)
}
