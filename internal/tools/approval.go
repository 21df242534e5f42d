package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rcliao/agent-mind/internal/llm"
)

// ApprovalClient forwards tool calls to a remote tool server that either
// runs them (200) or queues them for human approval (202).
type ApprovalClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger

	mu   sync.RWMutex
	defs []llm.Tool
}

// NewApprovalClient creates a client for the server at baseURL. defs are
// the remote tools advertised to the model until LoadDefinitions replaces
// them with the server's own list.
func NewApprovalClient(baseURL string, timeout time.Duration, defs []llm.Tool, logger *zap.Logger) *ApprovalClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		defs:       defs,
		logger:     logger,
	}
}

type approvalRequest struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

type approvalResponse struct {
	Result     *string `json:"result"`
	ID         string  `json:"id"`
	ApprovalID string  `json:"approval_id"`
	Error      string  `json:"error"`
}

// Execute posts the call to {base}/approvals. A queued call is not an
// error: it returns the pending-approval marker so the model does not
// assume the action happened.
func (c *ApprovalClient) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}
	body, err := json.Marshal(approvalRequest{Tool: name, Args: args})
	if err != nil {
		return "", fmt.Errorf("encode approval request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/approvals", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create approval request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("approval_connection_error", zap.String("tool", name), zap.Error(err))
		return "", fmt.Errorf("tool server: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read tool server response: %w", err)
	}
	var data approvalResponse
	decodeErr := json.Unmarshal(raw, &data)

	switch resp.StatusCode {
	case http.StatusOK:
		if decodeErr != nil || data.Result == nil {
			return "OK", nil
		}
		return *data.Result, nil
	case http.StatusAccepted:
		id := data.ID
		if id == "" {
			id = data.ApprovalID
		}
		if id == "" {
			id = "unknown"
		}
		c.logger.Info("tool_queued_for_approval", zap.String("tool", name), zap.String("id", id))
		return pendingApprovalMarker + id + ") - This action requires approval before it executes. " +
			"Do NOT assume it completed - wait for approval.", nil
	default:
		c.logger.Error("tool_server_error", zap.String("tool", name), zap.Int("status", resp.StatusCode))
		if decodeErr == nil && data.Error != "" {
			return "", fmt.Errorf("tool server: %s", data.Error)
		}
		return "", fmt.Errorf("tool server: HTTP %d", resp.StatusCode)
	}
}

// Definitions returns the advertised remote tools.
func (c *ApprovalClient) Definitions() []llm.Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]llm.Tool(nil), c.defs...)
}

// LoadDefinitions fetches the tool schemas from {base}/tools, trying up to
// attempts times with delay between tries. On failure the previously
// loaded definitions are kept.
func (c *ApprovalClient) LoadDefinitions(ctx context.Context, attempts int, delay time.Duration) (int, error) {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var defs []llm.Tool
		defs, err = c.fetchDefinitions(ctx)
		if err == nil {
			c.mu.Lock()
			c.defs = defs
			c.mu.Unlock()
			c.logger.Info("tool_registry_loaded", zap.Int("tool_count", len(defs)))
			return len(defs), nil
		}
		if attempt == attempts {
			break
		}
		c.logger.Warn("tool_registry_load_retry",
			zap.Int("attempt", attempt), zap.Int("max_attempts", attempts), zap.Error(err))
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(delay):
		}
	}
	c.logger.Error("tool_registry_load_failed", zap.Error(err))
	return 0, err
}

func (c *ApprovalClient) fetchDefinitions(ctx context.Context) ([]llm.Tool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tools", nil)
	if err != nil {
		return nil, fmt.Errorf("create tools request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tool server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tool server: HTTP %d", resp.StatusCode)
	}
	var data struct {
		Tools []llm.Tool `json:"tools"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode tool list: %w", err)
	}
	defs := make([]llm.Tool, 0, len(data.Tools))
	for _, t := range data.Tools {
		if t.Name == "" {
			continue
		}
		if len(t.InputSchema) == 0 {
			t.InputSchema = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		defs = append(defs, t)
	}
	return defs, nil
}
