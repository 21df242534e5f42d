// Package tools implements the tool backends the orchestrator calls into:
// a local registry of Go handlers, the built-in memory tools, and an HTTP
// client for a remote approval-gated tool server.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/rcliao/agent-mind/internal/llm"
)

// ErrUnknownTool is returned when no backend knows the requested tool.
var ErrUnknownTool = errors.New("unknown tool")

// Backend executes tools by name. A returned error is a failed call; the
// caller decides how to surface it.
type Backend interface {
	Execute(ctx context.Context, name string, args map[string]any) (string, error)
	Definitions() []llm.Tool
}

const pendingApprovalMarker = "PENDING APPROVAL (ID: "

// IsPendingApproval reports whether a tool result is the queued-for-approval
// marker rather than the output of an executed action.
func IsPendingApproval(result string) bool {
	return strings.Contains(result, pendingApprovalMarker)
}

// schemaFor derives a JSON Schema object for T's exported fields.
func schemaFor[T any]() json.RawMessage {
	r := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	b, err := json.Marshal(r.Reflect(v))
	if err != nil {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}

	// Some providers reject the meta-schema keyword.
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return b
	}
	delete(m, "$schema")
	if _, ok := m["properties"]; !ok {
		m["properties"] = map[string]any{}
	}
	out, err := json.Marshal(m)
	if err != nil {
		return b
	}
	return out
}
