// Package model defines the core conversation and memory data types.
package model

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one persisted conversation entry.
type Message struct {
	ID          string     `json:"id"`
	Role        string     `json:"role"`
	Content     string     `json:"content"`
	ToolCalls   []ToolCall `json:"tool_calls,omitempty"`
	ToolCallRef string     `json:"tool_call_ref,omitempty"`
	SessionID   string     `json:"session_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// MemoryBlock is a labeled slot rendered into the system prompt.
type MemoryBlock struct {
	Label       string    `json:"label"`
	Content     string    `json:"content"`
	Description string    `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Summary is the compacted text for a range of evicted messages.
type Summary struct {
	ID         string    `json:"id"`
	Summary    string    `json:"summary"`
	RangeStart string    `json:"range_start,omitempty"`
	RangeEnd   string    `json:"range_end,omitempty"`
	TokenCount int       `json:"token_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// ValidRoles are the roles a persisted message may carry.
var ValidRoles = map[string]bool{
	RoleUser:      true,
	RoleAssistant: true,
	RoleTool:      true,
}
