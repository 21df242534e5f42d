package agent

import (
	"strings"

	"github.com/rcliao/agent-mind/internal/store"
)

// buildSystemPrompt renders base instructions, memory blocks and
// summaries of evicted conversation.
func buildSystemPrompt(c *store.Context) string {
	var parts []string

	if c.BaseInstructions != "" {
		parts = append(parts, c.BaseInstructions)
	}

	if len(c.Blocks) > 0 {
		parts = append(parts, "\n<memory_blocks>")
		for _, b := range c.Blocks {
			parts = append(parts, "\n<"+b.Label+">")
			if b.Description != "" {
				parts = append(parts, "<description>"+b.Description+"</description>")
			}
			parts = append(parts, "<value>"+b.Content+"</value>")
			parts = append(parts, "</"+b.Label+">")
		}
		parts = append(parts, "\n</memory_blocks>")
	}

	if len(c.Summaries) > 0 {
		parts = append(parts, "\n<conversation_summaries>")
		for _, s := range c.Summaries {
			parts = append(parts, "<summary>"+s.Summary+"</summary>")
		}
		parts = append(parts, "</conversation_summaries>")
	}

	return strings.Join(parts, "\n")
}
