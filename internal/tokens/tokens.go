// Package tokens estimates token counts from character counts.
//
// The estimate is a heuristic, not a tokenizer: callers must tolerate
// errors of roughly ±20% against any real model vocabulary.
package tokens

import (
	"encoding/json"
	"unicode/utf8"

	"github.com/rcliao/agent-mind/internal/model"
)

// DefaultCharsPerToken is the ratio used when none is configured.
const DefaultCharsPerToken = 4

// RoleOverhead is the fixed per-message cost added for role framing.
const RoleOverhead = 4

// Estimator converts text lengths into approximate token counts.
type Estimator struct {
	CharsPerToken int
}

// NewEstimator returns an estimator for the given ratio, falling back to
// DefaultCharsPerToken for non-positive values.
func NewEstimator(charsPerToken int) Estimator {
	if charsPerToken <= 0 {
		charsPerToken = DefaultCharsPerToken
	}
	return Estimator{CharsPerToken: charsPerToken}
}

func (e Estimator) ratio() int {
	if e.CharsPerToken <= 0 {
		return DefaultCharsPerToken
	}
	return e.CharsPerToken
}

// Estimate returns the approximate token count of s.
func (e Estimator) Estimate(s string) int {
	if s == "" {
		return 0
	}
	return utf8.RuneCountInString(s) / e.ratio()
}

// EstimateMessage counts content, serialized tool calls and role overhead.
func (e Estimator) EstimateMessage(m model.Message) int {
	n := e.Estimate(m.Content) + RoleOverhead
	if len(m.ToolCalls) > 0 {
		b, _ := json.Marshal(m.ToolCalls)
		n += e.Estimate(string(b))
	}
	return n
}

// EstimateMessages sums EstimateMessage over msgs.
func (e Estimator) EstimateMessages(msgs []model.Message) int {
	total := 0
	for _, m := range msgs {
		total += e.EstimateMessage(m)
	}
	return total
}
