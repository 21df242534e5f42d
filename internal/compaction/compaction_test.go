package compaction

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/agent-mind/internal/llm"
	"github.com/rcliao/agent-mind/internal/model"
	"github.com/rcliao/agent-mind/internal/store"
	"github.com/rcliao/agent-mind/internal/tokens"
)

type fakeProvider struct {
	reply string
	err   error
	calls []llm.Request
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Send(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Content: f.reply, StopReason: llm.StopEndTurn}, nil
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// seed adds n alternating user/assistant messages of 100 characters each,
// which the default estimator counts as 25 tokens.
func seed(t *testing.T, s *store.SQLiteStore, n int) []model.Message {
	t.Helper()
	var out []model.Message
	for i := 0; i < n; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		content := fmt.Sprintf("%-100s", fmt.Sprintf("message %d", i))
		m, err := s.AddMessage(context.Background(), store.AddMessageParams{Role: role, Content: content, SessionID: "s"})
		require.NoError(t, err)
		out = append(out, *m)
	}
	return out
}

func TestCompactEvictsOldestAndKeepsTarget(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seeded := seed(t, s, 50)
	est := tokens.NewEstimator(4)
	require.Equal(t, 25, est.Estimate(seeded[0].Content))

	p := &fakeProvider{reply: "The user sent fifty numbered messages."}
	e := New(s, p, est, Config{ContextLimit: 500, CompactThreshold: 0.7, TargetRatio: 0.20}, nil)

	res, err := e.Compact(ctx)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 4, res.Kept)
	assert.Equal(t, 46, res.Summarized)
	assert.Equal(t, 50-res.Kept, res.Deleted)
	assert.NotEmpty(t, res.SummaryID)

	remaining, err := s.AllMessages(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, res.Kept)
	kept := 0
	for _, m := range remaining {
		kept += est.Estimate(m.Content)
	}
	assert.LessOrEqual(t, kept, 100)
	assert.Equal(t, seeded[46].ID, remaining[0].ID, "the newest messages survive")

	summaries, err := s.ListSummaries(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, seeded[0].ID, summaries[0].RangeStart)
	assert.Equal(t, seeded[45].ID, summaries[0].RangeEnd)
	assert.Equal(t, est.Estimate(p.reply), summaries[0].TokenCount)

	require.Len(t, p.calls, 1)
	req := p.calls[0]
	assert.Equal(t, systemPrompt, req.System)
	assert.Empty(t, req.Tools)
	prompt := req.Messages[0].Content
	assert.Contains(t, prompt, "USER: message 0")
	assert.Contains(t, prompt, "ASSISTANT: message 45")
	assert.NotContains(t, prompt, "message 46")
	assert.True(t, strings.HasSuffix(prompt, "Summary:"))
}

func TestCompactSkipsShortHistory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s, 9)
	p := &fakeProvider{reply: "x"}

	res, err := New(s, p, tokens.NewEstimator(4), Config{ContextLimit: 10, TargetRatio: 0.1}, nil).Compact(ctx)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, ReasonTooFewMessages, res.Reason)
	assert.Empty(t, p.calls)

	n, err := s.CountMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, n)
}

func TestCompactNothingToSummarize(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, 12)
	p := &fakeProvider{reply: "x"}

	res, err := New(s, p, tokens.NewEstimator(4), DefaultConfig(), nil).Compact(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, ReasonNothingToSummarize, res.Reason)
	assert.Empty(t, p.calls)
}

func TestCompactSummaryFailureDeletesNothing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s, 20)
	boom := errors.New("model unavailable")

	_, err := New(s, &fakeProvider{err: boom}, tokens.NewEstimator(4), Config{ContextLimit: 500, TargetRatio: 0.2}, nil).Compact(ctx)
	require.ErrorIs(t, err, boom)

	n, err := s.CountMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	summaries, err := s.ListSummaries(ctx)
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestNeedsCompaction(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seed(t, s, 10) // 10 × (25 + role overhead) = 290 tokens
	est := tokens.NewEstimator(4)

	e := New(s, &fakeProvider{}, est, Config{ContextLimit: 500, CompactThreshold: 0.5}, nil)
	needs, err := e.NeedsCompaction(ctx)
	require.NoError(t, err)
	assert.True(t, needs, "290 >= 250")

	e = New(s, &fakeProvider{}, est, Config{ContextLimit: 500, CompactThreshold: 0.7}, nil)
	needs, err = e.NeedsCompaction(ctx)
	require.NoError(t, err)
	assert.False(t, needs, "290 < 350")

	_, err = s.UpsertBlock(ctx, store.BlockParams{Label: "persona", Content: strings.Repeat("p", 400)})
	require.NoError(t, err)
	needs, err = e.NeedsCompaction(ctx)
	require.NoError(t, err)
	assert.True(t, needs, "blocks count toward the estimate")
}
