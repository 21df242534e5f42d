package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rcliao/agent-mind/internal/compaction"
	"github.com/rcliao/agent-mind/internal/llm"
	"github.com/rcliao/agent-mind/internal/model"
	"github.com/rcliao/agent-mind/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedProvider replays responses in order, repeating the last one.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []*llm.Response
	err       error
	requests  []llm.Request
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Send(_ context.Context, req llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	i := len(p.requests) - 1
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	r := *p.responses[i]
	return &r, nil
}

type memStore struct {
	mu       sync.Mutex
	messages []model.Message
	blocks   []model.MemoryBlock
	sums     []model.Summary
	// hideHistory makes LoadContext return no messages, so only the
	// session buffer carries the conversation.
	hideHistory bool
}

func (s *memStore) AddMessage(_ context.Context, p store.AddMessageParams) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := model.Message{
		ID:        fmt.Sprintf("m%03d", len(s.messages)),
		Role:      p.Role,
		Content:   p.Content,
		SessionID: p.SessionID,
	}
	s.messages = append(s.messages, m)
	return &m, nil
}

func (s *memStore) LoadContext(_ context.Context, p store.ContextParams) (*store.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &store.Context{BaseInstructions: p.BaseInstructions, Blocks: s.blocks, Summaries: s.sums}
	if !s.hideHistory {
		msgs := s.messages
		if len(msgs) > p.MessageLimit {
			msgs = msgs[len(msgs)-p.MessageLimit:]
		}
		c.Messages = append([]model.Message(nil), msgs...)
	}
	return c, nil
}

type fakeTools struct {
	mu    sync.Mutex
	err   error
	calls []string
}

func (f *fakeTools) Execute(_ context.Context, name string, args map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("%s ok", name), nil
}

func (f *fakeTools) Definitions() []llm.Tool {
	return []llm.Tool{{Name: "graph_stats", Description: "stats"}}
}

type fakeCompactor struct {
	needs  bool
	err    error
	called int
}

func (c *fakeCompactor) NeedsCompaction(context.Context) (bool, error) { return c.needs, nil }

func (c *fakeCompactor) Compact(context.Context) (*compaction.Result, error) {
	c.called++
	if c.err != nil {
		return nil, c.err
	}
	return &compaction.Result{Summarized: 12, Kept: 4, Deleted: 12}, nil
}

func text(s string, in, out int64) *llm.Response {
	return &llm.Response{Content: s, StopReason: llm.StopEndTurn, Usage: llm.Usage{InputTokens: in, OutputTokens: out}}
}

func toolUse(names ...string) *llm.Response {
	r := &llm.Response{StopReason: llm.StopToolUse, Usage: llm.Usage{InputTokens: 10, OutputTokens: 2}}
	for i, n := range names {
		r.ToolCalls = append(r.ToolCalls, model.ToolCall{ID: fmt.Sprintf("call_%d", i), Name: n, Arguments: map[string]any{}})
	}
	return r
}

func TestProcessMessageTextOnly(t *testing.T) {
	st := &memStore{}
	p := &scriptedProvider{responses: []*llm.Response{text("Hello!", 20, 5)}}
	o := New(p, st, &fakeTools{}, Config{BaseInstructions: "You are helpful."})

	res, err := o.ProcessMessage(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello!", res.Response)
	assert.Equal(t, 1, res.TotalIterations)
	assert.False(t, res.Capped)
	assert.Equal(t, int64(25), res.Usage.Total())

	require.Len(t, st.messages, 2)
	assert.Equal(t, model.RoleUser, st.messages[0].Role)
	assert.Equal(t, "hi", st.messages[0].Content)
	assert.Equal(t, "Hello!", st.messages[1].Content)
	assert.Equal(t, o.SessionID(), st.messages[1].SessionID)

	req := p.requests[0]
	assert.Equal(t, "You are helpful.", req.System)
	assert.Equal(t, 4096, req.MaxTokens)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, []llm.Message{{Role: model.RoleUser, Content: "hi"}}, req.Messages)
}

func TestProcessMessageToolLoop(t *testing.T) {
	st := &memStore{}
	tl := &fakeTools{}
	p := &scriptedProvider{responses: []*llm.Response{toolUse("graph_stats", "graph_traverse"), text("Done.", 30, 3)}}
	o := New(p, st, tl, Config{})

	res, err := o.ProcessMessage(context.Background(), "look around")
	require.NoError(t, err)
	assert.Equal(t, "Done.", res.Response)
	assert.Equal(t, 2, res.TotalIterations)
	assert.Len(t, res.ToolCalls, 2)
	assert.Equal(t, llm.Usage{InputTokens: 40, OutputTokens: 5}, res.Usage)
	assert.Equal(t, []string{"graph_stats", "graph_traverse"}, tl.calls)

	second := p.requests[1].Messages
	require.Len(t, second, 4, "user, assistant with calls, two tool results")
	assert.Len(t, second[1].ToolCalls, 2)
	assert.Equal(t, model.RoleTool, second[2].Role)
	assert.Equal(t, "call_0", second[2].ToolCallID)
	assert.Equal(t, "graph_stats", second[2].ToolName)
	assert.Equal(t, "graph_traverse ok", second[3].Content)

	require.Len(t, st.messages, 2, "only the user message and final reply are persisted")
}

func TestProcessMessageCappedIterations(t *testing.T) {
	st := &memStore{}
	p := &scriptedProvider{responses: []*llm.Response{toolUse("graph_stats")}}
	o := New(p, st, &fakeTools{}, Config{MaxToolIterations: 3})

	res, err := o.ProcessMessage(context.Background(), "loop forever")
	require.NoError(t, err)
	assert.True(t, res.Capped)
	assert.Equal(t, 3, res.TotalIterations)
	assert.Len(t, p.requests, 3)
	assert.Len(t, res.ToolCalls, 3)
	assert.Equal(t, int64(36), res.Usage.Total())
	assert.True(t, strings.HasPrefix(res.Response, "[Tool-only response: graph_stats, graph_stats, graph_stats]"))
	assert.True(t, strings.HasSuffix(res.Response, "[Stopped after 3 tool iterations without a final response]"))
	assert.Equal(t, res.Response, st.messages[1].Content)
}

func TestProcessMessageDefaultCap(t *testing.T) {
	p := &scriptedProvider{responses: []*llm.Response{toolUse("graph_stats")}}
	res, err := New(p, &memStore{}, &fakeTools{}, Config{}).ProcessMessage(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, 10, res.TotalIterations)
}

func TestProcessMessageFailingTools(t *testing.T) {
	tl := &fakeTools{err: errors.New("connection refused")}
	p := &scriptedProvider{responses: []*llm.Response{toolUse("graph_stats"), text("Sorry, that failed.", 1, 1)}}
	o := New(p, &memStore{}, tl, Config{})

	res, err := o.ProcessMessage(context.Background(), "stats please")
	require.NoError(t, err)
	assert.Equal(t, "Sorry, that failed.", res.Response)

	result := p.requests[1].Messages[2]
	assert.Equal(t, "Error executing graph_stats: connection refused", result.Content)
	assert.True(t, result.IsError)
}

func TestProcessMessageWithoutBackend(t *testing.T) {
	p := &scriptedProvider{responses: []*llm.Response{toolUse("shell"), text("ok", 1, 1)}}
	res, err := New(p, &memStore{}, nil, Config{}).ProcessMessage(context.Background(), "run")
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Response)
	assert.Empty(t, p.requests[0].Tools)
	assert.Contains(t, p.requests[1].Messages[2].Content, "Error executing shell: unknown tool")
}

func TestProcessMessageToolOnlyPlaceholder(t *testing.T) {
	st := &memStore{}
	p := &scriptedProvider{responses: []*llm.Response{toolUse("graph_create_node", "graph_create_edge"), text("", 1, 0)}}
	res, err := New(p, st, &fakeTools{}, Config{}).ProcessMessage(context.Background(), "remember this")
	require.NoError(t, err)
	assert.Equal(t, "[Tool-only response: graph_create_node, graph_create_edge]", res.Response)
	assert.Equal(t, res.Response, st.messages[1].Content)
}

func TestProcessMessageEmptyReplyPersistsOnlyUser(t *testing.T) {
	st := &memStore{}
	p := &scriptedProvider{responses: []*llm.Response{text("", 1, 0)}}
	res, err := New(p, st, nil, Config{}).ProcessMessage(context.Background(), "hmm")
	require.NoError(t, err)
	assert.Empty(t, res.Response)
	require.Len(t, st.messages, 1)
}

func TestProcessMessageRejectsEmpty(t *testing.T) {
	p := &scriptedProvider{responses: []*llm.Response{text("x", 0, 0)}}
	_, err := New(p, &memStore{}, nil, Config{}).ProcessMessage(context.Background(), "  \n\t")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, p.requests)
}

func TestProcessMessageModelError(t *testing.T) {
	st := &memStore{}
	boom := &llm.ProviderError{StatusCode: 500, Message: "overloaded"}
	p := &scriptedProvider{err: boom}

	_, err := New(p, st, nil, Config{}).ProcessMessage(context.Background(), "hi")
	var perr *llm.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Empty(t, st.messages)
}

func TestProcessMessageCompaction(t *testing.T) {
	c := &fakeCompactor{needs: true}
	p := &scriptedProvider{responses: []*llm.Response{text("ok", 1, 1)}}
	res, err := New(p, &memStore{}, nil, Config{}, WithCompactor(c)).ProcessMessage(context.Background(), "hi")
	require.NoError(t, err)
	assert.True(t, res.CompactionPerformed)
	require.NotNil(t, res.Compaction)
	assert.Equal(t, 12, res.Compaction.Deleted)
	assert.Equal(t, 1, c.called)

	c = &fakeCompactor{needs: false}
	res, err = New(p, &memStore{}, nil, Config{}, WithCompactor(c)).ProcessMessage(context.Background(), "hi")
	require.NoError(t, err)
	assert.False(t, res.CompactionPerformed)
	assert.Zero(t, c.called)

	boom := errors.New("summarizer down")
	c = &fakeCompactor{needs: true, err: boom}
	p = &scriptedProvider{responses: []*llm.Response{text("ok", 1, 1)}}
	_, err = New(p, &memStore{}, nil, Config{}, WithCompactor(c)).ProcessMessage(context.Background(), "hi")
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, p.requests, "the model is not called when compaction fails")
}

func TestSessionBuffer(t *testing.T) {
	st := &memStore{hideHistory: true}
	p := &scriptedProvider{responses: []*llm.Response{text("reply", 1, 1)}}
	o := New(p, st, nil, Config{SessionBufferLimit: 4})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := o.ProcessMessage(ctx, fmt.Sprintf("turn %d", i))
		require.NoError(t, err)
	}

	last := p.requests[2].Messages
	require.Len(t, last, 5, "four buffered messages plus the new one")
	assert.Equal(t, "turn 0", last[0].Content)

	_, err := o.ProcessMessage(ctx, "turn 3")
	require.NoError(t, err)
	msgs := p.requests[3].Messages
	require.Len(t, msgs, 5)
	assert.Equal(t, "turn 1", msgs[0].Content, "oldest pair dropped")

	before := o.SessionID()
	o.ClearSession()
	assert.NotEqual(t, before, o.SessionID())
	_, err = o.ProcessMessage(ctx, "fresh")
	require.NoError(t, err)
	assert.Len(t, p.requests[4].Messages, 1)
}

func TestSessionBufferNotDuplicated(t *testing.T) {
	st := &memStore{}
	p := &scriptedProvider{responses: []*llm.Response{text("reply", 1, 1)}}
	o := New(p, st, nil, Config{})
	ctx := context.Background()

	_, err := o.ProcessMessage(ctx, "first")
	require.NoError(t, err)
	_, err = o.ProcessMessage(ctx, "second")
	require.NoError(t, err)

	msgs := p.requests[1].Messages
	require.Len(t, msgs, 3, "persisted history already holds the buffered pair")
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "reply", msgs[1].Content)
	assert.Equal(t, "second", msgs[2].Content)
}

func TestSystemPrompt(t *testing.T) {
	st := &memStore{
		blocks: []model.MemoryBlock{
			{Label: "human", Content: "Name: Sam", Description: "About the user"},
			{Label: "persona", Content: "Curious"},
		},
		sums: []model.Summary{{Summary: "Sam asked about tea."}},
	}
	p := &scriptedProvider{responses: []*llm.Response{text("ok", 1, 1)}}
	_, err := New(p, st, nil, Config{BaseInstructions: "Base."}).ProcessMessage(context.Background(), "hi")
	require.NoError(t, err)

	sys := p.requests[0].System
	assert.True(t, strings.HasPrefix(sys, "Base.\n"))
	assert.Contains(t, sys, "<memory_blocks>")
	assert.Contains(t, sys, "<human>\n<description>About the user</description>\n<value>Name: Sam</value>\n</human>")
	assert.Contains(t, sys, "<persona>\n<value>Curious</value>\n</persona>")
	assert.Contains(t, sys, "<summary>Sam asked about tea.</summary>")
	assert.Less(t, strings.Index(sys, "</memory_blocks>"), strings.Index(sys, "<conversation_summaries>"))
}

func TestToLLMMessagesResolvesToolNames(t *testing.T) {
	msgs := toLLMMessages([]model.Message{
		{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{{ID: "c1", Name: "graph_stats"}}},
		{Role: model.RoleTool, Content: "{}", ToolCallRef: "c1"},
	})
	require.Len(t, msgs, 2)
	assert.Equal(t, "c1", msgs[1].ToolCallID)
	assert.Equal(t, "graph_stats", msgs[1].ToolName)
}
