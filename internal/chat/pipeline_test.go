package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/havenmind/haven/internal/knowledge"
	"github.com/havenmind/haven/internal/log"
	"github.com/havenmind/haven/internal/session"
	"github.com/havenmind/haven/internal/testutil"
)

// stubRetriever returns scripted results.
type stubRetriever struct {
	results []knowledge.Result
	err     error
	queries []string
}

func (r *stubRetriever) Search(_ context.Context, query string, _ ...knowledge.SearchOption) ([]knowledge.Result, error) {
	r.queries = append(r.queries, query)
	return r.results, r.err
}

func newTestPipeline(t *testing.T, retriever Retriever) (*Pipeline, *testutil.MockLLM) {
	t.Helper()

	g := genkit.Init(context.Background())
	llm := testutil.NewMockLLM("I'm here for you.")
	llm.RegisterModel(g)

	p := NewPipeline(g, retriever, PipelineConfig{
		ModelName:    "mock/test-model",
		TopK:         3,
		MinRelevance: 0.5,
		Retry: RetryConfig{
			MaxRetries:      2,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
		},
	}, nil, log.NewNop())
	return p, llm
}

func TestPipelineGroundedAnswer(t *testing.T) {
	retriever := &stubRetriever{results: []knowledge.Result{
		{Passage: knowledge.Passage{ID: "p1", Source: "breathing.md", Content: "Box breathing slows the stress response."}, Score: 0.9},
		{Passage: knowledge.Passage{ID: "p2", Source: "grounding.md", Content: "The 5-4-3-2-1 technique anchors attention."}, Score: 0.8},
	}}
	p, llm := newTestPipeline(t, retriever)
	llm.AddResponse("panic attack", "Try slowing your breath; box breathing can help.")

	answer, err := p.Answer(context.Background(), nil, "how do I handle a panic attack")
	require.NoError(t, err)

	assert.Equal(t, "Try slowing your breath; box breathing can help.", answer.Reply)
	assert.Equal(t, "Reply grounded in retrieved support content.", answer.Rationale)
	require.Len(t, answer.Citations, 2)
	assert.Equal(t, "breathing.md", answer.Citations[0].Source)
	assert.Equal(t, 0.9, answer.Citations[0].Score)

	// The model sees the passages alongside the user message.
	calls := llm.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].UserMessage, "Box breathing")
	assert.Contains(t, calls[0].UserMessage, "how do I handle a panic attack")
}

func TestPipelineUngroundedFallback(t *testing.T) {
	p, _ := newTestPipeline(t, &stubRetriever{})

	answer, err := p.Answer(context.Background(), nil, "I feel a bit off today")
	require.NoError(t, err)

	assert.Equal(t, "I'm here for you.", answer.Reply)
	assert.Contains(t, answer.Rationale, "general supportive guidance")
	assert.Empty(t, answer.Citations)
}

func TestPipelineRetrievalErrorDegrades(t *testing.T) {
	p, llm := newTestPipeline(t, &stubRetriever{err: errors.New("connection refused")})

	answer, err := p.Answer(context.Background(), nil, "rough week")
	require.NoError(t, err)
	assert.Equal(t, "I'm here for you.", answer.Reply)
	assert.Empty(t, answer.Citations)

	calls := llm.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "rough week", calls[0].UserMessage)
}

func TestPipelineHistoryPassedToModel(t *testing.T) {
	p, llm := newTestPipeline(t, &stubRetriever{})

	history := []session.Message{
		{Role: session.RoleUser, Content: "I haven't been sleeping"},
		{Role: session.RoleAssistant, Content: "That sounds exhausting."},
	}
	_, err := p.Answer(context.Background(), history, "it got worse")
	require.NoError(t, err)

	calls := llm.Calls()
	require.Len(t, calls, 1)
	// The mock matches against the last user message only.
	assert.Equal(t, "it got worse", calls[0].UserMessage)
}

func TestPipelineRetriesTransientErrors(t *testing.T) {
	p, llm := newTestPipeline(t, &stubRetriever{})
	llm.FailNext(2, errors.New("503 service unavailable"))

	answer, err := p.Answer(context.Background(), nil, "hello")
	require.NoError(t, err)
	assert.Equal(t, "I'm here for you.", answer.Reply)
	assert.Len(t, llm.Calls(), 1)
}

func TestPipelineExhaustedRetries(t *testing.T) {
	p, llm := newTestPipeline(t, &stubRetriever{})
	llm.FailNext(10, errors.New("503 service unavailable"))

	_, err := p.Answer(context.Background(), nil, "hello")
	assert.ErrorIs(t, err, ErrGenerationUnavailable)
}

func TestPipelineNonRetryableErrorFailsFast(t *testing.T) {
	p, llm := newTestPipeline(t, &stubRetriever{})
	llm.FailNext(1, errors.New("invalid request"))

	_, err := p.Answer(context.Background(), nil, "hello")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrGenerationUnavailable)
	// A second call would have succeeded; the pipeline must not retry.
	assert.Empty(t, llm.Calls())
}

func TestRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "rate limit", err: errors.New("429 Too Many Requests"), want: true},
		{name: "quota", err: errors.New("Quota Exceeded for project"), want: true},
		{name: "server error", err: errors.New("503 Service Unavailable"), want: true},
		{name: "network", err: errors.New("read: connection reset by peer"), want: true},
		{name: "timeout", err: errors.New("request timeout"), want: true},
		{name: "bad request", err: errors.New("invalid request"), want: false},
		{name: "auth", err: errors.New("401 unauthorized"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryableError(tt.err))
		})
	}
}
