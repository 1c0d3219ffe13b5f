// Package chat implements the conversational core: retrieval-augmented
// answer generation and the service that combines it with crisis
// screening and alerting.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/havenmind/haven/internal/knowledge"
	"github.com/havenmind/haven/internal/metrics"
	"github.com/havenmind/haven/internal/session"
)

// ErrGenerationUnavailable wraps model failures that exhausted all
// retries. The API layer maps it to 503.
var ErrGenerationUnavailable = errors.New("model generation unavailable")

// Retriever searches the knowledge base. Satisfied by
// *knowledge.Store.
type Retriever interface {
	Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Result, error)
}

// Citation points a reply back at the passage that grounded it.
type Citation struct {
	Source  string  `json:"source"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// Answer is the pipeline's output for one user message.
type Answer struct {
	Reply     string
	Rationale string
	Citations []Citation
}

// PipelineConfig tunes retrieval and generation.
type PipelineConfig struct {
	ModelName    string
	TopK         int
	MinRelevance float64
	Retry        RetryConfig

	// Limiter throttles model calls across the whole process. nil
	// disables proactive rate limiting.
	Limiter *rate.Limiter
}

// Pipeline produces grounded answers: retrieve relevant passages, build
// an augmented prompt, generate with retry. When retrieval yields
// nothing the pipeline degrades to an ungrounded supportive reply
// rather than failing.
type Pipeline struct {
	g           *genkit.Genkit
	retriever   Retriever
	modelName   string
	topK        int
	minScore    float64
	retryConfig RetryConfig
	limiter     *rate.Limiter
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// NewPipeline creates a Pipeline. metrics and logger may be nil.
func NewPipeline(g *genkit.Genkit, retriever Retriever, cfg PipelineConfig, m *metrics.Metrics, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	retryConfig := cfg.Retry
	if retryConfig.MaxRetries == 0 {
		retryConfig = DefaultRetryConfig()
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 3
	}
	return &Pipeline{
		g:           g,
		retriever:   retriever,
		modelName:   cfg.ModelName,
		topK:        topK,
		minScore:    cfg.MinRelevance,
		retryConfig: retryConfig,
		limiter:     cfg.Limiter,
		logger:      logger,
		metrics:     m,
	}
}

// Answer generates a grounded reply to query, given the session's prior
// messages in chronological order.
func (p *Pipeline) Answer(ctx context.Context, history []session.Message, query string) (Answer, error) {
	passages, err := p.retriever.Search(ctx, query,
		knowledge.WithTopK(p.topK), knowledge.WithMinScore(p.minScore))
	if err != nil {
		// Retrieval failure is not fatal; answer ungrounded instead.
		p.logger.Warn("knowledge retrieval failed, answering ungrounded", "error", err)
		passages = nil
	}
	if p.metrics != nil {
		p.metrics.RetrievedPassages.Observe(float64(len(passages)))
	}

	opts := []ai.GenerateOption{
		ai.WithModelName(p.modelName),
		ai.WithSystem(systemPrompt),
		ai.WithPrompt(buildUserPrompt(query, passages)),
	}
	if msgs := historyMessages(history); len(msgs) > 0 {
		opts = append(opts, ai.WithMessages(msgs...))
	}

	start := time.Now()
	resp, err := p.generateWithRetry(ctx, opts)
	if p.metrics != nil {
		p.metrics.GenerationDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return Answer{}, err
	}

	answer := Answer{
		Reply:     resp.Text(),
		Rationale: rationaleFor(passages),
		Citations: citationsFor(passages),
	}
	p.logger.Debug("answer generated",
		"passages", len(passages),
		"reply_length", len(answer.Reply))
	return answer, nil
}

// historyMessages converts stored messages into model turns.
func historyMessages(history []session.Message) []*ai.Message {
	msgs := make([]*ai.Message, 0, len(history))
	for _, m := range history {
		role := ai.RoleUser
		if m.Role == session.RoleAssistant {
			role = ai.RoleModel
		}
		msgs = append(msgs, &ai.Message{
			Role:    role,
			Content: []*ai.Part{ai.NewTextPart(m.Content)},
		})
	}
	return msgs
}

func rationaleFor(passages []knowledge.Result) string {
	if len(passages) == 0 {
		return "No sufficiently relevant reference material was found; the reply is general supportive guidance."
	}
	return "Reply grounded in retrieved support content."
}

func citationsFor(passages []knowledge.Result) []Citation {
	if len(passages) == 0 {
		return nil
	}
	citations := make([]Citation, 0, len(passages))
	for _, r := range passages {
		citations = append(citations, Citation{
			Source:  r.Passage.Source,
			Snippet: snippet(r.Passage.Content, 160),
			Score:   r.Score,
		})
	}
	return citations
}

func snippet(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
