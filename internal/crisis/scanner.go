package crisis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/firebase/genkit/go/ai"
)

// ScanConfig holds sliding-window scan parameters.
type ScanConfig struct {
	// WindowSize is the number of words per window.
	WindowSize int

	// Stride is the number of words the window advances per step.
	Stride int

	// Threshold is the minimum cosine similarity for a window to yield
	// a WindowScore.
	Threshold float64
}

// Scanner scores overlapping word windows of a message against
// precomputed crisis exemplar embeddings.
//
// The exemplar index is built by Init, normally run in a background
// goroutine at startup. Until the index is ready, Scan returns no
// matches (nil, nil) instead of blocking or erroring, so crisis
// detection degrades to keyword-only coverage. Safe for concurrent use;
// the index is swapped atomically.
type Scanner struct {
	embedder  ai.Embedder
	cfg       ScanConfig
	cacheFile string
	logger    *slog.Logger

	index atomic.Pointer[exemplarIndex]
}

// exemplarIndex is an immutable snapshot of exemplar phrases and their
// embeddings, in matching order.
type exemplarIndex struct {
	phrases []string
	vectors [][]float32
}

// embeddingCache is the on-disk JSON format for cached exemplar
// embeddings. The phrase list is stored alongside the vectors so a stale
// cache (phrases changed) is detected and recomputed.
type embeddingCache struct {
	Phrases    []string    `json:"phrases"`
	Embeddings [][]float32 `json:"embeddings"`
}

// NewScanner creates a Scanner. cacheFile may be empty to disable the
// disk cache.
func NewScanner(embedder ai.Embedder, cfg ScanConfig, cacheFile string, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		embedder:  embedder,
		cfg:       cfg,
		cacheFile: cacheFile,
		logger:    logger,
	}
}

// Ready reports whether the exemplar index has been initialized.
func (s *Scanner) Ready() bool {
	return s.index.Load() != nil
}

// Init builds the exemplar index for the given phrases: load from the
// disk cache when valid, otherwise embed each phrase and refresh the
// cache. Blocking; callers run it in a background goroutine so server
// startup is never gated on the embedder.
func (s *Scanner) Init(ctx context.Context, phrases []string) error {
	if len(phrases) == 0 {
		return fmt.Errorf("no exemplar phrases provided")
	}

	if vectors, ok := s.loadCache(phrases); ok {
		s.index.Store(&exemplarIndex{phrases: phrases, vectors: vectors})
		s.logger.Info("exemplar embeddings loaded from cache", "count", len(phrases))
		return nil
	}

	vectors := make([][]float32, 0, len(phrases))
	for _, phrase := range phrases {
		vec, err := embedText(ctx, s.embedder, phrase)
		if err != nil {
			return fmt.Errorf("embedding exemplar %q: %w", phrase, err)
		}
		vectors = append(vectors, vec)
	}

	s.index.Store(&exemplarIndex{phrases: phrases, vectors: vectors})
	s.saveCache(phrases, vectors)
	s.logger.Info("exemplar embeddings generated", "count", len(phrases))
	return nil
}

// loadCache returns cached vectors when the cache file exists and its
// phrase list matches exactly.
func (s *Scanner) loadCache(phrases []string) ([][]float32, bool) {
	if s.cacheFile == "" {
		return nil, false
	}

	raw, err := os.ReadFile(s.cacheFile)
	if err != nil {
		return nil, false
	}

	var cache embeddingCache
	if err := json.Unmarshal(raw, &cache); err != nil {
		s.logger.Warn("failed to parse embedding cache, recomputing", "error", err)
		return nil, false
	}
	if !slices.Equal(cache.Phrases, phrases) || len(cache.Embeddings) != len(phrases) {
		s.logger.Info("embedding cache stale, recomputing")
		return nil, false
	}
	return cache.Embeddings, true
}

// saveCache writes the embeddings to disk. Failures are logged, not
// fatal; the index is already live in memory.
func (s *Scanner) saveCache(phrases []string, vectors [][]float32) {
	if s.cacheFile == "" {
		return
	}

	raw, err := json.Marshal(embeddingCache{Phrases: phrases, Embeddings: vectors})
	if err != nil {
		s.logger.Warn("failed to encode embedding cache", "error", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.cacheFile), 0o750); err != nil {
		s.logger.Warn("failed to create cache directory", "error", err)
		return
	}
	if err := os.WriteFile(s.cacheFile, raw, 0o600); err != nil {
		s.logger.Warn("failed to write embedding cache", "error", err)
		return
	}
	s.logger.Debug("embedding cache saved", "path", s.cacheFile)
}

// Scan splits text into overlapping word windows, embeds each window and
// compares it against every exemplar vector. Windows whose best cosine
// similarity reaches the configured threshold yield a WindowScore.
//
// Returns (nil, nil) when the exemplar index is not yet initialized.
func (s *Scanner) Scan(ctx context.Context, text string) ([]WindowScore, error) {
	index := s.index.Load()
	if index == nil {
		return nil, nil
	}

	var scores []WindowScore
	for _, span := range Windows(text, s.cfg.WindowSize, s.cfg.Stride) {
		vec, err := embedText(ctx, s.embedder, span)
		if err != nil {
			return scores, fmt.Errorf("embedding window: %w", err)
		}

		best := -1.0
		bestExemplar := ""
		for i, exemplar := range index.vectors {
			if sim := cosineSimilarity(vec, exemplar); sim > best {
				best = sim
				bestExemplar = index.phrases[i]
			}
		}
		if best >= s.cfg.Threshold {
			scores = append(scores, WindowScore{
				Span:       span,
				Similarity: best,
				Exemplar:   bestExemplar,
			})
		}
	}
	return scores, nil
}

// Windows splits text into overlapping word windows of size words,
// advancing by stride. A text of at most size words yields a single
// window containing the whole text; otherwise the final partial window
// is included. For L words this produces ceil((L-size)/stride)+1
// windows.
func Windows(text string, size, stride int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if len(words) <= size {
		return []string{strings.Join(words, " ")}
	}

	var windows []string
	for i := 0; i < len(words); i += stride {
		end := min(i+size, len(words))
		windows = append(windows, strings.Join(words[i:end], " "))
		if i+size >= len(words) {
			break
		}
	}
	return windows
}

// cosineSimilarity computes the cosine of the angle between a and b.
// Returns 0 for zero-length or mismatched vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// embedText embeds a single text through a Genkit embedder.
func embedText(ctx context.Context, embedder ai.Embedder, text string) ([]float32, error) {
	resp, err := embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(text, nil)},
	})
	if err != nil {
		return nil, fmt.Errorf("embed failed: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return resp.Embeddings[0].Embedding, nil
}
