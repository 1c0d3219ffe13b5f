package crisis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/havenmind/haven/internal/log"
	"github.com/havenmind/haven/internal/testutil"
)

func TestWindows(t *testing.T) {
	words := func(n int) string {
		parts := make([]string, n)
		for i := range parts {
			parts[i] = "w"
		}
		return strings.Join(parts, " ")
	}

	tests := []struct {
		name   string
		text   string
		size   int
		stride int
		count  int
	}{
		{name: "empty", text: "", size: 15, stride: 10, count: 0},
		{name: "shorter than window", text: words(5), size: 15, stride: 10, count: 1},
		{name: "exactly window size", text: words(15), size: 15, stride: 10, count: 1},
		{name: "one word over", text: words(16), size: 15, stride: 10, count: 2},
		{name: "twenty words", text: words(20), size: 15, stride: 10, count: 2},
		{name: "thirty five words", text: words(35), size: 15, stride: 10, count: 3},
		{name: "fifty words", text: words(50), size: 15, stride: 10, count: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			windows := Windows(tt.text, tt.size, tt.stride)
			assert.Len(t, windows, tt.count)
			for _, w := range windows {
				assert.LessOrEqual(t, len(strings.Fields(w)), tt.size)
			}
		})
	}
}

func TestWindowsOverlap(t *testing.T) {
	windows := Windows("a b c d e f g", 4, 2)
	require.Equal(t, []string{"a b c d", "c d e f", "e f g"}, windows)
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 0, 0}, b: []float32{1, 0, 0}, want: 1},
		{name: "orthogonal", a: []float32{1, 0, 0}, b: []float32{0, 1, 0}, want: 0},
		{name: "opposite", a: []float32{1, 0, 0}, b: []float32{-1, 0, 0}, want: -1},
		{name: "empty", a: nil, b: nil, want: 0},
		{name: "mismatched length", a: []float32{1, 0}, b: []float32{1, 0, 0}, want: 0},
		{name: "zero vector", a: []float32{0, 0, 0}, b: []float32{1, 0, 0}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, cosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestScannerNotReady(t *testing.T) {
	s := NewScanner(nil, ScanConfig{WindowSize: 15, Stride: 10, Threshold: 0.85}, "", log.NewNop())

	assert.False(t, s.Ready())
	scores, err := s.Scan(context.Background(), "I want to end it all")
	require.NoError(t, err)
	assert.Nil(t, scores)
}

func TestScannerScan(t *testing.T) {
	ctx := context.Background()
	g := genkit.Init(ctx)
	mock := testutil.NewMockEmbedder(4)
	embedder := mock.RegisterEmbedder(g)

	exemplar := "I don't want to live anymore"
	mock.SetVector(exemplar, []float32{1, 0, 0, 0})

	s := NewScanner(embedder, ScanConfig{WindowSize: 15, Stride: 10, Threshold: 0.85}, "", log.NewNop())
	require.NoError(t, s.Init(ctx, []string{exemplar}))
	require.True(t, s.Ready())

	t.Run("similar window scores", func(t *testing.T) {
		// Five words, so the whole message is a single window.
		msg := "life feels empty and pointless"
		mock.SetVector(msg, []float32{1, 0, 0, 0})

		scores, err := s.Scan(ctx, msg)
		require.NoError(t, err)
		require.Len(t, scores, 1)
		assert.Equal(t, msg, scores[0].Span)
		assert.Equal(t, exemplar, scores[0].Exemplar)
		assert.InDelta(t, 1.0, scores[0].Similarity, 1e-6)
	})

	t.Run("dissimilar window filtered", func(t *testing.T) {
		msg := "what a lovely sunny day"
		mock.SetVector(msg, []float32{0, 1, 0, 0})

		scores, err := s.Scan(ctx, msg)
		require.NoError(t, err)
		assert.Empty(t, scores)
	})

	t.Run("empty message", func(t *testing.T) {
		scores, err := s.Scan(ctx, "   ")
		require.NoError(t, err)
		assert.Empty(t, scores)
	})
}

func TestScannerInitValidation(t *testing.T) {
	s := NewScanner(nil, ScanConfig{WindowSize: 15, Stride: 10, Threshold: 0.85}, "", log.NewNop())
	assert.Error(t, s.Init(context.Background(), nil))
}

func TestScannerEmbeddingCache(t *testing.T) {
	ctx := context.Background()
	g := genkit.Init(ctx)
	mock := testutil.NewMockEmbedder(4)
	embedder := mock.RegisterEmbedder(g)
	failing := genkit.DefineEmbedder(g, "mock/failing-embedder", &ai.EmbedderOptions{Label: "Failing Embedder"},
		func(context.Context, *ai.EmbedRequest) (*ai.EmbedResponse, error) {
			return nil, errors.New("embedder offline")
		})

	cfg := ScanConfig{WindowSize: 15, Stride: 10, Threshold: 0.85}
	cacheFile := filepath.Join(t.TempDir(), "cache", "exemplars.json")
	phrases := []string{"I don't want to live anymore", "There is no hope for me"}

	// First init computes embeddings and writes the cache.
	s := NewScanner(embedder, cfg, cacheFile, log.NewNop())
	require.NoError(t, s.Init(ctx, phrases))
	_, err := os.Stat(cacheFile)
	require.NoError(t, err)

	t.Run("warm cache skips the embedder", func(t *testing.T) {
		cached := NewScanner(failing, cfg, cacheFile, log.NewNop())
		require.NoError(t, cached.Init(ctx, phrases))
		assert.True(t, cached.Ready())
	})

	t.Run("changed phrases invalidate the cache", func(t *testing.T) {
		stale := NewScanner(failing, cfg, cacheFile, log.NewNop())
		err := stale.Init(ctx, []string{"a different exemplar"})
		require.Error(t, err)
		assert.False(t, stale.Ready())
	})

	t.Run("corrupt cache recomputes", func(t *testing.T) {
		broken := filepath.Join(t.TempDir(), "broken.json")
		require.NoError(t, os.WriteFile(broken, []byte("{not json"), 0o600))

		fresh := NewScanner(embedder, cfg, broken, log.NewNop())
		require.NoError(t, fresh.Init(ctx, phrases))
		assert.True(t, fresh.Ready())
	})
}
