package knowledge

import "time"

// Passage is one entry of the support knowledge base: a chunk of vetted
// psychoeducational or coping-strategy content.
type Passage struct {
	ID        string            // unique identifier
	Content   string            // passage text
	Source    string            // document or article the passage came from
	Metadata  map[string]string // optional metadata (topic, audience, etc.)
	CreatedAt time.Time
}

// Result is a single search hit with its relevance score.
type Result struct {
	Passage Passage

	// Score is cosine similarity mapped to [0, 1]; higher is more
	// relevant.
	Score float64
}

// SearchOption configures a search using the functional options pattern.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK     int
	minScore float64
	timeout  time.Duration
}

// WithTopK sets the maximum number of results. Default 3.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithMinScore drops results scoring below the given relevance.
func WithMinScore(score float64) SearchOption {
	return func(c *searchConfig) {
		c.minScore = score
	}
}

func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{
		topK:    3,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
