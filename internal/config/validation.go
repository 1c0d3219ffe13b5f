package config

import (
	"fmt"
	"strings"
)

// Validate checks configuration values and fails fast with a sentinel
// error describing the first problem found.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name must not be empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model must not be empty", ErrInvalidEmbedderModel)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port %d out of range [1, 65535]", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.RetrievalTopK < 1 || c.RetrievalTopK > 20 {
		return fmt.Errorf("%w: top_k %d out of range [1, 20]", ErrInvalidTopK, c.RetrievalTopK)
	}
	if c.MinRelevance < 0 || c.MinRelevance > 1 {
		return fmt.Errorf("%w: min_relevance %.2f out of range [0, 1]", ErrInvalidThreshold, c.MinRelevance)
	}

	if err := c.Crisis.validate(); err != nil {
		return err
	}

	return nil
}

func (c *CrisisConfig) validate() error {
	if c.WindowSize < 1 {
		return fmt.Errorf("%w: window_size %d must be >= 1", ErrInvalidWindow, c.WindowSize)
	}
	if c.WindowStride < 1 || c.WindowStride > c.WindowSize {
		return fmt.Errorf("%w: window_stride %d must be in [1, window_size]", ErrInvalidWindow, c.WindowStride)
	}
	if c.SemanticThreshold <= 0 || c.SemanticThreshold >= 1 {
		return fmt.Errorf("%w: semantic_threshold %.2f out of range (0, 1)", ErrInvalidThreshold, c.SemanticThreshold)
	}
	if c.SemanticCriticalThreshold < c.SemanticThreshold || c.SemanticCriticalThreshold > 1 {
		return fmt.Errorf("%w: semantic_critical_threshold %.2f must be in [semantic_threshold, 1]",
			ErrInvalidThreshold, c.SemanticCriticalThreshold)
	}
	return nil
}
