package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// RetryConfig configures retry behavior for model calls.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig returns sensible defaults for LLM API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// retryablePatterns groups error substrings by category, matched
// case-insensitively against err.Error().
//
// String matching is used because Genkit and provider SDKs do not
// expose typed errors for transient failures.
var retryablePatterns = [][]string{
	{"rate limit", "quota exceeded", "429"},      // rate limiting
	{"500", "502", "503", "504", "unavailable"},  // transient server errors
	{"connection reset", "timeout", "temporary"}, // network errors
}

// retryableError reports whether err is transient and worth retrying.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, group := range retryablePatterns {
		for _, sub := range group {
			if strings.Contains(errStr, sub) {
				return true
			}
		}
	}
	return false
}

// generateWithRetry calls the model with exponential backoff on
// transient errors. Each attempt, including retries, passes through the
// rate limiter.
func (p *Pipeline) generateWithRetry(ctx context.Context, opts []ai.GenerateOption) (*ai.ModelResponse, error) {
	var lastErr error
	delay := p.retryConfig.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= p.retryConfig.MaxRetries; attempt++ {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		resp, err := genkit.Generate(ctx, p.g, opts...)
		if err == nil {
			p.logger.Debug("generation succeeded",
				"attempts", attempt+1,
				"elapsed", time.Since(start))
			return resp, nil
		}
		lastErr = err

		if !retryableError(err) {
			return nil, fmt.Errorf("generate: %w", err)
		}
		if attempt == p.retryConfig.MaxRetries {
			break
		}

		p.logger.Debug("retrying generation",
			"attempt", attempt+1,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, p.retryConfig.MaxInterval)
		}
	}

	return nil, fmt.Errorf("%w: %d attempts over %v: %v",
		ErrGenerationUnavailable, p.retryConfig.MaxRetries+1, time.Since(start), lastErr)
}
