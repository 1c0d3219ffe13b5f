package crisis

import (
	"context"
	"log/slog"
	"time"

	"github.com/havenmind/haven/internal/metrics"
)

// Detector screens one message for crisis language: keyword matching
// always runs; the semantic scan runs when the exemplar index is ready
// and is skipped when a critical keyword already settles the verdict.
//
// Detector never fails a request: scan errors degrade the evaluation to
// keyword-only coverage and are logged.
type Detector struct {
	matcher *Matcher
	scanner *Scanner
	engine  *Engine
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewDetector wires the matcher, scanner and engine together.
// metrics may be nil.
func NewDetector(matcher *Matcher, scanner *Scanner, engine *Engine, m *metrics.Metrics, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		matcher: matcher,
		scanner: scanner,
		engine:  engine,
		logger:  logger,
		metrics: m,
	}
}

// Ready reports whether semantic scanning is available. Keyword
// detection works regardless.
func (d *Detector) Ready() bool {
	return d.scanner.Ready()
}

// Evaluate screens text and returns the combined verdict.
func (d *Detector) Evaluate(ctx context.Context, text string) Verdict {
	matches := d.matcher.Match(text)

	// A critical keyword settles the verdict; skip the embedding calls.
	var scores []WindowScore
	if !hasCritical(matches) {
		start := time.Now()
		var err error
		scores, err = d.scanner.Scan(ctx, text)
		if err != nil {
			// Degrade to whatever was scored before the failure plus
			// keyword coverage; never fail the request.
			d.logger.Error("semantic scan failed, continuing keyword-only", "error", err)
		}
		if d.metrics != nil {
			d.metrics.SemanticScans.Inc()
			d.metrics.ScanDuration.Observe(time.Since(start).Seconds())
		}
	}

	verdict := d.engine.Decide(matches, scores)
	if verdict.Detected {
		d.logger.Warn("crisis detected",
			"severity", verdict.Severity.String(),
			"signal", verdict.Signal)
		if d.metrics != nil {
			d.metrics.CrisisDetections.WithLabelValues(
				verdict.Severity.String(), string(verdict.Signal)).Inc()
		}
	}
	return verdict
}

func hasCritical(matches []KeywordMatch) bool {
	for _, m := range matches {
		if m.Severity == SeverityCritical {
			return true
		}
	}
	return false
}
