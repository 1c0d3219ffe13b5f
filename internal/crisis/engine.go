package crisis

import "log/slog"

// Engine folds keyword and semantic signals into a single Verdict.
//
// Policy: an exact keyword hit is authoritative evidence and carries its
// tagged severity; a critical keyword wins regardless of semantic
// signal. A semantic window hit is corroborating only: at the base
// threshold it maps to low severity, and only similarity at or above the
// stricter criticalThreshold promotes it to high. Semantic-only matches
// never reach critical. The two-tier threshold keeps loosely related
// anxious language from escalating while still catching paraphrased
// crisis statements.
type Engine struct {
	criticalThreshold float64
	logger            *slog.Logger
}

// NewEngine creates an Engine. criticalThreshold is the stricter
// secondary similarity bar for promoting a semantic match to high.
func NewEngine(criticalThreshold float64, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{criticalThreshold: criticalThreshold, logger: logger}
}

// Decide combines keyword matches and window scores into a Verdict.
// Both inputs may be nil/empty; neither contributing yields
// Detected=false.
func (e *Engine) Decide(matches []KeywordMatch, scores []WindowScore) Verdict {
	keywordSeverity := SeverityNone
	keywordEvidence := ""
	for _, m := range matches {
		if m.Severity > keywordSeverity {
			keywordSeverity = m.Severity
			keywordEvidence = m.Phrase
		}
	}

	semanticSeverity := SeverityNone
	semanticEvidence := ""
	bestSimilarity := 0.0
	for _, ws := range scores {
		severity := SeverityLow
		if ws.Similarity >= e.criticalThreshold {
			severity = SeverityHigh
		}
		if severity > semanticSeverity || (severity == semanticSeverity && ws.Similarity > bestSimilarity) {
			semanticSeverity = severity
			semanticEvidence = ws.Span
			bestSimilarity = ws.Similarity
		}
	}

	if keywordSeverity == SeverityNone && semanticSeverity == SeverityNone {
		return Verdict{}
	}

	verdict := Verdict{Detected: true}
	switch {
	case keywordSeverity != SeverityNone && semanticSeverity != SeverityNone:
		verdict.Signal = SignalBoth
	case keywordSeverity != SeverityNone:
		verdict.Signal = SignalKeyword
	default:
		verdict.Signal = SignalSemantic
	}

	// Keyword evidence is preferred: the exact phrase is more useful to
	// a responder than a fuzzy window span.
	if keywordSeverity >= semanticSeverity {
		verdict.Severity = keywordSeverity
		verdict.Evidence = keywordEvidence
		verdict.Reason = reasonKeyword
	} else {
		verdict.Severity = semanticSeverity
		verdict.Evidence = semanticEvidence
		verdict.Reason = reasonSemantic
	}

	e.logger.Debug("crisis verdict",
		"severity", verdict.Severity.String(),
		"signal", verdict.Signal,
		"best_similarity", bestSimilarity)
	return verdict
}
