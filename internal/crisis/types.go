// Package crisis implements crisis-language screening for incoming chat
// messages.
//
// Detection combines two signals evaluated per message:
//
//   - Keyword matching: case-insensitive substring match against a
//     versioned set of phrases, each tagged with a severity. Synchronous,
//     no I/O, never errors.
//   - Semantic scanning: overlapping word windows are embedded and
//     compared against precomputed exemplar vectors by cosine similarity.
//     A whole-message embedding dilutes a short distress phrase inside a
//     long message; scanning windows surfaces localized signal.
//
// The decision engine folds both signals into a single Verdict. Exemplar
// embeddings are initialized in the background so the server accepts
// requests before the embedder is ready; until then detection degrades to
// keyword-only coverage.
package crisis

import (
	"fmt"
	"strings"
)

// Severity is the ordinal crisis level of a verdict or keyword.
type Severity int

// Severity levels, ordered. Alerts fire for SeverityHigh and above.
const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityHigh
	SeverityCritical
)

// String returns the lowercase name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "none"
	}
}

// ParseSeverity converts a string into a Severity.
func ParseSeverity(raw string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "none", "":
		return SeverityNone, nil
	case "low":
		return SeverityLow, nil
	case "high":
		return SeverityHigh, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return SeverityNone, fmt.Errorf("unknown severity %q", raw)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(b []byte) error {
	parsed, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Signal records which detector(s) contributed to a verdict.
type Signal string

// Signal values.
const (
	SignalNone     Signal = "none"
	SignalKeyword  Signal = "keyword"
	SignalSemantic Signal = "semantic"
	SignalBoth     Signal = "both"
)

// KeywordMatch is one keyword hit in a message.
type KeywordMatch struct {
	Phrase   string
	Severity Severity
}

// WindowScore is the ephemeral result of scoring one sliding window:
// the window's text span, its similarity to the nearest exemplar, and
// that exemplar's phrase. Not persisted.
type WindowScore struct {
	Span       string
	Similarity float64
	Exemplar   string
}

// Verdict is the decision engine's output for one message.
type Verdict struct {
	Detected bool
	Severity Severity
	Signal   Signal

	// Evidence is the text span that triggered detection: the matched
	// keyword phrase, or the highest-scoring window span.
	Evidence string

	// Reason is a short human-readable description carried into alert
	// payloads.
	Reason string
}

// Reasons carried into alert payloads, matching the support team's
// triage vocabulary.
const (
	reasonKeyword  = "User is expressing suicidal thoughts or self-harm intent"
	reasonSemantic = "User content indicates severe distress or crisis intent"
)
