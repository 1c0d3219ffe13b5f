package crisis

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// Keyword is one entry of the crisis keyword list.
type Keyword struct {
	Phrase   string   `yaml:"phrase"`
	Severity Severity `yaml:"severity"`
}

// KeywordSet is an immutable, versioned set of crisis phrases.
// Build one with NewKeywordSet and never mutate it; the Matcher swaps
// whole sets atomically on reload.
type KeywordSet struct {
	version string
	entries []keywordEntry
}

type keywordEntry struct {
	phrase   string // original casing, reported in matches
	lowered  string // match target
	severity Severity
}

// NewKeywordSet builds an immutable set from the given keywords.
// Empty phrases are dropped; severity defaults to high.
func NewKeywordSet(version string, keywords []Keyword) *KeywordSet {
	set := &KeywordSet{version: version}
	for _, kw := range keywords {
		phrase := strings.TrimSpace(kw.Phrase)
		if phrase == "" {
			continue
		}
		severity := kw.Severity
		if severity == SeverityNone {
			severity = SeverityHigh
		}
		set.entries = append(set.entries, keywordEntry{
			phrase:   phrase,
			lowered:  strings.ToLower(phrase),
			severity: severity,
		})
	}
	return set
}

// Version returns the set's version string.
func (s *KeywordSet) Version() string { return s.version }

// Len returns the number of phrases in the set.
func (s *KeywordSet) Len() int { return len(s.entries) }

// Match returns every phrase contained in text, case-insensitively.
// It never errors; an unmatched phrase is simply absent from the result.
func (s *KeywordSet) Match(text string) []KeywordMatch {
	lowered := strings.ToLower(text)
	var matches []KeywordMatch
	for _, e := range s.entries {
		if strings.Contains(lowered, e.lowered) {
			matches = append(matches, KeywordMatch{Phrase: e.phrase, Severity: e.severity})
		}
	}
	return matches
}

// DefaultKeywords is the built-in crisis phrase list, used when no
// keyword file is configured. Partial words ("suicid") intentionally
// match inflections.
func DefaultKeywords() []Keyword {
	return []Keyword{
		{Phrase: "kill myself", Severity: SeverityCritical},
		{Phrase: "suicid", Severity: SeverityCritical},
		{Phrase: "end my life", Severity: SeverityCritical},
		{Phrase: "end it all", Severity: SeverityCritical},
		{Phrase: "want to die", Severity: SeverityCritical},
		{Phrase: "slit my wrist", Severity: SeverityCritical},
		{Phrase: "hurt myself", Severity: SeverityHigh},
		{Phrase: "overdose", Severity: SeverityHigh},
		{Phrase: "no reason to live", Severity: SeverityHigh},
		{Phrase: "better off dead", Severity: SeverityHigh},
	}
}

// DefaultExemplars is the built-in set of reference phrases for semantic
// scanning.
func DefaultExemplars() []string {
	return []string{
		"I don't want to live anymore",
		"The pain is too much to bear, I want out",
		"I'm planning to end it all",
		"Goodbye everyone, I'm done",
		"There is no hope for me",
		"I am going to jump off a bridge",
		"I have a gun and I'm going to use it",
	}
}

// UnmarshalYAML decodes a severity name from the keyword file.
func (s *Severity) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ParseSeverity(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// keywordFile is the on-disk YAML format for keyword/exemplar overrides.
type keywordFile struct {
	Version   string    `yaml:"version"`
	Keywords  []Keyword `yaml:"keywords"`
	Exemplars []string  `yaml:"exemplars"`
}

// LoadFile reads a keyword/exemplar YAML file. Missing exemplars fall
// back to the built-in set so a keywords-only file stays valid.
func LoadFile(path string) (*KeywordSet, []string, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- path comes from operator config
	if err != nil {
		return nil, nil, fmt.Errorf("reading keyword file: %w", err)
	}

	var file keywordFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, nil, fmt.Errorf("parsing keyword file: %w", err)
	}
	if len(file.Keywords) == 0 {
		return nil, nil, fmt.Errorf("keyword file %s contains no keywords", path)
	}

	exemplars := file.Exemplars
	if len(exemplars) == 0 {
		exemplars = DefaultExemplars()
	}
	return NewKeywordSet(file.Version, file.Keywords), exemplars, nil
}

// Matcher performs keyword matching against an atomically swappable
// KeywordSet. Safe for concurrent use; Swap never disturbs in-flight
// matches.
type Matcher struct {
	set atomic.Pointer[KeywordSet]
}

// NewMatcher creates a Matcher over the given set.
func NewMatcher(set *KeywordSet) *Matcher {
	m := &Matcher{}
	m.set.Store(set)
	return m
}

// Match checks text against the current keyword set.
func (m *Matcher) Match(text string) []KeywordMatch {
	return m.set.Load().Match(text)
}

// Swap atomically replaces the keyword set. Concurrent readers observe
// either the old or the new set, never a partial update.
func (m *Matcher) Swap(set *KeywordSet) {
	m.set.Store(set)
}

// Version returns the current set's version string.
func (m *Matcher) Version() string {
	return m.set.Load().Version()
}
