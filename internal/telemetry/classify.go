package telemetry

import (
	"strings"
	"unicode"
)

// QueryKind is a lightweight classification of what a query is after. It
// tags the metrics and the query log so zero-result analysis can tell
// "nobody can find Jane Doe" apart from "nobody can find the VPN guide".
type QueryKind string

const (
	// KindPerson marks queries shaped like a person lookup ("Alice Chen").
	KindPerson QueryKind = "person"
	// KindTopic marks how-to and policy style questions.
	KindTopic QueryKind = "topic"
	// KindGeneral is everything else.
	KindGeneral QueryKind = "general"
)

// topicLeads are interrogative openers that signal a topic lookup.
var topicLeads = map[string]bool{
	"how":   true,
	"what":  true,
	"where": true,
	"when":  true,
	"why":   true,
	"which": true,
}

// ClassifyQuery buckets a query as person-like, topic-like, or general.
// The rules are deliberately shallow: a "who is" opener or one to three
// title-case words reads as a person; an interrogative opener or a
// trailing question mark reads as a topic. No language model, no I/O.
func ClassifyQuery(query string) QueryKind {
	q := strings.TrimSpace(query)
	if q == "" {
		return KindGeneral
	}

	lower := strings.ToLower(q)
	if strings.HasPrefix(lower, "who is ") || strings.HasPrefix(lower, "who's ") {
		return KindPerson
	}

	fields := strings.Fields(q)
	if strings.HasSuffix(q, "?") || topicLeads[strings.ToLower(fields[0])] {
		return KindTopic
	}
	if looksLikeName(fields) {
		return KindPerson
	}
	return KindGeneral
}

// looksLikeName reports whether fields spell one to three title-case words,
// the shape of "Alice", "Alice Chen", or "Mary Jane Watson". All-caps words
// ("VPN") do not qualify.
func looksLikeName(fields []string) bool {
	if len(fields) == 0 || len(fields) > 3 {
		return false
	}
	for _, f := range fields {
		runes := []rune(f)
		if !unicode.IsUpper(runes[0]) {
			return false
		}
		for _, r := range runes[1:] {
			if !unicode.IsLower(r) {
				return false
			}
		}
	}
	return true
}
