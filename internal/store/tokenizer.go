package store

import (
	"regexp"
	"strings"
)

// wordPattern matches runs of two or more word characters (letters, digits,
// underscore). Single-character tokens carry no signal for this corpus.
var wordPattern = regexp.MustCompile(`\w\w+`)

// TokenizeWords splits text into lowercase word tokens of length >= 2.
// Examples:
//   - "Alice Chen, Engineering" -> ["alice", "chen", "engineering"]
//   - "a B2B-focused team" -> ["b2b", "focused", "team"]
func TokenizeWords(text string) []string {
	return wordPattern.FindAllString(strings.ToLower(text), -1)
}

// WordNGrams expands tokens into word n-grams in the range [nmin, nmax],
// joined with single spaces. With nmin=1, nmax=2 the output is all unigrams
// followed by all bigrams, each n-gram size in token order.
func WordNGrams(tokens []string, nmin, nmax int) []string {
	if nmin < 1 {
		nmin = 1
	}
	if nmax < nmin {
		nmax = nmin
	}
	if nmin == 1 && nmax == 1 {
		return tokens
	}

	var grams []string
	for n := nmin; n <= nmax; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			grams = append(grams, strings.Join(tokens[i:i+n], " "))
		}
	}
	return grams
}

// FilterStopWords removes stop words from a token list.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := stopWords[token]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

// FilterMinLength removes tokens shorter than minLen runes.
func FilterMinLength(tokens []string, minLen int) []string {
	if minLen <= 2 {
		// wordPattern already guarantees length >= 2
		return tokens
	}
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if len([]rune(token)) >= minLen {
			result = append(result, token)
		}
	}
	return result
}

// BuildStopWordMap converts a slice of stop words to a map for efficient lookup.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}
