package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeWords_SplitsOnWhitespace(t *testing.T) {
	// Given: text with whitespace
	text := "hello world"

	// When: tokenizing
	tokens := TokenizeWords(text)

	// Then: splits into separate tokens
	require.Len(t, tokens, 2)
	assert.Equal(t, "hello", tokens[0])
	assert.Equal(t, "world", tokens[1])
}

func TestTokenizeWords_LowercasesTokens(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect []string
	}{
		{
			name:   "person name",
			input:  "Alice Chen, Engineering",
			expect: []string{"alice", "chen", "engineering"},
		},
		{
			name:   "all caps",
			input:  "VPN SETUP Guide",
			expect: []string{"vpn", "setup", "guide"},
		},
		{
			name:   "mixed case",
			input:  "OnBoarding Checklist",
			expect: []string{"onboarding", "checklist"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, TokenizeWords(tt.input))
		})
	}
}

func TestTokenizeWords_DropsShortTokens(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect []string
	}{
		{
			name:   "single letters dropped",
			input:  "a team of 3 engineers",
			expect: []string{"team", "of", "engineers"},
		},
		{
			name:   "ampersand splits into short tokens",
			input:  "R&D budget",
			expect: []string{"budget"},
		},
		{
			name:   "two-char tokens kept",
			input:  "go is ok",
			expect: []string{"go", "is", "ok"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, TokenizeWords(tt.input))
		})
	}
}

func TestTokenizeWords_KeepsDigitsAndUnderscores(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect []string
	}{
		{
			name:   "digits",
			input:  "room 4b on floor 12",
			expect: []string{"room", "4b", "on", "floor", "12"},
		},
		{
			name:   "underscores",
			input:  "on_call rotation",
			expect: []string{"on_call", "rotation"},
		},
		{
			name:   "punctuation stripped",
			input:  "email: alice@example.com",
			expect: []string{"email", "alice", "example", "com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, TokenizeWords(tt.input))
		})
	}
}

func TestWordNGrams(t *testing.T) {
	tests := []struct {
		name   string
		tokens []string
		nmin   int
		nmax   int
		expect []string
	}{
		{
			name:   "unigrams only",
			tokens: []string{"alice", "chen"},
			nmin:   1,
			nmax:   1,
			expect: []string{"alice", "chen"},
		},
		{
			name:   "unigrams and bigrams",
			tokens: []string{"alice", "chen", "engineering"},
			nmin:   1,
			nmax:   2,
			expect: []string{"alice", "chen", "engineering", "alice chen", "chen engineering"},
		},
		{
			name:   "single token has no bigram",
			tokens: []string{"alice"},
			nmin:   1,
			nmax:   2,
			expect: []string{"alice"},
		},
		{
			name:   "bigrams only",
			tokens: []string{"alice", "chen", "engineering"},
			nmin:   2,
			nmax:   2,
			expect: []string{"alice chen", "chen engineering"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, WordNGrams(tt.tokens, tt.nmin, tt.nmax))
		})
	}
}

func TestWordNGrams_EmptyTokens(t *testing.T) {
	assert.Empty(t, WordNGrams(nil, 1, 2))
	assert.Empty(t, WordNGrams([]string{}, 1, 2))
}

func TestWordNGrams_ClampsRange(t *testing.T) {
	// nmin below 1 is clamped, nmax below nmin follows nmin
	assert.Equal(t, []string{"alice", "chen"}, WordNGrams([]string{"alice", "chen"}, 0, 0))
}

func TestFilterStopWords(t *testing.T) {
	// Given: tokens including stop words
	tokens := []string{"the", "engineering", "team", "and", "its", "roadmap"}
	stopWords := BuildStopWordMap([]string{"the", "and", "its"})

	// When: filtering
	result := FilterStopWords(tokens, stopWords)

	// Then: stop words are removed
	assert.Equal(t, []string{"engineering", "team", "roadmap"}, result)
}

func TestFilterMinLength(t *testing.T) {
	tokens := []string{"go", "team", "of", "engineers"}

	// Threshold at or below the tokenizer floor is a no-op
	assert.Equal(t, tokens, FilterMinLength(tokens, 2))

	// Higher thresholds drop short tokens
	assert.Equal(t, []string{"team", "engineers"}, FilterMinLength(tokens, 3))
}

func TestBuildStopWordMap_Lowercases(t *testing.T) {
	m := BuildStopWordMap([]string{"The", "AND"})

	_, hasThe := m["the"]
	_, hasAnd := m["and"]
	assert.True(t, hasThe)
	assert.True(t, hasAnd)
}

func BenchmarkTokenizeWords(b *testing.B) {
	input := "Alice Chen is a senior infrastructure engineer who maintains the deployment pipeline and the on_call rotation for the platform team"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		TokenizeWords(input)
	}
}
