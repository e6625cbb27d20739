package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHashProducer(t *testing.T, dimension int) *HashProducer {
	t.Helper()
	p, err := NewHashProducer(dimension)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// ===== Preprocessing =====

func TestPreprocessText_CollapsesWhitespace(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"multiple spaces", "alice   chen", "alice chen"},
		{"tabs and newlines", "alice\tchen\nengineering", "alice chen engineering"},
		{"leading and trailing", "  alice chen  ", "alice chen"},
		{"mixed runs", " alice \t\n chen ", "alice chen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PreprocessText(tt.input))
		})
	}
}

func TestPreprocessText_StripsNoiseCharacters(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"email symbols", "alice@example.com", "aliceexample.com"},
		{"parentheses", "Alice (VP of Sales)", "alice vp of sales"},
		{"kept punctuation", "Works remotely. Reach out!", "works remotely. reach out!"},
		{"hyphen and comma kept", "on-call, weekdays", "on-call, weekdays"},
		{"slashes and colons", "https://example.com:8080", "httpsexample.com8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PreprocessText(tt.input))
		})
	}
}

func TestPreprocessText_Lowercases(t *testing.T) {
	assert.Equal(t, "alice chen", PreprocessText("Alice CHEN"))
	assert.Equal(t, "vpn setup guide", PreprocessText("VPN Setup Guide"))
}

func TestPreprocessText_BlankResults(t *testing.T) {
	// Given: inputs with no usable content
	inputs := []string{"", "   ", "\t\n", "@#$%", " @ # "}

	// Then: all normalize to the empty string
	for _, input := range inputs {
		assert.Empty(t, PreprocessText(input), "input %q should normalize to empty", input)
	}
}

// ===== HashProducer =====

func TestNewHashProducer_RequiresPositiveDimension(t *testing.T) {
	_, err := NewHashProducer(0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be positive")

	_, err = NewHashProducer(-5)
	require.Error(t, err)
}

func TestHashProducer_GenerateIsDeterministic(t *testing.T) {
	// Given: a hash producer
	p := newTestHashProducer(t, DefaultDimension)
	ctx := context.Background()

	// When: I generate the same text twice
	vec1, err1 := p.Generate(ctx, "Alice Chen leads the platform engineering team")
	vec2, err2 := p.Generate(ctx, "Alice Chen leads the platform engineering team")

	// Then: the vectors are identical
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, vec1, vec2)
	assert.Len(t, vec1, DefaultDimension)
}

func TestHashProducer_CaseAndSpacingConverge(t *testing.T) {
	// Given: near-duplicate inputs differing only in case and spacing
	p := newTestHashProducer(t, DefaultDimension)
	ctx := context.Background()

	vec1, err := p.Generate(ctx, "Alice   CHEN")
	require.NoError(t, err)
	vec2, err := p.Generate(ctx, "alice chen")
	require.NoError(t, err)

	// Then: they map to the same vector
	assert.Equal(t, vec1, vec2)

	// And: genuinely different text maps elsewhere
	vec3, err := p.Generate(ctx, "alice cheng")
	require.NoError(t, err)
	assert.NotEqual(t, vec1, vec3)
}

func TestHashProducer_ValuesStayWithinRange(t *testing.T) {
	p := newTestHashProducer(t, 128)

	vec, err := p.Generate(context.Background(), "bob martinez, sales director, emea region")
	require.NoError(t, err)

	for i, v := range vec {
		assert.GreaterOrEqual(t, v, float32(-1), "component %d below range", i)
		assert.LessOrEqual(t, v, float32(1), "component %d above range", i)
	}
}

func TestHashProducer_DigestPatternRepeats(t *testing.T) {
	// The MD5 digest contributes 16 distinct values that tile the vector.
	p := newTestHashProducer(t, 384)

	vec, err := p.Generate(context.Background(), "quarterly onboarding checklist")
	require.NoError(t, err)

	for i := 16; i < len(vec); i++ {
		assert.Equal(t, vec[i%16], vec[i], "component %d should repeat component %d", i, i%16)
	}
}

func TestHashProducer_BlankInputYieldsZeroVector(t *testing.T) {
	p := newTestHashProducer(t, 64)
	ctx := context.Background()

	for _, input := range []string{"", "   ", "\t", "@#$%"} {
		vec, err := p.Generate(ctx, input)
		require.NoError(t, err, "blank input must not fail")
		require.Len(t, vec, 64)
		for _, v := range vec {
			assert.Zero(t, v)
		}
	}
}

func TestHashProducer_DistinctTextsProduceDistinctVectors(t *testing.T) {
	p := newTestHashProducer(t, DefaultDimension)
	ctx := context.Background()

	alice, err := p.Generate(ctx, "alice chen engineering")
	require.NoError(t, err)
	bob, err := p.Generate(ctx, "bob martinez sales")
	require.NoError(t, err)

	assert.NotEqual(t, alice, bob)
}

func TestHashProducer_GenerateBatchPreservesOrder(t *testing.T) {
	// Given: a batch with a repeated text
	p := newTestHashProducer(t, DefaultDimension)
	ctx := context.Background()

	texts := []string{
		"alice chen engineering",
		"bob martinez sales",
		"vpn setup guide",
		"alice chen engineering",
	}

	// When: I generate the batch
	batch, err := p.GenerateBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, batch, len(texts))

	// Then: every row matches the single-text result for its input
	for i, text := range texts {
		single, err := p.Generate(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i], "row %d should match Generate(%q)", i, text)
	}

	// And: the repeated input produced identical rows
	assert.Equal(t, batch[0], batch[3])
}

func TestHashProducer_GenerateBatchBlankPositionsGetFallback(t *testing.T) {
	// Given: a batch with blank entries mixed in
	p := newTestHashProducer(t, 32)
	ctx := context.Background()

	batch, err := p.GenerateBatch(ctx, []string{"alice chen", "", "bob martinez", "   "})
	require.NoError(t, err)
	require.Len(t, batch, 4)

	// Then: blank positions hold zero vectors and the rest do not
	zero := make([]float32, 32)
	assert.Equal(t, zero, batch[1])
	assert.Equal(t, zero, batch[3])
	assert.NotEqual(t, zero, batch[0])
	assert.NotEqual(t, zero, batch[2])
}

func TestHashProducer_GenerateBatchEmptyInput(t *testing.T) {
	p := newTestHashProducer(t, DefaultDimension)

	batch, err := p.GenerateBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, batch)
	assert.Empty(t, batch)
}

func TestHashProducer_GenerateBatchHonorsCancellation(t *testing.T) {
	p := newTestHashProducer(t, DefaultDimension)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.GenerateBatch(ctx, []string{"alice", "bob", "carol"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestHashProducer_LargeBatch(t *testing.T) {
	// Larger than the worker pool, so completion order differs from
	// submission order.
	p := newTestHashProducer(t, 64)
	ctx := context.Background()

	texts := make([]string, 500)
	for i := range texts {
		texts[i] = PreprocessText("employee record " + string(rune('a'+i%26)))
	}

	batch, err := p.GenerateBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, batch, len(texts))

	for i, text := range texts {
		expected, err := p.Generate(ctx, text)
		require.NoError(t, err)
		require.Equal(t, expected, batch[i], "row %d out of order", i)
	}
}

func TestHashProducer_ModelIDAndDimension(t *testing.T) {
	p := newTestHashProducer(t, 384)

	assert.Equal(t, HashModelID, p.ModelID())
	assert.Equal(t, 384, p.Dimension())
	assert.True(t, p.Available(context.Background()))
}

func TestHashProducer_ClosedProducerFails(t *testing.T) {
	p, err := NewHashProducer(DefaultDimension)
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close(), "double close should be safe")

	_, err = p.Generate(context.Background(), "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")

	_, err = p.GenerateBatch(context.Background(), []string{"alice"})
	require.Error(t, err)

	assert.False(t, p.Available(context.Background()))
}

func BenchmarkHashProducer_GenerateBatch(b *testing.B) {
	p, err := NewHashProducer(DefaultDimension)
	if err != nil {
		b.Fatal(err)
	}
	defer func() { _ = p.Close() }()

	texts := make([]string, 256)
	for i := range texts {
		texts[i] = "alice chen leads the platform engineering team in building internal tools"
	}

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.GenerateBatch(ctx, texts); err != nil {
			b.Fatal(err)
		}
	}
}
