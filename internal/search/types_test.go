package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    Mode
		wantErr bool
	}{
		{"", ModeHybrid, false},
		{"hybrid", ModeHybrid, false},
		{"vector", ModeVector, false},
		{"keyword", ModeKeyword, false},
		{"  Vector  ", ModeVector, false},
		{"KEYWORD", ModeKeyword, false},
		{"semantic", "", true},
		{"bm25", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			mode, err := ParseMode(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "unknown search mode")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, mode)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultVectorWeight, cfg.VectorWeight)
	assert.Equal(t, DefaultKeywordWeight, cfg.KeywordWeight)
	assert.Equal(t, DefaultLimit, cfg.DefaultLimit)
	assert.Equal(t, MaxLimit, cfg.MaxLimit)
	assert.Equal(t, DefaultSnippetLength, cfg.SnippetLength)
}

func TestConfigWithDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := Config{
		VectorWeight:  0.8,
		KeywordWeight: 0.2,
		DefaultLimit:  3,
		MaxLimit:      30,
		SnippetLength: 80,
	}.withDefaults()

	assert.Equal(t, 0.8, cfg.VectorWeight)
	assert.Equal(t, 0.2, cfg.KeywordWeight)
	assert.Equal(t, 3, cfg.DefaultLimit)
	assert.Equal(t, 30, cfg.MaxLimit)
	assert.Equal(t, 80, cfg.SnippetLength)
}

func TestConfigWithDefaults_SingleZeroWeightIsKept(t *testing.T) {
	// Only the both-zero case falls back to defaults; a deliberate
	// single-channel configuration stays as given.
	cfg := Config{VectorWeight: 1}.withDefaults()

	assert.Equal(t, 1.0, cfg.VectorWeight)
	assert.Zero(t, cfg.KeywordWeight)
}
