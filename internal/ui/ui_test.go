package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStage_String(t *testing.T) {
	tests := []struct {
		stage Stage
		want  string
	}{
		{StageLoading, "Loading"},
		{StageEmbedding, "Embedding"},
		{StageIndexing, "Indexing"},
		{StagePersisting, "Persisting"},
		{StageComplete, "Complete"},
		{Stage(99), "Unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.stage.String())
	}
}

func TestStage_Icon(t *testing.T) {
	tests := []struct {
		stage Stage
		want  string
	}{
		{StageLoading, "LOAD"},
		{StageEmbedding, "EMBED"},
		{StageIndexing, "INDEX"},
		{StagePersisting, "SAVE"},
		{StageComplete, "DONE"},
		{Stage(99), "???"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.stage.Icon())
	}
}

func TestNewConfig_Options(t *testing.T) {
	var buf bytes.Buffer
	cfg := NewConfig(&buf,
		WithForcePlain(true),
		WithNoColor(true),
		WithCorpusDir("/data/corpus"),
	)

	assert.Equal(t, &buf, cfg.Output)
	assert.True(t, cfg.ForcePlain)
	assert.True(t, cfg.NoColor)
	assert.Equal(t, "/data/corpus", cfg.CorpusDir)
}

func TestNewRenderer_PlainWhenForced(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(NewConfig(&buf, WithForcePlain(true)))
	_, ok := r.(*PlainRenderer)
	assert.True(t, ok)
}

func TestNewRenderer_PlainForNonTTY(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(NewConfig(&buf))
	_, ok := r.(*PlainRenderer)
	assert.True(t, ok)
}

func TestIsTTY_NilAndBuffer(t *testing.T) {
	assert.False(t, IsTTY(nil))

	var buf bytes.Buffer
	assert.False(t, IsTTY(&buf))
}

func TestDetectCI(t *testing.T) {
	t.Setenv("CI", "true")
	assert.True(t, DetectCI())
}

func TestDetectNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.True(t, DetectNoColor())
}
