package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTUIRenderer_FailsOnNonTTY(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewTUIRenderer(NewConfig(&buf))
	require.Error(t, err)
}

func TestIndexingModel_View_RendersStages(t *testing.T) {
	tracker := NewProgressTracker()
	tracker.SetStage(StageEmbedding, 100)
	tracker.Update(40, "profile: Dana Reyes")

	model := newIndexingModel(tracker, "/data/corpus")
	model.styles = NoColorStyles()

	view := model.View()
	assert.Contains(t, view, "Load")
	assert.Contains(t, view, "Embed")
	assert.Contains(t, view, "Index")
	assert.Contains(t, view, "Save")
	assert.Contains(t, view, "OrgMCP Indexer")
	assert.Contains(t, view, "/data/corpus")
	assert.Contains(t, view, "40 / 100 documents")
}

func TestIndexingModel_View_Quitting(t *testing.T) {
	model := newIndexingModel(NewProgressTracker(), "")
	model.quitting = true

	assert.Equal(t, "Cancelled.\n", model.View())
}

func TestIndexingModel_View_Complete(t *testing.T) {
	model := newIndexingModel(NewProgressTracker(), "")
	model.styles = NoColorStyles()
	model.complete = true
	model.stats = CompletionStats{
		Records:   20,
		Documents: 18,
		Duration:  90 * time.Second,
		Errors:    1,
		Warnings:  2,
	}

	view := model.View()
	assert.Contains(t, view, "Indexing Complete")
	assert.Contains(t, view, "20")
	assert.Contains(t, view, "18")
	assert.Contains(t, view, "1m 30s")
	assert.Contains(t, view, "1 errors")
	assert.Contains(t, view, "2 warnings")
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{5 * time.Second, "5s"},
		{2 * time.Minute, "2m"},
		{2*time.Minute + 15*time.Second, "2m 15s"},
		{90 * time.Minute, "1h 30m"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.d))
	}
}

func TestTruncatePath(t *testing.T) {
	assert.Empty(t, truncatePath("", 10))
	assert.Equal(t, "a/b.yaml", truncatePath("a/b.yaml", 20))

	got := truncatePath("corpus/people/engineering/dana.yaml", 20)
	assert.LessOrEqual(t, len(got), 20)
	assert.Contains(t, got, "dana.yaml")
	assert.Contains(t, got, "...")
}
