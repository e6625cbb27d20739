package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPlain(buf *bytes.Buffer) *PlainRenderer {
	return NewPlainRenderer(NewConfig(buf, WithForcePlain(true)))
}

func TestPlainRenderer_StartStop(t *testing.T) {
	var buf bytes.Buffer
	r := newPlain(&buf)

	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Stop())
	assert.Empty(t, buf.String())
}

func TestPlainRenderer_UpdateProgress_WithTotal(t *testing.T) {
	var buf bytes.Buffer
	r := newPlain(&buf)

	r.UpdateProgress(ProgressEvent{
		Stage:   StageEmbedding,
		Current: 3,
		Total:   10,
		Item:    "profile: Dana Reyes",
	})

	out := buf.String()
	assert.Contains(t, out, "[EMBED]")
	assert.Contains(t, out, "3/10")
	assert.Contains(t, out, "Dana Reyes")
}

func TestPlainRenderer_UpdateProgress_MessageOnly(t *testing.T) {
	var buf bytes.Buffer
	r := newPlain(&buf)

	r.UpdateProgress(ProgressEvent{
		Stage:   StageLoading,
		Message: "reading corpus directory",
	})

	out := buf.String()
	assert.Contains(t, out, "[LOAD]")
	assert.Contains(t, out, "reading corpus directory")
}

func TestPlainRenderer_UpdateProgress_NoTotalNoMessage(t *testing.T) {
	var buf bytes.Buffer
	r := newPlain(&buf)

	r.UpdateProgress(ProgressEvent{Stage: StageIndexing})
	assert.Empty(t, buf.String())
}

func TestPlainRenderer_StageIcons(t *testing.T) {
	stages := []Stage{StageLoading, StageEmbedding, StageIndexing, StagePersisting, StageComplete}

	for _, stage := range stages {
		var buf bytes.Buffer
		r := newPlain(&buf)
		r.UpdateProgress(ProgressEvent{Stage: stage, Current: 1, Total: 2})
		assert.Contains(t, buf.String(), "["+stage.Icon()+"]")
	}
}

func TestPlainRenderer_AddError(t *testing.T) {
	var buf bytes.Buffer
	r := newPlain(&buf)

	r.AddError(ErrorEvent{
		Source: "people/dana.yaml",
		Err:    errors.New("missing name field"),
	})

	out := buf.String()
	assert.Contains(t, out, "ERROR:")
	assert.Contains(t, out, "people/dana.yaml")
	assert.Contains(t, out, "missing name field")
}

func TestPlainRenderer_AddWarning(t *testing.T) {
	var buf bytes.Buffer
	r := newPlain(&buf)

	r.AddError(ErrorEvent{
		Err:    errors.New("record skipped"),
		IsWarn: true,
	})

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "WARN:"))
	assert.Contains(t, out, "record skipped")
}

func TestPlainRenderer_Complete(t *testing.T) {
	var buf bytes.Buffer
	r := newPlain(&buf)

	r.Complete(CompletionStats{
		Records:   12,
		Documents: 12,
		Duration:  2300 * time.Millisecond,
	})

	out := buf.String()
	assert.Contains(t, out, "Complete: 12 records, 12 documents indexed")
	assert.Contains(t, out, "2.3s")
	assert.NotContains(t, out, "errors")
}

func TestPlainRenderer_Complete_WithErrorsAndWarnings(t *testing.T) {
	var buf bytes.Buffer
	r := newPlain(&buf)

	r.Complete(CompletionStats{
		Records:   10,
		Documents: 8,
		Duration:  time.Second,
		Errors:    2,
		Warnings:  1,
	})

	assert.Contains(t, buf.String(), "(2 errors, 1 warnings)")
}

func TestPlainRenderer_Complete_StageBreakdown(t *testing.T) {
	var buf bytes.Buffer
	r := newPlain(&buf)

	r.Complete(CompletionStats{
		Records:   20,
		Documents: 20,
		Duration:  5 * time.Second,
		Stages: StageTimings{
			Load:    500 * time.Millisecond,
			Embed:   3 * time.Second,
			Index:   time.Second,
			Persist: 500 * time.Millisecond,
		},
	})

	out := buf.String()
	assert.Contains(t, out, "Stage Breakdown:")
	assert.Contains(t, out, "Load:")
	assert.Contains(t, out, "Embed:")
	assert.Contains(t, out, "Index:")
	assert.Contains(t, out, "Persist:")
	assert.Contains(t, out, "keyword + vector")
	// 20 documents over 3s of embedding
	assert.Contains(t, out, "@ 6.7/sec")
}

func TestPlainRenderer_Complete_EmbedderInfo(t *testing.T) {
	var buf bytes.Buffer
	r := newPlain(&buf)

	r.Complete(CompletionStats{
		Records:   1,
		Documents: 1,
		Duration:  time.Second,
		Embedder: EmbedderInfo{
			Backend:    "hash",
			Model:      "hash-v1",
			Dimensions: 256,
		},
	})

	assert.Contains(t, buf.String(), "Provider: hash (hash-v1, 256 dims)")
}
