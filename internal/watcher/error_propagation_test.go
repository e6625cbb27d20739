package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Error propagation tests - failures must surface instead of being
// silently swallowed.

func TestHybridWatcher_Start_InvalidPath_ReturnsError(t *testing.T) {
	// Given: a hybrid watcher
	w, err := NewHybridWatcher(DefaultOptions())
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	// When: starting on a non-existent path
	err = w.Start(context.Background(), "/nonexistent/path/that/does/not/exist")

	// Then: Start fails immediately
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stat watch root")
}

func TestHybridWatcher_Start_FileRoot_ReturnsError(t *testing.T) {
	// Given: a plain file instead of a directory
	file := filepath.Join(t.TempDir(), "alice.yaml")
	require.NoError(t, os.WriteFile(file, []byte("name: Alice Chen"), 0o644))

	w, err := NewHybridWatcher(DefaultOptions())
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	// When: starting on the file
	err = w.Start(context.Background(), file)

	// Then: Start fails immediately
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestHybridWatcher_Errors_ChannelIsOpen(t *testing.T) {
	// Given: a hybrid watcher
	w, err := NewHybridWatcher(DefaultOptions())
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	// Then: Errors channel should be non-nil and open
	assert.NotNil(t, w.Errors(), "Errors channel should not be nil")
}

func TestHybridWatcher_Stop_Idempotent(t *testing.T) {
	// Given: a started watcher
	tmpDir := t.TempDir()
	opts := Options{
		DebounceWindow:  10 * time.Millisecond,
		EventBufferSize: 10,
	}.WithDefaults()

	w, err := NewHybridWatcher(opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	go func() {
		close(started)
		_ = w.Start(ctx, tmpDir)
	}()
	<-started
	time.Sleep(100 * time.Millisecond)

	// When: stopping the watcher twice
	require.NoError(t, w.Stop())
	assert.NoError(t, w.Stop(), "multiple stops should be safe")
}

func TestHybridWatcher_ContextCancel_StopsCleanly(t *testing.T) {
	// Given: a started watcher
	tmpDir := t.TempDir()
	opts := Options{
		DebounceWindow:  10 * time.Millisecond,
		EventBufferSize: 10,
	}.WithDefaults()

	w, err := NewHybridWatcher(opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	startErr := make(chan error, 1)
	go func() {
		startErr <- w.Start(ctx, tmpDir)
	}()

	// Wait for watcher to be running
	time.Sleep(100 * time.Millisecond)

	// When: canceling context
	cancel()

	// Then: Start returns without hanging
	select {
	case err := <-startErr:
		if err != nil && err != context.Canceled {
			t.Logf("Start returned with: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop within timeout after context cancel")
	}
}

func TestHybridWatcher_WatchDeletedDirectory_HandlesGracefully(t *testing.T) {
	// Given: a watcher watching a directory
	tmpDir := t.TempDir()
	watchDir := filepath.Join(tmpDir, "corpus")
	require.NoError(t, os.MkdirAll(watchDir, 0o755))

	opts := Options{
		DebounceWindow:  10 * time.Millisecond,
		EventBufferSize: 10,
	}.WithDefaults()

	w, err := NewHybridWatcher(opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	go func() {
		close(started)
		_ = w.Start(ctx, watchDir)
	}()
	<-started
	time.Sleep(200 * time.Millisecond)

	// When: deleting the watched directory
	require.NoError(t, os.RemoveAll(watchDir))

	// Then: no panic; events or errors may surface but must not hang
	timeout := time.After(1 * time.Second)
	for {
		select {
		case <-w.Events():
		case <-w.Errors():
			// Error is acceptable - directory was deleted
		case <-timeout:
			return
		}
	}
}

func TestPollingWatcher_Start_InvalidPath_ReturnsError(t *testing.T) {
	// Given: a polling watcher
	w := NewPollingWatcher(100 * time.Millisecond)

	// When: starting on non-existent path
	err := w.Start(context.Background(), "/nonexistent/path")

	// Then: Start fails immediately
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stat watch root")
}

func TestHybridWatcher_ConcurrentStop_Safe(t *testing.T) {
	// Given: a started watcher
	tmpDir := t.TempDir()

	w, err := NewHybridWatcher(DefaultOptions())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = w.Start(ctx, tmpDir)
	}()
	time.Sleep(100 * time.Millisecond)

	// When: stopping concurrently from multiple goroutines
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			_ = w.Stop()
			done <- struct{}{}
		}()
	}

	// Then: all stops complete without panic
	for i := 0; i < 10; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("concurrent stops didn't complete in time")
		}
	}
}
