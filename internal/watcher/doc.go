// Package watcher provides real-time watching of a corpus directory so
// record file edits flow into the index without a restart.
//
// The package implements a hybrid watching strategy:
//   - Primary: fsnotify for efficient event-based watching
//   - Fallback: polling for environments where fsnotify fails (network mounts, Docker volumes)
//
// Events are debounced to coalesce rapid changes from editors and bulk
// copies, and filtered down to record files (.yaml/.yml/.json); hidden
// paths, including the .orgmcp artifact directory, never surface.
//
// Usage:
//
//	w, err := watcher.NewHybridWatcher(watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	go w.Start(ctx, corpusDir)
//
//	for batch := range w.Events() {
//	    for _, event := range batch {
//	        switch event.Operation {
//	        case watcher.OpCreate, watcher.OpModify:
//	            // Reload the record file
//	        case watcher.OpDelete, watcher.OpRename:
//	            // Drop its records from the index
//	        }
//	    }
//	}
package watcher
