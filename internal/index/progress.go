package index

import (
	"sync"
	"time"
)

// RebuildState describes the lifecycle manager's indexing state.
type RebuildState string

const (
	// StateReady means the live indexes are serving and no rebuild is running.
	StateReady RebuildState = "ready"
	// StateIndexing means a rebuild is in progress; searches keep using the
	// previous indexes until the swap.
	StateIndexing RebuildState = "indexing"
	// StateError means the last rebuild failed; the previous indexes remain
	// authoritative.
	StateError RebuildState = "error"
)

// RebuildStage identifies the phase a running rebuild is in.
type RebuildStage string

const (
	// StageExport snapshots the document corpus.
	StageExport RebuildStage = "export"
	// StageFit builds the replacement keyword index.
	StageFit RebuildStage = "fit"
	// StageRefresh rebuilds the vector index from exported embeddings.
	StageRefresh RebuildStage = "refresh"
	// StageSwap publishes both replacement indexes.
	StageSwap RebuildStage = "swap"
	// StageDone marks a completed rebuild.
	StageDone RebuildStage = "done"
)

// RebuildSnapshot is a point-in-time view of rebuild progress, shaped for
// the MCP status tool.
type RebuildSnapshot struct {
	State          RebuildState `json:"state"`
	Stage          RebuildStage `json:"stage,omitempty"`
	Documents      int          `json:"documents"`
	ElapsedSeconds float64      `json:"elapsed_seconds,omitempty"`
	Error          string       `json:"error,omitempty"`
}

// RebuildProgress tracks the state of rebuilds for status reporting.
// All methods are safe for concurrent use; the rebuild goroutine writes
// while status readers snapshot.
type RebuildProgress struct {
	mu        sync.RWMutex
	state     RebuildState
	stage     RebuildStage
	documents int
	startedAt time.Time
	errMsg    string
}

func newRebuildProgress() *RebuildProgress {
	return &RebuildProgress{state: StateReady}
}

// begin marks the start of a rebuild, clearing any previous error.
func (p *RebuildProgress) begin() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateIndexing
	p.stage = StageExport
	p.documents = 0
	p.startedAt = time.Now()
	p.errMsg = ""
}

// setStage advances the tracker to the next rebuild stage.
func (p *RebuildProgress) setStage(stage RebuildStage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stage = stage
}

// setDocuments records how many documents the rebuild covers.
func (p *RebuildProgress) setDocuments(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.documents = n
}

// setError marks the rebuild failed. The stage keeps its last value so the
// snapshot shows where the failure happened.
func (p *RebuildProgress) setError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateError
	p.errMsg = err.Error()
}

// setReady marks the rebuild complete.
func (p *RebuildProgress) setReady() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateReady
	p.stage = StageDone
}

// IsIndexing reports whether a rebuild is currently running.
func (p *RebuildProgress) IsIndexing() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state == StateIndexing
}

// Snapshot returns a copy of the current progress.
func (p *RebuildProgress) Snapshot() RebuildSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snap := RebuildSnapshot{
		State:     p.state,
		Stage:     p.stage,
		Documents: p.documents,
		Error:     p.errMsg,
	}
	if p.state == StateIndexing && !p.startedAt.IsZero() {
		snap.ElapsedSeconds = time.Since(p.startedAt).Seconds()
	}
	return snap
}
