package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/Aman-CERP/orgmcp/internal/errors"
	"github.com/Aman-CERP/orgmcp/internal/search"
	"github.com/Aman-CERP/orgmcp/internal/store"
)

// DefaultRebuildThreshold is the number of mutations after which the indexes
// are rebuilt. The keyword index's IDF statistics are global, so incremental
// mutations slowly degrade its rankings until a full rebuild refreshes them.
const DefaultRebuildThreshold = 100

// LifecycleConfig configures the Lifecycle manager.
type LifecycleConfig struct {
	// RebuildThreshold is the mutation count that triggers an automatic full
	// rebuild. Zero or negative selects DefaultRebuildThreshold.
	RebuildThreshold int

	// Vectorizer shapes the keyword index built on rebuild. The zero value
	// selects store.DefaultVectorizerConfig.
	Vectorizer store.VectorizerConfig
}

// Lifecycle couples the Indexer and the search Engine behind single-writer
// mutation entry points. Every mutation flows through one mutex, so the
// engine's vector index never drifts from the document map, and a mutation
// counter schedules full rebuilds that refresh the keyword index's global
// IDF statistics and reconcile the vector index with the corpus.
type Lifecycle struct {
	indexer *Indexer
	engine  *search.Engine
	config  LifecycleConfig
	pool    *ants.Pool

	// mu serializes mutations and rebuilds.
	mu sync.Mutex

	// statsMu guards the counters separately so Status stays readable while
	// a rebuild holds mu.
	statsMu       sync.Mutex
	mutations     int
	rebuildCount  int
	lastRebuildAt time.Time

	progress *RebuildProgress
}

// NewLifecycle creates a Lifecycle over indexer and engine.
func NewLifecycle(indexer *Indexer, engine *search.Engine, cfg LifecycleConfig) (*Lifecycle, error) {
	if indexer == nil {
		return nil, fmt.Errorf("indexer is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("search engine is required")
	}
	if cfg.RebuildThreshold <= 0 {
		cfg.RebuildThreshold = DefaultRebuildThreshold
	}
	if cfg.Vectorizer.MaxVocabulary == 0 {
		cfg.Vectorizer = store.DefaultVectorizerConfig()
	}

	// One nonblocking worker: a second async rebuild submitted while the
	// first runs is rejected instead of queued.
	pool, err := ants.NewPool(1, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("create rebuild worker pool: %w", err)
	}

	return &Lifecycle{
		indexer:  indexer,
		engine:   engine,
		config:   cfg,
		pool:     pool,
		progress: newRebuildProgress(),
	}, nil
}

// Add indexes a new source and applies its vector to the live index. When
// the mutation counter reaches the rebuild threshold the indexes are rebuilt
// inline; a rebuild failure is returned alongside the successfully indexed
// document and the previous indexes stay live.
func (lc *Lifecycle) Add(ctx context.Context, src Source) (*store.Document, error) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	doc, err := lc.indexer.IndexSource(ctx, src)
	if err != nil {
		return nil, err
	}
	if err := lc.engine.AddVector(ctx, doc.ID, doc.Embedding, vectorMeta(doc)); err != nil {
		return nil, fmt.Errorf("apply vector for %s: %w", doc.ID, err)
	}
	return doc, lc.noteMutation(ctx)
}

// Update re-indexes id from src and replaces its vector in the live index.
// Unknown ids return a not-found error without mutating anything.
func (lc *Lifecycle) Update(ctx context.Context, id string, src Source) (*store.Document, error) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	doc, err := lc.indexer.Update(ctx, id, src)
	if err != nil {
		return nil, err
	}
	if err := lc.engine.AddVector(ctx, doc.ID, doc.Embedding, vectorMeta(doc)); err != nil {
		return nil, fmt.Errorf("apply vector for %s: %w", doc.ID, err)
	}
	return doc, lc.noteMutation(ctx)
}

// Remove deletes id from the corpus and the live vector index, reporting
// whether it was present. The keyword index forgets the document at the next
// rebuild; until then its stale entry is hidden at result hydration.
func (lc *Lifecycle) Remove(ctx context.Context, id string) (bool, error) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if !lc.indexer.Remove(id) {
		return false, nil
	}
	lc.engine.RemoveVector(ctx, id)
	return true, lc.noteMutation(ctx)
}

// Rebuild rebuilds both indexes from the current corpus and swaps them into
// the engine. The context is honored between stages, so a cancelled rebuild
// aborts cleanly with the previous indexes still authoritative. A successful
// rebuild resets the mutation counter.
func (lc *Lifecycle) Rebuild(ctx context.Context) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.rebuildLocked(ctx)
}

// RebuildAsync runs Rebuild on the background worker and returns
// immediately. Submitting while a rebuild is already queued or running is
// rejected. Progress is observable through Status; ctx governs the
// background work, so callers pass one that outlives the request.
func (lc *Lifecycle) RebuildAsync(ctx context.Context) error {
	err := lc.pool.Submit(func() {
		if err := lc.Rebuild(ctx); err != nil {
			slog.Warn("background rebuild failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return errors.RebuildError("rebuild not scheduled", err)
	}
	return nil
}

// LifecycleStatus reports the manager's counters and the live index sizes.
type LifecycleStatus struct {
	Mutations        int             `json:"mutations"`
	RebuildThreshold int             `json:"rebuild_threshold"`
	RebuildCount     int             `json:"rebuild_count"`
	LastRebuildAt    time.Time       `json:"last_rebuild_at,omitzero"`
	Documents        int             `json:"documents"`
	VectorCount      int             `json:"vector_count"`
	KeywordCount     int             `json:"keyword_count"`
	State            RebuildState    `json:"state"`
	Rebuild          RebuildSnapshot `json:"rebuild"`
}

// Status returns a point-in-time view of the mutation counter, rebuild
// history, index sizes, and any running rebuild. It never blocks on a
// rebuild in progress.
func (lc *Lifecycle) Status() LifecycleStatus {
	snap := lc.progress.Snapshot()
	engineStats := lc.engine.Stats()

	lc.statsMu.Lock()
	status := LifecycleStatus{
		Mutations:        lc.mutations,
		RebuildThreshold: lc.config.RebuildThreshold,
		RebuildCount:     lc.rebuildCount,
		LastRebuildAt:    lc.lastRebuildAt,
	}
	lc.statsMu.Unlock()

	status.Documents = lc.indexer.Count()
	status.VectorCount = engineStats.VectorCount
	status.KeywordCount = engineStats.KeywordCount
	status.State = snap.State
	status.Rebuild = snap
	return status
}

// Close releases the background worker pool. It does not close the engine,
// which the caller owns.
func (lc *Lifecycle) Close() error {
	lc.pool.Release()
	return nil
}

// noteMutation advances the mutation counter and rebuilds at the threshold.
// A failed rebuild leaves the counter untouched so the next mutation retries.
// Callers hold lc.mu.
func (lc *Lifecycle) noteMutation(ctx context.Context) error {
	lc.statsMu.Lock()
	lc.mutations++
	due := lc.mutations >= lc.config.RebuildThreshold
	mutations := lc.mutations
	lc.statsMu.Unlock()

	if !due {
		return nil
	}

	slog.Debug("mutation threshold reached, rebuilding indexes",
		slog.Int("mutations", mutations),
		slog.Int("threshold", lc.config.RebuildThreshold))
	return lc.rebuildLocked(ctx)
}

// rebuildLocked rebuilds both indexes from one corpus snapshot and swaps
// them into the engine. Nothing the engine serves is touched until the swap
// stage, so any failure or cancellation leaves the previous indexes live.
// Callers hold lc.mu.
func (lc *Lifecycle) rebuildLocked(ctx context.Context) error {
	start := time.Now()
	lc.progress.begin()

	// Export: one point-in-time snapshot feeds both index builds, so the
	// published pair always agrees on corpus membership.
	if err := lc.stageGate(ctx, StageExport); err != nil {
		return err
	}
	docs := lc.indexer.Export()
	lc.progress.setDocuments(len(docs))

	// Fit: build the replacement keyword index aside. An empty corpus swaps
	// in fresh empty indexes rather than failing.
	if err := lc.stageGate(ctx, StageFit); err != nil {
		return err
	}
	keyword := store.NewTFIDFIndex(lc.config.Vectorizer)
	if len(docs) > 0 {
		if err := keyword.Build(ctx, docs); err != nil {
			return lc.fail(errors.RebuildError("rebuild keyword index", err))
		}
	}

	// Refresh: rebuild the vector index from the exported embeddings. This
	// also drops any vector entries that outlived their documents.
	if err := lc.stageGate(ctx, StageRefresh); err != nil {
		return err
	}
	vector, err := store.NewFlatVectorIndex(lc.indexer.Dimension())
	if err != nil {
		return lc.fail(errors.RebuildError("rebuild vector index", err))
	}
	for _, doc := range docs {
		if err := vector.Add(ctx, doc.ID, doc.Embedding, vectorMeta(doc)); err != nil {
			return lc.fail(errors.RebuildError(fmt.Sprintf("restore vector for %s", doc.ID), err))
		}
	}

	// Swap: publish both replacements as one pair. In-flight searches finish
	// on the indexes they already hold.
	if err := lc.stageGate(ctx, StageSwap); err != nil {
		return err
	}
	lc.engine.SwapIndexes(vector, keyword)

	lc.statsMu.Lock()
	lc.mutations = 0
	lc.rebuildCount++
	lc.lastRebuildAt = time.Now()
	lc.statsMu.Unlock()
	lc.progress.setReady()

	slog.Info("indexes rebuilt",
		slog.Int("documents", len(docs)),
		slog.Duration("took", time.Since(start)))
	return nil
}

// stageGate aborts the rebuild when ctx is done, otherwise advances the
// progress tracker to the given stage.
func (lc *Lifecycle) stageGate(ctx context.Context, stage RebuildStage) error {
	if err := ctx.Err(); err != nil {
		return lc.fail(errors.RebuildError(
			fmt.Sprintf("rebuild aborted before %s stage", stage), err))
	}
	lc.progress.setStage(stage)
	return nil
}

// fail records err in the progress tracker and returns it.
func (lc *Lifecycle) fail(err *errors.OrgError) error {
	lc.progress.setError(err)
	slog.Warn("index rebuild failed", slog.String("error", err.Error()))
	return err
}

// vectorMeta is the per-id metadata stored alongside vectors, matching what
// the engine records when indexing a full corpus.
func vectorMeta(doc *store.Document) map[string]string {
	return map[string]string{
		"content_type": string(doc.ContentType),
		"title":        doc.Title,
	}
}
