package search

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/orgmcp/internal/embed"
	"github.com/Aman-CERP/orgmcp/internal/store"
)

// Engine runs hybrid retrieval over a vector index and a keyword index.
//
// The engine owns the synchronization boundary for index replacement: the
// lifecycle manager builds new indexes aside and publishes them through the
// Swap methods. Readers take the read lock only long enough to copy the
// index pointers, so searches never block behind a rebuild. A replaced index
// is not closed here; in-flight searches may still hold it, and it is
// reclaimed once the last of them returns.
type Engine struct {
	mu       sync.RWMutex
	producer embed.Producer
	vector   store.VectorIndex
	keyword  store.KeywordIndex
	docs     DocumentProvider
	config   Config
	fusion   *WeightedFusion
}

// Ensure Engine implements SearchEngine.
var _ SearchEngine = (*Engine)(nil)

// ErrNilDependency is returned when a required collaborator is nil.
var ErrNilDependency = errors.New("nil dependency")

// NewEngine creates a hybrid search engine over the given collaborators.
// Zero-valued config fields fall back to package defaults; negative fusion
// weights are rejected.
func NewEngine(producer embed.Producer, vectorIdx store.VectorIndex, keywordIdx store.KeywordIndex, docs DocumentProvider, cfg Config) (*Engine, error) {
	if producer == nil {
		return nil, fmt.Errorf("%w: embedding producer is required", ErrNilDependency)
	}
	if vectorIdx == nil {
		return nil, fmt.Errorf("%w: vector index is required", ErrNilDependency)
	}
	if keywordIdx == nil {
		return nil, fmt.Errorf("%w: keyword index is required", ErrNilDependency)
	}
	if docs == nil {
		return nil, fmt.Errorf("%w: document provider is required", ErrNilDependency)
	}

	cfg = cfg.withDefaults()
	if cfg.VectorWeight < 0 || cfg.KeywordWeight < 0 {
		return nil, fmt.Errorf("fusion weights must be non-negative, got vector=%g keyword=%g", cfg.VectorWeight, cfg.KeywordWeight)
	}

	return &Engine{
		producer: producer,
		vector:   vectorIdx,
		keyword:  keywordIdx,
		docs:     docs,
		config:   cfg,
		fusion:   NewWeightedFusion(cfg.VectorWeight, cfg.KeywordWeight),
	}, nil
}

// IndexContent feeds both sub-indexes from the same document set: vectors
// are batch-added (every dimension validated before the first insert) and
// the keyword index is rebuilt from the full set, aside, swapping in only on
// success. An empty document set is a no-op.
func (e *Engine) IndexContent(ctx context.Context, docs []*store.Document) error {
	if len(docs) == 0 {
		return nil
	}

	e.mu.RLock()
	vec, kw := e.vector, e.keyword
	e.mu.RUnlock()

	ids := make([]string, len(docs))
	vectors := make([][]float32, len(docs))
	metas := make([]map[string]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
		vectors[i] = doc.Embedding
		metas[i] = map[string]string{
			"content_type": string(doc.ContentType),
			"title":        doc.Title,
		}
	}

	if err := vec.AddBatch(ctx, ids, vectors, metas); err != nil {
		return fmt.Errorf("add vectors: %w", err)
	}
	if err := kw.Build(ctx, docs); err != nil {
		return fmt.Errorf("build keyword index: %w", err)
	}
	return nil
}

// Search executes a query in the requested mode and returns ranked, hydrated
// results. A blank query with no supplied vector returns an empty result. An
// empty corpus or unbuilt keyword index also returns an empty result, never
// an error.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]*Result, error) {
	query = strings.TrimSpace(query)
	opts = e.applyDefaults(opts)

	if query == "" && len(opts.QueryVector) == 0 {
		return []*Result{}, nil
	}

	e.mu.RLock()
	producer, vec, kw := e.producer, e.vector, e.keyword
	e.mu.RUnlock()

	// Fetch twice the requested page from each channel so fusion and the
	// content-type filter still fill a full page.
	fetch := opts.TopK * 2

	var fused []*FusedResult
	switch opts.Mode {
	case ModeVector:
		hits, err := searchVector(ctx, producer, vec, query, opts, fetch)
		if err != nil {
			return nil, err
		}
		fused = VectorOnly(hits)
	case ModeKeyword:
		hits, err := kw.Search(ctx, query, fetch, opts.MinScore)
		if err != nil {
			return nil, fmt.Errorf("keyword search: %w", err)
		}
		fused = KeywordOnly(hits)
	case ModeHybrid:
		var err error
		fused, err = e.hybridSearch(ctx, producer, vec, kw, query, opts, fetch)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown search mode %q (valid: vector, keyword, hybrid)", opts.Mode)
	}

	return e.hydrate(fused, opts), nil
}

// searchVector resolves the query vector (embedding the text when the caller
// did not supply one) and runs the vector channel.
func searchVector(ctx context.Context, producer embed.Producer, vec store.VectorIndex, query string, opts Options, fetch int) ([]*store.VectorResult, error) {
	qv := opts.QueryVector
	if len(qv) == 0 {
		var err error
		qv, err = producer.Generate(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
	}

	hits, err := vec.Search(ctx, qv, fetch, opts.MinScore)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return hits, nil
}

// hybridSearch runs both channels concurrently and fuses their results.
// A single failed channel degrades to the surviving channel's results with a
// warning; the search fails only when both channels fail.
func (e *Engine) hybridSearch(ctx context.Context, producer embed.Producer, vec store.VectorIndex, kw store.KeywordIndex, query string, opts Options, fetch int) ([]*FusedResult, error) {
	var (
		vecHits []*store.VectorResult
		kwHits  []*store.KeywordResult
		vecErr  error
		kwErr   error
	)

	// The closures record their channel's error instead of returning it, so
	// one failed channel never cancels the other.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vecHits, vecErr = searchVector(gctx, producer, vec, query, opts, fetch)
		return nil
	})
	g.Go(func() error {
		kwHits, kwErr = kw.Search(gctx, query, fetch, opts.MinScore)
		if kwErr != nil {
			kwErr = fmt.Errorf("keyword search: %w", kwErr)
		}
		return nil
	})
	_ = g.Wait()

	switch {
	case vecErr != nil && kwErr != nil:
		return nil, fmt.Errorf("hybrid search: %w", errors.Join(vecErr, kwErr))
	case vecErr != nil:
		slog.Warn("vector channel failed, returning keyword results only", "error", vecErr)
	case kwErr != nil:
		slog.Warn("keyword channel failed, returning vector results only", "error", kwErr)
	}

	return e.fusion.Fuse(vecHits, kwHits), nil
}

// hydrate resolves fused candidates into full results, applying the
// content-type filter and the TopK cut. Candidates whose document is gone
// from the provider are skipped; the index entry outlived its source record
// and will disappear on the next rebuild.
func (e *Engine) hydrate(fused []*FusedResult, opts Options) []*Result {
	results := make([]*Result, 0, min(len(fused), opts.TopK))
	if len(fused) == 0 {
		return results
	}

	ids := make([]string, len(fused))
	for i, fr := range fused {
		ids[i] = fr.ContentID
	}
	byID := make(map[string]*store.Document, len(ids))
	for _, doc := range e.docs.Documents(ids) {
		byID[doc.ID] = doc
	}

	var allowed map[store.ContentType]struct{}
	if len(opts.ContentTypes) > 0 {
		allowed = make(map[store.ContentType]struct{}, len(opts.ContentTypes))
		for _, ct := range opts.ContentTypes {
			allowed[ct] = struct{}{}
		}
	}

	for _, fr := range fused {
		if len(results) == opts.TopK {
			break
		}
		doc, ok := byID[fr.ContentID]
		if !ok {
			continue
		}
		if allowed != nil {
			if _, ok := allowed[doc.ContentType]; !ok {
				continue
			}
		}
		results = append(results, &Result{
			ContentID:    fr.ContentID,
			Title:        doc.Title,
			Snippet:      makeSnippet(doc.BodyText, e.config.SnippetLength),
			Score:        fr.Score,
			ContentType:  doc.ContentType,
			Metadata:     copyMeta(doc.Metadata),
			VectorScore:  fr.VectorScore,
			KeywordScore: fr.KeywordScore,
			MatchedTerms: fr.MatchedTerms,
		})
	}
	return results
}

func (e *Engine) applyDefaults(opts Options) Options {
	if opts.Mode == "" {
		opts.Mode = ModeHybrid
	}
	if opts.TopK <= 0 {
		opts.TopK = e.config.DefaultLimit
	}
	if opts.TopK > e.config.MaxLimit {
		opts.TopK = e.config.MaxLimit
	}
	return opts
}

// AddVector upserts one document vector in the live vector index. The
// lifecycle manager uses this for incremental mutations between rebuilds.
func (e *Engine) AddVector(ctx context.Context, id string, vector []float32, meta map[string]string) error {
	e.mu.RLock()
	vec := e.vector
	e.mu.RUnlock()
	return vec.Add(ctx, id, vector, meta)
}

// RemoveVector deletes one document vector from the live vector index,
// reporting whether it was present.
func (e *Engine) RemoveVector(ctx context.Context, id string) bool {
	e.mu.RLock()
	vec := e.vector
	e.mu.RUnlock()
	return vec.Remove(ctx, id)
}

// SwapVectorIndex atomically publishes a rebuilt vector index. The previous
// index is left open for in-flight searches.
func (e *Engine) SwapVectorIndex(newIdx store.VectorIndex) {
	e.mu.Lock()
	e.vector = newIdx
	e.mu.Unlock()
}

// SwapKeywordIndex atomically publishes a rebuilt keyword index.
func (e *Engine) SwapKeywordIndex(newIdx store.KeywordIndex) {
	e.mu.Lock()
	e.keyword = newIdx
	e.mu.Unlock()
}

// SwapIndexes publishes a rebuilt index pair under a single lock, so readers
// observe either the old pair or the new pair, never a mix.
func (e *Engine) SwapIndexes(vec store.VectorIndex, kw store.KeywordIndex) {
	e.mu.Lock()
	e.vector = vec
	e.keyword = kw
	e.mu.Unlock()
}

// SaveIndexes persists both index artifacts under dir (vectors.idx and
// keywords.idx), serialized against other processes with a file lock.
func (e *Engine) SaveIndexes(dir string) error {
	e.mu.RLock()
	vec, kw := e.vector, e.keyword
	e.mu.RUnlock()

	lock := store.NewFileLock(dir)
	if err := lock.Lock(); err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	if err := vec.Save(filepath.Join(dir, store.VectorIndexFile)); err != nil {
		return fmt.Errorf("save vector index: %w", err)
	}
	if err := kw.Save(filepath.Join(dir, store.KeywordIndexFile)); err != nil {
		return fmt.Errorf("save keyword index: %w", err)
	}
	return nil
}

// LoadIndexes restores both index artifacts from dir. Both artifacts are
// decoded into staging indexes first and published together only after both
// succeed, so a failed load of either artifact leaves the live pair
// untouched. A missing vector artifact reports fs.ErrNotExist so callers can
// tell "no index yet" from a real failure.
func (e *Engine) LoadIndexes(dir string) error {
	e.mu.RLock()
	vec, kw := e.vector, e.keyword
	e.mu.RUnlock()

	lock := store.NewFileLock(dir)
	if err := lock.Lock(); err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	vecPath := filepath.Join(dir, store.VectorIndexFile)
	kwPath := filepath.Join(dir, store.KeywordIndexFile)

	dim, err := store.ReadVectorIndexDimension(vecPath)
	if err != nil {
		return fmt.Errorf("validate vector index: %w", err)
	}
	if dim == 0 {
		return fmt.Errorf("vector index artifact %s: %w", vecPath, fs.ErrNotExist)
	}
	if dim != vec.Dimension() {
		return store.ErrVersionMismatch{
			Path:   vecPath,
			Reason: fmt.Sprintf("dimension %d, want %d", dim, vec.Dimension()),
		}
	}

	stagedVec, err := store.NewFlatVectorIndex(vec.Dimension())
	if err != nil {
		return fmt.Errorf("stage vector index: %w", err)
	}
	stagedKW := store.NewTFIDFIndex(kw.Config())

	if err := stagedKW.Load(kwPath); err != nil {
		return fmt.Errorf("load keyword index: %w", err)
	}
	if err := stagedVec.Load(vecPath); err != nil {
		return fmt.Errorf("load vector index: %w", err)
	}

	e.SwapIndexes(stagedVec, stagedKW)
	return nil
}

// Stats returns current index counts and the configured fusion weights.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	vec, kw := e.vector, e.keyword
	e.mu.RUnlock()

	return Stats{
		VectorCount:    vec.Count(),
		KeywordCount:   kw.Count(),
		VocabularySize: kw.VocabularySize(),
		Dimension:      vec.Dimension(),
		VectorWeight:   e.config.VectorWeight,
		KeywordWeight:  e.config.KeywordWeight,
	}
}

// Close releases both indexes. The embedding producer is shared and stays
// open; its owner closes it.
func (e *Engine) Close() error {
	e.mu.Lock()
	vec, kw := e.vector, e.keyword
	e.mu.Unlock()

	return errors.Join(vec.Close(), kw.Close())
}

// makeSnippet collapses whitespace and cuts text to at most limit characters
// on a word boundary.
func makeSnippet(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}
	cut := runes[:limit]
	for i := len(cut) - 1; i > 0; i-- {
		if cut[i] == ' ' {
			return string(cut[:i])
		}
	}
	return string(cut)
}

func copyMeta(meta map[string]string) map[string]string {
	if meta == nil {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
