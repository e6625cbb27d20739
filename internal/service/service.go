// Package service orchestrates the source store, content indexer, search
// engine, index lifecycle, and query telemetry behind the operations the CLI
// and MCP surfaces call. It is the only layer that touches the source store;
// the retrieval core below it never does.
package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/orgmcp/internal/config"
	"github.com/Aman-CERP/orgmcp/internal/corpus"
	"github.com/Aman-CERP/orgmcp/internal/embed"
	"github.com/Aman-CERP/orgmcp/internal/index"
	"github.com/Aman-CERP/orgmcp/internal/search"
	"github.com/Aman-CERP/orgmcp/internal/store"
	"github.com/Aman-CERP/orgmcp/internal/telemetry"
)

// Document ID prefixes. The index keys documents by prefixed source-store
// ids so profile and knowledge ids can never collide.
const (
	profileIDPrefix   = "profile_"
	knowledgeIDPrefix = "knowledge_"
)

// ProfileDocID returns the index document id for a profile.
func ProfileDocID(id string) string {
	return profileIDPrefix + id
}

// KnowledgeDocID returns the index document id for a knowledge entry.
func KnowledgeDocID(id string) string {
	return knowledgeIDPrefix + id
}

// Config holds service-level settings.
type Config struct {
	// IndexDir is the directory holding the persisted index artifacts.
	IndexDir string

	// DefaultLimit is the result count used when a search does not set one.
	// Zero selects search.DefaultLimit.
	DefaultLimit int

	// MinScore is the relevance floor applied when a search does not set
	// one. The engine applies scores as given; this floor is service policy.
	MinScore float64
}

// KnowledgeService couples the source store with the retrieval core. All
// content mutations flow store-first, then through the lifecycle manager, so
// the indexes never reference records the store does not hold.
type KnowledgeService struct {
	sources   store.SourceStore
	indexer   *index.Indexer
	engine    *search.Engine
	lifecycle *index.Lifecycle
	metrics   *telemetry.QueryMetrics // nil when telemetry is disabled
	producer  embed.Producer          // closed by Close when set by Open
	config    Config

	// mu guards corpusIDs, the set of document ids owned by the corpus
	// directory. LoadCorpusDir uses it to remove records whose files
	// disappeared between loads.
	mu        sync.Mutex
	corpusIDs map[string]bool
}

// NewKnowledgeService creates a service over its collaborators. The metrics
// collector may be nil; everything else is required.
func NewKnowledgeService(sources store.SourceStore, indexer *index.Indexer, engine *search.Engine, lifecycle *index.Lifecycle, metrics *telemetry.QueryMetrics, cfg Config) (*KnowledgeService, error) {
	if sources == nil {
		return nil, fmt.Errorf("%w: source store", search.ErrNilDependency)
	}
	if indexer == nil {
		return nil, fmt.Errorf("%w: indexer", search.ErrNilDependency)
	}
	if engine == nil {
		return nil, fmt.Errorf("%w: search engine", search.ErrNilDependency)
	}
	if lifecycle == nil {
		return nil, fmt.Errorf("%w: lifecycle manager", search.ErrNilDependency)
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = search.DefaultLimit
	}

	return &KnowledgeService{
		sources:   sources,
		indexer:   indexer,
		engine:    engine,
		lifecycle: lifecycle,
		metrics:   metrics,
		config:    cfg,
		corpusIDs: make(map[string]bool),
	}, nil
}

// Open wires a complete service from the application configuration: the
// embedding producer, source store, both indexes, engine, lifecycle manager,
// and (when enabled) the telemetry collector over the shared database.
// Close releases everything Open created.
func Open(ctx context.Context, cfg *config.Config, root string) (*KnowledgeService, error) {
	indexDir := cfg.IndexDir(root)
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	producer, err := embed.NewProducer(ctx, embed.ProducerConfig{
		Provider:  cfg.Embeddings.Provider,
		Model:     cfg.Embeddings.Model,
		Dimension: cfg.Embeddings.Dimension,
		CacheSize: cfg.Embeddings.CacheSize,
		APIKey:    os.Getenv(cfg.Embeddings.APIKeyEnv),
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding producer: %w", err)
	}

	sources, err := store.NewSourceStore(cfg.DatabasePath(root))
	if err != nil {
		_ = producer.Close()
		return nil, fmt.Errorf("open source store: %w", err)
	}

	svc, err := assemble(producer, sources, cfg, indexDir)
	if err != nil {
		_ = sources.Close()
		_ = producer.Close()
		return nil, err
	}
	svc.producer = producer
	return svc, nil
}

// assemble builds the retrieval core over an open producer and store.
func assemble(producer embed.Producer, sources store.SourceStore, cfg *config.Config, indexDir string) (*KnowledgeService, error) {
	vectorizer := VectorizerConfig(cfg)

	vector, err := store.NewFlatVectorIndex(cfg.Embeddings.Dimension)
	if err != nil {
		return nil, fmt.Errorf("create vector index: %w", err)
	}
	keyword := store.NewTFIDFIndex(vectorizer)

	indexer, err := index.NewIndexer(producer)
	if err != nil {
		return nil, fmt.Errorf("create indexer: %w", err)
	}

	engine, err := search.NewEngine(producer, vector, keyword, indexer, search.Config{
		VectorWeight:  cfg.Search.VectorWeight,
		KeywordWeight: cfg.Search.KeywordWeight,
		DefaultLimit:  cfg.Search.DefaultLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("create search engine: %w", err)
	}

	lifecycle, err := index.NewLifecycle(indexer, engine, index.LifecycleConfig{
		RebuildThreshold: cfg.Index.RebuildThreshold,
		Vectorizer:       vectorizer,
	})
	if err != nil {
		return nil, fmt.Errorf("create lifecycle manager: %w", err)
	}

	var metrics *telemetry.QueryMetrics
	if cfg.Telemetry.Enabled {
		metricsStore, err := telemetry.NewSQLiteMetricsStore(sources.DB())
		if err != nil {
			return nil, fmt.Errorf("create metrics store: %w", err)
		}
		metrics = telemetry.NewQueryMetrics(metricsStore)
	}

	return NewKnowledgeService(sources, indexer, engine, lifecycle, metrics, Config{
		IndexDir:     indexDir,
		DefaultLimit: cfg.Search.DefaultLimit,
		MinScore:     cfg.Search.MinScore,
	})
}

// VectorizerConfig translates the keyword configuration into the store's
// vectorizer settings, appending any extra stopwords to the built-in set.
func VectorizerConfig(cfg *config.Config) store.VectorizerConfig {
	vc := store.DefaultVectorizerConfig()
	if cfg.Keywords.MaxVocabulary > 0 {
		vc.MaxVocabulary = cfg.Keywords.MaxVocabulary
	}
	if len(cfg.Keywords.ExtraStopwords) > 0 {
		stopWords := make([]string, 0, len(vc.StopWords)+len(cfg.Keywords.ExtraStopwords))
		stopWords = append(stopWords, vc.StopWords...)
		stopWords = append(stopWords, cfg.Keywords.ExtraStopwords...)
		vc.StopWords = stopWords
	}
	return vc
}

// Close flushes telemetry and releases every resource the service owns.
func (s *KnowledgeService) Close() error {
	var errs []error
	if s.metrics != nil {
		errs = append(errs, s.metrics.Close())
	}
	errs = append(errs, s.lifecycle.Close())
	errs = append(errs, s.engine.Close())
	errs = append(errs, s.sources.Close())
	if s.producer != nil {
		errs = append(errs, s.producer.Close())
	}
	return stderrors.Join(errs...)
}

// AddProfile stores a profile and indexes it. A missing id is minted by the
// store; a profile whose source URL is already known updates the existing
// record instead of duplicating it. Returns the indexed document.
func (s *KnowledgeService) AddProfile(ctx context.Context, profile *store.Profile) (*store.Document, error) {
	if err := s.sources.SaveProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}
	return s.indexRecord(ctx, profileSource(profile))
}

// AddKnowledge stores a knowledge entry and indexes it.
func (s *KnowledgeService) AddKnowledge(ctx context.Context, entry *store.Knowledge) (*store.Document, error) {
	if err := s.sources.SaveKnowledge(ctx, entry); err != nil {
		return nil, fmt.Errorf("save knowledge entry: %w", err)
	}
	return s.indexRecord(ctx, knowledgeSource(entry))
}

// UpdateProfile replaces the stored profile with the given id and re-indexes
// it. An unknown id is a negative result, not a stored insert.
func (s *KnowledgeService) UpdateProfile(ctx context.Context, profile *store.Profile) (*store.Document, error) {
	if profile == nil || profile.ID == "" {
		return nil, fmt.Errorf("profile id is required")
	}
	existing, err := s.sources.GetProfile(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("look up profile: %w", err)
	}
	if existing == nil {
		return nil, fmt.Errorf("profile %s not found", profile.ID)
	}
	profile.CreatedAt = existing.CreatedAt
	return s.AddProfile(ctx, profile)
}

// UpdateKnowledge replaces the stored knowledge entry with the given id and
// re-indexes it.
func (s *KnowledgeService) UpdateKnowledge(ctx context.Context, entry *store.Knowledge) (*store.Document, error) {
	if entry == nil || entry.ID == "" {
		return nil, fmt.Errorf("knowledge id is required")
	}
	existing, err := s.sources.GetKnowledge(ctx, entry.ID)
	if err != nil {
		return nil, fmt.Errorf("look up knowledge entry: %w", err)
	}
	if existing == nil {
		return nil, fmt.Errorf("knowledge entry %s not found", entry.ID)
	}
	entry.CreatedAt = existing.CreatedAt
	return s.AddKnowledge(ctx, entry)
}

// RemoveContent deletes a document by its index id (profile_<id> or
// knowledge_<id>) from both the indexes and the source store. It reports
// whether anything was removed; an unknown id is not an error.
func (s *KnowledgeService) RemoveContent(ctx context.Context, docID string) (bool, error) {
	indexed, err := s.lifecycle.Remove(ctx, docID)
	if err != nil {
		return indexed, fmt.Errorf("remove from index: %w", err)
	}

	var stored bool
	switch {
	case strings.HasPrefix(docID, profileIDPrefix):
		stored, err = s.sources.DeleteProfile(ctx, strings.TrimPrefix(docID, profileIDPrefix))
	case strings.HasPrefix(docID, knowledgeIDPrefix):
		stored, err = s.sources.DeleteKnowledge(ctx, strings.TrimPrefix(docID, knowledgeIDPrefix))
	}
	if err != nil {
		return indexed, fmt.Errorf("remove from store: %w", err)
	}

	s.mu.Lock()
	delete(s.corpusIDs, docID)
	s.mu.Unlock()

	return indexed || stored, nil
}

// Search runs a query through the engine with the service defaults applied
// (hybrid mode, configured limit, configured relevance floor), then records
// the query in telemetry and the query log. Logging failures never fail the
// search.
func (s *KnowledgeService) Search(ctx context.Context, query string, opts search.Options) ([]*search.Result, error) {
	if opts.Mode == "" {
		opts.Mode = search.ModeHybrid
	}
	if opts.TopK <= 0 {
		opts.TopK = s.config.DefaultLimit
	}
	if opts.MinScore == 0 {
		opts.MinScore = s.config.MinScore
	}

	start := time.Now()
	results, err := s.engine.Search(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	s.recordQuery(ctx, query, opts.Mode, results, time.Since(start))
	return results, nil
}

// recordQuery feeds the query into the metrics collector and the persisted
// query log.
func (s *KnowledgeService) recordQuery(ctx context.Context, query string, mode search.Mode, results []*search.Result, latency time.Duration) {
	kind := telemetry.ClassifyQuery(query)

	if s.metrics != nil {
		s.metrics.Record(telemetry.QueryEvent{
			Query:       query,
			Mode:        telemetry.SearchMode(mode),
			Kind:        kind,
			ResultCount: len(results),
			Latency:     latency,
		})
	}

	var topScore float64
	if len(results) > 0 {
		topScore = results[0].Score
	}
	err := s.sources.RecordQuery(ctx, &store.QueryLogEntry{
		Query:       query,
		Mode:        string(mode),
		Kind:        string(kind),
		ResultCount: len(results),
		TopScore:    topScore,
		LatencyMS:   latency.Milliseconds(),
	})
	if err != nil {
		slog.Warn("query log write failed", slog.String("error", err.Error()))
	}
}

// SyncFromStore rebuilds the in-memory corpus and both indexes from every
// record in the source store. Returns the number of documents indexed.
func (s *KnowledgeService) SyncFromStore(ctx context.Context) (int, error) {
	docs, err := s.syncDocuments(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.engine.IndexContent(ctx, docs); err != nil {
		return 0, fmt.Errorf("index content: %w", err)
	}
	return len(docs), nil
}

// syncDocuments loads every stored record and batch-indexes it into the
// document map, embedding all body texts in one batch. The two tables load
// in parallel.
func (s *KnowledgeService) syncDocuments(ctx context.Context) ([]*store.Document, error) {
	var (
		profiles []*store.Profile
		entries  []*store.Knowledge
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		profiles, err = s.sources.ListProfiles(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		entries, err = s.sources.ListKnowledge(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load source records: %w", err)
	}

	srcs := make([]index.Source, 0, len(profiles)+len(entries))
	for _, p := range profiles {
		srcs = append(srcs, profileSource(p))
	}
	for _, k := range entries {
		srcs = append(srcs, knowledgeSource(k))
	}

	docs, err := s.indexer.BatchIndex(ctx, srcs)
	if err != nil {
		return nil, fmt.Errorf("batch index: %w", err)
	}
	return docs, nil
}

// Persist saves both index artifacts under the configured index directory.
func (s *KnowledgeService) Persist(ctx context.Context) error {
	_ = ctx
	return s.engine.SaveIndexes(s.config.IndexDir)
}

// Restore rebuilds the document map from the source store, then restores the
// index artifacts from disk. When the artifacts are absent or fail
// validation the indexes are rebuilt from the documents instead, so the
// service always comes up searchable. Reports whether the artifacts were
// used.
func (s *KnowledgeService) Restore(ctx context.Context) (bool, error) {
	docs, err := s.syncDocuments(ctx)
	if err != nil {
		return false, err
	}

	loadErr := s.engine.LoadIndexes(s.config.IndexDir)
	if loadErr == nil {
		return true, nil
	}
	if !stderrors.Is(loadErr, fs.ErrNotExist) {
		slog.Warn("index artifacts rejected, rebuilding from store",
			slog.String("error", loadErr.Error()))
	}

	if err := s.engine.IndexContent(ctx, docs); err != nil {
		return false, fmt.Errorf("rebuild indexes: %w", err)
	}
	return false, nil
}

// CorpusLoad reports the outcome of a corpus directory load.
type CorpusLoad struct {
	Indexed    int                // records upserted and indexed
	Removed    int                // previously loaded records whose files disappeared
	FileErrors []corpus.FileError // files that failed to parse
}

// LoadCorpusDir loads every record file under dir, upserting each record
// into the store and the indexes. Records loaded by a previous call whose
// ids no longer appear are removed, so re-running after deleting a file
// retires its records. File-level parse failures are reported in the result
// and do not abort the load.
func (s *KnowledgeService) LoadCorpusDir(ctx context.Context, dir string) (*CorpusLoad, error) {
	records, fileErrs, err := corpus.LoadDir(dir)
	if err != nil {
		return nil, err
	}

	load := &CorpusLoad{FileErrors: fileErrs}
	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		docID, err := s.upsertRecord(ctx, rec)
		if err != nil {
			return load, err
		}
		seen[docID] = true
		load.Indexed++
	}

	s.mu.Lock()
	previous := s.corpusIDs
	s.corpusIDs = seen
	s.mu.Unlock()

	for docID := range previous {
		if seen[docID] {
			continue
		}
		removed, err := s.RemoveContent(ctx, docID)
		if err != nil {
			return load, fmt.Errorf("retire %s: %w", docID, err)
		}
		if removed {
			load.Removed++
		}
	}

	return load, nil
}

// upsertRecord stores one corpus record and indexes it, returning the index
// document id.
func (s *KnowledgeService) upsertRecord(ctx context.Context, rec corpus.Record) (string, error) {
	switch rec.Kind {
	case corpus.KindProfile:
		p := &store.Profile{
			ID:         rec.Profile.ID,
			Name:       rec.Profile.Name,
			Role:       rec.Profile.Role,
			Department: rec.Profile.Department,
			Bio:        rec.Profile.Bio,
			Contact:    rec.Profile.Contact,
			SourceURL:  rec.Profile.SourceURL,
			Metadata:   rec.Profile.Metadata,
		}
		doc, err := s.AddProfile(ctx, p)
		if err != nil {
			return "", fmt.Errorf("profile %q: %w", p.Name, err)
		}
		return doc.ID, nil

	case corpus.KindKnowledge:
		k := &store.Knowledge{
			ID:        rec.Knowledge.ID,
			Title:     rec.Knowledge.Title,
			Body:      rec.Knowledge.Body,
			Category:  rec.Knowledge.Category,
			SourceURL: rec.Knowledge.SourceURL,
			Metadata:  rec.Knowledge.Metadata,
		}
		doc, err := s.AddKnowledge(ctx, k)
		if err != nil {
			return "", fmt.Errorf("knowledge %q: %w", k.Title, err)
		}
		return doc.ID, nil
	}
	return "", fmt.Errorf("unknown record kind %q", rec.Kind)
}

// Rebuild triggers an explicit full index rebuild.
func (s *KnowledgeService) Rebuild(ctx context.Context) error {
	return s.lifecycle.Rebuild(ctx)
}

// Status returns the lifecycle manager's status snapshot.
func (s *KnowledgeService) Status() index.LifecycleStatus {
	return s.lifecycle.Status()
}

// Statistics aggregates store counts, engine state, lifecycle status, and
// the telemetry snapshot.
type Statistics struct {
	Profiles  int                             `json:"profiles"`
	Knowledge int                             `json:"knowledge"`
	Engine    search.Stats                    `json:"engine"`
	Lifecycle index.LifecycleStatus           `json:"lifecycle"`
	Telemetry *telemetry.QueryMetricsSnapshot `json:"telemetry,omitempty"`
}

// Statistics returns a point-in-time view across the whole service.
func (s *KnowledgeService) Statistics(ctx context.Context) (*Statistics, error) {
	profiles, err := s.sources.CountProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("count profiles: %w", err)
	}
	knowledge, err := s.sources.CountKnowledge(ctx)
	if err != nil {
		return nil, fmt.Errorf("count knowledge entries: %w", err)
	}

	stats := &Statistics{
		Profiles:  profiles,
		Knowledge: knowledge,
		Engine:    s.engine.Stats(),
		Lifecycle: s.lifecycle.Status(),
	}
	if s.metrics != nil {
		stats.Telemetry = s.metrics.Snapshot()
	}
	return stats, nil
}

// Document returns the indexed document with the given id.
func (s *KnowledgeService) Document(id string) (*store.Document, bool) {
	docs := s.indexer.Documents([]string{id})
	if len(docs) == 0 {
		return nil, false
	}
	return docs[0], true
}

// Documents returns every indexed document, sorted by id.
func (s *KnowledgeService) Documents() []*store.Document {
	return s.indexer.Export()
}

// RecentQueries returns the newest entries from the persisted query log.
func (s *KnowledgeService) RecentQueries(ctx context.Context, limit int) ([]*store.QueryLogEntry, error) {
	return s.sources.RecentQueries(ctx, limit)
}

// indexRecord routes a shaped source through the lifecycle manager, as an
// update when the document already exists.
func (s *KnowledgeService) indexRecord(ctx context.Context, src index.Source) (*store.Document, error) {
	if s.indexer.Contains(src.ID) {
		return s.lifecycle.Update(ctx, src.ID, src)
	}
	return s.lifecycle.Add(ctx, src)
}

// profileSource shapes a stored profile into the indexer's boundary record.
func profileSource(p *store.Profile) index.Source {
	return index.Source{
		ID:         ProfileDocID(p.ID),
		Type:       index.SourceTypeProfile,
		Name:       p.Name,
		Role:       p.Role,
		Department: p.Department,
		Bio:        p.Bio,
		Contact:    p.Contact,
		Metadata:   sourceMetadata(p.Metadata, "source_id", p.ID),
	}
}

// knowledgeSource shapes a stored knowledge entry into the indexer's
// boundary record.
func knowledgeSource(k *store.Knowledge) index.Source {
	meta := sourceMetadata(k.Metadata, "source_id", k.ID)
	if k.Category != "" {
		meta["category"] = k.Category
	}
	return index.Source{
		ID:       KnowledgeDocID(k.ID),
		Type:     index.SourceTypeKnowledge,
		Title:    k.Title,
		Body:     k.Body,
		Metadata: meta,
	}
}

// sourceMetadata copies meta and sets one extra key.
func sourceMetadata(meta map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out[key] = value
	return out
}
