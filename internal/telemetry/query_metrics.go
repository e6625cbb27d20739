// Package telemetry records local search query metrics: per-mode and
// per-kind counts, a latency histogram, frequent query terms, and the
// most recent queries that returned nothing. Aggregates flush to the
// shared source database so trends survive restarts. Everything stays
// on the local machine - no external reporting.
package telemetry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// =============================================================================
// Search Modes
// =============================================================================

// SearchMode is the retrieval channel a query ran through. The string
// values match the search engine's mode names so conversion is direct.
type SearchMode string

const (
	ModeVector  SearchMode = "vector"
	ModeKeyword SearchMode = "keyword"
	ModeHybrid  SearchMode = "hybrid"
)

// =============================================================================
// Latency Buckets
// =============================================================================

// LatencyBucket represents a latency range for histogram tracking.
type LatencyBucket string

const (
	BucketLT10   LatencyBucket = "lt10ms"
	BucketLT50   LatencyBucket = "lt50ms"
	BucketLT100  LatencyBucket = "lt100ms"
	BucketLT500  LatencyBucket = "lt500ms"
	BucketLT1000 LatencyBucket = "lt1s"
	BucketGT1000 LatencyBucket = "gt1s"
)

// LatencyToBucket maps a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketLT10
	case ms < 50:
		return BucketLT50
	case ms < 100:
		return BucketLT100
	case ms < 500:
		return BucketLT500
	case ms < 1000:
		return BucketLT1000
	default:
		return BucketGT1000
	}
}

// =============================================================================
// Query Events
// =============================================================================

// QueryEvent captures one search query for metrics tracking.
type QueryEvent struct {
	Query       string
	Mode        SearchMode
	Kind        QueryKind
	ResultCount int
	Latency     time.Duration
	Timestamp   time.Time
}

// IsZeroResult returns true if the query returned no results.
func (e QueryEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// =============================================================================
// Circular Buffer
// =============================================================================

// CircularBuffer keeps the newest capacity values, evicting oldest first.
// Safe for concurrent use.
type CircularBuffer[T any] struct {
	mu       sync.Mutex
	values   []T
	start    int // index of the oldest value
	count    int
	capacity int
}

// NewCircularBuffer creates a buffer holding at most capacity values.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = DefaultZeroResultsCapacity
	}
	return &CircularBuffer[T]{
		values:   make([]T, capacity),
		capacity: capacity,
	}
}

// Add appends a value, evicting the oldest when the buffer is full.
func (b *CircularBuffer[T]) Add(value T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count < b.capacity {
		b.values[(b.start+b.count)%b.capacity] = value
		b.count++
		return
	}
	b.values[b.start] = value
	b.start = (b.start + 1) % b.capacity
}

// Items returns the buffered values oldest first. Always non-nil.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]T, 0, b.count)
	for i := 0; i < b.count; i++ {
		out = append(out, b.values[(b.start+i)%b.capacity])
	}
	return out
}

// Size returns the number of buffered values.
func (b *CircularBuffer[T]) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Clear discards all buffered values.
func (b *CircularBuffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	for i := range b.values {
		b.values[i] = zero
	}
	b.start = 0
	b.count = 0
}

// =============================================================================
// Term Extraction
// =============================================================================

// minTermLength filters noise words from term tracking.
const minTermLength = 3

// ExtractTerms splits a query into lowercase terms of at least three
// characters. Returns nil when nothing qualifies.
func ExtractTerms(query string) []string {
	var terms []string
	for _, f := range strings.Fields(strings.ToLower(query)) {
		if len(f) >= minTermLength {
			terms = append(terms, f)
		}
	}
	return terms
}

// TermCount pairs a query term with its occurrence count.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// =============================================================================
// Snapshots
// =============================================================================

// QueryMetricsSnapshot is a point-in-time view of collected metrics.
type QueryMetricsSnapshot struct {
	ModeCounts          map[SearchMode]int64    `json:"mode_counts"`
	KindCounts          map[QueryKind]int64     `json:"kind_counts"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the share of queries that found nothing.
func (s *QueryMetricsSnapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// =============================================================================
// Persistence
// =============================================================================

// QueryMetricsStore persists aggregated metrics. Implementations must be
// safe for use from the collector's flush goroutine.
type QueryMetricsStore interface {
	SaveModeCounts(date string, counts map[SearchMode]int64) error
	GetModeCounts(from, to string) (map[SearchMode]int64, error)

	SaveKindCounts(date string, counts map[QueryKind]int64) error
	GetKindCounts(from, to string) (map[QueryKind]int64, error)

	UpsertTermCounts(terms map[string]int64) error
	GetTopTerms(limit int) ([]TermCount, error)

	AddZeroResultQuery(query string, timestamp time.Time) error
	GetZeroResultQueries(limit int) ([]string, error)

	SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error
	GetLatencyCounts(from, to string) (map[LatencyBucket]int64, error)

	Close() error
}

// =============================================================================
// Configuration
// =============================================================================

const (
	// DefaultTopTermsCapacity bounds the in-memory term frequency cache.
	DefaultTopTermsCapacity = 100
	// DefaultZeroResultsCapacity bounds the recent zero-result buffer.
	DefaultZeroResultsCapacity = 100
	// DefaultFlushInterval is how often aggregates are written out.
	DefaultFlushInterval = 60 * time.Second
)

// QueryMetricsConfig tunes the in-memory collector.
type QueryMetricsConfig struct {
	TopTermsCapacity    int
	ZeroResultsCapacity int
	// FlushInterval of zero disables the background flush; Flush and
	// Close still persist on demand.
	FlushInterval time.Duration
}

// DefaultQueryMetricsConfig returns the standard collector configuration.
func DefaultQueryMetricsConfig() QueryMetricsConfig {
	return QueryMetricsConfig{
		TopTermsCapacity:    DefaultTopTermsCapacity,
		ZeroResultsCapacity: DefaultZeroResultsCapacity,
		FlushInterval:       DefaultFlushInterval,
	}
}

// =============================================================================
// Collector
// =============================================================================

// zeroResultEntry is a zero-result query waiting to be persisted.
type zeroResultEntry struct {
	query string
	at    time.Time
}

// pendingCounts holds the deltas accumulated since the last successful
// flush. Flushing deltas instead of cumulative totals keeps the upsert
// arithmetic in the store honest across restarts and repeated flushes.
type pendingCounts struct {
	modes     map[SearchMode]int64
	kinds     map[QueryKind]int64
	terms     map[string]int64
	latencies map[LatencyBucket]int64
	zero      []zeroResultEntry
}

func newPendingCounts() *pendingCounts {
	return &pendingCounts{
		modes:     make(map[SearchMode]int64),
		kinds:     make(map[QueryKind]int64),
		terms:     make(map[string]int64),
		latencies: make(map[LatencyBucket]int64),
	}
}

func (p *pendingCounts) empty() bool {
	return len(p.modes) == 0 && len(p.kinds) == 0 && len(p.terms) == 0 &&
		len(p.latencies) == 0 && len(p.zero) == 0
}

// merge folds other's counts back in, used when a flush fails partway.
func (p *pendingCounts) merge(other *pendingCounts) {
	for k, v := range other.modes {
		p.modes[k] += v
	}
	for k, v := range other.kinds {
		p.kinds[k] += v
	}
	for k, v := range other.terms {
		p.terms[k] += v
	}
	for k, v := range other.latencies {
		p.latencies[k] += v
	}
	p.zero = append(p.zero, other.zero...)
}

// QueryMetrics collects search query metrics in memory and periodically
// flushes aggregates to a QueryMetricsStore. All methods are safe for
// concurrent use.
type QueryMetrics struct {
	mu sync.RWMutex

	modeCounts  map[SearchMode]int64
	kindCounts  map[QueryKind]int64
	topTerms    *lru.Cache[string, int64]
	zeroResults *CircularBuffer[string]
	latencies   map[LatencyBucket]int64

	totalQueries    int64
	zeroResultCount int64
	startTime       time.Time

	pending *pendingCounts

	store       QueryMetricsStore
	config      QueryMetricsConfig
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closed      bool
}

// NewQueryMetrics creates a collector with default configuration.
// A nil store keeps everything in memory.
func NewQueryMetrics(store QueryMetricsStore) *QueryMetrics {
	return NewQueryMetricsWithConfig(store, DefaultQueryMetricsConfig())
}

// NewQueryMetricsWithConfig creates a collector with custom configuration.
func NewQueryMetricsWithConfig(store QueryMetricsStore, cfg QueryMetricsConfig) *QueryMetrics {
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = DefaultTopTermsCapacity
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = DefaultZeroResultsCapacity
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)

	m := &QueryMetrics{
		modeCounts:  make(map[SearchMode]int64),
		kindCounts:  make(map[QueryKind]int64),
		topTerms:    topTerms,
		zeroResults: NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		latencies:   make(map[LatencyBucket]int64),
		startTime:   time.Now(),
		pending:     newPendingCounts(),
		store:       store,
		config:      cfg,
		stopCh:      make(chan struct{}),
	}

	if store != nil && cfg.FlushInterval > 0 {
		m.flushTicker = time.NewTicker(cfg.FlushInterval)
		go m.flushLoop()
	}

	return m
}

func (m *QueryMetrics) flushLoop() {
	for {
		select {
		case <-m.flushTicker.C:
			_ = m.Flush()
		case <-m.stopCh:
			return
		}
	}
}

// Record captures metrics from a search query. An event with no Kind is
// classified here. Thread-safe and non-blocking.
func (m *QueryMetrics) Record(event QueryEvent) {
	if event.Kind == "" {
		event.Kind = ClassifyQuery(event.Query)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.modeCounts[event.Mode]++
	m.kindCounts[event.Kind]++
	m.totalQueries++

	terms := ExtractTerms(event.Query)
	for _, term := range terms {
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
	}

	if event.IsZeroResult() {
		m.zeroResults.Add(event.Query)
		m.zeroResultCount++
	}

	bucket := LatencyToBucket(event.Latency)
	m.latencies[bucket]++

	if m.store == nil {
		return
	}
	m.pending.modes[event.Mode]++
	m.pending.kinds[event.Kind]++
	for _, term := range terms {
		m.pending.terms[term]++
	}
	m.pending.latencies[bucket]++
	if event.IsZeroResult() {
		// Bound the backlog so a dead store cannot grow it without limit.
		if len(m.pending.zero) >= m.config.ZeroResultsCapacity {
			m.pending.zero = m.pending.zero[1:]
		}
		m.pending.zero = append(m.pending.zero, zeroResultEntry{query: event.Query, at: event.Timestamp})
	}
}

// Snapshot returns a copy of the current metrics.
func (m *QueryMetrics) Snapshot() *QueryMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	modes := make(map[SearchMode]int64, len(m.modeCounts))
	for k, v := range m.modeCounts {
		modes[k] = v
	}
	kinds := make(map[QueryKind]int64, len(m.kindCounts))
	for k, v := range m.kindCounts {
		kinds[k] = v
	}
	latencies := make(map[LatencyBucket]int64, len(m.latencies))
	for k, v := range m.latencies {
		latencies[k] = v
	}

	terms := make([]TermCount, 0, m.topTerms.Len())
	for _, key := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(key); ok {
			terms = append(terms, TermCount{Term: key, Count: count})
		}
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Term < terms[j].Term
	})

	return &QueryMetricsSnapshot{
		ModeCounts:          modes,
		KindCounts:          kinds,
		TopTerms:            terms,
		ZeroResultQueries:   m.zeroResults.Items(),
		LatencyDistribution: latencies,
		TotalQueries:        m.totalQueries,
		ZeroResultCount:     m.zeroResultCount,
		Since:               m.startTime,
	}
}

// Flush writes the deltas accumulated since the previous successful flush.
// On failure the unsaved portion is folded back so the next flush retries.
// A nil store makes this a no-op.
func (m *QueryMetrics) Flush() error {
	if m.store == nil {
		return nil
	}

	m.mu.Lock()
	p := m.pending
	m.pending = newPendingCounts()
	m.mu.Unlock()

	if p.empty() {
		return nil
	}

	if err := m.persist(p); err != nil {
		m.mu.Lock()
		m.pending.merge(p)
		m.mu.Unlock()
		return fmt.Errorf("flush query metrics: %w", err)
	}
	return nil
}

// persist writes p to the store, clearing each section as it lands so a
// partial failure leaves only the unsaved remainder in p.
func (m *QueryMetrics) persist(p *pendingCounts) error {
	date := time.Now().Format("2006-01-02")

	if len(p.modes) > 0 {
		if err := m.store.SaveModeCounts(date, p.modes); err != nil {
			return err
		}
		p.modes = map[SearchMode]int64{}
	}
	if len(p.kinds) > 0 {
		if err := m.store.SaveKindCounts(date, p.kinds); err != nil {
			return err
		}
		p.kinds = map[QueryKind]int64{}
	}
	if len(p.terms) > 0 {
		if err := m.store.UpsertTermCounts(p.terms); err != nil {
			return err
		}
		p.terms = map[string]int64{}
	}
	if len(p.latencies) > 0 {
		if err := m.store.SaveLatencyCounts(date, p.latencies); err != nil {
			return err
		}
		p.latencies = map[LatencyBucket]int64{}
	}
	for len(p.zero) > 0 {
		e := p.zero[0]
		if err := m.store.AddZeroResultQuery(e.query, e.at); err != nil {
			return err
		}
		p.zero = p.zero[1:]
	}
	return nil
}

// Close stops the background flush, persists what remains, and closes the
// store. Safe to call more than once.
func (m *QueryMetrics) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.flushTicker != nil {
		m.flushTicker.Stop()
		close(m.stopCh)
	}

	var firstErr error
	if err := m.Flush(); err != nil {
		firstErr = err
	}
	if m.store != nil {
		if err := m.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
