package telemetry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// CircularBuffer Tests
// =============================================================================

func TestCircularBuffer_Add_SingleItem(t *testing.T) {
	buf := NewCircularBuffer[string](10)

	buf.Add("query1")

	items := buf.Items()
	assert.Equal(t, 1, len(items))
	assert.Equal(t, "query1", items[0])
}

func TestCircularBuffer_Add_MultipleItems(t *testing.T) {
	buf := NewCircularBuffer[string](10)

	buf.Add("query1")
	buf.Add("query2")
	buf.Add("query3")

	assert.Equal(t, []string{"query1", "query2", "query3"}, buf.Items())
}

func TestCircularBuffer_MaintainsCapacity(t *testing.T) {
	buf := NewCircularBuffer[string](3)

	buf.Add("query1")
	buf.Add("query2")
	buf.Add("query3")
	buf.Add("query4") // evicts query1
	buf.Add("query5") // evicts query2

	assert.Equal(t, []string{"query3", "query4", "query5"}, buf.Items())
}

func TestCircularBuffer_Size(t *testing.T) {
	buf := NewCircularBuffer[string](5)

	assert.Equal(t, 0, buf.Size())

	buf.Add("a")
	assert.Equal(t, 1, buf.Size())

	buf.Add("b")
	buf.Add("c")
	assert.Equal(t, 3, buf.Size())

	buf.Add("d")
	buf.Add("e")
	buf.Add("f") // evicts "a"
	assert.Equal(t, 5, buf.Size())
}

func TestCircularBuffer_EmptyItems(t *testing.T) {
	buf := NewCircularBuffer[string](10)

	items := buf.Items()
	assert.Equal(t, 0, len(items))
	assert.NotNil(t, items)
}

func TestCircularBuffer_Clear(t *testing.T) {
	buf := NewCircularBuffer[string](10)

	buf.Add("query1")
	buf.Add("query2")
	buf.Clear()

	assert.Equal(t, 0, buf.Size())
	assert.Equal(t, 0, len(buf.Items()))
}

// =============================================================================
// LatencyBucket Tests
// =============================================================================

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		latency  time.Duration
		expected LatencyBucket
	}{
		{5 * time.Millisecond, BucketLT10},
		{9 * time.Millisecond, BucketLT10},
		{10 * time.Millisecond, BucketLT50},
		{49 * time.Millisecond, BucketLT50},
		{50 * time.Millisecond, BucketLT100},
		{99 * time.Millisecond, BucketLT100},
		{100 * time.Millisecond, BucketLT500},
		{499 * time.Millisecond, BucketLT500},
		{500 * time.Millisecond, BucketLT1000},
		{999 * time.Millisecond, BucketLT1000},
		{time.Second, BucketGT1000},
		{5 * time.Second, BucketGT1000},
	}

	for _, tt := range tests {
		t.Run(tt.latency.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, LatencyToBucket(tt.latency))
		})
	}
}

// =============================================================================
// QueryMetrics Tests
// =============================================================================

func TestQueryMetrics_Record_CountsModesAndKinds(t *testing.T) {
	m := NewQueryMetrics(nil) // nil store = in-memory only
	defer func() { _ = m.Close() }()

	// Kind is left empty so Record classifies each query itself.
	m.Record(QueryEvent{Query: "Alice Chen", Mode: ModeHybrid, ResultCount: 2, Latency: 5 * time.Millisecond})
	m.Record(QueryEvent{Query: "how do I reset my password", Mode: ModeKeyword, ResultCount: 3, Latency: 5 * time.Millisecond})
	m.Record(QueryEvent{Query: "kubernetes migration", Mode: ModeHybrid, ResultCount: 1, Latency: 5 * time.Millisecond})

	snapshot := m.Snapshot()
	assert.Equal(t, int64(2), snapshot.ModeCounts[ModeHybrid])
	assert.Equal(t, int64(1), snapshot.ModeCounts[ModeKeyword])
	assert.Equal(t, int64(1), snapshot.KindCounts[KindPerson])
	assert.Equal(t, int64(1), snapshot.KindCounts[KindTopic])
	assert.Equal(t, int64(1), snapshot.KindCounts[KindGeneral])
	assert.Equal(t, int64(3), snapshot.TotalQueries)
}

func TestQueryMetrics_Record_ExplicitKindWins(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer func() { _ = m.Close() }()

	m.Record(QueryEvent{Query: "Alice Chen", Mode: ModeHybrid, Kind: KindTopic, ResultCount: 1, Latency: time.Millisecond})

	snapshot := m.Snapshot()
	assert.Equal(t, int64(1), snapshot.KindCounts[KindTopic])
	assert.Equal(t, int64(0), snapshot.KindCounts[KindPerson])
}

func TestQueryMetrics_Record_TracksTopTerms(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer func() { _ = m.Close() }()

	m.Record(QueryEvent{Query: "vpn access", Mode: ModeHybrid, ResultCount: 5, Latency: 10 * time.Millisecond})
	m.Record(QueryEvent{Query: "vpn outage", Mode: ModeHybrid, ResultCount: 3, Latency: 10 * time.Millisecond})
	m.Record(QueryEvent{Query: "vpn renewal", Mode: ModeHybrid, ResultCount: 2, Latency: 10 * time.Millisecond})
	m.Record(QueryEvent{Query: "outage escalation", Mode: ModeHybrid, ResultCount: 1, Latency: 10 * time.Millisecond})

	snapshot := m.Snapshot()

	// "vpn" appears three times and leads the list.
	require.NotEmpty(t, snapshot.TopTerms)
	assert.Equal(t, "vpn", snapshot.TopTerms[0].Term)
	assert.Equal(t, int64(3), snapshot.TopTerms[0].Count)
}

func TestQueryMetrics_Snapshot_TopTermsSorted(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer func() { _ = m.Close() }()

	m.Record(QueryEvent{Query: "vpn access", Mode: ModeKeyword, ResultCount: 1, Latency: time.Millisecond})
	m.Record(QueryEvent{Query: "vpn office", Mode: ModeKeyword, ResultCount: 1, Latency: time.Millisecond})

	snapshot := m.Snapshot()

	// Count descending, then term ascending for ties.
	expected := []TermCount{
		{Term: "vpn", Count: 2},
		{Term: "access", Count: 1},
		{Term: "office", Count: 1},
	}
	assert.Equal(t, expected, snapshot.TopTerms)
}

func TestQueryMetrics_Record_CapturesZeroResults(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer func() { _ = m.Close() }()

	m.Record(QueryEvent{Query: "ghost employee", Mode: ModeHybrid, ResultCount: 0, Latency: 30 * time.Millisecond})
	m.Record(QueryEvent{Query: "Alice Chen", Mode: ModeHybrid, ResultCount: 5, Latency: 20 * time.Millisecond})
	m.Record(QueryEvent{Query: "retired mascot", Mode: ModeKeyword, ResultCount: 0, Latency: 15 * time.Millisecond})

	snapshot := m.Snapshot()
	assert.Equal(t, int64(2), snapshot.ZeroResultCount)
	assert.Equal(t, 2, len(snapshot.ZeroResultQueries))
	assert.Contains(t, snapshot.ZeroResultQueries, "ghost employee")
	assert.Contains(t, snapshot.ZeroResultQueries, "retired mascot")
}

func TestQueryMetrics_Record_BucketsLatency(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer func() { _ = m.Close() }()

	m.Record(QueryEvent{Query: "fast", Mode: ModeKeyword, ResultCount: 1, Latency: 5 * time.Millisecond})
	m.Record(QueryEvent{Query: "medium1", Mode: ModeKeyword, ResultCount: 1, Latency: 25 * time.Millisecond})
	m.Record(QueryEvent{Query: "medium2", Mode: ModeKeyword, ResultCount: 1, Latency: 35 * time.Millisecond})
	m.Record(QueryEvent{Query: "slow", Mode: ModeKeyword, ResultCount: 1, Latency: 200 * time.Millisecond})
	m.Record(QueryEvent{Query: "slower", Mode: ModeKeyword, ResultCount: 1, Latency: 700 * time.Millisecond})
	m.Record(QueryEvent{Query: "slowest", Mode: ModeKeyword, ResultCount: 1, Latency: 2 * time.Second})

	snapshot := m.Snapshot()
	assert.Equal(t, int64(1), snapshot.LatencyDistribution[BucketLT10])
	assert.Equal(t, int64(2), snapshot.LatencyDistribution[BucketLT50])
	assert.Equal(t, int64(1), snapshot.LatencyDistribution[BucketLT500])
	assert.Equal(t, int64(1), snapshot.LatencyDistribution[BucketLT1000])
	assert.Equal(t, int64(1), snapshot.LatencyDistribution[BucketGT1000])
}

func TestQueryMetrics_Concurrent_ThreadSafe(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer func() { _ = m.Close() }()

	var wg sync.WaitGroup
	numGoroutines := 100
	eventsPerGoroutine := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerGoroutine; j++ {
				m.Record(QueryEvent{
					Query:       "vpn outage",
					Mode:        ModeHybrid,
					ResultCount: 5,
					Latency:     20 * time.Millisecond,
				})
			}
		}()
	}

	wg.Wait()

	snapshot := m.Snapshot()
	assert.Equal(t, int64(numGoroutines*eventsPerGoroutine), snapshot.TotalQueries)
}

func TestQueryMetrics_ZeroResultBuffer_MaintainsCapacity(t *testing.T) {
	m := NewQueryMetricsWithConfig(nil, QueryMetricsConfig{
		TopTermsCapacity:    100,
		ZeroResultsCapacity: 5,
		FlushInterval:       0,
	})
	defer func() { _ = m.Close() }()

	for i := 0; i < 10; i++ {
		m.Record(QueryEvent{
			Query:       "miss" + string(rune('A'+i)),
			Mode:        ModeHybrid,
			ResultCount: 0,
			Latency:     10 * time.Millisecond,
		})
	}

	snapshot := m.Snapshot()
	assert.Equal(t, 5, len(snapshot.ZeroResultQueries))
	assert.Contains(t, snapshot.ZeroResultQueries, "missF")
	assert.Contains(t, snapshot.ZeroResultQueries, "missJ")
	assert.NotContains(t, snapshot.ZeroResultQueries, "missA")
}

func TestQueryMetrics_TopTerms_LRUEviction(t *testing.T) {
	m := NewQueryMetricsWithConfig(nil, QueryMetricsConfig{
		TopTermsCapacity:    5,
		ZeroResultsCapacity: 100,
		FlushInterval:       0,
	})
	defer func() { _ = m.Close() }()

	m.Record(QueryEvent{Query: "alpha beta", Mode: ModeHybrid, ResultCount: 1, Latency: 10 * time.Millisecond})
	m.Record(QueryEvent{Query: "gamma delta", Mode: ModeHybrid, ResultCount: 1, Latency: 10 * time.Millisecond})
	m.Record(QueryEvent{Query: "epsilon zeta", Mode: ModeHybrid, ResultCount: 1, Latency: 10 * time.Millisecond})
	m.Record(QueryEvent{Query: "eta theta", Mode: ModeHybrid, ResultCount: 1, Latency: 10 * time.Millisecond})
	m.Record(QueryEvent{Query: "iota kappa", Mode: ModeHybrid, ResultCount: 1, Latency: 10 * time.Millisecond})

	snapshot := m.Snapshot()
	assert.LessOrEqual(t, len(snapshot.TopTerms), 5)
}

// =============================================================================
// Term Extraction Tests
// =============================================================================

func TestExtractTerms(t *testing.T) {
	tests := []struct {
		query    string
		expected []string
	}{
		{"vpn setup", []string{"vpn", "setup"}},
		{"FindAlice", []string{"findalice"}}, // lowercased
		{"  spaces  around  ", []string{"spaces", "around"}},
		{"", nil},
		{"a", nil},
		{"ab", nil},
		{"abc", []string{"abc"}}, // minimum length 3
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractTerms(tt.query))
		})
	}
}

// =============================================================================
// QueryEvent Tests
// =============================================================================

func TestQueryEvent_IsZeroResult(t *testing.T) {
	assert.True(t, QueryEvent{Query: "missing", ResultCount: 0}.IsZeroResult())
	assert.False(t, QueryEvent{Query: "found", ResultCount: 5}.IsZeroResult())
}

// =============================================================================
// Snapshot Tests
// =============================================================================

func TestQueryMetricsSnapshot_ZeroResultPercentage(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer func() { _ = m.Close() }()

	for i := 0; i < 8; i++ {
		m.Record(QueryEvent{Query: "found", Mode: ModeHybrid, ResultCount: 5, Latency: 10 * time.Millisecond})
	}
	for i := 0; i < 2; i++ {
		m.Record(QueryEvent{Query: "missed", Mode: ModeHybrid, ResultCount: 0, Latency: 10 * time.Millisecond})
	}

	snapshot := m.Snapshot()
	assert.InDelta(t, 20.0, snapshot.ZeroResultPercentage(), 0.01)
}

func TestQueryMetricsSnapshot_ZeroResultPercentage_NoQueries(t *testing.T) {
	s := &QueryMetricsSnapshot{}
	assert.Equal(t, 0.0, s.ZeroResultPercentage())
}

// =============================================================================
// Flush Tests
// =============================================================================

// recordingStore is an in-memory QueryMetricsStore that can be told to
// fail its next calls.
type recordingStore struct {
	mu        sync.Mutex
	failures  int
	modes     map[SearchMode]int64
	kinds     map[QueryKind]int64
	terms     map[string]int64
	latencies map[LatencyBucket]int64
	zero      []string
	closed    bool
}

func newRecordingStore() *recordingStore {
	return &recordingStore{
		modes:     make(map[SearchMode]int64),
		kinds:     make(map[QueryKind]int64),
		terms:     make(map[string]int64),
		latencies: make(map[LatencyBucket]int64),
	}
}

func (r *recordingStore) failNext() error {
	if r.failures > 0 {
		r.failures--
		return errors.New("store unavailable")
	}
	return nil
}

func (r *recordingStore) SaveModeCounts(_ string, counts map[SearchMode]int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failNext(); err != nil {
		return err
	}
	for k, v := range counts {
		r.modes[k] += v
	}
	return nil
}

func (r *recordingStore) GetModeCounts(_, _ string) (map[SearchMode]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[SearchMode]int64, len(r.modes))
	for k, v := range r.modes {
		out[k] = v
	}
	return out, nil
}

func (r *recordingStore) SaveKindCounts(_ string, counts map[QueryKind]int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failNext(); err != nil {
		return err
	}
	for k, v := range counts {
		r.kinds[k] += v
	}
	return nil
}

func (r *recordingStore) GetKindCounts(_, _ string) (map[QueryKind]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[QueryKind]int64, len(r.kinds))
	for k, v := range r.kinds {
		out[k] = v
	}
	return out, nil
}

func (r *recordingStore) UpsertTermCounts(terms map[string]int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failNext(); err != nil {
		return err
	}
	for k, v := range terms {
		r.terms[k] += v
	}
	return nil
}

func (r *recordingStore) GetTopTerms(_ int) ([]TermCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TermCount, 0, len(r.terms))
	for term, count := range r.terms {
		out = append(out, TermCount{Term: term, Count: count})
	}
	return out, nil
}

func (r *recordingStore) AddZeroResultQuery(query string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failNext(); err != nil {
		return err
	}
	r.zero = append(r.zero, query)
	return nil
}

func (r *recordingStore) GetZeroResultQueries(_ int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.zero...), nil
}

func (r *recordingStore) SaveLatencyCounts(_ string, counts map[LatencyBucket]int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failNext(); err != nil {
		return err
	}
	for k, v := range counts {
		r.latencies[k] += v
	}
	return nil
}

func (r *recordingStore) GetLatencyCounts(_, _ string) (map[LatencyBucket]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[LatencyBucket]int64, len(r.latencies))
	for k, v := range r.latencies {
		out[k] = v
	}
	return out, nil
}

func (r *recordingStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingStore) modeCount(mode SearchMode) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.modes[mode]
}

func TestQueryMetrics_Flush_WritesDeltasOnce(t *testing.T) {
	fake := newRecordingStore()
	m := NewQueryMetricsWithConfig(fake, QueryMetricsConfig{FlushInterval: 0})

	m.Record(QueryEvent{Query: "Alice Chen", Mode: ModeHybrid, ResultCount: 2, Latency: 5 * time.Millisecond})
	m.Record(QueryEvent{Query: "vpn outage", Mode: ModeHybrid, ResultCount: 1, Latency: 5 * time.Millisecond})
	m.Record(QueryEvent{Query: "ghost employee", Mode: ModeHybrid, ResultCount: 0, Latency: 5 * time.Millisecond})

	require.NoError(t, m.Flush())
	// A second flush with nothing new must not re-save the same counts.
	require.NoError(t, m.Flush())

	assert.Equal(t, int64(3), fake.modes[ModeHybrid])
	assert.Equal(t, []string{"ghost employee"}, fake.zero)

	m.Record(QueryEvent{Query: "office map", Mode: ModeKeyword, ResultCount: 1, Latency: 5 * time.Millisecond})
	require.NoError(t, m.Flush())

	assert.Equal(t, int64(3), fake.modes[ModeHybrid])
	assert.Equal(t, int64(1), fake.modes[ModeKeyword])

	require.NoError(t, m.Close())
}

func TestQueryMetrics_Flush_FailureRequeues(t *testing.T) {
	fake := newRecordingStore()
	fake.failures = 1
	m := NewQueryMetricsWithConfig(fake, QueryMetricsConfig{FlushInterval: 0})
	defer func() { _ = m.Close() }()

	m.Record(QueryEvent{Query: "Alice Chen", Mode: ModeHybrid, ResultCount: 2, Latency: 5 * time.Millisecond})

	require.Error(t, m.Flush())
	assert.Equal(t, int64(0), fake.modes[ModeHybrid])

	// The failed delta is retried by the next flush.
	require.NoError(t, m.Flush())
	assert.Equal(t, int64(1), fake.modes[ModeHybrid])
	assert.Equal(t, int64(1), fake.kinds[KindPerson])
	assert.Equal(t, int64(1), fake.terms["alice"])
	assert.Equal(t, int64(1), fake.terms["chen"])
}

func TestQueryMetrics_Close_FlushesAndClosesStore(t *testing.T) {
	fake := newRecordingStore()
	m := NewQueryMetricsWithConfig(fake, QueryMetricsConfig{FlushInterval: 0})

	m.Record(QueryEvent{Query: "vpn setup", Mode: ModeKeyword, ResultCount: 4, Latency: 5 * time.Millisecond})

	require.NoError(t, m.Close())
	assert.Equal(t, int64(1), fake.modes[ModeKeyword])
	assert.True(t, fake.closed)

	// Idempotent
	require.NoError(t, m.Close())
}

func TestQueryMetrics_BackgroundFlush(t *testing.T) {
	fake := newRecordingStore()
	m := NewQueryMetricsWithConfig(fake, QueryMetricsConfig{FlushInterval: 10 * time.Millisecond})
	defer func() { _ = m.Close() }()

	m.Record(QueryEvent{Query: "vpn outage", Mode: ModeHybrid, ResultCount: 1, Latency: 5 * time.Millisecond})

	require.Eventually(t, func() bool {
		return fake.modeCount(ModeHybrid) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestQueryMetrics_NilStore_NoPendingAccumulation(t *testing.T) {
	m := NewQueryMetrics(nil)
	defer func() { _ = m.Close() }()

	m.Record(QueryEvent{Query: "vpn outage", Mode: ModeHybrid, ResultCount: 1, Latency: 5 * time.Millisecond})

	m.mu.RLock()
	defer m.mu.RUnlock()
	assert.True(t, m.pending.empty())
}

// =============================================================================
// Integration Tests
// =============================================================================

func TestQueryMetrics_FullLifecycle(t *testing.T) {
	m := NewQueryMetrics(nil)

	m.Record(QueryEvent{Query: "Alice Chen", Mode: ModeHybrid, ResultCount: 10, Latency: 25 * time.Millisecond})
	m.Record(QueryEvent{Query: "vpn setup", Mode: ModeKeyword, ResultCount: 3, Latency: 5 * time.Millisecond})
	m.Record(QueryEvent{Query: "ghost employee", Mode: ModeVector, ResultCount: 0, Latency: 100 * time.Millisecond})

	snapshot := m.Snapshot()
	require.NotNil(t, snapshot)
	assert.Equal(t, int64(3), snapshot.TotalQueries)
	assert.Equal(t, 1, len(snapshot.ZeroResultQueries))
	assert.False(t, snapshot.Since.IsZero())

	require.NoError(t, m.Close())

	// After close, Record is a no-op rather than a panic.
	m.Record(QueryEvent{Query: "after close", Mode: ModeHybrid, ResultCount: 1, Latency: 10 * time.Millisecond})
	assert.Equal(t, int64(3), m.Snapshot().TotalQueries)
}
