package telemetry

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)")
	require.NoError(t, err)

	require.NoError(t, InitTelemetrySchema(db))

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

func TestSQLiteMetricsStore_SaveModeCounts(t *testing.T) {
	db := setupTestDB(t)
	store, err := NewSQLiteMetricsStore(db)
	require.NoError(t, err)

	counts := map[SearchMode]int64{
		ModeHybrid:  10,
		ModeKeyword: 5,
		ModeVector:  3,
	}

	require.NoError(t, store.SaveModeCounts("2026-08-20", counts))

	result, err := store.GetModeCounts("2026-08-20", "2026-08-20")
	require.NoError(t, err)

	assert.Equal(t, int64(10), result[ModeHybrid])
	assert.Equal(t, int64(5), result[ModeKeyword])
	assert.Equal(t, int64(3), result[ModeVector])
}

func TestSQLiteMetricsStore_SaveModeCounts_Incremental(t *testing.T) {
	db := setupTestDB(t)
	store, err := NewSQLiteMetricsStore(db)
	require.NoError(t, err)

	require.NoError(t, store.SaveModeCounts("2026-08-20", map[SearchMode]int64{ModeHybrid: 10}))
	require.NoError(t, store.SaveModeCounts("2026-08-20", map[SearchMode]int64{ModeHybrid: 5}))

	result, err := store.GetModeCounts("2026-08-20", "2026-08-20")
	require.NoError(t, err)

	assert.Equal(t, int64(15), result[ModeHybrid])
}

func TestSQLiteMetricsStore_SaveKindCounts(t *testing.T) {
	db := setupTestDB(t)
	store, err := NewSQLiteMetricsStore(db)
	require.NoError(t, err)

	counts := map[QueryKind]int64{
		KindPerson:  7,
		KindTopic:   4,
		KindGeneral: 2,
	}

	require.NoError(t, store.SaveKindCounts("2026-08-20", counts))

	result, err := store.GetKindCounts("2026-08-20", "2026-08-20")
	require.NoError(t, err)

	assert.Equal(t, int64(7), result[KindPerson])
	assert.Equal(t, int64(4), result[KindTopic])
	assert.Equal(t, int64(2), result[KindGeneral])
}

func TestSQLiteMetricsStore_UpsertTermCounts(t *testing.T) {
	db := setupTestDB(t)
	store, err := NewSQLiteMetricsStore(db)
	require.NoError(t, err)

	terms := map[string]int64{
		"vpn":        10,
		"alice":      5,
		"onboarding": 3,
	}

	require.NoError(t, store.UpsertTermCounts(terms))

	result, err := store.GetTopTerms(10)
	require.NoError(t, err)

	require.Len(t, result, 3)
	assert.Equal(t, "vpn", result[0].Term)
	assert.Equal(t, int64(10), result[0].Count)
}

func TestSQLiteMetricsStore_UpsertTermCounts_Incremental(t *testing.T) {
	db := setupTestDB(t)
	store, err := NewSQLiteMetricsStore(db)
	require.NoError(t, err)

	require.NoError(t, store.UpsertTermCounts(map[string]int64{"vpn": 10}))
	require.NoError(t, store.UpsertTermCounts(map[string]int64{"vpn": 5}))

	result, err := store.GetTopTerms(1)
	require.NoError(t, err)

	require.Len(t, result, 1)
	assert.Equal(t, int64(15), result[0].Count)
}

func TestSQLiteMetricsStore_GetTopTerms_Limit(t *testing.T) {
	db := setupTestDB(t)
	store, err := NewSQLiteMetricsStore(db)
	require.NoError(t, err)

	terms := map[string]int64{
		"a": 1, "b": 2, "c": 3, "d": 4, "e": 5,
	}
	require.NoError(t, store.UpsertTermCounts(terms))

	result, err := store.GetTopTerms(3)
	require.NoError(t, err)

	require.Len(t, result, 3)
	assert.Equal(t, "e", result[0].Term)
	assert.Equal(t, "d", result[1].Term)
	assert.Equal(t, "c", result[2].Term)
}

func TestSQLiteMetricsStore_ZeroResultQueries(t *testing.T) {
	db := setupTestDB(t)
	store, err := NewSQLiteMetricsStore(db)
	require.NoError(t, err)

	now := time.Now()

	require.NoError(t, store.AddZeroResultQuery("ghost employee", now))
	require.NoError(t, store.AddZeroResultQuery("retired mascot", now.Add(time.Minute)))

	result, err := store.GetZeroResultQueries(10)
	require.NoError(t, err)

	require.Len(t, result, 2)
	// Most recent first
	assert.Equal(t, "retired mascot", result[0])
	assert.Equal(t, "ghost employee", result[1])
}

func TestSQLiteMetricsStore_ZeroResultQueries_Trimmed(t *testing.T) {
	db := setupTestDB(t)
	store, err := NewSQLiteMetricsStore(db)
	require.NoError(t, err)

	now := time.Now()

	for i := 0; i < maxZeroResultRows+5; i++ {
		err := store.AddZeroResultQuery("query"+string(rune('A'+i%26)), now.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}

	result, err := store.GetZeroResultQueries(maxZeroResultRows * 2)
	require.NoError(t, err)

	assert.Len(t, result, maxZeroResultRows)
}

func TestSQLiteMetricsStore_LatencyCounts(t *testing.T) {
	db := setupTestDB(t)
	store, err := NewSQLiteMetricsStore(db)
	require.NoError(t, err)

	counts := map[LatencyBucket]int64{
		BucketLT10:   100,
		BucketLT50:   50,
		BucketLT100:  25,
		BucketLT500:  10,
		BucketLT1000: 5,
		BucketGT1000: 1,
	}

	require.NoError(t, store.SaveLatencyCounts("2026-08-20", counts))

	result, err := store.GetLatencyCounts("2026-08-20", "2026-08-20")
	require.NoError(t, err)

	assert.Equal(t, int64(100), result[BucketLT10])
	assert.Equal(t, int64(50), result[BucketLT50])
	assert.Equal(t, int64(25), result[BucketLT100])
	assert.Equal(t, int64(10), result[BucketLT500])
	assert.Equal(t, int64(5), result[BucketLT1000])
	assert.Equal(t, int64(1), result[BucketGT1000])
}

func TestSQLiteMetricsStore_LatencyCounts_Incremental(t *testing.T) {
	db := setupTestDB(t)
	store, err := NewSQLiteMetricsStore(db)
	require.NoError(t, err)

	require.NoError(t, store.SaveLatencyCounts("2026-08-20", map[LatencyBucket]int64{BucketLT10: 10}))
	require.NoError(t, store.SaveLatencyCounts("2026-08-20", map[LatencyBucket]int64{BucketLT10: 5}))

	result, err := store.GetLatencyCounts("2026-08-20", "2026-08-20")
	require.NoError(t, err)

	assert.Equal(t, int64(15), result[BucketLT10])
}

func TestSQLiteMetricsStore_DateRange(t *testing.T) {
	db := setupTestDB(t)
	store, err := NewSQLiteMetricsStore(db)
	require.NoError(t, err)

	require.NoError(t, store.SaveModeCounts("2026-08-19", map[SearchMode]int64{ModeHybrid: 10}))
	require.NoError(t, store.SaveModeCounts("2026-08-20", map[SearchMode]int64{ModeHybrid: 20}))
	require.NoError(t, store.SaveModeCounts("2026-08-21", map[SearchMode]int64{ModeHybrid: 30}))

	result, err := store.GetModeCounts("2026-08-19", "2026-08-20")
	require.NoError(t, err)

	assert.Equal(t, int64(30), result[ModeHybrid]) // 10 + 20
}

func TestNewSQLiteMetricsStore_NilDB(t *testing.T) {
	_, err := NewSQLiteMetricsStore(nil)
	assert.Error(t, err)
}

func TestSQLiteMetricsStore_EmptyTerms(t *testing.T) {
	db := setupTestDB(t)
	store, err := NewSQLiteMetricsStore(db)
	require.NoError(t, err)

	require.NoError(t, store.UpsertTermCounts(map[string]int64{}))
}

func TestSQLiteMetricsStore_CloseLeavesHandleOpen(t *testing.T) {
	db := setupTestDB(t)
	store, err := NewSQLiteMetricsStore(db)
	require.NoError(t, err)

	require.NoError(t, store.SaveModeCounts("2026-08-20", map[SearchMode]int64{ModeHybrid: 1}))
	require.NoError(t, store.Close())

	// The shared handle stays usable after the metrics store closes.
	var one int
	require.NoError(t, db.QueryRow("SELECT 1").Scan(&one))
	assert.Equal(t, 1, one)
}

func TestQueryMetrics_FlushPersistsToSQLite(t *testing.T) {
	db := setupTestDB(t)
	store, err := NewSQLiteMetricsStore(db)
	require.NoError(t, err)

	m := NewQueryMetricsWithConfig(store, QueryMetricsConfig{FlushInterval: 0})

	m.Record(QueryEvent{Query: "Alice Chen", Mode: ModeHybrid, ResultCount: 2, Latency: 5 * time.Millisecond})
	m.Record(QueryEvent{Query: "vpn outage", Mode: ModeHybrid, ResultCount: 1, Latency: 20 * time.Millisecond})
	m.Record(QueryEvent{Query: "ghost employee", Mode: ModeKeyword, ResultCount: 0, Latency: 30 * time.Millisecond})

	require.NoError(t, m.Flush())

	today := time.Now().Format("2006-01-02")

	modes, err := store.GetModeCounts(today, today)
	require.NoError(t, err)
	assert.Equal(t, int64(2), modes[ModeHybrid])
	assert.Equal(t, int64(1), modes[ModeKeyword])

	kinds, err := store.GetKindCounts(today, today)
	require.NoError(t, err)
	assert.Equal(t, int64(1), kinds[KindPerson])

	terms, err := store.GetTopTerms(10)
	require.NoError(t, err)
	termSet := make(map[string]int64, len(terms))
	for _, tc := range terms {
		termSet[tc.Term] = tc.Count
	}
	assert.Equal(t, int64(1), termSet["vpn"])
	assert.Equal(t, int64(1), termSet["alice"])

	missed, err := store.GetZeroResultQueries(10)
	require.NoError(t, err)
	assert.Equal(t, []string{"ghost employee"}, missed)

	// Flushing again without new events must not inflate the counts.
	require.NoError(t, m.Flush())
	modes, err = store.GetModeCounts(today, today)
	require.NoError(t, err)
	assert.Equal(t, int64(2), modes[ModeHybrid])

	require.NoError(t, m.Close())
}
