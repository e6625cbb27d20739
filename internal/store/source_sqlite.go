package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // CGo-free SQLite driver

	"github.com/Aman-CERP/orgmcp/internal/telemetry"
)

// maxQueryLogEntries caps the search_queries table (FIFO, newest kept).
const maxQueryLogEntries = 1000

// SQLiteSourceStore implements SourceStore backed by modernc.org/sqlite.
// It holds the authoritative profile and knowledge records; the indexes are
// derived from it and can always be rebuilt.
type SQLiteSourceStore struct {
	db     *sql.DB
	path   string
	mu     sync.Mutex // guards closed
	closed bool
}

// Compile-time interface check
var _ SourceStore = (*SQLiteSourceStore)(nil)

// NewSourceStore opens (or creates) the source database at path.
// An empty path opens an in-memory database, which is handy for tests.
// A database that fails its integrity check is quarantined (renamed aside,
// never deleted; this data is authoritative) and a fresh one is created.
func NewSourceStore(path string) (*SQLiteSourceStore, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}

	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		if _, err := os.Stat(dsn); err == nil {
			if verr := validateSourceDB(dsn); verr != nil {
				quarantineCorruptDB(dsn, verr)
			}
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single connection: SQLite serializes writers anyway, and one connection
	// means an in-memory database is not silently duplicated per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteSourceStore{db: db, path: dsn}

	if err := s.applyPragmas(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := telemetry.InitTelemetrySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLiteSourceStore) applyPragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-65536",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("apply %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *SQLiteSourceStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT '',
		department TEXT NOT NULL DEFAULT '',
		bio TEXT NOT NULL DEFAULT '',
		contact TEXT NOT NULL DEFAULT '{}',
		source_url TEXT UNIQUE,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_profiles_name ON profiles(name);
	CREATE INDEX IF NOT EXISTS idx_profiles_department ON profiles(department);

	CREATE TABLE IF NOT EXISTS knowledge (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		body TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		source_url TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_knowledge_category ON knowledge(category);
	CREATE INDEX IF NOT EXISTS idx_knowledge_source_url ON knowledge(source_url);

	CREATE TABLE IF NOT EXISTS search_queries (
		id TEXT PRIMARY KEY,
		query TEXT NOT NULL,
		mode TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT '',
		result_count INTEGER NOT NULL DEFAULT 0,
		top_score REAL NOT NULL DEFAULT 0,
		latency_ms INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := s.db.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (?)`, CurrentSchemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return nil
}

// validateSourceDB opens the database read-only and runs an integrity check.
func validateSourceDB(path string) error {
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check returned %q", result)
	}
	return nil
}

// quarantineCorruptDB moves a corrupt database aside so a fresh one can be
// created. The file is renamed, not deleted: unlike the indexes this data
// cannot be rebuilt, so an operator may still want to recover it.
func quarantineCorruptDB(path string, reason error) {
	slog.Warn("source_db_corrupt",
		slog.String("path", path),
		slog.String("reason", reason.Error()))

	quarantine := fmt.Sprintf("%s.corrupt-%s", path, time.Now().Format("20060102-150405"))
	if err := os.Rename(path, quarantine); err != nil {
		slog.Error("source_db_quarantine_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		_ = os.Remove(path)
	} else {
		slog.Info("source_db_quarantined", slog.String("moved_to", quarantine))
	}

	// WAL siblings belong to the old file
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(path + suffix)
	}
}

const profileColumns = `id, name, role, department, bio, contact, source_url, metadata, created_at, updated_at`

// SaveProfile upserts a profile keyed by id. A missing id is minted. When the
// profile carries a source URL already present in the table, the existing row
// is updated in place and the profile's ID is rewritten to match it, so
// re-imports of the same source never create duplicates.
func (s *SQLiteSourceStore) SaveProfile(ctx context.Context, profile *Profile) error {
	if profile == nil {
		return fmt.Errorf("profile is required")
	}
	if profile.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	contact, err := marshalStringMap(profile.Contact)
	if err != nil {
		return fmt.Errorf("encode contact: %w", err)
	}
	metadata, err := marshalStringMap(profile.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if profile.SourceURL != "" {
		var existingID string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM profiles WHERE source_url = ?`, profile.SourceURL).Scan(&existingID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// first import of this source
		case err != nil:
			return fmt.Errorf("look up source_url: %w", err)
		default:
			profile.ID = existingID
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO profiles (`+profileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			department = excluded.department,
			bio = excluded.bio,
			contact = excluded.contact,
			source_url = excluded.source_url,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`, profile.ID, profile.Name, profile.Role, profile.Department, profile.Bio,
		contact, nullableString(profile.SourceURL), metadata, profile.CreatedAt, profile.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetProfile returns the profile with the given id, or nil when absent.
func (s *SQLiteSourceStore) GetProfile(ctx context.Context, id string) (*Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id)
	profile, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return profile, nil
}

// GetProfileBySourceURL returns the profile imported from url, or nil.
func (s *SQLiteSourceStore) GetProfileBySourceURL(ctx context.Context, url string) (*Profile, error) {
	if url == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE source_url = ?`, url)
	profile, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile by source_url: %w", err)
	}
	return profile, nil
}

// ListProfiles returns all profiles ordered by name, then id.
func (s *SQLiteSourceStore) ListProfiles(ctx context.Context) ([]*Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var profiles []*Profile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, profile)
	}
	return profiles, rows.Err()
}

// DeleteProfile removes the profile with the given id, reporting whether a
// row was deleted.
func (s *SQLiteSourceStore) DeleteProfile(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete profile: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// CountProfiles returns the number of stored profiles.
func (s *SQLiteSourceStore) CountProfiles(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count profiles: %w", err)
	}
	return count, nil
}

const knowledgeColumns = `id, title, body, category, source_url, metadata, created_at, updated_at`

// SaveKnowledge upserts a knowledge entry keyed by id. A missing id is minted.
func (s *SQLiteSourceStore) SaveKnowledge(ctx context.Context, entry *Knowledge) error {
	if entry == nil {
		return fmt.Errorf("knowledge entry is required")
	}
	if entry.Title == "" && entry.Body == "" {
		return fmt.Errorf("knowledge entry needs a title or a body")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	metadata, err := marshalStringMap(entry.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO knowledge (`+knowledgeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			body = excluded.body,
			category = excluded.category,
			source_url = excluded.source_url,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`, entry.ID, entry.Title, entry.Body, entry.Category,
		nullableString(entry.SourceURL), metadata, entry.CreatedAt, entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save knowledge: %w", err)
	}
	return nil
}

// GetKnowledge returns the knowledge entry with the given id, or nil when absent.
func (s *SQLiteSourceStore) GetKnowledge(ctx context.Context, id string) (*Knowledge, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+knowledgeColumns+` FROM knowledge WHERE id = ?`, id)
	entry, err := scanKnowledge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get knowledge: %w", err)
	}
	return entry, nil
}

// GetKnowledgeBySourceURL returns the first knowledge entry imported from url, or nil.
func (s *SQLiteSourceStore) GetKnowledgeBySourceURL(ctx context.Context, url string) (*Knowledge, error) {
	if url == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+knowledgeColumns+` FROM knowledge WHERE source_url = ? ORDER BY created_at LIMIT 1`, url)
	entry, err := scanKnowledge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get knowledge by source_url: %w", err)
	}
	return entry, nil
}

// ListKnowledge returns all knowledge entries ordered by title, then id.
func (s *SQLiteSourceStore) ListKnowledge(ctx context.Context) ([]*Knowledge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+knowledgeColumns+` FROM knowledge ORDER BY title, id`)
	if err != nil {
		return nil, fmt.Errorf("list knowledge: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*Knowledge
	for rows.Next() {
		entry, err := scanKnowledge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan knowledge: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// DeleteKnowledge removes the knowledge entry with the given id, reporting
// whether a row was deleted.
func (s *SQLiteSourceStore) DeleteKnowledge(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM knowledge WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete knowledge: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// CountKnowledge returns the number of stored knowledge entries.
func (s *SQLiteSourceStore) CountKnowledge(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count knowledge: %w", err)
	}
	return count, nil
}

// RecordQuery appends a query log entry and trims the log to the newest
// maxQueryLogEntries rows.
func (s *SQLiteSourceStore) RecordQuery(ctx context.Context, entry *QueryLogEntry) error {
	if entry == nil {
		return fmt.Errorf("query log entry is required")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_queries (id, query, mode, kind, result_count, top_score, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.Query, entry.Mode, entry.Kind, entry.ResultCount, entry.TopScore, entry.LatencyMS, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("record query: %w", err)
	}

	// rowid preserves insertion order even when created_at ties
	_, err = s.db.ExecContext(ctx, `
		DELETE FROM search_queries
		WHERE rowid NOT IN (
			SELECT rowid FROM search_queries
			ORDER BY rowid DESC
			LIMIT ?
		)
	`, maxQueryLogEntries)
	if err != nil {
		return fmt.Errorf("trim query log: %w", err)
	}
	return nil
}

// RecentQueries returns the newest limit query log entries, newest first.
func (s *SQLiteSourceStore) RecentQueries(ctx context.Context, limit int) ([]*QueryLogEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query, mode, kind, result_count, top_score, latency_ms, created_at
		FROM search_queries
		ORDER BY rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent queries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*QueryLogEntry
	for rows.Next() {
		var e QueryLogEntry
		if err := rows.Scan(&e.ID, &e.Query, &e.Mode, &e.Kind, &e.ResultCount, &e.TopScore, &e.LatencyMS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan query log entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// DB exposes the underlying handle for subsystems sharing the database.
func (s *SQLiteSourceStore) DB() *sql.DB {
	return s.db
}

// Close checkpoints the WAL and closes the database. Safe to call twice.
func (s *SQLiteSourceStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.path != ":memory:" {
		if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			slog.Warn("source_db_checkpoint_failed", slog.String("error", err.Error()))
		}
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*Profile, error) {
	var p Profile
	var contact, metadata string
	var sourceURL sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &p.Role, &p.Department, &p.Bio,
		&contact, &sourceURL, &metadata, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.SourceURL = sourceURL.String

	var err error
	if p.Contact, err = unmarshalStringMap(contact); err != nil {
		return nil, fmt.Errorf("decode contact: %w", err)
	}
	if p.Metadata, err = unmarshalStringMap(metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &p, nil
}

func scanKnowledge(row rowScanner) (*Knowledge, error) {
	var k Knowledge
	var metadata string
	var sourceURL sql.NullString
	if err := row.Scan(&k.ID, &k.Title, &k.Body, &k.Category,
		&sourceURL, &metadata, &k.CreatedAt, &k.UpdatedAt); err != nil {
		return nil, err
	}
	k.SourceURL = sourceURL.String

	var err error
	if k.Metadata, err = unmarshalStringMap(metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &k, nil
}

// marshalStringMap encodes a string map as JSON for a TEXT column.
// nil and empty maps both encode as "{}".
func marshalStringMap(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// unmarshalStringMap decodes a JSON TEXT column into a string map.
// Always returns a non-nil map.
func unmarshalStringMap(s string) (map[string]string, error) {
	m := make(map[string]string)
	if s == "" || s == "{}" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// nullableString stores empty strings as NULL so UNIQUE columns tolerate
// many rows without a value.
func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
