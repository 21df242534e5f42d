package store

import (
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id            TEXT PRIMARY KEY,
		role          TEXT NOT NULL,
		content       TEXT NOT NULL,
		tool_calls    TEXT,
		tool_call_ref TEXT,
		session_id    TEXT,
		created_at    TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id);
	CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at);

	CREATE TABLE IF NOT EXISTS memory_blocks (
		label       TEXT PRIMARY KEY,
		content     TEXT NOT NULL,
		description TEXT,
		updated_at  TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS summaries (
		id          TEXT PRIMARY KEY,
		summary     TEXT NOT NULL,
		range_start TEXT,
		range_end   TEXT,
		token_count INTEGER NOT NULL DEFAULT 0,
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_summaries_created ON summaries(created_at);

	CREATE TABLE IF NOT EXISTS memory_nodes (
		id            TEXT PRIMARY KEY,
		content       TEXT NOT NULL,
		summary       TEXT,
		source        TEXT NOT NULL,
		tags          TEXT,
		access_count  INTEGER NOT NULL DEFAULT 0,
		created_at    TEXT NOT NULL,
		last_accessed TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_nodes_source ON memory_nodes(source);
	CREATE INDEX IF NOT EXISTS idx_nodes_accessed ON memory_nodes(last_accessed DESC);

	CREATE TABLE IF NOT EXISTS memory_edges (
		id                TEXT PRIMARY KEY,
		source_node_id    TEXT NOT NULL REFERENCES memory_nodes(id) ON DELETE CASCADE,
		target_node_id    TEXT NOT NULL REFERENCES memory_nodes(id) ON DELETE CASCADE,
		weight            REAL NOT NULL DEFAULT 0.5 CHECK (weight >= 0.0 AND weight <= 1.0),
		edge_type         TEXT NOT NULL DEFAULT 'related',
		created_at        TEXT NOT NULL,
		last_strengthened TEXT NOT NULL,
		UNIQUE(source_node_id, target_node_id)
	);
	CREATE INDEX IF NOT EXISTS idx_edges_source ON memory_edges(source_node_id);
	CREATE INDEX IF NOT EXISTS idx_edges_target ON memory_edges(target_node_id);
	CREATE INDEX IF NOT EXISTS idx_edges_weight ON memory_edges(weight DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// likePattern wraps q for a substring LIKE match, escaping wildcards.
// Queries using it must declare ESCAPE '\'.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}

// placeholders returns "?, ?, ..." with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
