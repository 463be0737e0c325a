// Package store provides the SQLite-backed issue database for issuer.
//
// Each process owns exactly one Store: the local working copy of the
// shared database. The store wraps a single connection behind a mutex
// because two concurrency contexts use it - foreground commands and
// the background replication loop - and SQLite likes its writers
// serialized. The mutex is held for one logical operation at a time,
// never across filesystem scans.
//
// The database runs in embedded mode using ncruces/go-sqlite3 with WAL
// journaling. A checkpointed, closed database file can be copied
// byte-for-byte to produce an independent, fully usable store; the
// merge coordinator depends on that property.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps the SQLite connection with issuer-specific functionality.
type Store struct {
	mu   sync.Mutex
	conn *sql.DB
	path string
}

// Field is one column/value pair in a generic write. Values must be
// SQL-representable scalars (string, number, bool, nil).
type Field struct {
	Column string
	Value  any
}

// Tables replicated through the sync engine. Generic writes refuse
// anything outside this set.
var syncedTables = map[string]bool{
	"issues":            true,
	"comments":          true,
	"milestones":        true,
	"labels":            true,
	"issue_labels":      true,
	"issue_reactions":   true,
	"comment_reactions": true,
}

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Open creates a database connection at the specified path.
//
// The parent directory is created if missing. The database is opened
// with WAL mode, a busy timeout and foreign keys enabled, and the
// schema is initialized. The caller must Close() when done.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection, serialized by the Store mutex.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{conn: conn, path: path}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if err := s.initSchema(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return s, nil
}

// Path returns the database file path this store was opened with.
func (s *Store) Path() string {
	return s.path
}

// Close checkpoints the WAL and closes the connection. After Close the
// database file on disk is self-contained and safe to copy.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.conn = nil
	return nil
}

// Checkpoint flushes the WAL into the main database file so the file
// can be copied while the store stays open.
func (s *Store) Checkpoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to checkpoint WAL: %w", err)
	}
	return nil
}

// initSchema creates tables and indexes if missing. Idempotent.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS issues (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		title        TEXT    NOT NULL,
		body         TEXT    DEFAULT '',
		status       TEXT    NOT NULL DEFAULT 'OPEN',
		created_by   TEXT    NOT NULL,
		assignee     TEXT    DEFAULT '',
		created_at   TEXT    NOT NULL,
		updated_at   TEXT    NOT NULL,
		milestone_id INTEGER REFERENCES milestones(id) ON DELETE SET NULL,
		is_deleted   INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS comments (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		issue_id   INTEGER NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
		body       TEXT    NOT NULL,
		created_by TEXT    NOT NULL,
		created_at TEXT    NOT NULL,
		updated_at TEXT    NOT NULL,
		is_deleted INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS milestones (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		title       TEXT NOT NULL,
		description TEXT DEFAULT '',
		start_date  TEXT,
		due_date    TEXT,
		status      TEXT NOT NULL DEFAULT 'planned',
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL,
		is_deleted  INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS labels (
		id   INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL
	);
	CREATE TABLE IF NOT EXISTS issue_labels (
		issue_id INTEGER NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
		label_id INTEGER NOT NULL REFERENCES labels(id) ON DELETE CASCADE,
		PRIMARY KEY (issue_id, label_id)
	);
	CREATE TABLE IF NOT EXISTS issue_reactions (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		issue_id   INTEGER NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
		reacted_by TEXT    NOT NULL,
		reaction   TEXT    NOT NULL,
		created_at TEXT    NOT NULL,
		UNIQUE(issue_id, reacted_by, reaction)
	);
	CREATE TABLE IF NOT EXISTS comment_reactions (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		comment_id INTEGER NOT NULL REFERENCES comments(id) ON DELETE CASCADE,
		reacted_by TEXT    NOT NULL,
		reaction   TEXT    NOT NULL,
		created_at TEXT    NOT NULL,
		UNIQUE(comment_id, reacted_by, reaction)
	);

	CREATE INDEX IF NOT EXISTS idx_issues_status ON issues(status);
	CREATE INDEX IF NOT EXISTS idx_issues_created_at ON issues(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_issues_milestone_id ON issues(milestone_id);
	CREATE INDEX IF NOT EXISTS idx_comments_issue_id ON comments(issue_id);
	CREATE INDEX IF NOT EXISTS idx_issue_reactions_issue_id ON issue_reactions(issue_id);
	CREATE INDEX IF NOT EXISTS idx_comment_reactions_comment_id ON comment_reactions(comment_id);
	CREATE INDEX IF NOT EXISTS idx_issue_labels_issue_id ON issue_labels(issue_id);
	CREATE INDEX IF NOT EXISTS idx_issue_labels_label_id ON issue_labels(label_id);
	CREATE INDEX IF NOT EXISTS idx_milestones_status ON milestones(status);
	CREATE INDEX IF NOT EXISTS idx_milestones_due_date ON milestones(due_date);
	`

	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// NowStamp returns the RFC 3339 UTC timestamp used for created_at and
// updated_at columns. UTC keeps lexicographic order equal to temporal
// order across machines in different time zones.
func NowStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// ---------------------------------------------------------------------------
// Generic writes used by the delta applier
// ---------------------------------------------------------------------------

// checkTarget validates a table name and column list for generic SQL
// construction. Change records arrive from untrusted files on a share,
// so identifiers are never interpolated without this check.
func checkTarget(table string, fields []Field) error {
	if !syncedTables[table] {
		return fmt.Errorf("table %q is not replicated", table)
	}
	for _, f := range fields {
		if !identPattern.MatchString(f.Column) {
			return fmt.Errorf("invalid column name %q", f.Column)
		}
	}
	return nil
}

// bindValue normalizes JSON-decoded values for SQLite binding.
func bindValue(v any) any {
	switch val := v.(type) {
	case float64:
		// JSON numbers decode as float64; keep integral values integral.
		if val == float64(int64(val)) {
			return int64(val)
		}
		return val
	case bool:
		if val {
			return int64(1)
		}
		return int64(0)
	default:
		return v
	}
}

// RowAuthor returns the created_by value for the row with the given id,
// or ok=false if the row does not exist or the table has no such
// column worth consulting.
func (s *Store) RowAuthor(ctx context.Context, table string, id int64) (string, bool, error) {
	if err := checkTarget(table, nil); err != nil {
		return "", false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var author string
	query := fmt.Sprintf("SELECT created_by FROM %s WHERE id = ?", table)
	err := s.conn.QueryRowContext(ctx, query, id).Scan(&author)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read author from %s: %w", table, err)
	}
	return author, true, nil
}

// NextID returns MAX(id)+1 for the table, used to re-key colliding
// inserts.
func (s *Store) NextID(ctx context.Context, table string) (int64, error) {
	if err := checkTarget(table, nil); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var next int64
	query := fmt.Sprintf("SELECT COALESCE(MAX(id), 0) + 1 FROM %s", table)
	if err := s.conn.QueryRowContext(ctx, query).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to compute next id for %s: %w", table, err)
	}
	return next, nil
}

// InsertOrReplace writes a full row built from the field list.
func (s *Store) InsertOrReplace(ctx context.Context, table string, fields []Field) error {
	if err := checkTarget(table, fields); err != nil {
		return err
	}
	if len(fields) == 0 {
		return fmt.Errorf("insert into %s has no fields", table)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	columns := make([]string, 0, len(fields))
	placeholders := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		columns = append(columns, f.Column)
		placeholders = append(placeholders, "?")
		args = append(args, bindValue(f.Value))
	}

	query := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	if _, err := s.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}

// RowUpdatedAt returns the updated_at value for the row with the given
// id, or ok=false if the row does not exist.
func (s *Store) RowUpdatedAt(ctx context.Context, table string, id int64) (string, bool, error) {
	if err := checkTarget(table, nil); err != nil {
		return "", false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var stamp string
	query := fmt.Sprintf("SELECT updated_at FROM %s WHERE id = ?", table)
	err := s.conn.QueryRowContext(ctx, query, id).Scan(&stamp)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read updated_at from %s: %w", table, err)
	}
	return stamp, true, nil
}

// UpdateFields applies a column-wise patch to the row with the given id.
func (s *Store) UpdateFields(ctx context.Context, table string, id int64, fields []Field) error {
	if err := checkTarget(table, fields); err != nil {
		return err
	}
	if len(fields) == 0 {
		return fmt.Errorf("update of %s has no fields", table)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sets := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+1)
	for _, f := range fields {
		sets = append(sets, f.Column+" = ?")
		args = append(args, bindValue(f.Value))
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", table, strings.Join(sets, ", "))
	if _, err := s.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update %s: %w", table, err)
	}
	return nil
}

// CopyFile copies a database file byte-for-byte. The source must be a
// closed or checkpointed store file for the copy to be usable.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dst, err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to sync %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dst, err)
	}
	return nil
}
