// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which means you need a C compiler installed and
// cross-compilation becomes painful. modernc.org/sqlite is a pure Go
// translation of the SQLite C code.
//
// LAYOUT:
// DB owns the connection pool and the schema. Each table family gets a small
// store type (UserStore, SnippetStore, ...) that shares the pool. Callers get
// them from the accessor methods:
//
//	db.Users().GetByID(ctx, id)
//	db.Snippets().List(ctx, filter)
package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB wraps a sql.DB connection pool and hands out the per-table stores.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/codevault.db"  → file-based database (persistent)
//   - ":memory:"           → in-memory database (tests)
//
// PRAGMAS IN THE DSN:
// foreign_keys and busy_timeout are per-connection settings. Passing them as
// _pragma parameters makes the driver apply them to every pooled connection,
// not only the first one.
func New(dbPath string) (*DB, error) {
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" is a separate, empty database.
	// Pin the pool to a single connection so all queries see the same data.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping is used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) Users() *UserStore          { return &UserStore{conn: db.conn} }
func (db *DB) Snippets() *SnippetStore    { return &SnippetStore{conn: db.conn} }
func (db *DB) Folders() *FolderStore      { return &FolderStore{conn: db.conn} }
func (db *DB) Categories() *CategoryStore { return &CategoryStore{conn: db.conn} }
func (db *DB) Tags() *TagStore            { return &TagStore{conn: db.conn} }
func (db *DB) Teams() *TeamStore          { return &TeamStore{conn: db.conn} }
func (db *DB) Audit() *AuditStore         { return &AuditStore{conn: db.conn} }
func (db *DB) Templates() *TemplateStore  { return &TemplateStore{conn: db.conn} }
func (db *DB) Settings() *SettingsStore   { return &SettingsStore{conn: db.conn} }
func (db *DB) Stats() *StatsStore         { return &StatsStore{conn: db.conn} }

// migrate runs all database migrations.
//
// CREATE TABLE IF NOT EXISTS keeps this idempotent. Columns added after the
// first release go through addColumnIfNotExists so existing files upgrade in
// place.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE COLLATE NOCASE,
			email         TEXT NOT NULL UNIQUE COLLATE NOCASE,
			password_hash TEXT NOT NULL DEFAULT '',
			role          TEXT NOT NULL DEFAULT 'USER',
			active        INTEGER NOT NULL DEFAULT 1,
			github_id     INTEGER UNIQUE,
			avatar_url    TEXT NOT NULL DEFAULT '',
			github_token  TEXT NOT NULL DEFAULT '',
			gitea_url     TEXT NOT NULL DEFAULT '',
			gitea_token   TEXT NOT NULL DEFAULT '',
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS teams (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL UNIQUE COLLATE NOCASE,
			description TEXT NOT NULL DEFAULT '',
			owner_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at  DATETIME NOT NULL,
			updated_at  DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS team_members (
			team_id    TEXT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			role       TEXT NOT NULL DEFAULT 'MEMBER',
			created_at DATETIME NOT NULL,
			PRIMARY KEY (team_id, user_id)
		);
		CREATE INDEX IF NOT EXISTS idx_team_members_user ON team_members(user_id);

		CREATE TABLE IF NOT EXISTS categories (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL UNIQUE COLLATE NOCASE,
			color       TEXT NOT NULL DEFAULT '#6b7280',
			description TEXT NOT NULL DEFAULT '',
			created_at  DATETIME NOT NULL,
			updated_at  DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS folders (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			parent_id  TEXT REFERENCES folders(id) ON DELETE CASCADE,
			name       TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_folders_user ON folders(user_id);

		CREATE TABLE IF NOT EXISTS snippets (
			id                  TEXT PRIMARY KEY,
			user_id             TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			title               TEXT NOT NULL,
			description         TEXT NOT NULL DEFAULT '',
			code                TEXT NOT NULL DEFAULT '',
			language            TEXT NOT NULL DEFAULT 'plaintext',
			category_id         TEXT REFERENCES categories(id) ON DELETE SET NULL,
			folder_id           TEXT REFERENCES folders(id) ON DELETE SET NULL,
			team_id             TEXT REFERENCES teams(id) ON DELETE SET NULL,
			visibility          TEXT NOT NULL DEFAULT 'PRIVATE',
			status              TEXT NOT NULL DEFAULT 'APPROVED',
			rejection_reason    TEXT NOT NULL DEFAULT '',
			has_executable_code INTEGER NOT NULL DEFAULT 0,
			version_major       INTEGER NOT NULL DEFAULT 1,
			version_minor       INTEGER NOT NULL DEFAULT 0,
			view_count          INTEGER NOT NULL DEFAULT 0,
			created_at          DATETIME NOT NULL,
			updated_at          DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_snippets_user ON snippets(user_id);
		CREATE INDEX IF NOT EXISTS idx_snippets_status ON snippets(status);
		CREATE INDEX IF NOT EXISTS idx_snippets_updated_at ON snippets(updated_at);

		CREATE TABLE IF NOT EXISTS snippet_versions (
			id          TEXT PRIMARY KEY,
			snippet_id  TEXT NOT NULL REFERENCES snippets(id) ON DELETE CASCADE,
			major       INTEGER NOT NULL,
			minor       INTEGER NOT NULL,
			title       TEXT NOT NULL,
			code        TEXT NOT NULL,
			change_note TEXT NOT NULL DEFAULT '',
			created_by  TEXT NOT NULL DEFAULT '',
			created_at  DATETIME NOT NULL,
			UNIQUE (snippet_id, major, minor)
		);

		CREATE TABLE IF NOT EXISTS tags (
			id   TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE
		);

		CREATE TABLE IF NOT EXISTS snippet_tags (
			snippet_id TEXT NOT NULL REFERENCES snippets(id) ON DELETE CASCADE,
			tag_id     TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
			PRIMARY KEY (snippet_id, tag_id)
		);
		CREATE INDEX IF NOT EXISTS idx_snippet_tags_tag ON snippet_tags(tag_id);

		CREATE TABLE IF NOT EXISTS favorites (
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			snippet_id TEXT NOT NULL REFERENCES snippets(id) ON DELETE CASCADE,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (user_id, snippet_id)
		);

		CREATE TABLE IF NOT EXISTS audit_logs (
			id          TEXT PRIMARY KEY,
			user_id     TEXT REFERENCES users(id) ON DELETE SET NULL,
			action      TEXT NOT NULL,
			entity_type TEXT NOT NULL DEFAULT '',
			entity_id   TEXT NOT NULL DEFAULT '',
			details     TEXT NOT NULL DEFAULT '',
			ip_address  TEXT NOT NULL DEFAULT '',
			created_at  DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs(created_at);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_action ON audit_logs(action);

		CREATE TABLE IF NOT EXISTS email_templates (
			key         TEXT PRIMARY KEY,
			subject     TEXT NOT NULL,
			body        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			updated_at  DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS system_settings (
			id         INTEGER PRIMARY KEY CHECK (id = 1),
			data       TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	// Added with the "last seen" column on the admin user list.
	if err := db.addColumnIfNotExists("users", "last_login_at", "DATETIME"); err != nil {
		return fmt.Errorf("adding last_login_at to users: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// Makes ALTER TABLE migrations idempotent, so they are safe to run multiple times.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil // column already exists
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// =========================================================================
// SHARED HELPERS
// =========================================================================

// queryer is satisfied by both *sql.DB and *sql.Tx so helpers can run
// inside or outside a transaction.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on error or panic.
func withTx(ctx context.Context, conn *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return true
		}
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// checkAffected turns "zero rows affected" into a NotFound-style error
// produced by notFound.
func checkAffected(result sql.Result, notFound func() error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return notFound()
	}
	return nil
}

// placeholders returns "?, ?, ?" with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// fold is registered as a SQL function. SQLite's own LIKE and lower() only
// fold ASCII, so "Ä" would never match "ä"; fold lower-cases any string the
// way Go does. NULL stays NULL.
func init() {
	sqlite.MustRegisterDeterministicScalarFunction("fold", 1,
		func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			switch v := args[0].(type) {
			case string:
				return foldCase(v), nil
			case []byte:
				return foldCase(string(v)), nil
			default:
				return v, nil
			}
		})
}

func foldCase(s string) string { return strings.ToLower(s) }

// likePattern escapes LIKE wildcards in q and wraps it in %...%.
// Queries using it must declare ESCAPE '\'.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}

// now is the single clock for stored timestamps. UTC keeps SQLite's date
// functions and string comparisons consistent.
func now() time.Time {
	return time.Now().UTC()
}
