// Package sqlstore persists items, offers, and profiles in SQLite or Postgres.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/evanschultz/barter/internal/app"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver
)

var _ app.Repository = (*Repository)(nil)

// Dialect selects the SQL flavor and driver.
type Dialect string

// DialectSQLite and related constants name the supported backends.
const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// driverName maps each dialect to its database/sql driver.
var driverName = map[Dialect]string{
	DialectSQLite:   "sqlite",
	DialectPostgres: "pgx",
}

// Options selects and locates one backing database.
type Options struct {
	Driver string
	Path   string
	DSN    string
}

// Repository represents repository data used by this package.
type Repository struct {
	db      *sql.DB
	dialect Dialect
}

// Open opens the backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (*Repository, error) {
	switch Dialect(strings.ToLower(strings.TrimSpace(opts.Driver))) {
	case "", DialectSQLite:
		return OpenSQLite(ctx, opts.Path)
	case DialectPostgres:
		return OpenPostgres(ctx, opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
}

// OpenSQLite opens a file-backed SQLite database, creating its directory.
func OpenSQLite(ctx context.Context, path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	return openDB(ctx, DialectSQLite, path)
}

// OpenInMemory opens a private in-memory SQLite database.
func OpenInMemory(ctx context.Context) (*Repository, error) {
	return openDB(ctx, DialectSQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
}

// OpenPostgres opens a Postgres database through pgx.
func OpenPostgres(ctx context.Context, dsn string) (*Repository, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	return openDB(ctx, DialectPostgres, dsn)
}

// openDB opens, pings, and migrates one database.
func openDB(ctx context.Context, dialect Dialect, source string) (*Repository, error) {
	db, err := sql.Open(driverName[dialect], source)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// SQLite serializes writers; one connection keeps conditional updates ordered.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w: %w", dialect, app.ErrStoreUnavailable, err)
	}
	repo := &Repository{db: db, dialect: dialect}
	if err := repo.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Dialect reports the backend in use.
func (r *Repository) Dialect() Dialect {
	return r.dialect
}

// Ping checks that the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return storeErr("ping", r.db.PingContext(ctx))
}

// Close closes the requested operation.
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			owner_id TEXT NOT NULL,
			owner_name TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS exchanges (
			id TEXT PRIMARY KEY,
			offered_item_id TEXT NOT NULL,
			offered_item_name TEXT NOT NULL,
			wanted_item_id TEXT NOT NULL,
			wanted_item_name TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			sender_name TEXT NOT NULL,
			receiver_id TEXT NOT NULL,
			receiver_name TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			propagated_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL DEFAULT '',
			username TEXT NOT NULL,
			rating DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_reviews INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_status_created_at ON items(status, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_items_owner_created_at ON items(owner_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_exchanges_sender_created_at ON exchanges(sender_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_exchanges_receiver_created_at ON exchanges(receiver_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_exchanges_pair_status ON exchanges(offered_item_id, wanted_item_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_exchanges_wanted_status ON exchanges(wanted_item_id, status)`,
	}
	switch r.dialect {
	case DialectSQLite:
		stmts = append([]string{`PRAGMA busy_timeout = 5000`}, stmts...)
	case DialectPostgres:
		stmts = append(stmts,
			`ALTER TABLE items ADD COLUMN IF NOT EXISTS seq BIGSERIAL`,
			`ALTER TABLE exchanges ADD COLUMN IF NOT EXISTS seq BIGSERIAL`,
		)
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", r.dialect, err)
		}
	}
	return nil
}

// insertOrder names the column recording insertion order: the implicit rowid on SQLite, seq on Postgres.
func (r *Repository) insertOrder() string {
	if r.dialect == DialectPostgres {
		return "seq"
	}
	return "rowid"
}

// exec runs one write statement in the repository dialect.
func (r *Repository) exec(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	res, err := r.db.ExecContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, storeErr(op, err)
	}
	return res, nil
}

// query runs one read statement in the repository dialect.
func (r *Repository) query(ctx context.Context, op, query string, args ...any) (*sql.Rows, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, storeErr(op, err)
	}
	return rows, nil
}

// queryRow runs one single-row read in the repository dialect.
func (r *Repository) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return r.db.QueryRowContext(ctx, r.rebind(query), args...)
}

// rebind rewrites ? placeholders to $n for Postgres.
func (r *Repository) rebind(query string) string {
	if r.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, ch := range query {
		if ch != '?' {
			b.WriteRune(ch)
			continue
		}
		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}

// placeholders returns n comma separated ? markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// storeErr classifies a driver error. Missing rows become app.ErrNotFound; everything else is a store failure.
func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return app.ErrNotFound
	case errors.Is(err, app.ErrNotFound), errors.Is(err, app.ErrStatusConflict):
		return err
	default:
		return fmt.Errorf("%s: %w: %w", op, app.ErrStoreUnavailable, err)
	}
}

// translateNoRows maps a zero-row write to app.ErrNotFound.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return storeErr("rows affected", err)
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

// tsLayout is fixed width so stored timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

// nullableTS handles nullable ts.
func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return ts(*t)
}

// parseTS parses input into a normalized form.
func parseTS(v string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}

// parseNullTS parses input into a normalized form.
func parseNullTS(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	parsed := parseTS(v.String)
	return &parsed
}
