// Package sqlite implements store.Store on SQLite using the pure-Go
// modernc.org/sqlite driver. Writers take the database lock when the
// transaction begins (_txlock=immediate) and the pool holds a single
// connection, so units of work are serialized.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/xraph/folio"
	foliostore "github.com/xraph/folio/store"
	"github.com/xraph/folio/store/sqlstore"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationsTable records applied schema versions.
const MigrationsTable = "folio_schema_migrations"

// Memory is the path of a private in-memory database.
const Memory = ":memory:"

// compile-time interface check
var _ foliostore.Store = (*Store)(nil)

// Store implements store.Store using SQLite.
type Store struct {
	*sqlstore.DB
}

// Open opens the database file at path, or a private in-memory database
// when path is Memory.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("folio/sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{DB: sqlstore.New(db, Dialect{}, nil)}
	if err := s.Ping(ctx); err != nil {
		_ = db.Close() //nolint:errcheck // best-effort cleanup
		return nil, err
	}
	return s, nil
}

// DSN appends the connection pragmas the store depends on to path.
func DSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

// Migrate applies pending schema migrations on the store's own
// connection. In-memory databases exist only on that connection.
func (s *Store) Migrate(ctx context.Context) error {
	drv, err := migratesqlite.WithInstance(s.SQL(), &migratesqlite.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		return fmt.Errorf("folio/sqlite: %w: %w", folio.ErrMigrationFailed, err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("folio/sqlite: %w: %w", folio.ErrMigrationFailed, err)
	}
	defer src.Close()

	// The migrator is not closed: closing it would close s.SQL().
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return fmt.Errorf("folio/sqlite: %w: %w", folio.ErrMigrationFailed, err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("folio/sqlite: %w: %w", folio.ErrMigrationFailed, err)
	}
	return nil
}

// ==================== Dialect ====================

// Dialect adapts the shared SQL store to SQLite.
type Dialect struct{}

func (Dialect) Name() string               { return "folio/sqlite" }
func (Dialect) Rebind(query string) string { return query }
func (Dialect) ForUpdate() string          { return "" }

func (Dialect) IsUniqueViolation(err error) bool {
	code, ok := errorCode(err)
	if !ok {
		return false
	}
	switch code {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(err.Error(), "UNIQUE constraint failed")
	}
	return false
}

func (Dialect) IsForeignKeyViolation(err error) bool {
	code, ok := errorCode(err)
	if !ok {
		return false
	}
	switch code {
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
	}
	return false
}

// IsTransient reports a busy or locked database.
func (Dialect) IsTransient(err error) bool {
	code, ok := errorCode(err)
	if !ok {
		return false
	}
	switch code & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

func errorCode(err error) (int, bool) {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code(), true
	}
	return 0, false
}
