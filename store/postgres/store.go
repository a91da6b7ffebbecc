// Package postgres implements store.Store on PostgreSQL through the pgx
// database/sql driver. Transactions run at READ COMMITTED; conditional
// updates and SELECT ... FOR UPDATE on the order row provide the row
// locks the engine relies on.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver

	"github.com/xraph/folio"
	foliostore "github.com/xraph/folio/store"
	"github.com/xraph/folio/store/sqlstore"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationsTable records applied schema versions.
const MigrationsTable = "folio_schema_migrations"

// compile-time interface check
var _ foliostore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL.
type Store struct {
	*sqlstore.DB
	dsn string
}

// Open connects to the database at dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("folio/postgres: open: %w", err)
	}
	s := &Store{
		DB:  sqlstore.New(db, Dialect{}, &sql.TxOptions{Isolation: sql.LevelReadCommitted}),
		dsn: dsn,
	}
	if err := s.Ping(ctx); err != nil {
		_ = db.Close() //nolint:errcheck // best-effort cleanup
		return nil, err
	}
	return s, nil
}

// Migrate applies pending schema migrations. It uses a dedicated
// connection so closing the migrator leaves the store's pool intact.
func (s *Store) Migrate(ctx context.Context) error {
	db, err := sql.Open("pgx", s.dsn)
	if err != nil {
		return fmt.Errorf("folio/postgres: %w: %w", folio.ErrMigrationFailed, err)
	}

	drv, err := migratepgx.WithInstance(db, &migratepgx.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		_ = db.Close() //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("folio/postgres: %w: %w", folio.ErrMigrationFailed, err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		_ = drv.Close() //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("folio/postgres: %w: %w", folio.ErrMigrationFailed, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "pgx5", drv)
	if err != nil {
		_ = drv.Close() //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("folio/postgres: %w: %w", folio.ErrMigrationFailed, err)
	}
	defer m.Close()

	done := make(chan error, 1)
	go func() { done <- m.Up() }()

	select {
	case err = <-done:
	case <-ctx.Done():
		m.GracefulStop <- true
		err = <-done
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("folio/postgres: %w: %w", folio.ErrMigrationFailed, err)
	}
	return nil
}

// ==================== Dialect ====================

// Dialect adapts the shared SQL store to PostgreSQL.
type Dialect struct{}

func (Dialect) Name() string               { return "folio/postgres" }
func (Dialect) Rebind(query string) string { return sqlstore.RebindDollar(query) }
func (Dialect) ForUpdate() string          { return " FOR UPDATE" }

func (Dialect) IsUniqueViolation(err error) bool     { return sqlState(err) == "23505" }
func (Dialect) IsForeignKeyViolation(err error) bool { return sqlState(err) == "23503" }

// IsTransient reports serialization failures, deadlocks, lost
// connections and admin shutdowns.
func (Dialect) IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || pgconn.Timeout(err) {
		return true
	}
	switch code := sqlState(err); {
	case code == "40001", code == "40P01", code == "57P01":
		return true
	case strings.HasPrefix(code, "08"):
		return true
	}
	return false
}

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
