// Package sqlstore implements store.Store on database/sql. The postgres and
// sqlite backends share it and differ only in their Dialect and
// migrations.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xraph/folio"
	foliostore "github.com/xraph/folio/store"
)

// Dialect adapts queries and driver errors to one SQL engine.
type Dialect interface {
	// Name is used as the error prefix, e.g. "folio/postgres".
	Name() string
	// Rebind rewrites "?" placeholders into the driver's syntax.
	Rebind(query string) string
	// ForUpdate is appended to reads that precede a guarded write.
	ForUpdate() string
	IsUniqueViolation(err error) bool
	IsForeignKeyViolation(err error) bool
	IsTransient(err error) bool
}

// DB is a database/sql backed store.Store without Migrate. Backends embed
// it and add their own migrations.
type DB struct {
	db      *sql.DB
	dialect Dialect
	txOpts  *sql.TxOptions
}

// New wraps db. txOpts may be nil for the driver default isolation.
func New(db *sql.DB, d Dialect, txOpts *sql.TxOptions) *DB {
	return &DB{db: db, dialect: d, txOpts: txOpts}
}

// SQL returns the underlying database handle.
func (s *DB) SQL() *sql.DB { return s.db }

// RunInTx implements store.Store.
func (s *DB) RunInTx(ctx context.Context, fn foliostore.TxFunc) error {
	sqlTx, err := s.db.BeginTx(ctx, s.txOpts)
	if err != nil {
		return s.wrap("begin", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback() //nolint:errcheck // re-panicking
			panic(p)
		}
	}()

	if err := fn(ctx, &tx{tx: sqlTx, s: s}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, s.wrap("rollback", rbErr))
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return s.wrap("commit", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *DB) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return s.wrap("ping", err)
	}
	return nil
}

// Close closes the database connection.
func (s *DB) Close() error {
	return s.db.Close()
}

// wrap prefixes err with the backend and operation and marks transient
// driver failures as folio.ErrTransientStorage.
func (s *DB) wrap(op string, err error) error {
	if s.dialect.IsTransient(err) {
		err = folio.Transient(err)
	}
	return fmt.Errorf("%s: %s: %w", s.dialect.Name(), op, err)
}

// ==================== Helpers ====================

// RebindDollar converts "?" placeholders into "$1", "$2", ...
func RebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toNanos(t time.Time) int64 { return t.UTC().UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
