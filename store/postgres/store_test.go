package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/folio"
	"github.com/xraph/folio/store"
	"github.com/xraph/folio/store/postgres"
	"github.com/xraph/folio/store/storetest"
)

func TestConformance(t *testing.T) {
	dsn := os.Getenv("FOLIO_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FOLIO_TEST_POSTGRES_DSN not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		s, err := postgres.Open(ctx, dsn)
		require.NoError(t, err)
		require.NoError(t, s.Migrate(ctx))
		return s
	})
}

func TestDialectClassification(t *testing.T) {
	d := postgres.Dialect{}

	tests := []struct {
		code              string
		unique, fk, retry bool
	}{
		{code: "23505", unique: true},
		{code: "23503", fk: true},
		{code: "40001", retry: true},
		{code: "40P01", retry: true},
		{code: "08006", retry: true},
		{code: "57P01", retry: true},
		{code: "42P01"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := errors.Join(errors.New("exec"), &pgconn.PgError{Code: tt.code})
			assert.Equal(t, tt.unique, d.IsUniqueViolation(err))
			assert.Equal(t, tt.fk, d.IsForeignKeyViolation(err))
			assert.Equal(t, tt.retry, d.IsTransient(err))
		})
	}

	assert.False(t, d.IsTransient(folio.ErrInvalidInput))
	assert.Equal(t, "SELECT $1, $2", d.Rebind("SELECT ?, ?"))
}
