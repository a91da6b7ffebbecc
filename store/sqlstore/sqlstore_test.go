package sqlstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRebindDollar(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"SELECT 1", "SELECT 1"},
		{"WHERE a = ?", "WHERE a = $1"},
		{"VALUES (?, ?, ?)", "VALUES ($1, $2, $3)"},
		{"WHERE id = ? AND status IN (?, ?)", "WHERE id = $1 AND status IN ($2, $3)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RebindDollar(tt.in))
	}
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?, ?, ?", placeholders(3))
}

func TestNanos(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 123456789, time.FixedZone("X", 3600))
	got := fromNanos(toNanos(ts))
	assert.True(t, ts.Equal(got))
	assert.Equal(t, time.UTC, got.Location())
}
