package postgres

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/congo-pay/walletledger/internal/storage"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"no rows", pgx.ErrNoRows, storage.ErrNotFound},
		{"unique", &pgconn.PgError{Code: "23505", ConstraintName: "wallets_one_live_primary"}, storage.ErrDuplicate},
		{"lock timeout", &pgconn.PgError{Code: "55P03"}, storage.ErrLockTimeout},
		{"serialization", &pgconn.PgError{Code: "40001"}, storage.ErrConflict},
		{"deadlock", fmt.Errorf("exec: %w", &pgconn.PgError{Code: "40P01"}), storage.ErrConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, mapError(tc.in), tc.want)
		})
	}

	other := errors.New("connection reset")
	assert.Equal(t, other, mapError(other))
	assert.NoError(t, mapError(nil))
}

func TestSchemaDeclaresConstraints(t *testing.T) {
	for _, want := range []string{
		"wallets_one_live_primary",
		"transactions_active_reference_scoped",
		"ledger_entries_append_only",
		"outbox_events",
		"reconcile_jobs",
	} {
		assert.True(t, strings.Contains(schema, want), want)
	}
}

func TestNullString(t *testing.T) {
	assert.Nil(t, nullString(""))
	if got := nullString("ref"); assert.NotNil(t, got) {
		assert.Equal(t, "ref", *got)
	}
}
