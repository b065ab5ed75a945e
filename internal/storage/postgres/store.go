// Package postgres implements storage.Store on PostgreSQL using pgx.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/walletledger/internal/storage"
)

//go:embed schema.sql
var schema string

// Migrate applies the schema. Statements are idempotent.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists ledger state in PostgreSQL.
type Store struct {
	db          *pgxpool.Pool
	lockTimeout time.Duration
	repos
}

// NewStore constructs a Store. lockTimeout bounds row lock waits inside
// WithinTx; zero leaves the server default.
func NewStore(db *pgxpool.Pool, lockTimeout time.Duration) *Store {
	return &Store{db: db, lockTimeout: lockTimeout, repos: repos{q: db}}
}

// WithinTx runs fn in a READ COMMITTED transaction. Row locks are taken with
// SELECT ... FOR UPDATE by the repositories.
func (s *Store) WithinTx(ctx context.Context, fn storage.TxFunc) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return mapError(err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if s.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return mapError(err)
		}
	}

	if err := fn(ctx, repos{q: tx}); err != nil {
		return err
	}
	return mapError(tx.Commit(ctx))
}

// WithinSnapshot runs fn in a read-only REPEATABLE READ transaction so every
// read sees the same snapshot.
func (s *Store) WithinSnapshot(ctx context.Context, fn storage.TxFunc) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return mapError(err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(ctx, repos{q: tx}); err != nil {
		return err
	}
	return mapError(tx.Commit(ctx))
}

// repos binds every repository to one querier.
type repos struct {
	q querier
}

func (r repos) Wallets() storage.WalletRepository            { return walletRepo{r.q} }
func (r repos) Ledger() storage.LedgerRepository             { return ledgerRepo{r.q} }
func (r repos) Transactions() storage.TransactionRepository  { return transactionRepo{r.q} }
func (r repos) Audit() storage.AuditRecorder                 { return auditRepo{r.q} }
func (r repos) Outbox() storage.OutboxRepository             { return outboxRepo{r.q} }
func (r repos) Reconciliations() storage.ReconcileRepository { return reconcileRepo{r.q} }

// mapError translates driver errors into storage sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", storage.ErrDuplicate, pgErr.ConstraintName)
		case "55P03":
			return storage.ErrLockTimeout
		case "40001", "40P01":
			return storage.ErrConflict
		}
	}
	return err
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
