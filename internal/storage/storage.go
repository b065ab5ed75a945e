// Package storage defines the persistence contract shared by the ledger
// services. Implementations live in the postgres and memory subpackages.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletledger/internal/model"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a uniqueness constraint is violated.
	ErrDuplicate = errors.New("duplicate")
	// ErrLockTimeout is returned when a row lock could not be acquired in time.
	ErrLockTimeout = errors.New("lock timeout")
	// ErrConflict signals an optimistic version mismatch or a serialization
	// failure. Callers may retry.
	ErrConflict = errors.New("concurrent modification")
)

// WalletRepository reads and writes wallets.
type WalletRepository interface {
	Get(ctx context.Context, id uuid.UUID) (model.Wallet, error)
	// GetForUpdate loads the wallet and holds its row lock until the unit of
	// work ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (model.Wallet, error)
	Create(ctx context.Context, w model.Wallet) error
	// UpdateBalance sets the balance and bumps the version when the stored
	// version equals expectedVersion. Otherwise it returns ErrConflict.
	UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal, expectedVersion int64) error
	SetStatus(ctx context.Context, id uuid.UUID, status model.WalletStatus, expectedVersion int64) error
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.Wallet, error)
	ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]model.Wallet, error)
	// FindPrimary returns the owner's non-closed PRIMARY wallet.
	FindPrimary(ctx context.Context, ownerID uuid.UUID) (model.Wallet, error)
}

// LedgerRepository is the append-only journal of entries.
type LedgerRepository interface {
	Append(ctx context.Context, entries ...model.LedgerEntry) error
	// SumForWallet returns the signed sum of entries belonging to COMPLETED
	// transactions.
	SumForWallet(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error)
	ListByTransaction(ctx context.Context, txID uuid.UUID) ([]model.LedgerEntry, error)
	ListByWallet(ctx context.Context, walletID uuid.UUID, limit int) ([]model.LedgerEntry, error)
}

// TransactionRepository stores transaction records.
type TransactionRepository interface {
	Create(ctx context.Context, t model.Transaction) error
	Get(ctx context.Context, id uuid.UUID) (model.Transaction, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (model.Transaction, error)
	// FindActiveByReference returns the non-FAILED transaction with the same
	// organization, sender wallet and reference id.
	FindActiveByReference(ctx context.Context, key model.ReferenceKey) (model.Transaction, error)
	UpdateStatus(ctx context.Context, t model.Transaction) error
	List(ctx context.Context, f model.TransactionFilter) ([]model.Transaction, int, error)
}

// AuditRecorder appends audit rows.
type AuditRecorder interface {
	Record(ctx context.Context, entry model.AuditLog) error
}

// OutboxRepository stores events until the relay dispatches them.
type OutboxRepository interface {
	Append(ctx context.Context, ev model.OutboxEvent) error
	FetchPending(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkDispatched(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// ReconcileRepository stores reconciliation job results.
type ReconcileRepository interface {
	Save(ctx context.Context, job model.ReconcileJob) error
	ListByScope(ctx context.Context, scopeID uuid.UUID, limit int) ([]model.ReconcileJob, error)
}

// Tx exposes repositories bound to a single unit of work.
type Tx interface {
	Wallets() WalletRepository
	Ledger() LedgerRepository
	Transactions() TransactionRepository
	Audit() AuditRecorder
	Outbox() OutboxRepository
	Reconciliations() ReconcileRepository
}

// TxFunc runs inside a unit of work. Returning an error rolls it back.
type TxFunc func(ctx context.Context, tx Tx) error

// Store is the entry point to persistence. The embedded Tx views run each
// call in its own unit of work.
type Store interface {
	Tx
	// WithinTx runs fn atomically. Nothing fn wrote is visible to others
	// unless fn returns nil.
	WithinTx(ctx context.Context, fn TxFunc) error
	// WithinSnapshot runs fn against a consistent read-only view.
	WithinSnapshot(ctx context.Context, fn TxFunc) error
}
