// Package memory implements storage.Store in process. It is used by tests and
// by the API in dev mode when no database is configured.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/walletledger/internal/model"
	"github.com/congo-pay/walletledger/internal/storage"
)

var errReadOnly = errors.New("memory: write in read-only snapshot")

// Store keeps committed state in maps guarded by mu. Row locks are size-one
// channels keyed by row id and are held until the owning unit of work ends.
type Store struct {
	mu       sync.RWMutex
	wallets  map[uuid.UUID]model.Wallet
	txs      map[uuid.UUID]model.Transaction
	entries  []model.LedgerEntry
	audit    []model.AuditLog
	outbox   []model.OutboxEvent
	outboxAt map[uuid.UUID]int
	jobs     []model.ReconcileJob

	locksMu     sync.Mutex
	locks       map[uuid.UUID]chan struct{}
	lockTimeout time.Duration
}

// Option customises a Store.
type Option func(*Store)

// WithLockTimeout bounds how long GetForUpdate waits for a row lock. Zero
// waits until the context is done.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		wallets:     make(map[uuid.UUID]model.Wallet),
		txs:         make(map[uuid.UUID]model.Transaction),
		outboxAt:    make(map[uuid.UUID]int),
		locks:       make(map[uuid.UUID]chan struct{}),
		lockTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithinTx implements storage.Store.
func (s *Store) WithinTx(ctx context.Context, fn storage.TxFunc) error {
	tx := s.begin()
	defer tx.release()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

// WithinSnapshot implements storage.Store. Writers are blocked while fn runs.
func (s *Store) WithinSnapshot(ctx context.Context, fn storage.TxFunc) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(ctx, &memTx{s: s, snapshot: true})
}

func (s *Store) Wallets() storage.WalletRepository {
	return walletRepo{base{s: s}}
}

func (s *Store) Ledger() storage.LedgerRepository {
	return ledgerRepo{base{s: s}}
}

func (s *Store) Transactions() storage.TransactionRepository {
	return transactionRepo{base{s: s}}
}

func (s *Store) Audit() storage.AuditRecorder {
	return auditRepo{base{s: s}}
}

func (s *Store) Outbox() storage.OutboxRepository {
	return outboxRepo{base{s: s}}
}

func (s *Store) Reconciliations() storage.ReconcileRepository {
	return reconcileRepo{base{s: s}}
}

func (s *Store) begin() *memTx {
	return &memTx{
		s:       s,
		held:    make(map[uuid.UUID]chan struct{}),
		wallets: make(map[uuid.UUID]stagedWallet),
		txs:     make(map[uuid.UUID]stagedTx),
	}
}

func (s *Store) lockFor(id uuid.UUID) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	ch, ok := s.locks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[id] = ch
	}
	return ch
}

type stagedWallet struct {
	w       model.Wallet
	base    int64
	created bool
}

type stagedTx struct {
	t       model.Transaction
	created bool
}

type outboxMark struct {
	id     uuid.UUID
	at     *time.Time
	reason string
}

// memTx is one unit of work. Writes are staged and become visible to other
// units only at commit.
type memTx struct {
	s        *Store
	snapshot bool
	held     map[uuid.UUID]chan struct{}

	wallets map[uuid.UUID]stagedWallet
	txs     map[uuid.UUID]stagedTx
	entries []model.LedgerEntry
	audit   []model.AuditLog
	outbox  []model.OutboxEvent
	marks   []outboxMark
	jobs    []model.ReconcileJob
}

func (tx *memTx) Wallets() storage.WalletRepository {
	return walletRepo{base{s: tx.s, tx: tx}}
}

func (tx *memTx) Ledger() storage.LedgerRepository {
	return ledgerRepo{base{s: tx.s, tx: tx}}
}

func (tx *memTx) Transactions() storage.TransactionRepository {
	return transactionRepo{base{s: tx.s, tx: tx}}
}

func (tx *memTx) Audit() storage.AuditRecorder {
	return auditRepo{base{s: tx.s, tx: tx}}
}

func (tx *memTx) Outbox() storage.OutboxRepository {
	return outboxRepo{base{s: tx.s, tx: tx}}
}

func (tx *memTx) Reconciliations() storage.ReconcileRepository {
	return reconcileRepo{base{s: tx.s, tx: tx}}
}

// read runs fn with committed state readable.
func (tx *memTx) read(fn func()) {
	if tx.snapshot {
		fn()
		return
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	fn()
}

func (tx *memTx) writable() error {
	if tx.snapshot {
		return errReadOnly
	}
	return nil
}

// lock acquires the row lock for id. Locks are re-entrant within tx.
func (tx *memTx) lock(ctx context.Context, id uuid.UUID) error {
	if tx.snapshot {
		return errReadOnly
	}
	if _, ok := tx.held[id]; ok {
		return nil
	}
	ch := tx.s.lockFor(id)

	var timeout <-chan time.Time
	if tx.s.lockTimeout > 0 {
		timer := time.NewTimer(tx.s.lockTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case ch <- struct{}{}:
		tx.held[id] = ch
		return nil
	case <-timeout:
		return storage.ErrLockTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (tx *memTx) release() {
	for id, ch := range tx.held {
		<-ch
		delete(tx.held, id)
	}
}

func (tx *memTx) commit() error {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := tx.checkWallets(); err != nil {
		return err
	}
	if err := tx.checkTransactions(); err != nil {
		return err
	}
	for _, m := range tx.marks {
		if _, ok := s.outboxAt[m.id]; !ok {
			return storage.ErrNotFound
		}
	}

	for id, st := range tx.wallets {
		s.wallets[id] = st.w
	}
	for id, st := range tx.txs {
		s.txs[id] = st.t
	}
	s.entries = append(s.entries, tx.entries...)
	s.audit = append(s.audit, tx.audit...)
	for _, ev := range tx.outbox {
		s.outboxAt[ev.ID] = len(s.outbox)
		s.outbox = append(s.outbox, ev)
	}
	for _, m := range tx.marks {
		ev := &s.outbox[s.outboxAt[m.id]]
		if m.at != nil {
			ev.DispatchedAt = m.at
			ev.LastError = ""
		} else {
			ev.Attempts++
			ev.LastError = m.reason
		}
	}
	s.jobs = append(s.jobs, tx.jobs...)
	return nil
}

// checkWallets enforces id uniqueness, one live PRIMARY per owner and
// optimistic versions. Caller holds s.mu.
func (tx *memTx) checkWallets() error {
	s := tx.s
	for id, st := range tx.wallets {
		current, exists := s.wallets[id]
		if st.created {
			if exists {
				return storage.ErrDuplicate
			}
		} else if !exists || current.Version != st.base {
			return storage.ErrConflict
		}
		if st.w.Type != model.WalletTypePrimary || st.w.Status == model.WalletStatusClosed {
			continue
		}
		for otherID, other := range s.wallets {
			if otherID == id {
				continue
			}
			if staged, ok := tx.wallets[otherID]; ok {
				other = staged.w
			}
			if livePrimaryOf(other, st.w.OwnerID) {
				return storage.ErrDuplicate
			}
		}
		for otherID, other := range tx.wallets {
			if _, committed := s.wallets[otherID]; committed || otherID == id {
				continue
			}
			if livePrimaryOf(other.w, st.w.OwnerID) {
				return storage.ErrDuplicate
			}
		}
	}
	return nil
}

// checkTransactions enforces id uniqueness and one non-FAILED row per
// reference key. Caller holds s.mu.
func (tx *memTx) checkTransactions() error {
	s := tx.s
	for id, st := range tx.txs {
		if _, exists := s.txs[id]; st.created == exists {
			if exists {
				return storage.ErrDuplicate
			}
			return storage.ErrNotFound
		}
		if st.t.ReferenceID == "" || st.t.Status == model.TransactionFailed {
			continue
		}
		for otherID, other := range s.txs {
			if otherID == id {
				continue
			}
			if staged, ok := tx.txs[otherID]; ok {
				other = staged.t
			}
			if activeReference(other, st.t.ReferenceKey()) {
				return storage.ErrDuplicate
			}
		}
		for otherID, other := range tx.txs {
			if _, committed := s.txs[otherID]; committed || otherID == id {
				continue
			}
			if activeReference(other.t, st.t.ReferenceKey()) {
				return storage.ErrDuplicate
			}
		}
	}
	return nil
}

func activeReference(t model.Transaction, key model.ReferenceKey) bool {
	return t.ReferenceKey() == key && t.Status != model.TransactionFailed
}

func livePrimaryOf(w model.Wallet, owner uuid.UUID) bool {
	return w.OwnerID == owner && w.Type == model.WalletTypePrimary && w.Status != model.WalletStatusClosed
}

// base routes repository calls either to an open unit of work or, when tx is
// nil, to a fresh autocommit unit.
type base struct {
	s  *Store
	tx *memTx
}

func (b base) run(fn func(tx *memTx) error) error {
	if b.tx != nil {
		return fn(b.tx)
	}
	tx := b.s.begin()
	defer tx.release()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}
