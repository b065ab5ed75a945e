package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletledger/internal/model"
	"github.com/congo-pay/walletledger/internal/storage"
)

func (tx *memTx) wallet(id uuid.UUID) (model.Wallet, bool) {
	if st, ok := tx.wallets[id]; ok {
		return st.w, true
	}
	var (
		w  model.Wallet
		ok bool
	)
	tx.read(func() { w, ok = tx.s.wallets[id] })
	return w, ok
}

// walletView merges committed wallets with those staged in tx.
func (tx *memTx) walletView(keep func(model.Wallet) bool) []model.Wallet {
	var out []model.Wallet
	tx.read(func() {
		for id, w := range tx.s.wallets {
			if _, staged := tx.wallets[id]; staged {
				continue
			}
			if keep(w) {
				out = append(out, w)
			}
		}
	})
	for _, st := range tx.wallets {
		if keep(st.w) {
			out = append(out, st.w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (tx *memTx) stageWallet(w model.Wallet, committedVersion int64) {
	st, ok := tx.wallets[w.ID]
	if !ok {
		st = stagedWallet{base: committedVersion}
	}
	st.w = w
	tx.wallets[w.ID] = st
}

type walletRepo struct{ base }

func (r walletRepo) Get(_ context.Context, id uuid.UUID) (model.Wallet, error) {
	var out model.Wallet
	err := r.run(func(tx *memTx) error {
		w, ok := tx.wallet(id)
		if !ok {
			return storage.ErrNotFound
		}
		out = w
		return nil
	})
	return out, err
}

func (r walletRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (model.Wallet, error) {
	var out model.Wallet
	err := r.run(func(tx *memTx) error {
		if _, ok := tx.wallet(id); !ok {
			return storage.ErrNotFound
		}
		if err := tx.lock(ctx, id); err != nil {
			return err
		}
		w, ok := tx.wallet(id)
		if !ok {
			return storage.ErrNotFound
		}
		out = w
		return nil
	})
	return out, err
}

func (r walletRepo) Create(_ context.Context, w model.Wallet) error {
	return r.run(func(tx *memTx) error {
		if err := tx.writable(); err != nil {
			return err
		}
		if _, exists := tx.wallet(w.ID); exists {
			return storage.ErrDuplicate
		}
		if w.Type == model.WalletTypePrimary && w.Status != model.WalletStatusClosed {
			if live := tx.walletView(func(o model.Wallet) bool { return livePrimaryOf(o, w.OwnerID) }); len(live) > 0 {
				return storage.ErrDuplicate
			}
		}
		tx.wallets[w.ID] = stagedWallet{w: w, base: -1, created: true}
		return nil
	})
}

func (r walletRepo) UpdateBalance(_ context.Context, id uuid.UUID, balance decimal.Decimal, expectedVersion int64) error {
	return r.run(func(tx *memTx) error {
		if err := tx.writable(); err != nil {
			return err
		}
		w, ok := tx.wallet(id)
		if !ok {
			return storage.ErrNotFound
		}
		if w.Version != expectedVersion {
			return storage.ErrConflict
		}
		w.Balance = balance
		w.Version++
		w.UpdatedAt = time.Now().UTC()
		tx.stageWallet(w, expectedVersion)
		return nil
	})
}

func (r walletRepo) SetStatus(_ context.Context, id uuid.UUID, status model.WalletStatus, expectedVersion int64) error {
	return r.run(func(tx *memTx) error {
		if err := tx.writable(); err != nil {
			return err
		}
		w, ok := tx.wallet(id)
		if !ok {
			return storage.ErrNotFound
		}
		if w.Version != expectedVersion {
			return storage.ErrConflict
		}
		w.Status = status
		w.Version++
		w.UpdatedAt = time.Now().UTC()
		tx.stageWallet(w, expectedVersion)
		return nil
	})
}

func (r walletRepo) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]model.Wallet, error) {
	var out []model.Wallet
	err := r.run(func(tx *memTx) error {
		out = tx.walletView(func(w model.Wallet) bool { return w.OwnerID == ownerID })
		return nil
	})
	return out, err
}

func (r walletRepo) ListByOrganization(_ context.Context, orgID uuid.UUID) ([]model.Wallet, error) {
	var out []model.Wallet
	err := r.run(func(tx *memTx) error {
		out = tx.walletView(func(w model.Wallet) bool { return w.OrgID == orgID })
		return nil
	})
	return out, err
}

func (r walletRepo) FindPrimary(_ context.Context, ownerID uuid.UUID) (model.Wallet, error) {
	var out model.Wallet
	err := r.run(func(tx *memTx) error {
		live := tx.walletView(func(w model.Wallet) bool { return livePrimaryOf(w, ownerID) })
		if len(live) == 0 {
			return storage.ErrNotFound
		}
		out = live[0]
		return nil
	})
	return out, err
}

func (tx *memTx) transaction(id uuid.UUID) (model.Transaction, bool) {
	if st, ok := tx.txs[id]; ok {
		return st.t, true
	}
	var (
		t  model.Transaction
		ok bool
	)
	tx.read(func() { t, ok = tx.s.txs[id] })
	return t, ok
}

func (tx *memTx) transactionView(keep func(model.Transaction) bool) []model.Transaction {
	var out []model.Transaction
	tx.read(func() {
		for id, t := range tx.s.txs {
			if _, staged := tx.txs[id]; staged {
				continue
			}
			if keep(t) {
				out = append(out, t)
			}
		}
	})
	for _, st := range tx.txs {
		if keep(st.t) {
			out = append(out, st.t)
		}
	}
	return out
}

type transactionRepo struct{ base }

func (r transactionRepo) Create(_ context.Context, t model.Transaction) error {
	return r.run(func(tx *memTx) error {
		if err := tx.writable(); err != nil {
			return err
		}
		if _, exists := tx.transaction(t.ID); exists {
			return storage.ErrDuplicate
		}
		if t.ReferenceID != "" && t.Status != model.TransactionFailed {
			if dup := tx.transactionView(func(o model.Transaction) bool { return activeReference(o, t.ReferenceKey()) }); len(dup) > 0 {
				return storage.ErrDuplicate
			}
		}
		tx.txs[t.ID] = stagedTx{t: t, created: true}
		return nil
	})
}

func (r transactionRepo) Get(_ context.Context, id uuid.UUID) (model.Transaction, error) {
	var out model.Transaction
	err := r.run(func(tx *memTx) error {
		t, ok := tx.transaction(id)
		if !ok {
			return storage.ErrNotFound
		}
		out = t
		return nil
	})
	return out, err
}

func (r transactionRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (model.Transaction, error) {
	var out model.Transaction
	err := r.run(func(tx *memTx) error {
		if _, ok := tx.transaction(id); !ok {
			return storage.ErrNotFound
		}
		if err := tx.lock(ctx, id); err != nil {
			return err
		}
		t, ok := tx.transaction(id)
		if !ok {
			return storage.ErrNotFound
		}
		out = t
		return nil
	})
	return out, err
}

func (r transactionRepo) FindActiveByReference(_ context.Context, key model.ReferenceKey) (model.Transaction, error) {
	var out model.Transaction
	err := r.run(func(tx *memTx) error {
		found := tx.transactionView(func(t model.Transaction) bool { return activeReference(t, key) })
		if key.ReferenceID == "" || len(found) == 0 {
			return storage.ErrNotFound
		}
		out = found[0]
		return nil
	})
	return out, err
}

func (r transactionRepo) UpdateStatus(_ context.Context, t model.Transaction) error {
	return r.run(func(tx *memTx) error {
		if err := tx.writable(); err != nil {
			return err
		}
		current, ok := tx.transaction(t.ID)
		if !ok {
			return storage.ErrNotFound
		}
		current.Status = t.Status
		current.FailureReason = t.FailureReason
		current.CompletedAt = t.CompletedAt
		st := tx.txs[t.ID]
		st.t = current
		tx.txs[t.ID] = st
		return nil
	})
}

func (r transactionRepo) List(_ context.Context, f model.TransactionFilter) ([]model.Transaction, int, error) {
	f = f.Normalize()
	var (
		page  []model.Transaction
		total int
	)
	err := r.run(func(tx *memTx) error {
		all := tx.transactionView(f.Matches)
		sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
		total = len(all)
		start := f.Offset()
		if start >= total {
			return nil
		}
		end := start + f.PageSize
		if end > total {
			end = total
		}
		page = all[start:end]
		return nil
	})
	return page, total, err
}

type ledgerRepo struct{ base }

func (tx *memTx) entryView(keep func(model.LedgerEntry) bool) []model.LedgerEntry {
	var out []model.LedgerEntry
	tx.read(func() {
		for _, e := range tx.s.entries {
			if keep(e) {
				out = append(out, e)
			}
		}
	})
	for _, e := range tx.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func (r ledgerRepo) Append(_ context.Context, entries ...model.LedgerEntry) error {
	return r.run(func(tx *memTx) error {
		if err := tx.writable(); err != nil {
			return err
		}
		for _, e := range entries {
			if _, ok := tx.transaction(e.TransactionID); !ok {
				return storage.ErrNotFound
			}
		}
		tx.entries = append(tx.entries, entries...)
		return nil
	})
}

func (r ledgerRepo) SumForWallet(_ context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	sum := decimal.Zero
	err := r.run(func(tx *memTx) error {
		for _, e := range tx.entryView(func(e model.LedgerEntry) bool { return e.WalletID == walletID }) {
			if t, ok := tx.transaction(e.TransactionID); ok && t.Status == model.TransactionCompleted {
				sum = sum.Add(e.Signed())
			}
		}
		return nil
	})
	return sum, err
}

func (r ledgerRepo) ListByTransaction(_ context.Context, txID uuid.UUID) ([]model.LedgerEntry, error) {
	var out []model.LedgerEntry
	err := r.run(func(tx *memTx) error {
		out = tx.entryView(func(e model.LedgerEntry) bool { return e.TransactionID == txID })
		return nil
	})
	return out, err
}

func (r ledgerRepo) ListByWallet(_ context.Context, walletID uuid.UUID, limit int) ([]model.LedgerEntry, error) {
	var out []model.LedgerEntry
	err := r.run(func(tx *memTx) error {
		all := tx.entryView(func(e model.LedgerEntry) bool { return e.WalletID == walletID })
		// newest first
		for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
			all[i], all[j] = all[j], all[i]
		}
		if limit > 0 && len(all) > limit {
			all = all[:limit]
		}
		out = all
		return nil
	})
	return out, err
}

type auditRepo struct{ base }

func (r auditRepo) Record(_ context.Context, entry model.AuditLog) error {
	return r.run(func(tx *memTx) error {
		if err := tx.writable(); err != nil {
			return err
		}
		tx.audit = append(tx.audit, entry)
		return nil
	})
}

type outboxRepo struct{ base }

func (r outboxRepo) Append(_ context.Context, ev model.OutboxEvent) error {
	return r.run(func(tx *memTx) error {
		if err := tx.writable(); err != nil {
			return err
		}
		tx.outbox = append(tx.outbox, ev)
		return nil
	})
}

func (r outboxRepo) FetchPending(_ context.Context, limit int) ([]model.OutboxEvent, error) {
	var out []model.OutboxEvent
	err := r.run(func(tx *memTx) error {
		tx.read(func() {
			for _, ev := range tx.s.outbox {
				if ev.DispatchedAt != nil {
					continue
				}
				out = append(out, ev)
				if limit > 0 && len(out) == limit {
					return
				}
			}
		})
		return nil
	})
	return out, err
}

func (r outboxRepo) MarkDispatched(_ context.Context, id uuid.UUID, at time.Time) error {
	return r.run(func(tx *memTx) error {
		if err := tx.writable(); err != nil {
			return err
		}
		ts := at.UTC()
		tx.marks = append(tx.marks, outboxMark{id: id, at: &ts})
		return nil
	})
}

func (r outboxRepo) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	return r.run(func(tx *memTx) error {
		if err := tx.writable(); err != nil {
			return err
		}
		tx.marks = append(tx.marks, outboxMark{id: id, reason: reason})
		return nil
	})
}

type reconcileRepo struct{ base }

func (r reconcileRepo) Save(_ context.Context, job model.ReconcileJob) error {
	return r.run(func(tx *memTx) error {
		if err := tx.writable(); err != nil {
			return err
		}
		tx.jobs = append(tx.jobs, job)
		return nil
	})
}

func (r reconcileRepo) ListByScope(_ context.Context, scopeID uuid.UUID, limit int) ([]model.ReconcileJob, error) {
	var out []model.ReconcileJob
	err := r.run(func(tx *memTx) error {
		tx.read(func() {
			for i := len(tx.s.jobs) - 1; i >= 0; i-- {
				if tx.s.jobs[i].ScopeID != scopeID {
					continue
				}
				out = append(out, tx.s.jobs[i])
				if limit > 0 && len(out) == limit {
					return
				}
			}
		})
		return nil
	})
	return out, err
}
