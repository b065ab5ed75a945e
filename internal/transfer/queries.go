package transfer

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/congo-pay/walletledger/internal/model"
	"github.com/congo-pay/walletledger/internal/storage"
)

// Page is one page of transactions.
type Page struct {
	Items    []model.Transaction
	Total    int
	Page     int
	PageSize int
}

// Get returns a transaction visible to actor's organization.
func (e *Executor) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (model.Transaction, error) {
	t, err := e.store.Transactions().Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && t.OrgID != actor.OrgID) {
		return model.Transaction{}, ErrTransactionNotFound
	}
	return t, err
}

// List returns transactions of actor's organization, newest first. A wallet
// filter must name a wallet of the same organization.
func (e *Executor) List(ctx context.Context, actor model.Actor, f model.TransactionFilter) (Page, error) {
	f.OrgID = actor.OrgID
	f = f.Normalize()
	if f.WalletID != uuid.Nil {
		if _, err := e.scopedWallet(ctx, actor, f.WalletID); err != nil {
			return Page{}, err
		}
	}
	items, total, err := e.store.Transactions().List(ctx, f)
	if err != nil {
		return Page{}, err
	}
	return Page{Items: items, Total: total, Page: f.Page, PageSize: f.PageSize}, nil
}

// Entries returns the ledger rows of one transaction.
func (e *Executor) Entries(ctx context.Context, actor model.Actor, id uuid.UUID) ([]model.LedgerEntry, error) {
	if _, err := e.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return e.store.Ledger().ListByTransaction(ctx, id)
}

// WalletEntries returns the most recent ledger rows of a wallet.
func (e *Executor) WalletEntries(ctx context.Context, actor model.Actor, walletID uuid.UUID, limit int) ([]model.LedgerEntry, error) {
	if _, err := e.scopedWallet(ctx, actor, walletID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > model.MaxPageSize {
		limit = model.DefaultPageSize
	}
	return e.store.Ledger().ListByWallet(ctx, walletID, limit)
}

func (e *Executor) scopedWallet(ctx context.Context, actor model.Actor, id uuid.UUID) (model.Wallet, error) {
	w, err := e.store.Wallets().Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && w.OrgID != actor.OrgID) {
		return model.Wallet{}, ErrWalletNotFound
	}
	return w, err
}
