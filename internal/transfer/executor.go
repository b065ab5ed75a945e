// Package transfer moves value between wallets as one atomic unit of work
// producing a paired DEBIT/CREDIT ledger posting.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletledger/internal/model"
	"github.com/congo-pay/walletledger/internal/storage"
)

// Config tunes executor behaviour.
type Config struct {
	// StrictLedgerCheck re-sums both wallets' ledgers before commit.
	StrictLedgerCheck bool
	// SystemOverdraft lets SYSTEM wallets go negative.
	SystemOverdraft bool
	// FailureTimeout bounds the write of a FAILED record after the caller's
	// context is gone.
	FailureTimeout time.Duration
}

// Executor runs transfers against a storage.Store.
type Executor struct {
	store  storage.Store
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewExecutor constructs an executor.
func NewExecutor(store storage.Store, cfg Config, logger *slog.Logger) *Executor {
	if cfg.FailureTimeout <= 0 {
		cfg.FailureTimeout = 5 * time.Second
	}
	return &Executor{
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Request describes a transfer.
type Request struct {
	SenderWalletID   uuid.UUID
	ReceiverWalletID uuid.UUID
	Amount           decimal.Decimal
	Currency         string
	Description      string
	ReferenceID      string
}

// Execute validates and performs a transfer on behalf of actor.
//
// A replay of a reference id that already has a non-FAILED transaction
// returns that transaction unchanged. On insufficient balance, lock timeout,
// conflict or integrity failure the FAILED transaction is returned together
// with the error.
func (e *Executor) Execute(ctx context.Context, actor model.Actor, req Request) (model.Transaction, error) {
	if req.SenderWalletID == req.ReceiverWalletID {
		return model.Transaction{}, ErrSameWallet
	}
	if !model.ValidAmount(req.Amount) {
		return model.Transaction{}, ErrInvalidAmount
	}
	currency, err := model.NormalizeCurrency(req.Currency)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("%w: %v", ErrInvalidCurrency, err)
	}

	draft := model.Transaction{
		ID:               uuid.New(),
		OrgID:            actor.OrgID,
		Type:             model.TransactionTypeTransfer,
		Status:           model.TransactionPending,
		SenderWalletID:   req.SenderWalletID,
		ReceiverWalletID: req.ReceiverWalletID,
		Amount:           req.Amount,
		Currency:         currency,
		Description:      req.Description,
		ReferenceID:      req.ReferenceID,
		ActorID:          actor.String(),
		CreatedAt:        e.now(),
	}

	var (
		result   model.Transaction
		resolved bool
		replayed bool
	)
	err = e.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		sender, receiver, err := e.resolve(ctx, tx, actor, draft)
		if err != nil {
			return err
		}
		resolved = true

		sender, receiver, err = lockPair(ctx, tx, sender.ID, receiver.ID)
		if err != nil {
			return err
		}
		if !sender.IsActive() || !receiver.IsActive() {
			return ErrWalletInactive
		}
		if sender.Currency != currency || receiver.Currency != currency {
			return ErrCurrencyMismatch
		}

		if draft.ReferenceID != "" {
			existing, err := tx.Transactions().FindActiveByReference(ctx, draft.ReferenceKey())
			if err == nil {
				result, replayed = existing, true
				return nil
			}
			if !errors.Is(err, storage.ErrNotFound) {
				return err
			}
		}

		if !e.canDebit(sender, draft.Amount) {
			return ErrInsufficientBalance
		}

		result, err = e.post(ctx, tx, draft, sender, receiver)
		return err
	})

	switch {
	case err == nil && replayed:
		e.checkReplay(result, draft)
		return result, nil
	case err == nil:
		e.logger.Info("transfer completed",
			slog.String("transaction_id", result.ID.String()),
			slog.String("sender_wallet_id", result.SenderWalletID.String()),
			slog.String("receiver_wallet_id", result.ReceiverWalletID.String()),
			slog.String("amount", result.Amount.StringFixed(model.MinorUnits)),
			slog.String("currency", result.Currency),
		)
		return result, nil
	case errors.Is(err, storage.ErrDuplicate) && draft.ReferenceID != "":
		// another request with the same reference committed first
		existing, findErr := e.store.Transactions().FindActiveByReference(ctx, draft.ReferenceKey())
		if findErr == nil {
			e.checkReplay(existing, draft)
			return existing, nil
		}
	}

	if !resolved || !recordsFailure(err) {
		return model.Transaction{}, err
	}
	failed, recErr := e.recordFailure(ctx, actor, draft, err)
	if recErr != nil {
		return model.Transaction{}, errors.Join(err, recErr)
	}
	return failed, err
}

// resolve loads both wallets without locking and checks the actor's scope:
// both wallets must belong to the actor's organization and the sender to the
// actor. Out-of-scope wallets are reported as not found.
func (e *Executor) resolve(ctx context.Context, tx storage.Tx, actor model.Actor, draft model.Transaction) (model.Wallet, model.Wallet, error) {
	sender, err := tx.Wallets().Get(ctx, draft.SenderWalletID)
	if err != nil {
		return model.Wallet{}, model.Wallet{}, walletErr(err)
	}
	receiver, err := tx.Wallets().Get(ctx, draft.ReceiverWalletID)
	if err != nil {
		return model.Wallet{}, model.Wallet{}, walletErr(err)
	}
	if sender.OrgID != actor.OrgID || receiver.OrgID != actor.OrgID || sender.OwnerID != actor.ID {
		return model.Wallet{}, model.Wallet{}, ErrWalletNotFound
	}
	return sender, receiver, nil
}

// lockPair takes row locks on both wallets in lexicographic id order and
// returns them as (sender, receiver).
func lockPair(ctx context.Context, tx storage.Tx, senderID, receiverID uuid.UUID) (model.Wallet, model.Wallet, error) {
	first, second := senderID, receiverID
	if first.String() > second.String() {
		first, second = second, first
	}
	a, err := tx.Wallets().GetForUpdate(ctx, first)
	if err != nil {
		return model.Wallet{}, model.Wallet{}, walletErr(err)
	}
	b, err := tx.Wallets().GetForUpdate(ctx, second)
	if err != nil {
		return model.Wallet{}, model.Wallet{}, walletErr(err)
	}
	if a.ID == senderID {
		return a, b, nil
	}
	return b, a, nil
}

func walletErr(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrWalletNotFound
	}
	return err
}

func (e *Executor) canDebit(sender model.Wallet, amount decimal.Decimal) bool {
	if sender.Type == model.WalletTypeSystem && e.cfg.SystemOverdraft {
		return true
	}
	return sender.Balance.GreaterThanOrEqual(amount)
}

// post performs the balance mutation and ledger posting. Every write lands in
// tx; any error rolls all of them back.
func (e *Executor) post(ctx context.Context, tx storage.Tx, draft model.Transaction, sender, receiver model.Wallet) (model.Transaction, error) {
	if err := tx.Transactions().Create(ctx, draft); err != nil {
		return model.Transaction{}, err
	}

	senderAfter := sender.Balance.Sub(draft.Amount)
	receiverAfter := receiver.Balance.Add(draft.Amount)
	if err := tx.Wallets().UpdateBalance(ctx, sender.ID, senderAfter, sender.Version); err != nil {
		return model.Transaction{}, err
	}
	if err := tx.Wallets().UpdateBalance(ctx, receiver.ID, receiverAfter, receiver.Version); err != nil {
		return model.Transaction{}, err
	}

	now := e.now()
	debit := model.LedgerEntry{
		ID:            uuid.New(),
		TransactionID: draft.ID,
		WalletID:      sender.ID,
		Direction:     model.Debit,
		Amount:        draft.Amount,
		BalanceAfter:  senderAfter,
		CreatedAt:     now,
	}
	credit := model.LedgerEntry{
		ID:            uuid.New(),
		TransactionID: draft.ID,
		WalletID:      receiver.ID,
		Direction:     model.Credit,
		Amount:        draft.Amount,
		BalanceAfter:  receiverAfter,
		CreatedAt:     now,
	}
	if err := checkPair(draft, debit, credit); err != nil {
		return model.Transaction{}, err
	}
	if err := tx.Ledger().Append(ctx, debit, credit); err != nil {
		return model.Transaction{}, err
	}

	completed, err := draft.Transition(model.TransactionCompleted, now)
	if err != nil {
		return model.Transaction{}, err
	}
	if err := tx.Transactions().UpdateStatus(ctx, completed); err != nil {
		return model.Transaction{}, err
	}

	if e.cfg.StrictLedgerCheck {
		if err := verifyLedger(ctx, tx, sender.ID, senderAfter); err != nil {
			return model.Transaction{}, err
		}
		if err := verifyLedger(ctx, tx, receiver.ID, receiverAfter); err != nil {
			return model.Transaction{}, err
		}
	}

	if err := e.recordOutcome(ctx, tx, completed, model.OpTransferCompleted); err != nil {
		return model.Transaction{}, err
	}
	return completed, nil
}

// checkPair asserts the double-entry invariants of one posting.
func checkPair(t model.Transaction, debit, credit model.LedgerEntry) error {
	switch {
	case !debit.Amount.Equal(credit.Amount) || !debit.Amount.Equal(t.Amount):
		return fmt.Errorf("%w: entry amounts differ from transaction amount", ErrIntegrity)
	case debit.WalletID != t.SenderWalletID || credit.WalletID != t.ReceiverWalletID:
		return fmt.Errorf("%w: entries posted to the wrong wallets", ErrIntegrity)
	case !debit.Signed().Add(credit.Signed()).IsZero():
		return fmt.Errorf("%w: posting does not balance", ErrIntegrity)
	}
	return nil
}

func verifyLedger(ctx context.Context, tx storage.Tx, walletID uuid.UUID, want decimal.Decimal) error {
	sum, err := tx.Ledger().SumForWallet(ctx, walletID)
	if err != nil {
		return err
	}
	if !sum.Equal(want) {
		return fmt.Errorf("%w: wallet %s balance %s, ledger %s", ErrIntegrity, walletID, want.StringFixed(model.MinorUnits), sum.StringFixed(model.MinorUnits))
	}
	return nil
}

// recordOutcome writes the audit row and outbox event for a terminal
// transaction.
func (e *Executor) recordOutcome(ctx context.Context, tx storage.Tx, t model.Transaction, op string) error {
	now := e.now()
	metadata := map[string]any{
		"transaction_id":     t.ID.String(),
		"sender_wallet_id":   t.SenderWalletID.String(),
		"receiver_wallet_id": t.ReceiverWalletID.String(),
		"amount":             t.Amount.StringFixed(model.MinorUnits),
		"currency":           t.Currency,
		"status":             string(t.Status),
	}
	if t.ReferenceID != "" {
		metadata["reference_id"] = t.ReferenceID
	}
	if t.FailureReason != "" {
		metadata["failure_reason"] = t.FailureReason
	}
	if err := tx.Audit().Record(ctx, model.AuditLog{
		ID:        uuid.New(),
		ActorID:   t.ActorID,
		Operation: op,
		Metadata:  metadata,
		CreatedAt: now,
	}); err != nil {
		return err
	}
	if t.Status == model.TransactionCancelled {
		return nil
	}
	ev, err := model.NewTransactionEvent(t, now)
	if err != nil {
		return err
	}
	return tx.Outbox().Append(ctx, ev)
}

// recordFailure persists draft as FAILED in its own unit of work. It runs
// even when ctx has been cancelled.
func (e *Executor) recordFailure(ctx context.Context, actor model.Actor, draft model.Transaction, cause error) (model.Transaction, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.FailureTimeout)
	defer cancel()

	failed, err := draft.Fail(failureReason(cause), e.now())
	if err != nil {
		return model.Transaction{}, err
	}
	err = e.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.Transactions().Create(ctx, failed); err != nil {
			return err
		}
		return e.recordOutcome(ctx, tx, failed, model.OpTransferFailed)
	})
	if err != nil {
		e.logger.Error("record failed transfer",
			slog.String("transaction_id", failed.ID.String()),
			slog.String("cause", cause.Error()),
			slog.String("error", err.Error()),
		)
		return model.Transaction{}, err
	}

	e.logger.Warn("transfer failed",
		slog.String("transaction_id", failed.ID.String()),
		slog.String("actor_id", actor.String()),
		slog.String("reason", failed.FailureReason),
	)
	return failed, nil
}

// checkReplay logs when a replayed reference id carries a different payload
// from the transaction it resolved to.
func (e *Executor) checkReplay(existing, draft model.Transaction) {
	if existing.SenderWalletID == draft.SenderWalletID &&
		existing.ReceiverWalletID == draft.ReceiverWalletID &&
		existing.Amount.Equal(draft.Amount) &&
		existing.Currency == draft.Currency {
		return
	}
	e.logger.Warn("reference id replayed with different payload",
		slog.String("reference_id", draft.ReferenceID),
		slog.String("transaction_id", existing.ID.String()),
	)
}

// Cancel moves a PENDING transaction to CANCELLED. Terminal transactions are
// immutable; reversal needs a new compensating transfer.
func (e *Executor) Cancel(ctx context.Context, actor model.Actor, id uuid.UUID) (model.Transaction, error) {
	var cancelled model.Transaction
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		t, err := tx.Transactions().GetForUpdate(ctx, id)
		if errors.Is(err, storage.ErrNotFound) || (err == nil && t.OrgID != actor.OrgID) {
			return ErrTransactionNotFound
		}
		if err != nil {
			return err
		}
		next, err := t.Transition(model.TransactionCancelled, e.now())
		if errors.Is(err, model.ErrInvalidTransition) {
			return fmt.Errorf("%w: status is %s", ErrNotCancellable, t.Status)
		}
		if err != nil {
			return err
		}
		if err := tx.Transactions().UpdateStatus(ctx, next); err != nil {
			return err
		}
		next.ActorID = actor.String()
		if err := e.recordOutcome(ctx, tx, next, model.OpTransferCancelled); err != nil {
			return err
		}
		next.ActorID = t.ActorID
		cancelled = next
		return nil
	})
	if err != nil {
		return model.Transaction{}, err
	}
	e.logger.Info("transfer cancelled", slog.String("transaction_id", id.String()), slog.String("actor_id", actor.String()))
	return cancelled, nil
}
