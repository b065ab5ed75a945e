package wallet

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

var (
	// ErrWalletNotFound is returned for missing wallets and wallets outside
	// the caller's organization.
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrDuplicatePrimaryWallet is returned when an owner already has a
	// non-closed PRIMARY wallet.
	ErrDuplicatePrimaryWallet = errors.New("owner already has a primary wallet")
	// ErrInvalidStatusTransition is returned for transitions the wallet state
	// machine does not allow.
	ErrInvalidStatusTransition = errors.New("invalid wallet status transition")
	// ErrWalletNotEmpty is returned when closing a wallet with a balance.
	ErrWalletNotEmpty = errors.New("wallet balance must be zero to close")
	// ErrNotOwner is returned when a non-owner changes wallet status.
	ErrNotOwner = errors.New("not owner of wallet")
)

// Service exposes wallet operations. Balances are only ever changed by the
// transfer executor.
type Service struct {
	store  storage.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds a wallet service instance.
func NewService(store storage.Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// CreateInput captures data required to create a wallet.
type CreateInput struct {
	Type     model.WalletType
	Currency string
}

// Balance is a point-in-time balance read.
type Balance struct {
	WalletID uuid.UUID
	Amount   decimal.Decimal
	Currency string
	AsOf     time.Time
}

// Summary aggregates an organization's wallets.
type Summary struct {
	Total    int
	Active   int
	ByType   map[model.WalletType]int
	ByStatus map[model.WalletStatus]int
	Balances map[string]decimal.Decimal
}

// Create provisions a wallet owned by actor.
func (s *Service) Create(ctx context.Context, actor model.Actor, input CreateInput) (model.Wallet, error) {
	if !input.Type.Valid() {
		return model.Wallet{}, fmt.Errorf("invalid wallet type %q", input.Type)
	}
	currency, err := model.NormalizeCurrency(input.Currency)
	if err != nil {
		return model.Wallet{}, err
	}

	now := s.now()
	w := model.Wallet{
		ID:        uuid.New(),
		OwnerID:   actor.ID,
		OrgID:     actor.OrgID,
		Currency:  currency,
		Balance:   decimal.Zero,
		Type:      input.Type,
		Status:    model.WalletStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if w.Type == model.WalletTypePrimary {
			if _, err := tx.Wallets().FindPrimary(ctx, w.OwnerID); err == nil {
				return ErrDuplicatePrimaryWallet
			} else if !errors.Is(err, storage.ErrNotFound) {
				return err
			}
		}
		if err := tx.Wallets().Create(ctx, w); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				return ErrDuplicatePrimaryWallet
			}
			return err
		}
		return tx.Audit().Record(ctx, model.AuditLog{
			ID:        uuid.New(),
			ActorID:   actor.String(),
			Operation: model.OpWalletCreated,
			Metadata: map[string]any{
				"wallet_id": w.ID.String(),
				"type":      string(w.Type),
				"currency":  w.Currency,
			},
			CreatedAt: now,
		})
	})
	if err != nil {
		return model.Wallet{}, err
	}

	s.logger.Info("wallet created",
		slog.String("wallet_id", w.ID.String()),
		slog.String("owner_id", w.OwnerID.String()),
		slog.String("type", string(w.Type)),
	)
	return w, nil
}

// Get retrieves a wallet of actor's organization.
func (s *Service) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (model.Wallet, error) {
	w, err := s.store.Wallets().Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && w.OrgID != actor.OrgID) {
		return model.Wallet{}, ErrWalletNotFound
	}
	return w, err
}

// ListByOwner returns the actor's wallets.
func (s *Service) ListByOwner(ctx context.Context, actor model.Actor) ([]model.Wallet, error) {
	return s.store.Wallets().ListByOwner(ctx, actor.ID)
}

// Primary returns the actor's live PRIMARY wallet.
func (s *Service) Primary(ctx context.Context, actor model.Actor) (model.Wallet, error) {
	w, err := s.store.Wallets().FindPrimary(ctx, actor.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Wallet{}, ErrWalletNotFound
	}
	return w, err
}

// Balance returns the stored balance of a wallet.
func (s *Service) Balance(ctx context.Context, actor model.Actor, id uuid.UUID) (Balance, error) {
	w, err := s.Get(ctx, actor, id)
	if err != nil {
		return Balance{}, err
	}
	return Balance{WalletID: w.ID, Amount: w.Balance, Currency: w.Currency, AsOf: s.now()}, nil
}

// SetStatus moves the wallet through its state machine. Only the owner may
// change status, and a wallet is closed only when empty.
func (s *Service) SetStatus(ctx context.Context, actor model.Actor, id uuid.UUID, status model.WalletStatus) (model.Wallet, error) {
	var updated model.Wallet
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		w, err := tx.Wallets().GetForUpdate(ctx, id)
		if errors.Is(err, storage.ErrNotFound) || (err == nil && w.OrgID != actor.OrgID) {
			return ErrWalletNotFound
		}
		if err != nil {
			return err
		}
		if w.OwnerID != actor.ID {
			return ErrNotOwner
		}
		if !w.Status.CanTransitionTo(status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, w.Status, status)
		}
		if status == model.WalletStatusClosed && !w.Balance.IsZero() {
			return ErrWalletNotEmpty
		}
		if err := tx.Wallets().SetStatus(ctx, id, status, w.Version); err != nil {
			return err
		}
		if err := tx.Audit().Record(ctx, model.AuditLog{
			ID:        uuid.New(),
			ActorID:   actor.String(),
			Operation: model.OpWalletStatus,
			Metadata: map[string]any{
				"wallet_id": id.String(),
				"from":      string(w.Status),
				"to":        string(status),
			},
			CreatedAt: s.now(),
		}); err != nil {
			return err
		}
		updated, err = tx.Wallets().Get(ctx, id)
		return err
	})
	if err != nil {
		return model.Wallet{}, err
	}
	s.logger.Info("wallet status changed", slog.String("wallet_id", id.String()), slog.String("status", string(status)))
	return updated, nil
}

// Summary aggregates every wallet of actor's organization.
func (s *Service) Summary(ctx context.Context, actor model.Actor) (Summary, error) {
	wallets, err := s.store.Wallets().ListByOrganization(ctx, actor.OrgID)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{
		ByType:   map[model.WalletType]int{},
		ByStatus: map[model.WalletStatus]int{},
		Balances: map[string]decimal.Decimal{},
	}
	for _, w := range wallets {
		sum.Total++
		if w.IsActive() {
			sum.Active++
		}
		sum.ByType[w.Type]++
		sum.ByStatus[w.Status]++
		sum.Balances[w.Currency] = sum.Balances[w.Currency].Add(w.Balance)
	}
	return sum, nil
}
