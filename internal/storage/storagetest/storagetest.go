// Package storagetest holds helpers for tests that need to put a store into
// states the ledger services never produce.
package storagetest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/walletledger/internal/storage"
)

// ForceBalance overwrites a wallet balance without posting ledger entries,
// leaving the wallet drifted from its ledger.
func ForceBalance(t testing.TB, s storage.Store, walletID uuid.UUID, balance decimal.Decimal) {
	t.Helper()
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		w, err := tx.Wallets().Get(ctx, walletID)
		if err != nil {
			return err
		}
		return tx.Wallets().UpdateBalance(ctx, walletID, balance, w.Version)
	})
	require.NoError(t, err)
}
