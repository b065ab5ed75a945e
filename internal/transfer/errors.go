package transfer

import (
	"errors"

	"github.com/congo-pay/walletledger/internal/storage"
)

var (
	// ErrSameWallet is returned when sender and receiver are the same wallet.
	ErrSameWallet = errors.New("sender and receiver wallet must differ")
	// ErrInvalidAmount is returned for non-positive amounts or amounts with
	// more than two decimal places.
	ErrInvalidAmount = errors.New("amount must be positive with at most two decimal places")
	// ErrInvalidCurrency is returned when the requested currency is not a
	// three letter code.
	ErrInvalidCurrency = errors.New("invalid currency code")
	// ErrCurrencyMismatch is returned when a wallet currency differs from the
	// requested currency.
	ErrCurrencyMismatch = errors.New("currency mismatch")
	// ErrWalletNotFound covers both missing wallets and wallets outside the
	// caller's scope.
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrWalletInactive is returned when either wallet is not ACTIVE.
	ErrWalletInactive = errors.New("wallet is not active")
	// ErrInsufficientBalance is returned when the sender cannot cover the
	// amount. A FAILED transaction is recorded.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrIntegrity signals a ledger/balance mismatch detected mid-transfer.
	ErrIntegrity = errors.New("ledger integrity violation")
	// ErrTransactionNotFound is returned when a transaction is missing or
	// belongs to another organization.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrNotCancellable is returned when cancelling a transaction that already
	// reached a terminal state.
	ErrNotCancellable = errors.New("transaction is not cancellable")

	// ErrLockTimeout and ErrConflict are retryable.
	ErrLockTimeout = storage.ErrLockTimeout
	ErrConflict    = storage.ErrConflict
)

// IsRetryable reports whether the caller may retry the same request.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout) || errors.Is(err, ErrConflict)
}

// recordsFailure reports whether err happened late enough that a FAILED
// transaction row must be written.
func recordsFailure(err error) bool {
	switch {
	case errors.Is(err, ErrWalletNotFound),
		errors.Is(err, ErrWalletInactive),
		errors.Is(err, ErrCurrencyMismatch):
		return false
	}
	return true
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient balance"
	case errors.Is(err, ErrLockTimeout):
		return "lock timeout"
	case errors.Is(err, ErrConflict):
		return "concurrent modification"
	case errors.Is(err, ErrIntegrity):
		return "ledger integrity violation"
	}
	return "internal error: " + err.Error()
}
