package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WalletType classifies what a wallet is used for.
type WalletType string

const (
	WalletTypePrimary WalletType = "PRIMARY"
	WalletTypeBonus   WalletType = "BONUS"
	WalletTypeSystem  WalletType = "SYSTEM"
)

// ParseWalletType converts user input into a WalletType.
func ParseWalletType(s string) (WalletType, error) {
	t := WalletType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown wallet type %q", s)
	}
	return t, nil
}

// Valid reports whether t is one of the known wallet types.
func (t WalletType) Valid() bool {
	switch t {
	case WalletTypePrimary, WalletTypeBonus, WalletTypeSystem:
		return true
	}
	return false
}

// WalletStatus is the lifecycle state of a wallet.
type WalletStatus string

const (
	WalletStatusActive WalletStatus = "ACTIVE"
	WalletStatusLocked WalletStatus = "LOCKED"
	WalletStatusClosed WalletStatus = "CLOSED"
)

var walletTransitions = map[WalletStatus][]WalletStatus{
	WalletStatusActive: {WalletStatusLocked, WalletStatusClosed},
	WalletStatusLocked: {WalletStatusActive, WalletStatusClosed},
}

// ParseWalletStatus converts user input into a WalletStatus.
func ParseWalletStatus(s string) (WalletStatus, error) {
	st := WalletStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown wallet status %q", s)
	}
	return st, nil
}

// Valid reports whether s is one of the known wallet statuses.
func (s WalletStatus) Valid() bool {
	switch s {
	case WalletStatusActive, WalletStatusLocked, WalletStatusClosed:
		return true
	}
	return false
}

// CanTransitionTo reports whether a wallet may move from s to next.
// CLOSED is terminal.
func (s WalletStatus) CanTransitionTo(next WalletStatus) bool {
	for _, allowed := range walletTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Wallet is a stored-value account. Balance always equals the signed sum of
// the wallet's ledger entries from completed transactions.
type Wallet struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	OrgID     uuid.UUID
	Currency  string
	Balance   decimal.Decimal
	Type      WalletType
	Status    WalletStatus
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActive reports whether the wallet can take part in transfers.
func (w Wallet) IsActive() bool {
	return w.Status == WalletStatusActive
}
