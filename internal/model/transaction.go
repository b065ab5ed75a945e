package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalidTransition is returned when a status change is not allowed by
// the transaction state machine.
var ErrInvalidTransition = errors.New("invalid status transition")

// TransactionType identifies the kind of value movement.
type TransactionType string

const TransactionTypeTransfer TransactionType = "TRANSFER"

// ParseTransactionType converts user input into a TransactionType.
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(strings.ToUpper(strings.TrimSpace(s)))
	if t != TransactionTypeTransfer {
		return "", fmt.Errorf("unknown transaction type %q", s)
	}
	return t, nil
}

// TransactionStatus is the lifecycle state of a transaction.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "PENDING"
	TransactionCompleted TransactionStatus = "COMPLETED"
	TransactionFailed    TransactionStatus = "FAILED"
	TransactionCancelled TransactionStatus = "CANCELLED"
)

// PENDING is the only non-terminal state.
var transactionTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionPending: {TransactionCompleted, TransactionFailed, TransactionCancelled},
}

// ParseTransactionStatus converts user input into a TransactionStatus.
func ParseTransactionStatus(s string) (TransactionStatus, error) {
	st := TransactionStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown transaction status %q", s)
	}
	return st, nil
}

// Valid reports whether s is a known status.
func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionPending, TransactionCompleted, TransactionFailed, TransactionCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible from s.
func (s TransactionStatus) IsTerminal() bool {
	return len(transactionTransitions[s]) == 0
}

// CanTransitionTo reports whether the state machine allows s -> next.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	for _, allowed := range transactionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transaction records one transfer attempt between two wallets.
type Transaction struct {
	ID               uuid.UUID
	OrgID            uuid.UUID
	Type             TransactionType
	Status           TransactionStatus
	SenderWalletID   uuid.UUID
	ReceiverWalletID uuid.UUID
	Amount           decimal.Decimal
	Currency         string
	Description      string
	ReferenceID      string
	FailureReason    string
	ActorID          string
	CreatedAt        time.Time
	CompletedAt      *time.Time
}

// ReferenceKey scopes a caller reference id to the organization and the
// debited wallet. Two transactions collide only when all three match.
type ReferenceKey struct {
	OrgID          uuid.UUID
	SenderWalletID uuid.UUID
	ReferenceID    string
}

// ReferenceKey returns the scope under which t's reference id is unique.
func (t Transaction) ReferenceKey() ReferenceKey {
	return ReferenceKey{OrgID: t.OrgID, SenderWalletID: t.SenderWalletID, ReferenceID: t.ReferenceID}
}

// Transition returns a copy of t moved to next. Completion time is stamped
// for every terminal state.
func (t Transaction) Transition(next TransactionStatus, at time.Time) (Transaction, error) {
	if !t.Status.CanTransitionTo(next) {
		return t, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, next)
	}
	t.Status = next
	if next.IsTerminal() {
		ts := at.UTC()
		t.CompletedAt = &ts
	}
	return t, nil
}

// Fail moves a pending transaction to FAILED recording reason.
func (t Transaction) Fail(reason string, at time.Time) (Transaction, error) {
	failed, err := t.Transition(TransactionFailed, at)
	if err != nil {
		return t, err
	}
	failed.FailureReason = reason
	return failed, nil
}

// TransactionFilter narrows transaction listings. Zero values mean "any".
type TransactionFilter struct {
	OrgID    uuid.UUID
	WalletID uuid.UUID
	Status   TransactionStatus
	Type     TransactionType
	From     time.Time
	To       time.Time
	Page     int
	PageSize int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize clamps paging to sane bounds.
func (f TransactionFilter) Normalize() TransactionFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	return f
}

// Offset returns the number of rows to skip for the current page.
func (f TransactionFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// Matches reports whether t satisfies the filter.
func (f TransactionFilter) Matches(t Transaction) bool {
	if f.OrgID != uuid.Nil && t.OrgID != f.OrgID {
		return false
	}
	if f.WalletID != uuid.Nil && t.SenderWalletID != f.WalletID && t.ReceiverWalletID != f.WalletID {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if !f.From.IsZero() && t.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && t.CreatedAt.After(f.To) {
		return false
	}
	return true
}
