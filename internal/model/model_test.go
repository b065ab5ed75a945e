package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionTransitions(t *testing.T) {
	now := time.Now()
	tx := Transaction{ID: uuid.New(), Status: TransactionPending}

	done, err := tx.Transition(TransactionCompleted, now)
	require.NoError(t, err)
	assert.Equal(t, TransactionCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, TransactionPending, tx.Status, "original must be untouched")

	for _, terminal := range []TransactionStatus{TransactionCompleted, TransactionFailed, TransactionCancelled} {
		assert.True(t, terminal.IsTerminal(), terminal)
		for _, next := range []TransactionStatus{TransactionPending, TransactionCompleted, TransactionFailed, TransactionCancelled} {
			_, err := Transaction{Status: terminal}.Transition(next, now)
			assert.True(t, errors.Is(err, ErrInvalidTransition), "%s -> %s", terminal, next)
		}
	}
}

func TestTransactionFail(t *testing.T) {
	failed, err := Transaction{Status: TransactionPending}.Fail("insufficient balance", time.Now())
	require.NoError(t, err)
	assert.Equal(t, TransactionFailed, failed.Status)
	assert.Equal(t, "insufficient balance", failed.FailureReason)
}

func TestWalletStatusTransitions(t *testing.T) {
	assert.True(t, WalletStatusActive.CanTransitionTo(WalletStatusLocked))
	assert.True(t, WalletStatusLocked.CanTransitionTo(WalletStatusActive))
	assert.True(t, WalletStatusActive.CanTransitionTo(WalletStatusClosed))
	assert.False(t, WalletStatusClosed.CanTransitionTo(WalletStatusActive))
	assert.False(t, WalletStatusActive.CanTransitionTo(WalletStatusActive))
}

func TestValidAmount(t *testing.T) {
	cases := map[string]bool{
		"100.00": true,
		"0.01":   true,
		"1":      true,
		"0":      false,
		"-5.00":  false,
		"1.005":  false,
	}
	for in, want := range cases {
		assert.Equal(t, want, ValidAmount(decimal.RequireFromString(in)), in)
	}
}

func TestNormalizeCurrency(t *testing.T) {
	c, err := NormalizeCurrency(" inr ")
	require.NoError(t, err)
	assert.Equal(t, "INR", c)

	for _, bad := range []string{"", "US", "USDT", "U$D"} {
		_, err := NormalizeCurrency(bad)
		assert.Error(t, err, bad)
	}
}

func TestFilterNormalize(t *testing.T) {
	f := TransactionFilter{}.Normalize()
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, DefaultPageSize, f.PageSize)
	assert.Equal(t, 0, f.Offset())

	f = TransactionFilter{Page: 3, PageSize: 500}.Normalize()
	assert.Equal(t, MaxPageSize, f.PageSize)
	assert.Equal(t, 200, f.Offset())
}

func TestFilterMatches(t *testing.T) {
	org, w1, w2 := uuid.New(), uuid.New(), uuid.New()
	tx := Transaction{OrgID: org, SenderWalletID: w1, ReceiverWalletID: w2, Status: TransactionCompleted, Type: TransactionTypeTransfer, CreatedAt: time.Now()}

	assert.True(t, TransactionFilter{OrgID: org, WalletID: w2}.Matches(tx))
	assert.False(t, TransactionFilter{OrgID: uuid.New()}.Matches(tx))
	assert.False(t, TransactionFilter{WalletID: uuid.New()}.Matches(tx))
	assert.False(t, TransactionFilter{Status: TransactionFailed}.Matches(tx))
	assert.False(t, TransactionFilter{From: time.Now().Add(time.Hour)}.Matches(tx))
}

func TestNewTransactionEvent(t *testing.T) {
	tx := Transaction{
		ID:       uuid.New(),
		Type:     TransactionTypeTransfer,
		Status:   TransactionFailed,
		Amount:   decimal.RequireFromString("50"),
		Currency: "INR",
	}
	ev, err := NewTransactionEvent(tx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, EventTransactionFailed, ev.EventType)
	assert.Equal(t, tx.ID, ev.AggregateID)

	var body TransactionEventPayload
	require.NoError(t, json.Unmarshal(ev.Payload, &body))
	assert.Equal(t, "50.00", body.Amount)
}

func TestLedgerEntrySigned(t *testing.T) {
	amt := decimal.RequireFromString("12.50")
	assert.True(t, LedgerEntry{Direction: Debit, Amount: amt}.Signed().Equal(amt.Neg()))
	assert.True(t, LedgerEntry{Direction: Credit, Amount: amt}.Signed().Equal(amt))
}
