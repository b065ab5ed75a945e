package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/walletledger/internal/config"
	"github.com/congo-pay/walletledger/internal/logging"
	"github.com/congo-pay/walletledger/internal/model"
	"github.com/congo-pay/walletledger/internal/outbox"
	"github.com/congo-pay/walletledger/internal/storage"
	"github.com/congo-pay/walletledger/internal/storage/memory"
	"github.com/congo-pay/walletledger/internal/storage/storagetest"
)

func newTestRuntime(t *testing.T) (*runtime, *memory.Store, *bytes.Buffer) {
	t.Helper()
	store := memory.New()
	out := &bytes.Buffer{}
	logger := logging.Discard()
	rt := &runtime{
		cfg:    config.Config{RelayBatchSize: 10},
		logger: logger,
		out:    out,
		openStore: func(context.Context) (storage.Store, func(), error) {
			return store, func() {}, nil
		},
		migrate: func(context.Context) error { return nil },
		openPublisher: func() (outbox.Publisher, func(), error) {
			return outbox.NewLogPublisher(logger), func() {}, nil
		},
	}
	return rt, store, out
}

func TestSystemWalletCommand(t *testing.T) {
	rt, store, out := newTestRuntime(t)
	owner, org := uuid.New(), uuid.New()

	err := executeContext(context.Background(), rt, "system-wallet",
		"--owner", owner.String(), "--org", org.String(), "--currency", "inr")
	require.NoError(t, err)

	id, err := uuid.Parse(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	w, err := store.Wallets().Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.WalletTypeSystem, w.Type)
	assert.Equal(t, "INR", w.Currency)
	assert.Equal(t, org, w.OrgID)
}

func TestSystemWalletCommandRequiresFlags(t *testing.T) {
	rt, _, _ := newTestRuntime(t)
	err := executeContext(context.Background(), rt, "system-wallet", "--owner", uuid.NewString())
	require.Error(t, err)
}

func TestReconcileCommand(t *testing.T) {
	rt, store, out := newTestRuntime(t)
	owner, org := uuid.New(), uuid.New()
	require.NoError(t, executeContext(context.Background(), rt, "system-wallet",
		"--owner", owner.String(), "--org", org.String(), "--currency", "USD"))
	walletID := strings.TrimSpace(out.String())
	out.Reset()

	require.NoError(t, executeContext(context.Background(), rt, "reconcile", "--wallet", walletID))
	assert.Contains(t, out.String(), string(model.ReconcileOK))

	storagetest.ForceBalance(t, store, uuid.MustParse(walletID), decimal.RequireFromString("5"))
	out.Reset()
	err := executeContext(context.Background(), rt, "reconcile", "--org", org.String())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drift detected")
	assert.Contains(t, out.String(), string(model.ReconcileDrift))
	assert.Contains(t, out.String(), "drift=5.00")
}

func TestReconcileCommandNeedsOneScope(t *testing.T) {
	rt, _, _ := newTestRuntime(t)
	assert.Error(t, executeContext(context.Background(), rt, "reconcile"))
	assert.Error(t, executeContext(context.Background(), rt, "reconcile",
		"--wallet", uuid.NewString(), "--org", uuid.NewString()))
}

func TestRelayOnce(t *testing.T) {
	rt, store, out := newTestRuntime(t)
	require.NoError(t, store.WithinTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return tx.Outbox().Append(ctx, model.OutboxEvent{
			ID:          uuid.New(),
			AggregateID: uuid.New(),
			EventType:   model.EventTransactionCompleted,
			Payload:     []byte(`{}`),
		})
	}))

	require.NoError(t, executeContext(context.Background(), rt, "relay", "--once"))
	assert.Equal(t, "dispatched=1 failed=0\n", out.String())
	for _, ev := range memory.OutboxEvents(store) {
		assert.NotNil(t, ev.DispatchedAt)
	}
}

func TestMigrateCommand(t *testing.T) {
	rt, _, out := newTestRuntime(t)
	require.NoError(t, executeContext(context.Background(), rt, "migrate"))
	assert.Contains(t, out.String(), "schema up to date")

	rt.migrate = func(context.Context) error { return errors.New("boom") }
	err := executeContext(context.Background(), rt, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
