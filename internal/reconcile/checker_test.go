package reconcile

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/walletledger/internal/httpx"
	"github.com/congo-pay/walletledger/internal/logging"
	"github.com/congo-pay/walletledger/internal/model"
	"github.com/congo-pay/walletledger/internal/storage/memory"
	"github.com/congo-pay/walletledger/internal/storage/storagetest"
	"github.com/congo-pay/walletledger/internal/transfer"
)

type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   *memory.Store
	checker *Checker
	exec    *transfer.Executor
	actor   model.Actor
	issuer  model.Wallet
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	f := &fixture{
		t:       t,
		ctx:     context.Background(),
		store:   store,
		checker: NewChecker(store, logging.Discard()),
		exec:    transfer.NewExecutor(store, transfer.Config{SystemOverdraft: true}, logging.Discard()),
		actor:   model.Actor{ID: uuid.New(), OrgID: uuid.New()},
	}
	f.issuer = f.wallet(model.WalletTypeSystem)
	return f
}

func (f *fixture) wallet(typ model.WalletType) model.Wallet {
	f.t.Helper()
	now := time.Now().UTC()
	w := model.Wallet{
		ID:        uuid.New(),
		OwnerID:   f.actor.ID,
		OrgID:     f.actor.OrgID,
		Currency:  "INR",
		Balance:   decimal.Zero,
		Type:      typ,
		Status:    model.WalletStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(f.t, f.store.Wallets().Create(f.ctx, w))
	return w
}

func (f *fixture) fund(w model.Wallet, amount string) {
	f.t.Helper()
	_, err := f.exec.Execute(f.ctx, f.actor, transfer.Request{
		SenderWalletID:   f.issuer.ID,
		ReceiverWalletID: w.ID,
		Amount:           decimal.RequireFromString(amount),
		Currency:         "INR",
	})
	require.NoError(f.t, err)
}

func TestReconcileWalletOK(t *testing.T) {
	f := newFixture(t)
	w := f.wallet(model.WalletTypePrimary)
	f.fund(w, "150.00")

	job, err := f.checker.ReconcileWallet(f.ctx, f.actor.OrgID, w.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReconcileOK, job.Status)
	assert.Equal(t, "150.00", job.LedgerBalance.StringFixed(2))
	assert.True(t, job.Drift.IsZero())

	issuerJob, err := f.checker.ReconcileWallet(f.ctx, f.actor.OrgID, f.issuer.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReconcileOK, issuerJob.Status)
	assert.Equal(t, "-150.00", issuerJob.LedgerBalance.StringFixed(2))

	for _, ev := range memory.OutboxEvents(f.store) {
		assert.NotEqual(t, model.EventDriftDetected, ev.EventType)
	}
}

func TestReconcileWalletDriftIsReportedNotCorrected(t *testing.T) {
	f := newFixture(t)
	w := f.wallet(model.WalletTypePrimary)
	f.fund(w, "100.00")
	storagetest.ForceBalance(t, f.store, w.ID, decimal.RequireFromString("90.00"))

	job, err := f.checker.ReconcileWallet(f.ctx, f.actor.OrgID, w.ID)
	require.NoError(t, err)
	assert.True(t, job.HasDrift())
	assert.Equal(t, "-10.00", job.Drift.StringFixed(2))
	assert.Equal(t, "90.00", job.RecordedBalance.StringFixed(2))

	stored, err := f.store.Wallets().Get(f.ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "90.00", stored.Balance.StringFixed(2))

	var alerted bool
	for _, log := range memory.AuditLogs(f.store) {
		if log.Operation == model.OpReconcileDrift {
			alerted = true
			assert.Equal(t, model.SystemReconciler, log.ActorID)
		}
	}
	assert.True(t, alerted)

	var payload DriftPayload
	var found bool
	for _, ev := range memory.OutboxEvents(f.store) {
		if ev.EventType == model.EventDriftDetected {
			found = true
			require.NoError(t, json.Unmarshal(ev.Payload, &payload))
		}
	}
	require.True(t, found)
	assert.Equal(t, w.ID.String(), payload.ScopeID)
	assert.Equal(t, "-10.00", payload.Drift)

	history, err := f.checker.WalletHistory(f.ctx, f.actor.OrgID, w.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, job.ID, history[0].ID)
}

func TestReconcileWalletScope(t *testing.T) {
	f := newFixture(t)
	w := f.wallet(model.WalletTypePrimary)

	_, err := f.checker.ReconcileWallet(f.ctx, uuid.New(), w.ID)
	assert.ErrorIs(t, err, ErrWalletNotFound)
	_, err = f.checker.ReconcileWallet(f.ctx, f.actor.OrgID, uuid.New())
	assert.ErrorIs(t, err, ErrWalletNotFound)

	_, err = f.checker.ReconcileWallet(f.ctx, uuid.Nil, w.ID)
	assert.NoError(t, err)
}

func TestReconcileOrganization(t *testing.T) {
	f := newFixture(t)
	a := f.wallet(model.WalletTypePrimary)
	b := f.wallet(model.WalletTypeBonus)
	f.fund(a, "40.00")
	f.fund(b, "5.00")

	res, err := f.checker.ReconcileOrganization(f.ctx, f.actor.OrgID)
	require.NoError(t, err)
	assert.Equal(t, model.ReconcileOK, res.Job.Status)
	assert.Equal(t, 3, res.Job.WalletsChecked)
	assert.Len(t, res.Wallets, 3)
	assert.True(t, res.Job.RecordedBalance.IsZero())

	storagetest.ForceBalance(t, f.store, b.ID, decimal.RequireFromString("7.50"))
	res, err = f.checker.ReconcileOrganization(f.ctx, f.actor.OrgID)
	require.NoError(t, err)
	assert.Equal(t, model.ReconcileDrift, res.Job.Status)
	assert.Equal(t, "2.50", res.Job.Drift.StringFixed(2))

	history, err := f.checker.History(f.ctx, f.actor.OrgID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.ReconcileDrift, history[0].Status)
}

func TestReconcileConcurrentWithTransfers(t *testing.T) {
	f := newFixture(t)
	w := f.wallet(model.WalletTypePrimary)

	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		for i := 0; i < 20; i++ {
			_, err := f.exec.Execute(f.ctx, f.actor, transfer.Request{
				SenderWalletID:   f.issuer.ID,
				ReceiverWalletID: w.ID,
				Amount:           decimal.RequireFromString("1.00"),
				Currency:         "INR",
			})
			if err != nil {
				errs <- err
				return
			}
		}
	}()
	for i := 0; i < 20; i++ {
		job, err := f.checker.ReconcileWallet(f.ctx, f.actor.OrgID, w.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ReconcileOK, job.Status)
	}
	assert.NoError(t, <-errs)
}

func TestHandlerWallet(t *testing.T) {
	f := newFixture(t)
	w := f.wallet(model.WalletTypePrimary)
	app := fiber.New(fiber.Config{ErrorHandler: httpx.ErrorHandler})
	app.Use(func(c *fiber.Ctx) error {
		httpx.SetActor(c, f.actor)
		return c.Next()
	})
	h := NewHandler(f.checker)
	app.Post("/reconcile/wallets/:walletId", h.Wallet)
	app.Post("/reconcile/organization", h.Organization)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/reconcile/wallets/"+w.ID.String(), nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/reconcile/wallets/"+uuid.NewString(), nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/reconcile/organization", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
