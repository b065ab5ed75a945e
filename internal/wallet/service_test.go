package wallet

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

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
)

func newTestService() (*Service, *memory.Store, model.Actor) {
	store := memory.New()
	actor := model.Actor{ID: uuid.New(), OrgID: uuid.New()}
	return NewService(store, logging.Discard()), store, actor
}

func TestCreatePrimaryWallet(t *testing.T) {
	svc, store, actor := newTestService()
	ctx := context.Background()

	w, err := svc.Create(ctx, actor, CreateInput{Type: model.WalletTypePrimary, Currency: "inr"})
	require.NoError(t, err)
	assert.Equal(t, "INR", w.Currency)
	assert.True(t, w.Balance.IsZero())
	assert.Equal(t, model.WalletStatusActive, w.Status)
	assert.Equal(t, actor.OrgID, w.OrgID)

	_, err = svc.Create(ctx, actor, CreateInput{Type: model.WalletTypePrimary, Currency: "INR"})
	assert.ErrorIs(t, err, ErrDuplicatePrimaryWallet)

	_, err = svc.Create(ctx, actor, CreateInput{Type: model.WalletTypeBonus, Currency: "INR"})
	require.NoError(t, err)

	logs := memory.AuditLogs(store)
	require.Len(t, logs, 2)
	assert.Equal(t, model.OpWalletCreated, logs[0].Operation)
}

func TestCreateRejectsBadCurrency(t *testing.T) {
	svc, _, actor := newTestService()
	_, err := svc.Create(context.Background(), actor, CreateInput{Type: model.WalletTypeBonus, Currency: "RUPEE"})
	assert.Error(t, err)
}

func TestClosedPrimaryAllowsNewPrimary(t *testing.T) {
	svc, _, actor := newTestService()
	ctx := context.Background()

	w, err := svc.Create(ctx, actor, CreateInput{Type: model.WalletTypePrimary, Currency: "INR"})
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, actor, w.ID, model.WalletStatusClosed)
	require.NoError(t, err)

	_, err = svc.Create(ctx, actor, CreateInput{Type: model.WalletTypePrimary, Currency: "INR"})
	assert.NoError(t, err)
}

func TestSetStatusTransitions(t *testing.T) {
	svc, store, actor := newTestService()
	ctx := context.Background()
	w, err := svc.Create(ctx, actor, CreateInput{Type: model.WalletTypePrimary, Currency: "INR"})
	require.NoError(t, err)

	locked, err := svc.SetStatus(ctx, actor, w.ID, model.WalletStatusLocked)
	require.NoError(t, err)
	assert.Equal(t, model.WalletStatusLocked, locked.Status)
	assert.Greater(t, locked.Version, w.Version)

	storagetest.ForceBalance(t, store, w.ID, decimal.RequireFromString("5.00"))
	_, err = svc.SetStatus(ctx, actor, w.ID, model.WalletStatusClosed)
	assert.ErrorIs(t, err, ErrWalletNotEmpty)

	storagetest.ForceBalance(t, store, w.ID, decimal.Zero)
	_, err = svc.SetStatus(ctx, actor, w.ID, model.WalletStatusClosed)
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, actor, w.ID, model.WalletStatusActive)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestWalletScope(t *testing.T) {
	svc, _, actor := newTestService()
	ctx := context.Background()
	w, err := svc.Create(ctx, actor, CreateInput{Type: model.WalletTypePrimary, Currency: "INR"})
	require.NoError(t, err)

	outsider := model.Actor{ID: uuid.New(), OrgID: uuid.New()}
	_, err = svc.Get(ctx, outsider, w.ID)
	assert.ErrorIs(t, err, ErrWalletNotFound)

	colleague := model.Actor{ID: uuid.New(), OrgID: actor.OrgID}
	_, err = svc.Get(ctx, colleague, w.ID)
	assert.NoError(t, err)
	_, err = svc.SetStatus(ctx, colleague, w.ID, model.WalletStatusLocked)
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestSummary(t *testing.T) {
	svc, store, actor := newTestService()
	ctx := context.Background()
	a, err := svc.Create(ctx, actor, CreateInput{Type: model.WalletTypePrimary, Currency: "INR"})
	require.NoError(t, err)
	b, err := svc.Create(ctx, actor, CreateInput{Type: model.WalletTypeBonus, Currency: "USD"})
	require.NoError(t, err)
	storagetest.ForceBalance(t, store, a.ID, decimal.RequireFromString("10.50"))
	storagetest.ForceBalance(t, store, b.ID, decimal.RequireFromString("2.25"))
	_, err = svc.SetStatus(ctx, actor, b.ID, model.WalletStatusLocked)
	require.NoError(t, err)

	sum, err := svc.Summary(ctx, actor)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, 1, sum.Active)
	assert.Equal(t, 1, sum.ByStatus[model.WalletStatusLocked])
	assert.Equal(t, "10.50", sum.Balances["INR"].StringFixed(2))
	assert.Equal(t, "2.25", sum.Balances["USD"].StringFixed(2))
}

func TestHandlerCreateAndBalance(t *testing.T) {
	svc, _, actor := newTestService()
	app := fiber.New(fiber.Config{ErrorHandler: httpx.ErrorHandler})
	app.Use(func(c *fiber.Ctx) error {
		httpx.SetActor(c, actor)
		return c.Next()
	})
	h := NewHandler(svc)
	app.Post("/wallets", h.Create)
	app.Get("/wallets/:walletId/balance", h.Balance)

	req := httptest.NewRequest(http.MethodPost, "/wallets", strings.NewReader(`{"type":"SYSTEM","currency":"INR"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req = httptest.NewRequest(http.MethodPost, "/wallets", strings.NewReader(`{"type":"PRIMARY","currency":"INR"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	wallets, err := svc.ListByOwner(context.Background(), actor)
	require.NoError(t, err)
	require.Len(t, wallets, 1)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/wallets/"+wallets[0].ID.String()+"/balance", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/wallets/"+uuid.NewString()+"/balance", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
