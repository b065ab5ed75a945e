package transfer

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/walletledger/internal/httpx"
	"github.com/congo-pay/walletledger/internal/model"
)

func newTestApp(f *fixture) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: httpx.ErrorHandler})
	app.Use(func(c *fiber.Ctx) error {
		httpx.SetActor(c, f.actor)
		return c.Next()
	})
	h := NewHandler(f.exec)
	app.Post("/transactions/transfer", h.Transfer)
	app.Get("/transactions", h.List)
	app.Get("/transactions/:id", h.Get)
	app.Get("/transactions/:id/ledger", h.Ledger)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp.StatusCode, out
}

func TestHandlerTransfer(t *testing.T) {
	f := newFixture(t, Config{})
	w1 := f.wallet(f.actor.ID, model.WalletTypePrimary, "INR")
	w2 := f.wallet(uuid.New(), model.WalletTypePrimary, "INR")
	f.fund(w1, "20.00")
	app := newTestApp(f)

	body := fmt.Sprintf(`{"sender_wallet_id":%q,"receiver_wallet_id":%q,"amount":"12.50","currency":"INR","reference_id":"h-1"}`, w1.ID, w2.ID)
	status, out := doJSON(t, app, http.MethodPost, "/transactions/transfer", body)
	require.Equal(t, http.StatusCreated, status, out)
	assert.Equal(t, "COMPLETED", out["status"])
	assert.Equal(t, "12.50", out["amount"])

	status, out = doJSON(t, app, http.MethodGet, "/transactions/"+out["id"].(string)+"/ledger", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, out["entries"], 2)

	body = fmt.Sprintf(`{"sender_wallet_id":%q,"receiver_wallet_id":%q,"amount":"100.00","currency":"INR"}`, w1.ID, w2.ID)
	status, out = doJSON(t, app, http.MethodPost, "/transactions/transfer", body)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, false, out["retryable"])
	require.Contains(t, out, "transaction")
	assert.Equal(t, "FAILED", out["transaction"].(map[string]any)["status"])
}

func TestHandlerTransferRejectsBadInput(t *testing.T) {
	f := newFixture(t, Config{})
	app := newTestApp(f)

	status, out := doJSON(t, app, http.MethodPost, "/transactions/transfer", `{"sender_wallet_id":"nope","amount":"1"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.NotEmpty(t, out["error"])

	id := uuid.NewString()
	body := fmt.Sprintf(`{"sender_wallet_id":%q,"receiver_wallet_id":%q,"amount":"1.00","currency":"INR"}`, id, id)
	status, out = doJSON(t, app, http.MethodPost, "/transactions/transfer", body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, ErrSameWallet.Error(), out["error"])
}

func TestHandlerListPaging(t *testing.T) {
	f := newFixture(t, Config{})
	w1 := f.wallet(f.actor.ID, model.WalletTypePrimary, "INR")
	for i := 0; i < 3; i++ {
		f.fund(w1, "1.00")
	}
	app := newTestApp(f)

	status, out := doJSON(t, app, http.MethodGet, "/transactions?page=1&page_size=2&status=completed", "")
	require.Equal(t, http.StatusOK, status, out)
	assert.Equal(t, float64(3), out["total"])
	assert.Len(t, out["items"], 2)

	status, _ = doJSON(t, app, http.MethodGet, "/transactions?page_size=500", "")
	assert.Equal(t, http.StatusBadRequest, status)
}
