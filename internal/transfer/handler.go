package transfer

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletledger/internal/httpx"
	"github.com/congo-pay/walletledger/internal/model"
)

// Handler exposes transaction endpoints.
type Handler struct {
	executor *Executor
}

// NewHandler constructs a transaction handler.
func NewHandler(executor *Executor) *Handler {
	return &Handler{executor: executor}
}

type transferRequest struct {
	SenderWalletID   string          `json:"sender_wallet_id" validate:"required,uuid"`
	ReceiverWalletID string          `json:"receiver_wallet_id" validate:"required,uuid"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency" validate:"required,len=3"`
	Description      string          `json:"description" validate:"max=255"`
	ReferenceID      string          `json:"reference_id" validate:"max=128"`
}

type transactionResponse struct {
	ID               string     `json:"id"`
	Type             string     `json:"type"`
	Status           string     `json:"status"`
	SenderWalletID   string     `json:"sender_wallet_id"`
	ReceiverWalletID string     `json:"receiver_wallet_id"`
	Amount           string     `json:"amount"`
	Currency         string     `json:"currency"`
	Description      string     `json:"description,omitempty"`
	ReferenceID      string     `json:"reference_id,omitempty"`
	FailureReason    string     `json:"failure_reason,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

func toResponse(t model.Transaction) transactionResponse {
	return transactionResponse{
		ID:               t.ID.String(),
		Type:             string(t.Type),
		Status:           string(t.Status),
		SenderWalletID:   t.SenderWalletID.String(),
		ReceiverWalletID: t.ReceiverWalletID.String(),
		Amount:           t.Amount.StringFixed(model.MinorUnits),
		Currency:         t.Currency,
		Description:      t.Description,
		ReferenceID:      t.ReferenceID,
		FailureReason:    t.FailureReason,
		CreatedAt:        t.CreatedAt,
		CompletedAt:      t.CompletedAt,
	}
}

type entryResponse struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transaction_id"`
	WalletID      string    `json:"wallet_id"`
	Direction     string    `json:"direction"`
	Amount        string    `json:"amount"`
	BalanceAfter  string    `json:"balance_after"`
	CreatedAt     time.Time `json:"created_at"`
}

func toEntryResponses(entries []model.LedgerEntry) []entryResponse {
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			ID:            e.ID.String(),
			TransactionID: e.TransactionID.String(),
			WalletID:      e.WalletID.String(),
			Direction:     string(e.Direction),
			Amount:        e.Amount.StringFixed(model.MinorUnits),
			BalanceAfter:  e.BalanceAfter.StringFixed(model.MinorUnits),
			CreatedAt:     e.CreatedAt,
		})
	}
	return out
}

// Transfer executes a wallet-to-wallet transfer. The reference id defaults to
// the Idempotency-Key header.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	var req transferRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	if req.ReferenceID == "" {
		req.ReferenceID = c.Get("Idempotency-Key")
	}

	t, err := h.executor.Execute(c.UserContext(), actor, Request{
		SenderWalletID:   uuid.MustParse(req.SenderWalletID),
		ReceiverWalletID: uuid.MustParse(req.ReceiverWalletID),
		Amount:           req.Amount,
		Currency:         req.Currency,
		Description:      req.Description,
		ReferenceID:      req.ReferenceID,
	})
	if err != nil {
		return writeError(c, err, t)
	}
	return c.Status(http.StatusCreated).JSON(toResponse(t))
}

// Get returns one transaction.
func (h *Handler) Get(c *fiber.Ctx) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	id, err := httpx.UUIDParam(c, "id")
	if err != nil {
		return err
	}
	t, err := h.executor.Get(c.UserContext(), actor, id)
	if err != nil {
		return writeError(c, err, model.Transaction{})
	}
	return c.JSON(toResponse(t))
}

// List returns a filtered page of the organization's transactions. When the
// route carries a walletId the listing is that wallet's history.
func (h *Handler) List(c *fiber.Ctx) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	f, err := parseFilter(c)
	if err != nil {
		return err
	}
	page, err := h.executor.List(c.UserContext(), actor, f)
	if err != nil {
		return writeError(c, err, model.Transaction{})
	}
	items := make([]transactionResponse, 0, len(page.Items))
	for _, t := range page.Items {
		items = append(items, toResponse(t))
	}
	return c.JSON(fiber.Map{
		"items":     items,
		"total":     page.Total,
		"page":      page.Page,
		"page_size": page.PageSize,
	})
}

// Ledger returns the ledger entries of a transaction.
func (h *Handler) Ledger(c *fiber.Ctx) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	id, err := httpx.UUIDParam(c, "id")
	if err != nil {
		return err
	}
	entries, err := h.executor.Entries(c.UserContext(), actor, id)
	if err != nil {
		return writeError(c, err, model.Transaction{})
	}
	return c.JSON(fiber.Map{"entries": toEntryResponses(entries)})
}

// WalletEntries returns a wallet's most recent ledger entries.
func (h *Handler) WalletEntries(c *fiber.Ctx) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	walletID, err := httpx.UUIDParam(c, "walletId")
	if err != nil {
		return err
	}
	limit, err := httpx.IntQuery(c, "limit", model.DefaultPageSize)
	if err != nil {
		return err
	}
	entries, err := h.executor.WalletEntries(c.UserContext(), actor, walletID, limit)
	if err != nil {
		return writeError(c, err, model.Transaction{})
	}
	return c.JSON(fiber.Map{"entries": toEntryResponses(entries)})
}

// Cancel cancels a PENDING transaction.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	id, err := httpx.UUIDParam(c, "id")
	if err != nil {
		return err
	}
	t, err := h.executor.Cancel(c.UserContext(), actor, id)
	if err != nil {
		return writeError(c, err, model.Transaction{})
	}
	return c.JSON(toResponse(t))
}

func parseFilter(c *fiber.Ctx) (model.TransactionFilter, error) {
	var f model.TransactionFilter
	var err error
	if f.Page, err = httpx.IntQuery(c, "page", 1); err != nil {
		return f, err
	}
	if f.PageSize, err = httpx.IntQuery(c, "page_size", model.DefaultPageSize); err != nil {
		return f, err
	}
	if f.PageSize > model.MaxPageSize {
		return f, fiber.NewError(http.StatusBadRequest, "page_size must be at most 100")
	}
	if v := c.Query("status"); v != "" {
		if f.Status, err = model.ParseTransactionStatus(v); err != nil {
			return f, fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	if v := c.Query("type"); v != "" {
		if f.Type, err = model.ParseTransactionType(v); err != nil {
			return f, fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	walletParam := c.Params("walletId")
	if walletParam == "" {
		walletParam = c.Query("wallet_id")
	}
	if walletParam != "" {
		if f.WalletID, err = uuid.Parse(walletParam); err != nil {
			return f, fiber.NewError(http.StatusBadRequest, "invalid wallet_id")
		}
	}
	if v := c.Query("from"); v != "" {
		if f.From, err = time.Parse(time.RFC3339, v); err != nil {
			return f, fiber.NewError(http.StatusBadRequest, "from must be RFC3339")
		}
	}
	if v := c.Query("to"); v != "" {
		if f.To, err = time.Parse(time.RFC3339, v); err != nil {
			return f, fiber.NewError(http.StatusBadRequest, "to must be RFC3339")
		}
	}
	return f, nil
}

// writeError maps executor errors onto HTTP responses. Retryable failures are
// flagged so clients can resubmit with the same reference id.
func writeError(c *fiber.Ctx, err error, t model.Transaction) error {
	status := http.StatusInternalServerError
	message := "internal error"
	switch {
	case errors.Is(err, ErrSameWallet), errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidCurrency), errors.Is(err, ErrCurrencyMismatch):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, ErrWalletNotFound), errors.Is(err, ErrTransactionNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, ErrWalletInactive), errors.Is(err, ErrInsufficientBalance):
		status, message = http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, ErrNotCancellable):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, ErrLockTimeout):
		status, message = http.StatusServiceUnavailable, "wallet busy, retry"
	case errors.Is(err, ErrConflict):
		status, message = http.StatusConflict, "concurrent modification, retry"
	case errors.Is(err, ErrIntegrity):
		message = "internal consistency failure"
	}

	retryable := IsRetryable(err)
	// A FAILED attempt does not hold its reference id, so the same key must
	// reach the executor again.
	if retryable || t.Status == model.TransactionFailed {
		httpx.MarkUncacheable(c)
	}
	body := fiber.Map{"error": message, "retryable": retryable}
	if t.ID != uuid.Nil {
		body["transaction"] = toResponse(t)
	}
	return c.Status(status).JSON(body)
}
