package wallet

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletledger/internal/httpx"
	"github.com/congo-pay/walletledger/internal/model"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Type     string `json:"type" validate:"required,oneof=PRIMARY BONUS primary bonus"`
	Currency string `json:"currency" validate:"required,len=3"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type walletResponse struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	OrgID     string    `json:"organization_id"`
	Currency  string    `json:"currency"`
	Balance   string    `json:"balance"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toResponse(w model.Wallet) walletResponse {
	return walletResponse{
		ID:        w.ID.String(),
		OwnerID:   w.OwnerID.String(),
		OrgID:     w.OrgID.String(),
		Currency:  w.Currency,
		Balance:   w.Balance.StringFixed(model.MinorUnits),
		Type:      string(w.Type),
		Status:    string(w.Status),
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

// Create provisions a PRIMARY or BONUS wallet for the authenticated owner.
// SYSTEM wallets are provisioned through ledgerctl.
func (h *Handler) Create(c *fiber.Ctx) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	var req createRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	typ, err := model.ParseWalletType(req.Type)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	w, err := h.service.Create(c.UserContext(), actor, CreateInput{Type: typ, Currency: req.Currency})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(toResponse(w))
}

// List returns the caller's wallets.
func (h *Handler) List(c *fiber.Ctx) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	wallets, err := h.service.ListByOwner(c.UserContext(), actor)
	if err != nil {
		return mapError(err)
	}
	out := make([]walletResponse, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, toResponse(w))
	}
	return c.JSON(fiber.Map{"wallets": out})
}

// Get returns one wallet.
func (h *Handler) Get(c *fiber.Ctx) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	id, err := httpx.UUIDParam(c, "walletId")
	if err != nil {
		return err
	}
	w, err := h.service.Get(c.UserContext(), actor, id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(toResponse(w))
}

// Balance returns the wallet balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	id, err := httpx.UUIDParam(c, "walletId")
	if err != nil {
		return err
	}
	balance, err := h.service.Balance(c.UserContext(), actor, id)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"wallet_id": balance.WalletID.String(),
		"balance":   balance.Amount.StringFixed(model.MinorUnits),
		"currency":  balance.Currency,
		"timestamp": balance.AsOf,
	})
}

// SetStatus changes a wallet's status.
func (h *Handler) SetStatus(c *fiber.Ctx) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	id, err := httpx.UUIDParam(c, "walletId")
	if err != nil {
		return err
	}
	var req statusRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	status, err := model.ParseWalletStatus(req.Status)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	w, err := h.service.SetStatus(c.UserContext(), actor, id, status)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(toResponse(w))
}

// Summary reports wallet counts and balances for the caller's organization.
func (h *Handler) Summary(c *fiber.Ctx) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	sum, err := h.service.Summary(c.UserContext(), actor)
	if err != nil {
		return mapError(err)
	}
	balances := make(map[string]string, len(sum.Balances))
	for currency, amount := range sum.Balances {
		balances[currency] = amount.StringFixed(model.MinorUnits)
	}
	return c.JSON(fiber.Map{
		"total":     sum.Total,
		"active":    sum.Active,
		"by_type":   sum.ByType,
		"by_status": sum.ByStatus,
		"balances":  balances,
	})
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrWalletNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotOwner):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrDuplicatePrimaryWallet), errors.Is(err, ErrInvalidStatusTransition), errors.Is(err, ErrWalletNotEmpty):
		return fiber.NewError(http.StatusConflict, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
