package reconcile

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletledger/internal/httpx"
	"github.com/congo-pay/walletledger/internal/model"
)

// Handler exposes reconciliation endpoints.
type Handler struct {
	checker *Checker
}

// NewHandler builds a reconciliation handler.
func NewHandler(checker *Checker) *Handler {
	return &Handler{checker: checker}
}

type jobResponse struct {
	ID              string    `json:"id"`
	Scope           string    `json:"scope"`
	ScopeID         string    `json:"scope_id"`
	Status          string    `json:"status"`
	RecordedBalance string    `json:"recorded_balance"`
	LedgerBalance   string    `json:"ledger_balance"`
	Drift           string    `json:"drift"`
	WalletsChecked  int       `json:"wallets_checked"`
	CreatedAt       time.Time `json:"created_at"`
}

func toResponse(j model.ReconcileJob) jobResponse {
	return jobResponse{
		ID:              j.ID.String(),
		Scope:           string(j.Scope),
		ScopeID:         j.ScopeID.String(),
		Status:          string(j.Status),
		RecordedBalance: j.RecordedBalance.StringFixed(model.MinorUnits),
		LedgerBalance:   j.LedgerBalance.StringFixed(model.MinorUnits),
		Drift:           j.Drift.StringFixed(model.MinorUnits),
		WalletsChecked:  j.WalletsChecked,
		CreatedAt:       j.CreatedAt,
	}
}

func toResponses(jobs []model.ReconcileJob) []jobResponse {
	out := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toResponse(j))
	}
	return out
}

// Wallet reconciles a single wallet on demand.
func (h *Handler) Wallet(c *fiber.Ctx) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	id, err := httpx.UUIDParam(c, "walletId")
	if err != nil {
		return err
	}
	job, err := h.checker.ReconcileWallet(c.UserContext(), actor.OrgID, id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(toResponse(job))
}

// WalletHistory lists previous jobs for a wallet.
func (h *Handler) WalletHistory(c *fiber.Ctx) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	id, err := httpx.UUIDParam(c, "walletId")
	if err != nil {
		return err
	}
	limit, err := httpx.IntQuery(c, "limit", DefaultHistoryLimit)
	if err != nil {
		return err
	}
	jobs, err := h.checker.WalletHistory(c.UserContext(), actor.OrgID, id, limit)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"jobs": toResponses(jobs)})
}

// Organization reconciles every wallet of the caller's organization.
func (h *Handler) Organization(c *fiber.Ctx) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	res, err := h.checker.ReconcileOrganization(c.UserContext(), actor.OrgID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{
		"job":     toResponse(res.Job),
		"wallets": toResponses(res.Wallets),
	})
}

// OrganizationHistory lists previous organization-wide jobs.
func (h *Handler) OrganizationHistory(c *fiber.Ctx) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	limit, err := httpx.IntQuery(c, "limit", DefaultHistoryLimit)
	if err != nil {
		return err
	}
	jobs, err := h.checker.History(c.UserContext(), actor.OrgID, limit)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"jobs": toResponses(jobs)})
}

func mapError(err error) error {
	if errors.Is(err, ErrWalletNotFound) {
		return fiber.NewError(http.StatusNotFound, err.Error())
	}
	return fiber.NewError(http.StatusInternalServerError, err.Error())
}
