package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletledger/internal/reconcile"
)

// RegisterReconcileRoutes wires on-demand reconciliation.
func RegisterReconcileRoutes(r fiber.Router, h *reconcile.Handler) {
	group := r.Group("/reconcile")
	group.Post("/wallets/:walletId", h.Wallet)
	group.Get("/wallets/:walletId/history", h.WalletHistory)
	group.Post("/organization", h.Organization)
	group.Get("/organization/history", h.OrganizationHistory)
}
