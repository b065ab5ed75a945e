package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletledger/internal/transfer"
)

// RegisterTransactionRoutes wires transfer execution and transaction queries.
func RegisterTransactionRoutes(r fiber.Router, h *transfer.Handler, rateLimiter fiber.Handler) {
	group := r.Group("/transactions")
	group.Post("/transfer", rateLimiter, h.Transfer)
	group.Get("/", h.List)
	group.Get("/:id", h.Get)
	group.Get("/:id/ledger", h.Ledger)
	group.Post("/:id/cancel", h.Cancel)
}
