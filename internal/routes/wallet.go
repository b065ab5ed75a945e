package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletledger/internal/transfer"
	"github.com/congo-pay/walletledger/internal/wallet"
)

// RegisterWalletRoutes wires wallet-related endpoints, including per-wallet
// transaction history.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler, tx *transfer.Handler) {
	r.Post("/wallets", h.Create)
	r.Get("/wallets", h.List)
	r.Get("/wallets/summary", h.Summary)
	r.Get("/wallets/:walletId", h.Get)
	r.Get("/wallets/:walletId/balance", h.Balance)
	r.Patch("/wallets/:walletId/status", h.SetStatus)
	r.Get("/wallets/:walletId/transactions", tx.List)
	r.Get("/wallets/:walletId/ledger", tx.WalletEntries)
}
