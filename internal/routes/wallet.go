package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet/internal/wallet"
)

// RegisterWalletRoutes wires wallet-related endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Post("/wallet", h.Create)
	r.Get("/wallet/:walletId", h.Get)
	r.Get("/wallet/:walletId/transactions", h.Transactions)
	r.Post("/wallet/:walletId/actions/topup", h.TopUp)
	r.Get("/transactions/reconciliation", h.PendingReconciliation)
}
