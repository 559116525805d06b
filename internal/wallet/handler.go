package wallet

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet/internal/ledger"
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
	UserID string `json:"userId" validate:"required,uuid"`
}

type topUpRequest struct {
	CardNumber string          `json:"cardNumber" validate:"required,notblank"`
	Amount     decimal.Decimal `json:"amount" validate:"positive"`
}

type walletResponse struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Amount string `json:"amount"`
}

type transactionResponse struct {
	ID               string    `json:"id"`
	WalletID         string    `json:"walletId"`
	Amount           string    `json:"amount"`
	PaymentReference string    `json:"paymentReference,omitempty"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func toWalletResponse(w ledger.Wallet) walletResponse {
	return walletResponse{ID: w.ID, UserID: w.UserID, Amount: w.Balance.String()}
}

// Create provisions a wallet for the given user.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := validateInput(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	w, err := h.service.Create(c.UserContext(), CreateInput{UserID: req.UserID})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(toWalletResponse(w))
}

// TopUp charges a card and credits the wallet.
func (h *Handler) TopUp(c *fiber.Ctx) error {
	var req topUpRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := validateInput(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	w, err := h.service.TopUp(c.UserContext(), TopUpInput{
		WalletID:   c.Params("walletId"),
		CardNumber: req.CardNumber,
		Amount:     req.Amount,
	})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusAccepted).JSON(toWalletResponse(w))
}

// Get returns the wallet and its balance.
func (h *Handler) Get(c *fiber.Ctx) error {
	w, err := h.service.Get(c.UserContext(), c.Params("walletId"))
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(toWalletResponse(w))
}

// Transactions returns the wallet's top-up history.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	txs, err := h.service.Transactions(c.UserContext(), c.Params("walletId"))
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(toTransactionResponses(txs))
}

// PendingReconciliation lists charges that were taken but never credited.
func (h *Handler) PendingReconciliation(c *fiber.Ctx) error {
	txs, err := h.service.PendingReconciliation(c.UserContext())
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(toTransactionResponses(txs))
}

func toTransactionResponses(txs []ledger.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, transactionResponse{
			ID:               tx.ID,
			WalletID:         tx.WalletID,
			Amount:           tx.Amount.String(),
			PaymentReference: tx.PaymentReference,
			Status:           string(tx.Status),
			CreatedAt:        tx.CreatedAt,
			UpdatedAt:        tx.UpdatedAt,
		})
	}
	return out
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrBalanceUpdateFailed):
		return fiber.NewError(http.StatusInternalServerError, ErrBalanceUpdateFailed.Error()+"; the charge will be reconciled")
	case errors.Is(err, ErrAmountTooSmall):
		return fiber.NewError(http.StatusUnprocessableEntity, ErrAmountTooSmall.Error())
	case errors.Is(err, ErrChargeFailed):
		return fiber.NewError(http.StatusBadGateway, ErrChargeFailed.Error())
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, ErrNotFound.Error())
	case errors.Is(err, ErrConflict):
		return fiber.NewError(http.StatusConflict, ErrConflict.Error())
	default:
		return err
	}
}
