package wallet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/wallet/internal/ledger"
)

// MaxRetries bounds the balance-apply attempts of a single top-up.
const MaxRetries = 3

var (
	// ErrInvalidInput rejects malformed requests before anything is stored.
	ErrInvalidInput = errors.New("invalid input")
	// ErrAmountTooSmall is the gateway refusing the amount. The caller can fix it.
	ErrAmountTooSmall = errors.New("amount too small")
	// ErrChargeFailed covers any other gateway failure. No money moved.
	ErrChargeFailed = errors.New("failed to charge card")
	// ErrBalanceUpdateFailed means the card was charged but the credit was not applied.
	// The transaction is FAILED with its payment reference and needs reconciliation.
	ErrBalanceUpdateFailed = errors.New("error updating the wallet")

	// Store classifications surfaced unchanged.
	ErrNotFound = ledger.ErrWalletNotFound
	ErrConflict = ledger.ErrWalletExists
)

// CreateInput captures data required to create a wallet.
type CreateInput struct {
	UserID string `validate:"required,uuid"`
}

// TopUpInput captures a single card top-up request.
type TopUpInput struct {
	WalletID   string          `validate:"required"`
	CardNumber string          `validate:"required,notblank"`
	Amount     decimal.Decimal `validate:"positive"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	_ = v.RegisterValidation("positive", positiveDecimal)
	return v
}

// positiveDecimal compares exactly; a float conversion would round tiny amounts to zero.
func positiveDecimal(fl validator.FieldLevel) bool {
	switch d := fl.Field().Interface().(type) {
	case decimal.Decimal:
		return d.IsPositive()
	case *decimal.Decimal:
		return d != nil && d.IsPositive()
	default:
		return false
	}
}

func validateInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(fields, ", "))
}
