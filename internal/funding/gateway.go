package funding

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrAmountTooSmall means the processor refused the amount as below its floor. Not retryable.
	ErrAmountTooSmall = errors.New("amount below the gateway processing floor")
	// ErrGateway covers every other charge failure: transport, timeout, unexpected status.
	ErrGateway = errors.New("charge gateway failure")
)

// Gateway charges a card through an external processor.
type Gateway interface {
	Charge(ctx context.Context, cardNumber string, amount decimal.Decimal) (Payment, error)
}

// Payment is the processor's acknowledgement of a charge.
type Payment struct {
	Reference string
}

// StaticGateway simulates a processor in-process. Amounts at or below MinAmount are rejected.
type StaticGateway struct {
	MinAmount decimal.Decimal
}

// NewStaticGateway builds a StaticGateway with the given floor.
func NewStaticGateway(minAmount decimal.Decimal) StaticGateway {
	return StaticGateway{MinAmount: minAmount}
}

// Charge approves the charge with a synthetic reference.
func (g StaticGateway) Charge(ctx context.Context, _ string, amount decimal.Decimal) (Payment, error) {
	if err := ctx.Err(); err != nil {
		return Payment{}, errors.Join(ErrGateway, err)
	}
	if amount.LessThanOrEqual(g.MinAmount) {
		return Payment{}, ErrAmountTooSmall
	}
	return Payment{Reference: "ch_" + strings.ReplaceAll(uuid.NewString(), "-", "")}, nil
}

// MaskCardNumber keeps the last four digits for logs and notifications.
func MaskCardNumber(card string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, card)
	if len(digits) <= 4 {
		return strings.Repeat("*", len(digits))
	}
	return strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
}
