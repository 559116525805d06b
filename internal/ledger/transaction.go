package ledger

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a top-up transaction.
type Status string

const (
	// StatusInitiated is recorded before the card is charged.
	StatusInitiated Status = "INITIATED"
	// StatusProcessed means the gateway accepted the charge and returned a reference.
	StatusProcessed Status = "PROCESSED"
	// StatusSuccess means the wallet was credited. Terminal.
	StatusSuccess Status = "SUCCESS"
	// StatusFailed means the attempt was abandoned. Terminal.
	StatusFailed Status = "FAILED"
)

// ErrInvalidTransition is returned when a status change is not allowed from the current state.
var ErrInvalidTransition = errors.New("invalid transaction status transition")

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusInitiated, StatusProcessed, StatusSuccess, StatusFailed:
		return true
	default:
		return false
	}
}

// ParseStatus converts a stored or user supplied value into a Status.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown transaction status %q", v)
	}
	return s, nil
}

// NewTransaction builds an INITIATED transaction for the given wallet and amount.
func NewTransaction(walletID string, amount decimal.Decimal) Transaction {
	now := time.Now().UTC()
	return Transaction{
		ID:        uuid.NewString(),
		WalletID:  walletID,
		Amount:    amount,
		Status:    StatusInitiated,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MarkProcessed records the gateway payment reference.
func (t *Transaction) MarkProcessed(reference string) error {
	if t.Status != StatusInitiated {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, StatusProcessed)
	}
	if reference == "" {
		return fmt.Errorf("%w: payment reference is required", ErrInvalidTransition)
	}
	t.PaymentReference = reference
	t.Status = StatusProcessed
	return nil
}

// MarkSucceeded confirms the wallet credit.
func (t *Transaction) MarkSucceeded() error {
	if t.Status != StatusProcessed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, StatusSuccess)
	}
	t.Status = StatusSuccess
	return nil
}

// MarkFailed abandons the attempt from any non-terminal state.
func (t *Transaction) MarkFailed() error {
	if t.Status.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, StatusFailed)
	}
	t.Status = StatusFailed
	return nil
}

// sortTransactions orders by creation time, oldest first, with the id as tie-breaker.
func sortTransactions(txs []Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		if txs[i].CreatedAt.Equal(txs[j].CreatedAt) {
			return txs[i].ID < txs[j].ID
		}
		return txs[i].CreatedAt.Before(txs[j].CreatedAt)
	})
}
