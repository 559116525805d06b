package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrWalletNotFound is returned when no wallet exists for the requested identifier.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrWalletExists indicates the user already owns a wallet.
	ErrWalletExists = errors.New("failed to create wallet, maybe the user has already a wallet")

	// ErrVersionConflict means the stored wallet moved past the version the caller read.
	// Nothing was written.
	ErrVersionConflict = errors.New("wallet version conflict")

	// ErrTransactionNotFound is returned when no transaction exists for the requested identifier.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrTransactionFinalized rejects writes to a transaction already in a terminal status.
	ErrTransactionFinalized = errors.New("transaction already finalized")

	// ErrNegativeBalance rejects wallet writes that would leave a negative balance.
	ErrNegativeBalance = errors.New("wallet balance must not be negative")

	// ErrStore wraps persistence failures that have no more specific classification.
	ErrStore = errors.New("ledger store failure")
)

// Wallet is a per-user stored balance guarded by an optimistic version.
type Wallet struct {
	ID        string
	UserID    string
	Balance   decimal.Decimal
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transaction is the audit row of a single top-up attempt.
type Transaction struct {
	ID               string
	WalletID         string
	Amount           decimal.Decimal
	PaymentReference string
	Status           Status
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Store is the persistence contract for wallets and their transactions.
//
// SaveWallet and Commit are compare-and-swap writes: they only succeed while the
// stored wallet version still equals Wallet.Version, and they return the wallet
// with its incremented version. Commit persists the wallet and the transaction as
// one unit; either both writes land or neither does.
type Store interface {
	CreateWallet(ctx context.Context, userID string) (Wallet, error)
	GetWallet(ctx context.Context, id string) (Wallet, error)
	SaveWallet(ctx context.Context, wallet Wallet) (Wallet, error)

	CreateTransaction(ctx context.Context, tx Transaction) (Transaction, error)
	SaveTransaction(ctx context.Context, tx Transaction) (Transaction, error)
	GetTransaction(ctx context.Context, id string) (Transaction, error)
	ListTransactions(ctx context.Context, walletID string) ([]Transaction, error)
	TransactionsByStatus(ctx context.Context, status Status) ([]Transaction, error)

	Commit(ctx context.Context, wallet Wallet, tx Transaction) (Wallet, Transaction, error)
}

func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}

// Backend names the storage behind s. Stores defined outside this package report "custom".
func Backend(s Store) string {
	switch s.(type) {
	case *inMemoryStore:
		return "memory"
	case *PostgresStore:
		return "postgres"
	case *RedisStore:
		return "redis"
	default:
		return "custom"
	}
}
