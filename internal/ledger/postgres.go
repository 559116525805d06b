package ledger

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const uniqueViolationCode = "23505"

//go:embed schema.sql
var postgresSchema string

const (
	walletColumns      = `id, user_id, balance, version, created_at, updated_at`
	transactionColumns = `id, wallet_id, amount, payment_reference, status, created_at, updated_at`
)

// querier is satisfied by both the pool and an open pgx transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists wallets and transactions in PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the wallet tables when they are missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("apply ledger schema: %w", err)
	}
	return nil
}

// CreateWallet inserts a zero-balance wallet; the unique user_id column enforces one wallet per user.
func (s *PostgresStore) CreateWallet(ctx context.Context, userID string) (Wallet, error) {
	ownerID, err := uuid.Parse(userID)
	if err != nil {
		return Wallet{}, fmt.Errorf("invalid user id: %w", err)
	}

	now := time.Now().UTC()
	walletID := uuid.New()
	_, err = s.db.Exec(ctx, `INSERT INTO wallets (id, user_id, balance, version, created_at, updated_at)
        VALUES ($1, $2, $3, 0, $4, $4)`, walletID, ownerID, decimal.Zero, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return Wallet{}, ErrWalletExists
		}
		return Wallet{}, storeError("create wallet", err)
	}

	return Wallet{
		ID:        walletID.String(),
		UserID:    ownerID.String(),
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// GetWallet fetches a wallet by identifier.
func (s *PostgresStore) GetWallet(ctx context.Context, id string) (Wallet, error) {
	walletID, err := uuid.Parse(id)
	if err != nil {
		return Wallet{}, ErrWalletNotFound
	}
	w, err := scanWallet(s.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, walletID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, storeError("get wallet", err)
	}
	return w, nil
}

// SaveWallet writes the balance only if the stored version still matches.
func (s *PostgresStore) SaveWallet(ctx context.Context, wallet Wallet) (Wallet, error) {
	return swapWallet(ctx, s.db, wallet)
}

// CreateTransaction inserts a transaction row.
func (s *PostgresStore) CreateTransaction(ctx context.Context, tx Transaction) (Transaction, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	txID, err := uuid.Parse(tx.ID)
	if err != nil {
		return Transaction{}, fmt.Errorf("invalid transaction id: %w", err)
	}
	walletID, err := uuid.Parse(tx.WalletID)
	if err != nil {
		return Transaction{}, ErrWalletNotFound
	}

	now := time.Now().UTC()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now

	_, err = s.db.Exec(ctx, `INSERT INTO wallet_transactions (`+transactionColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		txID, walletID, tx.Amount, nullableText(tx.PaymentReference), string(tx.Status), tx.CreatedAt, tx.UpdatedAt)
	if err != nil {
		return Transaction{}, storeError("create transaction", err)
	}
	return tx, nil
}

// SaveTransaction updates a non-terminal transaction row.
func (s *PostgresStore) SaveTransaction(ctx context.Context, tx Transaction) (Transaction, error) {
	return updateTransaction(ctx, s.db, tx)
}

// GetTransaction fetches a transaction by identifier.
func (s *PostgresStore) GetTransaction(ctx context.Context, id string) (Transaction, error) {
	txID, err := uuid.Parse(id)
	if err != nil {
		return Transaction{}, ErrTransactionNotFound
	}
	tx, err := scanTransaction(s.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM wallet_transactions WHERE id = $1`, txID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, storeError("get transaction", err)
	}
	return tx, nil
}

// ListTransactions returns the wallet's transactions, oldest first.
func (s *PostgresStore) ListTransactions(ctx context.Context, walletID string) ([]Transaction, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return []Transaction{}, nil
	}
	return s.queryTransactions(ctx, "list transactions",
		`SELECT `+transactionColumns+` FROM wallet_transactions WHERE wallet_id = $1 ORDER BY created_at, id`, id)
}

// TransactionsByStatus returns all transactions currently in status, oldest first.
func (s *PostgresStore) TransactionsByStatus(ctx context.Context, status Status) ([]Transaction, error) {
	return s.queryTransactions(ctx, "transactions by status",
		`SELECT `+transactionColumns+` FROM wallet_transactions WHERE status = $1 ORDER BY created_at, id`, string(status))
}

func (s *PostgresStore) queryTransactions(ctx context.Context, op, query string, args ...any) ([]Transaction, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, storeError(op, err)
	}
	defer rows.Close()

	out := make([]Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, storeError(op, err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(op, err)
	}
	return out, nil
}

// Commit applies the wallet compare-and-swap and the transaction update in one database transaction.
func (s *PostgresStore) Commit(ctx context.Context, wallet Wallet, tx Transaction) (Wallet, Transaction, error) {
	dbTx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Wallet{}, Transaction{}, storeError("begin commit", err)
	}
	defer dbTx.Rollback(ctx) // nolint:errcheck

	savedWallet, err := swapWallet(ctx, dbTx, wallet)
	if err != nil {
		return Wallet{}, Transaction{}, err
	}
	savedTx, err := updateTransaction(ctx, dbTx, tx)
	if err != nil {
		return Wallet{}, Transaction{}, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return Wallet{}, Transaction{}, storeError("commit", err)
	}
	return savedWallet, savedTx, nil
}

func swapWallet(ctx context.Context, q querier, wallet Wallet) (Wallet, error) {
	walletID, err := uuid.Parse(wallet.ID)
	if err != nil {
		return Wallet{}, ErrWalletNotFound
	}
	if wallet.Balance.IsNegative() {
		return Wallet{}, ErrNegativeBalance
	}

	const query = `UPDATE wallets SET balance = $1, version = version + 1, updated_at = $2
        WHERE id = $3 AND version = $4
        RETURNING ` + walletColumns
	saved, err := scanWallet(q.QueryRow(ctx, query, wallet.Balance, time.Now().UTC(), walletID, wallet.Version))
	if err == nil {
		return saved, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Wallet{}, storeError("save wallet", err)
	}

	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM wallets WHERE id = $1)`, walletID).Scan(&exists); err != nil {
		return Wallet{}, storeError("save wallet", err)
	}
	if !exists {
		return Wallet{}, ErrWalletNotFound
	}
	return Wallet{}, ErrVersionConflict
}

func updateTransaction(ctx context.Context, q querier, tx Transaction) (Transaction, error) {
	txID, err := uuid.Parse(tx.ID)
	if err != nil {
		return Transaction{}, ErrTransactionNotFound
	}

	const query = `UPDATE wallet_transactions SET amount = $1, payment_reference = $2, status = $3, updated_at = $4
        WHERE id = $5 AND status NOT IN ('SUCCESS', 'FAILED')
        RETURNING ` + transactionColumns
	saved, err := scanTransaction(q.QueryRow(ctx, query,
		tx.Amount, nullableText(tx.PaymentReference), string(tx.Status), time.Now().UTC(), txID))
	if err == nil {
		return saved, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, storeError("save transaction", err)
	}

	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM wallet_transactions WHERE id = $1)`, txID).Scan(&exists); err != nil {
		return Transaction{}, storeError("save transaction", err)
	}
	if !exists {
		return Transaction{}, ErrTransactionNotFound
	}
	return Transaction{}, ErrTransactionFinalized
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w      Wallet
		id     uuid.UUID
		userID uuid.UUID
	)
	if err := row.Scan(&id, &userID, &w.Balance, &w.Version, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return Wallet{}, err
	}
	w.ID = id.String()
	w.UserID = userID.String()
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		tx        Transaction
		id        uuid.UUID
		walletID  uuid.UUID
		reference *string
		status    string
	)
	if err := row.Scan(&id, &walletID, &tx.Amount, &reference, &status, &tx.CreatedAt, &tx.UpdatedAt); err != nil {
		return Transaction{}, err
	}
	parsed, err := ParseStatus(status)
	if err != nil {
		return Transaction{}, err
	}
	tx.ID = id.String()
	tx.WalletID = walletID.String()
	tx.Status = parsed
	if reference != nil {
		tx.PaymentReference = *reference
	}
	tx.CreatedAt = tx.CreatedAt.UTC()
	tx.UpdatedAt = tx.UpdatedAt.UTC()
	return tx, nil
}

func nullableText(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
