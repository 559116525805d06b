package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	redisKeyPrefix     = "ledger:v1:"
	redisWatchAttempts = 5
)

func walletKey(id string) string        { return redisKeyPrefix + "wallet:" + id }
func ownerKey(userID string) string     { return redisKeyPrefix + "owner:" + userID }
func transactionKey(id string) string   { return redisKeyPrefix + "txn:" + id }
func walletTxIndexKey(id string) string { return redisKeyPrefix + "wallet-txns:" + id }
func statusIndexKey(s Status) string    { return redisKeyPrefix + "status:" + string(s) }

// RedisStore keeps wallets and transactions in Redis hashes. Version checks run
// inside WATCH/MULTI/EXEC so competing writers from any instance are detected.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore builds a Redis-backed store.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// CreateWallet reserves the owner key and writes the wallet hash atomically.
func (s *RedisStore) CreateWallet(ctx context.Context, userID string) (Wallet, error) {
	now := time.Now().UTC()
	w := Wallet{
		ID:        uuid.NewString(),
		UserID:    userID,
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.rdb.Watch(ctx, func(rtx *redis.Tx) error {
		n, err := rtx.Exists(ctx, ownerKey(userID)).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrWalletExists
		}
		_, err = rtx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, ownerKey(userID), w.ID, 0)
			p.HSet(ctx, walletKey(w.ID), walletFields(w))
			return nil
		})
		return err
	}, ownerKey(userID))

	switch {
	case err == nil:
		return w, nil
	case errors.Is(err, ErrWalletExists), errors.Is(err, redis.TxFailedErr):
		return Wallet{}, ErrWalletExists
	default:
		return Wallet{}, storeError("create wallet", err)
	}
}

// GetWallet loads a wallet hash.
func (s *RedisStore) GetWallet(ctx context.Context, id string) (Wallet, error) {
	w, err := loadWallet(ctx, s.rdb, id)
	if err != nil && !errors.Is(err, ErrWalletNotFound) {
		return Wallet{}, storeError("get wallet", err)
	}
	return w, err
}

// SaveWallet writes the balance only if the stored version still matches.
func (s *RedisStore) SaveWallet(ctx context.Context, wallet Wallet) (Wallet, error) {
	var saved Wallet
	err := s.watch(ctx, func(rtx *redis.Tx) error {
		next, err := nextWallet(ctx, rtx, wallet)
		if err != nil {
			return err
		}
		_, err = rtx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, walletKey(next.ID), walletFields(next))
			return nil
		})
		if err == nil {
			saved = next
		}
		return err
	}, walletKey(wallet.ID))
	if err != nil {
		return Wallet{}, s.classify("save wallet", err)
	}
	return saved, nil
}

// CreateTransaction writes a transaction hash and indexes it by wallet and status.
func (s *RedisStore) CreateTransaction(ctx context.Context, tx Transaction) (Transaction, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now

	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, transactionKey(tx.ID), transactionFields(tx))
		p.ZAdd(ctx, walletTxIndexKey(tx.WalletID), redis.Z{Score: float64(tx.CreatedAt.UnixNano()), Member: tx.ID})
		p.SAdd(ctx, statusIndexKey(tx.Status), tx.ID)
		return nil
	})
	if err != nil {
		return Transaction{}, storeError("create transaction", err)
	}
	return tx, nil
}

// SaveTransaction updates a non-terminal transaction.
func (s *RedisStore) SaveTransaction(ctx context.Context, tx Transaction) (Transaction, error) {
	var saved Transaction
	err := s.watch(ctx, func(rtx *redis.Tx) error {
		current, next, err := nextTransaction(ctx, rtx, tx)
		if err != nil {
			return err
		}
		_, err = rtx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			queueTransaction(ctx, p, current, next)
			return nil
		})
		if err == nil {
			saved = next
		}
		return err
	}, transactionKey(tx.ID))
	if err != nil {
		return Transaction{}, s.classify("save transaction", err)
	}
	return saved, nil
}

// GetTransaction loads a transaction hash.
func (s *RedisStore) GetTransaction(ctx context.Context, id string) (Transaction, error) {
	tx, err := loadTransaction(ctx, s.rdb, id)
	if err != nil && !errors.Is(err, ErrTransactionNotFound) {
		return Transaction{}, storeError("get transaction", err)
	}
	return tx, err
}

// ListTransactions returns the wallet's transactions, oldest first.
func (s *RedisStore) ListTransactions(ctx context.Context, walletID string) ([]Transaction, error) {
	ids, err := s.rdb.ZRange(ctx, walletTxIndexKey(walletID), 0, -1).Result()
	if err != nil {
		return nil, storeError("list transactions", err)
	}
	return s.loadAll(ctx, "list transactions", ids)
}

// TransactionsByStatus returns all transactions currently in status.
func (s *RedisStore) TransactionsByStatus(ctx context.Context, status Status) ([]Transaction, error) {
	ids, err := s.rdb.SMembers(ctx, statusIndexKey(status)).Result()
	if err != nil {
		return nil, storeError("transactions by status", err)
	}
	out, err := s.loadAll(ctx, "transactions by status", ids)
	if err != nil {
		return nil, err
	}
	sortTransactions(out)
	return out, nil
}

func (s *RedisStore) loadAll(ctx context.Context, op string, ids []string) ([]Transaction, error) {
	out := make([]Transaction, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cmds, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, id := range ids {
			p.HGetAll(ctx, transactionKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, storeError(op, err)
	}
	for _, cmd := range cmds {
		fields, err := cmd.(*redis.MapStringStringCmd).Result()
		if err != nil {
			return nil, storeError(op, err)
		}
		if len(fields) == 0 {
			continue
		}
		tx, err := parseTransaction(fields)
		if err != nil {
			return nil, storeError(op, err)
		}
		out = append(out, tx)
	}
	return out, nil
}

// Commit applies the wallet compare-and-swap and the transaction update in one MULTI/EXEC block.
func (s *RedisStore) Commit(ctx context.Context, wallet Wallet, tx Transaction) (Wallet, Transaction, error) {
	var (
		savedWallet Wallet
		savedTx     Transaction
	)
	err := s.watch(ctx, func(rtx *redis.Tx) error {
		current, nextTx, err := nextTransaction(ctx, rtx, tx)
		if err != nil {
			return err
		}
		nextW, err := nextWallet(ctx, rtx, wallet)
		if err != nil {
			return err
		}
		_, err = rtx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, walletKey(nextW.ID), walletFields(nextW))
			queueTransaction(ctx, p, current, nextTx)
			return nil
		})
		if err == nil {
			savedWallet, savedTx = nextW, nextTx
		}
		return err
	}, walletKey(wallet.ID), transactionKey(tx.ID))
	if err != nil {
		return Wallet{}, Transaction{}, s.classify("commit", err)
	}
	return savedWallet, savedTx, nil
}

// watch runs fn under WATCH. An aborted EXEC is retried only when the watched
// wallet version did not change, which fn re-checks on every run.
func (s *RedisStore) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	var err error
	for i := 0; i < redisWatchAttempts; i++ {
		err = s.rdb.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

func (s *RedisStore) classify(op string, err error) error {
	switch {
	case errors.Is(err, ErrVersionConflict),
		errors.Is(err, ErrWalletNotFound),
		errors.Is(err, ErrTransactionNotFound),
		errors.Is(err, ErrTransactionFinalized),
		errors.Is(err, ErrNegativeBalance):
		return err
	case errors.Is(err, redis.TxFailedErr):
		return ErrVersionConflict
	default:
		return storeError(op, err)
	}
}

type hashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

func loadWallet(ctx context.Context, r hashReader, id string) (Wallet, error) {
	fields, err := r.HGetAll(ctx, walletKey(id)).Result()
	if err != nil {
		return Wallet{}, err
	}
	if len(fields) == 0 {
		return Wallet{}, ErrWalletNotFound
	}
	return parseWallet(fields)
}

func loadTransaction(ctx context.Context, r hashReader, id string) (Transaction, error) {
	fields, err := r.HGetAll(ctx, transactionKey(id)).Result()
	if err != nil {
		return Transaction{}, err
	}
	if len(fields) == 0 {
		return Transaction{}, ErrTransactionNotFound
	}
	return parseTransaction(fields)
}

func nextWallet(ctx context.Context, rtx *redis.Tx, wallet Wallet) (Wallet, error) {
	current, err := loadWallet(ctx, rtx, wallet.ID)
	if err != nil {
		return Wallet{}, err
	}
	if current.Version != wallet.Version {
		return Wallet{}, ErrVersionConflict
	}
	if wallet.Balance.IsNegative() {
		return Wallet{}, ErrNegativeBalance
	}
	current.Balance = wallet.Balance
	current.Version++
	current.UpdatedAt = time.Now().UTC()
	return current, nil
}

func nextTransaction(ctx context.Context, rtx *redis.Tx, tx Transaction) (Transaction, Transaction, error) {
	current, err := loadTransaction(ctx, rtx, tx.ID)
	if err != nil {
		return Transaction{}, Transaction{}, err
	}
	if current.Status.Terminal() {
		return Transaction{}, Transaction{}, ErrTransactionFinalized
	}
	tx.CreatedAt = current.CreatedAt
	tx.UpdatedAt = time.Now().UTC()
	return current, tx, nil
}

func queueTransaction(ctx context.Context, p redis.Pipeliner, current, next Transaction) {
	p.HSet(ctx, transactionKey(next.ID), transactionFields(next))
	if current.Status != next.Status {
		p.SRem(ctx, statusIndexKey(current.Status), next.ID)
		p.SAdd(ctx, statusIndexKey(next.Status), next.ID)
	}
}

func walletFields(w Wallet) map[string]any {
	return map[string]any{
		"id":         w.ID,
		"user_id":    w.UserID,
		"balance":    w.Balance.String(),
		"version":    w.Version,
		"created_at": w.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": w.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func parseWallet(fields map[string]string) (Wallet, error) {
	balance, err := decimal.NewFromString(fields["balance"])
	if err != nil {
		return Wallet{}, fmt.Errorf("decode wallet balance: %w", err)
	}
	version, err := strconv.ParseInt(fields["version"], 10, 64)
	if err != nil {
		return Wallet{}, fmt.Errorf("decode wallet version: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return Wallet{}, fmt.Errorf("decode wallet created_at: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, fields["updated_at"])
	if err != nil {
		return Wallet{}, fmt.Errorf("decode wallet updated_at: %w", err)
	}
	return Wallet{
		ID:        fields["id"],
		UserID:    fields["user_id"],
		Balance:   balance,
		Version:   version,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

func transactionFields(tx Transaction) map[string]any {
	return map[string]any{
		"id":                tx.ID,
		"wallet_id":         tx.WalletID,
		"amount":            tx.Amount.String(),
		"payment_reference": tx.PaymentReference,
		"status":            string(tx.Status),
		"created_at":        tx.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":        tx.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func parseTransaction(fields map[string]string) (Transaction, error) {
	amount, err := decimal.NewFromString(fields["amount"])
	if err != nil {
		return Transaction{}, fmt.Errorf("decode transaction amount: %w", err)
	}
	status, err := ParseStatus(fields["status"])
	if err != nil {
		return Transaction{}, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return Transaction{}, fmt.Errorf("decode transaction created_at: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, fields["updated_at"])
	if err != nil {
		return Transaction{}, fmt.Errorf("decode transaction updated_at: %w", err)
	}
	return Transaction{
		ID:               fields["id"],
		WalletID:         fields["wallet_id"],
		Amount:           amount,
		PaymentReference: fields["payment_reference"],
		Status:           status,
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
	}, nil
}
