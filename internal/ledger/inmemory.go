package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type inMemoryStore struct {
	mu           sync.RWMutex
	wallets      map[string]Wallet
	owners       map[string]string
	transactions map[string]Transaction
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit tests and local runs.
func NewInMemory() Store {
	return &inMemoryStore{
		wallets:      make(map[string]Wallet),
		owners:       make(map[string]string),
		transactions: make(map[string]Transaction),
	}
}

func (s *inMemoryStore) CreateWallet(_ context.Context, userID string) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.owners[userID]; exists {
		return Wallet{}, ErrWalletExists
	}

	now := time.Now().UTC()
	w := Wallet{
		ID:        uuid.NewString(),
		UserID:    userID,
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.wallets[w.ID] = w
	s.owners[userID] = w.ID
	return w, nil
}

func (s *inMemoryStore) GetWallet(_ context.Context, id string) (Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallets[id]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return w, nil
}

func (s *inMemoryStore) SaveWallet(_ context.Context, wallet Wallet) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved, err := s.swapWallet(wallet)
	if err != nil {
		return Wallet{}, err
	}
	s.wallets[saved.ID] = saved
	return saved, nil
}

// swapWallet must be called with the write lock held. It only computes the next
// stored state; the caller writes it.
func (s *inMemoryStore) swapWallet(wallet Wallet) (Wallet, error) {
	current, ok := s.wallets[wallet.ID]
	if !ok {
		return Wallet{}, ErrWalletNotFound
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

func (s *inMemoryStore) CreateTransaction(_ context.Context, tx Transaction) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now
	s.transactions[tx.ID] = tx
	return tx, nil
}

func (s *inMemoryStore) SaveTransaction(_ context.Context, tx Transaction) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved, err := s.checkTransaction(tx)
	if err != nil {
		return Transaction{}, err
	}
	s.transactions[saved.ID] = saved
	return saved, nil
}

// checkTransaction must be called with the write lock held. It returns tx stamped for storage.
func (s *inMemoryStore) checkTransaction(tx Transaction) (Transaction, error) {
	current, ok := s.transactions[tx.ID]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	if current.Status.Terminal() {
		return Transaction{}, ErrTransactionFinalized
	}
	tx.CreatedAt = current.CreatedAt
	tx.UpdatedAt = time.Now().UTC()
	return tx, nil
}

func (s *inMemoryStore) GetTransaction(_ context.Context, id string) (Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.transactions[id]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	return tx, nil
}

func (s *inMemoryStore) ListTransactions(_ context.Context, walletID string) ([]Transaction, error) {
	return s.filter(func(tx Transaction) bool { return tx.WalletID == walletID }), nil
}

func (s *inMemoryStore) TransactionsByStatus(_ context.Context, status Status) ([]Transaction, error) {
	return s.filter(func(tx Transaction) bool { return tx.Status == status }), nil
}

func (s *inMemoryStore) filter(keep func(Transaction) bool) []Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Transaction, 0)
	for _, tx := range s.transactions {
		if keep(tx) {
			out = append(out, tx)
		}
	}
	sortTransactions(out)
	return out
}

func (s *inMemoryStore) Commit(_ context.Context, wallet Wallet, tx Transaction) (Wallet, Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate both writes before applying either.
	savedTx, err := s.checkTransaction(tx)
	if err != nil {
		return Wallet{}, Transaction{}, err
	}
	savedWallet, err := s.swapWallet(wallet)
	if err != nil {
		return Wallet{}, Transaction{}, err
	}

	s.wallets[savedWallet.ID] = savedWallet
	s.transactions[savedTx.ID] = savedTx
	return savedWallet, savedTx, nil
}
