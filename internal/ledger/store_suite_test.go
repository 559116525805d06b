package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreSuite checks the Store contract against any backend.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateWalletStartsEmpty", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		userID := uuid.NewString()

		w, err := s.CreateWallet(ctx, userID)
		require.NoError(t, err)
		assert.NotEmpty(t, w.ID)
		assert.Equal(t, userID, w.UserID)
		assert.True(t, w.Balance.IsZero())
		assert.Equal(t, int64(0), w.Version)

		fetched, err := s.GetWallet(ctx, w.ID)
		require.NoError(t, err)
		assert.Equal(t, w.ID, fetched.ID)
		assert.Equal(t, userID, fetched.UserID)
		assert.True(t, fetched.Balance.IsZero())
	})

	t.Run("CreateWalletRejectsDuplicateUser", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		userID := uuid.NewString()

		first, err := s.CreateWallet(ctx, userID)
		require.NoError(t, err)

		_, err = s.CreateWallet(ctx, userID)
		require.ErrorIs(t, err, ErrWalletExists)

		still, err := s.GetWallet(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, still.ID)
	})

	t.Run("GetWalletNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetWallet(context.Background(), uuid.NewString())
		require.ErrorIs(t, err, ErrWalletNotFound)
	})

	t.Run("SaveWalletComparesVersion", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		w, err := s.CreateWallet(ctx, uuid.NewString())
		require.NoError(t, err)

		w.Balance = decimal.RequireFromString("12.34")
		saved, err := s.SaveWallet(ctx, w)
		require.NoError(t, err)
		assert.Equal(t, int64(1), saved.Version)
		assert.True(t, saved.Balance.Equal(decimal.RequireFromString("12.34")))

		// w still carries version 0.
		w.Balance = decimal.NewFromInt(99)
		_, err = s.SaveWallet(ctx, w)
		require.ErrorIs(t, err, ErrVersionConflict)

		stored, err := s.GetWallet(ctx, w.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stored.Version)
		assert.True(t, stored.Balance.Equal(decimal.RequireFromString("12.34")))
	})

	t.Run("SaveWalletRejectsNegativeBalance", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		w, err := s.CreateWallet(ctx, uuid.NewString())
		require.NoError(t, err)

		w.Balance = decimal.NewFromInt(-1)
		_, err = s.SaveWallet(ctx, w)
		require.ErrorIs(t, err, ErrNegativeBalance)
	})

	t.Run("TransactionLifecycle", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		w, err := s.CreateWallet(ctx, uuid.NewString())
		require.NoError(t, err)

		tx, err := s.CreateTransaction(ctx, NewTransaction(w.ID, decimal.NewFromInt(15)))
		require.NoError(t, err)

		require.NoError(t, tx.MarkProcessed("pay-1"))
		tx, err = s.SaveTransaction(ctx, tx)
		require.NoError(t, err)

		fetched, err := s.GetTransaction(ctx, tx.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusProcessed, fetched.Status)
		assert.Equal(t, "pay-1", fetched.PaymentReference)
		assert.True(t, fetched.Amount.Equal(decimal.NewFromInt(15)))

		require.NoError(t, tx.MarkFailed())
		_, err = s.SaveTransaction(ctx, tx)
		require.NoError(t, err)

		// Terminal rows cannot be written again.
		tx.Status = StatusSuccess
		_, err = s.SaveTransaction(ctx, tx)
		require.ErrorIs(t, err, ErrTransactionFinalized)

		for i := 0; i < 2; i++ {
			again, err := s.GetTransaction(ctx, tx.ID)
			require.NoError(t, err)
			assert.Equal(t, StatusFailed, again.Status)
		}
	})

	t.Run("SaveUnknownTransaction", func(t *testing.T) {
		s := newStore(t)
		_, err := s.SaveTransaction(context.Background(), NewTransaction(uuid.NewString(), decimal.NewFromInt(1)))
		require.ErrorIs(t, err, ErrTransactionNotFound)
	})

	t.Run("CommitWritesBoth", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		w, err := s.CreateWallet(ctx, uuid.NewString())
		require.NoError(t, err)
		tx := processedTransaction(t, s, w.ID, decimal.NewFromInt(15))

		w.Balance = w.Balance.Add(tx.Amount)
		require.NoError(t, tx.MarkSucceeded())
		savedW, savedTx, err := s.Commit(ctx, w, tx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), savedW.Version)
		assert.True(t, savedW.Balance.Equal(decimal.NewFromInt(15)))
		assert.Equal(t, StatusSuccess, savedTx.Status)

		storedTx, err := s.GetTransaction(ctx, tx.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusSuccess, storedTx.Status)
	})

	t.Run("CommitConflictWritesNothing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		w, err := s.CreateWallet(ctx, uuid.NewString())
		require.NoError(t, err)
		tx := processedTransaction(t, s, w.ID, decimal.NewFromInt(15))

		stale := w
		w.Balance = decimal.NewFromInt(5)
		_, err = s.SaveWallet(ctx, w)
		require.NoError(t, err)

		stale.Balance = stale.Balance.Add(tx.Amount)
		require.NoError(t, tx.MarkSucceeded())
		_, _, err = s.Commit(ctx, stale, tx)
		require.ErrorIs(t, err, ErrVersionConflict)

		storedW, err := s.GetWallet(ctx, w.ID)
		require.NoError(t, err)
		assert.True(t, storedW.Balance.Equal(decimal.NewFromInt(5)))
		storedTx, err := s.GetTransaction(ctx, tx.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusProcessed, storedTx.Status)
	})

	t.Run("CommitFinalizedTransactionWritesNothing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		w, err := s.CreateWallet(ctx, uuid.NewString())
		require.NoError(t, err)
		tx := processedTransaction(t, s, w.ID, decimal.NewFromInt(15))

		failed := tx
		require.NoError(t, failed.MarkFailed())
		_, err = s.SaveTransaction(ctx, failed)
		require.NoError(t, err)

		w.Balance = w.Balance.Add(tx.Amount)
		require.NoError(t, tx.MarkSucceeded())
		_, _, err = s.Commit(ctx, w, tx)
		require.ErrorIs(t, err, ErrTransactionFinalized)

		storedW, err := s.GetWallet(ctx, w.ID)
		require.NoError(t, err)
		assert.True(t, storedW.Balance.IsZero())
		assert.Equal(t, int64(0), storedW.Version)
	})

	t.Run("ListAndFilterTransactions", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		w, err := s.CreateWallet(ctx, uuid.NewString())
		require.NoError(t, err)
		other, err := s.CreateWallet(ctx, uuid.NewString())
		require.NoError(t, err)

		first := processedTransaction(t, s, w.ID, decimal.NewFromInt(10))
		second, err := s.CreateTransaction(ctx, NewTransaction(w.ID, decimal.NewFromInt(20)))
		require.NoError(t, err)
		_, err = s.CreateTransaction(ctx, NewTransaction(other.ID, decimal.NewFromInt(30)))
		require.NoError(t, err)

		listed, err := s.ListTransactions(ctx, w.ID)
		require.NoError(t, err)
		require.Len(t, listed, 2)
		assert.ElementsMatch(t, []string{first.ID, second.ID}, []string{listed[0].ID, listed[1].ID})

		processed, err := s.TransactionsByStatus(ctx, StatusProcessed)
		require.NoError(t, err)
		require.Len(t, processed, 1)
		assert.Equal(t, first.ID, processed[0].ID)

		initiated, err := s.TransactionsByStatus(ctx, StatusInitiated)
		require.NoError(t, err)
		assert.Len(t, initiated, 2)

		empty, err := s.ListTransactions(ctx, uuid.NewString())
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("ConcurrentCompareAndSwapLosesNoUpdate", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		w, err := s.CreateWallet(ctx, uuid.NewString())
		require.NoError(t, err)

		const workers = 8
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					current, err := s.GetWallet(ctx, w.ID)
					if err != nil {
						t.Errorf("get wallet: %v", err)
						return
					}
					current.Balance = current.Balance.Add(decimal.NewFromInt(1))
					_, err = s.SaveWallet(ctx, current)
					if err == nil {
						return
					}
					if !errors.Is(err, ErrVersionConflict) {
						t.Errorf("save wallet: %v", err)
						return
					}
				}
			}()
		}
		wg.Wait()

		final, err := s.GetWallet(ctx, w.ID)
		require.NoError(t, err)
		assert.True(t, final.Balance.Equal(decimal.NewFromInt(workers)), "balance %s", final.Balance)
		assert.Equal(t, int64(workers), final.Version)
	})
}

func processedTransaction(t *testing.T, s Store, walletID string, amount decimal.Decimal) Transaction {
	t.Helper()
	ctx := context.Background()
	tx, err := s.CreateTransaction(ctx, NewTransaction(walletID, amount))
	require.NoError(t, err)
	require.NoError(t, tx.MarkProcessed("ref-"+tx.ID))
	tx, err = s.SaveTransaction(ctx, tx)
	require.NoError(t, err)
	return tx
}
