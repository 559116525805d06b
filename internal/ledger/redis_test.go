package ledger

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr
}

func TestRedisStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		s, _ := newRedisTestStore(t)
		return s
	})
}

func TestRedisStore_StatusIndexFollowsTransitions(t *testing.T) {
	s, mr := newRedisTestStore(t)
	ctx := context.Background()

	w, err := s.CreateWallet(ctx, uuid.NewString())
	require.NoError(t, err)
	tx := processedTransaction(t, s, w.ID, decimal.NewFromInt(7))

	assert.Equal(t, []string{tx.ID}, mustMembers(t, mr, StatusProcessed))
	assert.Empty(t, mustMembers(t, mr, StatusInitiated))

	w.Balance = w.Balance.Add(tx.Amount)
	require.NoError(t, tx.MarkSucceeded())
	_, _, err = s.Commit(ctx, w, tx)
	require.NoError(t, err)

	assert.Empty(t, mustMembers(t, mr, StatusProcessed))
	assert.Equal(t, []string{tx.ID}, mustMembers(t, mr, StatusSuccess))
}

func TestRedisStore_StoresDecimalsAsText(t *testing.T) {
	s, mr := newRedisTestStore(t)
	ctx := context.Background()

	w, err := s.CreateWallet(ctx, uuid.NewString())
	require.NoError(t, err)
	w.Balance = decimal.RequireFromString("10.05")
	_, err = s.SaveWallet(ctx, w)
	require.NoError(t, err)

	assert.Equal(t, "10.05", mr.HGet(walletKey(w.ID), "balance"))
	assert.Equal(t, "1", mr.HGet(walletKey(w.ID), "version"))
}

func TestRedisStore_UnavailableIsStoreError(t *testing.T) {
	s, mr := newRedisTestStore(t)
	mr.SetError("LOADING server is loading")

	_, err := s.GetWallet(context.Background(), uuid.NewString())
	require.ErrorIs(t, err, ErrStore)
}

func mustMembers(t *testing.T, mr *miniredis.Miniredis, status Status) []string {
	t.Helper()
	if !mr.Exists(statusIndexKey(status)) {
		return nil
	}
	members, err := mr.SMembers(statusIndexKey(status))
	require.NoError(t, err)
	return members
}
