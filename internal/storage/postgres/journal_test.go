package postgres

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inavhq/clawdvault-sdk/internal/domain"
	"github.com/inavhq/clawdvault-sdk/internal/storage"
)

func createTestEntry(sig, wallet, mint string, submittedAt int64) *domain.JournalEntry {
	return &domain.JournalEntry{
		Signature:   sig,
		Wallet:      wallet,
		Mint:        mint,
		Op:          domain.OpSell,
		Amount:      decimal.RequireFromString("1500000.123456"),
		MinOutput:   decimal.RequireFromString("0.0441"),
		SolAmount:   ptr(decimal.RequireFromString("0.045")),
		Status:      domain.JournalPending,
		SubmittedAt: submittedAt,
	}
}

func TestJournal_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	j := NewJournal(pool)

	e := createTestEntry("sig-001", "wallet-1", "mint-1", 1000)
	require.NoError(t, j.Insert(ctx, e))

	got, err := j.GetBySignature(ctx, "sig-001")
	require.NoError(t, err)
	assert.Equal(t, "wallet-1", got.Wallet)
	assert.Equal(t, domain.OpSell, got.Op)
	assert.True(t, got.Amount.Equal(e.Amount), "amount %s", got.Amount)
	require.NotNil(t, got.SolAmount)
	assert.True(t, got.SolAmount.Equal(*e.SolAmount))
	assert.Nil(t, got.TokenAmount)
	assert.Nil(t, got.ResolvedAt)
	assert.Equal(t, domain.JournalPending, got.Status)

	assert.ErrorIs(t, j.Insert(ctx, e), storage.ErrDuplicateKey)

	_, err = j.GetBySignature(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestJournal_Resolve(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	j := NewJournal(pool)
	require.NoError(t, j.Insert(ctx, createTestEntry("sig-001", "wallet-1", "mint-1", 1000)))

	require.NoError(t, j.Resolve(ctx, "sig-001", domain.JournalTimeout, 2000, ""))
	require.NoError(t, j.Resolve(ctx, "sig-001", domain.JournalConfirmed, 3000, ""))

	got, err := j.GetBySignature(ctx, "sig-001")
	require.NoError(t, err)
	assert.Equal(t, domain.JournalConfirmed, got.Status)
	assert.Equal(t, ptr(int64(3000)), got.ResolvedAt)

	assert.ErrorIs(t, j.Resolve(ctx, "sig-001", domain.JournalFailed, 4000, "x"), storage.ErrAlreadyResolved)
	assert.ErrorIs(t, j.Resolve(ctx, "missing", domain.JournalFailed, 4000, "x"), storage.ErrNotFound)
	assert.ErrorIs(t, j.Resolve(ctx, "sig-001", domain.JournalPending, 4000, ""), storage.ErrInvalidInput)
}

func TestJournal_ConcurrentResolveHasOneWinner(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	j := NewJournal(pool)
	require.NoError(t, j.Insert(ctx, createTestEntry("sig-race", "wallet-1", "mint-1", 1000)))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := j.Resolve(ctx, "sig-race", domain.JournalConfirmed, 2000, ""); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestJournal_Lists(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	j := NewJournal(pool)

	for _, e := range []*domain.JournalEntry{
		createTestEntry("sig-3", "wallet-1", "mint-1", 3000),
		createTestEntry("sig-1", "wallet-1", "mint-1", 1000),
		createTestEntry("sig-2", "wallet-1", "mint-2", 2000),
		createTestEntry("sig-4", "wallet-2", "mint-1", 500),
	} {
		require.NoError(t, j.Insert(ctx, e))
	}
	require.NoError(t, j.Resolve(ctx, "sig-2", domain.JournalFailed, 2500, "insufficient funds"))

	unresolved, err := j.ListUnresolved(ctx, "wallet-1")
	require.NoError(t, err)
	require.Len(t, unresolved, 2)
	assert.Equal(t, "sig-1", unresolved[0].Signature)
	assert.Equal(t, "sig-3", unresolved[1].Signature)

	byMint, err := j.ListByMint(ctx, "mint-1")
	require.NoError(t, err)
	require.Len(t, byMint, 3)
	assert.Equal(t, "sig-4", byMint[0].Signature)
}
