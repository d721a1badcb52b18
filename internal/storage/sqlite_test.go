package storage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := NewSQLiteStore(dbPath, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func sampleBid(domain string, epoch int64) *Bid {
	return &Bid{
		ChainID:    11155111,
		Domain:     domain,
		Account:    "0xAbCdEf0000000000000000000000000000000001",
		Epoch:      epoch,
		AmountWei:  "2500000000000000000",
		Secret:     "hunter2",
		Commitment: "0x1234",
		DepositWei: "3000000000000000000",
	}
}

// runBidStoreTests exercises any Store implementation.
func runBidStoreTests(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("SaveAndGet", func(t *testing.T) {
		bid := sampleBid("alice.ntu", 1000)
		require.NoError(t, store.SaveBid(ctx, bid))
		assert.NotEmpty(t, bid.ID)
		assert.Equal(t, BidPending, bid.Status)

		got, err := store.GetBid(ctx, 11155111, "alice.ntu", "0xABCDEF0000000000000000000000000000000001", 1000)
		require.NoError(t, err)
		assert.Equal(t, bid.ID, got.ID)
		assert.Equal(t, "0xabcdef0000000000000000000000000000000001", got.Account)
		assert.Equal(t, "2500000000000000000", got.AmountWei)
		assert.Equal(t, "hunter2", got.Secret)
		assert.Equal(t, BidPending, got.Status)
	})

	t.Run("OtherEpochNotFound", func(t *testing.T) {
		_, err := store.GetBid(ctx, 11155111, "alice.ntu", "0xabcdef0000000000000000000000000000000001", 999)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("SaveReplacesSameEpoch", func(t *testing.T) {
		first := sampleBid("retry.ntu", 2000)
		require.NoError(t, store.SaveBid(ctx, first))

		second := sampleBid("retry.ntu", 2000)
		second.AmountWei = "1"
		second.Secret = "other"
		require.NoError(t, store.SaveBid(ctx, second))
		assert.Equal(t, first.ID, second.ID)

		got, err := store.GetBid(ctx, 11155111, "retry.ntu", first.Account, 2000)
		require.NoError(t, err)
		assert.Equal(t, "1", got.AmountWei)
		assert.Equal(t, "other", got.Secret)
	})

	t.Run("UpdateStatus", func(t *testing.T) {
		bid := sampleBid("status.ntu", 3000)
		require.NoError(t, store.SaveBid(ctx, bid))

		require.NoError(t, store.UpdateBidStatus(ctx, bid.ID, BidCommitted, "0xc0"))
		require.NoError(t, store.UpdateBidStatus(ctx, bid.ID, BidRevealed, "0xe0"))

		got, err := store.GetBid(ctx, bid.ChainID, bid.Domain, bid.Account, bid.Epoch)
		require.NoError(t, err)
		assert.Equal(t, BidRevealed, got.Status)
		assert.Equal(t, "0xc0", got.CommitTx)
		assert.Equal(t, "0xe0", got.RevealTx)
	})

	t.Run("UpdateStatusErrors", func(t *testing.T) {
		bid := sampleBid("errors.ntu", 4000)
		require.NoError(t, store.SaveBid(ctx, bid))

		err := store.UpdateBidStatus(ctx, bid.ID, BidStatus("lost"), "")
		assert.ErrorIs(t, err, ErrInvalidStatus)

		err = store.UpdateBidStatus(ctx, generateID(), BidCommitted, "0x1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ListAndPaginate", func(t *testing.T) {
		account := "0x00000000000000000000000000000000000000aa"
		for i := int64(0); i < 5; i++ {
			bid := sampleBid("page.ntu", 5000+i)
			bid.Account = account
			require.NoError(t, store.SaveBid(ctx, bid))
		}

		page, err := store.ListBids(ctx, BidFilter{Account: account}, PaginationParams{Limit: 2})
		require.NoError(t, err)
		require.Len(t, page.Data, 2)
		assert.True(t, page.HasMore)
		assert.Equal(t, int64(5004), page.Data[0].Epoch, "newest first")

		var epochs []int64
		cursor := ""
		for {
			page, err := store.ListBids(ctx, BidFilter{Account: account}, PaginationParams{Limit: 2, Cursor: cursor})
			require.NoError(t, err)
			for _, b := range page.Data {
				epochs = append(epochs, b.Epoch)
			}
			if !page.HasMore {
				break
			}
			cursor = page.NextCursor
		}
		assert.Equal(t, []int64{5004, 5003, 5002, 5001, 5000}, epochs)
	})

	t.Run("ListByStatus", func(t *testing.T) {
		bid := sampleBid("filter.ntu", 6000)
		bid.Account = "0x00000000000000000000000000000000000000bb"
		require.NoError(t, store.SaveBid(ctx, bid))
		require.NoError(t, store.UpdateBidStatus(ctx, bid.ID, BidCommitted, "0x1"))

		page, err := store.ListBids(ctx, BidFilter{Account: bid.Account, Status: BidCommitted}, PaginationParams{})
		require.NoError(t, err)
		require.Len(t, page.Data, 1)
		assert.Equal(t, "filter.ntu", page.Data[0].Domain)

		page, err = store.ListBids(ctx, BidFilter{Account: bid.Account, Status: BidPending}, PaginationParams{})
		require.NoError(t, err)
		assert.Empty(t, page.Data)
	})

	t.Run("Delete", func(t *testing.T) {
		bid := sampleBid("delete.ntu", 7000)
		require.NoError(t, store.SaveBid(ctx, bid))
		require.NoError(t, store.DeleteBid(ctx, bid.ID))

		_, err := store.GetBid(ctx, bid.ChainID, bid.Domain, bid.Account, bid.Epoch)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, store.DeleteBid(ctx, bid.ID), ErrNotFound)
	})
}

func TestSQLiteStore(t *testing.T) {
	runBidStoreTests(t, newTestSQLiteStore(t))
}

func TestSQLiteStore_MigrateIdempotent(t *testing.T) {
	store := newTestSQLiteStore(t)
	assert.NoError(t, store.Migrate(context.Background()))
}
