package registry

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Real base58 public keys; the registry validates before accepting.
var testAddresses = []string{
	"4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T",
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
	"So11111111111111111111111111111111111111112",
}

func newTestRegistry(t *testing.T, max int) (*Registry, context.Context) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRegistry(max, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go r.Run(ctx)
	return r, ctx
}

func TestAdd(t *testing.T) {
	r, ctx := newTestRegistry(t, 2)

	t.Run("registers a valid address", func(t *testing.T) {
		w, err := r.Add(ctx, testAddresses[0])
		require.NoError(t, err)
		assert.Equal(t, testAddresses[0], w.Address)
		assert.True(t, w.Active)
		assert.Nil(t, w.Cursor)
		assert.False(t, w.RegisteredAt.IsZero())
	})

	t.Run("signals an immediate poll", func(t *testing.T) {
		select {
		case addr := <-r.PollNow():
			assert.Equal(t, testAddresses[0], addr)
		default:
			t.Fatal("expected a poll-now signal after add")
		}
	})

	t.Run("rejects a duplicate add", func(t *testing.T) {
		_, err := r.Add(ctx, testAddresses[0])
		require.ErrorIs(t, err, ErrAlreadyWatched)

		stats, err := r.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.CurrentCount)
	})

	t.Run("rejects invalid base58", func(t *testing.T) {
		_, err := r.Add(ctx, "not-base58!!")
		require.ErrorIs(t, err, ErrInvalidAddress)
	})

	t.Run("rejects adds past capacity", func(t *testing.T) {
		_, err := r.Add(ctx, testAddresses[1])
		require.NoError(t, err)

		_, err = r.Add(ctx, testAddresses[2])
		require.ErrorIs(t, err, ErrCapacityReached)

		stats, err := r.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.CurrentCount)
		assert.False(t, stats.CanAddMore)
	})
}

func TestRemove(t *testing.T) {
	r, ctx := newTestRegistry(t, 2)

	_, err := r.Add(ctx, testAddresses[0])
	require.NoError(t, err)

	t.Run("removes a watched address", func(t *testing.T) {
		removed, err := r.Remove(ctx, testAddresses[0])
		require.NoError(t, err)
		assert.True(t, removed)
	})

	t.Run("removing again is a no-op", func(t *testing.T) {
		removed, err := r.Remove(ctx, testAddresses[0])
		require.NoError(t, err)
		assert.False(t, removed)
	})

	t.Run("frees capacity", func(t *testing.T) {
		stats, err := r.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, stats.CurrentCount)
		assert.True(t, stats.CanAddMore)
	})
}

func TestCommitCursor(t *testing.T) {
	r, ctx := newTestRegistry(t, 2)

	_, err := r.Add(ctx, testAddresses[0])
	require.NoError(t, err)

	t.Run("cursor becomes visible in snapshots", func(t *testing.T) {
		require.NoError(t, r.CommitCursor(ctx, testAddresses[0], "sig-abc"))

		watches, err := r.List(ctx)
		require.NoError(t, err)
		require.Len(t, watches, 1)
		require.NotNil(t, watches[0].Cursor)
		assert.Equal(t, "sig-abc", *watches[0].Cursor)
	})

	t.Run("commit for a removed address is a no-op", func(t *testing.T) {
		_, err := r.Remove(ctx, testAddresses[0])
		require.NoError(t, err)
		require.NoError(t, r.CommitCursor(ctx, testAddresses[0], "sig-def"))

		watches, err := r.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, watches)
	})
}

func TestListReturnsCopies(t *testing.T) {
	r, ctx := newTestRegistry(t, 2)

	_, err := r.Add(ctx, testAddresses[0])
	require.NoError(t, err)

	watches, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, watches, 1)

	// Mutating the snapshot must not leak into registry state.
	bogus := "sig-bogus"
	watches[0].Cursor = &bogus

	fresh, err := r.List(ctx)
	require.NoError(t, err)
	assert.Nil(t, fresh[0].Cursor)
}
