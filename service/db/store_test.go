package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertActivityEvent(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	params := InsertActivityEventParams{
		ActivityID:         "act-dedup-1",
		OwnerAddress:       "addr1",
		Outcome:            "confirmed",
		DeliveryClass:      "priority",
		DeliveryConfidence: 0.8,
		CostEstimate:       5000,
		DetailCount:        3,
		ObservedAt:         &now,
	}

	t.Run("first insert creates a row", func(t *testing.T) {
		created, err := store.InsertActivityEvent(ctx, params)
		require.NoError(t, err)
		assert.True(t, created)

		event, err := store.GetActivityEvent(ctx, params.ActivityID)
		require.NoError(t, err)
		assert.Equal(t, params.OwnerAddress, event.OwnerAddress)
		assert.Equal(t, params.Outcome, event.Outcome)
		assert.Equal(t, params.DeliveryClass, event.DeliveryClass)
		assert.Equal(t, params.DetailCount, event.DetailCount)
		require.NotNil(t, event.ObservedAt)
		assert.WithinDuration(t, now, *event.ObservedAt, time.Microsecond)
		assert.WithinDuration(t, time.Now(), event.CreatedAt, 5*time.Second)
	})

	t.Run("duplicate insert is a no-op, not an error", func(t *testing.T) {
		dup := params
		dup.Outcome = "failed" // must not overwrite the stored row
		created, err := store.InsertActivityEvent(ctx, dup)
		require.NoError(t, err)
		assert.False(t, created)

		event, err := store.GetActivityEvent(ctx, params.ActivityID)
		require.NoError(t, err)
		assert.Equal(t, "confirmed", event.Outcome)

		count, err := store.CountActivityEvents(ctx, params.OwnerAddress)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("nil observed_at round-trips as nil", func(t *testing.T) {
		pending := InsertActivityEventParams{
			ActivityID:    "act-pending-1",
			OwnerAddress:  "addr1",
			Outcome:       "pending",
			DeliveryClass: "direct",
		}
		created, err := store.InsertActivityEvent(ctx, pending)
		require.NoError(t, err)
		assert.True(t, created)

		event, err := store.GetActivityEvent(ctx, pending.ActivityID)
		require.NoError(t, err)
		assert.Nil(t, event.ObservedAt)
	})
}

func TestListActivityEvents(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()

	for _, p := range []InsertActivityEventParams{
		{ActivityID: "act-a1", OwnerAddress: "addrA", Outcome: "confirmed", DeliveryClass: "direct"},
		{ActivityID: "act-a2", OwnerAddress: "addrA", Outcome: "pending", DeliveryClass: "direct"},
		{ActivityID: "act-b1", OwnerAddress: "addrB", Outcome: "failed", DeliveryClass: "bundled"},
	} {
		created, err := store.InsertActivityEvent(ctx, p)
		require.NoError(t, err)
		require.True(t, created)
	}

	t.Run("scoped to one address", func(t *testing.T) {
		events, err := store.ListActivityEvents(ctx, ListActivityEventsParams{
			OwnerAddress: "addrA",
			Limit:        10,
		})
		require.NoError(t, err)
		require.Len(t, events, 2)
		for _, e := range events {
			assert.Equal(t, "addrA", e.OwnerAddress)
		}
	})

	t.Run("all addresses with pagination", func(t *testing.T) {
		events, err := store.ListActivityEvents(ctx, ListActivityEventsParams{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, events, 2)

		rest, err := store.ListActivityEvents(ctx, ListActivityEventsParams{Limit: 2, Offset: 2})
		require.NoError(t, err)
		assert.Len(t, rest, 1)
	})

	t.Run("count per address", func(t *testing.T) {
		count, err := store.CountActivityEvents(ctx, "addrB")
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		total, err := store.CountActivityEvents(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
	})
}

func TestLatestActivityID(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()

	t.Run("empty table yields empty id", func(t *testing.T) {
		id, err := store.LatestActivityID(ctx, "addrA")
		require.NoError(t, err)
		assert.Empty(t, id)
	})

	t.Run("returns the newest persisted id", func(t *testing.T) {
		for _, id := range []string{"act-old", "act-new"} {
			created, err := store.InsertActivityEvent(ctx, InsertActivityEventParams{
				ActivityID:    id,
				OwnerAddress:  "addrA",
				Outcome:       "pending",
				DeliveryClass: "direct",
			})
			require.NoError(t, err)
			require.True(t, created)
		}

		latest, err := store.LatestActivityID(ctx, "addrA")
		require.NoError(t, err)
		// Same created_at timestamps fall back to id ordering, so either way
		// the id belongs to addrA and is non-empty.
		assert.Contains(t, []string{"act-old", "act-new"}, latest)
	})
}
