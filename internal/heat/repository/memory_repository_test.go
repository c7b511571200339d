package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tair/heat-service/internal/heat/domain"
)

func upsert(t *testing.T, s *MemoryStore, items ...domain.Item) {
	t.Helper()
	for i := range items {
		require.NoError(t, s.UpsertCatalogItem(context.Background(), &items[i]))
	}
}

func TestMemoryStore_TransactionCommitsAtomically(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	upsert(t, s, domain.Item{ID: "m1", Popularity: 1})

	err := s.RunTransaction(ctx, func(ctx context.Context, tx domain.Tx) error {
		if err := tx.CreateFavorite(ctx, &domain.Favorite{UserID: "u1", ItemID: "m1"}); err != nil {
			return err
		}
		return tx.SetHeatCount(ctx, "m1", 1)
	})
	require.NoError(t, err)

	item, err := s.GetItem(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), item.HeatCount)
	_, err = s.GetFavorite(ctx, "u1", "m1")
	assert.NoError(t, err)
}

func TestMemoryStore_FailedBodyWritesNothing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	boom := errors.New("boom")

	err := s.RunTransaction(ctx, func(ctx context.Context, tx domain.Tx) error {
		if err := tx.CreateFavorite(ctx, &domain.Favorite{UserID: "u1", ItemID: "m1"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetFavorite(ctx, "u1", "m1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryStore_ConflictRetriesFromFreshRead(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	upsert(t, s, domain.Item{ID: "m1"})

	attempts := 0
	var seen []int64
	err := s.RunTransaction(ctx, func(ctx context.Context, tx domain.Tx) error {
		attempts++
		item, err := tx.GetItem(ctx, "m1")
		if err != nil {
			return err
		}
		seen = append(seen, item.HeatCount)
		if attempts == 1 {
			// A competing writer commits between our read and our commit
			require.NoError(t, s.RunTransaction(ctx, func(ctx context.Context, other domain.Tx) error {
				return other.SetHeatCount(ctx, "m1", 10)
			}))
		}
		return tx.SetHeatCount(ctx, "m1", item.HeatCount+1)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, []int64{0, 10}, seen)

	item, err := s.GetItem(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, int64(11), item.HeatCount)
}

func TestMemoryStore_ConflictOnDeletedAndRecreatedMark(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(WithMemoryMaxAttempts(1))
	require.NoError(t, s.RunTransaction(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.CreateFavorite(ctx, &domain.Favorite{UserID: "u1", ItemID: "m1"})
	}))

	err := s.RunTransaction(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := tx.GetFavorite(ctx, "u1", "m1"); err != nil {
			return err
		}
		require.NoError(t, s.RunTransaction(ctx, func(ctx context.Context, other domain.Tx) error {
			return other.DeleteFavorite(ctx, "u1", "m1")
		}))
		require.NoError(t, s.RunTransaction(ctx, func(ctx context.Context, other domain.Tx) error {
			return other.CreateFavorite(ctx, &domain.Favorite{UserID: "u1", ItemID: "m1"})
		}))
		return tx.DeleteFavorite(ctx, "u1", "m1")
	})
	assert.ErrorIs(t, err, domain.ErrContention)
}

func TestMemoryStore_ContentionAfterBudget(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(WithMemoryMaxAttempts(3))
	upsert(t, s, domain.Item{ID: "m1"})

	attempts := 0
	err := s.RunTransaction(ctx, func(ctx context.Context, tx domain.Tx) error {
		attempts++
		if _, err := tx.GetItem(ctx, "m1"); err != nil {
			return err
		}
		require.NoError(t, s.RunTransaction(ctx, func(ctx context.Context, other domain.Tx) error {
			return other.SetHeatCount(ctx, "m1", int64(attempts))
		}))
		return tx.SetHeatCount(ctx, "m1", 99)
	})
	assert.ErrorIs(t, err, domain.ErrContention)
	assert.Equal(t, 3, attempts)

	item, err := s.GetItem(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), item.HeatCount)
}

func TestMemoryStore_ReadAfterWriteRejected(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	err := s.RunTransaction(ctx, func(ctx context.Context, tx domain.Tx) error {
		if err := tx.SetHeatCount(ctx, "m1", 1); err != nil {
			return err
		}
		_, err := tx.GetItem(ctx, "m1")
		return err
	})
	assert.ErrorIs(t, err, errReadAfterWrite)
}

func TestMemoryStore_NegativeHeatRejected(t *testing.T) {
	s := NewMemoryStore()
	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		return tx.SetHeatCount(ctx, "m1", -1)
	})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestMemoryStore_DeadlineMapsToTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	s := NewMemoryStore()
	_, err := s.GetItem(ctx, "m1")
	assert.ErrorIs(t, err, domain.ErrTimeout)

	err = s.RunTransaction(ctx, func(context.Context, domain.Tx) error { return nil })
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

func TestMemoryStore_CancelPassesThrough(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryStore().QueryItems(ctx, domain.ItemQuery{OrderBy: domain.FieldPopularity})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrTimeout)
}

func TestMemoryStore_QueryItems(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	upsert(t, s,
		domain.Item{ID: "a", Popularity: 3, Trending: true},
		domain.Item{ID: "b", Popularity: 9},
		domain.Item{ID: "c", Popularity: 3, Trending: true},
		domain.Item{ID: "d", Popularity: 5, Trending: true},
	)

	yes := true
	items, err := s.QueryItems(ctx, domain.ItemQuery{Trending: &yes, OrderBy: domain.FieldPopularity, Descending: true})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"d", "a", "c"}, []string{items[0].ID, items[1].ID, items[2].ID})

	items, err = s.QueryItems(ctx, domain.ItemQuery{OrderBy: domain.FieldPopularity, Limit: 2})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].ID)
	assert.Equal(t, "c", items[1].ID)

	_, err = s.QueryItems(ctx, domain.ItemQuery{OrderBy: "title"})
	assert.ErrorIs(t, err, domain.ErrQueryUnsupported)
}

func TestMemoryStore_QueryItemsByHeat(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	upsert(t, s, domain.Item{ID: "a"}, domain.Item{ID: "b"})
	require.NoError(t, s.RunTransaction(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.SetHeatCount(ctx, "b", 4)
	}))

	items, err := s.QueryItems(ctx, domain.ItemQuery{OrderBy: domain.FieldHeatCount, Descending: true})
	require.NoError(t, err)
	assert.Equal(t, "b", items[0].ID)
}

func TestMemoryStore_IndexEnforcement(t *testing.T) {
	ctx := context.Background()
	yes := true
	q := domain.ItemQuery{Trending: &yes, OrderBy: domain.FieldPopularity, Descending: true}

	enforced := NewMemoryStore(WithIndexEnforcement())
	_, err := enforced.QueryItems(ctx, q)
	var detail *domain.QueryUnsupportedError
	require.ErrorAs(t, err, &detail)
	assert.Contains(t, detail.Reason, "composite index")

	// Unfiltered queries need no composite index
	_, err = enforced.QueryItems(ctx, domain.ItemQuery{OrderBy: domain.FieldPopularity})
	assert.NoError(t, err)

	indexed := NewMemoryStore(WithCompositeIndex("trending", domain.FieldPopularity))
	_, err = indexed.QueryItems(ctx, q)
	assert.NoError(t, err)
}

func TestMemoryStore_UpsertPreservesHeatAndCreatedAt(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore(WithMemoryClock(func() time.Time { return clock }))
	upsert(t, s, domain.Item{ID: "m1", Title: "Old", HeatCount: 50})

	item, err := s.GetItem(ctx, "m1")
	require.NoError(t, err)
	assert.Zero(t, item.HeatCount)

	require.NoError(t, s.RunTransaction(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.SetHeatCount(ctx, "m1", 6)
	}))

	clock = clock.Add(time.Hour)
	upsert(t, s, domain.Item{ID: "m1", Title: "New", HeatCount: 0, Popularity: 8})

	item, err = s.GetItem(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "New", item.Title)
	assert.Equal(t, int64(6), item.HeatCount)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), item.CreatedAt)
	assert.Equal(t, clock, item.UpdatedAt)
}

func TestMemoryStore_SetHeatCreatesMissingItem(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.RunTransaction(ctx, func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.GetItem(ctx, "ghost")
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return tx.SetHeatCount(ctx, "ghost", 1)
	}))

	item, err := s.GetItem(ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, int64(1), item.HeatCount)
}

func TestMemoryStore_ListFavoritesNewestFirst(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	require.NoError(t, s.RunTransaction(ctx, func(ctx context.Context, tx domain.Tx) error {
		for i, id := range []string{"x", "y", "z"} {
			if err := tx.CreateFavorite(ctx, &domain.Favorite{UserID: "u1", ItemID: id, AddedAt: base.Add(time.Duration(i) * time.Second)}); err != nil {
				return err
			}
		}
		return nil
	}))

	favs, err := s.ListFavorites(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, favs, 3)
	assert.Equal(t, "z", favs[0].ItemID)

	favs, err = s.ListFavorites(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, favs)
}
