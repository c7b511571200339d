package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tair/heat-service/internal/heat/domain"
	"github.com/tair/heat-service/internal/heat/repository"
)

func seed(t *testing.T, store *repository.MemoryStore, items ...domain.Item) {
	t.Helper()
	for i := range items {
		require.NoError(t, store.UpsertCatalogItem(context.Background(), &items[i]))
	}
}

func ids(items []domain.Item) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}

// failingStore answers QueryItems from a script and counts calls
type failingStore struct {
	domain.Store
	calls   int
	results [][]domain.Item
	errs    []error
}

func (s *failingStore) QueryItems(_ context.Context, _ domain.ItemQuery) ([]domain.Item, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.results) {
		return s.results[i], nil
	}
	return nil, nil
}

func (s *failingStore) GetFavorite(context.Context, string, string) (*domain.Favorite, error) {
	s.calls++
	if len(s.errs) > 0 {
		return nil, s.errs[0]
	}
	return &domain.Favorite{}, nil
}

func TestResolveTrending_FallsBackToPopularity(t *testing.T) {
	store := repository.NewMemoryStore()
	seed(t, store,
		domain.Item{ID: "A", Popularity: 10},
		domain.Item{ID: "B", Popularity: 30},
		domain.Item{ID: "C", Popularity: 20},
	)
	h := NewResolveTrendingHandler(store, nil, 0, 0, 0)

	res, err := h.Handle(context.Background(), ResolveTrendingQuery{})
	require.NoError(t, err)
	assert.Equal(t, domain.TierFallback, res.Tier)
	assert.Equal(t, []string{"B", "C", "A"}, ids(res.Items))
	assert.Equal(t, 3, res.Count)
}

func TestResolveTrending_PrimaryExcludesUnflagged(t *testing.T) {
	store := repository.NewMemoryStore()
	seed(t, store,
		domain.Item{ID: "A", Popularity: 5, Trending: true},
		domain.Item{ID: "B", Popularity: 50, Trending: true},
		domain.Item{ID: "C", Popularity: 100},
	)
	h := NewResolveTrendingHandler(store, nil, 0, 0, 0)

	res, err := h.Handle(context.Background(), ResolveTrendingQuery{})
	require.NoError(t, err)
	assert.Equal(t, domain.TierPrimary, res.Tier)
	assert.Equal(t, []string{"B", "A"}, ids(res.Items))
}

func TestResolveTrending_EmptyStore(t *testing.T) {
	h := NewResolveTrendingHandler(repository.NewMemoryStore(), nil, 0, 0, 0)

	res, err := h.Handle(context.Background(), ResolveTrendingQuery{})
	require.NoError(t, err)
	assert.Equal(t, domain.TierEmpty, res.Tier)
	assert.NotNil(t, res.Items)
	assert.Empty(t, res.Items)
}

func TestResolveTrending_PageSize(t *testing.T) {
	store := repository.NewMemoryStore()
	for i := 0; i < 20; i++ {
		seed(t, store, domain.Item{ID: fmt.Sprintf("m%02d", i), Popularity: float64(i)})
	}
	h := NewResolveTrendingHandler(store, nil, 0, 0, 0)

	res, err := h.Handle(context.Background(), ResolveTrendingQuery{})
	require.NoError(t, err)
	assert.Len(t, res.Items, DefaultTrendingPageSize)
	assert.Equal(t, "m19", res.Items[0].ID)

	res, err = h.Handle(context.Background(), ResolveTrendingQuery{PageSize: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"m19", "m18", "m17"}, ids(res.Items))

	_, err = h.Handle(context.Background(), ResolveTrendingQuery{PageSize: MaxTrendingPageSize + 1})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestResolveTrending_TiesKeepInsertionOrder(t *testing.T) {
	store := repository.NewMemoryStore()
	seed(t, store,
		domain.Item{ID: "first", Popularity: 7},
		domain.Item{ID: "second", Popularity: 7},
		domain.Item{ID: "third", Popularity: 7},
	)
	h := NewResolveTrendingHandler(store, nil, 0, 0, 0)

	for i := 0; i < 5; i++ {
		res, err := h.Handle(context.Background(), ResolveTrendingQuery{})
		require.NoError(t, err)
		assert.Equal(t, []string{"first", "second", "third"}, ids(res.Items))
	}
}

func TestResolveTrending_MissingIndexSurfaces(t *testing.T) {
	store := repository.NewMemoryStore(repository.WithIndexEnforcement())
	seed(t, store, domain.Item{ID: "A", Popularity: 10, Trending: true})
	h := NewResolveTrendingHandler(store, nil, 0, 0, 0)

	_, err := h.Handle(context.Background(), ResolveTrendingQuery{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrQueryUnsupported)

	var detail *domain.QueryUnsupportedError
	require.ErrorAs(t, err, &detail)
	assert.Equal(t, "trending == true", detail.Filter)
	assert.Equal(t, "popularity desc", detail.OrderBy)
}

func TestResolveTrending_WithIndexDeclared(t *testing.T) {
	store := repository.NewMemoryStore(repository.WithCompositeIndex("trending", domain.FieldPopularity))
	seed(t, store, domain.Item{ID: "A", Popularity: 10, Trending: true})
	h := NewResolveTrendingHandler(store, nil, 0, 0, 0)

	res, err := h.Handle(context.Background(), ResolveTrendingQuery{})
	require.NoError(t, err)
	assert.Equal(t, domain.TierPrimary, res.Tier)
}

func TestResolveTrending_PrimaryErrorDoesNotFallThrough(t *testing.T) {
	store := &failingStore{errs: []error{domain.ErrStoreUnavailable}}
	h := NewResolveTrendingHandler(store, nil, 0, 0, 0)

	_, err := h.Handle(context.Background(), ResolveTrendingQuery{})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Equal(t, 1, store.calls)
}

func TestResolveTrending_FallbackErrorSurfaces(t *testing.T) {
	store := &failingStore{errs: []error{nil, domain.ErrTimeout}}
	h := NewResolveTrendingHandler(store, nil, 0, 0, 0)

	_, err := h.Handle(context.Background(), ResolveTrendingQuery{})
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.Equal(t, 2, store.calls)
}

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
	gets int
	sets int
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string][]byte)}
}

func (c *mapCache) Get(_ context.Context, key string, dst interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (c *mapCache) Set(_ context.Context, key string, v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.data[key] = raw
	return nil
}

func TestResolveTrending_ServesFromCache(t *testing.T) {
	store := &failingStore{results: [][]domain.Item{{{ID: "A", Popularity: 1, Trending: true}}}}
	cache := newMapCache()
	h := NewResolveTrendingHandler(store, cache, 0, 0, 0)

	first, err := h.Handle(context.Background(), ResolveTrendingQuery{})
	require.NoError(t, err)
	second, err := h.Handle(context.Background(), ResolveTrendingQuery{})
	require.NoError(t, err)

	assert.Equal(t, 1, store.calls)
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, ids(first.Items), ids(second.Items))
	assert.Equal(t, domain.TierPrimary, second.Tier)
}

func TestResolveTrending_ErrorsAreNotCached(t *testing.T) {
	store := &failingStore{errs: []error{domain.ErrStoreUnavailable}}
	cache := newMapCache()
	h := NewResolveTrendingHandler(store, cache, 0, 0, 0)

	_, err := h.Handle(context.Background(), ResolveTrendingQuery{})
	require.Error(t, err)
	assert.Zero(t, cache.sets)
}

// gatedStore holds QueryItems until release is closed or the call's context ends
type gatedStore struct {
	domain.Store
	items   []domain.Item
	entered chan struct{}
	release chan struct{}
}

func newGatedStore(items []domain.Item) *gatedStore {
	return &gatedStore{
		items:   items,
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (s *gatedStore) QueryItems(ctx context.Context, _ domain.ItemQuery) ([]domain.Item, error) {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.release:
		return s.items, nil
	}
}

func TestResolveTrending_SharedResolutionSurvivesCallerCancel(t *testing.T) {
	store := newGatedStore([]domain.Item{{ID: "A", Popularity: 3, Trending: true}})
	h := NewResolveTrendingHandler(store, newMapCache(), 0, 0, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := h.Handle(ctx, ResolveTrendingQuery{})
		first <- err
	}()
	<-store.entered

	type outcome struct {
		res *domain.TrendingResult
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		res, err := h.Handle(context.Background(), ResolveTrendingQuery{})
		second <- outcome{res, err}
	}()

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	close(store.release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, domain.TierPrimary, got.res.Tier)
	assert.Equal(t, []string{"A"}, ids(got.res.Items))
}

func TestResolveTrending_CallerDeadlineIsTimeout(t *testing.T) {
	store := newGatedStore(nil)
	defer close(store.release)
	h := NewResolveTrendingHandler(store, newMapCache(), 0, 0, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := h.Handle(ctx, ResolveTrendingQuery{})
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

func TestIsFavorited(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	require.NoError(t, store.RunTransaction(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.CreateFavorite(ctx, &domain.Favorite{UserID: "u1", ItemID: "m1", AddedAt: time.Now()})
	}))
	h := NewIsFavoritedHandler(store)

	ok, err := h.Handle(ctx, IsFavoritedQuery{UserID: "u1", ItemID: "m1"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Handle(ctx, IsFavoritedQuery{UserID: "u2", ItemID: "m1"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsFavorited_AnonymousSkipsStore(t *testing.T) {
	store := &failingStore{}
	h := NewIsFavoritedHandler(store)

	ok, err := h.Handle(context.Background(), IsFavoritedQuery{ItemID: "m1"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, store.calls)
}

func TestIsFavorited_StoreErrorSurfaces(t *testing.T) {
	store := &failingStore{errs: []error{domain.ErrStoreUnavailable}}
	h := NewIsFavoritedHandler(store)

	_, err := h.Handle(context.Background(), IsFavoritedQuery{UserID: "u1", ItemID: "m1"})
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))
}

func TestListFavorites(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := repository.NewMemoryStore()
	require.NoError(t, store.RunTransaction(ctx, func(ctx context.Context, tx domain.Tx) error {
		for i, id := range []string{"m1", "m2", "m3"} {
			fav := &domain.Favorite{UserID: "u1", ItemID: id, AddedAt: base.Add(time.Duration(i) * time.Minute)}
			if err := tx.CreateFavorite(ctx, fav); err != nil {
				return err
			}
		}
		return tx.CreateFavorite(ctx, &domain.Favorite{UserID: "u2", ItemID: "m9", AddedAt: base})
	}))
	h := NewListFavoritesHandler(store)

	favs, err := h.Handle(ctx, ListFavoritesQuery{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, favs, 3)
	assert.Equal(t, "m3", favs[0].ItemID)
	assert.Equal(t, "m1", favs[2].ItemID)

	favs, err = h.Handle(ctx, ListFavoritesQuery{UserID: "u1", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, favs, 2)

	_, err = h.Handle(ctx, ListFavoritesQuery{})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestGetItem(t *testing.T) {
	store := repository.NewMemoryStore()
	seed(t, store, domain.Item{ID: "m1", Title: "Heat", Popularity: 9})
	h := NewGetItemHandler(store)

	item, err := h.Handle(context.Background(), GetItemQuery{ID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, "Heat", item.Title)

	_, err = h.Handle(context.Background(), GetItemQuery{ID: "nope"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = h.Handle(context.Background(), GetItemQuery{})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
