package command

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tair/heat-service/internal/heat/domain"
	"github.com/tair/heat-service/internal/heat/repository"
)

type countingInvalidator struct {
	calls int
	err   error
}

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return c.err
}

func TestUpsertCatalogItem_KeepsHeat(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	seedItem(t, store, "m1", 7)
	inv := &countingInvalidator{}
	h := NewUpsertCatalogItemHandler(store, inv, 0)

	err := h.Handle(ctx, UpsertCatalogItemCommand{ID: "m1", Title: "Renamed", Popularity: 42, Trending: true})
	require.NoError(t, err)

	item, err := store.GetItem(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", item.Title)
	assert.Equal(t, 42.0, item.Popularity)
	assert.True(t, item.Trending)
	assert.Equal(t, int64(7), item.HeatCount)
	assert.Equal(t, 1, inv.calls)
}

func TestUpsertCatalogItem_NewItemStartsCold(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	h := NewUpsertCatalogItemHandler(store, nil, 0)

	require.NoError(t, h.Handle(ctx, UpsertCatalogItemCommand{ID: "m2", Title: "New", Popularity: 3}))

	item, err := store.GetItem(ctx, "m2")
	require.NoError(t, err)
	assert.Zero(t, item.HeatCount)
	assert.False(t, item.CreatedAt.IsZero())
}

func TestUpsertCatalogItem_Validation(t *testing.T) {
	h := NewUpsertCatalogItemHandler(&spyStore{}, nil, 0)

	tests := []struct {
		name string
		cmd  UpsertCatalogItemCommand
	}{
		{name: "missing id", cmd: UpsertCatalogItemCommand{Popularity: 1}},
		{name: "negative popularity", cmd: UpsertCatalogItemCommand{ID: "m1", Popularity: -1}},
		{name: "nan popularity", cmd: UpsertCatalogItemCommand{ID: "m1", Popularity: math.NaN()}},
		{name: "infinite popularity", cmd: UpsertCatalogItemCommand{ID: "m1", Popularity: math.Inf(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.Handle(context.Background(), tt.cmd)
			assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		})
	}
}

func TestUpsertCatalogItem_InvalidatorFailureIsIgnored(t *testing.T) {
	store := repository.NewMemoryStore()
	inv := &countingInvalidator{err: errors.New("redis down")}
	h := NewUpsertCatalogItemHandler(store, inv, 0)

	require.NoError(t, h.Handle(context.Background(), UpsertCatalogItemCommand{ID: "m1", Popularity: 1}))
	assert.Equal(t, 1, inv.calls)
}
