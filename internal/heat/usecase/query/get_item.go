package query

import (
	"context"
	"fmt"

	"github.com/tair/heat-service/internal/heat/domain"
)

// GetItemQuery represents the query to get an item by ID
type GetItemQuery struct {
	ID string
}

// GetItemHandler handles get item query
type GetItemHandler struct {
	store domain.Store
}

// NewGetItemHandler creates a new get item handler
func NewGetItemHandler(store domain.Store) *GetItemHandler {
	return &GetItemHandler{store: store}
}

// Handle executes the get item query
func (h *GetItemHandler) Handle(ctx context.Context, q GetItemQuery) (*domain.Item, error) {
	if q.ID == "" {
		return nil, fmt.Errorf("item id is required: %w", domain.ErrInvalidArgument)
	}

	item, err := h.store.GetItem(ctx, q.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}
