package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/tair/heat-service/internal/heat/domain"
)

// IsFavoritedQuery asks whether a user currently favorites an item
type IsFavoritedQuery struct {
	UserID string
	ItemID string
}

// IsFavoritedHandler answers IsFavoritedQuery with a single point read
type IsFavoritedHandler struct {
	store domain.Store
}

// NewIsFavoritedHandler creates a new is favorited handler
func NewIsFavoritedHandler(store domain.Store) *IsFavoritedHandler {
	return &IsFavoritedHandler{store: store}
}

// Handle executes the is favorited query. Anonymous callers get false without a store read.
func (h *IsFavoritedHandler) Handle(ctx context.Context, q IsFavoritedQuery) (bool, error) {
	if q.UserID == "" || q.ItemID == "" {
		return false, nil
	}

	if _, err := h.store.GetFavorite(ctx, q.UserID, q.ItemID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read favorite: %w", err)
	}
	return true, nil
}
