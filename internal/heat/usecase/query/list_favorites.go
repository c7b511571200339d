package query

import (
	"context"
	"fmt"

	"github.com/tair/heat-service/internal/heat/domain"
)

// Page size bounds for favorite lists
const (
	DefaultFavoritesLimit = 50
	MaxFavoritesLimit     = 100
)

// ListFavoritesQuery represents the query to list a user's favorites
type ListFavoritesQuery struct {
	UserID string
	Limit  int
}

// ListFavoritesHandler handles list favorites query
type ListFavoritesHandler struct {
	store domain.Store
}

// NewListFavoritesHandler creates a new list favorites handler
func NewListFavoritesHandler(store domain.Store) *ListFavoritesHandler {
	return &ListFavoritesHandler{store: store}
}

// Handle executes the list favorites query, newest first
func (h *ListFavoritesHandler) Handle(ctx context.Context, q ListFavoritesQuery) ([]domain.Favorite, error) {
	if q.UserID == "" {
		return nil, domain.ErrUnauthenticated
	}

	if q.Limit <= 0 {
		q.Limit = DefaultFavoritesLimit
	}
	if q.Limit > MaxFavoritesLimit {
		q.Limit = MaxFavoritesLimit
	}

	favorites, err := h.store.ListFavorites(ctx, q.UserID, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	return favorites, nil
}
