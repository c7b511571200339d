package command

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tair/heat-service/internal/heat/domain"
	"github.com/tair/heat-service/pkg/logger"
)

// CacheInvalidator drops cached trending snapshots
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// UpsertCatalogItemCommand carries the ingestion-owned fields of an item
type UpsertCatalogItemCommand struct {
	ID          string
	Title       string
	Synopsis    string
	Poster      string
	Backdrop    string
	Popularity  float64
	VoteAverage float64
	VoteCount   int64
	Trending    bool
}

// UpsertCatalogItemHandler applies catalog feed records. It never writes the
// heat count, which belongs to ToggleFavoriteHandler alone.
type UpsertCatalogItemHandler struct {
	store       domain.Store
	invalidator CacheInvalidator
	timeout     time.Duration
}

// NewUpsertCatalogItemHandler creates a new upsert handler. invalidator may be nil.
func NewUpsertCatalogItemHandler(store domain.Store, invalidator CacheInvalidator, timeout time.Duration) *UpsertCatalogItemHandler {
	if timeout <= 0 {
		timeout = DefaultOperationTimeout
	}
	return &UpsertCatalogItemHandler{store: store, invalidator: invalidator, timeout: timeout}
}

// Handle executes the upsert catalog item command
func (h *UpsertCatalogItemHandler) Handle(ctx context.Context, cmd UpsertCatalogItemCommand) error {
	if cmd.ID == "" {
		catalogUpsertsTotal.WithLabelValues("invalid").Inc()
		return fmt.Errorf("item id is required: %w", domain.ErrInvalidArgument)
	}
	if math.IsNaN(cmd.Popularity) || math.IsInf(cmd.Popularity, 0) || cmd.Popularity < 0 {
		catalogUpsertsTotal.WithLabelValues("invalid").Inc()
		return fmt.Errorf("popularity %v must be a finite non-negative number: %w", cmd.Popularity, domain.ErrInvalidArgument)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	item := &domain.Item{
		ID:          cmd.ID,
		Title:       cmd.Title,
		Synopsis:    cmd.Synopsis,
		Poster:      cmd.Poster,
		Backdrop:    cmd.Backdrop,
		Popularity:  cmd.Popularity,
		VoteAverage: cmd.VoteAverage,
		VoteCount:   cmd.VoteCount,
		Trending:    cmd.Trending,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := h.store.UpsertCatalogItem(ctx, item); err != nil {
		catalogUpsertsTotal.WithLabelValues(outcomeLabel(err)).Inc()
		return fmt.Errorf("failed to upsert catalog item: %w", err)
	}
	catalogUpsertsTotal.WithLabelValues("ok").Inc()

	if h.invalidator != nil {
		if err := h.invalidator.Invalidate(ctx); err != nil {
			logger.Warn(ctx).Err(err).Msg("Failed to invalidate trending cache")
		}
	}
	return nil
}
