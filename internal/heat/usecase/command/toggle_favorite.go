package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tair/heat-service/internal/heat/domain"
	"github.com/tair/heat-service/kafka"
	"github.com/tair/heat-service/pkg/logger"
)

// DefaultOperationTimeout bounds store work when the caller supplied no deadline
const DefaultOperationTimeout = 5 * time.Second

// ActivityPublisher receives committed toggles
type ActivityPublisher interface {
	PublishFavoriteToggled(ctx context.Context, event kafka.FavoriteToggledEvent) error
}

// ToggleFavoriteCommand represents the command to flip a user's favorite mark on an item
type ToggleFavoriteCommand struct {
	UserID string
	ItemID string
}

// ToggleFavoriteResult is the state left behind by a committed toggle
type ToggleFavoriteResult struct {
	Favorited bool  `json:"favorited"`
	HeatCount int64 `json:"heat_count"`

	// ItemFound is false when the item document was missing and the counter
	// started from a zero baseline.
	ItemFound bool `json:"-"`
}

// ToggleFavoriteHandler adds or removes a favorite mark and adjusts the item's
// heat count in one store transaction. It holds no state between calls, so the
// store may re-run the transaction body as often as it needs to.
type ToggleFavoriteHandler struct {
	store     domain.Store
	publisher ActivityPublisher
	timeout   time.Duration
	now       func() time.Time
}

// NewToggleFavoriteHandler creates a new toggle favorite handler.
// publisher may be nil.
func NewToggleFavoriteHandler(store domain.Store, publisher ActivityPublisher, timeout time.Duration) *ToggleFavoriteHandler {
	if timeout <= 0 {
		timeout = DefaultOperationTimeout
	}
	return &ToggleFavoriteHandler{
		store:     store,
		publisher: publisher,
		timeout:   timeout,
		now:       time.Now,
	}
}

// Handle executes the toggle favorite command
func (h *ToggleFavoriteHandler) Handle(ctx context.Context, cmd ToggleFavoriteCommand) (*ToggleFavoriteResult, error) {
	if cmd.UserID == "" {
		toggleTotal.WithLabelValues(outcomeLabel(domain.ErrUnauthenticated)).Inc()
		return nil, domain.ErrUnauthenticated
	}
	if cmd.ItemID == "" {
		toggleTotal.WithLabelValues(outcomeLabel(domain.ErrInvalidArgument)).Inc()
		return nil, fmt.Errorf("item id is required: %w", domain.ErrInvalidArgument)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	var result ToggleFavoriteResult
	err := h.store.RunTransaction(ctx, func(ctx context.Context, tx domain.Tx) error {
		res, err := h.toggle(ctx, tx, cmd)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		toggleTotal.WithLabelValues(outcomeLabel(err)).Inc()
		logger.Error(ctx).
			Err(err).
			Str("user_id", cmd.UserID).
			Str("item_id", cmd.ItemID).
			Msg("Failed to toggle favorite")
		return nil, fmt.Errorf("failed to toggle favorite: %w", err)
	}

	outcome := domain.OutcomeUnfavorited
	if result.Favorited {
		outcome = domain.OutcomeFavorited
	}
	toggleTotal.WithLabelValues(string(outcome)).Inc()

	if !result.ItemFound {
		logger.Warn(ctx).
			Str("item_id", cmd.ItemID).
			Msg("Item document missing, heat count started from zero")
	}
	logger.Info(ctx).
		Str("user_id", cmd.UserID).
		Str("item_id", cmd.ItemID).
		Bool("favorited", result.Favorited).
		Int64("heat_count", result.HeatCount).
		Msg("Favorite toggled")

	h.publish(ctx, cmd, result)
	return &result, nil
}

// toggle is the transaction body. It reads the mark and the item, then writes
// exactly one mark change and one counter update. A missing item counts as heat 0.
func (h *ToggleFavoriteHandler) toggle(ctx context.Context, tx domain.Tx, cmd ToggleFavoriteCommand) (ToggleFavoriteResult, error) {
	favorited := true
	if _, err := tx.GetFavorite(ctx, cmd.UserID, cmd.ItemID); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return ToggleFavoriteResult{}, err
		}
		favorited = false
	}

	var current int64
	itemFound := true
	item, err := tx.GetItem(ctx, cmd.ItemID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		itemFound = false
	case err != nil:
		return ToggleFavoriteResult{}, err
	default:
		current = item.HeatCount
	}

	var next int64
	if favorited {
		if err := tx.DeleteFavorite(ctx, cmd.UserID, cmd.ItemID); err != nil {
			return ToggleFavoriteResult{}, err
		}
		next = domain.ClampHeat(current - 1)
	} else {
		mark := &domain.Favorite{
			UserID:  cmd.UserID,
			ItemID:  cmd.ItemID,
			AddedAt: h.now().UTC(),
		}
		if err := tx.CreateFavorite(ctx, mark); err != nil {
			return ToggleFavoriteResult{}, err
		}
		next = domain.ClampHeat(current + 1)
	}

	if err := tx.SetHeatCount(ctx, cmd.ItemID, next); err != nil {
		return ToggleFavoriteResult{}, err
	}

	return ToggleFavoriteResult{
		Favorited: !favorited,
		HeatCount: next,
		ItemFound: itemFound,
	}, nil
}

// publish emits the activity event; the toggle is already committed, so a
// failure here is only logged
func (h *ToggleFavoriteHandler) publish(ctx context.Context, cmd ToggleFavoriteCommand, result ToggleFavoriteResult) {
	if h.publisher == nil {
		return
	}
	event := kafka.FavoriteToggledEvent{
		UserID:    cmd.UserID,
		ItemID:    cmd.ItemID,
		Favorited: result.Favorited,
		HeatCount: result.HeatCount,
	}
	if err := h.publisher.PublishFavoriteToggled(ctx, event); err != nil {
		logger.Warn(ctx).
			Err(err).
			Str("item_id", cmd.ItemID).
			Msg("Failed to publish favorite activity")
	}
}
