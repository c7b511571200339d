package heat

import (
	"context"
	"errors"
	"fmt"

	"github.com/tair/heat-service/internal/heat/domain"
	"github.com/tair/heat-service/internal/heat/repository"
	"github.com/tair/heat-service/internal/heat/usecase/command"
	"github.com/tair/heat-service/internal/heat/usecase/query"
	"github.com/tair/heat-service/kafka"
	"github.com/tair/heat-service/pkg/config"
	"github.com/tair/heat-service/pkg/database"
	"github.com/tair/heat-service/pkg/logger"
)

// ProvideToggleFavoriteHandler provides the toggle engine
func ProvideToggleFavoriteHandler(cfg *config.Config, store domain.Store, publisher command.ActivityPublisher) *command.ToggleFavoriteHandler {
	return command.NewToggleFavoriteHandler(store, publisher, cfg.OperationTimeout)
}

// ProvideResolveTrendingHandler provides the trending resolver
func ProvideResolveTrendingHandler(cfg *config.Config, store domain.Store, cache query.SnapshotCache) *query.ResolveTrendingHandler {
	return query.NewResolveTrendingHandler(store, cache, cfg.TrendingPageSize, cfg.TrendingMaxPageSize, cfg.OperationTimeout)
}

// ProvideUpsertCatalogItemHandler provides the catalog ingestion handler
func ProvideUpsertCatalogItemHandler(cfg *config.Config, store domain.Store, invalidator command.CacheInvalidator) *command.UpsertCatalogItemHandler {
	return command.NewUpsertCatalogItemHandler(store, invalidator, cfg.OperationTimeout)
}

// NewStore opens the configured store and decorates it with the circuit
// breaker and tracing. The returned cleanup closes the connection pool.
func NewStore(ctx context.Context, cfg *config.Config) (domain.Store, func(), error) {
	var (
		base    domain.Store
		cleanup = func() {}
	)

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logger.Logger.Warn().Msg("Using in-memory store; data is lost on restart")
		base = repository.NewMemoryStore(repository.WithMemoryMaxAttempts(cfg.TxMaxAttempts))

	case config.StoreDriverPostgres:
		db, err := database.NewGormConnection(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get database instance: %w", err)
		}
		cleanup = func() { sqlDB.Close() }

		gormStore := repository.NewGormStore(db, cfg.TxMaxAttempts)
		if err := gormStore.AutoMigrate(); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		base = gormStore

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	breaker := repository.NewCircuitBreaker("store", cfg.BreakerMaxFailures, cfg.BreakerCooldown)
	store := repository.NewTracingStore(repository.NewBreakerStore(base, breaker))

	logger.Logger.Info().
		Str("driver", cfg.StoreDriver).
		Int("tx_max_attempts", cfg.TxMaxAttempts).
		Msg("Store initialized")
	return store, cleanup, nil
}

// CatalogEventHandler adapts catalog feed events to the upsert command.
// Records that fail validation are unprocessable; store faults are left for redelivery.
func CatalogEventHandler(h *command.UpsertCatalogItemHandler) kafka.CatalogHandler {
	return func(ctx context.Context, event kafka.CatalogItemUpsertedEvent) error {
		err := h.Handle(ctx, command.UpsertCatalogItemCommand{
			ID:          event.ItemID,
			Title:       event.Title,
			Synopsis:    event.Synopsis,
			Poster:      event.Poster,
			Backdrop:    event.Backdrop,
			Popularity:  event.Popularity,
			VoteAverage: event.VoteAverage,
			VoteCount:   event.VoteCount,
			Trending:    event.Trending,
		})
		if errors.Is(err, domain.ErrInvalidArgument) {
			return fmt.Errorf("%w: %w", kafka.ErrUnprocessable, err)
		}
		return err
	}
}
