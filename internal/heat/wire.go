//go:build wireinject
// +build wireinject

package heat

import (
	"github.com/google/wire"

	"github.com/tair/heat-service/internal/heat/delivery/http"
	"github.com/tair/heat-service/internal/heat/domain"
	"github.com/tair/heat-service/internal/heat/usecase/command"
	"github.com/tair/heat-service/internal/heat/usecase/query"
	"github.com/tair/heat-service/pkg/auth"
	"github.com/tair/heat-service/pkg/config"
)

// Wire sets
var CommandSet = wire.NewSet(
	ProvideToggleFavoriteHandler,
)

var QuerySet = wire.NewSet(
	ProvideResolveTrendingHandler,
	query.NewIsFavoritedHandler,
	query.NewListFavoritesHandler,
	query.NewGetItemHandler,
)

// InitializeHTTPHandler initializes HTTP handler with all dependencies
func InitializeHTTPHandler(
	cfg *config.Config,
	store domain.Store,
	publisher command.ActivityPublisher,
	cache query.SnapshotCache,
	validator *auth.Validator,
	limiter *http.RateLimiter,
) (*http.HeatHandler, error) {
	wire.Build(
		CommandSet,
		QuerySet,
		http.NewHeatHandler,
	)
	return nil, nil
}

// InitializeCatalogHandler initializes the catalog ingestion handler
func InitializeCatalogHandler(
	cfg *config.Config,
	store domain.Store,
	invalidator command.CacheInvalidator,
) (*command.UpsertCatalogItemHandler, error) {
	wire.Build(ProvideUpsertCatalogItemHandler)
	return nil, nil
}
