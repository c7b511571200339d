package query

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/tair/heat-service/internal/heat/domain"
	"github.com/tair/heat-service/pkg/logger"
)

// Page size bounds for trending
const (
	DefaultTrendingPageSize = 12
	MaxTrendingPageSize     = 100
)

// DefaultResolveTimeout bounds a shared resolution when none is configured
const DefaultResolveTimeout = 5 * time.Second

var trendingResolvedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "heat_trending_resolved_total",
		Help: "Total number of trending resolutions by the tier that answered",
	},
	[]string{"tier"},
)

func init() {
	prometheus.MustRegister(trendingResolvedTotal)
}

// SnapshotCache stores trending results for a short time
type SnapshotCache interface {
	Get(ctx context.Context, key string, dst interface{}) (bool, error)
	Set(ctx context.Context, key string, v interface{}) error
}

// ResolveTrendingQuery represents the query for the trending page
type ResolveTrendingQuery struct {
	PageSize int
}

// ResolveTrendingHandler resolves trending items tier by tier: items flagged
// trending first, then all items by popularity, then an empty result. Only an
// empty tier falls through; a failing tier is returned as an error.
type ResolveTrendingHandler struct {
	store       domain.Store
	cache       SnapshotCache
	group       singleflight.Group
	defaultSize int
	maxSize     int
	timeout     time.Duration
}

// NewResolveTrendingHandler creates a new resolver. cache may be nil.
// timeout bounds a resolution shared by concurrent callers.
func NewResolveTrendingHandler(store domain.Store, cache SnapshotCache, defaultSize, maxSize int, timeout time.Duration) *ResolveTrendingHandler {
	if maxSize <= 0 {
		maxSize = MaxTrendingPageSize
	}
	if defaultSize <= 0 || defaultSize > maxSize {
		defaultSize = DefaultTrendingPageSize
	}
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}
	return &ResolveTrendingHandler{
		store:       store,
		cache:       cache,
		defaultSize: defaultSize,
		maxSize:     maxSize,
		timeout:     timeout,
	}
}

// Handle executes the resolve trending query
func (h *ResolveTrendingHandler) Handle(ctx context.Context, q ResolveTrendingQuery) (*domain.TrendingResult, error) {
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = h.defaultSize
	}
	if pageSize > h.maxSize {
		return nil, fmt.Errorf("page size %d exceeds maximum %d: %w", pageSize, h.maxSize, domain.ErrInvalidArgument)
	}

	if h.cache == nil {
		return h.resolve(ctx, pageSize)
	}

	key := "page:" + strconv.Itoa(pageSize)
	var cached domain.TrendingResult
	hit, err := h.cache.Get(ctx, key, &cached)
	if err != nil {
		logger.Warn(ctx).Err(err).Msg("Trending cache read failed")
	}
	if hit {
		return &cached, nil
	}

	// The flight outlives any single caller; each caller waits on its own context.
	ch := h.group.DoChan(key, func() (interface{}, error) {
		sharedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.timeout)
		defer cancel()

		res, err := h.resolve(sharedCtx, pageSize)
		if err != nil {
			return nil, err
		}
		if err := h.cache.Set(sharedCtx, key, res); err != nil {
			logger.Warn(ctx).Err(err).Msg("Trending cache write failed")
		}
		return res, nil
	})

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", domain.ErrTimeout, ctx.Err())
		}
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*domain.TrendingResult), nil
	}
}

func (h *ResolveTrendingHandler) resolve(ctx context.Context, pageSize int) (*domain.TrendingResult, error) {
	trending := true
	primary, err := h.store.QueryItems(ctx, domain.ItemQuery{
		Trending:   &trending,
		OrderBy:    domain.FieldPopularity,
		Descending: true,
		Limit:      pageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("primary trending query failed: %w", err)
	}
	if len(primary) > 0 {
		logger.Debug(ctx).Int("count", len(primary)).Msg("Trending resolved from primary tier")
		return h.done(domain.NewTrendingResult(primary, domain.TierPrimary)), nil
	}

	fallback, err := h.store.QueryItems(ctx, domain.ItemQuery{
		OrderBy:    domain.FieldPopularity,
		Descending: true,
		Limit:      pageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("fallback trending query failed: %w", err)
	}

	res := domain.NewTrendingResult(fallback, domain.TierFallback)
	logger.Info(ctx).
		Str("tier", string(res.Tier)).
		Int("count", res.Count).
		Msg("No trending items flagged, fell back to popularity")
	return h.done(res), nil
}

func (h *ResolveTrendingHandler) done(res *domain.TrendingResult) *domain.TrendingResult {
	trendingResolvedTotal.WithLabelValues(string(res.Tier)).Inc()
	return res
}
