package repository

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tair/heat-service/internal/heat/domain"
)

var tracer = otel.Tracer("heat-repository")

// TracingStore wraps a domain.Store with one span per store primitive
type TracingStore struct {
	next domain.Store
}

// NewTracingStore creates a new store decorator with tracing
func NewTracingStore(next domain.Store) *TracingStore {
	return &TracingStore{next: next}
}

// GetItem with tracing
func (s *TracingStore) GetItem(ctx context.Context, itemID string) (*domain.Item, error) {
	ctx, span := tracer.Start(ctx, "store.GetItem",
		trace.WithAttributes(attribute.String("item.id", itemID)),
	)
	defer span.End()

	item, err := s.next.GetItem(ctx, itemID)
	if err != nil {
		addStoreErrorToSpan(span, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int64("item.heat_count", item.HeatCount),
		attribute.Bool("item.trending", item.Trending),
	)
	return item, nil
}

// GetFavorite with tracing
func (s *TracingStore) GetFavorite(ctx context.Context, userID, itemID string) (*domain.Favorite, error) {
	ctx, span := tracer.Start(ctx, "store.GetFavorite",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("item.id", itemID),
		),
	)
	defer span.End()

	fav, err := s.next.GetFavorite(ctx, userID, itemID)
	if err != nil {
		addStoreErrorToSpan(span, err)
		return nil, err
	}
	return fav, nil
}

// ListFavorites with tracing
func (s *TracingStore) ListFavorites(ctx context.Context, userID string, limit int) ([]domain.Favorite, error) {
	ctx, span := tracer.Start(ctx, "store.ListFavorites",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("query.limit", limit),
		),
	)
	defer span.End()

	favorites, err := s.next.ListFavorites(ctx, userID, limit)
	if err != nil {
		addStoreErrorToSpan(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("result.count", len(favorites)))
	return favorites, nil
}

// QueryItems with tracing
func (s *TracingStore) QueryItems(ctx context.Context, q domain.ItemQuery) ([]domain.Item, error) {
	ctx, span := tracer.Start(ctx, "store.QueryItems",
		trace.WithAttributes(
			attribute.String("query.filter", q.DescribeFilter()),
			attribute.String("query.order_by", q.DescribeOrder()),
			attribute.Int("query.limit", q.Limit),
		),
	)
	defer span.End()

	items, err := s.next.QueryItems(ctx, q)
	if err != nil {
		addStoreErrorToSpan(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("result.count", len(items)))
	return items, nil
}

// RunTransaction with tracing; the span records how many times fn ran
func (s *TracingStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	ctx, span := tracer.Start(ctx, "store.RunTransaction")
	defer span.End()

	attempts := 0
	err := s.next.RunTransaction(ctx, func(ctx context.Context, tx domain.Tx) error {
		attempts++
		return fn(ctx, tx)
	})
	span.SetAttributes(attribute.Int("tx.attempts", attempts))
	if err != nil {
		addStoreErrorToSpan(span, err)
		return err
	}
	return nil
}

// UpsertCatalogItem with tracing
func (s *TracingStore) UpsertCatalogItem(ctx context.Context, item *domain.Item) error {
	ctx, span := tracer.Start(ctx, "store.UpsertCatalogItem",
		trace.WithAttributes(
			attribute.String("item.id", item.ID),
			attribute.Float64("item.popularity", item.Popularity),
			attribute.Bool("item.trending", item.Trending),
		),
	)
	defer span.End()

	if err := s.next.UpsertCatalogItem(ctx, item); err != nil {
		addStoreErrorToSpan(span, err)
		return err
	}
	return nil
}

// Ping with tracing
func (s *TracingStore) Ping(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "store.Ping")
	defer span.End()

	if err := s.next.Ping(ctx); err != nil {
		addStoreErrorToSpan(span, err)
		return err
	}
	return nil
}

// addStoreErrorToSpan records err on the span
func addStoreErrorToSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
