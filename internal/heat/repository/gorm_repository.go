package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tair/heat-service/internal/heat/domain"
)

// catalogColumns are the item columns owned by catalog ingestion
var catalogColumns = []string{
	"title", "synopsis", "poster", "backdrop",
	"popularity", "vote_average", "vote_count", "trending", "updated_at",
}

// GormStore implements domain.Store on PostgreSQL. Transactions run at
// SERIALIZABLE isolation, so a transaction whose reads were invalidated by a
// concurrent commit fails with a serialization error and is retried.
type GormStore struct {
	db          *gorm.DB
	maxAttempts int
}

// NewGormStore creates a new GORM backed store
func NewGormStore(db *gorm.DB, maxAttempts int) *GormStore {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &GormStore{db: db, maxAttempts: maxAttempts}
}

// AutoMigrate creates the items and favorites tables
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&domain.Item{}, &domain.Favorite{})
}

// GetItem retrieves an item by ID
func (s *GormStore) GetItem(ctx context.Context, itemID string) (*domain.Item, error) {
	return findItem(s.db.WithContext(ctx), itemID)
}

// GetFavorite retrieves the favorite mark for (userID, itemID)
func (s *GormStore) GetFavorite(ctx context.Context, userID, itemID string) (*domain.Favorite, error) {
	return findFavorite(s.db.WithContext(ctx), userID, itemID)
}

// ListFavorites retrieves a user's favorites, newest first
func (s *GormStore) ListFavorites(ctx context.Context, userID string, limit int) ([]domain.Favorite, error) {
	var favorites []domain.Favorite
	query := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("added_at DESC").
		Order("item_id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&favorites).Error; err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", classifyError(err))
	}
	return favorites, nil
}

// QueryItems runs a filtered, ordered, bounded read of items.
// Ties on the order column fall back to insertion order.
func (s *GormStore) QueryItems(ctx context.Context, q domain.ItemQuery) ([]domain.Item, error) {
	if err := validateOrderField(q); err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Model(&domain.Item{})
	if q.Trending != nil {
		query = query.Where("trending = ?", *q.Trending)
	}
	query = query.
		Order(clause.OrderByColumn{Column: clause.Column{Name: q.OrderBy}, Desc: q.Descending}).
		Order("created_at ASC")
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	var items []domain.Item
	if err := query.Find(&items).Error; err != nil {
		return nil, classifyQueryError(err, q)
	}
	return items, nil
}

// UpsertCatalogItem inserts an item or merges its catalog columns, leaving heat_count alone
func (s *GormStore) UpsertCatalogItem(ctx context.Context, item *domain.Item) error {
	row := *item
	row.HeatCount = 0

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(catalogColumns),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert catalog item: %w", classifyError(err))
	}
	return nil
}

// Ping verifies database connectivity
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return classifyError(err)
	}
	return classifyError(sqlDB.PingContext(ctx))
}

// RunTransaction executes fn in a serializable transaction, retrying on conflicts
func (s *GormStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	opts := &sql.TxOptions{Isolation: sql.LevelSerializable}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
			return fn(ctx, &gormTx{db: db})
		}, opts)
		err = classifyError(err)
		if err == nil {
			observeTransaction(attempt, resultCommitted)
			return nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			observeTransaction(attempt, resultError)
			return err
		}
		if attempt < s.maxAttempts {
			if err := waitRetry(ctx, attempt); err != nil {
				observeTransaction(attempt, resultError)
				return err
			}
		}
	}
	observeTransaction(s.maxAttempts, resultContention)
	return fmt.Errorf("%w after %d attempts", domain.ErrContention, s.maxAttempts)
}

// gormTx is the transaction-scoped view of GormStore
type gormTx struct {
	db *gorm.DB
}

func (tx *gormTx) GetItem(ctx context.Context, itemID string) (*domain.Item, error) {
	return findItem(tx.db.WithContext(ctx), itemID)
}

func (tx *gormTx) GetFavorite(ctx context.Context, userID, itemID string) (*domain.Favorite, error) {
	return findFavorite(tx.db.WithContext(ctx), userID, itemID)
}

func (tx *gormTx) CreateFavorite(ctx context.Context, fav *domain.Favorite) error {
	return classifyError(tx.db.WithContext(ctx).Create(fav).Error)
}

func (tx *gormTx) DeleteFavorite(ctx context.Context, userID, itemID string) error {
	err := tx.db.WithContext(ctx).
		Where("user_id = ? AND item_id = ?", userID, itemID).
		Delete(&domain.Favorite{}).Error
	return classifyError(err)
}

func (tx *gormTx) SetHeatCount(ctx context.Context, itemID string, heat int64) error {
	if heat < 0 {
		return fmt.Errorf("heat count %d: %w", heat, domain.ErrInvalidArgument)
	}
	now := time.Now()
	row := domain.Item{ID: itemID, HeatCount: heat, CreatedAt: now, UpdatedAt: now}

	err := tx.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"heat_count": heat,
				"updated_at": now,
			}),
		}).
		Create(&row).Error
	return classifyError(err)
}

func findItem(db *gorm.DB, itemID string) (*domain.Item, error) {
	var item domain.Item
	if err := db.Where("id = ?", itemID).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("item %s: %w", itemID, domain.ErrNotFound)
		}
		return nil, classifyError(err)
	}
	return &item, nil
}

func findFavorite(db *gorm.DB, userID, itemID string) (*domain.Favorite, error) {
	var fav domain.Favorite
	err := db.Where("user_id = ? AND item_id = ?", userID, itemID).First(&fav).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("favorite %s/%s: %w", userID, itemID, domain.ErrNotFound)
		}
		return nil, classifyError(err)
	}
	return &fav, nil
}
