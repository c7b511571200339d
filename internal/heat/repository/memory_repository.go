package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tair/heat-service/internal/heat/domain"
)

// itemRecord keeps an item with the version stamped by its last write.
// inserted preserves the natural order used to break popularity ties.
type itemRecord struct {
	item     domain.Item
	version  uint64
	inserted uint64
}

type favoriteRecord struct {
	favorite domain.Favorite
	version  uint64
}

// MemoryStore is a versioned in-process document store. Every committed write
// stamps the document with a fresh sequence number, so a transaction can
// detect that anything it read has changed (including delete-then-recreate).
type MemoryStore struct {
	mu          sync.RWMutex
	items       map[string]*itemRecord
	favorites   map[string]*favoriteRecord
	seq         uint64
	maxAttempts int
	indexes     map[string]bool
	enforceIdx  bool
	now         func() time.Time
}

// MemoryOption configures a MemoryStore
type MemoryOption func(*MemoryStore)

// WithMemoryMaxAttempts sets the transaction attempt budget
func WithMemoryMaxAttempts(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithCompositeIndex declares an index for filterField + orderField and turns on
// index enforcement: filtered, ordered queries without a matching index fail
// with a QueryUnsupportedError, the way hosted document stores behave.
func WithCompositeIndex(filterField, orderField string) MemoryOption {
	return func(s *MemoryStore) {
		s.enforceIdx = true
		s.indexes[indexKey(filterField, orderField)] = true
	}
}

// WithIndexEnforcement turns on index enforcement without declaring any index
func WithIndexEnforcement() MemoryOption {
	return func(s *MemoryStore) {
		s.enforceIdx = true
	}
}

// WithMemoryClock overrides the time source used for timestamps
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		items:       make(map[string]*itemRecord),
		favorites:   make(map[string]*favoriteRecord),
		maxAttempts: DefaultMaxAttempts,
		indexes:     make(map[string]bool),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func indexKey(filterField, orderField string) string {
	return filterField + "|" + orderField
}

func itemPath(itemID string) string {
	return "items/" + itemID
}

func favoritePath(userID, itemID string) string {
	return "users/" + userID + "/favorites/" + itemID
}

// GetItem returns a copy of the item document
func (s *MemoryStore) GetItem(ctx context.Context, itemID string) (*domain.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.items[itemPath(itemID)]
	if !ok {
		return nil, fmt.Errorf("item %s: %w", itemID, domain.ErrNotFound)
	}
	item := rec.item
	return &item, nil
}

// GetFavorite returns the favorite mark for (userID, itemID)
func (s *MemoryStore) GetFavorite(ctx context.Context, userID, itemID string) (*domain.Favorite, error) {
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.favorites[favoritePath(userID, itemID)]
	if !ok {
		return nil, fmt.Errorf("favorite %s/%s: %w", userID, itemID, domain.ErrNotFound)
	}
	fav := rec.favorite
	return &fav, nil
}

// ListFavorites returns a user's marks, newest first
func (s *MemoryStore) ListFavorites(ctx context.Context, userID string, limit int) ([]domain.Favorite, error) {
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}
	s.mu.RLock()
	favorites := make([]domain.Favorite, 0)
	for _, rec := range s.favorites {
		if rec.favorite.UserID == userID {
			favorites = append(favorites, rec.favorite)
		}
	}
	s.mu.RUnlock()

	sort.Slice(favorites, func(i, j int) bool {
		if !favorites[i].AddedAt.Equal(favorites[j].AddedAt) {
			return favorites[i].AddedAt.After(favorites[j].AddedAt)
		}
		return favorites[i].ItemID < favorites[j].ItemID
	})
	if limit > 0 && len(favorites) > limit {
		favorites = favorites[:limit]
	}
	return favorites, nil
}

// QueryItems runs a filtered, ordered, bounded read. Items with equal sort keys
// keep insertion order.
func (s *MemoryStore) QueryItems(ctx context.Context, q domain.ItemQuery) ([]domain.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}
	if err := validateOrderField(q); err != nil {
		return nil, err
	}
	if s.enforceIdx && q.HasFilter() && !s.indexes[indexKey("trending", q.OrderBy)] {
		return nil, &domain.QueryUnsupportedError{
			Collection: "items",
			Filter:     q.DescribeFilter(),
			OrderBy:    q.DescribeOrder(),
			Reason:     "composite index (trending, " + q.OrderBy + ") is required",
		}
	}

	s.mu.RLock()
	records := make([]*itemRecord, 0, len(s.items))
	for _, rec := range s.items {
		if q.Trending != nil && rec.item.Trending != *q.Trending {
			continue
		}
		copied := *rec
		records = append(records, &copied)
	}
	s.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].inserted < records[j].inserted
	})
	sort.SliceStable(records, func(i, j int) bool {
		a, b := sortKey(records[i].item, q.OrderBy), sortKey(records[j].item, q.OrderBy)
		if q.Descending {
			return a > b
		}
		return a < b
	})

	if q.Limit > 0 && len(records) > q.Limit {
		records = records[:q.Limit]
	}
	items := make([]domain.Item, len(records))
	for i, rec := range records {
		items[i] = rec.item
	}
	return items, nil
}

func sortKey(item domain.Item, field string) float64 {
	if field == domain.FieldHeatCount {
		return float64(item.HeatCount)
	}
	return item.Popularity
}

// UpsertCatalogItem merges catalog fields; the heat counter of an existing item is kept
func (s *MemoryStore) UpsertCatalogItem(ctx context.Context, item *domain.Item) error {
	if err := ctx.Err(); err != nil {
		return contextError(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	now := s.now()
	key := itemPath(item.ID)
	rec, ok := s.items[key]
	if !ok {
		merged := *item
		merged.HeatCount = 0
		merged.CreatedAt = now
		merged.UpdatedAt = now
		s.items[key] = &itemRecord{item: merged, version: s.seq, inserted: s.seq}
		return nil
	}

	merged := *item
	merged.HeatCount = rec.item.HeatCount
	merged.CreatedAt = rec.item.CreatedAt
	merged.UpdatedAt = now
	rec.item = merged
	rec.version = s.seq
	return nil
}

// Ping always succeeds for the in-memory store
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// RunTransaction runs fn against a fresh transaction until it commits or the
// attempt budget is spent.
func (s *MemoryStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			observeTransaction(attempt, resultError)
			return contextError(err)
		}

		tx := &memoryTx{store: s, reads: make(map[string]uint64)}
		err := fn(ctx, tx)
		if err == nil {
			err = s.commit(tx)
		}
		if err == nil {
			observeTransaction(attempt, resultCommitted)
			return nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			observeTransaction(attempt, resultError)
			return contextError(err)
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

// commit validates the read set and applies buffered writes under the store lock
func (s *MemoryStore) commit(tx *memoryTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for path, seen := range tx.reads {
		if s.versionOf(path) != seen {
			return fmt.Errorf("%s changed since read: %w", path, domain.ErrConflict)
		}
	}

	now := s.now()
	for _, w := range tx.writes {
		s.seq++
		switch w.kind {
		case writeCreateFavorite:
			s.favorites[w.path] = &favoriteRecord{favorite: w.favorite, version: s.seq}
		case writeDeleteFavorite:
			delete(s.favorites, w.path)
		case writeSetHeat:
			if rec, ok := s.items[w.path]; ok {
				rec.item.HeatCount = w.heat
				rec.item.UpdatedAt = now
				rec.version = s.seq
				continue
			}
			s.items[w.path] = &itemRecord{
				item: domain.Item{
					ID:        w.itemID,
					HeatCount: w.heat,
					CreatedAt: now,
					UpdatedAt: now,
				},
				version:  s.seq,
				inserted: s.seq,
			}
		}
	}
	return nil
}

// versionOf returns the current version of a document, 0 when absent.
// Callers hold s.mu.
func (s *MemoryStore) versionOf(path string) uint64 {
	if rec, ok := s.items[path]; ok {
		return rec.version
	}
	if rec, ok := s.favorites[path]; ok {
		return rec.version
	}
	return 0
}

type writeKind int

const (
	writeCreateFavorite writeKind = iota
	writeDeleteFavorite
	writeSetHeat
)

type memoryWrite struct {
	kind     writeKind
	path     string
	itemID   string
	favorite domain.Favorite
	heat     int64
}

// memoryTx records the version of every document it reads and buffers writes until commit
type memoryTx struct {
	store  *MemoryStore
	reads  map[string]uint64
	writes []memoryWrite
}

var errReadAfterWrite = errors.New("transaction reads must precede writes")

func (tx *memoryTx) read(path string) (uint64, error) {
	if len(tx.writes) > 0 {
		return 0, errReadAfterWrite
	}
	version := tx.store.versionOf(path)
	if seen, ok := tx.reads[path]; ok && seen != version {
		return 0, fmt.Errorf("%s changed during transaction: %w", path, domain.ErrConflict)
	}
	tx.reads[path] = version
	return version, nil
}

func (tx *memoryTx) GetItem(ctx context.Context, itemID string) (*domain.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()

	path := itemPath(itemID)
	if _, err := tx.read(path); err != nil {
		return nil, err
	}
	rec, ok := tx.store.items[path]
	if !ok {
		return nil, fmt.Errorf("item %s: %w", itemID, domain.ErrNotFound)
	}
	item := rec.item
	return &item, nil
}

func (tx *memoryTx) GetFavorite(ctx context.Context, userID, itemID string) (*domain.Favorite, error) {
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()

	path := favoritePath(userID, itemID)
	if _, err := tx.read(path); err != nil {
		return nil, err
	}
	rec, ok := tx.store.favorites[path]
	if !ok {
		return nil, fmt.Errorf("favorite %s/%s: %w", userID, itemID, domain.ErrNotFound)
	}
	fav := rec.favorite
	return &fav, nil
}

func (tx *memoryTx) CreateFavorite(ctx context.Context, fav *domain.Favorite) error {
	tx.writes = append(tx.writes, memoryWrite{
		kind:     writeCreateFavorite,
		path:     favoritePath(fav.UserID, fav.ItemID),
		favorite: *fav,
	})
	return ctx.Err()
}

func (tx *memoryTx) DeleteFavorite(ctx context.Context, userID, itemID string) error {
	tx.writes = append(tx.writes, memoryWrite{
		kind: writeDeleteFavorite,
		path: favoritePath(userID, itemID),
	})
	return ctx.Err()
}

func (tx *memoryTx) SetHeatCount(ctx context.Context, itemID string, heat int64) error {
	if heat < 0 {
		return fmt.Errorf("heat count %d: %w", heat, domain.ErrInvalidArgument)
	}
	tx.writes = append(tx.writes, memoryWrite{
		kind:   writeSetHeat,
		path:   itemPath(itemID),
		itemID: itemID,
		heat:   heat,
	})
	return ctx.Err()
}
