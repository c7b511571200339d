package domain

import "context"

// Store is the document store capability the heat service is written against.
//
// Point reads return ErrNotFound for missing documents. RunTransaction invokes
// fn with a transaction-scoped view; every write made through that view is
// committed atomically, and only if no document read inside fn changed in the
// meantime. On such a conflict fn is invoked again from a fresh read, up to an
// implementation-defined attempt budget, after which ErrContention is returned.
type Store interface {
	GetItem(ctx context.Context, itemID string) (*Item, error)
	GetFavorite(ctx context.Context, userID, itemID string) (*Favorite, error)
	ListFavorites(ctx context.Context, userID string, limit int) ([]Favorite, error)
	QueryItems(ctx context.Context, q ItemQuery) ([]Item, error)
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// UpsertCatalogItem merges ingestion-owned fields and never writes HeatCount.
	UpsertCatalogItem(ctx context.Context, item *Item) error

	Ping(ctx context.Context) error
}

// Tx is the transaction-scoped view handed to RunTransaction callbacks.
// All reads must happen before the first write.
type Tx interface {
	GetItem(ctx context.Context, itemID string) (*Item, error)
	GetFavorite(ctx context.Context, userID, itemID string) (*Favorite, error)
	CreateFavorite(ctx context.Context, fav *Favorite) error
	DeleteFavorite(ctx context.Context, userID, itemID string) error

	// SetHeatCount writes the counter, creating the item document when it is missing.
	SetHeatCount(ctx context.Context, itemID string, heat int64) error
}
