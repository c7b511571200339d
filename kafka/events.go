package kafka

import "time"

// FavoriteToggledEvent is emitted after a toggle commits
type FavoriteToggledEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	UserID    string    `json:"user_id"`
	ItemID    string    `json:"item_id"`
	Favorited bool      `json:"favorited"`
	HeatCount int64     `json:"heat_count"`
	Timestamp time.Time `json:"timestamp"`
}

// CatalogItemUpsertedEvent carries a catalog feed record. Heat is not part of it.
type CatalogItemUpsertedEvent struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	ItemID      string    `json:"item_id"`
	Title       string    `json:"title"`
	Synopsis    string    `json:"synopsis"`
	Poster      string    `json:"poster,omitempty"`
	Backdrop    string    `json:"backdrop,omitempty"`
	Popularity  float64   `json:"popularity"`
	VoteAverage float64   `json:"vote_average"`
	VoteCount   int64     `json:"vote_count"`
	Trending    bool      `json:"trending"`
	Timestamp   time.Time `json:"timestamp"`
}

// Event types
const (
	EventTypeFavoriteToggled     = "favorite.toggled"
	EventTypeCatalogItemUpserted = "catalog.item_upserted"
)

// Default Kafka topics
const (
	TopicFavoriteActivity = "favorite-activity"
	TopicCatalogItems     = "catalog-items"
)

// Record header keys
const (
	headerEventType = "event_type"
	headerEventID   = "event_id"
)
