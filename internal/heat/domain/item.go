package domain

import (
	"time"
)

// Item represents a catalog entry that users can favorite
type Item struct {
	ID          string    `json:"id" gorm:"primaryKey;type:text"`
	Title       string    `json:"title"`
	Synopsis    string    `json:"synopsis"`
	Poster      string    `json:"poster,omitempty"`
	Backdrop    string    `json:"backdrop,omitempty"`
	Popularity  float64   `json:"popularity" gorm:"not null;default:0;index:idx_items_trending_popularity,priority:2,sort:desc"`
	VoteAverage float64   `json:"vote_average"`
	VoteCount   int64     `json:"vote_count"`
	HeatCount   int64     `json:"heat_count" gorm:"not null;default:0;check:heat_count >= 0"`
	Trending    bool      `json:"trending" gorm:"not null;default:false;index:idx_items_trending_popularity,priority:1"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName specifies the table name
func (Item) TableName() string {
	return "items"
}

// Orderable item fields
const (
	FieldPopularity = "popularity"
	FieldHeatCount  = "heat_count"
)

// ItemQuery describes an ordered, optionally filtered, bounded read of items.
// Trending nil means no predicate.
type ItemQuery struct {
	Trending   *bool
	OrderBy    string
	Descending bool
	Limit      int
}

// HasFilter reports whether the query carries an equality predicate.
func (q ItemQuery) HasFilter() bool {
	return q.Trending != nil
}

// ClampHeat keeps a heat count from going below zero.
func ClampHeat(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}
