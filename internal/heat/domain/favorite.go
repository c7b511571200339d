package domain

import "time"

// Favorite marks that a user currently favorites an item.
// The (UserID, ItemID) pair is unique.
type Favorite struct {
	UserID  string    `json:"user_id" gorm:"primaryKey;type:text"`
	ItemID  string    `json:"item_id" gorm:"primaryKey;type:text;index"`
	AddedAt time.Time `json:"added_at" gorm:"not null"`
}

// TableName specifies the table name
func (Favorite) TableName() string {
	return "favorites"
}

// ToggleOutcome is the state a toggle left behind
type ToggleOutcome string

const (
	OutcomeFavorited   ToggleOutcome = "favorited"
	OutcomeUnfavorited ToggleOutcome = "unfavorited"
)
