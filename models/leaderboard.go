package models

import "time"

// LeaderboardEntry mirrors a user's point total for ranking queries.
type LeaderboardEntry struct {
	UserID    uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	Name      string    `gorm:"size:64" json:"name"`
	Points    int       `gorm:"index;not null;default:0" json:"points"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Standing is a user's position on the leaderboard, 1-based.
type Standing struct {
	Rank  int              `json:"rank"`
	Entry LeaderboardEntry `json:"entry"`
}
