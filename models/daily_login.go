package models

import "time"

// DailyLogin stores one row per user per calendar day on which the login bonus was granted.
type DailyLogin struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"uniqueIndex:idx_login_user_date;not null" json:"user_id"`
	LoginDate      string    `gorm:"uniqueIndex:idx_login_user_date;size:10;not null" json:"login_date"`
	PointsAwarded  int       `json:"points_awarded"`
	StreakAchieved int       `json:"streak_achieved"`
	CreatedAt      time.Time `json:"created_at"`
}
