package models

import (
	"time"

	"gorm.io/gorm"
)

// CurrentSchemaVersion is the account record layout written by this build.
const CurrentSchemaVersion = 3

// User is the per-user account document: identity plus the gamification counters.
// Passwords are stored as bcrypt hashes only.
type User struct {
	ID                   uint           `gorm:"primaryKey" json:"id"`
	Name                 string         `gorm:"size:64;not null" json:"name"`
	Email                string         `gorm:"size:255;uniqueIndex" json:"email"`
	PasswordHash         string         `gorm:"size:255" json:"-"`
	Provider             string         `gorm:"size:32" json:"provider"`
	ProviderID           string         `gorm:"size:255;index" json:"provider_id"`
	Theme                string         `gorm:"size:16;default:'light'" json:"theme"`
	Points               int            `gorm:"not null;default:0" json:"points"`
	Streak               int            `gorm:"not null;default:0" json:"streak"`
	LastLoginDate        *string        `gorm:"size:10" json:"last_login_date"`
	ChallengeProgress    int            `gorm:"not null;default:0" json:"challenge_progress"`
	// ChallengeAwardedDate is the day the challenge bonus was last paid.
	ChallengeAwardedDate *string        `gorm:"size:10" json:"challenge_awarded_date"`
	SchemaVersion        int            `gorm:"not null;default:0" json:"-"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
	DeletedAt            gorm.DeletedAt `gorm:"index" json:"-"`
}

// Normalize applies the per-field defaulting rules to a record loaded from storage.
// Records written before SchemaVersion existed may carry a nil theme or out of range counters.
func (u *User) Normalize(challengeGoal int) {
	if u.Points < 0 {
		u.Points = 0
	}
	if u.Streak < 0 {
		u.Streak = 0
	}
	if u.ChallengeProgress < 0 {
		u.ChallengeProgress = 0
	}
	if challengeGoal > 0 && u.ChallengeProgress > challengeGoal {
		u.ChallengeProgress = challengeGoal
	}
	if u.LastLoginDate != nil && *u.LastLoginDate == "" {
		u.LastLoginDate = nil
	}
	if u.ChallengeAwardedDate != nil && *u.ChallengeAwardedDate == "" {
		u.ChallengeAwardedDate = nil
	}
	if u.Theme == "" {
		u.Theme = "light"
	}
	u.SchemaVersion = CurrentSchemaVersion
}

// ChallengeAwardedOn reports whether the challenge bonus was paid on day.
func (u User) ChallengeAwardedOn(day string) bool {
	return u.ChallengeAwardedDate != nil && *u.ChallengeAwardedDate == day
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if u.SchemaVersion == 0 {
		u.SchemaVersion = CurrentSchemaVersion
	}
	return nil
}

// BeforeUpdate ensures the UpdatedAt timestamp is refreshed.
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = time.Now()
	return nil
}
