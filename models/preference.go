package models

// NotificationPreference controls reminders and daily summaries for a user.
type NotificationPreference struct {
	UserID              uint `gorm:"primaryKey;autoIncrement:false" json:"-"`
	TaskReminders       bool `gorm:"not null;default:true" json:"task_reminders"`
	TaskReminderMinutes int  `gorm:"not null;default:10" json:"task_reminder_minutes"`
	DailySummary        bool `gorm:"not null;default:true" json:"daily_summary"`
}

// DefaultPreference is used for users who never saved preferences.
func DefaultPreference(userID uint) NotificationPreference {
	return NotificationPreference{
		UserID:              userID,
		TaskReminders:       true,
		TaskReminderMinutes: 10,
		DailySummary:        true,
	}
}
