package models

import "time"

// Priority levels accepted for tasks and subtasks.
const (
	PriorityHigh   = "High"
	PriorityMedium = "Medium"
	PriorityLow    = "Low"
)

// PriorityRank orders priorities High first; unknown values sort last.
func PriorityRank(p string) int {
	switch p {
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// Task is a user's to-do item. Date is the scheduled date-time, not the completion time.
type Task struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"index;not null" json:"user_id"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	Date        time.Time `gorm:"index;not null" json:"date"`
	Priority    string    `gorm:"size:16;default:'Medium'" json:"priority"`
	Category    string    `gorm:"size:64" json:"category"`
	Tags        string    `gorm:"size:512" json:"tags"` // comma separated
	Completed   bool      `gorm:"index;not null;default:false" json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Subtasks    []Subtask `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"subtasks,omitempty"`
}

// Subtask belongs to a task and carries its own completion flag.
type Subtask struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	TaskID      uint      `gorm:"index;not null" json:"task_id"`
	UserID      uint      `gorm:"index;not null" json:"user_id"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	Date        time.Time `json:"date"`
	Priority    string    `gorm:"size:16;default:'Medium'" json:"priority"`
	Completed   bool      `gorm:"not null;default:false" json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
