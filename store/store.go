package store

import (
	"context"
	"errors"
	"time"

	"github.com/cppla/taskquest/models"
)

var (
	// ErrNotFound is returned when a record does not exist or belongs to another user.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("record already exists")
)

// Task list status filters.
const (
	StatusAll       = ""
	StatusCompleted = "completed"
	StatusPending   = "pending"
)

// Task list sort keys.
const (
	SortByDate     = "date"
	SortByPriority = "priority"
	SortByCreated  = "created"
)

// TaskFilter narrows ListTasks. Zero values mean "no restriction".
type TaskFilter struct {
	Search   string
	Category string
	Priority string
	Status   string
	From     *time.Time // inclusive
	To       *time.Time // exclusive
	SortBy   string
	Desc     bool
}

// Counts is the site-wide summary served by the stats endpoint.
type Counts struct {
	Users          int64 `json:"users"`
	Tasks          int64 `json:"tasks"`
	CompletedToday int64 `json:"completed_today"`
}

// Tx is a unit of work scoped to one user. The account row stays locked until the
// surrounding WithinUser returns, and reads observe the unit's own writes.
type Tx interface {
	Account() (models.User, error)
	SaveAccount(u models.User) error

	Task(id uint) (models.Task, error)
	CreateTask(t *models.Task) error
	SetTaskCompleted(id uint, completed bool) error
	DeleteTask(id uint) error

	Subtask(id uint) (models.Subtask, error)
	CreateSubtask(s *models.Subtask) error
	SetSubtaskCompleted(id uint, completed bool) error
	DeleteSubtask(id uint) error

	// CountCompletedBetween counts completed tasks whose date falls in [start, end).
	CountCompletedBetween(start, end time.Time) (int, error)
	// RecordLogin stores the day's login row; ErrDuplicate when the day was already recorded.
	RecordLogin(rec models.DailyLogin) error
}

// Store is the persistence boundary of the application.
type Store interface {
	CreateAccount(ctx context.Context, u *models.User) error
	Account(ctx context.Context, userID uint) (models.User, error)
	AccountByEmail(ctx context.Context, email string) (models.User, error)
	AccountByProvider(ctx context.Context, provider, providerID string) (models.User, error)
	UpdateProfile(ctx context.Context, userID uint, name, theme string) (models.User, error)

	// WithinUser runs fn atomically against userID's data. fn's error rolls everything back.
	WithinUser(ctx context.Context, userID uint, fn func(tx Tx) error) error

	ListTasks(ctx context.Context, userID uint, f TaskFilter) ([]models.Task, error)
	GetTask(ctx context.Context, userID, id uint) (models.Task, error)
	UpdateTask(ctx context.Context, userID uint, t models.Task) (models.Task, error)
	GetSubtask(ctx context.Context, userID, id uint) (models.Subtask, error)
	UpdateSubtask(ctx context.Context, userID uint, s models.Subtask) (models.Subtask, error)
	// PendingTasksBetween returns incomplete tasks of every user dated in [start, end).
	PendingTasksBetween(ctx context.Context, start, end time.Time) ([]models.Task, error)

	Preference(ctx context.Context, userID uint) (models.NotificationPreference, error)
	SavePreference(ctx context.Context, p models.NotificationPreference) error
	// SummaryRecipients lists users that have daily summaries enabled, explicitly or by default.
	SummaryRecipients(ctx context.Context) ([]uint, error)

	WriteLeaderboardEntry(ctx context.Context, e models.LeaderboardEntry) error
	TopEntries(ctx context.Context, n int) ([]models.LeaderboardEntry, error)
	Standing(ctx context.Context, userID uint) (models.Standing, error)

	Counts(ctx context.Context, dayStart, dayEnd time.Time) (Counts, error)
}
