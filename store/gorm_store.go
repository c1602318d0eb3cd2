package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/taskquest/models"
)

// Models lists every table GormStore needs, for config.InitDatabase.
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Task{},
		&models.Subtask{},
		&models.DailyLogin{},
		&models.LeaderboardEntry{},
		&models.NotificationPreference{},
	}
}

const priorityOrder = "CASE priority WHEN 'High' THEN 1 WHEN 'Medium' THEN 2 WHEN 'Low' THEN 3 ELSE 4 END"

var _ Store = (*GormStore)(nil)

// GormStore persists to MySQL through gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an open connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}

func (s *GormStore) CreateAccount(ctx context.Context, u *models.User) error {
	return translate(s.db.WithContext(ctx).Create(u).Error)
}

func (s *GormStore) Account(ctx context.Context, userID uint) (models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).First(&u, userID).Error
	return u, translate(err)
}

func (s *GormStore) AccountByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(email)).First(&u).Error
	return u, translate(err)
}

func (s *GormStore) AccountByProvider(ctx context.Context, provider, providerID string) (models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("provider = ? AND provider_id = ?", provider, providerID).First(&u).Error
	return u, translate(err)
}

func (s *GormStore) UpdateProfile(ctx context.Context, userID uint, name, theme string) (models.User, error) {
	updates := map[string]interface{}{}
	if name != "" {
		updates["name"] = name
	}
	if theme != "" {
		updates["theme"] = theme
	}
	db := s.db.WithContext(ctx)
	if len(updates) > 0 {
		res := db.Model(&models.User{}).Where("id = ?", userID).Updates(updates)
		if res.Error != nil {
			return models.User{}, res.Error
		}
	}
	return s.Account(ctx, userID)
}

func (s *GormStore) WithinUser(ctx context.Context, userID uint, fn func(tx Tx) error) error {
	return translate(s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		var u models.User
		if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&u, userID).Error; err != nil {
			return err
		}
		return fn(&gormTx{db: db, account: u})
	}))
}

type gormTx struct {
	db      *gorm.DB
	account models.User
}

func (t *gormTx) Account() (models.User, error) {
	return t.account, nil
}

func (t *gormTx) SaveAccount(u models.User) error {
	if u.ID != t.account.ID {
		return fmt.Errorf("save account %d inside transaction for %d", u.ID, t.account.ID)
	}
	err := t.db.Model(&models.User{}).Where("id = ?", u.ID).Updates(map[string]interface{}{
		"points":                 u.Points,
		"streak":                 u.Streak,
		"last_login_date":        u.LastLoginDate,
		"challenge_progress":     u.ChallengeProgress,
		"challenge_awarded_date": u.ChallengeAwardedDate,
		"schema_version":         u.SchemaVersion,
	}).Error
	if err != nil {
		return err
	}
	t.account = u
	return nil
}

func (t *gormTx) Task(id uint) (models.Task, error) {
	var task models.Task
	err := t.db.Preload("Subtasks").Where("id = ? AND user_id = ?", id, t.account.ID).First(&task).Error
	return task, translate(err)
}

func (t *gormTx) CreateTask(task *models.Task) error {
	task.UserID = t.account.ID
	return t.db.Omit("Subtasks").Create(task).Error
}

func (t *gormTx) SetTaskCompleted(id uint, completed bool) error {
	res := t.db.Model(&models.Task{}).Where("id = ? AND user_id = ?", id, t.account.ID).Update("completed", completed)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// MySQL reports 0 affected rows when the value is unchanged
		var n int64
		if err := t.db.Model(&models.Task{}).Where("id = ? AND user_id = ?", id, t.account.ID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
	}
	return nil
}

func (t *gormTx) DeleteTask(id uint) error {
	if err := t.db.Where("task_id = ? AND user_id = ?", id, t.account.ID).Delete(&models.Subtask{}).Error; err != nil {
		return err
	}
	res := t.db.Where("id = ? AND user_id = ?", id, t.account.ID).Delete(&models.Task{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *gormTx) Subtask(id uint) (models.Subtask, error) {
	var st models.Subtask
	err := t.db.Where("id = ? AND user_id = ?", id, t.account.ID).First(&st).Error
	return st, translate(err)
}

func (t *gormTx) CreateSubtask(st *models.Subtask) error {
	var n int64
	if err := t.db.Model(&models.Task{}).Where("id = ? AND user_id = ?", st.TaskID, t.account.ID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	st.UserID = t.account.ID
	return t.db.Create(st).Error
}

func (t *gormTx) SetSubtaskCompleted(id uint, completed bool) error {
	if _, err := t.Subtask(id); err != nil {
		return err
	}
	return t.db.Model(&models.Subtask{}).Where("id = ? AND user_id = ?", id, t.account.ID).Update("completed", completed).Error
}

func (t *gormTx) DeleteSubtask(id uint) error {
	res := t.db.Where("id = ? AND user_id = ?", id, t.account.ID).Delete(&models.Subtask{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *gormTx) CountCompletedBetween(start, end time.Time) (int, error) {
	var n int64
	err := t.db.Model(&models.Task{}).
		Where("user_id = ? AND completed = ? AND date >= ? AND date < ?", t.account.ID, true, start, end).
		Count(&n).Error
	return int(n), err
}

func (t *gormTx) RecordLogin(rec models.DailyLogin) error {
	rec.UserID = t.account.ID
	return translate(t.db.Create(&rec).Error)
}

func (s *GormStore) ListTasks(ctx context.Context, userID uint, f TaskFilter) ([]models.Task, error) {
	q := s.db.WithContext(ctx).Preload("Subtasks", func(db *gorm.DB) *gorm.DB {
		return db.Order("id ASC")
	}).Where("user_id = ?", userID)

	switch f.Status {
	case StatusCompleted:
		q = q.Where("completed = ?", true)
	case StatusPending:
		q = q.Where("completed = ?", false)
	}
	if f.Priority != "" {
		q = q.Where("priority = ?", f.Priority)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.From != nil {
		q = q.Where("date >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("date < ?", *f.To)
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		like := "%" + search + "%"
		q = q.Where("title LIKE ? OR description LIKE ? OR tags LIKE ? OR category LIKE ?", like, like, like, like)
	}

	dir := "ASC"
	if f.Desc {
		dir = "DESC"
	}
	switch f.SortBy {
	case SortByPriority:
		q = q.Order(priorityOrder + " " + dir).Order("date " + dir)
	case SortByCreated:
		q = q.Order("created_at " + dir).Order("id " + dir)
	default:
		q = q.Order("date " + dir).Order("id " + dir)
	}

	var tasks []models.Task
	if err := q.Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *GormStore) GetTask(ctx context.Context, userID, id uint) (models.Task, error) {
	var task models.Task
	err := s.db.WithContext(ctx).Preload("Subtasks", func(db *gorm.DB) *gorm.DB {
		return db.Order("id ASC")
	}).Where("id = ? AND user_id = ?", id, userID).First(&task).Error
	return task, translate(err)
}

func (s *GormStore) UpdateTask(ctx context.Context, userID uint, in models.Task) (models.Task, error) {
	res := s.db.WithContext(ctx).Model(&models.Task{}).Where("id = ? AND user_id = ?", in.ID, userID).Updates(map[string]interface{}{
		"title":       in.Title,
		"description": in.Description,
		"date":        in.Date,
		"priority":    in.Priority,
		"category":    in.Category,
		"tags":        in.Tags,
	})
	if res.Error != nil {
		return models.Task{}, res.Error
	}
	return s.GetTask(ctx, userID, in.ID)
}

func (s *GormStore) GetSubtask(ctx context.Context, userID, id uint) (models.Subtask, error) {
	var st models.Subtask
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&st).Error
	return st, translate(err)
}

func (s *GormStore) UpdateSubtask(ctx context.Context, userID uint, in models.Subtask) (models.Subtask, error) {
	res := s.db.WithContext(ctx).Model(&models.Subtask{}).Where("id = ? AND user_id = ?", in.ID, userID).Updates(map[string]interface{}{
		"title":       in.Title,
		"description": in.Description,
		"date":        in.Date,
		"priority":    in.Priority,
	})
	if res.Error != nil {
		return models.Subtask{}, res.Error
	}
	return s.GetSubtask(ctx, userID, in.ID)
}

func (s *GormStore) PendingTasksBetween(ctx context.Context, start, end time.Time) ([]models.Task, error) {
	var tasks []models.Task
	err := s.db.WithContext(ctx).
		Where("completed = ? AND date >= ? AND date < ?", false, start, end).
		Order("date ASC").Order("id ASC").
		Find(&tasks).Error
	return tasks, err
}

func (s *GormStore) Preference(ctx context.Context, userID uint) (models.NotificationPreference, error) {
	var p models.NotificationPreference
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.DefaultPreference(userID), nil
	}
	return p, err
}

func (s *GormStore) SavePreference(ctx context.Context, p models.NotificationPreference) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"task_reminders", "task_reminder_minutes", "daily_summary"}),
	}).Create(&p).Error
}

func (s *GormStore) SummaryRecipients(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Table("users").
		Joins("LEFT JOIN notification_preferences p ON p.user_id = users.id").
		Where("users.deleted_at IS NULL AND (p.user_id IS NULL OR p.daily_summary = ?)", true).
		Order("users.id ASC").
		Pluck("users.id", &ids).Error
	return ids, err
}

func (s *GormStore) WriteLeaderboardEntry(ctx context.Context, e models.LeaderboardEntry) error {
	e.UpdatedAt = time.Now()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"name": e.Name, "points": e.Points, "updated_at": e.UpdatedAt}),
	}).Create(&e).Error
}

func (s *GormStore) TopEntries(ctx context.Context, n int) ([]models.LeaderboardEntry, error) {
	q := s.db.WithContext(ctx).Order("points DESC").Order("user_id ASC")
	if n > 0 {
		q = q.Limit(n)
	}
	var out []models.LeaderboardEntry
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GormStore) Standing(ctx context.Context, userID uint) (models.Standing, error) {
	db := s.db.WithContext(ctx)
	var e models.LeaderboardEntry
	if err := db.First(&e, "user_id = ?", userID).Error; err != nil {
		return models.Standing{}, translate(err)
	}
	var ahead int64
	err := db.Model(&models.LeaderboardEntry{}).
		Where("points > ? OR (points = ? AND user_id < ?)", e.Points, e.Points, e.UserID).
		Count(&ahead).Error
	if err != nil {
		return models.Standing{}, err
	}
	return models.Standing{Rank: int(ahead) + 1, Entry: e}, nil
}

func (s *GormStore) Counts(ctx context.Context, dayStart, dayEnd time.Time) (Counts, error) {
	db := s.db.WithContext(ctx)
	var c Counts
	if err := db.Model(&models.User{}).Count(&c.Users).Error; err != nil {
		return c, err
	}
	if err := db.Model(&models.Task{}).Count(&c.Tasks).Error; err != nil {
		return c, err
	}
	err := db.Model(&models.Task{}).
		Where("completed = ? AND date >= ? AND date < ?", true, dayStart, dayEnd).
		Count(&c.CompletedToday).Error
	return c, err
}
