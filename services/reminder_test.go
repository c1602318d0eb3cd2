package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/taskquest/config"
	"github.com/cppla/taskquest/models"
	"github.com/cppla/taskquest/store"
)

func newScheduler(t *testing.T) (*ReminderScheduler, *store.MemoryStore, *recorder) {
	t.Helper()
	cfg := config.Defaults("test-secret")
	cfg.Timezone = "UTC"
	st := store.NewMemoryStore()
	rec := &recorder{}
	return NewReminderScheduler(st, rec, nil, cfg), st, rec
}

func addTask(t *testing.T, st *store.MemoryStore, userID uint, title string, at time.Time, done bool) {
	t.Helper()
	require.NoError(t, st.WithinUser(context.Background(), userID, func(tx store.Tx) error {
		task := models.Task{Title: title, Date: at}
		if err := tx.CreateTask(&task); err != nil {
			return err
		}
		return tx.SetTaskCompleted(task.ID, done)
	}))
}

func TestReminderFiresOnceBeforeTask(t *testing.T) {
	r, st, rec := newScheduler(t)
	ctx := context.Background()
	u := models.User{Name: "ann", Email: "ann@example.com"}
	require.NoError(t, st.CreateAccount(ctx, &u))
	start := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	addTask(t, st, u.ID, "Dentist", start.Add(15*time.Minute), false)
	addTask(t, st, u.ID, "Done already", start.Add(15*time.Minute), true)

	require.NoError(t, r.Tick(ctx, start))
	require.NoError(t, r.Tick(ctx, start.Add(4*time.Minute)))
	assert.Empty(t, rec.titles())

	// default lead is ten minutes, so 09:05 falls in (09:04, 09:06]
	require.NoError(t, r.Tick(ctx, start.Add(6*time.Minute)))
	require.NoError(t, r.Tick(ctx, start.Add(8*time.Minute)))
	require.Len(t, rec.notes, 1)
	assert.Equal(t, "Task Reminder", rec.notes[0].Title)
	assert.Equal(t, "Reminder: Dentist is due soon", rec.notes[0].Message)
	assert.Equal(t, u.ID, rec.notes[0].UserID)
}

func TestReminderRespectsPreferences(t *testing.T) {
	r, st, rec := newScheduler(t)
	ctx := context.Background()
	u := models.User{Name: "bob", Email: "bob@example.com"}
	require.NoError(t, st.CreateAccount(ctx, &u))
	start := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	addTask(t, st, u.ID, "Gym", start.Add(time.Hour), false)

	pref := models.DefaultPreference(u.ID)
	pref.TaskReminderMinutes = 30
	require.NoError(t, st.SavePreference(ctx, pref))

	require.NoError(t, r.Tick(ctx, start))
	require.NoError(t, r.Tick(ctx, start.Add(31*time.Minute)))
	assert.Equal(t, []string{"Task Reminder"}, rec.titles())

	rec.reset()
	pref.TaskReminders = false
	require.NoError(t, st.SavePreference(ctx, pref))
	addTask(t, st, u.ID, "Late", start.Add(2*time.Hour), false)
	require.NoError(t, r.Tick(ctx, start.Add(2*time.Hour)))
	assert.Empty(t, rec.titles())
}

func TestDailySummaries(t *testing.T) {
	r, st, rec := newScheduler(t)
	ctx := context.Background()
	on := models.User{Name: "on", Email: "on@example.com"}
	off := models.User{Name: "off", Email: "off@example.com"}
	require.NoError(t, st.CreateAccount(ctx, &on))
	require.NoError(t, st.CreateAccount(ctx, &off))
	pref := models.DefaultPreference(off.ID)
	pref.DailySummary = false
	pref.TaskReminders = false
	require.NoError(t, st.SavePreference(ctx, pref))
	require.NoError(t, st.SavePreference(ctx, models.NotificationPreference{UserID: on.ID, DailySummary: true}))

	day := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	addTask(t, st, on.ID, "a", day.Add(10*time.Hour), true)
	addTask(t, st, on.ID, "b", day.Add(12*time.Hour), false)
	addTask(t, st, on.ID, "c", day.Add(22*time.Hour), false)

	require.NoError(t, r.Tick(ctx, day.Add(5*time.Hour+59*time.Minute)))
	require.NoError(t, r.Tick(ctx, day.Add(6*time.Hour)))
	require.Len(t, rec.notes, 1)
	assert.Equal(t, "Daily Morning Summary", rec.notes[0].Title)
	assert.Equal(t, "You have 3 tasks due today.", rec.notes[0].Message)
	assert.Equal(t, on.ID, rec.notes[0].UserID)

	rec.reset()
	require.NoError(t, r.Tick(ctx, day.Add(21*time.Hour+30*time.Second)))
	require.Len(t, rec.notes, 1)
	assert.Equal(t, "Daily Evening Summary", rec.notes[0].Title)
	assert.Equal(t, "You completed 1 tasks today. 2 tasks left.", rec.notes[0].Message)
}

func TestHitWindow(t *testing.T) {
	day := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	assert.True(t, hit(day.Add(5*time.Hour), day.Add(6*time.Hour), 6, time.UTC))
	assert.False(t, hit(day.Add(6*time.Hour), day.Add(7*time.Hour), 6, time.UTC))
	assert.True(t, hit(day.Add(-2*time.Hour), day.Add(time.Hour), 23, time.UTC))
	assert.False(t, hit(day, day.Add(time.Hour), 24, time.UTC))
}
