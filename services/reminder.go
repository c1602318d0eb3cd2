package services

import (
	"context"
	"fmt"
	"time"

	"github.com/cppla/taskquest/config"
	"github.com/cppla/taskquest/models"
	"github.com/cppla/taskquest/store"
	"github.com/cppla/taskquest/utils"
)

// MaxReminderLead bounds how long before a task its reminder may fire.
const MaxReminderLead = 24 * time.Hour

// ReminderScheduler periodically pushes task reminders and the morning and evening summaries.
// Each tick handles the events whose fire time falls in (previous tick, now].
type ReminderScheduler struct {
	store    store.Store
	notifier Notifier
	clock    utils.Clock
	loc      *time.Location
	interval time.Duration
	morning  int
	evening  int
	last     time.Time
}

// NewReminderScheduler reads the interval, summary hours and time zone from cfg.
func NewReminderScheduler(st store.Store, n Notifier, clock utils.Clock, cfg config.AppConfig) *ReminderScheduler {
	if clock == nil {
		clock = utils.RealClock{}
	}
	interval := time.Duration(cfg.ReminderIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	return &ReminderScheduler{
		store:    st,
		notifier: n,
		clock:    clock,
		loc:      cfg.Location(),
		interval: interval,
		morning:  cfg.MorningSummaryHour,
		evening:  cfg.EveningSummaryHour,
	}
}

// Start launches the background loop. It stops when ctx is cancelled.
func (r *ReminderScheduler) Start(ctx context.Context) {
	r.last = r.clock.Now()
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.Tick(ctx, r.clock.Now()); err != nil {
					utils.Sugar.Warnf("reminder tick failed: %v", err)
				}
			}
		}
	}()
}

// Tick fires everything due since the previous tick. The first call only sets the baseline.
func (r *ReminderScheduler) Tick(ctx context.Context, now time.Time) error {
	if r.last.IsZero() || !now.After(r.last) {
		r.last = now
		return nil
	}
	from := r.last
	err := r.remindTasks(ctx, from, now)
	if hit(from, now, r.morning, r.loc) {
		err = firstErr(err, r.summaries(ctx, now, true))
	}
	if hit(from, now, r.evening, r.loc) {
		err = firstErr(err, r.summaries(ctx, now, false))
	}
	// advance even on failure so a broken store does not replay a burst later
	r.last = now
	return err
}

func firstErr(a, b error) error {
	if a != nil {
		return a
	}
	return b
}

// hit reports whether hour:00 local time lies in (from, to].
func hit(from, to time.Time, hour int, loc *time.Location) bool {
	if hour < 0 || hour > 23 {
		return false
	}
	day, _ := utils.DayBounds(to, loc)
	for _, d := range []time.Time{day, day.AddDate(0, 0, -1)} {
		at := time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, loc)
		if at.After(from) && !at.After(to) {
			return true
		}
	}
	return false
}

func (r *ReminderScheduler) remindTasks(ctx context.Context, from, to time.Time) error {
	tasks, err := r.store.PendingTasksBetween(ctx, from, to.Add(MaxReminderLead+time.Second))
	if err != nil {
		return fmt.Errorf("load pending tasks: %w", err)
	}
	prefs := map[uint]models.NotificationPreference{}
	for _, t := range tasks {
		p, ok := prefs[t.UserID]
		if !ok {
			if p, err = r.store.Preference(ctx, t.UserID); err != nil {
				return fmt.Errorf("load preferences of user %d: %w", t.UserID, err)
			}
			prefs[t.UserID] = p
		}
		if !p.TaskReminders {
			continue
		}
		fireAt := t.Date.Add(-time.Duration(p.TaskReminderMinutes) * time.Minute)
		if !fireAt.After(from) || fireAt.After(to) {
			continue
		}
		r.notifier.Notify(t.UserID, Notification{
			Category: CategoryInfo,
			Title:    "Task Reminder",
			Message:  fmt.Sprintf("Reminder: %s is due soon", t.Title),
			TaskID:   t.ID,
			At:       fireAt,
		})
	}
	return nil
}

func (r *ReminderScheduler) summaries(ctx context.Context, now time.Time, morning bool) error {
	ids, err := r.store.SummaryRecipients(ctx)
	if err != nil {
		return fmt.Errorf("load summary recipients: %w", err)
	}
	start, end := utils.DayBounds(now, r.loc)
	for _, id := range ids {
		tasks, err := r.store.ListTasks(ctx, id, store.TaskFilter{From: &start, To: &end})
		if err != nil {
			utils.Sugar.Warnf("summary for user %d skipped: %v", id, err)
			continue
		}
		done := 0
		for _, t := range tasks {
			if t.Completed {
				done++
			}
		}
		n := Notification{Category: CategoryInfo}
		if morning {
			n.Title = "Daily Morning Summary"
			n.Message = fmt.Sprintf("You have %d tasks due today.", len(tasks))
		} else {
			n.Title = "Daily Evening Summary"
			n.Message = fmt.Sprintf("You completed %d tasks today. %d tasks left.", done, len(tasks)-done)
		}
		r.notifier.Notify(id, n)
	}
	return nil
}
