package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cppla/taskquest/config"
	"github.com/cppla/taskquest/models"
	"github.com/cppla/taskquest/store"
	"github.com/cppla/taskquest/utils"
)

// Result is the outcome of one accounting operation.
type Result struct {
	Delta             int `json:"delta"`
	Points            int `json:"points"`
	Streak            int `json:"streak"`
	ChallengeProgress int `json:"challenge_progress"`
}

func resultOf(acct models.User, delta int) Result {
	return Result{
		Delta:             delta,
		Points:            acct.Points,
		Streak:            acct.Streak,
		ChallengeProgress: acct.ChallengeProgress,
	}
}

// Engine applies every point, streak and challenge mutation. Mutations of one user run one at a
// time, each inside a single store transaction, and are mirrored to the leaderboard before the
// user lock is released.
type Engine struct {
	store    store.Store
	board    LeaderboardWriter
	notifier Notifier
	feed     *store.Feed
	rules    Rules
	clock    utils.Clock
	loc      *time.Location
	timeout  time.Duration
	locks    *utils.KeyedMutex
}

// Option configures an Engine.
type Option func(*Engine)

func WithRules(r Rules) Option { return func(e *Engine) { e.rules = r } }
func WithClock(c utils.Clock) Option { return func(e *Engine) { e.clock = c } }
func WithLocation(loc *time.Location) Option { return func(e *Engine) { e.loc = loc } }
func WithTimeout(d time.Duration) Option { return func(e *Engine) { e.timeout = d } }
func WithNotifier(n Notifier) Option { return func(e *Engine) { e.notifier = n } }
func WithFeed(f *store.Feed) Option { return func(e *Engine) { e.feed = f } }
func WithLeaderboard(b LeaderboardWriter) Option { return func(e *Engine) { e.board = b } }

// WithConfig applies rules, time zone and store timeout from cfg.
func WithConfig(cfg config.AppConfig) Option {
	return func(e *Engine) {
		e.rules = RulesFromConfig(cfg)
		e.loc = cfg.Location()
		e.timeout = cfg.StoreTimeout()
	}
}

// NewEngine builds an engine over st. Without WithLeaderboard the store's own table is the mirror.
func NewEngine(st store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:   st,
		board:   st,
		rules:   DefaultRules(),
		clock:   utils.RealClock{},
		loc:     time.Local,
		timeout: 5 * time.Second,
		locks:   utils.NewKeyedMutex(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rules returns the active point rules.
func (e *Engine) Rules() Rules { return e.rules }

// Location returns the zone calendar days are computed in.
func (e *Engine) Location() *time.Location { return e.loc }

// Now returns the engine clock's current time in the engine zone.
func (e *Engine) Now() time.Time { return e.clock.Now().In(e.loc) }

// Today returns the current calendar day key.
func (e *Engine) Today() string {
	return utils.DateKey(e.clock.Now(), e.loc)
}

func (e *Engine) todayBounds() (time.Time, time.Time) {
	return utils.DayBounds(e.clock.Now(), e.loc)
}

func (e *Engine) withinUser(ctx context.Context, userID uint, fn func(tx store.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.store.WithinUser(ctx, userID, fn)
}

// account loads the locked account and applies the per-field defaults.
func (e *Engine) account(tx store.Tx) (models.User, error) {
	acct, err := tx.Account()
	if err != nil {
		return acct, err
	}
	acct.Normalize(e.rules.ChallengeGoal)
	return acct, nil
}

// mirror overwrites the user's leaderboard entry. Failures are logged only.
func (e *Engine) mirror(ctx context.Context, acct models.User) {
	if e.board == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	entry := models.LeaderboardEntry{UserID: acct.ID, Name: acct.Name, Points: acct.Points}
	if err := e.board.WriteLeaderboardEntry(ctx, entry); err != nil {
		utils.Sugar.Errorw("leaderboard mirror failed", "user_id", acct.ID, "points", acct.Points, "error", err)
		return
	}
	e.publish(acct.ID, store.ChangeLeaderboard)
}

func (e *Engine) notify(userID uint, n *Notification) {
	if n == nil || e.notifier == nil {
		return
	}
	e.notifier.Notify(userID, *n)
}

func (e *Engine) publish(userID uint, kinds ...store.ChangeKind) {
	if e.feed == nil {
		return
	}
	for _, k := range kinds {
		e.feed.Publish(store.Change{UserID: userID, Kind: k})
	}
}

// commit runs fn in a transaction under the user lock and, when fn changed the point total,
// mirrors the committed account to the leaderboard while still holding the lock.
func (e *Engine) commit(ctx context.Context, userID uint, op string, fn func(tx store.Tx) (models.User, int, error)) (models.User, int, error) {
	unlock := e.locks.Lock(userID)
	defer unlock()

	var acct models.User
	var delta int
	err := e.withinUser(ctx, userID, func(tx store.Tx) error {
		var err error
		acct, delta, err = fn(tx)
		return err
	})
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			utils.Sugar.Errorw(op+" failed", "user_id", userID, "error", err)
		}
		return models.User{}, 0, fmt.Errorf("%s: %w", op, err)
	}
	if delta != 0 {
		e.mirror(ctx, acct)
	}
	return acct, delta, nil
}

// StartSession runs the daily login check and then reconciles challenge progress.
// It is called whenever a session is established or the client comes back to the foreground.
func (e *Engine) StartSession(ctx context.Context, userID uint) (State, error) {
	if _, err := e.EvaluateLogin(ctx, userID); err != nil {
		return State{}, err
	}
	if _, err := e.Reconcile(ctx, userID); err != nil {
		return State{}, err
	}
	return e.State(ctx, userID)
}

// EvaluateLogin grants the daily login bonus at most once per calendar day.
func (e *Engine) EvaluateLogin(ctx context.Context, userID uint) (Result, error) {
	today := e.Today()
	var note *Notification
	acct, delta, err := e.commit(ctx, userID, "evaluate login", func(tx store.Tx) (models.User, int, error) {
		cur, err := e.account(tx)
		if err != nil {
			return cur, 0, err
		}
		next, d, n, err := evaluateLogin(e.rules, cur, today)
		if err != nil || d == 0 {
			return cur, 0, err
		}
		err = tx.RecordLogin(models.DailyLogin{LoginDate: today, PointsAwarded: d, StreakAchieved: next.Streak})
		if errors.Is(err, store.ErrDuplicate) {
			// the day was credited already; only the account's date was lost
			utils.Sugar.Warnw("login already recorded, repairing last login date", "user_id", userID, "date", today)
			cur.LastLoginDate = next.LastLoginDate
			return cur, 0, tx.SaveAccount(cur)
		}
		if err != nil {
			return cur, 0, err
		}
		note = n
		return next, d, tx.SaveAccount(next)
	})
	if err != nil {
		return Result{}, err
	}
	if delta != 0 {
		utils.Sugar.Infow("daily login credited", "user_id", userID, "date", today, "streak", acct.Streak, "points", acct.Points)
		e.notify(userID, note)
		e.publish(userID, store.ChangeAccount)
	}
	return resultOf(acct, delta), nil
}

// AddPoints applies a flat delta, clamping the total at zero.
func (e *Engine) AddPoints(ctx context.Context, userID uint, delta int) (Result, error) {
	if delta == 0 {
		return Result{}, nil
	}
	acct, applied, err := e.commit(ctx, userID, "add points", func(tx store.Tx) (models.User, int, error) {
		acct, err := e.account(tx)
		if err != nil {
			return acct, 0, err
		}
		acct.Points = applyDelta(acct.Points, delta)
		return acct, delta, tx.SaveAccount(acct)
	})
	if err != nil {
		return Result{}, err
	}
	e.afterPoints(userID, applied, store.ChangeAccount)
	return resultOf(acct, applied), nil
}

// afterPoints emits the toast for delta and announces the changed documents.
func (e *Engine) afterPoints(userID uint, delta int, kinds ...store.ChangeKind) {
	if delta != 0 {
		n := pointsNotification(e.rules, delta)
		e.notify(userID, &n)
	}
	e.publish(userID, kinds...)
}

// CompleteTask toggles a task and applies the matching points. Requesting the stored state is a
// no-op. Only tasks dated today move challengeProgress; any other date earns the flat task reward.
func (e *Engine) CompleteTask(ctx context.Context, userID, taskID uint, completed bool) (Result, error) {
	start, end := e.todayBounds()
	noop := false
	acct, delta, err := e.commit(ctx, userID, "complete task", func(tx store.Tx) (models.User, int, error) {
		task, err := tx.Task(taskID)
		if err != nil {
			return models.User{}, 0, err
		}
		acct, err := e.account(tx)
		if err != nil {
			return acct, 0, err
		}
		if task.Completed == completed {
			noop = true
			return acct, 0, nil
		}
		if err := tx.SetTaskCompleted(taskID, completed); err != nil {
			return acct, 0, err
		}

		var delta int
		if !task.Date.Before(start) && task.Date.Before(end) {
			after, err := tx.CountCompletedBetween(start, end)
			if err != nil {
				return acct, 0, err
			}
			today := e.Today()
			var award bool
			delta, acct.ChallengeProgress, award = completionDelta(e.rules, after, completed, acct.ChallengeAwardedOn(today))
			acct.ChallengeAwardedDate = nil
			if award {
				acct.ChallengeAwardedDate = &today
			}
		} else {
			delta = e.rules.TaskCompletePoints
			if !completed {
				delta = -delta
			}
		}
		acct.Points = applyDelta(acct.Points, delta)
		return acct, delta, tx.SaveAccount(acct)
	})
	if err != nil {
		return Result{}, err
	}
	if !noop {
		e.afterPoints(userID, delta, store.ChangeTasks, store.ChangeAccount)
	}
	return resultOf(acct, delta), nil
}

// CompleteSubtask toggles a subtask for a flat reward. Subtasks do not count toward the challenge.
func (e *Engine) CompleteSubtask(ctx context.Context, userID, subtaskID uint, completed bool) (Result, error) {
	noop := false
	acct, delta, err := e.commit(ctx, userID, "complete subtask", func(tx store.Tx) (models.User, int, error) {
		sub, err := tx.Subtask(subtaskID)
		if err != nil {
			return models.User{}, 0, err
		}
		acct, err := e.account(tx)
		if err != nil {
			return acct, 0, err
		}
		if sub.Completed == completed {
			noop = true
			return acct, 0, nil
		}
		if err := tx.SetSubtaskCompleted(subtaskID, completed); err != nil {
			return acct, 0, err
		}
		delta := e.rules.SubtaskCompletePoints
		if !completed {
			delta = -delta
		}
		acct.Points = applyDelta(acct.Points, delta)
		return acct, delta, tx.SaveAccount(acct)
	})
	if err != nil {
		return Result{}, err
	}
	if !noop {
		e.afterPoints(userID, delta, store.ChangeTasks, store.ChangeAccount)
	}
	return resultOf(acct, delta), nil
}

// CreateTask stores a new, incomplete task and grants the creation reward.
func (e *Engine) CreateTask(ctx context.Context, userID uint, task models.Task) (models.Task, Result, error) {
	task.Completed = false
	acct, delta, err := e.commit(ctx, userID, "create task", func(tx store.Tx) (models.User, int, error) {
		acct, err := e.account(tx)
		if err != nil {
			return acct, 0, err
		}
		if err := tx.CreateTask(&task); err != nil {
			return acct, 0, err
		}
		acct.Points = applyDelta(acct.Points, e.rules.TaskCreatePoints)
		return acct, e.rules.TaskCreatePoints, tx.SaveAccount(acct)
	})
	if err != nil {
		return models.Task{}, Result{}, err
	}
	e.afterPoints(userID, delta, store.ChangeTasks, store.ChangeAccount)
	return task, resultOf(acct, delta), nil
}

// DeleteTask removes a task with its subtasks, applies the deletion penalty and recounts
// today's challenge progress.
func (e *Engine) DeleteTask(ctx context.Context, userID, taskID uint) (Result, error) {
	start, end := e.todayBounds()
	acct, delta, err := e.commit(ctx, userID, "delete task", func(tx store.Tx) (models.User, int, error) {
		if _, err := tx.Task(taskID); err != nil {
			return models.User{}, 0, err
		}
		acct, err := e.account(tx)
		if err != nil {
			return acct, 0, err
		}
		if err := tx.DeleteTask(taskID); err != nil {
			return acct, 0, err
		}
		n, err := tx.CountCompletedBetween(start, end)
		if err != nil {
			return acct, 0, err
		}
		acct.ChallengeProgress = clampProgress(n, e.rules.ChallengeGoal)
		acct.Points = applyDelta(acct.Points, -e.rules.TaskDeletePenalty)
		return acct, -e.rules.TaskDeletePenalty, tx.SaveAccount(acct)
	})
	if err != nil {
		return Result{}, err
	}
	e.afterPoints(userID, delta, store.ChangeTasks, store.ChangeAccount)
	return resultOf(acct, delta), nil
}

// CreateSubtask adds a subtask under one of the user's tasks. It carries no reward.
func (e *Engine) CreateSubtask(ctx context.Context, userID uint, sub models.Subtask) (models.Subtask, error) {
	sub.Completed = false
	_, _, err := e.commit(ctx, userID, "create subtask", func(tx store.Tx) (models.User, int, error) {
		return models.User{}, 0, tx.CreateSubtask(&sub)
	})
	if err != nil {
		return models.Subtask{}, err
	}
	e.publish(userID, store.ChangeTasks)
	return sub, nil
}

// DeleteSubtask removes a subtask and applies the subtask deletion penalty.
func (e *Engine) DeleteSubtask(ctx context.Context, userID, subtaskID uint) (Result, error) {
	acct, delta, err := e.commit(ctx, userID, "delete subtask", func(tx store.Tx) (models.User, int, error) {
		acct, err := e.account(tx)
		if err != nil {
			return acct, 0, err
		}
		if err := tx.DeleteSubtask(subtaskID); err != nil {
			return acct, 0, err
		}
		acct.Points = applyDelta(acct.Points, -e.rules.SubtaskDeletePenalty)
		return acct, -e.rules.SubtaskDeletePenalty, tx.SaveAccount(acct)
	})
	if err != nil {
		return Result{}, err
	}
	e.afterPoints(userID, delta, store.ChangeTasks, store.ChangeAccount)
	return resultOf(acct, delta), nil
}

// Reconcile recomputes challenge progress from today's completed tasks and stores it when it
// drifted. It never changes points.
func (e *Engine) Reconcile(ctx context.Context, userID uint) (Result, error) {
	start, end := e.todayBounds()
	changed := false
	acct, _, err := e.commit(ctx, userID, "reconcile", func(tx store.Tx) (models.User, int, error) {
		raw, err := tx.Account()
		if err != nil {
			return raw, 0, err
		}
		acct := raw
		acct.Normalize(e.rules.ChallengeGoal)
		n, err := tx.CountCompletedBetween(start, end)
		if err != nil {
			return acct, 0, err
		}
		acct.ChallengeProgress = clampProgress(n, e.rules.ChallengeGoal)
		if acct.ChallengeProgress == raw.ChallengeProgress && acct.Points == raw.Points &&
			acct.Streak == raw.Streak && raw.SchemaVersion == models.CurrentSchemaVersion {
			return acct, 0, nil
		}
		changed = true
		return acct, 0, tx.SaveAccount(acct)
	})
	if err != nil {
		return Result{}, err
	}
	if changed {
		utils.Sugar.Infow("challenge progress reconciled", "user_id", userID, "progress", acct.ChallengeProgress)
		e.publish(userID, store.ChangeAccount)
	}
	return resultOf(acct, 0), nil
}

// State reads the latest snapshot and reduces it.
func (e *Engine) State(ctx context.Context, userID uint) (State, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	acct, err := e.store.Account(ctx, userID)
	if err != nil {
		return State{}, fmt.Errorf("load account: %w", err)
	}
	acct.Normalize(e.rules.ChallengeGoal)
	start, end := e.todayBounds()
	tasks, err := e.store.ListTasks(ctx, userID, store.TaskFilter{From: &start, To: &end})
	if err != nil {
		return State{}, fmt.Errorf("load tasks: %w", err)
	}
	return Reduce(acct, tasks, e.Today(), e.rules.ChallengeGoal, e.loc), nil
}

// Mirror rewrites the user's leaderboard entry from the stored account, for example after a rename.
func (e *Engine) Mirror(ctx context.Context, userID uint) error {
	unlock := e.locks.Lock(userID)
	defer unlock()
	tctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	acct, err := e.store.Account(tctx, userID)
	if err != nil {
		return fmt.Errorf("mirror: %w", err)
	}
	e.mirror(ctx, acct)
	return nil
}
