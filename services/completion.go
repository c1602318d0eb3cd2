package services

import (
	"fmt"

	"github.com/cppla/taskquest/config"
)

// Rules holds the point values of every accounting event.
type Rules struct {
	DailyLoginPoints      int
	TaskCompletePoints    int
	ChallengeBonusPoints  int
	ChallengeGoal         int
	TaskCreatePoints      int
	TaskDeletePenalty     int
	SubtaskDeletePenalty  int
	SubtaskCompletePoints int
}

// RulesFromConfig reads the point rules from the application configuration.
func RulesFromConfig(cfg config.AppConfig) Rules {
	return Rules{
		DailyLoginPoints:      cfg.DailyLoginPoints,
		TaskCompletePoints:    cfg.TaskCompletePoints,
		ChallengeBonusPoints:  cfg.ChallengeBonusPoints,
		ChallengeGoal:         cfg.DailyChallengeGoal,
		TaskCreatePoints:      cfg.TaskCreatePoints,
		TaskDeletePenalty:     cfg.TaskDeletePenalty,
		SubtaskDeletePenalty:  cfg.SubtaskDeletePenalty,
		SubtaskCompletePoints: cfg.SubtaskCompletePoints,
	}
}

// DefaultRules are the stock values: 10 for login, 20 per task, 50 on the third task of the day.
func DefaultRules() Rules {
	return RulesFromConfig(config.Defaults("unused"))
}

// ChallengeAward is the single amount granted, or taken back, for the task that reaches the goal.
func (r Rules) ChallengeAward() int {
	return r.TaskCompletePoints + r.ChallengeBonusPoints
}

// completionDelta returns the point change, the new challenge progress and whether today's
// award stands after one toggle of a task dated today. after is the number of today's tasks that
// are complete once the toggle is applied. The bonus is paid when a completion reaches the goal
// and no award is recorded for today. It is taken back only when an uncompletion drops a recorded
// award below the goal. Deleting tasks or moving them off today never re-arms it.
func completionDelta(r Rules, after int, completing, awarded bool) (delta, progress int, award bool) {
	award = awarded
	if completing {
		delta = r.TaskCompletePoints
		if after >= r.ChallengeGoal && !awarded {
			delta, award = r.ChallengeAward(), true
		}
	} else {
		delta = -r.TaskCompletePoints
		if after < r.ChallengeGoal && awarded {
			delta, award = -r.ChallengeAward(), false
		}
	}
	return delta, clampProgress(after, r.ChallengeGoal), award
}

func clampProgress(n, goal int) int {
	if n < 0 {
		return 0
	}
	if n > goal {
		return goal
	}
	return n
}

// applyDelta adds delta to points without going below zero.
func applyDelta(points, delta int) int {
	points += delta
	if points < 0 {
		return 0
	}
	return points
}

// pointsNotification describes a point change for the toast stream.
func pointsNotification(r Rules, delta int) Notification {
	award := r.ChallengeAward()
	switch {
	case delta == award:
		return Notification{
			Category: CategorySuccess,
			Title:    "Daily Challenge Complete!",
			Message:  fmt.Sprintf("You earned a total of %d + %d points for completing the daily challenge!", r.TaskCompletePoints, r.ChallengeBonusPoints),
			Delta:    delta,
		}
	case delta == -award:
		return Notification{
			Category: CategoryError,
			Title:    "Daily Challenge Uncompleted!",
			Message:  fmt.Sprintf("You lost a total of %d + %d points for uncompleting the daily challenge!", r.TaskCompletePoints, r.ChallengeBonusPoints),
			Delta:    delta,
		}
	case delta > 0:
		return Notification{
			Category: CategorySuccess,
			Title:    "Points Update!",
			Message:  fmt.Sprintf("You've earned %d points!", delta),
			Delta:    delta,
		}
	default:
		return Notification{
			Category: CategoryError,
			Title:    "Points Update!",
			Message:  fmt.Sprintf("You've lost %d points!", -delta),
			Delta:    delta,
		}
	}
}
