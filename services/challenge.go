package services

import (
	"time"

	"github.com/cppla/taskquest/models"
	"github.com/cppla/taskquest/utils"
)

// State is the observable accounting state of one user.
type State struct {
	UserID            uint    `json:"user_id"`
	Points            int     `json:"points"`
	Streak            int     `json:"streak"`
	LastLoginDate     *string `json:"last_login_date"`
	ChallengeProgress int     `json:"challenge_progress"`
	ChallengeGoal     int     `json:"challenge_goal"`
	CompletedToday    int     `json:"completed_today"`
	Today             string  `json:"today"`
}

// ChallengeComplete reports whether today's goal has been reached.
func (s State) ChallengeComplete() bool {
	return s.ChallengeGoal > 0 && s.ChallengeProgress >= s.ChallengeGoal
}

// Reduce derives State from an account snapshot and its tasks. It depends on nothing else, so
// replaying the same snapshot always produces the same state. Progress is recomputed from the
// tasks rather than trusted from the account.
func Reduce(acct models.User, tasks []models.Task, today string, goal int, loc *time.Location) State {
	completed := 0
	for _, t := range tasks {
		if t.Completed && utils.DateKey(t.Date, loc) == today {
			completed++
		}
	}
	points := acct.Points
	if points < 0 {
		points = 0
	}
	return State{
		UserID:            acct.ID,
		Points:            points,
		Streak:            acct.Streak,
		LastLoginDate:     acct.LastLoginDate,
		ChallengeProgress: clampProgress(completed, goal),
		ChallengeGoal:     goal,
		CompletedToday:    completed,
		Today:             today,
	}
}
