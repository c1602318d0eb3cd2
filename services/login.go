package services

import (
	"fmt"

	"github.com/cppla/taskquest/models"
	"github.com/cppla/taskquest/utils"
)

// evaluateLogin credits the daily login bonus. It changes nothing when the bonus was already
// granted today. A last login exactly one calendar day ago extends the streak; any other gap,
// or no previous login, restarts it at 1. The day's challenge progress and award start over.
func evaluateLogin(r Rules, acct models.User, today string) (models.User, int, *Notification, error) {
	if acct.LastLoginDate != nil && *acct.LastLoginDate == today {
		return acct, 0, nil, nil
	}

	streak := 1
	if acct.LastLoginDate != nil {
		gap, err := utils.DaysBetween(*acct.LastLoginDate, today)
		if err != nil {
			return acct, 0, nil, fmt.Errorf("evaluate login: %w", err)
		}
		if gap == 1 {
			streak = acct.Streak + 1
		}
	}

	day := today
	acct.Points = applyDelta(acct.Points, r.DailyLoginPoints)
	acct.Streak = streak
	acct.LastLoginDate = &day
	acct.ChallengeProgress = 0
	acct.ChallengeAwardedDate = nil

	n := Notification{
		Category: CategorySuccess,
		Title:    "Points Earned!",
		Message:  fmt.Sprintf("You've earned %d points for daily login!", r.DailyLoginPoints),
		Delta:    r.DailyLoginPoints,
	}
	return acct, r.DailyLoginPoints, &n, nil
}
