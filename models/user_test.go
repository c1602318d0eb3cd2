package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRepairsLegacyRecords(t *testing.T) {
	empty := ""
	u := User{Points: -5, Streak: -1, ChallengeProgress: 7, LastLoginDate: &empty, ChallengeAwardedDate: &empty}
	u.Normalize(3)

	assert.Equal(t, 0, u.Points)
	assert.Equal(t, 0, u.Streak)
	assert.Equal(t, 3, u.ChallengeProgress)
	assert.Nil(t, u.LastLoginDate)
	assert.Nil(t, u.ChallengeAwardedDate)
	assert.Equal(t, "light", u.Theme)
	assert.Equal(t, CurrentSchemaVersion, u.SchemaVersion)
}

func TestNormalizeKeepsValidValues(t *testing.T) {
	day := "2024-05-10"
	u := User{Points: 40, Streak: 2, ChallengeProgress: 1, LastLoginDate: &day, Theme: "dark"}
	u.Normalize(3)

	assert.Equal(t, 40, u.Points)
	assert.Equal(t, 2, u.Streak)
	assert.Equal(t, 1, u.ChallengeProgress)
	assert.Equal(t, "2024-05-10", *u.LastLoginDate)
	assert.Equal(t, "dark", u.Theme)
}

func TestChallengeAwardedOn(t *testing.T) {
	day := "2024-05-10"
	u := User{}
	assert.False(t, u.ChallengeAwardedOn(day))
	u.ChallengeAwardedDate = &day
	assert.True(t, u.ChallengeAwardedOn("2024-05-10"))
	assert.False(t, u.ChallengeAwardedOn("2024-05-11"))
}

func TestPriorityRank(t *testing.T) {
	assert.Less(t, PriorityRank(PriorityHigh), PriorityRank(PriorityMedium))
	assert.Less(t, PriorityRank(PriorityMedium), PriorityRank(PriorityLow))
	assert.Less(t, PriorityRank(PriorityLow), PriorityRank("Someday"))
}
