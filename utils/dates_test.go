package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateKeyUsesLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	ts := time.Date(2024, 5, 10, 20, 0, 0, 0, time.UTC)

	assert.Equal(t, "2024-05-10", DateKey(ts, time.UTC))
	assert.Equal(t, "2024-05-11", DateKey(ts, tokyo))
}

func TestDayBounds(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	start, end := DayBounds(time.Date(2024, 5, 10, 20, 0, 0, 0, time.UTC), tokyo)

	assert.Equal(t, time.Date(2024, 5, 11, 0, 0, 0, 0, tokyo), start)
	assert.Equal(t, 24*time.Hour, end.Sub(start))
}

func TestDaysBetween(t *testing.T) {
	cases := []struct {
		from, to string
		want     int
	}{
		{"2024-05-10", "2024-05-10", 0},
		{"2024-05-09", "2024-05-10", 1},
		{"2024-02-28", "2024-03-01", 2},
		{"2023-12-31", "2024-01-01", 1},
		{"2024-05-10", "2024-05-08", -2},
	}
	for _, tc := range cases {
		got, err := DaysBetween(tc.from, tc.to)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s -> %s", tc.from, tc.to)
	}

	_, err := DaysBetween("yesterday", "2024-05-10")
	assert.Error(t, err)
}
