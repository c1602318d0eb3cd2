package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	c := Defaults("secret")

	assert.Equal(t, "8080", c.AppPort)
	assert.Equal(t, 10, c.DailyLoginPoints)
	assert.Equal(t, 20, c.TaskCompletePoints)
	assert.Equal(t, 50, c.ChallengeBonusPoints)
	assert.Equal(t, 3, c.DailyChallengeGoal)
	assert.Equal(t, 10, c.TaskCreatePoints)
	assert.Equal(t, 10, c.TaskDeletePenalty)
	assert.Equal(t, 5, c.SubtaskDeletePenalty)
	assert.Equal(t, 10, c.LeaderboardSize)
	assert.Equal(t, 5*time.Second, c.StoreTimeout())
	assert.Equal(t, "127.0.0.1", c.RedisHost)
}

func TestLoadJSONConfigGroupedSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"app": {"AppPort": "9090", "Timezone": "UTC", "AllowedOrigins": ["https://a.example"]},
		"redis": {"RedisHost": ""},
		"points": {"DailyChallengeGoal": 5, "ChallengeBonusPoints": 80},
		"log": {"Level": "debug", "Compress": true}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	var c AppConfig
	require.NoError(t, loadJSONConfig(path, &c))
	applyDefaults(&c)

	assert.Equal(t, "9090", c.AppPort)
	assert.Equal(t, []string{"https://a.example"}, c.AllowedOrigins)
	assert.Equal(t, 5, c.DailyChallengeGoal)
	assert.Equal(t, 80, c.ChallengeBonusPoints)
	assert.Equal(t, 20, c.TaskCompletePoints)
	assert.Equal(t, "debug", c.LogLevel)
	assert.True(t, c.LogCompress)
	assert.Equal(t, "", c.RedisHost, "explicit empty host disables redis")
	assert.Equal(t, time.UTC, c.Location())
}

func TestLoadJSONConfigMissingFileIsIgnored(t *testing.T) {
	var c AppConfig
	assert.NoError(t, loadJSONConfig(filepath.Join(t.TempDir(), "nope.json"), &c))
}

func TestLoadJSONConfigInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	var c AppConfig
	assert.Error(t, loadJSONConfig(path, &c))
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "7000")
	t.Setenv("POINTS_DAILY_LOGIN", "15")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://x.example, https://y.example ,")
	t.Setenv("REDIS_HOST", "")

	c := Defaults("secret")
	applyEnvOverrides(&c)

	assert.Equal(t, "7000", c.AppPort)
	assert.Equal(t, 15, c.DailyLoginPoints)
	assert.Equal(t, []string{"https://x.example", "https://y.example"}, c.AllowedOrigins)
	assert.Equal(t, "", c.RedisHost)
}

func TestLocationFallsBackToLocal(t *testing.T) {
	c := AppConfig{Timezone: "Not/AZone"}
	assert.Equal(t, time.Local, c.Location())
	assert.Equal(t, time.Local, AppConfig{}.Location())
}
