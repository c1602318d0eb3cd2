package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via env files or the environment.
type AppConfig struct {
	AppPort            string
	JWTSecret          string
	TokenTTLHours      int
	RateLimitPerMinute int
	AllowedOrigins     []string
	OAuthRedirectBase  string
	// Calendar days (login bonus, "dated today") are computed in this zone
	Timezone string
	// Gin framework configuration
	GinMode string
	GinPath string
	// Database
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	// Redis for leaderboard ranking, caching and token revocation; empty host disables it
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// OAuth providers
	GitHubClientID     string
	GitHubClientSecret string
	GoogleClientID     string
	GoogleClientSecret string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// Point rules
	DailyLoginPoints      int
	TaskCompletePoints    int
	ChallengeBonusPoints  int
	DailyChallengeGoal    int
	TaskCreatePoints      int
	TaskDeletePenalty     int
	SubtaskDeletePenalty  int
	SubtaskCompletePoints int
	LeaderboardSize       int
	StoreTimeoutSec       int
	// Reminders
	ReminderIntervalSec int
	MorningSummaryHour  int
	EveningSummaryHour  int
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	// Precedence: config/config.json -> defaults -> environment variable overrides
	if err := loadJSONConfig(filepath.Join("config", "config.json"), &cfg); err != nil {
		log.Printf("ignoring invalid config/config.json: %v", err)
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// Set installs a configuration without reading files or the environment.
func Set(c AppConfig) {
	cfg = c
	loaded = true
}

// Defaults returns a configuration with every default applied and the given secret.
func Defaults(secret string) AppConfig {
	c := AppConfig{JWTSecret: secret}
	applyDefaults(&c)
	return c
}

// Location resolves Timezone, falling back to the process local zone.
func (c AppConfig) Location() *time.Location {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("unknown timezone %q, using local: %v", c.Timezone, err)
		return time.Local
	}
	return loc
}

// StoreTimeout is the deadline applied to every accounting store call.
func (c AppConfig) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutSec) * time.Second
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

type fileConfig struct {
	App struct {
		AppPort            string
		JWTSecret          string
		TokenTTLHours      int
		RateLimitPerMinute int
		AllowedOrigins     []string
		OAuthRedirectBase  string
		Timezone           string
	} `json:"app"`
	Gin struct {
		Mode    string
		LogPath string
	} `json:"gin"`
	Database struct {
		DatabaseURI string
		DBHost      string
		DBPort      string
		DBUser      string
		DBPassword  string
		DBName      string
	} `json:"database"`
	Redis struct {
		RedisHost     *string
		RedisPort     int
		RedisDB       int
		RedisPassword string
	} `json:"redis"`
	OAuth struct {
		GitHubClientID     string
		GitHubClientSecret string
		GoogleClientID     string
		GoogleClientSecret string
	} `json:"oauth"`
	Log struct {
		Level      string
		Path       string
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
		Compress   bool
	} `json:"log"`
	Points struct {
		DailyLoginPoints      int
		TaskCompletePoints    int
		ChallengeBonusPoints  int
		DailyChallengeGoal    int
		TaskCreatePoints      int
		TaskDeletePenalty     int
		SubtaskDeletePenalty  int
		SubtaskCompletePoints int
		LeaderboardSize       int
		StoreTimeoutSec       int
	} `json:"points"`
	Reminders struct {
		IntervalSec        int
		MorningSummaryHour int
		EveningSummaryHour int
	} `json:"reminders"`
}

// loadJSONConfig reads the grouped JSON file into out if present. Returns error only for invalid JSON.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil // silently ignore missing file
	}
	defer f.Close()

	var fc fileConfig
	if err := json.NewDecoder(f).Decode(&fc); err != nil {
		return err
	}

	setString(&out.AppPort, fc.App.AppPort)
	setString(&out.JWTSecret, fc.App.JWTSecret)
	setInt(&out.TokenTTLHours, fc.App.TokenTTLHours)
	setInt(&out.RateLimitPerMinute, fc.App.RateLimitPerMinute)
	if len(fc.App.AllowedOrigins) > 0 {
		out.AllowedOrigins = fc.App.AllowedOrigins
	}
	setString(&out.OAuthRedirectBase, fc.App.OAuthRedirectBase)
	setString(&out.Timezone, fc.App.Timezone)

	setString(&out.GinMode, fc.Gin.Mode)
	setString(&out.GinPath, fc.Gin.LogPath)

	setString(&out.DatabaseURI, fc.Database.DatabaseURI)
	setString(&out.DBHost, fc.Database.DBHost)
	setString(&out.DBPort, fc.Database.DBPort)
	setString(&out.DBUser, fc.Database.DBUser)
	setString(&out.DBPassword, fc.Database.DBPassword)
	setString(&out.DBName, fc.Database.DBName)

	// an explicit empty RedisHost disables redis, so keep the pointer distinction
	if fc.Redis.RedisHost != nil {
		out.RedisHost = *fc.Redis.RedisHost
		if out.RedisHost == "" {
			out.RedisHost = "-"
		}
	}
	setInt(&out.RedisPort, fc.Redis.RedisPort)
	setInt(&out.RedisDB, fc.Redis.RedisDB)
	setString(&out.RedisPassword, fc.Redis.RedisPassword)

	setString(&out.GitHubClientID, fc.OAuth.GitHubClientID)
	setString(&out.GitHubClientSecret, fc.OAuth.GitHubClientSecret)
	setString(&out.GoogleClientID, fc.OAuth.GoogleClientID)
	setString(&out.GoogleClientSecret, fc.OAuth.GoogleClientSecret)

	setString(&out.LogLevel, fc.Log.Level)
	setString(&out.LogPath, fc.Log.Path)
	setInt(&out.LogMaxSizeMB, fc.Log.MaxSizeMB)
	setInt(&out.LogMaxBackups, fc.Log.MaxBackups)
	setInt(&out.LogMaxAgeDays, fc.Log.MaxAgeDays)
	out.LogCompress = out.LogCompress || fc.Log.Compress

	setInt(&out.DailyLoginPoints, fc.Points.DailyLoginPoints)
	setInt(&out.TaskCompletePoints, fc.Points.TaskCompletePoints)
	setInt(&out.ChallengeBonusPoints, fc.Points.ChallengeBonusPoints)
	setInt(&out.DailyChallengeGoal, fc.Points.DailyChallengeGoal)
	setInt(&out.TaskCreatePoints, fc.Points.TaskCreatePoints)
	setInt(&out.TaskDeletePenalty, fc.Points.TaskDeletePenalty)
	setInt(&out.SubtaskDeletePenalty, fc.Points.SubtaskDeletePenalty)
	setInt(&out.SubtaskCompletePoints, fc.Points.SubtaskCompletePoints)
	setInt(&out.LeaderboardSize, fc.Points.LeaderboardSize)
	setInt(&out.StoreTimeoutSec, fc.Points.StoreTimeoutSec)

	setInt(&out.ReminderIntervalSec, fc.Reminders.IntervalSec)
	setInt(&out.MorningSummaryHour, fc.Reminders.MorningSummaryHour)
	setInt(&out.EveningSummaryHour, fc.Reminders.EveningSummaryHour)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.TokenTTLHours == 0 {
		c.TokenTTLHours = 72
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 120
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.OAuthRedirectBase == "" {
		c.OAuthRedirectBase = "http://localhost:8080"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "taskquest"
	}
	if c.RedisHost == "" {
		c.RedisHost = "127.0.0.1"
	} else if c.RedisHost == "-" {
		c.RedisHost = ""
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
	if c.DailyLoginPoints == 0 {
		c.DailyLoginPoints = 10
	}
	if c.TaskCompletePoints == 0 {
		c.TaskCompletePoints = 20
	}
	if c.ChallengeBonusPoints == 0 {
		c.ChallengeBonusPoints = 50
	}
	if c.DailyChallengeGoal == 0 {
		c.DailyChallengeGoal = 3
	}
	if c.TaskCreatePoints == 0 {
		c.TaskCreatePoints = 10
	}
	if c.TaskDeletePenalty == 0 {
		c.TaskDeletePenalty = 10
	}
	if c.SubtaskDeletePenalty == 0 {
		c.SubtaskDeletePenalty = 5
	}
	if c.SubtaskCompletePoints == 0 {
		c.SubtaskCompletePoints = 10
	}
	if c.LeaderboardSize == 0 {
		c.LeaderboardSize = 10
	}
	if c.StoreTimeoutSec == 0 {
		c.StoreTimeoutSec = 5
	}
	if c.ReminderIntervalSec == 0 {
		c.ReminderIntervalSec = 60
	}
	if c.MorningSummaryHour == 0 {
		c.MorningSummaryHour = 6
	}
	if c.EveningSummaryHour == 0 {
		c.EveningSummaryHour = 21
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	if v := getEnv("APP_PORT", ""); v != "" {
		c.AppPort = v
	}
	if v := getEnv("JWT_SECRET", ""); v != "" {
		c.JWTSecret = v
	}
	if v := getEnv("TOKEN_TTL_HOURS", ""); v != "" {
		c.TokenTTLHours = mustParseInt(v)
	}
	if v := getEnv("TIMEZONE", ""); v != "" {
		c.Timezone = v
	}
	if v := getEnv("GIN_MODE", ""); v != "" {
		c.GinMode = v
	}
	if v := getEnv("GIN_PATH", ""); v != "" {
		c.GinPath = v
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		c.RateLimitPerMinute = mustParseInt(v)
	}
	if v := getEnv("CORS_ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = readListEnv("CORS_ALLOWED_ORIGINS", c.AllowedOrigins)
	}
	if v := getEnv("OAUTH_REDIRECT_BASE_URL", ""); v != "" {
		c.OAuthRedirectBase = v
	}
	if v := getEnv("DATABASE_URI", ""); v != "" {
		c.DatabaseURI = v
	}
	if v := getEnv("DB_HOST", ""); v != "" {
		c.DBHost = v
	}
	if v := getEnv("DB_PORT", ""); v != "" {
		c.DBPort = v
	}
	if v := getEnv("DB_USER", ""); v != "" {
		c.DBUser = v
	}
	if v := getEnv("DB_PASSWORD", ""); v != "" {
		c.DBPassword = v
	}
	if v := getEnv("DB_NAME", ""); v != "" {
		c.DBName = v
	}
	if v, ok := os.LookupEnv("REDIS_HOST"); ok {
		c.RedisHost = v
	}
	if v := getEnv("REDIS_PORT", ""); v != "" {
		c.RedisPort = mustParseInt(v)
	}
	if v := getEnv("REDIS_DB", ""); v != "" {
		c.RedisDB = mustParseInt(v)
	}
	if v := getEnv("REDIS_PASSWORD", ""); v != "" {
		c.RedisPassword = v
	}
	if v := getEnv("GITHUB_CLIENT_ID", ""); v != "" {
		c.GitHubClientID = v
	}
	if v := getEnv("GITHUB_CLIENT_SECRET", ""); v != "" {
		c.GitHubClientSecret = v
	}
	if v := getEnv("GOOGLE_CLIENT_ID", ""); v != "" {
		c.GoogleClientID = v
	}
	if v := getEnv("GOOGLE_CLIENT_SECRET", ""); v != "" {
		c.GoogleClientSecret = v
	}
	// Logging env overrides
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("LOG_PATH", ""); v != "" {
		c.LogPath = v
	}
	if v := getEnv("LOG_MAX_SIZE_MB", ""); v != "" {
		c.LogMaxSizeMB = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_BACKUPS", ""); v != "" {
		c.LogMaxBackups = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_AGE_DAYS", ""); v != "" {
		c.LogMaxAgeDays = mustParseInt(v)
	}
	if v := getEnv("LOG_COMPRESS", ""); v != "" {
		c.LogCompress = v == "true"
	}
	// Point rule overrides
	if v := getEnv("POINTS_DAILY_LOGIN", ""); v != "" {
		c.DailyLoginPoints = mustParseInt(v)
	}
	if v := getEnv("POINTS_TASK_COMPLETE", ""); v != "" {
		c.TaskCompletePoints = mustParseInt(v)
	}
	if v := getEnv("POINTS_CHALLENGE_BONUS", ""); v != "" {
		c.ChallengeBonusPoints = mustParseInt(v)
	}
	if v := getEnv("POINTS_CHALLENGE_GOAL", ""); v != "" {
		c.DailyChallengeGoal = mustParseInt(v)
	}
	if v := getEnv("POINTS_TASK_CREATE", ""); v != "" {
		c.TaskCreatePoints = mustParseInt(v)
	}
	if v := getEnv("POINTS_TASK_DELETE_PENALTY", ""); v != "" {
		c.TaskDeletePenalty = mustParseInt(v)
	}
	if v := getEnv("POINTS_SUBTASK_DELETE_PENALTY", ""); v != "" {
		c.SubtaskDeletePenalty = mustParseInt(v)
	}
	if v := getEnv("POINTS_SUBTASK_COMPLETE", ""); v != "" {
		c.SubtaskCompletePoints = mustParseInt(v)
	}
	if v := getEnv("LEADERBOARD_SIZE", ""); v != "" {
		c.LeaderboardSize = mustParseInt(v)
	}
	if v := getEnv("STORE_TIMEOUT_SEC", ""); v != "" {
		c.StoreTimeoutSec = mustParseInt(v)
	}
	if v := getEnv("REMINDER_INTERVAL_SEC", ""); v != "" {
		c.ReminderIntervalSec = mustParseInt(v)
	}
}

func mustParseInt(val string) int {
	i, err := strconv.Atoi(val)
	if err != nil {
		log.Fatalf("invalid integer value %s: %v", val, err)
	}
	return i
}

func readListEnv(key string, defaults []string) []string {
	if raw := os.Getenv(key); raw != "" {
		return splitAndTrim(raw)
	}
	return defaults
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
