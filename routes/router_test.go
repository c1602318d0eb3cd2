package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/taskquest/config"
	"github.com/cppla/taskquest/services"
	"github.com/cppla/taskquest/store"
	"github.com/cppla/taskquest/utils"
)

func TestMain(m *testing.M) {
	cfg := config.Defaults("router-secret")
	cfg.GinMode = "test"
	cfg.GinPath = ""
	cfg.Timezone = "UTC"
	cfg.RateLimitPerMinute = 6000
	config.Set(cfg)
	utils.SetRedis(nil)
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type app struct {
	t      *testing.T
	router *gin.Engine
	store  *store.MemoryStore
	clock  *utils.FakeClock
}

func newApp(t *testing.T) *app {
	t.Helper()
	clock := utils.NewFakeClock(time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC))
	st := store.NewMemoryStore().WithClock(clock)
	hub := services.NewHub(clock)
	feed := store.NewFeed()
	engine := services.NewEngine(st,
		services.WithConfig(config.Get()),
		services.WithClock(clock),
		services.WithNotifier(hub),
		services.WithFeed(feed),
	)
	r := SetupRouter(Deps{Store: st, Engine: engine, Hub: hub, Feed: feed})
	return &app{t: t, router: r, store: st, clock: clock}
}

func (a *app) do(method, path, token string, body interface{}) (int, envelope) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

type sessionData struct {
	Token string `json:"token"`
	User  struct {
		ID     uint   `json:"id"`
		Points int    `json:"points"`
		Streak int    `json:"streak"`
		Theme  string `json:"theme"`
	} `json:"user"`
	State map[string]interface{} `json:"state"`
}

func (a *app) register(name string) sessionData {
	a.t.Helper()
	status, env := a.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"name": name, "email": name + "@example.com", "password": "secret1", "confirm": "secret1",
	})
	require.Equal(a.t, http.StatusOK, status, env.Message)
	return decode[sessionData](a.t, env.Data)
}

type pointsData struct {
	Delta             int `json:"delta"`
	Points            int `json:"points"`
	Streak            int `json:"streak"`
	ChallengeProgress int `json:"challenge_progress"`
}

func (a *app) createTask(token, title, date string) uint {
	a.t.Helper()
	status, env := a.do(http.MethodPost, "/api/v1/tasks", token, gin.H{
		"title": title, "date": date, "priority": "high", "tags": []string{"home, chores"},
	})
	require.Equal(a.t, http.StatusCreated, status, env.Message)
	data := decode[struct {
		Task struct {
			ID uint `json:"id"`
		} `json:"task"`
	}](a.t, env.Data)
	return data.Task.ID
}

func (a *app) complete(token string, id uint, completed bool) pointsData {
	a.t.Helper()
	status, env := a.do(http.MethodPatch, fmt.Sprintf("/api/v1/tasks/%d/complete", id), token, gin.H{"completed": completed})
	require.Equal(a.t, http.StatusOK, status, env.Message)
	return decode[struct {
		Points pointsData `json:"points"`
	}](a.t, env.Data).Points
}

func TestHealthAndNoRoute(t *testing.T) {
	a := newApp(t)

	status, env := a.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, env.Code)

	status, env = a.do(http.MethodGet, "/api/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, 40400, env.Code)
}

func TestRegisterGrantsLoginBonusOnce(t *testing.T) {
	a := newApp(t)
	s := a.register("alice")

	require.NotEmpty(t, s.Token)
	assert.Equal(t, 10, s.User.Points)
	assert.Equal(t, 1, s.User.Streak)
	assert.Equal(t, "light", s.User.Theme)

	// same day: the explicit session start grants nothing
	status, env := a.do(http.MethodPost, "/api/v1/session/start", s.Token, nil)
	require.Equal(t, http.StatusOK, status)
	state := decode[map[string]interface{}](t, env.Data)
	assert.EqualValues(t, 10, state["points"])
	assert.EqualValues(t, 1, state["streak"])
	assert.Equal(t, "2024-05-10", state["today"])

	// next day: bonus again, streak grows
	a.clock.Advance(24 * time.Hour)
	_, env = a.do(http.MethodPost, "/api/v1/session/start", s.Token, nil)
	state = decode[map[string]interface{}](t, env.Data)
	assert.EqualValues(t, 20, state["points"])
	assert.EqualValues(t, 2, state["streak"])
}

func TestRegisterValidation(t *testing.T) {
	a := newApp(t)
	a.register("alice")

	cases := []struct {
		name   string
		body   gin.H
		status int
		code   int
	}{
		{"mismatch", gin.H{"name": "bob", "email": "bob@example.com", "password": "secret1", "confirm": "other"}, http.StatusBadRequest, 40002},
		{"short password", gin.H{"name": "bob", "email": "bob@example.com", "password": "123", "confirm": "123"}, http.StatusBadRequest, 40002},
		{"bad email", gin.H{"name": "bob", "email": "not-an-email", "password": "secret1", "confirm": "secret1"}, http.StatusBadRequest, 40002},
		{"duplicate", gin.H{"name": "alice2", "email": "ALICE@example.com", "password": "secret1", "confirm": "secret1"}, http.StatusConflict, 40901},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, env := a.do(http.MethodPost, "/api/v1/auth/register", "", tc.body)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, env.Code)
		})
	}
}

func TestLoginAndLogout(t *testing.T) {
	a := newApp(t)
	a.register("alice")

	status, env := a.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "alice@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, 40106, env.Code)

	status, env = a.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "alice@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, status)
	s := decode[sessionData](t, env.Data)
	assert.Equal(t, 10, s.User.Points, "second login on the same day adds nothing")

	status, _ = a.do(http.MethodGet, "/api/v1/auth/me", s.Token, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = a.do(http.MethodPost, "/api/v1/auth/logout", s.Token, nil)
	assert.Equal(t, http.StatusOK, status)

	status, env = a.do(http.MethodGet, "/api/v1/auth/me", s.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.NotZero(t, env.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	a := newApp(t)
	for _, path := range []string{"/api/v1/points", "/api/v1/tasks", "/api/v1/leaderboard", "/api/v1/preferences"} {
		status, _ := a.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, status, path)
	}
}

func TestDailyChallengeThroughHTTP(t *testing.T) {
	a := newApp(t)
	s := a.register("alice")

	ids := make([]uint, 0, 3)
	for i := 0; i < 3; i++ {
		ids = append(ids, a.createTask(s.Token, fmt.Sprintf("task %d", i), "2024-05-10T18:00:00Z"))
	}
	// 10 login + 3 x 10 creation
	assert.Equal(t, 20, a.complete(s.Token, ids[0], true).Delta)
	assert.Equal(t, 20, a.complete(s.Token, ids[1], true).Delta)
	res := a.complete(s.Token, ids[2], true)
	assert.Equal(t, 70, res.Delta)
	assert.Equal(t, 40+110, res.Points)
	assert.Equal(t, 3, res.ChallengeProgress)

	status, env := a.do(http.MethodGet, "/api/v1/points", s.Token, nil)
	require.Equal(t, http.StatusOK, status)
	state := decode[map[string]interface{}](t, env.Data)
	assert.Equal(t, true, state["challenge_complete"])
	assert.EqualValues(t, 3, state["challenge_progress"])

	res = a.complete(s.Token, ids[1], false)
	assert.Equal(t, -70, res.Delta)
	assert.Equal(t, 2, res.ChallengeProgress)

	// repeating the stored state is a no-op
	res = a.complete(s.Token, ids[1], false)
	assert.Equal(t, 0, res.Delta)
	assert.Equal(t, 80, res.Points)
}

func TestTaskCRUD(t *testing.T) {
	a := newApp(t)
	s := a.register("alice")
	id := a.createTask(s.Token, "<b>Buy milk</b>", "2024-05-10 17:30")

	status, env := a.do(http.MethodGet, fmt.Sprintf("/api/v1/tasks/%d", id), s.Token, nil)
	require.Equal(t, http.StatusOK, status)
	task := decode[map[string]interface{}](t, env.Data)
	assert.Equal(t, "Buy milk", task["title"])
	assert.Equal(t, "High", task["priority"])
	assert.Equal(t, "home,chores", task["tags"])

	status, env = a.do(http.MethodPut, fmt.Sprintf("/api/v1/tasks/%d", id), s.Token, gin.H{
		"title": "Buy oat milk", "date": "2024-05-11", "priority": "Low", "category": "errands",
	})
	require.Equal(t, http.StatusOK, status, env.Message)
	task = decode[map[string]interface{}](t, env.Data)
	assert.Equal(t, "Buy oat milk", task["title"])
	assert.Equal(t, "errands", task["category"])

	status, env = a.do(http.MethodGet, "/api/v1/tasks?category=errands&priority=low", s.Token, nil)
	require.Equal(t, http.StatusOK, status)
	list := decode[struct {
		Total int `json:"total"`
	}](t, env.Data)
	assert.Equal(t, 1, list.Total)

	status, env = a.do(http.MethodGet, "/api/v1/tasks?status=bogus", s.Token, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 40023, env.Code)

	status, env = a.do(http.MethodPost, "/api/v1/tasks", s.Token, gin.H{"title": "x", "date": "someday"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 40021, env.Code)

	status, env = a.do(http.MethodDelete, fmt.Sprintf("/api/v1/tasks/%d", id), s.Token, nil)
	require.Equal(t, http.StatusOK, status)
	res := decode[struct {
		Points pointsData `json:"points"`
	}](t, env.Data).Points
	assert.Equal(t, -10, res.Delta)

	status, env = a.do(http.MethodGet, fmt.Sprintf("/api/v1/tasks/%d", id), s.Token, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, 40410, env.Code)
}

func TestTasksAreScopedToOwner(t *testing.T) {
	a := newApp(t)
	alice := a.register("alice")
	bob := a.register("bob")
	id := a.createTask(alice.Token, "private", "2024-05-10")

	status, _ := a.do(http.MethodGet, fmt.Sprintf("/api/v1/tasks/%d", id), bob.Token, nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = a.do(http.MethodPatch, fmt.Sprintf("/api/v1/tasks/%d/complete", id), bob.Token, gin.H{"completed": true})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSubtaskFlatRewards(t *testing.T) {
	a := newApp(t)
	s := a.register("alice")
	taskID := a.createTask(s.Token, "parent", "2024-05-10T12:00:00Z")

	status, env := a.do(http.MethodPost, fmt.Sprintf("/api/v1/tasks/%d/subtasks", taskID), s.Token, gin.H{"title": "step one"})
	require.Equal(t, http.StatusCreated, status, env.Message)
	sub := decode[struct {
		ID uint `json:"id"`
	}](t, env.Data)

	status, env = a.do(http.MethodPatch, fmt.Sprintf("/api/v1/subtasks/%d/complete", sub.ID), s.Token, gin.H{"completed": true})
	require.Equal(t, http.StatusOK, status)
	res := decode[struct {
		Points pointsData `json:"points"`
	}](t, env.Data).Points
	assert.Equal(t, 10, res.Delta)
	assert.Equal(t, 0, res.ChallengeProgress)

	status, env = a.do(http.MethodPatch, fmt.Sprintf("/api/v1/subtasks/%d/complete", sub.ID), s.Token, gin.H{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 40025, env.Code)

	status, env = a.do(http.MethodDelete, fmt.Sprintf("/api/v1/subtasks/%d", sub.ID), s.Token, nil)
	require.Equal(t, http.StatusOK, status)
	res = decode[struct {
		Points pointsData `json:"points"`
	}](t, env.Data).Points
	assert.Equal(t, -5, res.Delta)
}

func TestLeaderboardRanksUsers(t *testing.T) {
	a := newApp(t)
	alice := a.register("alice")
	bob := a.register("bob")
	a.createTask(bob.Token, "extra", "2024-05-12")

	status, env := a.do(http.MethodGet, "/api/v1/leaderboard", alice.Token, nil)
	require.Equal(t, http.StatusOK, status)
	board := decode[struct {
		Entries []struct {
			UserID uint   `json:"user_id"`
			Name   string `json:"name"`
			Points int    `json:"points"`
		} `json:"entries"`
		Me struct {
			Rank int `json:"rank"`
		} `json:"me"`
	}](t, env.Data)
	require.Len(t, board.Entries, 2)
	assert.Equal(t, "bob", board.Entries[0].Name)
	assert.Equal(t, 20, board.Entries[0].Points)
	assert.Equal(t, 2, board.Me.Rank)

	status, env = a.do(http.MethodGet, "/api/v1/leaderboard?limit=0", alice.Token, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 40040, env.Code)
}

func TestPreferences(t *testing.T) {
	a := newApp(t)
	s := a.register("alice")

	status, env := a.do(http.MethodGet, "/api/v1/preferences", s.Token, nil)
	require.Equal(t, http.StatusOK, status)
	pref := decode[map[string]interface{}](t, env.Data)
	assert.Equal(t, true, pref["task_reminders"])
	assert.EqualValues(t, 10, pref["task_reminder_minutes"])

	status, env = a.do(http.MethodPut, "/api/v1/preferences", s.Token, gin.H{"task_reminder_minutes": 30, "daily_summary": false})
	require.Equal(t, http.StatusOK, status)
	pref = decode[map[string]interface{}](t, env.Data)
	assert.EqualValues(t, 30, pref["task_reminder_minutes"])
	assert.Equal(t, false, pref["daily_summary"])
	assert.Equal(t, true, pref["task_reminders"])

	status, env = a.do(http.MethodPut, "/api/v1/preferences", s.Token, gin.H{"task_reminder_minutes": 5000})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 40051, env.Code)
}

func TestStatsIsPublic(t *testing.T) {
	a := newApp(t)
	s := a.register("alice")
	id := a.createTask(s.Token, "one", "2024-05-10T10:00:00Z")
	a.complete(s.Token, id, true)

	status, env := a.do(http.MethodGet, "/api/v1/stats", "", nil)
	require.Equal(t, http.StatusOK, status)
	counts := decode[store.Counts](t, env.Data)
	assert.EqualValues(t, 1, counts.Users)
	assert.EqualValues(t, 1, counts.Tasks)
	assert.EqualValues(t, 1, counts.CompletedToday)
}

func TestProfileUpdateRenamesLeaderboardEntry(t *testing.T) {
	a := newApp(t)
	s := a.register("alice")

	status, env := a.do(http.MethodPatch, "/api/v1/auth/profile", s.Token, gin.H{"name": "Alicia", "theme": "dark"})
	require.Equal(t, http.StatusOK, status, env.Message)

	top, err := a.store.TopEntries(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "Alicia", top[0].Name)

	status, env = a.do(http.MethodPatch, "/api/v1/auth/profile", s.Token, gin.H{"theme": "neon"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 40030, env.Code)
}
