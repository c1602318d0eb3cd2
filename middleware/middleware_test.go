package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/taskquest/config"
	"github.com/cppla/taskquest/utils"
)

func TestMain(m *testing.M) {
	cfg := config.Defaults("middleware-secret")
	cfg.RateLimitPerMinute = 4
	config.Set(cfg)
	utils.SetRedis(nil)
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func protectedRouter() *gin.Engine {
	r := gin.New()
	r.GET("/me", AuthRequired(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id": c.GetUint(ContextUserIDKey),
			"email":   c.GetString(ContextEmailKey),
		})
	})
	return r
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRequired(t *testing.T) {
	r := protectedRouter()
	valid, err := utils.GenerateToken(7, "u@example.com", time.Hour)
	require.NoError(t, err)
	revoked, err := utils.GenerateToken(8, "r@example.com", 2*time.Hour)
	require.NoError(t, err)
	utils.BlacklistToken(revoked, time.Now().Add(time.Hour))

	cases := []struct {
		name   string
		header string
		query  string
		status int
		body   string
	}{
		{"missing", "", "", http.StatusUnauthorized, "40101"},
		{"wrong scheme", "Basic abc", "", http.StatusUnauthorized, "40102"},
		{"empty bearer", "Bearer  ", "", http.StatusUnauthorized, "40103"},
		{"revoked", "Bearer " + revoked, "", http.StatusUnauthorized, "40104"},
		{"garbage", "Bearer abc.def.ghi", "", http.StatusUnauthorized, "40105"},
		{"header", "Bearer " + valid, "", http.StatusOK, `"user_id":7`},
		{"query token", "", "?access_token=" + valid, http.StatusOK, `"email":"u@example.com"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := serve(r, req)
			assert.Equal(t, tc.status, w.Code)
			assert.Contains(t, w.Body.String(), tc.body)
		})
	}
}

func TestRequestIDGeneratedOrReused(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextRequestIDKey))
	})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := w.Header().Get("X-Request-ID")
	assert.NotEmpty(t, generated)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w = serve(r, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
	assert.Equal(t, "abc-123", w.Body.String())
}

func TestRateLimitPerClient(t *testing.T) {
	r := gin.New()
	r.GET("/", RateLimitMiddleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	request := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		return serve(r, req).Code
	}

	// burst is half the per-minute rate
	assert.Equal(t, http.StatusOK, request("198.51.100.1"))
	assert.Equal(t, http.StatusOK, request("198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, request("198.51.100.1"))
	assert.Equal(t, http.StatusOK, request("198.51.100.2"), "other clients have their own bucket")
}
