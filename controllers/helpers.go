package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/taskquest/middleware"
	"github.com/cppla/taskquest/store"
	"github.com/cppla/taskquest/utils"
)

func getUserID(ctx *gin.Context) (uint, bool) {
	value, exists := ctx.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		return uint(v), true
	case int64:
		return uint(v), true
	case float64:
		return uint(v), true
	default:
		return 0, false
	}
}

// mustUserID answers 401 and reports false when the request carries no user.
func mustUserID(ctx *gin.Context) (uint, bool) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
	}
	return userID, ok
}

func idParam(ctx *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil || id == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40010, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// storeError maps store failures onto the response envelope. code is used for unexpected errors.
func storeError(ctx *gin.Context, err error, code int, message string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		utils.Error(ctx, http.StatusNotFound, 40410, "not found")
	case errors.Is(err, store.ErrDuplicate):
		utils.Error(ctx, http.StatusConflict, 40910, "already exists")
	default:
		utils.Error(ctx, http.StatusInternalServerError, code, message)
	}
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04", utils.DateLayout}

// parseDate accepts RFC 3339 or a zone-less local date-time / date, interpreted in loc.
func parseDate(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, raw, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func truncateRunes(s string, n int) string {
	rs := []rune(s)
	if len(rs) > n {
		return string(rs[:n])
	}
	return s
}
