package controllers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/taskquest/services"
	"github.com/cppla/taskquest/store"
	"github.com/cppla/taskquest/utils"
)

const (
	statsCacheKey = "stats:counts"
	statsCacheTTL = 30 * time.Second
)

// StatsController provides public aggregate counts.
type StatsController struct {
	store  store.Store
	engine *services.Engine
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(st store.Store, engine *services.Engine) *StatsController {
	return &StatsController{store: st, engine: engine}
}

// GetStats returns user, task and completed-today counts.
func (s *StatsController) GetStats(ctx *gin.Context) {
	var counts store.Counts
	if utils.CacheGetJSON(statsCacheKey, &counts) {
		utils.Success(ctx, counts)
		return
	}

	start, end := utils.DayBounds(s.engine.Now(), s.engine.Location())
	counts, err := s.store.Counts(ctx.Request.Context(), start, end)
	if err != nil {
		// Fallback to zeros instead of failing the whole endpoint
		utils.Sugar.Warnf("stats counts failed: %v", err)
		counts = store.Counts{}
	} else {
		utils.CacheSetJSON(statsCacheKey, counts, statsCacheTTL)
	}
	utils.Success(ctx, counts)
}
