package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cppla/taskquest/config"
	"github.com/cppla/taskquest/models"
	"github.com/cppla/taskquest/services"
	"github.com/cppla/taskquest/store"
	"github.com/cppla/taskquest/utils"
)

// PointsController exposes the accounting state and the leaderboard.
type PointsController struct {
	engine *services.Engine
	board  services.LeaderboardReader
}

// NewPointsController creates a new PointsController instance.
func NewPointsController(engine *services.Engine, board services.LeaderboardReader) *PointsController {
	return &PointsController{engine: engine, board: board}
}

// StartSession grants the daily login bonus if due and returns the reconciled state.
func (p *PointsController) StartSession(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}
	state, err := p.engine.StartSession(ctx.Request.Context(), userID)
	if err != nil {
		storeError(ctx, err, 50040, "failed to start session")
		return
	}
	utils.Success(ctx, stateResponse(state))
}

// GetPoints returns the current points, streak and challenge state.
func (p *PointsController) GetPoints(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}
	state, err := p.engine.State(ctx.Request.Context(), userID)
	if err != nil {
		storeError(ctx, err, 50041, "failed to load points")
		return
	}
	utils.Success(ctx, stateResponse(state))
}

// Reconcile repairs stored challenge progress from today's tasks.
func (p *PointsController) Reconcile(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}
	res, err := p.engine.Reconcile(ctx.Request.Context(), userID)
	if err != nil {
		storeError(ctx, err, 50042, "failed to reconcile")
		return
	}
	utils.Success(ctx, res)
}

// Leaderboard returns the top entries and the caller's own standing.
func (p *PointsController) Leaderboard(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}

	limit := config.Get().LeaderboardSize
	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			utils.Error(ctx, http.StatusBadRequest, 40040, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	top, err := p.board.TopEntries(ctx.Request.Context(), limit)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50043, "failed to load leaderboard")
		return
	}
	if top == nil {
		top = []models.LeaderboardEntry{}
	}

	resp := gin.H{"entries": top, "me": nil}
	standing, err := p.board.Standing(ctx.Request.Context(), userID)
	switch {
	case err == nil:
		resp["me"] = standing
	case !errors.Is(err, store.ErrNotFound):
		utils.Sugar.Warnf("leaderboard standing for user %d failed: %v", userID, err)
	}
	utils.Success(ctx, resp)
}

func stateResponse(s services.State) gin.H {
	return gin.H{
		"points":             s.Points,
		"streak":             s.Streak,
		"last_login_date":    s.LastLoginDate,
		"challenge_progress": s.ChallengeProgress,
		"challenge_goal":     s.ChallengeGoal,
		"challenge_complete": s.ChallengeComplete(),
		"completed_today":    s.CompletedToday,
		"today":              s.Today,
	}
}
