package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/cppla/taskquest/config"
	"github.com/cppla/taskquest/controllers"
	"github.com/cppla/taskquest/middleware"
	"github.com/cppla/taskquest/services"
	"github.com/cppla/taskquest/store"
	"github.com/cppla/taskquest/utils"
)

// Deps are the long-lived collaborators the handlers share.
type Deps struct {
	Store       store.Store
	Engine      *services.Engine
	Leaderboard services.LeaderboardReader
	Hub         *services.Hub
	Feed        *store.Feed
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(deps Deps) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}
	if deps.Leaderboard == nil {
		deps.Leaderboard = deps.Store
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		// fallback to default recovery if logger failed to init
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	authController := controllers.NewAuthController(deps.Store, deps.Engine)
	taskController := controllers.NewTaskController(deps.Store, deps.Engine)
	pointsController := controllers.NewPointsController(deps.Engine, deps.Leaderboard)
	prefController := controllers.NewPreferenceController(deps.Store)
	statsController := controllers.NewStatsController(deps.Store, deps.Engine)

	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware())
	authGroup.POST("/register", authController.Register)
	authGroup.POST("/login", authController.Login)
	authGroup.GET("/oauth/:provider/login", authController.OAuthRedirect)
	authGroup.GET("/oauth/:provider/callback", authController.OAuthCallback)
	authGroup.POST("/logout", middleware.AuthRequired(), authController.Logout)
	authGroup.GET("/me", middleware.AuthRequired(), authController.Me)
	authGroup.PATCH("/profile", middleware.AuthRequired(), authController.UpdateProfile)

	// Public stats endpoint
	api.GET("/stats", statsController.GetStats)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired(), middleware.RateLimitMiddleware())

	protected.POST("/session/start", pointsController.StartSession)
	protected.GET("/points", pointsController.GetPoints)
	protected.POST("/points/reconcile", pointsController.Reconcile)
	protected.GET("/leaderboard", pointsController.Leaderboard)

	protected.GET("/tasks", taskController.ListTasks)
	protected.POST("/tasks", taskController.CreateTask)
	protected.GET("/tasks/:id", taskController.GetTask)
	protected.PUT("/tasks/:id", taskController.UpdateTask)
	protected.DELETE("/tasks/:id", taskController.DeleteTask)
	protected.PATCH("/tasks/:id/complete", taskController.CompleteTask)
	protected.POST("/tasks/:id/subtasks", taskController.CreateSubtask)

	protected.GET("/subtasks/:id", taskController.GetSubtask)
	protected.PUT("/subtasks/:id", taskController.UpdateSubtask)
	protected.DELETE("/subtasks/:id", taskController.DeleteSubtask)
	protected.PATCH("/subtasks/:id/complete", taskController.CompleteSubtask)

	protected.GET("/preferences", prefController.GetPreferences)
	protected.PUT("/preferences", prefController.UpdatePreferences)

	if deps.Hub != nil && deps.Feed != nil {
		liveController := controllers.NewLiveController(deps.Engine, deps.Hub, deps.Feed)
		// long-lived; kept out of the rate limited group
		api.GET("/ws", middleware.AuthRequired(), liveController.Stream)
	}

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
	})

	return r
}
