package main

import (
	"context"
	"time"

	"github.com/cppla/taskquest/config"
	"github.com/cppla/taskquest/routes"
	"github.com/cppla/taskquest/services"
	"github.com/cppla/taskquest/store"
	"github.com/cppla/taskquest/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	db := config.InitDatabase(store.Models()...)
	st := store.NewGormStore(db)

	// The SQL table is the source of truth; redis fronts it when configured.
	var caches []services.LeaderboardCache
	if rb := services.NewRedisLeaderboard(utils.GetRedis()); rb != nil {
		caches = append(caches, rb)
	}
	board := services.NewLeaderboardChain(st, caches...)
	syncCtx, syncCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := board.Sync(syncCtx); err != nil {
		utils.Sugar.Warnf("leaderboard sync failed, reads fall back to sql: %v", err)
	}
	syncCancel()

	hub := services.NewHub(utils.RealClock{})
	feed := store.NewFeed()
	engine := services.NewEngine(st,
		services.WithConfig(cfg),
		services.WithNotifier(hub),
		services.WithFeed(feed),
		services.WithLeaderboard(board),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	services.NewReminderScheduler(st, hub, utils.RealClock{}, cfg).Start(ctx)

	r := routes.SetupRouter(routes.Deps{
		Store:       st,
		Engine:      engine,
		Leaderboard: board,
		Hub:         hub,
		Feed:        feed,
	})

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r, cancel); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
