// Command ironhold runs the persistent-world game core: the turn
// accrual scheduler and the HTTP/websocket surface over one shared
// SQLite state.
package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/talgya/ironhold/internal/accrual"
	"github.com/talgya/ironhold/internal/api"
	"github.com/talgya/ironhold/internal/bonus"
	"github.com/talgya/ironhold/internal/config"
	"github.com/talgya/ironhold/internal/guard"
	"github.com/talgya/ironhold/internal/integrity"
	"github.com/talgya/ironhold/internal/ledger"
	"github.com/talgya/ironhold/internal/mission"
	"github.com/talgya/ironhold/internal/persistence"
	"github.com/talgya/ironhold/internal/power"
	"github.com/talgya/ironhold/internal/vault"
)

func main() {
	configPath := flag.String("config", "", "yaml tuning overrides (optional)")
	dbPath := flag.String("db", "data/ironhold.db", "sqlite database path")
	port := flag.Int("port", 8080, "api listen port")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	slog.Info("tuning loaded",
		"turn_interval", cfg.Turn.Interval(),
		"min_success_ratio", cfg.Mission.MinSuccessRatio,
	)

	os.MkdirAll(filepath.Dir(*dbPath), 0755)
	db, err := persistence.Open(*dbPath)
	if err != nil {
		slog.Error("failed to open database", "path", *dbPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", *dbPath)

	locks := persistence.NewLockRegistry()
	audit := ledger.New(db)
	bonuses := bonus.NewAggregator(db, cfg.Alliance)
	health := integrity.NewStore(db, cfg.Integrity)
	powers := power.NewCalculator(cfg, bonuses, health)
	vaults := vault.NewManager(cfg.Vault, db, locks, audit)
	antiFarm := guard.New(cfg.Guard, db)

	turns := accrual.NewEngine(cfg, db, locks, bonuses, health, vaults, audit)
	feed := api.NewHub()
	missions := mission.NewEngine(cfg, db, locks, turns, powers, antiFarm, health, feed)

	server := &api.Server{
		Port:     *port,
		DB:       db,
		Accrual:  turns,
		Missions: missions,
		Vaults:   vaults,
		Feed:     feed,
	}
	server.Start()

	scheduler := accrual.NewScheduler(turns, cfg.Turn.Interval())
	go scheduler.Run()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	scheduler.Stop()
}
