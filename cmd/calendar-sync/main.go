package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/slot-booking/internal/calendar"
	"github.com/hackgods/slot-booking/internal/config"
	"github.com/hackgods/slot-booking/internal/db"
	"github.com/hackgods/slot-booking/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Config{Service: "calendar-sync"}).Fatal("config load error", "error", err)
	}

	log := logger.New(logger.Config{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: "calendar-sync",
	})
	if !cfg.CalendarEnabled() {
		log.Fatal("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required")
	}
	log.Info("calendar-sync starting up", "env", cfg.Env, "interval", cfg.CalendarSyncInterval, "horizon", cfg.CalendarSyncHorizon)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{AppName: "calendar-sync", MaxConns: 4})
	cancelPg()
	if err != nil {
		log.Fatal("postgres connection error", "error", err)
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	source := calendar.NewGoogleSource(calendar.NewGoogleConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL))
	syncer := calendar.NewSyncer(calendar.NewPgRepository(pgPool), source, cfg.CalendarSyncHorizon, log)

	// Run once at startup
	runOnce(rootCtx, log, syncer)

	ticker := time.NewTicker(cfg.CalendarSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info("shutdown signal received, stopping calendar sync")
			return
		case <-ticker.C:
			runOnce(rootCtx, log, syncer)
		}
	}
}

func runOnce(ctx context.Context, log *logger.Logger, syncer *calendar.Syncer) {
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	start := time.Now()
	synced, err := syncer.RunOnce(runCtx, start)
	if err != nil {
		log.Error("calendar sync run error", "error", err)
		return
	}
	log.Info("calendar sync run complete", "connections", synced, "took", time.Since(start))
}
