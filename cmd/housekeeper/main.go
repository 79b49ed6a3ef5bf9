package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"hotelcore/internal/adapters/observability"
	redisad "hotelcore/internal/adapters/redis"
	"hotelcore/internal/app"
	"hotelcore/internal/shared"
	mysqlrepo "hotelcore/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	log.Logger = observability.NewLogger(cfg.AppEnv)

	log.Info().
		Dur("interval", cfg.SweepInterval).
		Int("workers", cfg.SweepWorkers).
		Msg("housekeeper starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	svc := app.NewHousekeepingService(repo, repo, cache, cfg.SweepWorkers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	// Sweep at startup, then on the interval.
	for {
		moved, err := svc.Sweep(ctx, time.Now().UTC())
		if err != nil {
			log.Warn().Err(err).Msg("sweep failed")
		} else {
			log.Info().Int("moved", moved).Msg("sweep completed")
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("housekeeper stopping")
			return
		case <-ticker.C:
		}
	}
}
