// Package main provides the Set game server binary: the in-memory game
// directory behind the JSON HTTP API.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/setgame/internal/config"
	"github.com/cory-johannsen/setgame/internal/game/rng"
	"github.com/cory-johannsen/setgame/internal/game/session"
	"github.com/cory-johannsen/setgame/internal/observability"
	"github.com/cory-johannsen/setgame/internal/server"
	"github.com/cory-johannsen/setgame/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting set game server",
		zap.String("http_addr", cfg.HTTP.Addr()),
	)

	directory := session.NewDirectory(rng.NewCryptoSource())

	// Optional registration audit store
	var recorder server.IdentityRecorder
	var pool *postgres.Pool
	if cfg.Database.Enabled {
		dbStart := time.Now()
		pool, err = postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
		recorder = postgres.NewPlayerRepository(pool.DB())
	}

	srv := server.New(cfg.HTTP, directory, recorder, logger)

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("http", srv)
	if pool != nil {
		lifecycle.Add("database", &server.FuncService{
			StartFn: func() error { return nil },
			StopFn:  pool.Close,
		})
	}

	logger.Info("server initialized", zap.Duration("elapsed", time.Since(start)))

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("lifecycle error", zap.Error(err))
	}
}
