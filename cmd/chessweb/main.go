package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	appcfg "chessweb/internal/config"
	"chessweb/internal/msgcat"
	"chessweb/internal/obslog"
	"chessweb/internal/service/account"
	"chessweb/internal/service/game"
	"chessweb/internal/service/session"
	"chessweb/internal/web"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var (
		gameRepo    game.Repository
		accountRepo account.Repository
	)
	if cfg.DatabaseURL != "" {
		pgGames, err := game.NewPostgresRepository(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("game repository init failed", zap.Error(err))
		}
		defer func() { _ = pgGames.Close() }()
		if err := pgGames.EnsureSchema(ctx); err != nil {
			logger.Fatal("board schema migration failed", zap.Error(err))
		}

		pgAccounts, err := account.NewPostgresRepository(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("account repository init failed", zap.Error(err))
		}
		defer func() { _ = pgAccounts.Close() }()
		if err := pgAccounts.EnsureSchema(ctx); err != nil {
			logger.Fatal("user schema migration failed", zap.Error(err))
		}

		gameRepo = pgGames
		accountRepo = pgAccounts
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory storage (state is lost on restart)")
		gameRepo = game.NewMemoryRepository()
		accountRepo = account.NewMemoryRepository()
	}

	sessionTTL := time.Duration(cfg.SessionTTLSec) * time.Second
	var sessions session.Store
	if cfg.RedisURL != "" {
		rs, err := session.NewRedisStore(cfg.RedisURL, sessionTTL)
		if err != nil {
			logger.Fatal("session store init failed", zap.Error(err))
		}
		defer func() { _ = rs.Close() }()
		sessions = rs
	} else {
		logger.Warn("REDIS_URL not set, using in-memory sessions")
		sessions = session.NewMemoryStore(sessionTTL)
	}

	messages, err := msgcat.New(cfg.MessageOverrideDir)
	if err != nil {
		logger.Fatal("message catalog init failed", zap.Error(err))
	}

	games, err := game.NewService(gameRepo, logger)
	if err != nil {
		logger.Fatal("game service init failed", zap.Error(err))
	}
	accounts, err := account.NewService(accountRepo, cfg.BcryptCost, logger)
	if err != nil {
		logger.Fatal("account service init failed", zap.Error(err))
	}

	server, err := web.New(cfg, accounts, games, sessions, messages, logger)
	if err != nil {
		logger.Fatal("web server init failed", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Fatal("http server failed", zap.Error(err))
		}
		return
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
