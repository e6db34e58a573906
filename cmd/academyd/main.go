// Command academyd serves the academy authentication API and enforces the
// role-based route policy in front of every page.
//
// @title        Academy Auth API
// @version      1.0
// @description  Authentication and role-based route access for the academy.
// @BasePath     /
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/chaiacademy/academy/internal/api"
	"github.com/chaiacademy/academy/internal/core/ports"
	mongodb "github.com/chaiacademy/academy/internal/infrastructure/db/mongo"
	redisdb "github.com/chaiacademy/academy/internal/infrastructure/db/redis"
	"github.com/chaiacademy/academy/internal/pkg/config"
	"github.com/chaiacademy/academy/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  !cfg.IsProduction(),
		Service: "academyd",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("academyd stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	client, db, err := mongodb.Connect(ctx, mongodb.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
		AppName:  "academyd",
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Disconnect(context.Background())
	}()

	store := mongodb.NewUserRepository(db)
	if err := store.EnsureIndexes(ctx); err != nil {
		return err
	}

	var users ports.UserRepository = store
	if cfg.Redis.Addr != "" {
		rdb, err := redisdb.Connect(ctx, redisdb.Config{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		if err != nil {
			return err
		}
		defer rdb.Close()
		users = redisdb.NewCachedUserRepository(store, rdb, cfg.Redis.CacheTTL, logger.Component("user_cache"))
		log.Info().Str("addr", cfg.Redis.Addr).Dur("ttl", cfg.Redis.CacheTTL).Msg("user cache enabled")
	}

	e, err := api.NewRouter(api.Deps{
		Config:   cfg,
		Users:    users,
		Log:      log,
		Registry: prometheus.NewRegistry(),
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("academyd listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
