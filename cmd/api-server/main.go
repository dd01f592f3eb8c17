package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mediqueue/dental-scheduling/internal/api"
	"github.com/mediqueue/dental-scheduling/internal/bootstrap"
	"github.com/mediqueue/dental-scheduling/internal/config"
	"github.com/mediqueue/dental-scheduling/internal/logger"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init("info", "prod")
		log.Fatal().Err(err).Msg("config load error")
	}
	logger.Init(cfg.LogLevel, cfg.Env)

	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Str("storage", cfg.Storage).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.New(rootCtx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("bootstrap failed")
	}
	defer rt.Close()

	var deps []api.Dependency
	if rt.Pool != nil {
		deps = append(deps, api.Dependency{Name: "postgres", Critical: true, Ping: rt.Pool.Ping})
	}
	if rt.Redis != nil {
		rdb := rt.Redis
		deps = append(deps, api.Dependency{Name: "redis", Ping: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	router := api.NewRouter(api.RouterConfig{
		Service:         rt.Service,
		Dependencies:    deps,
		Gatherer:        rt.Registry,
		Env:             cfg.Env,
		Version:         version,
		AllowedOrigins:  cfg.HTTP.AllowedOrigins,
		RateLimit:       cfg.HTTP.RateLimit,
		RateLimitWindow: cfg.HTTP.RateLimitWindow,
		RequestTimeout:  cfg.HTTP.RequestTimeout,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
