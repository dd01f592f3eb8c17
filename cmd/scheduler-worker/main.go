package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mediqueue/dental-scheduling/internal/bootstrap"
	"github.com/mediqueue/dental-scheduling/internal/config"
	"github.com/mediqueue/dental-scheduling/internal/logger"
	redisclient "github.com/mediqueue/dental-scheduling/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init("info", "prod")
		log.Fatal().Err(err).Msg("config load error")
	}
	logger.Init(cfg.LogLevel, cfg.Env)

	log.Info().
		Str("env", cfg.Env).
		Str("auto_confirm", cfg.Worker.AutoConfirmSchedule).
		Str("migrate", cfg.Worker.MigrateSchedule).
		Msg("scheduler-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.New(rootCtx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("bootstrap failed")
	}
	defer rt.Close()

	if rt.Redis == nil {
		log.Warn().Msg("redis disabled, leader election is process-local")
	}

	svc := rt.Service
	// Zero wait: a replica that loses the race skips the tick.
	leader := rt.Locker(cfg.Worker.LeaderTTL, 0)

	jobs := []job{
		{
			name:     "auto-confirm",
			schedule: cfg.Worker.AutoConfirmSchedule,
			run: func(ctx context.Context) (int, error) {
				return svc.AutoConfirmDue(ctx, rt.Clock.Now())
			},
		},
		{
			name:     "queue-migrate",
			schedule: cfg.Worker.MigrateSchedule,
			run: func(ctx context.Context) (int, error) {
				now := rt.Clock.Now()
				return svc.MigrateToday(ctx, rt.Clock.DateOf(now), now)
			},
		},
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	for _, j := range jobs {
		if _, err := c.AddFunc(j.schedule, func() { runOnce(rootCtx, leader, cfg.Worker.RunTimeout, j) }); err != nil {
			log.Fatal().Err(err).Str("job", j.name).Str("schedule", j.schedule).Msg("invalid schedule")
		}
	}

	// Run once at startup
	for _, j := range jobs {
		runOnce(rootCtx, leader, cfg.Worker.RunTimeout, j)
	}

	c.Start()
	<-rootCtx.Done()
	log.Info().Msg("shutdown signal received, stopping scheduler worker")
	<-c.Stop().Done()
}

type job struct {
	name     string
	schedule string
	run      func(ctx context.Context) (int, error)
}

func runOnce(ctx context.Context, leader redisclient.Locker, timeout time.Duration, j job) {
	if ctx.Err() != nil {
		return
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	l := logger.Component("scheduler-worker").With().Str("job", j.name).Logger()
	start := time.Now()

	var n int
	err := leader.WithLock(runCtx, "worker:leader:"+j.name, func(ctx context.Context) error {
		var err error
		n, err = j.run(ctx)
		return err
	})
	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		l.Debug().Msg("another replica holds the lead, skipping")
	case err != nil:
		l.Error().Err(err).Int("processed", n).Msg("run failed")
	default:
		lvl := zerolog.DebugLevel
		if n > 0 {
			lvl = zerolog.InfoLevel
		}
		l.WithLevel(lvl).Int("processed", n).Dur("duration", time.Since(start)).Msg("run complete")
	}
}
