// Package bootstrap wires storage, locking and notification into a scheduling
// service from configuration. Shared by the API server and the worker.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mediqueue/dental-scheduling/internal/appointment"
	"github.com/mediqueue/dental-scheduling/internal/availability"
	"github.com/mediqueue/dental-scheduling/internal/clock"
	"github.com/mediqueue/dental-scheduling/internal/config"
	"github.com/mediqueue/dental-scheduling/internal/db"
	"github.com/mediqueue/dental-scheduling/internal/directory"
	"github.com/mediqueue/dental-scheduling/internal/metrics"
	"github.com/mediqueue/dental-scheduling/internal/notify"
	redisclient "github.com/mediqueue/dental-scheduling/internal/redis"
)

type Runtime struct {
	Config   config.Config
	Clock    clock.Policy
	Service  *appointment.Service
	Pool     *pgxpool.Pool // nil with memory storage
	Redis    *redis.Client // nil when disabled
	Registry *prometheus.Registry

	closers []func()
}

func New(ctx context.Context, cfg config.Config) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Registry: prometheus.NewRegistry()}
	rt.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	policy, err := cfg.ClockPolicy()
	if err != nil {
		return nil, err
	}
	rt.Clock = policy

	if !cfg.Redis.Disabled {
		rdb, err := redisclient.NewRedisClient(ctx, redisclient.ClientOptions{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			return nil, fmt.Errorf("redis connection: %w", err)
		}
		rt.Redis = rdb
		rt.closers = append(rt.closers, func() {
			if err := rdb.Close(); err != nil {
				log.Error().Err(err).Msg("error closing redis")
			}
		})
		log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to Redis")
	}

	var (
		repo     appointment.Repository
		source   availability.Source
		accounts directory.Accounts
		staff    directory.Staff
	)
	switch cfg.Storage {
	case config.StoragePostgres:
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.WithMaxConns(cfg.PostgresMaxConn))
		cancel()
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("postgres connection: %w", err)
		}
		rt.Pool = pool
		rt.closers = append(rt.closers, pool.Close)
		log.Info().Msg("connected to Postgres")

		repo = appointment.NewPgRepository(pool)
		source = availability.NewPgSource(pool)
		dir := directory.NewPgDirectory(pool)
		accounts, staff = dir, dir
	default:
		log.Warn().Msg("using in-memory storage, data is lost on restart")
		repo = appointment.NewMemoryRepository()
		source = availability.NewMemorySource()
		dir := directory.NewMemory()
		accounts, staff = dir, dir
	}

	if rt.Redis != nil {
		source = availability.NewCachedSource(source, rt.Redis, cfg.Clinic.Availability.CacheTTL)
	}

	notifier, err := rt.notifier()
	if err != nil {
		rt.Close()
		return nil, err
	}

	calendar := availability.NewCalendar(source, policy, cfg.DefaultAvailability())
	rt.Service = appointment.NewService(repo, rt.Locker(cfg.Redis.LockTTL, cfg.Redis.LockWait), calendar, cfg.Scheduling,
		appointment.WithNotifier(notifier),
		appointment.WithDirectory(accounts, staff),
		appointment.WithMetrics(metrics.NewScheduling(rt.Registry)),
	)
	return rt, nil
}

// Locker returns a Redis-backed locker, or a process-local one when Redis is
// disabled.
func (rt *Runtime) Locker(ttl, wait time.Duration) redisclient.Locker {
	if rt.Redis == nil {
		return redisclient.NewProcessLocker(wait)
	}
	return redisclient.NewRedisLocker(rt.Redis, ttl, wait)
}

func (rt *Runtime) notifier() (notify.Sink, error) {
	sinks := notify.Multi{notify.LogSink{}}
	if rt.Config.AMQP.URL == "" {
		return sinks, nil
	}

	conn, err := amqp091.Dial(rt.Config.AMQP.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp connection: %w", err)
	}
	rt.closers = append(rt.closers, func() { _ = conn.Close() })

	rabbit, err := notify.NewRabbitSink(conn, rt.Config.AMQP.Exchange)
	if err != nil {
		return nil, err
	}
	log.Info().Str("exchange", rt.Config.AMQP.Exchange).Msg("publishing events to RabbitMQ")
	return append(sinks, rabbit), nil
}

// Close releases connections in reverse order of opening.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}
