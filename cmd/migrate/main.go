// Command migrate applies the embedded schema migrations.
//
//	migrate [up|down|step-up|step-down|force <version>|version]
package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/mediqueue/dental-scheduling/internal/config"
	"github.com/mediqueue/dental-scheduling/internal/db"
	"github.com/mediqueue/dental-scheduling/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init("info", "prod")
		log.Fatal().Err(err).Msg("config load error")
	}
	logger.Init(cfg.LogLevel, cfg.Env)

	if cfg.PostgresDSN == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}

	action := "up"
	var args []string
	if len(os.Args) > 1 {
		action = os.Args[1]
		args = os.Args[2:]
	}

	if err := db.Migrate(cfg.PostgresDSN, action, args...); err != nil {
		log.Fatal().Err(err).Str("action", action).Msg("migration failed")
	}
}
