package main

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/elitegames/backend-store/internal/config"
	"github.com/elitegames/backend-store/internal/entitlement"
	"github.com/elitegames/backend-store/internal/events"
	"github.com/elitegames/backend-store/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "worker").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}

	bus := &events.Bus{Store: events.NewStore(pool)}
	grantor := entitlement.NewGrantor(entitlement.NewStore(pool), bus, cfg.PremiumGrantDuration)

	srv := asynq.NewServer(redisOpts, asynq.Config{Concurrency: 4})

	mux := asynq.NewServeMux()
	mux.Handle(entitlement.TaskTypeGrant, entitlement.Worker{Grantor: grantor, Log: logger})

	logger.Info().Msg("worker starting")
	if err := srv.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped with error")
	}
	logger.Info().Msg("worker shutdown complete")
}
