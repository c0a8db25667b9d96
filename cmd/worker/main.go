// Package main runs the cleanup worker. It consumes deferred cleanup jobs
// from Redis and removes expired artifacts from blob storage.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/image2doc/image2doc/internal/config"
	"github.com/image2doc/image2doc/internal/s3storage"
	"github.com/image2doc/image2doc/internal/worker"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if !cfg.CacheEnabled() {
		log.Fatal().Msg("IMAGE2DOC_REDIS_ADDR is required for the worker")
	}

	// The worker must see the same objects as the gateway, so only the s3
	// backend makes sense here.
	store, err := s3storage.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init storage")
	}
	if err := store.EnsureBucket(ctx); err != nil {
		log.Fatal().Err(err).Msg("ensure bucket")
	}

	server := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, asynq.Config{
		Concurrency: 4,
	})
	processor := worker.NewProcessor(store, log)

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	log.Info().Msg("cleanup worker started")
	if err := server.Run(processor.Handler()); err != nil {
		log.Error().Err(err).Msg("worker stopped")
		os.Exit(1)
	}
}
