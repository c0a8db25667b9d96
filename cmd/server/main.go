// Package main starts the Image2Doc gateway: the HTTP API, the conversion
// coordinator and its event-driven satellites.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/image2doc/image2doc/internal/api"
	"github.com/image2doc/image2doc/internal/config"
	"github.com/image2doc/image2doc/internal/coordinator"
	"github.com/image2doc/image2doc/internal/event"
	"github.com/image2doc/image2doc/internal/history"
	"github.com/image2doc/image2doc/internal/notify"
	"github.com/image2doc/image2doc/internal/ocr"
	"github.com/image2doc/image2doc/internal/prefs"
	"github.com/image2doc/image2doc/internal/queue"
	"github.com/image2doc/image2doc/internal/s3storage"
	"github.com/image2doc/image2doc/internal/signing"
	"github.com/image2doc/image2doc/internal/storage"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "gateway").Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	blobs, err := openBlobStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init blob store")
	}

	bus := event.NewBus()
	bus.Subscribe(event.TypeHandlerFailed, func(e event.Event) error {
		if ev, ok := e.(event.HandlerFailedEvent); ok {
			log.Error().Err(ev.Err).Str("event_type", ev.FailedType).Msg("event handler failed")
		}
		return nil
	})

	backend := ocr.NewClient(cfg.Backend, &http.Client{Timeout: cfg.RequestTimeout}, log)

	var langCache *redis.Client
	if cfg.CacheEnabled() {
		langCache = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer langCache.Close()
	}
	langs := ocr.NewLanguageSource(backend, langCache, cfg.LanguageTTL)

	coord := coordinator.New(coordinator.Options{
		MaxFileSize:     cfg.MaxFileSize,
		AllowedTypes:    cfg.AllowedTypes,
		MaxNameLen:      cfg.MaxNameLen,
		DefaultFormat:   cfg.DefaultFormat,
		DefaultLanguage: cfg.DefaultLanguage,
		QueuePacing:     cfg.QueuePacing,
	}, storage.NewMemoryStore(), blobs, bus, backend, log)
	defer coord.Close()

	center := notify.NewCenter(notify.NewLogRenderer(log), log)
	center.Bind(bus)

	var histRepo *history.Repository
	if cfg.HistoryEnabled() {
		pool, err := history.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("connect database")
		}
		defer pool.Close()
		if err := history.EnsureSchema(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("ensure schema")
		}
		histRepo = history.NewRepository(pool)
		history.NewRecorder(histRepo, log).Bind(bus)
	}

	if cfg.CacheEnabled() {
		cleanup := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer cleanup.Close()
		queue.NewScheduler(cleanup, cfg.Retention, log).Bind(bus)
	}

	prefsStore, err := prefs.Open(cfg.PrefsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("open preferences")
	}

	srv := api.New(cfg, coord, backend, langs, center, prefsStore,
		signing.NewSigner(cfg.SigningSecret), histRepo, log)
	if err := srv.Run(ctx); err != nil {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}

// openBlobStore picks the configured blob backend. Memory suits single-node
// setups; s3 is required when the cleanup worker runs as a separate process.
func openBlobStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (storage.Blob, error) {
	switch cfg.BlobBackend {
	case "s3":
		store, err := s3storage.New(cfg)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		log.Info().Msg("using in-memory blob store")
		return storage.NewMemoryBlob(), nil
	}
}
