package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"mediaforge/internal/adapter"
	"mediaforge/internal/analyzer"
	"mediaforge/internal/genai"
	"mediaforge/internal/http/handlers"
	"mediaforge/internal/http/httpapi"
	"mediaforge/internal/infra"
	"mediaforge/internal/queue"
	"mediaforge/internal/schema"
	"mediaforge/internal/service"
	"mediaforge/internal/storage"
	"mediaforge/internal/store"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: database connection failed")
	}
	defer pool.Close()

	jobs := store.NewPostgres(pool)
	if err := jobs.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("api: schema migration failed")
	}

	artifacts, err := newArtifactStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: storage configuration failed")
	}

	ai, err := genai.NewClient(genai.Options{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		Model:      cfg.GeminiModel,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("api: backend client failed")
	}

	schemas, err := schema.NewStaticProvider()
	if err != nil {
		logger.Fatal().Err(err).Msg("api: schema compilation failed")
	}

	registry, err := adapter.NewRegistry(adapter.Options{
		AI:              ai,
		Schemas:         schemas,
		Storage:         artifacts,
		SignedURLExpiry: cfg.SignedURLExpiry,
		Logger:          logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("api: model registry failed")
	}

	pipeline := analyzer.New(ai, schemas, registry.Models(), logger)
	intakeQueue := queue.NewRedis(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), cfg.IntakeQueue)
	svc := service.NewJobService(jobs, registry, pipeline, intakeQueue, service.Tunables{
		JobTTL:       cfg.JobTTL,
		PollInterval: cfg.PollInterval,
	}, logger)

	app := handlers.NewApp(svc, logger)
	router := httpapi.NewRouter(app, logger, cfg.RateLimitPerMin)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("api: listening")
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("api: http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: shutdown failed")
	}
	logger.Info().Msg("api: stopped")
}

func newArtifactStore(ctx context.Context, cfg *infra.Config) (storage.Store, error) {
	if cfg.StorageBackend == "minio" {
		return storage.NewMinioStore(ctx, storage.MinioOptions{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	}
	return storage.NewFileStore(cfg.StoragePath, "http://localhost:"+cfg.Port+"/files")
}
