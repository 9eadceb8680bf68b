package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"mediaforge/internal/adapter"
	"mediaforge/internal/analyzer"
	"mediaforge/internal/genai"
	"mediaforge/internal/infra"
	"mediaforge/internal/queue"
	"mediaforge/internal/scheduler"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: database connection failed")
	}
	defer pool.Close()

	jobs := store.NewPostgres(pool)
	if err := jobs.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("worker: schema migration failed")
	}

	artifacts, err := newArtifactStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: storage configuration failed")
	}

	ai, err := genai.NewClient(genai.Options{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		Model:      cfg.GeminiModel,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: backend client failed")
	}

	schemas, err := schema.NewStaticProvider()
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: schema compilation failed")
	}

	registry, err := adapter.NewRegistry(adapter.Options{
		AI:              ai,
		Schemas:         schemas,
		Storage:         artifacts,
		SignedURLExpiry: cfg.SignedURLExpiry,
		Logger:          logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: model registry failed")
	}

	pipeline := analyzer.New(ai, schemas, registry.Models(), logger)
	svc := service.NewJobService(jobs, registry, pipeline, nil, service.Tunables{
		JobTTL:       cfg.JobTTL,
		PollInterval: cfg.PollInterval,
	}, logger)

	intakeQueue := queue.NewRedis(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), cfg.IntakeQueue)
	sweeper := scheduler.NewSweeper(jobs, registry, scheduler.Config{
		Concurrency:  cfg.PollConcurrency,
		PollTimeout:  cfg.PollTimeout,
		PollInterval: cfg.PollInterval,
	}, logger)

	logger.Info().Msg("worker: started")
	go runIntake(ctx, intakeQueue, svc, logger)
	runSweeps(ctx, sweeper, cfg.SweepInterval, logger)
	logger.Info().Msg("worker: stopped")
}

// runIntake drains the intake queue, starting one job per dequeued id. A
// start failure is already recorded on the job; the loop just keeps going.
func runIntake(ctx context.Context, q *queue.Redis, svc *service.JobService, logger infra.Logger) {
	for {
		jobID, err := q.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrEmpty) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			logger.Error().Err(err).Msg("worker: dequeue failed")
			time.Sleep(time.Second)
			continue
		}
		if _, err := svc.StartJob(ctx, jobID); err != nil {
			logger.Error().Err(err).Str("job_id", jobID).Msg("worker: start job failed")
		}
	}
}

// runSweeps polls running jobs on a fixed ticker until the context ends.
func runSweeps(ctx context.Context, sweeper *scheduler.Sweeper, interval time.Duration, logger infra.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := sweeper.RunSweep(ctx); err != nil {
				logger.Error().Err(err).Msg("worker: sweep failed")
			}
		}
	}
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
