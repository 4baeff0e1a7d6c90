package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-processor/internal/config"
	"github.com/dvloznov/statement-processor/internal/infra/postgres"
	"github.com/dvloznov/statement-processor/internal/jobs"
	"github.com/dvloznov/statement-processor/internal/jobs/inmemory"
	"github.com/dvloznov/statement-processor/internal/logger"
	"github.com/dvloznov/statement-processor/internal/pipeline"
)

func main() {
	// Initialize logger
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	repo := postgres.NewStatementRepository(pool)
	processor := pipeline.NewProcessor(repo, pipeline.NewValidator(pipeline.StatementLimits()))

	// Initialize job store and queue. The in-memory queue is process-local;
	// a multi-instance deployment swaps in a broker-backed implementation.
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.QueueBuffer, cfg.WorkerCount, jobStore)
	jobQueue.SetHooks(lifecycleHooks(log))

	log.Info().Msg("Starting worker service")

	handler := func(ctx context.Context, job jobs.Job) error {
		statementJob, ok := job.(*jobs.ProcessStatementJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		ctx = logger.WithContext(ctx, log)

		log.Info().
			Str("job_id", statementJob.JobID).
			Str("filename", statementJob.Filename).
			Msg("Processing statement job")

		if err := processor.ProcessStatementFile(ctx, statementJob.Filename, statementJob.Data); err != nil {
			log.Error().
				Err(err).
				Str("job_id", statementJob.JobID).
				Str("filename", statementJob.Filename).
				Msg("Statement processing failed")
			return err
		}

		return nil
	}

	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Int("workers", cfg.WorkerCount).Msg("Worker service started, waiting for jobs...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Worker service exited")
}

// lifecycleHooks wires the queue's observable events to the logger.
func lifecycleHooks(log zerolog.Logger) jobs.Hooks {
	return jobs.Hooks{
		OnCompleted: func(job *jobs.ProcessStatementJob) {
			log.Info().
				Str("job_id", job.JobID).
				Str("filename", job.Filename).
				Int("progress", job.Progress).
				Msg("Completed job")
		},
		OnFailed: func(job *jobs.ProcessStatementJob, err error) {
			log.Error().
				Str("job_id", job.JobID).
				Str("filename", job.Filename).
				Str("error", err.Error()).
				Msg("Failed job")
		},
		OnWorkerError: func(err error) {
			log.Error().Err(err).Msg("Worker error")
		},
		OnQueueError: func(err error) {
			log.Error().Err(err).Msg("Queue error")
		},
	}
}
