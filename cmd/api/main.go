package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-processor/internal/api/handlers"
	"github.com/dvloznov/statement-processor/internal/api/middleware"
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

	ctx := context.Background()

	// Initialize persistence
	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	repo := postgres.NewStatementRepository(pool)

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.QueueBuffer, cfg.WorkerCount, jobStore)
	jobQueue.SetHooks(lifecycleHooks(log))

	// Start worker pool in background to process upload jobs
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	processor := pipeline.NewProcessor(repo, pipeline.NewValidator(pipeline.StatementLimits()))

	jobHandler := func(ctx context.Context, job jobs.Job) error {
		statementJob, ok := job.(*jobs.ProcessStatementJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		ctx = logger.WithContext(ctx, log)

		log.Info().
			Str("job_id", statementJob.JobID).
			Str("filename", statementJob.Filename).
			Msg("Processing statement job")

		return processor.ProcessStatementFile(ctx, statementJob.Filename, statementJob.Data)
	}

	go func() {
		log.Info().Int("workers", cfg.WorkerCount).Msg("Starting job worker pool")
		if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
			log.Error().Err(err).Msg("Job worker stopped with error")
		}
	}()

	// Initialize handlers
	statementsHandler := handlers.NewStatementsHandler(repo, jobQueue, cfg.MaxUploadBytes, log)
	jobsHandler := handlers.NewJobsHandler(jobStore, log)

	// Create router
	mux := http.NewServeMux()

	mux.HandleFunc("/api/statements/file", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			statementsHandler.UploadStatement(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/statements", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			statementsHandler.ListStatements(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/statements/failed", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			statementsHandler.ListFailedStatements(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(mux),
			),
		),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.ListenAddr, cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}

// lifecycleHooks wires the queue's observable events to the logger.
// They are informational only; retry policy stays with the queue.
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
