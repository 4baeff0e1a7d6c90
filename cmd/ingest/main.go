package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dvloznov/statement-processor/internal/config"
	"github.com/dvloznov/statement-processor/internal/infra/postgres"
	"github.com/dvloznov/statement-processor/internal/logger"
	"github.com/dvloznov/statement-processor/internal/pipeline"
)

func main() {
	// Initialize structured logger
	log := logger.New()

	// Parse CLI flags
	file := flag.String("file", "", "path to the statement file (.csv or .xml)")
	flag.Parse()

	if *file == "" {
		log.Fatal().Msg("Error: --file is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		log.Fatal().Err(err).Str("file", *file).Msg("Failed to read statement file")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	ctx = logger.WithContext(ctx, log)

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	repo := postgres.NewStatementRepository(pool)
	processor := pipeline.NewProcessor(repo, pipeline.NewValidator(pipeline.StatementLimits()))

	log.Info().Str("file", *file).Msg("Starting ingestion")

	if err := processor.ProcessStatementFile(ctx, filepath.Base(*file), data); err != nil {
		log.Fatal().Err(err).Msg("Ingestion failed")
	}

	fmt.Println("Ingestion completed successfully.")
}
