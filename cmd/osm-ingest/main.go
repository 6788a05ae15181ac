// Command osm-ingest downloads an OpenStreetMap regional extract, filters
// it to the road network and imports it into a PostGIS database.
//
// Exit codes: 0 success or skip, 1 configuration error, 2 download error,
// 3 filter error, 4 database or upload error.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"geodata-ingest/internal/common/errors"
	"geodata-ingest/internal/common/logging"
	"geodata-ingest/internal/config"
	"geodata-ingest/internal/pipeline"
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	cfg, err := config.LoadOSMConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return errors.ExitConfigError
	}

	logger, err := logging.NewZapLogger(logging.LogConfig{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return errors.ExitConfigError
	}
	logging.SetGlobalLogger(logger)
	defer logging.MustSync()

	logger.Info("Loaded configuration",
		logging.Field{Key: "region", Value: cfg.Region},
		logging.Field{Key: "database", Value: fmt.Sprintf("%s:%d/%s", cfg.DBHost, cfg.DBPort, cfg.DBName)},
	)

	if err := pipeline.NewOSMPipeline(cfg, logger).Run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return errors.ExitCode(err)
	}

	return errors.ExitOK
}
