// Command gadm-ingest downloads the GADM administrative-boundary
// GeoPackage and loads each admin level into its own PostGIS table.
//
// Exit codes: 0 success or skip, 1 on any failure.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"geodata-ingest/internal/common/logging"
	"geodata-ingest/internal/config"
	"geodata-ingest/internal/pipeline"
)

func main() {
	var force bool

	app := &cli.App{
		Name:  "gadm-ingest",
		Usage: "Download GADM boundary data and load it into PostGIS",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "force",
				Usage:       "Force re-download and upload even when admin tables exist",
				Destination: &force,
			},
		},
		Action: func(cCtx *cli.Context) error {
			return run(cCtx, force)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cCtx *cli.Context, force bool) error {
	_ = godotenv.Load()

	cfg, err := config.LoadGADMConfig()
	if err != nil {
		return cli.Exit(fmt.Sprintf("Configuration error: %v", err), 1)
	}

	logger := logging.NewDefaultLogger()
	logging.SetGlobalLogger(logger)
	defer logging.MustSync()

	if err := pipeline.NewGADMPipeline(cfg, logger).Run(cCtx.Context, force); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	return nil
}
