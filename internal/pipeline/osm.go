// Package pipeline sequences the ingestion steps for each job: verify the
// database, short-circuit when data already exists, download, optionally
// filter, import, clean up. Steps run strictly in order; the first failure
// aborts the run and surfaces as a typed error the binaries map to exit
// codes.
package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"geodata-ingest/internal/common/logging"
	"geodata-ingest/internal/config"
	"geodata-ingest/internal/database"
	"geodata-ingest/internal/fetch"
	"geodata-ingest/internal/filter"
	"geodata-ingest/internal/upload"
)

// Verifier runs the pre-flight database checks.
type Verifier interface {
	VerifyConnection(ctx context.Context) error
	HasExistingData(ctx context.Context) (bool, error)
}

// RegionDownloader fetches an OSM extract.
type RegionDownloader interface {
	DownloadRegion(url, dest string) (string, error)
}

// RoadFilterer reduces an extract to its road network.
type RoadFilterer interface {
	Filter(inputPath, outputPath string) (string, error)
}

// PBFImporter loads a PBF file into the database.
type PBFImporter interface {
	Import(pbfPath string) error
}

// OSMPipeline drives the OSM road-network ingestion job.
type OSMPipeline struct {
	cfg      *config.OSMConfig
	db       Verifier
	fetcher  RegionDownloader
	filter   RoadFilterer
	importer PBFImporter
	log      logging.Logger
}

// NewOSMPipeline wires the production components for the given config.
func NewOSMPipeline(cfg *config.OSMConfig, log logging.Logger) *OSMPipeline {
	return &OSMPipeline{
		cfg: cfg,
		db: database.NewGatekeeper(cfg.ConnString(), cfg.DBName,
			database.EncodingStrict, database.OSMTables),
		fetcher:  fetch.New(fetch.WithLogger(log)),
		filter:   filter.NewRoadFilter(filter.WithLogger(log)),
		importer: upload.NewOSMImporter(cfg, upload.WithOSMLogger(log)),
		log:      log,
	}
}

// Run executes the pipeline. A database that already holds OSM tables is a
// successful no-op: osm2pgsql cannot append, so re-importing would
// overwrite and a different region needs its own database.
func (p *OSMPipeline) Run(ctx context.Context) error {
	p.log.Info("Verifying database connection")
	if err := p.db.VerifyConnection(ctx); err != nil {
		return err
	}
	p.log.Info("Database connection verified")

	exists, err := p.db.HasExistingData(ctx)
	if err != nil {
		return err
	}
	if exists {
		p.log.Info("OSM tables already exist in database, skipping",
			logging.Field{Key: "note", Value: "append mode is not supported; use a separate database per region"})
		return nil
	}

	p.log.Info("Step 1: Download",
		logging.Field{Key: "region", Value: p.cfg.Region})
	rawFile, err := p.fetcher.DownloadRegion(p.cfg.DownloadURL(), p.cfg.RawPath())
	if err != nil {
		return err
	}

	p.log.Info("Step 2: Filter")
	filteredFile, err := p.filter.Filter(rawFile, p.cfg.FilteredPath())
	if err != nil {
		return err
	}

	if p.cfg.Cleanup {
		p.removeFile(rawFile)
	}

	p.log.Info("Step 3: Upload")
	if err := p.importer.Import(filteredFile); err != nil {
		return err
	}

	if p.cfg.Cleanup {
		p.removeFile(filteredFile)
	}

	p.log.Info("Pipeline complete",
		logging.Field{Key: "region", Value: p.cfg.Region},
		logging.Field{Key: "database", Value: p.cfg.DBName},
	)
	return nil
}

// removeFile is best-effort cleanup: a missing file is reported, never an
// error.
func (p *OSMPipeline) removeFile(path string) {
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			p.log.Info("Nothing to clean",
				logging.Field{Key: "file", Value: filepath.Base(path)})
			return
		}
		p.log.Warn("Cleanup failed",
			logging.Field{Key: "file", Value: filepath.Base(path)},
			logging.Field{Key: "error", Value: err.Error()},
		)
		return
	}
	p.log.Info("Cleaned up",
		logging.Field{Key: "file", Value: filepath.Base(path)})
}
