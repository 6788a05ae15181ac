package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"geodata-ingest/internal/common/logging"
	"geodata-ingest/internal/config"
	"geodata-ingest/internal/database"
	"geodata-ingest/internal/fetch"
	"geodata-ingest/internal/upload"
)

// GeopackageFetcher ensures the GADM archive is present and extracted.
type GeopackageFetcher interface {
	EnsureGeopackage(url, zipPath, gpkgPath, md5Path string) (string, error)
}

// LayerImporter loads every GeoPackage feature layer into the database.
type LayerImporter interface {
	Import(ctx context.Context, gpkgPath string) error
}

// GADMPipeline drives the GADM administrative-boundary ingestion job.
type GADMPipeline struct {
	cfg      *config.GADMConfig
	db       Verifier
	fetcher  GeopackageFetcher
	importer LayerImporter
	log      logging.Logger
}

// NewGADMPipeline wires the production components for the given config.
func NewGADMPipeline(cfg *config.GADMConfig, log logging.Logger) *GADMPipeline {
	gatekeeper := database.NewGatekeeper(cfg.ConnString(), cfg.DBName,
		database.EncodingAutoFix, database.GADMTables)
	return &GADMPipeline{
		cfg:      cfg,
		db:       gatekeeper,
		fetcher:  fetch.New(fetch.WithLogger(log), fetch.WithTimeout(100*time.Minute)),
		importer: upload.NewGADMImporter(cfg, gatekeeper, upload.WithGADMLogger(log)),
		log:      log,
	}
}

// Run executes the pipeline. When admin tables already exist the run is a
// successful no-op unless force is set. The zip archive is kept on disk
// after the run; only the extracted GeoPackage is cleaned up.
func (p *GADMPipeline) Run(ctx context.Context, force bool) error {
	p.log.Info("Verifying database connection")
	if err := p.db.VerifyConnection(ctx); err != nil {
		return err
	}

	exists, err := p.db.HasExistingData(ctx)
	if err != nil {
		return err
	}
	if exists && !force {
		p.log.Info("Existing GADM data found in the database, skipping",
			logging.Field{Key: "note", Value: "use --force to re-download and overwrite"})
		return nil
	}

	gpkgPath, err := p.fetcher.EnsureGeopackage(
		p.cfg.GeopackageURL, p.cfg.ZipPath(), p.cfg.GeopackagePath(), p.cfg.MD5Path())
	if err != nil {
		return err
	}

	if err := p.importer.Import(ctx, gpkgPath); err != nil {
		return err
	}

	p.cleanupGeopackage(gpkgPath)

	p.log.Info("Pipeline complete",
		logging.Field{Key: "database", Value: p.cfg.DBName})
	return nil
}

// cleanupGeopackage deletes the extracted .gpkg after a successful upload.
// The .zip stays for future runs; a missing file is reported, not an error.
func (p *GADMPipeline) cleanupGeopackage(gpkgPath string) {
	if err := os.Remove(gpkgPath); err != nil {
		if os.IsNotExist(err) {
			p.log.Info("Nothing to clean",
				logging.Field{Key: "file", Value: filepath.Base(gpkgPath)})
			return
		}
		p.log.Warn("Cleanup failed",
			logging.Field{Key: "file", Value: filepath.Base(gpkgPath)},
			logging.Field{Key: "error", Value: err.Error()},
		)
		return
	}
	p.log.Info("Cleaned up",
		logging.Field{Key: "file", Value: filepath.Base(gpkgPath)})
}
