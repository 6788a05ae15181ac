package upload

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"geodata-ingest/internal/common/errors"
	"geodata-ingest/internal/common/logging"
	"geodata-ingest/internal/config"
)

// RowCounter verifies an import landed rows. Satisfied by
// database.Gatekeeper.
type RowCounter interface {
	CountRows(ctx context.Context, table string) (int64, error)
}

// GADMImporter loads each feature layer of the GADM GeoPackage into its own
// PostGIS table via ogr2ogr, verifying row counts after each layer.
type GADMImporter struct {
	cfg     *config.GADMConfig
	counter RowCounter
	log     logging.Logger
}

// GADMOption modifies a GADMImporter.
type GADMOption func(*GADMImporter)

// WithGADMLogger sets the logger used for progress reporting.
func WithGADMLogger(log logging.Logger) GADMOption {
	return func(i *GADMImporter) {
		i.log = log
	}
}

// NewGADMImporter creates an importer for the given job configuration.
func NewGADMImporter(cfg *config.GADMConfig, counter RowCounter, opts ...GADMOption) *GADMImporter {
	i := &GADMImporter{
		cfg:     cfg,
		counter: counter,
		log:     logging.GetGlobalLogger(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Import loads every feature layer of the GeoPackage at gpkgPath. Layer
// names follow the gadmN_admM convention and map to destination tables
// adminM. Each ogr2ogr run overwrites the destination table.
func (i *GADMImporter) Import(ctx context.Context, gpkgPath string) error {
	if _, err := os.Stat(gpkgPath); err != nil {
		return errors.NotFoundError(fmt.Sprintf("GeoPackage %s", gpkgPath))
	}

	layers, err := FeatureLayers(gpkgPath)
	if err != nil {
		return err
	}
	if len(layers) == 0 {
		return errors.UploadError(fmt.Sprintf("no feature layers found in %s", gpkgPath), nil)
	}

	i.log.Info("Found feature layers",
		logging.Field{Key: "count", Value: len(layers)},
		logging.Field{Key: "layers", Value: strings.Join(layers, ", ")},
	)

	// Validate every layer name before invoking any external tool, so a
	// malformed catalog aborts with nothing half-imported.
	tables := make([]string, len(layers))
	for idx, layer := range layers {
		table, err := LayerTableName(layer)
		if err != nil {
			return err
		}
		tables[idx] = table
	}

	for idx, layer := range layers {
		table := tables[idx]
		i.log.Info("Importing layer",
			logging.Field{Key: "layer", Value: layer},
			logging.Field{Key: "table", Value: table},
		)

		if err := i.runOgr2ogr(ctx, gpkgPath, layer, table); err != nil {
			return err
		}

		count, err := i.counter.CountRows(ctx, table)
		if err != nil {
			return err
		}
		i.log.Info("Layer imported",
			logging.Field{Key: "table", Value: table},
			logging.Field{Key: "rows", Value: count},
		)
	}

	i.log.Info("Upload complete")
	return nil
}

func (i *GADMImporter) runOgr2ogr(ctx context.Context, gpkgPath, layer, table string) error {
	cmd := exec.CommandContext(ctx, i.cfg.Ogr2ogrPath,
		"--config", "PG_USE_COPY", "YES",
		"-overwrite",
		"-gt", "100000",
		"-f", "PostgreSQL",
		"-nln", table,
		"-nlt", "PROMOTE_TO_MULTI",
		"-lco", "GEOMETRY_NAME=geom",
		"-lco", "FID=ogc_fid",
		"-lco", "SPATIAL_INDEX=GIST",
		"-sql", fmt.Sprintf("SELECT * FROM %s", layer),
		"PG:"+i.cfg.ConnString(),
		gpkgPath,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		if stderrors.Is(err, exec.ErrNotFound) {
			return errors.UploadError("ogr2ogr command not found. Ensure GDAL is installed", err)
		}
		return errors.UploadError(
			fmt.Sprintf("ogr2ogr failed for layer %s", layer), err,
		).WithContext("output", strings.TrimSpace(string(output)))
	}

	return nil
}

// LayerTableName derives the destination table from a GADM layer name:
// gadm41_adm2 maps to admin2. Names without at least two underscore-
// delimited parts are rejected.
func LayerTableName(layer string) (string, error) {
	parts := strings.Split(layer, "_")
	if len(parts) < 2 {
		return "", errors.UploadError(
			fmt.Sprintf("invalid layer name format: %s. Expected format: gadmN_admN", layer), nil)
	}
	level := strings.TrimPrefix(parts[1], "adm")
	return "admin" + level, nil
}

// FeatureLayers reads the feature-layer catalog embedded in the GeoPackage.
// A GeoPackage is an SQLite database; the gpkg_contents table lists every
// layer it contains.
func FeatureLayers(gpkgPath string) ([]string, error) {
	db, err := sql.Open("sqlite3", gpkgPath)
	if err != nil {
		return nil, errors.UploadError("failed to open geopackage", err)
	}
	defer db.Close()

	rows, err := db.Query(
		"SELECT table_name FROM gpkg_contents WHERE data_type = 'features' ORDER BY table_name")
	if err != nil {
		return nil, errors.UploadError("failed to read geopackage contents", err)
	}
	defer rows.Close()

	var layers []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.UploadError("failed to scan geopackage layer", err)
		}
		layers = append(layers, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.UploadError("failed to read geopackage layers", err)
	}

	return layers, nil
}
