// Package upload populates the PostGIS database from downloaded archives by
// driving the external import tools (osm2pgsql for OSM extracts, ogr2ogr
// for the GADM GeoPackage).
package upload

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"geodata-ingest/internal/common/errors"
	"geodata-ingest/internal/common/logging"
	"geodata-ingest/internal/config"
	"geodata-ingest/internal/progress"
)

const defaultStylePath = "/usr/share/osm2pgsql/default.style"

// OSMImporter imports an OSM PBF file with osm2pgsql. Only --create mode is
// supported; append mode is known-broken in osm2pgsql and must not be used,
// so one database holds exactly one region.
type OSMImporter struct {
	binary string
	cfg    *config.OSMConfig
	log    logging.Logger
}

// OSMOption modifies an OSMImporter.
type OSMOption func(*OSMImporter)

// WithOSMBinary overrides the osm2pgsql binary path, primarily for tests.
func WithOSMBinary(path string) OSMOption {
	return func(i *OSMImporter) {
		i.binary = path
	}
}

// WithOSMLogger sets the logger used for progress reporting.
func WithOSMLogger(log logging.Logger) OSMOption {
	return func(i *OSMImporter) {
		i.log = log
	}
}

// NewOSMImporter creates an importer for the given job configuration.
func NewOSMImporter(cfg *config.OSMConfig, opts ...OSMOption) *OSMImporter {
	i := &OSMImporter{
		binary: "osm2pgsql",
		cfg:    cfg,
		log:    logging.GetGlobalLogger(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Import runs osm2pgsql against the given PBF file, streaming its output
// and reporting phase transitions and throughput.
func (i *OSMImporter) Import(pbfPath string) error {
	i.log.Info("Importing to database",
		logging.Field{Key: "file", Value: filepath.Base(pbfPath)},
		logging.Field{Key: "database", Value: fmt.Sprintf("%s:%d/%s", i.cfg.DBHost, i.cfg.DBPort, i.cfg.DBName)},
		logging.Field{Key: "cache_mb", Value: i.cfg.CacheSizeMB},
		logging.Field{Key: "processes", Value: i.cfg.NumProcesses},
	)

	args := []string{
		"--slim",
		"--hstore",
		"--multi-geometry",
		"--create",
		"-d", i.cfg.DBName,
		"-U", i.cfg.DBUser,
		"-H", i.cfg.DBHost,
		"-P", strconv.Itoa(i.cfg.DBPort),
		"-S", defaultStylePath,
		"--cache", strconv.Itoa(i.cfg.CacheSizeMB),
		"--number-processes", strconv.Itoa(i.cfg.NumProcesses),
	}
	if i.cfg.DropSlimTables {
		args = append(args, "--drop")
		i.log.Warn("Using --drop: slim tables will be removed, incremental updates disabled")
	}
	args = append(args, pbfPath)

	cmd := exec.Command(i.binary, args...)
	cmd.Env = append(os.Environ(), "PGPASSWORD="+i.cfg.DBPassword)

	startTime := time.Now()
	if err := i.streamCommand(cmd); err != nil {
		return err
	}

	elapsed := time.Since(startTime)
	i.log.Info("Import complete",
		logging.Field{Key: "elapsed", Value: fmt.Sprintf("%.1fs", elapsed.Seconds())},
	)
	return nil
}

func (i *OSMImporter) streamCommand(cmd *exec.Cmd) error {
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		if stderrors.Is(err, exec.ErrNotFound) {
			return errors.UploadError(
				"osm2pgsql command not found. Ensure osm2pgsql is installed", err)
		}
		return errors.UploadError("failed to start osm2pgsql", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		pw.Close()
	}()

	parser := progress.NewOsm2pgsqlParser()
	scanner := bufio.NewScanner(pr)
	for scanner.Scan() {
		for _, ev := range parser.ParseLine(scanner.Text()) {
			switch ev.Kind {
			case progress.EventPhase:
				i.log.Info("Phase change",
					logging.Field{Key: "phase", Value: string(ev.Phase)})
			case progress.EventThroughput:
				i.log.Info("Import progress",
					logging.Field{Key: "objects", Value: ev.ObjectType},
					logging.Field{Key: "count_k", Value: ev.CountK},
					logging.Field{Key: "rate_k_per_s", Value: ev.RateK},
				)
			case progress.EventStats:
				i.log.Info(ev.Line)
			case progress.EventWarning:
				i.log.Warn(ev.Line)
			}
		}
	}
	scanErr := scanner.Err()
	// unblock the tool's output copy if the scan stopped early
	pr.Close()

	waitResult := <-waitErr
	if scanErr != nil {
		return errors.UploadError("failed to read osm2pgsql output", scanErr)
	}
	if waitResult != nil {
		var exitErr *exec.ExitError
		if stderrors.As(waitResult, &exitErr) {
			return errors.UploadError(
				fmt.Sprintf("osm2pgsql failed with exit code %d", exitErr.ExitCode()), waitResult)
		}
		return errors.UploadError("osm2pgsql failed", waitResult)
	}

	return nil
}
