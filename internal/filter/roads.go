// Package filter reduces a raw OSM extract to its road network by running
// osmium tags-filter and streaming its progress output.
package filter

import (
	"bufio"
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"geodata-ingest/internal/common/errors"
	"geodata-ingest/internal/common/logging"
	"geodata-ingest/internal/progress"
)

// RoadFilter extracts way-type records carrying a highway tag from an OSM
// PBF file. Filtering is delegated entirely to osmium.
type RoadFilter struct {
	binary string
	log    logging.Logger
}

// Option modifies a RoadFilter.
type Option func(*RoadFilter)

// WithBinary overrides the osmium binary path, primarily for tests.
func WithBinary(path string) Option {
	return func(f *RoadFilter) {
		f.binary = path
	}
}

// WithLogger sets the logger used for progress reporting.
func WithLogger(log logging.Logger) Option {
	return func(f *RoadFilter) {
		f.log = log
	}
}

// NewRoadFilter creates a RoadFilter using the osmium binary on PATH.
func NewRoadFilter(opts ...Option) *RoadFilter {
	f := &RoadFilter{
		binary: "osmium",
		log:    logging.GetGlobalLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Filter produces a roads-only extract at outputPath from inputPath. The
// operation is skipped entirely when outputPath already exists. Progress
// from osmium is consolidated to one report per 10 percentage points.
func (f *RoadFilter) Filter(inputPath, outputPath string) (string, error) {
	if info, err := os.Stat(outputPath); err == nil {
		f.log.Info("Filtered file already exists, skipping filter step",
			logging.Field{Key: "file", Value: filepath.Base(outputPath)},
			logging.Field{Key: "size_gb", Value: toGB(info.Size())},
		)
		return outputPath, nil
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return "", errors.FilterError("failed to create output directory", err)
	}

	f.log.Info("Filtering roads",
		logging.Field{Key: "input", Value: filepath.Base(inputPath)})

	// w/highway keeps ways with a highway tag, i.e. all road types.
	cmd := exec.Command(f.binary,
		"tags-filter",
		inputPath,
		"w/highway",
		"-o", outputPath,
		"--overwrite",
		"--progress",
	)

	if err := f.streamCommand(cmd); err != nil {
		return "", err
	}

	inputInfo, err := os.Stat(inputPath)
	if err != nil {
		return "", errors.FilterError("failed to stat input file", err)
	}
	outputInfo, err := os.Stat(outputPath)
	if err != nil {
		return "", errors.FilterError("failed to stat output file", err)
	}

	inputGB := toGB(inputInfo.Size())
	outputGB := toGB(outputInfo.Size())
	reduction := 0.0
	if inputInfo.Size() > 0 {
		reduction = (1 - float64(outputInfo.Size())/float64(inputInfo.Size())) * 100
	}

	f.log.Info("Filter complete",
		logging.Field{Key: "input_gb", Value: inputGB},
		logging.Field{Key: "output_gb", Value: outputGB},
		logging.Field{Key: "reduction_pct", Value: fmt.Sprintf("%.1f", reduction)},
	)

	return outputPath, nil
}

// streamCommand runs osmium and parses its combined output line by line.
func (f *RoadFilter) streamCommand(cmd *exec.Cmd) error {
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		if stderrors.Is(err, exec.ErrNotFound) {
			return errors.FilterError(
				"osmium command not found. Ensure osmium-tool is installed", err)
		}
		return errors.FilterError("failed to start osmium", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		pw.Close()
	}()

	parser := progress.NewOsmiumParser()
	scanner := bufio.NewScanner(pr)
	scanner.Split(scanProgressLines)
	for scanner.Scan() {
		update, ok := parser.ParseLine(scanner.Text())
		if !ok {
			continue
		}
		fields := []logging.Field{
			{Key: "percent", Value: update.Percent},
			{Key: "elapsed", Value: fmt.Sprintf("%.1fs", update.Elapsed.Seconds())},
		}
		if update.HasCounts {
			fields = append(fields,
				logging.Field{Key: "objects", Value: fmt.Sprintf("%d/%d", update.Current, update.Total)},
				logging.Field{Key: "rate", Value: fmt.Sprintf("%d obj/s", int64(update.Rate))},
			)
		}
		f.log.Info("Filter progress", fields...)
	}
	scanErr := scanner.Err()
	// unblock the tool's output copy if the scan stopped early
	pr.Close()

	waitResult := <-waitErr
	if scanErr != nil {
		return errors.FilterError("failed to read osmium output", scanErr)
	}
	if waitResult != nil {
		var exitErr *exec.ExitError
		if stderrors.As(waitResult, &exitErr) {
			return errors.FilterError(
				fmt.Sprintf("osmium tags-filter failed with exit code %d", exitErr.ExitCode()), waitResult)
		}
		return errors.FilterError("osmium tags-filter failed", waitResult)
	}

	return nil
}

// scanProgressLines splits on \n or \r so osmium's carriage-return
// progress updates are seen as individual lines.
func scanProgressLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func toGB(bytes int64) string {
	return fmt.Sprintf("%.2f", float64(bytes)/(1024*1024*1024))
}
