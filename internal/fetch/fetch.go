// Package fetch retrieves remote geodata archives over HTTP with streaming
// writes and skip logic so repeated runs avoid re-downloading. Two
// strategies exist: checksum-gated (GADM zip with an MD5 sidecar) and
// existence-gated (OSM extracts, skipped whenever the file is present).
package fetch

import (
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"geodata-ingest/internal/common/errors"
	"geodata-ingest/internal/common/logging"
)

const chunkSize = 8192

// Fetcher downloads remote archives to local paths.
type Fetcher struct {
	client *http.Client
	log    logging.Logger
}

// New creates a Fetcher with default transport settings.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client: defaultClient(),
		log:    logging.GetGlobalLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// DownloadRegion downloads an OSM extract to dest, skipping entirely when
// dest already exists. Progress is reported every 5% of the known total
// size, or every 100MB when the size is unknown. On any failure the partial
// file is removed.
func (f *Fetcher) DownloadRegion(url, dest string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", errors.DownloadError("failed to create download directory", err)
	}

	if info, err := os.Stat(dest); err == nil {
		f.log.Info("File already exists, skipping download",
			logging.Field{Key: "file", Value: filepath.Base(dest)},
			logging.Field{Key: "size", Value: FormatSize(info.Size())},
		)
		return dest, nil
	}

	f.log.Info("Downloading",
		logging.Field{Key: "source", Value: url},
		logging.Field{Key: "destination", Value: dest},
	)

	if err := f.streamToFile(url, dest, true); err != nil {
		if removeErr := os.Remove(dest); removeErr != nil && !os.IsNotExist(removeErr) {
			f.log.Warn("Failed to remove partial download",
				logging.Field{Key: "file", Value: dest})
		}
		return "", err
	}

	return dest, nil
}

// streamToFile performs one GET and writes the body to dest in fixed-size
// chunks, optionally reporting progress.
func (f *Fetcher) streamToFile(url, dest string, reportProgress bool) error {
	resp, err := f.client.Get(url)
	if err != nil {
		if msg, ok := f.timeoutMessage(err); ok {
			return errors.DownloadError(msg, err)
		}
		return errors.DownloadError("download failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.DownloadError(
			fmt.Sprintf("download failed: unexpected status %s", resp.Status), nil)
	}

	totalSize := resp.ContentLength
	if reportProgress {
		if totalSize <= 0 {
			f.log.Warn("Unable to determine file size")
		} else {
			f.log.Info("File size known",
				logging.Field{Key: "size", Value: FormatSize(totalSize)})
		}
	}

	out, err := os.Create(dest)
	if err != nil {
		return errors.DownloadError("failed to create output file", err)
	}
	defer out.Close()

	var downloaded int64
	lastReportedPercent := -1
	lastReportedMB := int64(-100)
	startTime := time.Now()
	buf := make([]byte, chunkSize)

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return errors.DownloadError("failed to write download chunk", writeErr)
			}
			downloaded += int64(n)

			if reportProgress {
				elapsed := time.Since(startTime).Seconds()
				speed := float64(downloaded)
				if elapsed > 0 {
					speed = float64(downloaded) / elapsed
				}

				if totalSize > 0 {
					percent := int(downloaded * 100 / totalSize)
					if percent >= lastReportedPercent+5 {
						f.log.Info("Progress",
							logging.Field{Key: "percent", Value: percent},
							logging.Field{Key: "downloaded", Value: FormatSize(downloaded)},
							logging.Field{Key: "total", Value: FormatSize(totalSize)},
							logging.Field{Key: "speed", Value: FormatSize(int64(speed)) + "/s"},
						)
						lastReportedPercent = percent
					}
				} else {
					mbDownloaded := downloaded / (1024 * 1024)
					if mbDownloaded >= lastReportedMB+100 {
						f.log.Info("Progress",
							logging.Field{Key: "downloaded", Value: FormatSize(downloaded)},
							logging.Field{Key: "speed", Value: FormatSize(int64(speed)) + "/s"},
						)
						lastReportedMB = mbDownloaded
					}
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if msg, ok := f.timeoutMessage(readErr); ok {
				return errors.DownloadError(msg, readErr)
			}
			return errors.DownloadError("download interrupted", readErr)
		}
	}

	if reportProgress {
		elapsed := time.Since(startTime).Seconds()
		avgSpeed := float64(downloaded)
		if elapsed > 0 {
			avgSpeed = float64(downloaded) / elapsed
		}
		f.log.Info("Download complete",
			logging.Field{Key: "downloaded", Value: FormatSize(downloaded)},
			logging.Field{Key: "elapsed", Value: fmt.Sprintf("%.1fs", elapsed)},
			logging.Field{Key: "avg_speed", Value: FormatSize(int64(avgSpeed)) + "/s"},
		)
	}

	return nil
}

// timeoutMessage maps a timeout error to a message naming the configured
// ceiling. Only meaningful when a whole-request timeout is set; the default
// header-only timeout surfaces as a plain transport error.
func (f *Fetcher) timeoutMessage(err error) (string, bool) {
	var netErr net.Error
	if f.client.Timeout > 0 && stderrors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Sprintf("download timed out after %s", f.client.Timeout), true
	}
	return "", false
}

// FormatSize formats a byte count as a human-readable size string.
func FormatSize(bytes int64) string {
	size := float64(bytes)
	for _, unit := range []string{"B", "KB", "MB", "GB", "TB"} {
		if size < 1024.0 {
			return fmt.Sprintf("%.2f %s", size, unit)
		}
		size /= 1024.0
	}
	return fmt.Sprintf("%.2f PB", size)
}
