package fetch

import (
	"archive/zip"
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"

	"geodata-ingest/internal/common/errors"
	"geodata-ingest/internal/common/logging"
)

// EnsureGeopackage makes sure the GADM GeoPackage is present and valid at
// gpkgPath. The zip archive is downloaded only when it is missing, the
// stored MD5 sidecar is missing, or the archive no longer matches the
// stored digest. After a download the digest is recomputed and persisted.
// The archive is always re-extracted and kept on disk for future runs.
func (f *Fetcher) EnsureGeopackage(url, zipPath, gpkgPath, md5Path string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(zipPath), 0o755); err != nil {
		return "", errors.DownloadError("failed to create data directory", err)
	}

	storedMD5, err := readMD5(md5Path)
	if err != nil {
		return "", err
	}

	needDownload := true
	if _, statErr := os.Stat(zipPath); statErr == nil && storedMD5 != "" {
		actual, md5Err := calculateMD5(zipPath)
		if md5Err != nil {
			return "", md5Err
		}
		needDownload = actual != storedMD5
	}

	if needDownload {
		f.log.Info("Downloading GADM archive",
			logging.Field{Key: "source", Value: url},
			logging.Field{Key: "destination", Value: zipPath},
		)
		if err := f.streamToFile(url, zipPath, true); err != nil {
			return "", err
		}

		newMD5, md5Err := calculateMD5(zipPath)
		if md5Err != nil {
			return "", md5Err
		}
		if err := writeMD5(md5Path, newMD5); err != nil {
			return "", err
		}
		f.log.Info("Download completed",
			logging.Field{Key: "md5", Value: newMD5})
	} else {
		f.log.Info("Archive exists with correct checksum, skipping download")
	}

	if err := extractGeopackage(zipPath, gpkgPath); err != nil {
		return "", err
	}

	f.log.Info("GeoPackage ready",
		logging.Field{Key: "file", Value: filepath.Base(gpkgPath)})
	return gpkgPath, nil
}

// extractGeopackage extracts the single .gpkg member from the archive to
// gpkgPath, whatever it is named inside the zip.
func extractGeopackage(zipPath, gpkgPath string) error {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return errors.DownloadError("failed to open archive", err)
	}
	defer reader.Close()

	for _, member := range reader.File {
		if !strings.HasSuffix(member.Name, ".gpkg") {
			continue
		}

		src, err := member.Open()
		if err != nil {
			return errors.DownloadError("failed to read archive member", err)
		}
		defer src.Close()

		out, err := os.Create(gpkgPath)
		if err != nil {
			return errors.DownloadError("failed to create geopackage file", err)
		}
		defer out.Close()

		if _, err := io.Copy(out, src); err != nil {
			return errors.DownloadError("failed to extract geopackage", err)
		}
		return nil
	}

	return errors.DownloadError("no .gpkg member found in archive", nil)
}

// readMD5 reads the stored digest from the sidecar file. A missing sidecar
// is not an error; it just forces a download.
func readMD5(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", errors.DownloadError("failed to read checksum file", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func writeMD5(path, digest string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.DownloadError("failed to create checksum directory", err)
	}
	if err := os.WriteFile(path, []byte(digest), 0o644); err != nil {
		return errors.DownloadError("failed to write checksum file", err)
	}
	return nil
}

func calculateMD5(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", errors.DownloadError("failed to open file for checksum", err)
	}
	defer file.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", errors.DownloadError("failed to compute checksum", err)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
