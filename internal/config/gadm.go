// Package config loads and validates job configuration from environment
// variables. Each job has its own immutable config struct constructed once
// at process start; components never read the environment themselves.
//
// Environment Variables (GADM job):
//
// Database connection (required):
//   - DB_HOST: PostgreSQL host
//   - DB_NAME: PostgreSQL database name
//   - DB_USER: PostgreSQL username
//   - DB_PASSWORD: PostgreSQL password
//   - DB_PORT: PostgreSQL port (default: 5432)
//
// Download source (required):
//   - GADM_GEOPACKAGE_URL: URL of the gadm_410-levels zip archive
//
// Storage and tools:
//   - DATA_DIR: working directory for downloads (default: /app/data)
//   - OGR2OGR_PATH: ogr2ogr binary (default: /usr/bin/ogr2ogr)
package config

import (
	"fmt"
	"path/filepath"
)

// GADMConfig holds configuration for the GADM boundary ingestion job.
type GADMConfig struct {
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string

	DataDir     string
	Ogr2ogrPath string

	GeopackageURL string
}

// GeopackagePath is the extracted gadm_410-levels.gpkg location.
func (c *GADMConfig) GeopackagePath() string {
	return filepath.Join(c.DataDir, "gadm_410-levels.gpkg")
}

// ZipPath is the downloaded gadm_410-levels.zip location.
// The archive is retained across runs so re-runs can skip the download.
func (c *GADMConfig) ZipPath() string {
	return filepath.Join(c.DataDir, "gadm_410-levels.zip")
}

// MD5Path is the checksum sidecar for the zip archive.
func (c *GADMConfig) MD5Path() string {
	return filepath.Join(c.DataDir, "gadm_410-levels.md5")
}

// ConnString assembles the PostgreSQL connection string. It carries the
// password, so it is handed to the database layer and ogr2ogr only, never
// logged.
func (c *GADMConfig) ConnString() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword)
}

// LoadGADMConfig loads and validates the GADM job configuration from
// environment variables, failing fast with a configuration error on any
// missing or invalid value.
func LoadGADMConfig() (*GADMConfig, error) {
	dbHost, err := requireEnv("DB_HOST")
	if err != nil {
		return nil, err
	}
	dbName, err := requireEnv("DB_NAME")
	if err != nil {
		return nil, err
	}
	dbUser, err := requireEnv("DB_USER")
	if err != nil {
		return nil, err
	}
	dbPassword, err := requireEnv("DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	dbPort, err := getEnvInt("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}

	geopackageURL, err := requireEnv("GADM_GEOPACKAGE_URL")
	if err != nil {
		return nil, err
	}

	return &GADMConfig{
		DBHost:        dbHost,
		DBPort:        dbPort,
		DBName:        dbName,
		DBUser:        dbUser,
		DBPassword:    dbPassword,
		DataDir:       getEnv("DATA_DIR", "/app/data"),
		Ogr2ogrPath:   getEnv("OGR2OGR_PATH", "/usr/bin/ogr2ogr"),
		GeopackageURL: geopackageURL,
	}, nil
}
