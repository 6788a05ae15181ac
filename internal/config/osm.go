package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Regions is the closed set of supported OSM extracts.
var Regions = []string{
	"africa",
	"antarctica",
	"asia",
	"australia-oceania",
	"central-america",
	"europe",
	"north-america",
	"south-america",
	"planet",
}

// OSMConfig holds configuration for the OSM road-network ingestion job.
//
// Environment Variables (OSM job):
//   - OSM_REGION (required): one of Regions
//   - DB_HOST, DB_NAME, DB_USER, DB_PASSWORD (required), DB_PORT (5432)
//   - CACHE_SIZE_MB: osm2pgsql node cache in MB (default: 2000)
//   - NUM_PROCESSES: osm2pgsql parallelism (default: 4)
//   - CLEANUP: delete intermediate files after use (default: true)
//   - DROP_SLIM_TABLES: pass --drop to osm2pgsql (default: false)
//   - DATA_DIR: working directory (default: /app/data)
//   - GEOFABRIK_BASE_URL: download mirror (default: https://download.geofabrik.de)
//   - LOG_LEVEL: DEBUG/INFO/WARNING/ERROR (default: INFO)
//   - LOG_FORMAT: json/text (default: json)
type OSMConfig struct {
	Region string

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string

	CacheSizeMB    int
	NumProcesses   int
	Cleanup        bool
	DropSlimTables bool

	DataDir string

	GeofabrikBaseURL string

	LogLevel  string
	LogFormat string
}

// RawDir is the directory for raw downloaded OSM extracts.
func (c *OSMConfig) RawDir() string {
	return filepath.Join(c.DataDir, "raw")
}

// FilteredDir is the directory for filtered (roads-only) extracts.
func (c *OSMConfig) FilteredDir() string {
	return filepath.Join(c.DataDir, "filtered")
}

// RawPath is the destination for the downloaded extract.
func (c *OSMConfig) RawPath() string {
	return filepath.Join(c.RawDir(), fmt.Sprintf("%s-latest.osm.pbf", c.Region))
}

// FilteredPath is the destination for the roads-only extract.
func (c *OSMConfig) FilteredPath() string {
	return filepath.Join(c.FilteredDir(), fmt.Sprintf("%s-roads.osm.pbf", c.Region))
}

// DownloadURL returns the source URL for the configured region. The planet
// extract lives on planet.openstreetmap.org rather than Geofabrik, unless a
// custom mirror is configured, in which case the mirror serves it too.
func (c *OSMConfig) DownloadURL() string {
	if c.Region == "planet" {
		if strings.Contains(c.GeofabrikBaseURL, "download.geofabrik.de") {
			return "https://planet.openstreetmap.org/pbf/planet-latest.osm.pbf"
		}
		return fmt.Sprintf("%s/planet-latest.osm.pbf", c.GeofabrikBaseURL)
	}
	return fmt.Sprintf("%s/%s-latest.osm.pbf", c.GeofabrikBaseURL, c.Region)
}

// ConnString assembles the PostgreSQL connection string. It carries the
// password, so it is handed to the database layer only, never logged.
func (c *OSMConfig) ConnString() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword)
}

// LoadOSMConfig loads and validates the OSM job configuration from
// environment variables, failing fast with a configuration error on any
// missing or invalid value.
func LoadOSMConfig() (*OSMConfig, error) {
	region, err := requireEnvRegion()
	if err != nil {
		return nil, err
	}

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
	cacheSizeMB, err := getEnvInt("CACHE_SIZE_MB", 2000)
	if err != nil {
		return nil, err
	}
	numProcesses, err := getEnvInt("NUM_PROCESSES", 4)
	if err != nil {
		return nil, err
	}

	logLevel, err := parseLogLevel(getEnv("LOG_LEVEL", "INFO"))
	if err != nil {
		return nil, err
	}
	logFormat, err := parseLogFormat(getEnv("LOG_FORMAT", "json"))
	if err != nil {
		return nil, err
	}

	return &OSMConfig{
		Region:           region,
		DBHost:           dbHost,
		DBPort:           dbPort,
		DBName:           dbName,
		DBUser:           dbUser,
		DBPassword:       dbPassword,
		CacheSizeMB:      cacheSizeMB,
		NumProcesses:     numProcesses,
		Cleanup:          getEnvBool("CLEANUP", true),
		DropSlimTables:   getEnvBool("DROP_SLIM_TABLES", false),
		DataDir:          getEnv("DATA_DIR", "/app/data"),
		GeofabrikBaseURL: strings.TrimRight(getEnv("GEOFABRIK_BASE_URL", "https://download.geofabrik.de"), "/"),
		LogLevel:         logLevel,
		LogFormat:        logFormat,
	}, nil
}

func requireEnvRegion() (string, error) {
	region, err := requireEnv("OSM_REGION")
	if err != nil {
		return "", configErrorf("OSM_REGION environment variable is required.\nAvailable regions: %s",
			strings.Join(Regions, ", "))
	}
	for _, r := range Regions {
		if region == r {
			return region, nil
		}
	}
	return "", configErrorf("Invalid region: %s\nAvailable regions: %s",
		region, strings.Join(Regions, ", "))
}

func parseLogLevel(level string) (string, error) {
	level = strings.ToUpper(level)
	switch level {
	case "DEBUG", "INFO", "WARNING", "ERROR":
		return level, nil
	}
	return "", configErrorf("Invalid LOG_LEVEL: %s. Must be one of: DEBUG, INFO, WARNING, ERROR", level)
}

func parseLogFormat(format string) (string, error) {
	format = strings.ToLower(format)
	switch format {
	case "json", "text":
		return format, nil
	}
	return "", configErrorf("Invalid LOG_FORMAT: %s. Must be 'json' or 'text'", format)
}
