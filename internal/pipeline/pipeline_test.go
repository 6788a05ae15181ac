package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geodata-ingest/internal/common/errors"
	"geodata-ingest/internal/common/logging"
	"geodata-ingest/internal/config"
	"geodata-ingest/internal/database"
)

type fakeVerifier struct {
	exists    bool
	verifyErr error
	existsErr error
	calls     *[]string
}

func (f *fakeVerifier) VerifyConnection(context.Context) error {
	*f.calls = append(*f.calls, "verify")
	return f.verifyErr
}

func (f *fakeVerifier) HasExistingData(context.Context) (bool, error) {
	*f.calls = append(*f.calls, "check")
	return f.exists, f.existsErr
}

type fakeDownloader struct {
	err   error
	calls *[]string
}

func (f *fakeDownloader) DownloadRegion(url, dest string) (string, error) {
	*f.calls = append(*f.calls, "download")
	if f.err != nil {
		return "", f.err
	}
	_ = os.MkdirAll(filepath.Dir(dest), 0o755)
	_ = os.WriteFile(dest, []byte("raw"), 0o644)
	return dest, nil
}

type fakeFilter struct {
	err   error
	calls *[]string
}

func (f *fakeFilter) Filter(input, output string) (string, error) {
	*f.calls = append(*f.calls, "filter")
	if f.err != nil {
		return "", f.err
	}
	_ = os.MkdirAll(filepath.Dir(output), 0o755)
	_ = os.WriteFile(output, []byte("filtered"), 0o644)
	return output, nil
}

type fakeImporter struct {
	err   error
	calls *[]string
}

func (f *fakeImporter) Import(string) error {
	*f.calls = append(*f.calls, "import")
	return f.err
}

func newOSMTestPipeline(t *testing.T, verifier *fakeVerifier, dl *fakeDownloader,
	fl *fakeFilter, imp *fakeImporter, cleanup bool) (*OSMPipeline, *config.OSMConfig) {
	t.Helper()
	cfg := &config.OSMConfig{
		Region:           "europe",
		DBHost:           "localhost",
		DBPort:           5432,
		DBName:           "gis",
		DBUser:           "u",
		DBPassword:       "p",
		Cleanup:          cleanup,
		DataDir:          t.TempDir(),
		GeofabrikBaseURL: "https://download.geofabrik.de",
	}
	return &OSMPipeline{
		cfg:      cfg,
		db:       verifier,
		fetcher:  dl,
		filter:   fl,
		importer: imp,
		log:      logging.NewDefaultLogger(),
	}, cfg
}

func TestOSMPipelineHappyPath(t *testing.T) {
	var calls []string
	p, cfg := newOSMTestPipeline(t,
		&fakeVerifier{calls: &calls},
		&fakeDownloader{calls: &calls},
		&fakeFilter{calls: &calls},
		&fakeImporter{calls: &calls},
		true)

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, []string{"verify", "check", "download", "filter", "import"}, calls)

	_, err := os.Stat(cfg.RawPath())
	assert.True(t, os.IsNotExist(err), "raw file cleaned up")
	_, err = os.Stat(cfg.FilteredPath())
	assert.True(t, os.IsNotExist(err), "filtered file cleaned up")
}

func TestOSMPipelineSkipsWhenDataExists(t *testing.T) {
	var calls []string
	p, _ := newOSMTestPipeline(t,
		&fakeVerifier{exists: true, calls: &calls},
		&fakeDownloader{calls: &calls},
		&fakeFilter{calls: &calls},
		&fakeImporter{calls: &calls},
		true)

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, []string{"verify", "check"}, calls,
		"no download, filter or import on the skip path")
}

func TestOSMPipelineKeepsFilesWithoutCleanup(t *testing.T) {
	var calls []string
	p, cfg := newOSMTestPipeline(t,
		&fakeVerifier{calls: &calls},
		&fakeDownloader{calls: &calls},
		&fakeFilter{calls: &calls},
		&fakeImporter{calls: &calls},
		false)

	require.NoError(t, p.Run(context.Background()))

	_, err := os.Stat(cfg.RawPath())
	assert.NoError(t, err, "raw file kept when cleanup disabled")
	_, err = os.Stat(cfg.FilteredPath())
	assert.NoError(t, err, "filtered file kept when cleanup disabled")
}

func TestOSMPipelineDownloadFailureAborts(t *testing.T) {
	var calls []string
	p, _ := newOSMTestPipeline(t,
		&fakeVerifier{calls: &calls},
		&fakeDownloader{err: errors.DownloadError("boom", nil), calls: &calls},
		&fakeFilter{calls: &calls},
		&fakeImporter{calls: &calls},
		true)

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeDownload))
	assert.Equal(t, []string{"verify", "check", "download"}, calls,
		"filter and import must not run after a failed download")
}

func TestOSMPipelineVerifyFailureAborts(t *testing.T) {
	var calls []string
	p, _ := newOSMTestPipeline(t,
		&fakeVerifier{verifyErr: errors.DatabaseError("no database", nil), calls: &calls},
		&fakeDownloader{calls: &calls},
		&fakeFilter{calls: &calls},
		&fakeImporter{calls: &calls},
		true)

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeDatabase))
	assert.Equal(t, []string{"verify"}, calls)
}

type fakeGeopackageFetcher struct {
	err   error
	calls *[]string
}

func (f *fakeGeopackageFetcher) EnsureGeopackage(url, zipPath, gpkgPath, md5Path string) (string, error) {
	*f.calls = append(*f.calls, "fetch")
	if f.err != nil {
		return "", f.err
	}
	_ = os.MkdirAll(filepath.Dir(gpkgPath), 0o755)
	_ = os.WriteFile(zipPath, []byte("zip"), 0o644)
	_ = os.WriteFile(gpkgPath, []byte("gpkg"), 0o644)
	return gpkgPath, nil
}

type fakeLayerImporter struct {
	err   error
	calls *[]string
}

func (f *fakeLayerImporter) Import(context.Context, string) error {
	*f.calls = append(*f.calls, "import")
	return f.err
}

func newGADMTestPipeline(t *testing.T, verifier *fakeVerifier,
	fetcher *fakeGeopackageFetcher, imp *fakeLayerImporter) (*GADMPipeline, *config.GADMConfig) {
	t.Helper()
	cfg := &config.GADMConfig{
		DBHost: "localhost", DBPort: 5432, DBName: "gis",
		DBUser: "u", DBPassword: "p",
		DataDir:       t.TempDir(),
		GeopackageURL: "https://example.com/gadm.zip",
	}
	return &GADMPipeline{
		cfg:      cfg,
		db:       verifier,
		fetcher:  fetcher,
		importer: imp,
		log:      logging.NewDefaultLogger(),
	}, cfg
}

func TestGADMPipelineHappyPath(t *testing.T) {
	var calls []string
	p, cfg := newGADMTestPipeline(t,
		&fakeVerifier{calls: &calls},
		&fakeGeopackageFetcher{calls: &calls},
		&fakeLayerImporter{calls: &calls})

	require.NoError(t, p.Run(context.Background(), false))
	assert.Equal(t, []string{"verify", "check", "fetch", "import"}, calls)

	_, err := os.Stat(cfg.GeopackagePath())
	assert.True(t, os.IsNotExist(err), "extracted gpkg cleaned up after upload")
	_, err = os.Stat(cfg.ZipPath())
	assert.NoError(t, err, "zip archive kept for future runs")
}

func TestGADMPipelineSkipsWhenDataExists(t *testing.T) {
	var calls []string
	p, _ := newGADMTestPipeline(t,
		&fakeVerifier{exists: true, calls: &calls},
		&fakeGeopackageFetcher{calls: &calls},
		&fakeLayerImporter{calls: &calls})

	require.NoError(t, p.Run(context.Background(), false))
	assert.Equal(t, []string{"verify", "check"}, calls)
}

func TestGADMPipelineForceOverridesSkip(t *testing.T) {
	var calls []string
	p, _ := newGADMTestPipeline(t,
		&fakeVerifier{exists: true, calls: &calls},
		&fakeGeopackageFetcher{calls: &calls},
		&fakeLayerImporter{calls: &calls})

	require.NoError(t, p.Run(context.Background(), true))
	assert.Equal(t, []string{"verify", "check", "fetch", "import"}, calls)
}

// The two jobs deliberately diverge on encoding handling: GADM corrects a
// non-UTF8 database in place, OSM refuses to proceed. Both constructors must
// wire their gatekeeper accordingly.
func TestPipelineEncodingPolicyWiring(t *testing.T) {
	log := logging.NewDefaultLogger()

	osmCfg := &config.OSMConfig{
		Region: "europe",
		DBHost: "localhost", DBPort: 5432, DBName: "gis",
		DBUser: "u", DBPassword: "p",
		DataDir:          t.TempDir(),
		GeofabrikBaseURL: "https://download.geofabrik.de",
	}
	osmGk, ok := NewOSMPipeline(osmCfg, log).db.(*database.Gatekeeper)
	require.True(t, ok)
	assert.Equal(t, database.EncodingStrict, osmGk.Policy())
	assert.Equal(t, database.OSMTables, osmGk.Tables())

	gadmCfg := &config.GADMConfig{
		DBHost: "localhost", DBPort: 5432, DBName: "gis",
		DBUser: "u", DBPassword: "p",
		DataDir: t.TempDir(),
	}
	gadmGk, ok := NewGADMPipeline(gadmCfg, log).db.(*database.Gatekeeper)
	require.True(t, ok)
	assert.Equal(t, database.EncodingAutoFix, gadmGk.Policy())
	assert.Equal(t, database.GADMTables, gadmGk.Tables())
}

func TestGADMPipelineImportFailureSkipsCleanup(t *testing.T) {
	var calls []string
	p, cfg := newGADMTestPipeline(t,
		&fakeVerifier{calls: &calls},
		&fakeGeopackageFetcher{calls: &calls},
		&fakeLayerImporter{err: errors.UploadError("ogr2ogr failed", nil), calls: &calls})

	err := p.Run(context.Background(), false)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeUpload))

	_, statErr := os.Stat(cfg.GeopackagePath())
	assert.NoError(t, statErr, "gpkg kept when upload fails")
}
