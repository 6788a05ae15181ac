package database

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geodata-ingest/internal/common/errors"
)

func TestNewGatekeeper(t *testing.T) {
	gk := NewGatekeeper("host=localhost port=5432 dbname=gis user=u password=p",
		"gis", EncodingAutoFix, GADMTables)

	assert.Equal(t, EncodingAutoFix, gk.Policy())
	assert.Equal(t, GADMTables, gk.Tables())
}

func TestExpectedTableLists(t *testing.T) {
	assert.Equal(t,
		[]string{"admin0", "admin1", "admin2", "admin3", "admin4", "admin5"},
		GADMTables)
	assert.Equal(t,
		[]string{"planet_osm_point", "planet_osm_line", "planet_osm_polygon"},
		OSMTables)
}

type fakeRow struct {
	str     string
	boolean bool
	err     error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for _, d := range dest {
		switch v := d.(type) {
		case *string:
			*v = r.str
		case *bool:
			*v = r.boolean
		}
	}
	return nil
}

type fakeConn struct {
	encoding  string
	dbMissing bool
	hasTables bool
	execs     []string
	closed    bool
}

func (c *fakeConn) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	switch {
	case strings.Contains(sql, "pg_encoding_to_char"):
		if c.dbMissing {
			return fakeRow{err: pgx.ErrNoRows}
		}
		return fakeRow{str: c.encoding}
	case strings.Contains(sql, "PostGIS_version"):
		return fakeRow{str: "3.4.2"}
	case strings.Contains(sql, "information_schema.tables"):
		return fakeRow{boolean: c.hasTables}
	}
	return fakeRow{}
}

func (c *fakeConn) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	c.execs = append(c.execs, sql)
	return pgconn.CommandTag{}, nil
}

func (c *fakeConn) Close(context.Context) error {
	c.closed = true
	return nil
}

func newTestGatekeeper(policy EncodingPolicy, tables []string, fc *fakeConn) *Gatekeeper {
	gk := NewGatekeeper("host=localhost port=5432 dbname=gis user=u password=p",
		"gis", policy, tables)
	gk.connect = func(context.Context) (conn, error) { return fc, nil }
	return gk
}

func TestVerifyConnectionUTF8(t *testing.T) {
	fc := &fakeConn{encoding: "UTF8"}
	gk := newTestGatekeeper(EncodingStrict, OSMTables, fc)

	require.NoError(t, gk.VerifyConnection(context.Background()))
	assert.True(t, fc.closed)
	for _, q := range fc.execs {
		assert.NotContains(t, q, "UPDATE pg_database",
			"UTF8 database must not be touched")
	}
}

func TestVerifyConnectionStrictRejectsNonUTF8(t *testing.T) {
	fc := &fakeConn{encoding: "LATIN1"}
	gk := newTestGatekeeper(EncodingStrict, OSMTables, fc)

	err := gk.VerifyConnection(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeDatabase))
	assert.Contains(t, err.Error(), "LATIN1")
	assert.Empty(t, fc.execs, "no statements run once the encoding check fails")
}

func TestVerifyConnectionAutoFixUpdatesEncoding(t *testing.T) {
	fc := &fakeConn{encoding: "LATIN1"}
	gk := newTestGatekeeper(EncodingAutoFix, GADMTables, fc)

	require.NoError(t, gk.VerifyConnection(context.Background()))

	var sawUpdate bool
	for _, q := range fc.execs {
		if strings.Contains(q, "UPDATE pg_database") {
			sawUpdate = true
		}
	}
	assert.True(t, sawUpdate, "auto-fix policy must correct the encoding in place")
}

func TestVerifyConnectionEnsuresExtensions(t *testing.T) {
	fc := &fakeConn{encoding: "UTF8"}
	gk := newTestGatekeeper(EncodingAutoFix, GADMTables, fc)

	require.NoError(t, gk.VerifyConnection(context.Background()))
	assert.Contains(t, fc.execs, "CREATE EXTENSION IF NOT EXISTS postgis")
	assert.Contains(t, fc.execs, "CREATE EXTENSION IF NOT EXISTS hstore")
}

func TestVerifyConnectionMissingDatabase(t *testing.T) {
	fc := &fakeConn{dbMissing: true}
	gk := newTestGatekeeper(EncodingStrict, OSMTables, fc)

	err := gk.VerifyConnection(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeDatabase))
	assert.Contains(t, err.Error(), "not found")
}

func TestHasExistingData(t *testing.T) {
	for _, exists := range []bool{true, false} {
		fc := &fakeConn{encoding: "UTF8", hasTables: exists}
		gk := newTestGatekeeper(EncodingStrict, OSMTables, fc)

		got, err := gk.HasExistingData(context.Background())
		require.NoError(t, err)
		assert.Equal(t, exists, got)
		assert.True(t, fc.closed)
	}
}
