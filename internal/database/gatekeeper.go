// Package database verifies the target PostgreSQL database before a
// pipeline run: connection, UTF8 encoding, required extensions, and
// whether a previous run already loaded the target tables.
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"geodata-ingest/internal/common/errors"
)

// EncodingPolicy controls how a non-UTF8 database encoding is handled.
// The two ingestion jobs deliberately differ here and the difference is
// preserved: the GADM job corrects the encoding in place, the OSM job
// refuses to proceed.
type EncodingPolicy int

const (
	// EncodingStrict fails the run when the database is not UTF8.
	EncodingStrict EncodingPolicy = iota
	// EncodingAutoFix updates pg_database to UTF8 when mismatched.
	EncodingAutoFix
)

// GADMTables are the tables the GADM import is expected to create.
var GADMTables = []string{"admin0", "admin1", "admin2", "admin3", "admin4", "admin5"}

// OSMTables are the tables osm2pgsql is expected to create.
var OSMTables = []string{"planet_osm_point", "planet_osm_line", "planet_osm_polygon"}

// conn is the slice of pgx.Conn the gatekeeper uses, factored out so the
// verification branches can be exercised without a live database.
type conn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close(ctx context.Context) error
}

// Gatekeeper runs the pre-flight database checks for one pipeline run.
type Gatekeeper struct {
	connString string
	dbName     string
	policy     EncodingPolicy
	tables     []string
	connect    func(ctx context.Context) (conn, error)
}

// NewGatekeeper builds a gatekeeper for the given connection string. The
// table list is the idempotency signal: if any of them exist the data is
// considered already loaded.
func NewGatekeeper(connString, dbName string, policy EncodingPolicy, tables []string) *Gatekeeper {
	g := &Gatekeeper{
		connString: connString,
		dbName:     dbName,
		policy:     policy,
		tables:     tables,
	}
	g.connect = func(ctx context.Context) (conn, error) {
		c, err := pgx.Connect(ctx, g.connString)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return g
}

// Tables returns the expected-table list used by the existence check.
func (g *Gatekeeper) Tables() []string {
	return g.tables
}

// Policy returns the configured encoding policy.
func (g *Gatekeeper) Policy() EncodingPolicy {
	return g.policy
}

// VerifyConnection confirms the database is reachable, UTF8-encoded per the
// configured policy, and has the postgis and hstore extensions, creating
// them when absent. Idempotent; safe to call on every run.
func (g *Gatekeeper) VerifyConnection(ctx context.Context) error {
	c, err := g.connect(ctx)
	if err != nil {
		return errors.DatabaseError("failed to connect to database", err)
	}
	defer c.Close(ctx)

	var encoding string
	err = c.QueryRow(ctx,
		"SELECT pg_encoding_to_char(encoding) FROM pg_database WHERE datname = $1",
		g.dbName,
	).Scan(&encoding)
	if err == pgx.ErrNoRows {
		return errors.DatabaseError(fmt.Sprintf("database '%s' not found", g.dbName), nil)
	}
	if err != nil {
		return errors.DatabaseError("failed to check database encoding", err)
	}

	if encoding != "UTF8" {
		switch g.policy {
		case EncodingAutoFix:
			_, err = c.Exec(ctx,
				"UPDATE pg_database SET encoding = pg_char_to_encoding('UTF8') WHERE datname = $1",
				g.dbName,
			)
			if err != nil {
				return errors.DatabaseError("failed to update database encoding", err)
			}
		default:
			return errors.DatabaseError(
				fmt.Sprintf("database must use UTF8 encoding, found: %s", encoding), nil)
		}
	}

	if _, err = c.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS postgis"); err != nil {
		return errors.DatabaseError("failed to ensure postgis extension", err)
	}
	var postgisVersion string
	if err = c.QueryRow(ctx, "SELECT PostGIS_version()").Scan(&postgisVersion); err != nil {
		return errors.DatabaseError("failed to query PostGIS version", err)
	}
	if _, err = c.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS hstore"); err != nil {
		return errors.DatabaseError("failed to ensure hstore extension", err)
	}

	return nil
}

// HasExistingData reports whether any of the expected tables already exist.
// True means a previous run loaded data and the pipeline should skip.
func (g *Gatekeeper) HasExistingData(ctx context.Context) (bool, error) {
	c, err := g.connect(ctx)
	if err != nil {
		return false, errors.DatabaseError("failed to connect to database", err)
	}
	defer c.Close(ctx)

	var exists bool
	err = c.QueryRow(ctx,
		"SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = ANY($1))",
		g.tables,
	).Scan(&exists)
	if err != nil {
		return false, errors.DatabaseError("failed to check existing tables", err)
	}

	return exists, nil
}

// CountRows returns the row count of a table created by an import. Used to
// verify each GADM layer import actually landed rows.
func (g *Gatekeeper) CountRows(ctx context.Context, table string) (int64, error) {
	c, err := g.connect(ctx)
	if err != nil {
		return 0, errors.DatabaseError("failed to connect to database", err)
	}
	defer c.Close(ctx)

	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", pgx.Identifier{table}.Sanitize())
	if err = c.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, errors.DatabaseError(fmt.Sprintf("failed to count rows in %s", table), err)
	}

	return count, nil
}
