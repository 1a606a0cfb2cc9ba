// Package sqlitedb opens the embedded SQLite file that backs the media
// library, applies the WAL pragmas the worker pipeline needs, and checks
// (without multi-version migration support) the stored schema version
// against the one this build ships.
package sqlitedb

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/silverreel/medialib/internal/mlerrors"
)

// CurrentSchemaVersion is the schema this build writes and expects to read.
// There is no multi-step migration ladder: a database opened with an older
// stored version is upgraded in one "to current" step, and a newer stored
// version is refused outright (see DESIGN.md's Open Question decision).
const CurrentSchemaVersion = 1

// connParams mirrors the write-optimized WAL connection string used for
// other embedded-sqlite media stores in the same idiom: defer checkpoints,
// keep a large page cache, enforce foreign keys at the driver level.
func connParams() string {
	return "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000" +
		"&_foreign_keys=ON&_cache_size=-32768&_temp_store=MEMORY"
}

// DB wraps the raw *sql.DB with the logger each subsystem constructor
// expects to be handed.
type DB struct {
	SQL *sql.DB
	Log zerolog.Logger
}

// Open opens (creating if absent) the sqlite file at path, applies pragmas,
// and ensures the Settings/schema-version bookkeeping row exists and is
// current.
func Open(path string, log zerolog.Logger) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", path+connParams())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	// A single writer goroutine, in practice, always serializes through
	// internal/swmr, but the driver itself is also told there is exactly
	// one physical connection to avoid SQLITE_BUSY thrashing under WAL.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping %s: %w", path, err)
	}

	db := &DB{SQL: sqlDB, Log: log}
	if err := db.ensureSchema(); err != nil {
		sqlDB.Close()
		return nil, err
	}

	log.Info().Str("path", path).Msg("database opened")
	return db, nil
}

// Close releases the underlying connection.
func (db *DB) Close() error {
	return db.SQL.Close()
}

func (db *DB) ensureSchema() error {
	_, err := db.SQL.Exec(`CREATE TABLE IF NOT EXISTS Settings (
		id INTEGER PRIMARY KEY CHECK (id = 0),
		schema_version INTEGER NOT NULL,
		db_model_version INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create Settings table: %w", err)
	}

	row := db.SQL.QueryRow(`SELECT schema_version FROM Settings WHERE id = 0`)
	var stored uint32
	switch err := row.Scan(&stored); err {
	case sql.ErrNoRows:
		if err := db.createSchema(); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		_, err := db.SQL.Exec(
			`INSERT INTO Settings (id, schema_version, db_model_version) VALUES (0, ?, ?)`,
			CurrentSchemaVersion, CurrentSchemaVersion,
		)
		if err != nil {
			return fmt.Errorf("seed Settings row: %w", err)
		}
		return nil
	case nil:
		if stored > CurrentSchemaVersion {
			return fmt.Errorf("%w: stored=%d current=%d", mlerrors.ErrSchemaTooNew, stored, CurrentSchemaVersion)
		}
		if stored < CurrentSchemaVersion {
			db.Log.Info().Uint32("from", stored).Uint32("to", uint32(CurrentSchemaVersion)).
				Msg("migrating database to current schema")
			if err := db.createSchema(); err != nil {
				return fmt.Errorf("migrate schema: %w", err)
			}
			_, err := db.SQL.Exec(`UPDATE Settings SET schema_version = ?, db_model_version = ? WHERE id = 0`,
				CurrentSchemaVersion, CurrentSchemaVersion)
			if err != nil {
				return fmt.Errorf("update Settings row: %w", err)
			}
		}
		return nil
	default:
		return fmt.Errorf("read Settings row: %w", err)
	}
}

// createSchema issues every entity's CREATE TABLE/CREATE TRIGGER statement.
// Each statement is individually idempotent (IF NOT EXISTS) so this can run
// both on first-open and on an upgrade-to-current pass.
func (db *DB) createSchema() error {
	for _, stmt := range schemaStatements {
		if _, err := db.SQL.Exec(stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}
	return nil
}

// schemaStatements is populated by each internal/entity file's init(),
// via Register, so schema ownership stays next to the repository that
// uses it instead of living in one monolithic sqlitedb file.
var schemaStatements []string

// Register appends one or more CREATE TABLE/CREATE TRIGGER/CREATE INDEX
// statements to the set sqlitedb.Open applies. Intended to be called from
// package-level init() functions in internal/entity.
func Register(stmts ...string) {
	schemaStatements = append(schemaStatements, stmts...)
}
