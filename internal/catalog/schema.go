package catalog

import (
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// CurrentSchemaVersion is bumped whenever schema.sql changes in a way an
// existing database file cannot be upgraded into in place (new columns
// included: CREATE TABLE IF NOT EXISTS never alters an already-created
// table). Open compares this against the persisted value and, on mismatch,
// discards and recreates the store rather than operating against a
// database it does not understand.
const CurrentSchemaVersion = 2

// ErrSchemaMismatch is returned by Open when an existing database reports a
// schema version this build does not know how to speak.
var ErrSchemaMismatch = fmt.Errorf("catalog: schema version mismatch")

func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("catalog: create schema: %w", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&count); err != nil {
		return fmt.Errorf("catalog: read schema version: %w", err)
	}
	if count == 0 {
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, CurrentSchemaVersion); err != nil {
			return fmt.Errorf("catalog: seed schema version: %w", err)
		}
		return nil
	}

	var version int
	if err := db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version); err != nil {
		return fmt.Errorf("catalog: read schema version: %w", err)
	}
	if version != CurrentSchemaVersion {
		return fmt.Errorf("%w: database has version %d, build expects %d", ErrSchemaMismatch, version, CurrentSchemaVersion)
	}
	return nil
}
