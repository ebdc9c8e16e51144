package store

import (
	"database/sql"
	"fmt"
)

const schemaVersion = 1

func initSchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}
	if version == schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := createTables(tx, version); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}
	return tx.Commit()
}

func createTables(tx *sql.Tx, from int) error {
	var queries []string
	if from != 0 {
		// Unknown layout from another release; the store is a cache and is
		// rebuilt by the next workspace scan.
		queries = append(queries,
			`DROP TABLE IF EXISTS symbols`,
			`DROP TABLE IF EXISTS documents`,
		)
	}

	queries = append(queries,
		// One row per indexed DBML file.
		// - hash: xxhash of the content, used to skip unchanged files
		`CREATE TABLE IF NOT EXISTS documents (
            uri TEXT PRIMARY KEY,
            hash INTEGER NOT NULL,
            indexed_at INTEGER NOT NULL
        )`,

		// Declared names of a document, removed with it.
		`CREATE TABLE IF NOT EXISTS symbols (
            uri TEXT NOT NULL,
            name TEXT NOT NULL,
            kind TEXT NOT NULL,
            container TEXT NOT NULL DEFAULT '',
            detail TEXT NOT NULL DEFAULT '',
            start_row INTEGER NOT NULL,
            start_col INTEGER NOT NULL,
            end_row INTEGER NOT NULL,
            end_col INTEGER NOT NULL,
            FOREIGN KEY (uri) REFERENCES documents(uri) ON DELETE CASCADE
        )`,

		`CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name)`,
		`CREATE INDEX IF NOT EXISTS idx_symbols_uri ON symbols(uri)`,
	)

	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query %q: %w", query, err)
		}
	}
	return nil
}
