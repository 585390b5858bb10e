package migrations

import (
	"database/sql"
	"fmt"
	"strings"
)

// All returns the schema history in order. Append new migrations at the end.
func All() []Migration {
	return []Migration{
		{
			ID:          "000_initial_schema",
			Description: "Create notes and ordered note images",
			Up:          initialSchemaUp,
			Down:        initialSchemaDown,
		},
		{
			ID:          "001_vector_records",
			Description: "Create vector record storage shared by the text and image indices",
			Up:          vectorRecordsUp,
			Down:        vectorRecordsDown,
		},
		{
			ID:          "002_reconcile_queue",
			Description: "Create the queue of notes whose indices need reconciliation",
			Up:          reconcileQueueUp,
			Down:        reconcileQueueDown,
		},
	}
}

func execAll(tx *sql.Tx, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(stmt string) string {
	line, _, _ := strings.Cut(stmt, "\n")
	return strings.TrimSuffix(strings.TrimSpace(line), " (")
}

func initialSchemaUp(tx *sql.Tx) error {
	return execAll(tx,
		`CREATE TABLE IF NOT EXISTS notes (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notes_updated_at ON notes(updated_at)`,
		`CREATE TABLE IF NOT EXISTS note_images (
			note_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			uri TEXT NOT NULL,
			PRIMARY KEY (note_id, position),
			FOREIGN KEY (note_id) REFERENCES notes(id) ON DELETE CASCADE
		)`,
	)
}

func initialSchemaDown(tx *sql.Tx) error {
	return execAll(tx,
		`DROP TABLE IF EXISTS note_images`,
		`DROP INDEX IF EXISTS idx_notes_updated_at`,
		`DROP TABLE IF EXISTS notes`,
	)
}

// vector_records has no foreign key to notes: vectors may outlive a deleted
// record until reconciliation removes them.
func vectorRecordsUp(tx *sql.Tx) error {
	return execAll(tx,
		`CREATE TABLE IF NOT EXISTS vector_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			index_name TEXT NOT NULL,
			note_id TEXT NOT NULL,
			image_uri TEXT NOT NULL DEFAULT '',
			dimensions INTEGER NOT NULL,
			embedding BLOB NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_vector_records_note ON vector_records(index_name, note_id)`,
	)
}

func vectorRecordsDown(tx *sql.Tx) error {
	return execAll(tx,
		`DROP INDEX IF EXISTS idx_vector_records_note`,
		`DROP TABLE IF EXISTS vector_records`,
	)
}

func reconcileQueueUp(tx *sql.Tx) error {
	return execAll(tx,
		`CREATE TABLE IF NOT EXISTS reconcile_queue (
			note_id TEXT PRIMARY KEY,
			operation TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			enqueued_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
	)
}

func reconcileQueueDown(tx *sql.Tx) error {
	return execAll(tx, `DROP TABLE IF EXISTS reconcile_queue`)
}
