package db

import (
	"database/sql"
	"fmt"
	"strings"
)

// migrations are run in order on every open. Statements use IF NOT EXISTS so
// re-running the full list is safe; ALTER TABLE additions are tolerated via
// the duplicate-column check in Migrate.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS projects (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS work_items (
		id         TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		parent_id  TEXT REFERENCES work_items(id),
		title      TEXT NOT NULL,
		order_key  TEXT NOT NULL,
		version    INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_work_items_project ON work_items(project_id)`,
	`CREATE INDEX IF NOT EXISTS idx_work_items_parent ON work_items(parent_id)`,

	// Sibling order keys are unique per (project, parent). COALESCE folds
	// root-level items (NULL parent) into one group per project.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_work_items_sibling_key
		ON work_items(project_id, COALESCE(parent_id, ''), order_key)`,

	`CREATE TABLE IF NOT EXISTS mutation_log (
		id           TEXT PRIMARY KEY,
		project_id   TEXT NOT NULL,
		item_id      TEXT,
		kind         TEXT NOT NULL,
		detail       TEXT NOT NULL DEFAULT '',
		committed_at TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_mutation_log_project ON mutation_log(project_id, committed_at)`,
}

// Migrate runs all schema migrations.
func Migrate(db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			// Tolerate "duplicate column name" errors from ALTER TABLE
			// since the migration system re-runs all statements.
			if strings.Contains(err.Error(), "duplicate column name") {
				continue
			}
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
