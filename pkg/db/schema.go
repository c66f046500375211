package db

import "fmt"

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS lifecycle_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    op_id TEXT NOT NULL,
    op TEXT NOT NULL,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL DEFAULT '',
    price TEXT NOT NULL DEFAULT '',
    size TEXT NOT NULL DEFAULT '',
    order_id INTEGER NOT NULL DEFAULT -1,
    outcome TEXT NOT NULL,
    detail TEXT NOT NULL DEFAULT '',
    balance TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_lifecycle_events_created ON lifecycle_events(created_at);
`

// ApplyMigrations creates the journal tables.
func ApplyMigrations(d *Database) error {
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
