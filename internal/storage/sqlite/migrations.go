package sqlite

import "database/sql"

// schema holds every mirrored collection in one table; filters run through
// json_extract so the mirror accepts the same queries as the remote store.
const schema = `
CREATE TABLE IF NOT EXISTS records (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    collection TEXT NOT NULL,
    doc TEXT NOT NULL CHECK (json_valid(doc))
);

CREATE TABLE IF NOT EXISTS mirror_runs (
    id TEXT PRIMARY KEY,
    collection TEXT NOT NULL,
    records INTEGER NOT NULL,
    mirrored_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_collection ON records(collection);
CREATE INDEX IF NOT EXISTS idx_records_id ON records(collection, json_extract(doc, '$.id'));
CREATE INDEX IF NOT EXISTS idx_mirror_runs_collection ON mirror_runs(collection, mirrored_at);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
