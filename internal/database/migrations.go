package database

// SQL migrations for the portfolio bridge database.
// All migrations use IF NOT EXISTS to be idempotent.

// migrationBlobs stores opaque keyed documents: the encrypted session
// mapping and the historical snapshot array.
const migrationBlobs = `
CREATE TABLE IF NOT EXISTS blobs (
    key TEXT PRIMARY KEY,
    data BLOB NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// migrationSyncHistory records per-provider fetch outcomes of aggregation passes.
const migrationSyncHistory = `
CREATE TABLE IF NOT EXISTS sync_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    provider TEXT NOT NULL,
    sync_type TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'started',
    positions_synced INTEGER DEFAULT 0,
    error_message TEXT,
    started_at DATETIME NOT NULL,
    completed_at DATETIME,
    duration_ms INTEGER
);
`

const migrationIndexes = `
CREATE INDEX IF NOT EXISTS idx_sync_history_provider ON sync_history(provider);
CREATE INDEX IF NOT EXISTS idx_sync_history_started ON sync_history(started_at);
`
