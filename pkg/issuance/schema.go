package issuance

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema creates the issuance tables. Timestamps are stored as Unix
// nanoseconds so both SQLite drivers read them back identically.
const Schema = `
CREATE TABLE IF NOT EXISTS issued_certificates (
    id TEXT PRIMARY KEY,
    serial TEXT NOT NULL,
    subject TEXT NOT NULL,
    issuer TEXT NOT NULL,
    not_before INTEGER NOT NULL,
    not_after INTEGER NOT NULL,
    issued_at INTEGER NOT NULL,
    peer_subject TEXT,
    peer_serial TEXT,
    connection_id TEXT,
    channel TEXT
);

CREATE INDEX IF NOT EXISTS idx_issued_at ON issued_certificates(issued_at);
CREATE INDEX IF NOT EXISTS idx_issued_serial ON issued_certificates(serial);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY
);
`

// InsertSchemaVersion records the schema version.
const InsertSchemaVersion = `INSERT OR IGNORE INTO schema_version (version) VALUES (?)`

// GetSchemaVersion reads the highest schema version.
const GetSchemaVersion = `SELECT MAX(version) FROM schema_version`
