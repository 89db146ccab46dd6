package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema creates the policy, counter and audit tables.
const Schema = `
CREATE TABLE IF NOT EXISTS policies (
    sector TEXT PRIMARY KEY,
    threshold REAL NOT NULL,
    keyword TEXT NOT NULL,
    unit TEXT NOT NULL DEFAULT '',
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS counters (
    name TEXT PRIMARY KEY,
    value INTEGER NOT NULL DEFAULT 0
);

INSERT OR IGNORE INTO counters (name, value) VALUES ('TOTAL', 0), ('PASS', 0), ('BLOCK', 0);

CREATE TABLE IF NOT EXISTS audit_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id TEXT NOT NULL DEFAULT '',
    timestamp TEXT NOT NULL,
    sector TEXT NOT NULL,
    message TEXT NOT NULL,
    decision TEXT NOT NULL CHECK (decision IN ('SUCCESS', 'BLOCKED')),
    outcome TEXT NOT NULL DEFAULT '',
    feedback TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_log_sector ON audit_log(sector);
CREATE INDEX IF NOT EXISTS idx_audit_log_decision ON audit_log(decision);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

const insertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

const getSchemaVersion = `SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;`

const (
	upsertPolicy = `
INSERT INTO policies (sector, threshold, keyword, unit, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(sector) DO UPDATE SET
    threshold = excluded.threshold,
    keyword = excluded.keyword,
    unit = excluded.unit,
    updated_at = excluded.updated_at;
`
	selectPolicy   = `SELECT sector, threshold, keyword, unit, updated_at FROM policies WHERE sector = ?;`
	selectPolicies = `SELECT sector, threshold, keyword, unit, updated_at FROM policies ORDER BY sector;`

	insertAudit = `
INSERT INTO audit_log (request_id, timestamp, sector, message, decision, outcome, feedback)
VALUES (?, ?, ?, ?, ?, ?, ?);
`
	bumpCounters  = `UPDATE counters SET value = value + 1 WHERE name IN (?, ?);`
	selectRecent  = `SELECT id, request_id, timestamp, sector, message, decision, outcome, feedback FROM audit_log ORDER BY id DESC LIMIT ?;`
	selectCounter = `SELECT name, value FROM counters;`
	countAudit    = `SELECT COUNT(*) FROM audit_log;`
)
