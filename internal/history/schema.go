package history

// schemaVersion is the target schema version for this build.
const schemaVersion = 1

const schemaSQL = `
CREATE TABLE schema_version (
    version INTEGER NOT NULL
);

CREATE TABLE runs (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at  TEXT NOT NULL,
    finished_at TEXT NOT NULL,
    dry_run     INTEGER NOT NULL DEFAULT 0,
    ok          INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE run_rules (
    run_id INTEGER NOT NULL REFERENCES runs(id),
    rule   TEXT NOT NULL,
    status TEXT NOT NULL,
    error  TEXT NOT NULL DEFAULT ''
);

CREATE INDEX idx_run_rules_run ON run_rules(run_id);
`
