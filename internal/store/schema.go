package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
    source               TEXT NOT NULL,
    doc_id               TEXT NOT NULL,
    file_path            TEXT NOT NULL,
    repo                 TEXT,
    model                TEXT,
    start_time           TEXT,
    file_mtime_ns        INTEGER NOT NULL,
    file_size            INTEGER NOT NULL,
    user_events          INTEGER NOT NULL DEFAULT 0,
    event_count          INTEGER NOT NULL DEFAULT 0,
    parsed_at            TEXT NOT NULL,
    PRIMARY KEY (source, doc_id)
);

CREATE TABLE IF NOT EXISTS document_text (
    source               TEXT NOT NULL,
    doc_id               TEXT NOT NULL,
    text                 TEXT NOT NULL,
    updated_at           TEXT NOT NULL,
    PRIMARY KEY (source, doc_id)
);

CREATE TABLE IF NOT EXISTS file_tracker (
    file_path            TEXT PRIMARY KEY,
    mtime_ns             INTEGER NOT NULL,
    size_bytes           INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_path ON documents(file_path);
CREATE INDEX IF NOT EXISTS idx_documents_repo ON documents(repo);
`
