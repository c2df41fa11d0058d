package store

import "fmt"

// schemaSQL returns the DDL for the audit tables. embeddingDim controls
// the vec0 virtual table dimension.
func schemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
-- One row per handled conversation turn
CREATE TABLE IF NOT EXISTS turn_log (
    id INTEGER PRIMARY KEY,
    trace_id TEXT NOT NULL,
    phase TEXT NOT NULL,
    locale TEXT,
    user_text TEXT,
    assistant_text TEXT,
    validation_flags JSON,
    citations JSON,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- One row per KB retrieval, with result provenance
CREATE TABLE IF NOT EXISTS query_log (
    id INTEGER PRIMARY KEY,
    query TEXT NOT NULL,
    hmo TEXT,
    tier TEXT,
    top_k INTEGER,
    source_uris JSON,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Query embeddings via sqlite-vec, keyed by query_log rowid
CREATE VIRTUAL TABLE IF NOT EXISTS vec_queries USING vec0(
    query_id INTEGER PRIMARY KEY,
    embedding float[%d]
);

CREATE INDEX IF NOT EXISTS idx_turn_log_trace ON turn_log(trace_id);
`, embeddingDim)
}
