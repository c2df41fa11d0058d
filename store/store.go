// Package store persists a SQLite audit trail of handled turns and KB
// retrievals. It is an optional collaborator: the chat core runs fully
// without it.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// TurnRecord is one handled conversation turn.
type TurnRecord struct {
	TraceID         string   `json:"trace_id"`
	Phase           string   `json:"phase"`
	Locale          string   `json:"locale"`
	UserText        string   `json:"user_text"`
	AssistantText   string   `json:"assistant_text"`
	ValidationFlags []string `json:"validation_flags"`
	Citations       []string `json:"citations"`
}

// QueryRecord is one KB retrieval with its query embedding.
type QueryRecord struct {
	Query      string    `json:"query"`
	HMO        string    `json:"hmo"`
	Tier       string    `json:"tier"`
	TopK       int       `json:"top_k"`
	SourceURIs []string  `json:"source_uris"`
	Embedding  []float32 `json:"-"`
}

// Store wraps the SQLite database holding the audit trail.
type Store struct {
	db           *sql.DB
	embeddingDim int
}

// New opens (or creates) the audit database at path and initialises the
// schema including the sqlite-vec virtual table.
func New(path string, embeddingDim int) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &Store{db: db, embeddingDim: embeddingDim}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// LogTurn writes one turn to the audit log.
func (s *Store) LogTurn(ctx context.Context, rec TurnRecord) error {
	flagsJSON, _ := json.Marshal(rec.ValidationFlags)
	citationsJSON, _ := json.Marshal(rec.Citations)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO turn_log (trace_id, phase, locale, user_text, assistant_text, validation_flags, citations)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.TraceID, rec.Phase, rec.Locale, rec.UserText, rec.AssistantText,
		string(flagsJSON), string(citationsJSON))
	return err
}

// LogQuery writes one retrieval to the audit log. When the embedding
// matches the configured dimension it is stored in the vec0 table so
// past queries can be mined by similarity.
func (s *Store) LogQuery(ctx context.Context, rec QueryRecord) error {
	urisJSON, _ := json.Marshal(rec.SourceURIs)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO query_log (query, hmo, tier, top_k, source_uris)
		VALUES (?, ?, ?, ?, ?)
	`, rec.Query, rec.HMO, rec.Tier, rec.TopK, string(urisJSON))
	if err != nil {
		return err
	}

	if len(rec.Embedding) != s.embeddingDim {
		return nil
	}
	queryID, err := res.LastInsertId()
	if err != nil {
		return err
	}
	blob, err := sqlite_vec.SerializeFloat32(rec.Embedding)
	if err != nil {
		return fmt.Errorf("serializing embedding: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO vec_queries (query_id, embedding) VALUES (?, ?)`, queryID, blob)
	return err
}

// RecentTurns returns the latest n turns, newest first.
func (s *Store) RecentTurns(ctx context.Context, n int) ([]TurnRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT trace_id, phase, COALESCE(locale, ''), COALESCE(user_text, ''),
		       COALESCE(assistant_text, ''), COALESCE(validation_flags, '[]'),
		       COALESCE(citations, '[]')
		FROM turn_log ORDER BY id DESC LIMIT ?
	`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TurnRecord
	for rows.Next() {
		var rec TurnRecord
		var flagsJSON, citationsJSON string
		if err := rows.Scan(&rec.TraceID, &rec.Phase, &rec.Locale, &rec.UserText,
			&rec.AssistantText, &flagsJSON, &citationsJSON); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(flagsJSON), &rec.ValidationFlags)
		_ = json.Unmarshal([]byte(citationsJSON), &rec.Citations)
		out = append(out, rec)
	}
	return out, rows.Err()
}
