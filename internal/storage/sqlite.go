// Package storage persists finished sessions to SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/voxwire/voxwire/internal/session"
)

// SQLiteStore implements session.Store on an embedded SQLite database.
// Connections are capped at one because modernc sqlite serializes writers.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "voxwire.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			interaction_id TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			store_id TEXT NOT NULL DEFAULT '',
			language_hint TEXT NOT NULL DEFAULT 'auto',
			state TEXT NOT NULL,
			end_reason TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			final_transcript TEXT NOT NULL DEFAULT '',
			avg_confidence REAL NOT NULL DEFAULT 0,
			total_chunks INTEGER NOT NULL DEFAULT 0,
			avg_processing_ms REAL NOT NULL DEFAULT 0,
			total_words INTEGER NOT NULL DEFAULT 0,
			failed_chunks INTEGER NOT NULL DEFAULT 0,
			summary TEXT NOT NULL DEFAULT '',
			summary_status TEXT NOT NULL DEFAULT 'pending'
		);
	`); err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS windows (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			window_id INTEGER NOT NULL,
			transcript TEXT NOT NULL,
			confidence REAL NOT NULL,
			language TEXT NOT NULL DEFAULT '',
			emitted_at TEXT NOT NULL,
			FOREIGN KEY(session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);
	`); err != nil {
		return fmt.Errorf("create windows table: %w", err)
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)"); err != nil {
		return fmt.Errorf("create sessions index: %w", err)
	}
	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_windows_session_id ON windows(session_id, window_id)"); err != nil {
		return fmt.Errorf("create windows index: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveFinal writes the terminal record for a session and its finalized
// windows in one transaction. Re-saving the same session replaces the
// previous record, so retried finalization stays safe.
func (s *SQLiteStore) SaveFinal(result session.FinalResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin save for session %s: %w", result.SessionID, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO sessions(
			id, interaction_id, user_id, store_id, language_hint,
			state, end_reason, error, started_at, ended_at, final_transcript,
			avg_confidence, total_chunks, avg_processing_ms, total_words, failed_chunks
		) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.SessionID,
		result.InteractionID,
		result.UserID,
		result.StoreID,
		result.LanguageHint,
		result.State,
		result.EndReason,
		result.Error,
		result.StartedAt.UTC().Format(time.RFC3339Nano),
		result.EndedAt.UTC().Format(time.RFC3339Nano),
		result.FinalTranscript,
		result.QualityMetrics.AvgConfidence,
		result.QualityMetrics.TotalChunksProcessed,
		result.QualityMetrics.AvgProcessingTimeMs,
		result.QualityMetrics.TotalWords,
		result.QualityMetrics.FailedChunks,
	); err != nil {
		return fmt.Errorf("save session %s: %w", result.SessionID, err)
	}

	if _, err := tx.Exec(`DELETE FROM windows WHERE session_id = ?`, result.SessionID); err != nil {
		return fmt.Errorf("clear windows for session %s: %w", result.SessionID, err)
	}
	for _, w := range result.Windows {
		if _, err := tx.Exec(
			`INSERT INTO windows(session_id, window_id, transcript, confidence, language, emitted_at)
			 VALUES(?, ?, ?, ?, ?, ?)`,
			result.SessionID,
			w.WindowID,
			w.Text,
			w.Confidence,
			w.Language,
			w.EmittedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("save window %d for session %s: %w", w.WindowID, result.SessionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save for session %s: %w", result.SessionID, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateSummary(sessionID, summary, status string) error {
	res, err := s.db.Exec(
		`UPDATE sessions SET summary = ?, summary_status = ? WHERE id = ?`,
		summary,
		status,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("update summary for session %s: %w", sessionID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update summary rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Record is a persisted session row: the final result plus the summary
// fields written after finalization.
type Record struct {
	session.FinalResult
	Summary       string
	SummaryStatus string
}

// GetFinal loads a persisted session together with its windows.
func (s *SQLiteStore) GetFinal(sessionID string) (Record, error) {
	row := s.db.QueryRow(
		`SELECT id, interaction_id, user_id, store_id, language_hint,
		        state, end_reason, error, started_at, ended_at, final_transcript,
		        avg_confidence, total_chunks, avg_processing_ms, total_words, failed_chunks,
		        summary, summary_status
		 FROM sessions WHERE id = ?`,
		sessionID,
	)

	var rec Record
	var startedAt, endedAt string
	if err := row.Scan(
		&rec.SessionID, &rec.InteractionID, &rec.UserID, &rec.StoreID, &rec.LanguageHint,
		&rec.State, &rec.EndReason, &rec.Error, &startedAt, &endedAt, &rec.FinalTranscript,
		&rec.QualityMetrics.AvgConfidence, &rec.QualityMetrics.TotalChunksProcessed,
		&rec.QualityMetrics.AvgProcessingTimeMs, &rec.QualityMetrics.TotalWords,
		&rec.QualityMetrics.FailedChunks,
		&rec.Summary, &rec.SummaryStatus,
	); err != nil {
		return Record{}, fmt.Errorf("query session %s: %w", sessionID, err)
	}

	var err error
	if rec.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return Record{}, fmt.Errorf("parse session %s started_at: %w", sessionID, err)
	}
	if rec.EndedAt, err = time.Parse(time.RFC3339Nano, endedAt); err != nil {
		return Record{}, fmt.Errorf("parse session %s ended_at: %w", sessionID, err)
	}

	rows, err := s.db.Query(
		`SELECT window_id, transcript, confidence, language, emitted_at
		 FROM windows WHERE session_id = ? ORDER BY window_id ASC`,
		sessionID,
	)
	if err != nil {
		return Record{}, fmt.Errorf("query windows for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		w := session.TranscriptChunk{SessionID: sessionID}
		var emittedAt string
		if err := rows.Scan(&w.WindowID, &w.Text, &w.Confidence, &w.Language, &emittedAt); err != nil {
			return Record{}, fmt.Errorf("scan window for session %s: %w", sessionID, err)
		}
		if w.EmittedAt, err = time.Parse(time.RFC3339Nano, emittedAt); err != nil {
			return Record{}, fmt.Errorf("parse window emitted_at for session %s: %w", sessionID, err)
		}
		rec.Windows = append(rec.Windows, w)
	}
	if err := rows.Err(); err != nil {
		return Record{}, fmt.Errorf("iterate window rows for session %s: %w", sessionID, err)
	}

	return rec, nil
}
