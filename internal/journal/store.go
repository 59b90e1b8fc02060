package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"agent-widget/internal/webhook"

	_ "github.com/mattn/go-sqlite3"
)

// Entry is one recorded exchange as read back from the journal.
type Entry struct {
	ID           int64
	SessionID    string
	Kind         webhook.Kind
	Endpoint     string
	URL          string
	RequestBody  string
	Status       int
	ResponseBody string
	DurationMS   int64
	Err          string
	At           time.Time
}

// Store is the SQLite exchange journal. It only ever appends and lists;
// sessions do not read their state back from it.
type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("journal: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	s := &Store{path: path, db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema() error {
	stmts := []string{
		`PRAGMA journal_mode = WAL;`,
		`CREATE TABLE IF NOT EXISTS exchanges (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT,
			kind TEXT NOT NULL,
			endpoint TEXT,
			url TEXT,
			request_body TEXT,
			status INTEGER,
			response_body TEXT,
			duration_ms INTEGER,
			error TEXT,
			at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_exchanges_session ON exchanges(session_id, id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Record(ctx context.Context, ex webhook.Exchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	at := ex.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exchanges(session_id, kind, endpoint, url, request_body, status, response_body, duration_ms, error, at_ms)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ex.SessionID,
		string(ex.Kind),
		ex.Endpoint,
		ex.URL,
		ex.RequestBody,
		ex.Status,
		ex.ResponseBody,
		ex.Duration.Milliseconds(),
		ex.Err,
		at.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert exchange: %w", err)
	}
	return nil
}

// Recent lists the newest exchanges first. A non-empty sessionID narrows the
// listing to that session.
func (s *Store) Recent(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, COALESCE(session_id, ''), kind, COALESCE(endpoint, ''), COALESCE(url, ''),
			COALESCE(request_body, ''), COALESCE(status, 0), COALESCE(response_body, ''),
			COALESCE(duration_ms, 0), COALESCE(error, ''), at_ms
		FROM exchanges
	`
	args := []any{}
	if strings.TrimSpace(sessionID) != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query exchanges: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var kind string
		var atMS int64
		if err := rows.Scan(&e.ID, &e.SessionID, &kind, &e.Endpoint, &e.URL, &e.RequestBody,
			&e.Status, &e.ResponseBody, &e.DurationMS, &e.Err, &atMS); err != nil {
			return nil, fmt.Errorf("scan exchange row: %w", err)
		}
		e.Kind = webhook.Kind(kind)
		e.At = time.UnixMilli(atMS)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exchanges: %w", err)
	}
	return out, nil
}
