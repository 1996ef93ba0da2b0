package transcript

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"julep/internal/llm"
)

// Entry is one journaled event: a user prompt, a streamed chunk of agent
// output, or a notice such as a timeout marker.
type Entry struct {
	ID           int64
	Conversation string
	Session      string
	Kind         string
	Text         string
	CreatedAt    time.Time
}

const (
	KindUser   = "user"
	KindAgent  = "agent"
	KindNotice = "notice"
)

// Store journals conversation traffic to a sqlite database.
type Store struct {
	db   *sql.DB
	path string
}

func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("transcript store path must be set")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("prepare transcript dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open transcript store: %w", err)
	}

	if _, err := db.ExecContext(context.Background(), `
CREATE TABLE IF NOT EXISTS entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation TEXT NOT NULL,
	session TEXT NOT NULL DEFAULT '',
	kind TEXT NOT NULL,
	text TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init transcript schema: %w", err)
	}
	if _, err := db.ExecContext(context.Background(),
		`CREATE INDEX IF NOT EXISTS idx_entries_conversation ON entries(conversation, id)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init transcript index: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

func (s *Store) Append(conversation, session, kind, text string) error {
	_, err := s.db.ExecContext(context.Background(), `
INSERT INTO entries (conversation, session, kind, text, created_at)
VALUES (?, ?, ?, ?, ?)`,
		conversation, session, kind, text, time.Now().UTC())
	return err
}

// Recent returns the newest entries for a conversation, oldest first.
func (s *Store) Recent(conversation string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(context.Background(), `
SELECT id, conversation, session, kind, text, created_at
FROM (
	SELECT id, conversation, session, kind, text, created_at
	FROM entries
	WHERE conversation = ?
	ORDER BY id DESC
	LIMIT ?
)
ORDER BY id ASC`, conversation, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Conversation, &e.Session, &e.Kind, &e.Text, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordingSink journals everything pushed through it before forwarding
// to the wrapped sink. Session resolution is deferred to write time so
// entries pick up the session bound during the turn.
type RecordingSink struct {
	store        *Store
	conversation string
	session      func() string
	inner        llm.Sink
}

func NewRecordingSink(store *Store, conversation string, session func() string, inner llm.Sink) *RecordingSink {
	if session == nil {
		session = func() string { return "" }
	}
	return &RecordingSink{store: store, conversation: conversation, session: session, inner: inner}
}

func (r *RecordingSink) PushText(text string) {
	if r.store != nil && text != "" {
		_ = r.store.Append(r.conversation, r.session(), KindAgent, text)
	}
	if r.inner != nil {
		r.inner.PushText(text)
	}
}

func (r *RecordingSink) Done() {
	if r.inner != nil {
		r.inner.Done()
	}
}
