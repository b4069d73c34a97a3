package app

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Archive keeps the full transcript of every session in SQLite, unbounded
// where the session cache blob caps at 50 entries for display. It is a local
// convenience for reviewing past conversations; the backend remains the
// source of truth for server-side session memory.
type Archive struct {
	dbPath string

	mu   sync.Mutex
	db   *sql.DB
	once sync.Once
	err  error
}

func NewArchive(dataDir string) (*Archive, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	a := &Archive{dbPath: filepath.Join(dataDir, "maxctl.db")}
	// Initialize eagerly so callers fail fast.
	if err := a.init(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Archive) init() error {
	a.once.Do(func() {
		db, err := sql.Open("sqlite", a.dbPath)
		if err != nil {
			a.err = err
			return
		}
		// Keep sqlite responsive under contention.
		_, _ = db.Exec("PRAGMA busy_timeout = 5000;")
		_, _ = db.Exec("PRAGMA journal_mode = WAL;")
		_, _ = db.Exec("PRAGMA synchronous = NORMAL;")

		schema := []string{
			`CREATE TABLE IF NOT EXISTS messages (
				id TEXT NOT NULL,
				session_id TEXT NOT NULL,
				role TEXT NOT NULL,
				kind TEXT NOT NULL,
				content TEXT NOT NULL,
				consent TEXT,
				created_at_ns INTEGER NOT NULL,
				PRIMARY KEY (session_id, id)
			);`,
			`CREATE INDEX IF NOT EXISTS idx_messages_session_created ON messages(session_id, created_at_ns);`,
		}
		for _, stmt := range schema {
			if _, err := db.Exec(stmt); err != nil {
				_ = db.Close()
				a.err = err
				return
			}
		}
		a.db = db
	})
	return a.err
}

// Record appends one message to the session's transcript. Re-recording the
// same message id is ignored (streamed messages are recorded once, after the
// final chunk).
func (a *Archive) Record(sessionID string, m Message) error {
	if err := a.init(); err != nil {
		return err
	}
	var consent any
	if m.Consent != nil {
		data, err := json.Marshal(m.Consent)
		if err != nil {
			return err
		}
		consent = string(data)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.db.Exec(
		`INSERT OR IGNORE INTO messages (id, session_id, role, kind, content, consent, created_at_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, sessionID, string(m.Role), string(m.Kind), m.Content, consent, m.CreatedAt.UnixNano(),
	)
	return err
}

// Transcript returns the full message history of a session in insertion
// order.
func (a *Archive) Transcript(sessionID string) ([]Message, error) {
	if err := a.init(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	rows, err := a.db.Query(
		`SELECT id, role, kind, content, consent, created_at_ns
		 FROM messages WHERE session_id = ? ORDER BY created_at_ns, id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var (
			m       Message
			consent sql.NullString
			ns      int64
		)
		if err := rows.Scan(&m.ID, &m.Role, &m.Kind, &m.Content, &consent, &ns); err != nil {
			return nil, err
		}
		m.CreatedAt = time.Unix(0, ns)
		if consent.Valid && consent.String != "" {
			var cr ConsentRequest
			if err := json.Unmarshal([]byte(consent.String), &cr); err == nil {
				m.Consent = &cr
			}
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// Sessions lists archived session ids, most recently active first.
func (a *Archive) Sessions(limit int) ([]string, error) {
	if err := a.init(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	rows, err := a.db.Query(
		`SELECT session_id FROM messages GROUP BY session_id
		 ORDER BY MAX(created_at_ns) DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}
