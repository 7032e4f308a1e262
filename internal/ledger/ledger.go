// Package ledger persists the append-only session record to SQLite.
// One goroutine owns all writes; reads are safe at any time because
// entries are immutable once inserted.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"vigil/internal/events"
)

const schema = `
CREATE TABLE IF NOT EXISTS ledger_entries (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	timestamp  DATETIME NOT NULL,
	type       TEXT NOT NULL,
	payload    TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_ledger_session ON ledger_entries(session_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_ledger_type ON ledger_entries(session_id, type);
`

// Ledger is the single writer for one session's entries.
type Ledger struct {
	db        *sql.DB
	sessionID string

	mu sync.Mutex
}

// Open creates or opens the ledger database and prepares the schema.
func Open(path, sessionID string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening ledger database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging ledger database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing ledger schema: %w", err)
	}

	return &Ledger{db: db, sessionID: sessionID}, nil
}

// SessionID returns the session this ledger writes under.
func (l *Ledger) SessionID() string { return l.sessionID }

// Append writes one entry. Entries are never updated or deleted.
func (l *Ledger) Append(ctx context.Context, entry *events.LedgerEntry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("marshaling ledger payload: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO ledger_entries (id, session_id, timestamp, type, payload) VALUES (?, ?, ?, ?, ?)`,
		entry.ID, l.sessionID, entry.Timestamp.UTC(), string(entry.Type), string(payload))
	if err != nil {
		return fmt.Errorf("appending ledger entry (type=%s): %w", entry.Type, err)
	}
	return nil
}

// Record is an Append of a freshly stamped entry, for call sites that
// do not need the entry back.
func (l *Ledger) Record(ctx context.Context, entryType events.EntryType, payload interface{}) error {
	return l.Append(ctx, events.NewLedgerEntry(entryType, payload))
}

// Row is one entry read back from the ledger, payload still as JSON.
type Row struct {
	ID        string
	Timestamp time.Time
	Type      events.EntryType
	Payload   json.RawMessage
}

// Entries returns this session's entries in timestamp order, optionally
// filtered by type.
func (l *Ledger) Entries(ctx context.Context, entryTypes ...events.EntryType) ([]Row, error) {
	query := `SELECT id, timestamp, type, payload FROM ledger_entries WHERE session_id = ?`
	args := []interface{}{l.sessionID}
	if len(entryTypes) > 0 {
		query += " AND type IN (?" + strings.Repeat(",?", len(entryTypes)-1) + ")"
		for _, t := range entryTypes {
			args = append(args, string(t))
		}
	}
	query += " ORDER BY timestamp, id"

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying ledger: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var typ, payload string
		if err := rows.Scan(&r.ID, &r.Timestamp, &typ, &payload); err != nil {
			return nil, fmt.Errorf("scanning ledger row: %w", err)
		}
		r.Type = events.EntryType(typ)
		r.Payload = json.RawMessage(payload)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountByType returns how many entries of each type this session wrote.
func (l *Ledger) CountByType(ctx context.Context) (map[events.EntryType]int, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT type, COUNT(*) FROM ledger_entries WHERE session_id = ? GROUP BY type`, l.sessionID)
	if err != nil {
		return nil, fmt.Errorf("counting ledger entries: %w", err)
	}
	defer rows.Close()

	out := make(map[events.EntryType]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("scanning ledger count: %w", err)
		}
		out[events.EntryType(typ)] = n
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// LastSessionID returns the most recent session recorded in the
// database at path, for report generation after the process exits.
func LastSessionID(path string) (string, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return "", fmt.Errorf("opening ledger database: %w", err)
	}
	defer db.Close()

	var id string
	err = db.QueryRow(
		`SELECT session_id FROM ledger_entries ORDER BY timestamp DESC, id DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("ledger at %s has no sessions", path)
	}
	if err != nil {
		return "", fmt.Errorf("reading last session: %w", err)
	}
	return id, nil
}
