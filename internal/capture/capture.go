// Package capture records a live event feed into a sqlite file and reads it
// back for replay. Captures are tooling artifacts; engine state itself is
// never persisted.
package capture

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mistakeknot/beadscope/internal/feed"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	stream     TEXT NOT NULL,
	type       TEXT NOT NULL,
	subject    TEXT NOT NULL,
	sequence   INTEGER NOT NULL,
	ts         TEXT NOT NULL,
	payload    BLOB
);
CREATE INDEX IF NOT EXISTS idx_events_stream ON events(stream, seq);
`

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("capture path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create capture dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Append records one event in arrival order.
func (s *Store) Append(ev feed.Event) error {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO events (stream, type, subject, sequence, ts, payload)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		string(ev.Stream), string(ev.Type), ev.Subject, int64(ev.Sequence),
		ts.Format(time.RFC3339Nano), []byte(ev.Payload),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Events returns every captured event in arrival order.
func (s *Store) Events() ([]feed.Event, error) {
	rows, err := s.db.Query(
		`SELECT stream, type, subject, sequence, ts, payload FROM events ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []feed.Event
	for rows.Next() {
		var (
			stream, typ, subject, ts string
			sequence                 int64
			payload                  []byte
		)
		if err := rows.Scan(&stream, &typ, &subject, &sequence, &ts, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", ts, err)
		}
		out = append(out, feed.Event{
			Stream:    feed.Stream(stream),
			Type:      feed.EventType(typ),
			Subject:   subject,
			Sequence:  uint64(sequence),
			Timestamp: parsed,
			Payload:   payload,
		})
	}
	return out, rows.Err()
}

// Count reports how many events the capture holds.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}
