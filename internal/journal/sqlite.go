package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Recorder backed by SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (or creates) the journal database. Use ":memory:"
// for an in-memory journal, or a file path for persistent storage.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS persistence_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		component TEXT NOT NULL,
		event_type TEXT NOT NULL,
		write_id TEXT,
		detail TEXT,
		metadata TEXT,
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_component ON persistence_events(component);
	CREATE INDEX IF NOT EXISTS idx_event_type ON persistence_events(event_type);
	CREATE INDEX IF NOT EXISTS idx_timestamp ON persistence_events(timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record appends one event to the journal.
func (s *SQLiteStore) Record(ctx context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var metadataJSON []byte
	if ev.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO persistence_events (component, event_type, write_id, detail, metadata, timestamp) VALUES (?, ?, ?, ?, ?, ?)",
		ev.Component, ev.Type, ev.WriteID, ev.Detail, metadataJSON, ts.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	return nil
}

// ByComponent retrieves all events for one component, oldest first.
func (s *SQLiteStore) ByComponent(ctx context.Context, component string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, component, event_type, write_id, detail, metadata, timestamp FROM persistence_events WHERE component = ? ORDER BY id",
		component,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

// Range retrieves events within a time range, oldest first.
func (s *SQLiteStore) Range(ctx context.Context, start, end time.Time) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, component, event_type, write_id, detail, metadata, timestamp FROM persistence_events WHERE timestamp >= ? AND timestamp <= ? ORDER BY id",
		start.Unix(), end.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

func (s *SQLiteStore) scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var ev Event
		var writeID, detail sql.NullString
		var metadataJSON []byte
		var ts int64

		if err := rows.Scan(&ev.ID, &ev.Component, &ev.Type, &writeID, &detail, &metadataJSON, &ts); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.WriteID = writeID.String
		ev.Detail = detail.String
		ev.Timestamp = time.Unix(ts, 0)

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &ev.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}

		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return events, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
