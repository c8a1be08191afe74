package observability

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// InMemorySink is the reference sink used by tests: thread-safe append with
// a snapshot accessor.
type InMemorySink struct {
	mu      sync.Mutex
	records []Record
	closed  bool
}

// NewInMemorySink returns an empty in-memory sink.
func NewInMemorySink() *InMemorySink {
	return &InMemorySink{}
}

func (s *InMemorySink) Write(record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("write to closed in-memory sink")
	}
	s.records = append(s.records, record)
	return nil
}

func (s *InMemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Snapshot returns a copy of the records recorded so far.
func (s *InMemorySink) Snapshot() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

const defaultTableName = "observability_records"

// DBSink appends records to a single table in an embedded SQL store,
// opened (and its table created if absent) by NewDBSink. No DuckDB driver exists anywhere in the
// retrieved corpus; modernc.org/sqlite is the nearest pure-Go embedded
// analytical store the corpus demonstrates (see DESIGN.md).
type DBSink struct {
	db        *sql.DB
	tableName string
	mu        sync.Mutex
}

// NewDBSink opens (creating if absent) a SQLite database at path and
// ensures the observability table exists.
func NewDBSink(path string) (*DBSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening observability db %q: %w", path, err)
	}

	sink := &DBSink{db: db, tableName: defaultTableName}
	if err := sink.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return sink, nil
}

func (s *DBSink) ensureSchema() error {
	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		logged_at TEXT NOT NULL,
		occurred_at TEXT NOT NULL,
		kind TEXT NOT NULL,
		event_type TEXT NOT NULL,
		stage TEXT,
		correlation_id TEXT,
		trade_id TEXT,
		venue_order_id TEXT,
		summary_json TEXT NOT NULL
	)`, s.tableName)
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating observability schema: %w", err)
	}
	return nil
}

func (s *DBSink) Write(record Record) error {
	summaryJSON, err := json.Marshal(record.Summary)
	if err != nil {
		return fmt.Errorf("canonicalizing summary: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stmt := fmt.Sprintf(`INSERT INTO %s
		(logged_at, occurred_at, kind, event_type, stage, correlation_id, trade_id, venue_order_id, summary_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.tableName)

	_, err = s.db.Exec(stmt,
		record.LoggedAt.Format("2006-01-02T15:04:05.000000Z07:00"),
		record.OccurredAt.Format("2006-01-02T15:04:05.000000Z07:00"),
		record.Kind,
		record.EventType,
		record.Stage,
		record.CorrelationID,
		record.TradeID,
		record.VenueOrderID,
		string(summaryJSON),
	)
	if err != nil {
		return fmt.Errorf("inserting observability record: %w", err)
	}
	return nil
}

func (s *DBSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
