// Package trace records one row per worker exchange in a SQLite
// database, as a debugging aid for long analysis runs. It implements
// remote.CallRecorder.
package trace

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/calanthe/periscope/wire"
)

// Recorder persists call entries. Safe for concurrent use.
type Recorder struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates or opens the trace database at path.
func Open(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("trace: opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("trace: setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS calls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at TEXT NOT NULL,
		worker TEXT NOT NULL,
		session INTEGER,
		func TEXT NOT NULL,
		micros INTEGER NOT NULL,
		error_kind TEXT,
		error_message TEXT
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("trace: creating table: %w", err)
	}

	return &Recorder{db: db}, nil
}

// RecordCall stores one exchange. A nil session marks a global call;
// an empty func marks a session deletion. Recording failures are
// deliberately swallowed: tracing must never fail an analysis call.
func (r *Recorder) RecordCall(workerID string, session *uint64, fn string, elapsed time.Duration, callErr error) {
	var sess sql.NullInt64
	if session != nil {
		sess = sql.NullInt64{Int64: int64(*session), Valid: true}
	}
	var kind, message sql.NullString
	if callErr != nil {
		kind = sql.NullString{String: errorKind(callErr), Valid: true}
		message = sql.NullString{String: callErr.Error(), Valid: true}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = r.db.Exec(
		`INSERT INTO calls (at, worker, session, func, micros, error_kind, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano),
		workerID, sess, fn, elapsed.Microseconds(), kind, message,
	)
}

// Count returns the number of recorded calls.
func (r *Recorder) Count() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM calls").Scan(&n); err != nil {
		return 0, fmt.Errorf("trace: counting calls: %w", err)
	}
	return n, nil
}

// Close releases the database.
func (r *Recorder) Close() error {
	return r.db.Close()
}

func errorKind(err error) string {
	var re *wire.RemoteError
	if errors.As(err, &re) {
		return re.Kind
	}
	var te *wire.TransportError
	if errors.As(err, &te) {
		return "transport"
	}
	var pe *wire.ProtocolError
	if errors.As(err, &pe) {
		return wire.KindProtocol
	}
	return wire.KindError
}
