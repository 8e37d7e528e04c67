package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"signalhub/pkg/interfaces"
	"signalhub/pkg/types"
)

// ArchivedCall is one row of the call archive.
type ArchivedCall struct {
	CallID       string     `json:"call_id"`
	CallerID     string     `json:"caller_id"`
	CalleeID     string     `json:"callee_id"`
	Outcome      string     `json:"outcome"`
	StartedAt    time.Time  `json:"started_at"`
	AnsweredAt   *time.Time `json:"answered_at,omitempty"`
	EndedAt      time.Time  `json:"ended_at"`
	EndedBy      string     `json:"ended_by,omitempty"`
	DurationSecs int64      `json:"duration_secs"`
}

// Manager persists finished calls to SQLite. All writes funnel through
// a single goroutine: SQLite allows one writer, and serializing here
// avoids busy-timeout contention under concurrent teardowns. Reads go
// straight to the pool.
type Manager struct {
	db           *sql.DB
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(db *sql.DB) error
	result    chan error
}

// NewManager opens the archive database at path, applies the schema and
// starts the writer goroutine.
func NewManager(path string) (*Manager, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := applyPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply archive schema: %w", err)
	}

	m := &Manager{
		db:           db,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	m.wg.Add(1)
	go m.writeLoop()

	return m, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

// writeLoop processes all write operations in a single goroutine.
// A failed write is retried once before the error propagates.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				log.Warn().Err(err).Msg("archive write failed, retrying")
				time.Sleep(time.Second)
				err = op.operation(m.db)
				if err != nil {
					log.Error().Err(err).Msg("archive write failed after retry")
				}
			}
			op.result <- err

		case <-m.shutdown:
			return
		}
	}
}

func (m *Manager) executeWrite(operation func(db *sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("archive manager is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("archive write timeout")
	case <-m.shutdown:
		return fmt.Errorf("archive manager is shutting down")
	}
}

// ArchiveCall inserts one finished call record.
func (m *Manager) ArchiveCall(ctx context.Context, rec *types.CallRecord) error {
	if rec == nil || rec.EndedAt == nil {
		return fmt.Errorf("cannot archive unfinished call")
	}

	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO call_history (call_id, caller_id, callee_id, outcome, started_at, answered_at, ended_at, ended_by, duration_secs)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`

		var answeredAt interface{}
		if rec.AnsweredAt != nil {
			answeredAt = *rec.AnsweredAt
		}

		_, err := db.ExecContext(ctx, query,
			rec.ID,
			rec.CallerID,
			rec.CalleeID,
			string(rec.Outcome),
			rec.CreatedAt,
			answeredAt,
			*rec.EndedAt,
			rec.EndedBy,
			int64(rec.Duration().Seconds()),
		)
		if err != nil {
			return fmt.Errorf("failed to insert call record: %w", err)
		}
		return nil
	})
}

// CallsForUser returns the user's most recent finished calls, newest
// first, as either participant.
func (m *Manager) CallsForUser(ctx context.Context, userID string, limit int) ([]*ArchivedCall, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `
		SELECT call_id, caller_id, callee_id, outcome, started_at, answered_at, ended_at, ended_by, duration_secs
		FROM call_history
		WHERE caller_id = ? OR callee_id = ?
		ORDER BY ended_at DESC
		LIMIT ?
	`

	rows, err := m.db.QueryContext(ctx, query, userID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query call history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var calls []*ArchivedCall

	for rows.Next() {
		var rec ArchivedCall
		var answeredAt sql.NullTime
		var endedBy sql.NullString

		err := rows.Scan(
			&rec.CallID,
			&rec.CallerID,
			&rec.CalleeID,
			&rec.Outcome,
			&rec.StartedAt,
			&answeredAt,
			&rec.EndedAt,
			&endedBy,
			&rec.DurationSecs,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call history row: %w", err)
		}

		if answeredAt.Valid {
			rec.AnsweredAt = &answeredAt.Time
		}
		if endedBy.Valid {
			rec.EndedBy = endedBy.String
		}

		calls = append(calls, &rec)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating call history rows: %w", err)
	}

	return calls, nil
}

// HealthCheck validates database connectivity.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("archive ping failed: %w", err)
	}

	if _, err := m.db.QueryContext(ctx, "SELECT COUNT(*) FROM call_history LIMIT 1"); err != nil {
		return fmt.Errorf("archive read test failed: %w", err)
	}

	return nil
}

// Close drains the writer and closes the database.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close archive database: %w", err)
	}
	return nil
}

var _ interfaces.CallArchiver = (*Manager)(nil)
