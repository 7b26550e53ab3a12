package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	// SQLite driver referenced only through the connection string.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"nanorelay/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS connection_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	kind        TEXT NOT NULL,
	handle      TEXT NOT NULL,
	identity    TEXT,
	occurred_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_connection_events_occurred_at
	ON connection_events(occurred_at);
`

// Log records connection lifecycle events (connect, bind, displace,
// disconnect) in SQLite. Frame contents are never stored.
// ARCHITECTURAL DISCOVERY: Single-writer goroutine serializes all SQLite
// writes; Record hands the event to a buffered channel and drops it when the
// buffer is full, so the registry's critical sections never wait on disk.
type Log struct {
	db       *sql.DB
	events   chan types.ConnectionEvent
	shutdown chan struct{}
	wg       sync.WaitGroup

	closeOnce sync.Once
}

// Open opens (creating if necessary) the event log at path.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}

	l := &Log{
		db:       db,
		events:   make(chan types.ConnectionEvent, 256),
		shutdown: make(chan struct{}),
	}

	l.wg.Add(1)
	go l.writeLoop()

	return l, nil
}

// Record queues one lifecycle event. Never blocks; a full buffer drops the
// event rather than backpressuring the caller.
func (l *Log) Record(kind, handle string, identity *uuid.UUID) {
	ev := types.ConnectionEvent{
		Kind:       kind,
		Handle:     handle,
		Identity:   identity,
		OccurredAt: time.Now().UTC(),
	}

	select {
	case l.events <- ev:
	default:
		log.Warn().Str("kind", kind).Msg("audit buffer full, event dropped")
	}
}

// RecentEvents returns up to limit events, newest first.
func (l *Log) RecentEvents(ctx context.Context, limit int) ([]types.ConnectionEvent, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT kind, handle, identity, occurred_at
		 FROM connection_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []types.ConnectionEvent
	for rows.Next() {
		var ev types.ConnectionEvent
		var identity sql.NullString
		if err := rows.Scan(&ev.Kind, &ev.Handle, &identity, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if identity.Valid {
			if id, err := uuid.Parse(identity.String); err == nil {
				ev.Identity = &id
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Close stops the writer after draining queued events and closes the
// database. Idempotent.
func (l *Log) Close() error {
	l.closeOnce.Do(func() {
		close(l.shutdown)
	})
	l.wg.Wait()
	return l.db.Close()
}

func (l *Log) writeLoop() {
	defer l.wg.Done()

	for {
		select {
		case ev := <-l.events:
			l.insert(ev)
		case <-l.shutdown:
			// Drain whatever was queued before shutdown.
			for {
				select {
				case ev := <-l.events:
					l.insert(ev)
				default:
					return
				}
			}
		}
	}
}

func (l *Log) insert(ev types.ConnectionEvent) {
	var identity interface{}
	if ev.Identity != nil {
		identity = ev.Identity.String()
	}

	_, err := l.db.Exec(
		`INSERT INTO connection_events (kind, handle, identity, occurred_at) VALUES (?, ?, ?, ?)`,
		ev.Kind, ev.Handle, identity, ev.OccurredAt)
	if err != nil {
		log.Warn().Err(err).Str("kind", ev.Kind).Msg("failed to record audit event")
	}
}
