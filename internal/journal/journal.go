// Package journal keeps a small SQLite record of broker session events.
//
// It answers "when did the bridge lose the broker, and how often did the
// collector refuse a batch?" after the fact. Metric values are never stored.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// Kind names a session event.
type Kind string

// Session event kinds.
const (
	KindConnected          Kind = "connected"
	KindDisconnected       Kind = "disconnected"
	KindReconnectScheduled Kind = "reconnect_scheduled"
	KindFlushFailed        Kind = "flush_failed"
	KindShutdown           Kind = "shutdown"
)

// maxDetailLength caps the stored detail text.
const maxDetailLength = 512

// ErrInvalidLimit is returned by Recent for a non-positive limit.
var ErrInvalidLimit = errors.New("journal: limit must be positive")

// Event is one stored session event.
type Event struct {
	ID         int64
	ClientID   string
	Kind       Kind
	Detail     string
	OccurredAt time.Time
}

// Store appends events for one client id to the session_events table.
//
// Thread Safety: safe for concurrent use; SQLite serialises writers.
type Store struct {
	db       *sql.DB
	clientID string
	now      func() time.Time
}

// NewStore returns a Store writing events tagged with clientID.
// The schema must already be migrated.
func NewStore(db *sql.DB, clientID string) *Store {
	return &Store{db: db, clientID: clientID, now: time.Now}
}

// Record appends one event.
func (s *Store) Record(ctx context.Context, kind Kind, detail string) error {
	detail = truncateDetail(detail)
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO session_events (client_id, kind, detail, occurred_at) VALUES (?, ?, ?, ?)",
		s.clientID, string(kind), detail, s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("recording %s event: %w", kind, err)
	}
	return nil
}

// Recent returns up to limit events across all client ids, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, client_id, kind, detail, occurred_at FROM session_events ORDER BY occurred_at DESC, id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying session events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e          Event
			kind       string
			occurredAt int64
		)
		if err := rows.Scan(&e.ID, &e.ClientID, &kind, &e.Detail, &occurredAt); err != nil {
			return nil, fmt.Errorf("scanning session event: %w", err)
		}
		e.Kind = Kind(kind)
		e.OccurredAt = time.UnixMilli(occurredAt)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session events: %w", err)
	}
	return events, nil
}

// Prune deletes events older than cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM session_events WHERE occurred_at < ?",
		cutoff.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning session events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning session events: %w", err)
	}
	return n, nil
}

// truncateDetail caps detail at maxDetailLength bytes without splitting a
// multi-byte rune.
func truncateDetail(detail string) string {
	if len(detail) <= maxDetailLength {
		return detail
	}
	cut := maxDetailLength
	for cut > 0 && !utf8.RuneStart(detail[cut]) {
		cut--
	}
	return detail[:cut]
}
