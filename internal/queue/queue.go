// Package queue implements a durable, crash-safe, FIFO-by-id store of
// telemetry payloads backed by a single SQLite file, accessed directly
// through database/sql — a single table with no relations doesn't earn an
// ORM.
package queue

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nehonix-edge/gatewaysupervisord/internal/gwerr"
)

// Entry is one queued row: {id, serialized_payload, enqueued_at,
// attempt_count}. id here is the queue's own ascending row id, distinct from
// the wire-visible payload uuid carried inside Payload.
type Entry struct {
	ID           int64
	Payload      []byte
	EnqueuedAt   int64
	AttemptCount int
}

// Queue is a single-writer, crash-safe durable FIFO.
type Queue struct {
	db *sql.DB
}

// Open creates (if needed) the state directory and the SQLite file at
// path, locked down to the owner (dir 0750, file 0600), and ensures the
// schema exists.
func Open(path string) (*Queue, error) {
	const op = "queue.Open"

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, gwerr.Wrap(op, gwerr.KindQueueIO, err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=FULL&_foreign_keys=off", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, gwerr.Wrap(op, gwerr.KindQueueIO, err)
	}
	db.SetMaxOpenConns(1) // single-writer by construction

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS telemetry_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		payload BLOB NOT NULL,
		enqueued_at INTEGER NOT NULL,
		attempt_count INTEGER NOT NULL DEFAULT 0
	)`); err != nil {
		db.Close()
		return nil, gwerr.Wrap(op, gwerr.KindQueueIO, err)
	}

	if err := os.Chmod(path, 0o600); err != nil && !os.IsNotExist(err) {
		db.Close()
		return nil, gwerr.Wrap(op, gwerr.KindQueueIO, err)
	}

	return &Queue{db: db}, nil
}

// Close releases the underlying database handle.
func (q *Queue) Close() error {
	return q.db.Close()
}

// Enqueue appends payload to the tail of the queue and returns its row id.
// The insert is committed before returning, so a crash right after Enqueue
// returns never loses the entry.
func (q *Queue) Enqueue(payload []byte, enqueuedAt int64) (int64, error) {
	const op = "queue.Enqueue"
	res, err := q.db.Exec(
		`INSERT INTO telemetry_queue (payload, enqueued_at, attempt_count) VALUES (?, ?, 0)`,
		payload, enqueuedAt,
	)
	if err != nil {
		return 0, gwerr.Wrap(op, gwerr.KindQueueIO, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, gwerr.Wrap(op, gwerr.KindQueueIO, err)
	}
	return id, nil
}

// Peek returns up to limit entries in ascending id order (oldest first),
// without removing them — used by the flush loop's best-effort FIFO drain.
func (q *Queue) Peek(limit int) ([]Entry, error) {
	const op = "queue.Peek"
	rows, err := q.db.Query(
		`SELECT id, payload, enqueued_at, attempt_count FROM telemetry_queue ORDER BY id ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, gwerr.Wrap(op, gwerr.KindQueueIO, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Payload, &e.EnqueuedAt, &e.AttemptCount); err != nil {
			return nil, gwerr.Wrap(op, gwerr.KindQueueIO, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, gwerr.Wrap(op, gwerr.KindQueueIO, err)
	}
	return out, nil
}

// Remove deletes the entry with the given row id (called after a
// successful send).
func (q *Queue) Remove(id int64) error {
	const op = "queue.Remove"
	if _, err := q.db.Exec(`DELETE FROM telemetry_queue WHERE id = ?`, id); err != nil {
		return gwerr.Wrap(op, gwerr.KindQueueIO, err)
	}
	return nil
}

// IncrementAttempt bumps attempt_count for id after a failed send, so a
// repeatedly-failing head of queue is observable. Nothing currently acts on
// the count (no reordering or dropping) — it's tracked for visibility only.
func (q *Queue) IncrementAttempt(id int64) error {
	const op = "queue.IncrementAttempt"
	if _, err := q.db.Exec(`UPDATE telemetry_queue SET attempt_count = attempt_count + 1 WHERE id = ?`, id); err != nil {
		return gwerr.Wrap(op, gwerr.KindQueueIO, err)
	}
	return nil
}

// Len reports the number of entries currently queued.
func (q *Queue) Len() (int, error) {
	const op = "queue.Len"
	var n int
	if err := q.db.QueryRow(`SELECT COUNT(*) FROM telemetry_queue`).Scan(&n); err != nil {
		return 0, gwerr.Wrap(op, gwerr.KindQueueIO, err)
	}
	return n, nil
}
