package indexsync

import (
	"context"
	"database/sql"
	"time"

	interrors "github.com/streed/snapnotes/internal/errors"
)

// Task is a note whose vectors or files may disagree with its record.
type Task struct {
	NoteID     string    `json:"note_id"`
	Operation  string    `json:"operation"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Queue persists reconciliation tasks in the reconcile_queue table. A note
// appears at most once; re-enqueueing refreshes its operation and error.
type Queue struct {
	db  *sql.DB
	now func() time.Time
}

func NewQueue(db *sql.DB) *Queue {
	return &Queue{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (q *Queue) Enqueue(ctx context.Context, noteID, operation string, cause error) error {
	now := q.now()
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO reconcile_queue (note_id, operation, attempts, last_error, enqueued_at, updated_at)
		VALUES (?, ?, 0, ?, ?, ?)
		ON CONFLICT(note_id) DO UPDATE SET
			operation = excluded.operation,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`, noteID, operation, errorText(cause), now, now)
	return interrors.Storage("enqueue reconciliation", err)
}

// List returns pending tasks, oldest first.
func (q *Queue) List(ctx context.Context) ([]Task, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT note_id, operation, attempts, last_error, enqueued_at, updated_at
		FROM reconcile_queue ORDER BY enqueued_at, note_id
	`)
	if err != nil {
		return nil, interrors.Storage("list reconciliation queue", err)
	}
	defer rows.Close()

	tasks := []Task{}
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.NoteID, &t.Operation, &t.Attempts, &t.LastError, &t.EnqueuedAt, &t.UpdatedAt); err != nil {
			return nil, interrors.Storage("scan reconciliation task", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, interrors.Storage("iterate reconciliation queue", err)
	}
	return tasks, nil
}

func (q *Queue) Remove(ctx context.Context, noteID string) error {
	_, err := q.db.ExecContext(ctx, "DELETE FROM reconcile_queue WHERE note_id = ?", noteID)
	return interrors.Storage("dequeue reconciliation", err)
}

// Fail records an unsuccessful attempt for noteID.
func (q *Queue) Fail(ctx context.Context, noteID string, cause error) error {
	_, err := q.db.ExecContext(ctx,
		"UPDATE reconcile_queue SET attempts = attempts + 1, last_error = ?, updated_at = ? WHERE note_id = ?",
		errorText(cause), q.now(), noteID,
	)
	return interrors.Storage("record reconciliation failure", err)
}

func (q *Queue) Len(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reconcile_queue").Scan(&n); err != nil {
		return 0, interrors.Storage("count reconciliation queue", err)
	}
	return n, nil
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
