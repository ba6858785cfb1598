package taskqueue

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SQLiteQueue is a persistent task queue implementation backed by SQLite.
// It is safe for concurrent use for our purposes, using simple FIFO semantics
// based on an auto-incrementing id.
type SQLiteQueue struct {
	db           *sql.DB
	pollInterval time.Duration
}

// NewSQLiteQueue initializes the tasks table in the given DB and returns a new queue.
func NewSQLiteQueue(db *sql.DB) (*SQLiteQueue, error) {
	q := &SQLiteQueue{
		db:           db,
		pollInterval: 20 * time.Millisecond,
	}
	if err := q.initSchema(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *SQLiteQueue) initSchema() error {
	_, err := q.db.Exec(`
		CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			instance_id TEXT NOT NULL,
			task_id INTEGER NOT NULL DEFAULT 0,
			activity TEXT NOT NULL DEFAULT '',
			args BLOB,
			enqueued_at INTEGER NOT NULL,
			not_before INTEGER NOT NULL
		);
	`)
	return err
}

// Ensure SQLiteQueue implements Queue.
var _ Queue = (*SQLiteQueue)(nil)

func (q *SQLiteQueue) Enqueue(ctx context.Context, t Task) error {
	now := time.Now()
	enqueuedAt := now.UnixNano()
	if !t.EnqueuedAt.IsZero() {
		enqueuedAt = t.EnqueuedAt.UnixNano()
	}

	notBefore := enqueuedAt
	if !t.NotBefore.IsZero() {
		notBefore = t.NotBefore.UnixNano()
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO tasks (type, instance_id, task_id, activity, args, enqueued_at, not_before)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(t.Type),
		t.InstanceID,
		t.TaskID,
		t.Activity,
		[]byte(t.Args),
		enqueuedAt,
		notBefore,
	)
	return err
}

func (q *SQLiteQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		now := time.Now().UnixNano()

		tx, err := q.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, err
		}

		var (
			id         int64
			typeStr    string
			instanceID string
			taskID     int64
			activity   string
			args       []byte
			enqueuedAt int64
			notBefore  int64
		)

		row := tx.QueryRowContext(ctx, `
			SELECT id, type, instance_id, task_id, activity, args, enqueued_at, not_before
			FROM tasks
			WHERE not_before <= ?
			ORDER BY not_before, id
			LIMIT 1`, now)
		err = row.Scan(&id, &typeStr, &instanceID, &taskID, &activity, &args, &enqueuedAt, &notBefore)
		if err != nil {
			_ = tx.Rollback()
			if errors.Is(err, sql.ErrNoRows) {
				// Nothing available: sleep a bit and retry.
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(q.pollInterval):
				}
				continue
			}
			return nil, err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}

		return &Task{
			Type:       TaskType(typeStr),
			InstanceID: instanceID,
			TaskID:     taskID,
			Activity:   activity,
			Args:       args,
			EnqueuedAt: time.Unix(0, enqueuedAt),
			NotBefore:  time.Unix(0, notBefore),
		}, nil
	}
}

func (q *SQLiteQueue) Len() int {
	var n int
	if err := q.db.QueryRow(`SELECT COUNT(*) FROM tasks`).Scan(&n); err != nil {
		return 0
	}
	return n
}
