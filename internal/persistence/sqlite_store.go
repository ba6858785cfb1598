package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/petrijr/turno/pkg/api"
)

// SQLiteStore implements InstanceStore and HistoryStore on SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteStore struct {
	db *sql.DB
}

// Ensure SQLiteStore implements the interfaces.
var _ InstanceStore = (*SQLiteStore)(nil)
var _ HistoryStore = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the required schema in the given database
// and returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS instances (
			id TEXT PRIMARY KEY,
			orchestration TEXT NOT NULL,
			status TEXT NOT NULL,
			input BLOB,
			result BLOB,
			failure_kind TEXT NOT NULL DEFAULT '',
			failure_message TEXT NOT NULL DEFAULT '',
			last_sequence INTEGER NOT NULL DEFAULT 0,
			parent_id TEXT NOT NULL DEFAULT '',
			parent_task_id INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS history (
			instance_id TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			kind TEXT NOT NULL,
			at INTEGER NOT NULL,
			task_id INTEGER NOT NULL DEFAULT 0,
			name TEXT NOT NULL DEFAULT '',
			payload BLOB,
			fire_at INTEGER NOT NULL DEFAULT 0,
			child_id TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (instance_id, sequence)
		);
	`)
	return err
}

func (s *SQLiteStore) CreateInstance(ctx context.Context, inst *api.WorkflowInstance) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO instances (id, orchestration, status, input, result, failure_kind, failure_message,
			last_sequence, parent_id, parent_task_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID,
		inst.Type,
		string(inst.Status),
		[]byte(inst.Input),
		[]byte(inst.Result),
		string(inst.FailureKind),
		inst.FailureMessage,
		inst.LastSequence,
		inst.ParentID,
		inst.ParentTaskID,
		inst.CreatedAt.UnixNano(),
		inst.LastUpdatedAt.UnixNano(),
	)
	if err != nil && isUniqueViolation(err) {
		return ErrDuplicateInstance
	}
	return err
}

func (s *SQLiteStore) UpdateInstance(ctx context.Context, inst *api.WorkflowInstance) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE instances
		SET status = ?, result = ?, failure_kind = ?, failure_message = ?,
			last_sequence = ?, updated_at = ?
		WHERE id = ?`,
		string(inst.Status),
		[]byte(inst.Result),
		string(inst.FailureKind),
		inst.FailureMessage,
		inst.LastSequence,
		inst.LastUpdatedAt.UnixNano(),
		inst.ID,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInstanceNotFound
	}
	return nil
}

func (s *SQLiteStore) GetInstance(ctx context.Context, id string) (*api.WorkflowInstance, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, orchestration, status, input, result, failure_kind, failure_message,
			last_sequence, parent_id, parent_task_id, created_at, updated_at
		FROM instances
		WHERE id = ?`, id)

	inst, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}
	return inst, nil
}

func (s *SQLiteStore) ListInstances(ctx context.Context, filter api.InstanceListOptions) ([]*api.WorkflowInstance, error) {
	query := `
		SELECT id, orchestration, status, input, result, failure_kind, failure_message,
			last_sequence, parent_id, parent_task_id, created_at, updated_at
		FROM instances WHERE 1=1`
	var args []any
	if filter.Type != "" {
		query += " AND orchestration = ?"
		args = append(args, filter.Type)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY created_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*api.WorkflowInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteInstance(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM instances WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) AppendEvents(ctx context.Context, instanceID string, expectedVersion int64, events []api.HistoryEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM instances WHERE id = ?`, instanceID,
	).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrInstanceNotFound
	}

	var version int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM history WHERE instance_id = ?`, instanceID,
	).Scan(&version); err != nil {
		return err
	}
	if version != expectedVersion {
		return ErrConflict
	}

	for _, ev := range events {
		var fireAt int64
		if !ev.FireAt.IsZero() {
			fireAt = ev.FireAt.UnixNano()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO history (instance_id, sequence, kind, at, task_id, name, payload, fire_at, child_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			instanceID,
			ev.Sequence,
			string(ev.Kind),
			ev.Timestamp.UnixNano(),
			ev.TaskID,
			ev.Name,
			[]byte(ev.Payload),
			fireAt,
			ev.ChildID,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) ReadHistory(ctx context.Context, instanceID string) ([]api.HistoryEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, kind, at, task_id, name, payload, fire_at, child_id
		FROM history
		WHERE instance_id = ?
		ORDER BY sequence ASC`, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.HistoryEvent
	for rows.Next() {
		var (
			ev      api.HistoryEvent
			kind    string
			at      int64
			payload []byte
			fireAt  int64
		)
		if err := rows.Scan(&ev.Sequence, &kind, &at, &ev.TaskID, &ev.Name, &payload, &fireAt, &ev.ChildID); err != nil {
			return nil, err
		}
		ev.InstanceID = instanceID
		ev.Kind = api.EventKind(kind)
		ev.Timestamp = time.Unix(0, at)
		ev.Payload = payload
		if fireAt != 0 {
			ev.FireAt = time.Unix(0, fireAt)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteHistory(ctx context.Context, instanceID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE instance_id = ?`, instanceID)
	return err
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(row rowScanner) (*api.WorkflowInstance, error) {
	var (
		inst        api.WorkflowInstance
		status      string
		input       []byte
		result      []byte
		failureKind string
		createdAt   int64
		updatedAt   int64
	)
	if err := row.Scan(&inst.ID, &inst.Type, &status, &input, &result, &failureKind,
		&inst.FailureMessage, &inst.LastSequence, &inst.ParentID, &inst.ParentTaskID,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}

	inst.Status = api.Status(status)
	inst.Input = input
	inst.Result = result
	inst.FailureKind = api.FailureKind(failureKind)
	inst.CreatedAt = time.Unix(0, createdAt)
	inst.LastUpdatedAt = time.Unix(0, updatedAt)
	return &inst, nil
}
