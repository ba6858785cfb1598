package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/petrijr/turno/pkg/api"
)

// PostgresStore implements InstanceStore and HistoryStore on PostgreSQL.
//
// It expects an *sql.DB opened with a Postgres driver; the caller imports
// the driver. The append path uses SELECT ... FOR UPDATE on the instance's
// history rows to make the version check and insert atomic.
type PostgresStore struct {
	db *sql.DB
}

var _ InstanceStore = (*PostgresStore)(nil)
var _ HistoryStore = (*PostgresStore)(nil)

// NewPostgresStore initializes the schema and returns a new PostgresStore.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS instances (
			id TEXT PRIMARY KEY,
			orchestration TEXT NOT NULL,
			status TEXT NOT NULL,
			input BYTEA,
			result BYTEA,
			failure_kind TEXT NOT NULL DEFAULT '',
			failure_message TEXT NOT NULL DEFAULT '',
			last_sequence BIGINT NOT NULL DEFAULT 0,
			parent_id TEXT NOT NULL DEFAULT '',
			parent_task_id BIGINT NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS history (
			instance_id TEXT NOT NULL,
			sequence BIGINT NOT NULL,
			kind TEXT NOT NULL,
			at BIGINT NOT NULL,
			task_id BIGINT NOT NULL DEFAULT 0,
			name TEXT NOT NULL DEFAULT '',
			payload BYTEA,
			fire_at BIGINT NOT NULL DEFAULT 0,
			child_id TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (instance_id, sequence)
		);
	`)
	return err
}

func (s *PostgresStore) CreateInstance(ctx context.Context, inst *api.WorkflowInstance) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO instances (id, orchestration, status, input, result, failure_kind, failure_message,
			last_sequence, parent_id, parent_task_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
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

func (s *PostgresStore) UpdateInstance(ctx context.Context, inst *api.WorkflowInstance) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE instances
		SET status = $1, result = $2, failure_kind = $3, failure_message = $4,
			last_sequence = $5, updated_at = $6
		WHERE id = $7`,
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

func (s *PostgresStore) GetInstance(ctx context.Context, id string) (*api.WorkflowInstance, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, orchestration, status, input, result, failure_kind, failure_message,
			last_sequence, parent_id, parent_task_id, created_at, updated_at
		FROM instances
		WHERE id = $1`, id)

	inst, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}
	return inst, nil
}

func (s *PostgresStore) ListInstances(ctx context.Context, filter api.InstanceListOptions) ([]*api.WorkflowInstance, error) {
	query := `
		SELECT id, orchestration, status, input, result, failure_kind, failure_message,
			last_sequence, parent_id, parent_task_id, created_at, updated_at
		FROM instances WHERE TRUE`
	var args []any
	if filter.Type != "" {
		args = append(args, filter.Type)
		query += " AND orchestration = $1"
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		if len(args) == 1 {
			query += " AND status = $1"
		} else {
			query += " AND status = $2"
		}
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

func (s *PostgresStore) DeleteInstance(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM instances WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) AppendEvents(ctx context.Context, instanceID string, expectedVersion int64, events []api.HistoryEvent) error {
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
		`SELECT COUNT(*) FROM instances WHERE id = $1`, instanceID,
	).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrInstanceNotFound
	}

	var version int64
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (
			SELECT 1 FROM history WHERE instance_id = $1 FOR UPDATE
		) h`, instanceID,
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
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
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
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return err
		}
	}

	return tx.Commit()
}

func (s *PostgresStore) ReadHistory(ctx context.Context, instanceID string) ([]api.HistoryEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, kind, at, task_id, name, payload, fire_at, child_id
		FROM history
		WHERE instance_id = $1
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

func (s *PostgresStore) DeleteHistory(ctx context.Context, instanceID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE instance_id = $1`, instanceID)
	return err
}
